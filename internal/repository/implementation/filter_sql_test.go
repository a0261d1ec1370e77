package implementation

import (
	"strings"
	"testing"

	"cv-search-be/pkg/vectorstore"
)

func floatPtr(v float64) *float64 { return &v }

func TestCompileFilterNil(t *testing.T) {
	sql, args, err := CompileFilter(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sql != "" || args != nil {
		t.Errorf("nil filter should compile to nothing, got %q %v", sql, args)
	}
}

func TestCompileFilterEq(t *testing.T) {
	sql, args, err := CompileFilter(vectorstore.Eq{Key: "metadata.location", Value: "Kathmandu"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sql != "LOWER(metadata #>> '{location}') = LOWER(?)" {
		t.Errorf("sql = %q", sql)
	}
	if len(args) != 1 || args[0] != "Kathmandu" {
		t.Errorf("args = %v", args)
	}
}

func TestCompileFilterEqNestedKey(t *testing.T) {
	sql, _, err := CompileFilter(vectorstore.Eq{Key: "skills.technical", Value: "go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sql, "'{skills,technical}'") {
		t.Errorf("nested key not rendered as a path: %q", sql)
	}
}

func TestCompileFilterIn(t *testing.T) {
	sql, args, err := CompileFilter(vectorstore.In{Key: "skills", Values: []string{"python", "go"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Scalar and array representations are both matched, so the values
	// bind twice.
	if len(args) != 4 {
		t.Fatalf("args = %v, want values bound twice", args)
	}
	if !strings.Contains(sql, "jsonb_array_elements_text") {
		t.Errorf("array membership branch missing: %q", sql)
	}
	if !strings.Contains(sql, "IN (LOWER(?),LOWER(?))") {
		t.Errorf("scalar branch missing: %q", sql)
	}
}

func TestCompileFilterInEmpty(t *testing.T) {
	sql, _, err := CompileFilter(vectorstore.In{Key: "skills"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sql != "FALSE" {
		t.Errorf("empty In should match nothing, got %q", sql)
	}
}

func TestCompileFilterRange(t *testing.T) {
	sql, args, err := CompileFilter(vectorstore.Range{
		Key: "experience_years",
		Min: floatPtr(3),
		Max: floatPtr(8),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 2 || args[0] != 3.0 || args[1] != 8.0 {
		t.Errorf("args = %v", args)
	}
	if !strings.Contains(sql, "::numeric >= ?") || !strings.Contains(sql, "::numeric <= ?") {
		t.Errorf("bounds missing: %q", sql)
	}
	// Rows with non-numeric text must be excluded, not fail the cast.
	if !strings.Contains(sql, "~ '"+numericPattern+"'") {
		t.Errorf("numeric guard missing: %q", sql)
	}
}

func TestCompileFilterRangeOpenBound(t *testing.T) {
	sql, args, err := CompileFilter(vectorstore.Range{Key: "experience_years", Min: floatPtr(5)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 1 {
		t.Errorf("args = %v, want single bound", args)
	}
	if strings.Contains(sql, "<=") {
		t.Errorf("open max bound should not emit a <= clause: %q", sql)
	}
}

func TestCompileFilterLogical(t *testing.T) {
	f := vectorstore.And{Clauses: []vectorstore.Filter{
		vectorstore.Eq{Key: "location", Value: "berlin"},
		vectorstore.Or{Clauses: []vectorstore.Filter{
			vectorstore.Eq{Key: "current_role", Value: "engineer"},
			vectorstore.Eq{Key: "current_role", Value: "developer"},
		}},
	}}

	sql, args, err := CompileFilter(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 3 {
		t.Errorf("args = %v", args)
	}
	if !strings.Contains(sql, " AND ") || !strings.Contains(sql, " OR ") {
		t.Errorf("logical operators missing: %q", sql)
	}
	if strings.Count(sql, "(") != strings.Count(sql, ")") {
		t.Errorf("unbalanced parentheses: %q", sql)
	}
}

func TestCompileFilterRegex(t *testing.T) {
	sql, args, err := CompileFilter(vectorstore.Regex{Key: "education", Pattern: "master"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sql, "~* ?") {
		t.Errorf("case-insensitive regex operator missing: %q", sql)
	}
	if len(args) != 1 || args[0] != "master" {
		t.Errorf("args = %v", args)
	}
}

func TestJsonPathStripsUnsafeRunes(t *testing.T) {
	got := jsonPath("metadata.a'b{c}d")
	if strings.ContainsAny(got, "'") {
		t.Errorf("quote survived path rendering: %q", got)
	}
	if got != "{abcd}" {
		t.Errorf("path = %q", got)
	}
}
