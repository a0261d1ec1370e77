package implementation

import (
	"fmt"
	"strings"

	"cv-search-be/pkg/vectorstore"
)

// numericPattern guards the ::numeric cast so rows holding non-numeric text
// drop out of a range instead of aborting the query.
const numericPattern = `^-?[0-9]+(\.[0-9]+)?$`

// CompileFilter turns a metadata filter expression into a SQL condition over
// the jsonb metadata column. Returns an empty condition for a nil filter.
func CompileFilter(f vectorstore.Filter) (string, []interface{}, error) {
	if f == nil {
		return "", nil, nil
	}
	return compileNode(f)
}

func compileNode(f vectorstore.Filter) (string, []interface{}, error) {
	switch node := f.(type) {
	case vectorstore.Eq:
		path := jsonPath(node.Key)
		return fmt.Sprintf("LOWER(metadata #>> '%s') = LOWER(?)", path), []interface{}{node.Value}, nil

	case vectorstore.In:
		if len(node.Values) == 0 {
			return "FALSE", nil, nil
		}
		path := jsonPath(node.Key)
		placeholders := strings.TrimSuffix(strings.Repeat("LOWER(?),", len(node.Values)), ",")

		// The value may be stored as plain text or as a JSON array, so
		// match scalar equality or array membership.
		cond := fmt.Sprintf(
			"(LOWER(metadata #>> '%s') IN (%s) OR EXISTS ("+
				"SELECT 1 FROM jsonb_array_elements_text("+
				"CASE WHEN jsonb_typeof(metadata #> '%s') = 'array' THEN metadata #> '%s' ELSE '[]'::jsonb END"+
				") AS elem WHERE LOWER(elem) IN (%s)))",
			path, placeholders, path, path, placeholders,
		)

		args := make([]interface{}, 0, len(node.Values)*2)
		for _, v := range node.Values {
			args = append(args, v)
		}
		for _, v := range node.Values {
			args = append(args, v)
		}
		return cond, args, nil

	case vectorstore.Range:
		path := jsonPath(node.Key)
		conds := []string{fmt.Sprintf("metadata #>> '%s' ~ '%s'", path, numericPattern)}
		var args []interface{}
		if node.Min != nil {
			conds = append(conds, fmt.Sprintf("(metadata #>> '%s')::numeric >= ?", path))
			args = append(args, *node.Min)
		}
		if node.Max != nil {
			conds = append(conds, fmt.Sprintf("(metadata #>> '%s')::numeric <= ?", path))
			args = append(args, *node.Max)
		}
		return "(" + strings.Join(conds, " AND ") + ")", args, nil

	case vectorstore.Regex:
		path := jsonPath(node.Key)
		return fmt.Sprintf("metadata #>> '%s' ~* ?", path), []interface{}{node.Pattern}, nil

	case vectorstore.And:
		return compileLogical(node.Clauses, " AND ", "TRUE")

	case vectorstore.Or:
		return compileLogical(node.Clauses, " OR ", "TRUE")

	default:
		return "", nil, fmt.Errorf("unsupported filter node %T", f)
	}
}

func compileLogical(clauses []vectorstore.Filter, op, empty string) (string, []interface{}, error) {
	if len(clauses) == 0 {
		return empty, nil, nil
	}

	parts := make([]string, 0, len(clauses))
	var args []interface{}
	for _, clause := range clauses {
		sql, clauseArgs, err := compileNode(clause)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		args = append(args, clauseArgs...)
	}
	return "(" + strings.Join(parts, op) + ")", args, nil
}

// jsonPath renders a dotted metadata key as a jsonb path literal, e.g.
// "skills.technical" becomes {skills,technical}. Quotes are stripped since
// the path is interpolated into the SQL text.
func jsonPath(key string) string {
	segments := vectorstore.KeyPath(key)
	for i, s := range segments {
		segments[i] = strings.NewReplacer("'", "", "{", "", "}", "", ",", "").Replace(s)
	}
	return "{" + strings.Join(segments, ",") + "}"
}
