package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"cv-search-be/pkg/llm"
	"cv-search-be/pkg/rag/retriever"
)

type plainProvider struct {
	response string
	err      error
	calls    int
}

func (p *plainProvider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (string, error) {
	return p.response, p.err
}

func (p *plainProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	p.calls++
	return p.response, p.err
}

type batchProvider struct {
	plainProvider
	batchErr   error
	batchCalls int
}

func (p *batchProvider) GenerateBatch(ctx context.Context, prompts []string, opts ...llm.Option) ([]string, error) {
	p.batchCalls++
	if p.batchErr != nil {
		return nil, p.batchErr
	}
	out := make([]string, len(prompts))
	for i := range prompts {
		out[i] = fmt.Sprintf("batched summary %d", i)
	}
	return out, nil
}

func match(name string, score float64) retriever.Match {
	return retriever.Match{
		Score:    score,
		Text:     "fragment",
		Metadata: map[string]interface{}{"NAME": name},
	}
}

func TestSynthesizeEmpty(t *testing.T) {
	s := NewSynthesizer(&plainProvider{})
	if got := s.Synthesize(context.Background(), nil, "query"); got != nil {
		t.Errorf("empty matches = %v, want nil", got)
	}
}

func TestSynthesizeUsesBatchProvider(t *testing.T) {
	p := &batchProvider{}
	s := NewSynthesizer(p)

	got := s.Synthesize(context.Background(), []retriever.Match{
		match("Alice", 0.9),
		match("Bob", 0.5),
	}, "python experience")

	if p.batchCalls != 1 {
		t.Errorf("batch calls = %d, want 1", p.batchCalls)
	}
	if p.calls != 0 {
		t.Errorf("sequential calls = %d, want 0", p.calls)
	}
	if len(got) != 2 {
		t.Fatalf("summaries = %d, want 2", len(got))
	}
	if got[0].Name != "Alice" || got[0].Summary != "batched summary 0" {
		t.Errorf("first summary = %+v", got[0])
	}
}

func TestSynthesizeBatchFailureFallsBackSequential(t *testing.T) {
	p := &batchProvider{batchErr: errors.New("batch unsupported")}
	p.response = "sequential summary"
	s := NewSynthesizer(p)

	got := s.Synthesize(context.Background(), []retriever.Match{match("Alice", 0.9)}, "python")
	if p.calls != 1 {
		t.Errorf("sequential calls = %d, want 1", p.calls)
	}
	if got[0].Summary != "sequential summary" {
		t.Errorf("summary = %q", got[0].Summary)
	}
}

func TestSynthesizePlaceholderWhenAllFails(t *testing.T) {
	s := NewSynthesizer(&plainProvider{err: errors.New("model offline")})

	got := s.Synthesize(context.Background(), []retriever.Match{match("Alice", 0.9)}, "python")
	if got[0].Summary != PlaceholderSummary {
		t.Errorf("summary = %q, want placeholder", got[0].Summary)
	}
}

func TestSynthesizeSortsByRetrievalScore(t *testing.T) {
	s := NewSynthesizer(&plainProvider{response: "summary"})

	got := s.Synthesize(context.Background(), []retriever.Match{
		match("Low", 0.2),
		match("High", 0.9),
		match("Mid", 0.5),
	}, "python")

	names := []string{got[0].Name, got[1].Name, got[2].Name}
	want := []string{"High", "Mid", "Low"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order = %v, want %v", names, want)
		}
	}
}

func TestSynthesizeBatches(t *testing.T) {
	p := &batchProvider{}
	s := NewSynthesizer(p)

	var matches []retriever.Match
	for i := 0; i < 23; i++ {
		matches = append(matches, match(fmt.Sprintf("c%d", i), float64(i)))
	}

	got := s.Synthesize(context.Background(), matches, "python")
	if p.batchCalls != 3 {
		t.Errorf("batch calls = %d, want 3 for 23 candidates", p.batchCalls)
	}
	if len(got) != 23 {
		t.Errorf("summaries = %d, want 23", len(got))
	}
}

func TestBuildSummaryPromptQueryFocus(t *testing.T) {
	metadata := map[string]interface{}{
		"NAME":       "Alice",
		"LOCATION":   "Kathmandu",
		"SKILLS":     `{"technical": ["Python", "Go", "SQL", "Rust"]}`,
		"EXPERIENCE": `[{"TITLE": "Developer"}, {"TITLE": "Engineer"}]`,
	}

	prompt := buildSummaryPrompt(metadata, "python developers with experience in remote teams")
	for _, want := range []string{
		"Create a professional summary for Alice",
		"- Experience: 2 relevant positions",
		"- Skills: technical: Python, Go, SQL",
		"- Location: Kathmandu",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "Rust") {
		t.Error("skills list should be capped at three per category")
	}
}

func TestBuildSummaryPromptWithoutQuery(t *testing.T) {
	prompt := buildSummaryPrompt(map[string]interface{}{"NAME": "Alice"}, "")
	if !strings.HasPrefix(prompt, "Summarize this candidate:") {
		t.Errorf("prompt = %q", prompt)
	}
}
