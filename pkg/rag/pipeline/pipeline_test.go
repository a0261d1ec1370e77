package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cv-search-be/pkg/embedding"
	"cv-search-be/pkg/events"
	"cv-search-be/pkg/llm"
	"cv-search-be/pkg/rag/memory"
	"cv-search-be/pkg/vectorstore"
)

// routedProvider answers each stage's prompt by recognizing its shape.
type routedProvider struct {
	intentJSON string
	rewriteErr error
}

func (p *routedProvider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (string, error) {
	return "", nil
}

func (p *routedProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	switch {
	case strings.Contains(prompt, "ACTUAL QUERY TO PROCESS"):
		return p.intentJSON, nil
	case strings.Contains(prompt, "Rewrite this query"):
		if p.rewriteErr != nil {
			return "", p.rewriteErr
		}
		return "find experienced candidates", nil
	case strings.Contains(prompt, "Rate the relevance"):
		return "0.8", nil
	case strings.Contains(prompt, "[INSTRUCTIONS]"):
		return "# Candidate Report\nDetailed findings.", nil
	case strings.Contains(prompt, "Summarize this interaction"):
		return "Asked about developers.", nil
	case strings.Contains(prompt, "Create a professional summary"),
		strings.Contains(prompt, "Summarize this candidate"):
		return "A strong candidate.", nil
	default:
		return "Hello! Ready to help with CV search.", nil
	}
}

type recordingStore struct {
	hits  []vectorstore.Hit
	calls int
}

func (s *recordingStore) Query(ctx context.Context, vector []float32, filter vectorstore.Filter, topK int) ([]vectorstore.Hit, error) {
	s.calls++
	return s.hits, nil
}

func (s *recordingStore) Upsert(ctx context.Context, docs []vectorstore.Document) error {
	return nil
}

type stubEmbedder struct{}

func (s *stubEmbedder) Generate(text, taskType string) (*embedding.EmbeddingResponse, error) {
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{0.1, 0.2}},
	}, nil
}

type recordingPublisher struct {
	published []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.published = append(p.published, event)
	return nil
}

const skillIntentJSON = `{
  "intent": "SkillMatch",
  "skills": ["Python"],
  "confidence": 0.9,
  "requested_fields": ["skills"]
}`

func candidateHit(id, email, name string, score float64) vectorstore.Hit {
	return vectorstore.Hit{
		ID:    id,
		Score: score,
		Text:  "Python developer profile",
		Metadata: map[string]interface{}{
			"EMAIL":      email,
			"NAME":       name,
			"EXPERIENCE": `[{"TITLE": "Senior Developer", "DURATION": "2019 - present"}]`,
		},
	}
}

func TestRunGreetingShortCircuits(t *testing.T) {
	store := &recordingStore{}
	p := New(&routedProvider{}, &stubEmbedder{}, store)

	resp := p.Run(context.Background(), Request{Query: "hello", Email: "a@b.com"})
	if !resp.Success {
		t.Fatalf("greeting should succeed: %+v", resp)
	}
	if resp.Response == "" {
		t.Error("greeting should carry an immediate response")
	}
	if store.calls != 0 {
		t.Errorf("store calls = %d, want none for a greeting", store.calls)
	}
}

func TestRunToxicWithoutRewriteFails(t *testing.T) {
	publisher := &recordingPublisher{}
	p := New(&routedProvider{rewriteErr: errors.New("model offline")}, &stubEmbedder{}, &recordingStore{},
		WithPublisher(publisher))

	resp := p.Run(context.Background(), Request{Query: "find candidates, damn it", Email: "a@b.com"})
	if resp.Success {
		t.Fatal("toxic query without rewrite should fail")
	}
	if resp.Error == "" {
		t.Error("rejection reason missing")
	}
	if resp.Response != msgRephraseProfessionally {
		t.Errorf("response = %q", resp.Response)
	}
	if len(publisher.published) != 2 {
		t.Fatalf("published events = %d, want rejection plus completion", len(publisher.published))
	}
	if publisher.published[0].EventType() != events.TypeQueryRejected {
		t.Errorf("first event type = %q", publisher.published[0].EventType())
	}
	if reason, _ := publisher.published[0].Payload()["reason"].(string); reason == "" {
		t.Error("rejection event missing reason")
	}
	if publisher.published[1].EventType() != events.TypeQueryCompleted {
		t.Errorf("second event type = %q", publisher.published[1].EventType())
	}
}

func TestRunPlannerRejectPublishesRejection(t *testing.T) {
	publisher := &recordingPublisher{}
	store := &recordingStore{}
	p := New(&routedProvider{intentJSON: skillIntentJSON}, &stubEmbedder{}, store,
		WithPublisher(publisher))

	// The rewrite succeeds, so analysis continues past the toxicity gate
	// and the planner blocks the query instead.
	resp := p.Run(context.Background(), Request{Query: "show me the stupid python resumes", Email: "a@b.com"})
	if resp.Success {
		t.Fatal("blocked query should fail")
	}
	if resp.Response != msgCannotProcess {
		t.Errorf("response = %q", resp.Response)
	}
	if store.calls != 0 {
		t.Errorf("store calls = %d, want none for a blocked query", store.calls)
	}
	if len(publisher.published) != 2 {
		t.Fatalf("published events = %d, want rejection plus completion", len(publisher.published))
	}
	if publisher.published[0].EventType() != events.TypeQueryRejected {
		t.Errorf("first event type = %q", publisher.published[0].EventType())
	}
}

func TestRunLowConfidenceFails(t *testing.T) {
	p := New(&routedProvider{intentJSON: `{"intent": null, "confidence": 0.1}`}, &stubEmbedder{}, &recordingStore{})

	resp := p.Run(context.Background(), Request{Query: "asdf qwerty", Email: "a@b.com"})
	if resp.Success {
		t.Fatal("low confidence should fail")
	}
	if resp.Error != "Low intent confidence" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestRunHappyPath(t *testing.T) {
	store := &recordingStore{hits: []vectorstore.Hit{
		candidateHit("c1", "jane@example.com", "Jane", 0.9),
		candidateHit("c2", "john@example.com", "John", 0.5),
	}}
	publisher := &recordingPublisher{}
	p := New(&routedProvider{intentJSON: skillIntentJSON}, &stubEmbedder{}, store,
		WithPublisher(publisher))

	resp := p.Run(context.Background(), Request{
		Query: "python developers",
		Email: "a@b.com",
		Debug: true,
	})

	if !resp.Success {
		t.Fatalf("run failed: %+v", resp)
	}
	if !strings.Contains(resp.Response, "Candidate Report") {
		t.Errorf("response = %q", resp.Response)
	}
	if len(resp.Candidates) != 2 {
		t.Errorf("candidates = %d, want 2", len(resp.Candidates))
	}
	if len(resp.Sources) != 2 || resp.Sources[0] != "Unknown source" {
		t.Errorf("sources = %v", resp.Sources)
	}
	for _, stage := range []string{"query_analysis", "intent_detection", "query_planning", "retrieval", "synthesis"} {
		if _, ok := resp.Debug[stage]; !ok {
			t.Errorf("debug trace missing stage %q", stage)
		}
	}
	if len(publisher.published) != 1 {
		t.Fatalf("published events = %d, want 1", len(publisher.published))
	}
	if publisher.published[0].EventType() != events.TypeQueryCompleted {
		t.Errorf("event type = %q", publisher.published[0].EventType())
	}
}

func TestRunRetriesOnceWithoutFilters(t *testing.T) {
	store := &recordingStore{} // always empty
	p := New(&routedProvider{intentJSON: skillIntentJSON}, &stubEmbedder{}, store)

	resp := p.Run(context.Background(), Request{Query: "python developers", Email: "a@b.com"})
	if !resp.Success {
		t.Fatalf("empty retrieval should still succeed: %+v", resp)
	}
	if resp.Response != msgNoMatches {
		t.Errorf("response = %q", resp.Response)
	}
	if store.calls != 2 {
		t.Errorf("store calls = %d, want 2 (filtered then unfiltered retry)", store.calls)
	}
}

func TestRunSavesMemory(t *testing.T) {
	store := &recordingStore{hits: []vectorstore.Hit{
		candidateHit("c1", "jane@example.com", "Jane", 0.9),
	}}
	memStore := memory.NewCacheStore(0)
	provider := &routedProvider{intentJSON: skillIntentJSON}
	p := New(provider, &stubEmbedder{}, store,
		WithMemory(memory.NewManager(memStore, provider)))

	resp := p.Run(context.Background(), Request{
		Query:     "python developers",
		Email:     "User@Example.com",
		SessionID: "s1",
	})
	if !resp.Success {
		t.Fatalf("run failed: %+v", resp)
	}

	entries, err := memStore.Recent(context.Background(), "user@example.com", "s1", 5)
	if err != nil || len(entries) != 1 {
		t.Fatalf("memory entries = %d (%v), want 1", len(entries), err)
	}
	if entries[0].Query != "python developers" {
		t.Errorf("stored query = %q", entries[0].Query)
	}
	if entries[0].ResponseSummary != "Asked about developers." {
		t.Errorf("stored summary = %q", entries[0].ResponseSummary)
	}
}

func TestRunUsesMemoryContext(t *testing.T) {
	memStore := memory.NewCacheStore(0)
	provider := &routedProvider{intentJSON: skillIntentJSON}
	manager := memory.NewManager(memStore, provider)
	if err := manager.Save(context.Background(), "a@b.com", "s1", "earlier question", "earlier answer", nil); err != nil {
		t.Fatalf("seed memory: %v", err)
	}

	p := New(provider, &stubEmbedder{}, &recordingStore{}, WithMemory(manager))
	resp := p.Run(context.Background(), Request{
		Query:     "and who of them knows Go?",
		Email:     "a@b.com",
		SessionID: "s1",
		Debug:     true,
	})

	if resp.Debug == nil {
		t.Fatal("debug trace missing")
	}
	// The analyzer saw the combined query, visible through the debug trace.
	if resp.Debug["original_query"] != "and who of them knows Go?" {
		t.Errorf("original query = %v", resp.Debug["original_query"])
	}
}
