package retriever

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cv-search-be/pkg/embedding"
	"cv-search-be/pkg/llm"
	"cv-search-be/pkg/vectorstore"
)

type queryCall struct {
	filter vectorstore.Filter
	topK   int
}

type stubStore struct {
	hits  []vectorstore.Hit
	err   error
	calls []queryCall
}

func (s *stubStore) Query(ctx context.Context, vector []float32, filter vectorstore.Filter, topK int) ([]vectorstore.Hit, error) {
	s.calls = append(s.calls, queryCall{filter: filter, topK: topK})
	if s.err != nil {
		s.err = nil // fail only the first call so the fallback can succeed
		return nil, errors.New("store unavailable")
	}
	return s.hits, nil
}

func (s *stubStore) Upsert(ctx context.Context, docs []vectorstore.Document) error {
	return nil
}

type stubEmbedder struct{ err error }

func (s *stubEmbedder) Generate(text, taskType string) (*embedding.EmbeddingResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{0.1, 0.2}},
	}, nil
}

type scriptedLLM struct {
	scores map[string]string
	err    error
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (string, error) {
	return "", s.err
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	for fragment, score := range s.scores {
		if strings.Contains(prompt, fragment) {
			return score, nil
		}
	}
	return "not a number", nil
}

func TestRetrieveOverFetchesAndTruncates(t *testing.T) {
	store := &stubStore{hits: []vectorstore.Hit{
		{ID: "a", Score: 0.4, Text: "golang developer"},
		{ID: "b", Score: 0.9, Text: "golang engineer"},
		{ID: "c", Score: 0.7, Text: "golang architect"},
	}}
	r := NewRetriever(store, &stubEmbedder{}, nil)

	got := r.Retrieve(context.Background(), "golang", nil, 2, false)

	if store.calls[0].topK != 6 {
		t.Errorf("store topK = %d, want 6 (over-fetch)", store.calls[0].topK)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "c" {
		t.Errorf("order = %s, %s; want b, c", got[0].ID, got[1].ID)
	}
}

func TestRetrieveGeneratesMissingIDs(t *testing.T) {
	store := &stubStore{hits: []vectorstore.Hit{{Score: 0.5, Text: "golang"}}}
	r := NewRetriever(store, &stubEmbedder{}, nil)

	got := r.Retrieve(context.Background(), "golang", nil, 5, false)
	if len(got) != 1 || got[0].ID == "" {
		t.Error("missing hit id should be generated")
	}
}

func TestRetrieveNamespacesFilters(t *testing.T) {
	store := &stubStore{}
	r := NewRetriever(store, &stubEmbedder{}, nil)

	filters := map[string]vectorstore.Filter{
		"location": vectorstore.Eq{Key: "location", Value: "Kathmandu"},
	}
	r.Retrieve(context.Background(), "developers", filters, 5, false)

	eq, ok := store.calls[0].filter.(vectorstore.Eq)
	if !ok {
		t.Fatalf("filter = %#v, want Eq", store.calls[0].filter)
	}
	if eq.Key != "metadata.location" {
		t.Errorf("filter key = %q, want metadata.location", eq.Key)
	}
}

func TestRetrieveKeywordPostFilter(t *testing.T) {
	store := &stubStore{hits: []vectorstore.Hit{
		{ID: "match", Score: 0.3, Text: "Fluent nepali speaker"},
		{ID: "langs", Score: 0.5, Text: "irrelevant text", Metadata: map[string]interface{}{"languages": `["Nepali", "English"]`}},
		{ID: "other", Score: 0.9, Text: "java developer"},
	}}
	r := NewRetriever(store, &stubEmbedder{}, nil)

	got := r.Retrieve(context.Background(), "nepali", nil, 5, false)
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2 keyword matches", len(got))
	}
	for _, m := range got {
		if m.ID == "other" {
			t.Error("non-matching fragment survived the keyword filter")
		}
	}
}

func TestRetrieveKeywordFilterRevertsWhenEmpty(t *testing.T) {
	store := &stubStore{hits: []vectorstore.Hit{
		{ID: "a", Score: 0.5, Text: "java developer"},
		{ID: "b", Score: 0.4, Text: "python developer"},
	}}
	r := NewRetriever(store, &stubEmbedder{}, nil)

	got := r.Retrieve(context.Background(), "haskell wizards", nil, 5, false)
	if len(got) != 2 {
		t.Errorf("results = %d, want unfiltered set back", len(got))
	}
}

func TestRetrieveRerank(t *testing.T) {
	store := &stubStore{hits: []vectorstore.Hit{
		{ID: "low", Score: 0.9, Text: "golang fragment one"},
		{ID: "high", Score: 0.5, Text: "golang fragment two"},
	}}
	provider := &scriptedLLM{scores: map[string]string{
		"fragment one": "0.2",
		"fragment two": "0.95",
	}}
	r := NewRetriever(store, &stubEmbedder{}, provider)

	got := r.Retrieve(context.Background(), "golang", nil, 2, true)
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	if got[0].ID != "high" {
		t.Errorf("first result = %s, want high (rerank order)", got[0].ID)
	}
	if got[0].Score != 0.5 {
		t.Error("retrieval score must not be overwritten by reranking")
	}
	if got[0].RerankScore == nil || *got[0].RerankScore != 0.95 {
		t.Errorf("rerank score = %v, want 0.95", got[0].RerankScore)
	}
}

func TestRetrieveRerankParseFailureUsesRetrievalScore(t *testing.T) {
	store := &stubStore{hits: []vectorstore.Hit{
		{ID: "a", Score: 0.7, Text: "golang backend"},
	}}
	provider := &scriptedLLM{} // responds with unparseable text
	r := NewRetriever(store, &stubEmbedder{}, provider)

	got := r.Retrieve(context.Background(), "golang", nil, 5, true)
	if len(got) != 1 {
		t.Fatalf("results = %d, want 1", len(got))
	}
	if got[0].RerankScore == nil || *got[0].RerankScore != 0.7 {
		t.Errorf("rerank score = %v, want retrieval score 0.7", got[0].RerankScore)
	}
}

func TestRetrieveFallsBackToDirectQuery(t *testing.T) {
	store := &stubStore{
		err:  errors.New("boom"),
		hits: []vectorstore.Hit{{ID: "direct", Score: 0.5, Text: "golang"}},
	}
	r := NewRetriever(store, &stubEmbedder{}, nil)

	got := r.Retrieve(context.Background(), "golang", nil, 5, false)
	if len(got) != 1 || got[0].ID != "direct" {
		t.Fatalf("fallback results = %v", got)
	}
	if len(store.calls) != 2 {
		t.Fatalf("store calls = %d, want 2 (filtered then direct)", len(store.calls))
	}
	if store.calls[1].filter != nil {
		t.Error("fallback query must be unfiltered")
	}
	if store.calls[1].topK != 5 {
		t.Errorf("fallback topK = %d, want 5", store.calls[1].topK)
	}
}

func TestRetrieveEmbedderFailureReturnsEmpty(t *testing.T) {
	r := NewRetriever(&stubStore{}, &stubEmbedder{err: errors.New("offline")}, nil)

	got := r.Retrieve(context.Background(), "golang", nil, 5, false)
	if len(got) != 0 {
		t.Errorf("results = %v, want empty", got)
	}
}
