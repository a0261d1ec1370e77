package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cv-search-be/pkg/llm"
)

type stubProvider struct {
	response string
	err      error
}

func (s *stubProvider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (string, error) {
	return s.response, s.err
}

func (s *stubProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return s.response, s.err
}

func TestManagerSaveRequiresEmail(t *testing.T) {
	m := NewManager(NewCacheStore(0), nil)

	if err := m.Save(context.Background(), "  ", "s1", "query", "response", nil); err == nil {
		t.Error("save without email should fail")
	}
}

func TestManagerSaveSummarizes(t *testing.T) {
	store := NewCacheStore(0)
	m := NewManager(store, &stubProvider{response: "User asked about Go developers."})

	if err := m.Save(context.Background(), "User@Example.com", "s1", "go developers?", "long response text", nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := m.Recent(context.Background(), "user@example.com", "s1", 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.ResponseSummary != "User asked about Go developers." {
		t.Errorf("summary = %q", got.ResponseSummary)
	}
	if got.FullResponse != "long response text" {
		t.Errorf("full response = %q", got.FullResponse)
	}
	if got.Email != "user@example.com" {
		t.Errorf("email = %q, want normalized", got.Email)
	}
	if got.Source != "chat" {
		t.Errorf("source = %q", got.Source)
	}
}

func TestManagerSaveSummaryFallback(t *testing.T) {
	store := NewCacheStore(0)
	m := NewManager(store, &stubProvider{err: errors.New("model offline")})

	long := strings.Repeat("x", 600)
	if err := m.Save(context.Background(), "a@b.com", "s1", "q", long, nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, _ := m.Recent(context.Background(), "a@b.com", "", 1)
	if len(entries[0].ResponseSummary) != 500 {
		t.Errorf("fallback summary length = %d, want truncated to 500", len(entries[0].ResponseSummary))
	}
}

func TestManagerSaveGeneratesSessionID(t *testing.T) {
	store := NewCacheStore(0)
	m := NewManager(store, nil)

	if err := m.Save(context.Background(), "a@b.com", "", "q", "r", nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, _ := m.Recent(context.Background(), "a@b.com", "", 1)
	if entries[0].SessionID == "" {
		t.Error("session id should be generated when absent")
	}
}

func TestCacheStoreRecentOrderAndSessionFilter(t *testing.T) {
	store := NewCacheStore(0)
	base := time.Now().UTC()

	for i, sess := range []string{"s1", "s2", "s1"} {
		store.Save(context.Background(), Entry{
			Email:     "a@b.com",
			SessionID: sess,
			Query:     "q",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	all, _ := store.Recent(context.Background(), "a@b.com", "", 10)
	if len(all) != 3 {
		t.Fatalf("entries = %d, want 3", len(all))
	}
	if !all[0].Timestamp.After(all[1].Timestamp) {
		t.Error("entries should be newest first")
	}

	s1, _ := store.Recent(context.Background(), "a@b.com", "s1", 10)
	if len(s1) != 2 {
		t.Errorf("session entries = %d, want 2", len(s1))
	}

	limited, _ := store.Recent(context.Background(), "a@b.com", "", 1)
	if len(limited) != 1 {
		t.Errorf("limited entries = %d, want 1", len(limited))
	}
}

func TestCacheStoreSearch(t *testing.T) {
	store := NewCacheStore(0)
	store.Save(context.Background(), Entry{
		Email:           "a@b.com",
		Query:           "golang developers in Kathmandu",
		ResponseSummary: "Found three Go candidates.",
		Timestamp:       time.Now().UTC(),
	})
	store.Save(context.Background(), Entry{
		Email:           "a@b.com",
		Query:           "java architects",
		ResponseSummary: "Found one Java candidate.",
		Timestamp:       time.Now().UTC(),
	})

	got, err := store.Search(context.Background(), "golang", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || !strings.Contains(got[0].Query, "golang") {
		t.Errorf("search results = %v", got)
	}

	none, _ := store.Search(context.Background(), "", 10)
	if len(none) != 0 {
		t.Errorf("empty query should match nothing, got %d", len(none))
	}
}
