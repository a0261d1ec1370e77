// Package memory persists prior query/response pairs per user and session
// so later queries can carry conversational context.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cv-search-be/pkg/llm"
)

// Entry is one stored interaction. Entries are append-only and never
// mutated after creation.
type Entry struct {
	ID              string                 `json:"id"`
	Email           string                 `json:"email"`
	SessionID       string                 `json:"session_id"`
	Query           string                 `json:"query"`
	ResponseSummary string                 `json:"response_summary"`
	FullResponse    string                 `json:"full_response"`
	Timestamp       time.Time              `json:"timestamp"`
	Source          string                 `json:"source"`
	Context         map[string]interface{} `json:"context,omitempty"`
}

// Store is the persistence boundary for memory entries.
type Store interface {
	Save(ctx context.Context, entry Entry) error
	// Recent returns entries for a user, newest first. An empty session id
	// matches all sessions.
	Recent(ctx context.Context, email, sessionID string, limit int) ([]Entry, error)
	// Search returns entries whose query or summary relates to the given
	// text, most relevant first.
	Search(ctx context.Context, query string, limit int) ([]Entry, error)
}

const defaultSource = "chat"

// summaryFallbackLimit bounds the stored summary when the model is
// unavailable and the raw response stands in for it.
const summaryFallbackLimit = 500

// Manager fronts a Store and summarizes interactions before saving them.
type Manager struct {
	store    Store
	provider llm.Provider
}

func NewManager(store Store, provider llm.Provider) *Manager {
	return &Manager{store: store, provider: provider}
}

// Save summarizes and stores one interaction. The email is required; the
// session id is generated when absent.
func (m *Manager) Save(ctx context.Context, email, sessionID, query, response string, userContext map[string]interface{}) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("a valid email is required to store memory")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	entry := Entry{
		ID:              uuid.NewString(),
		Email:           email,
		SessionID:       sessionID,
		Query:           query,
		ResponseSummary: m.summarize(ctx, query, response),
		FullResponse:    response,
		Timestamp:       time.Now().UTC(),
		Source:          defaultSource,
		Context:         userContext,
	}
	return m.store.Save(ctx, entry)
}

// Recent loads the latest entries for a user and optional session.
func (m *Manager) Recent(ctx context.Context, email, sessionID string, limit int) ([]Entry, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	return m.store.Recent(ctx, email, sessionID, limit)
}

// Search finds entries relevant to a query text.
func (m *Manager) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	return m.store.Search(ctx, query, limit)
}

// summarize condenses the interaction for recall. When the model fails, a
// truncated copy of the response stands in so the save still proceeds.
func (m *Manager) summarize(ctx context.Context, query, response string) string {
	if m.provider == nil {
		return truncate(response, summaryFallbackLimit)
	}

	prompt := fmt.Sprintf(`Summarize this interaction in 2-3 sentences for memory recall.

USER QUESTION:
%s

SYSTEM RESPONSE:
%s

SUMMARY:`, query, response)

	summary, err := m.provider.Generate(ctx, prompt)
	if err != nil || strings.TrimSpace(summary) == "" {
		return truncate(response, summaryFallbackLimit)
	}
	return strings.TrimSpace(summary)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
