package implementation

import (
	"context"
	"encoding/json"
	"strings"

	"cv-search-be/internal/model"
	"cv-search-be/pkg/rag/memory"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MemoryRepositoryImpl persists conversation memory in Postgres so history
// survives restarts. It satisfies the same contract as the in-process cache
// store.
type MemoryRepositoryImpl struct {
	db *gorm.DB
}

var _ memory.Store = &MemoryRepositoryImpl{}

func NewMemoryRepository(db *gorm.DB) *MemoryRepositoryImpl {
	return &MemoryRepositoryImpl{db: db}
}

func (r *MemoryRepositoryImpl) Save(ctx context.Context, entry memory.Entry) error {
	var contextJSON datatypes.JSON
	if entry.Context != nil {
		if raw, err := json.Marshal(entry.Context); err == nil {
			contextJSON = raw
		}
	}

	m := &model.MemoryEntry{
		Id:              entry.ID,
		Email:           entry.Email,
		SessionId:       entry.SessionID,
		Query:           entry.Query,
		ResponseSummary: entry.ResponseSummary,
		FullResponse:    entry.FullResponse,
		Source:          entry.Source,
		Context:         contextJSON,
		CreatedAt:       entry.Timestamp,
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MemoryRepositoryImpl) Recent(ctx context.Context, email, sessionID string, limit int) ([]memory.Entry, error) {
	query := r.db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at DESC")
	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []*model.MemoryEntry
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return toEntries(models), nil
}

func (r *MemoryRepositoryImpl) Search(ctx context.Context, query string, limit int) ([]memory.Entry, error) {
	terms := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(terms) == 0 {
		return nil, nil
	}

	condition, args := termSearchCondition(terms)
	db := r.db.WithContext(ctx).Where(condition, args...)
	if limit > 0 {
		db = db.Limit(limit)
	}

	var models []*model.MemoryEntry
	if err := db.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return toEntries(models), nil
}

// termSearchCondition matches entries containing any of the terms, mirroring
// the cache store's loose matching.
func termSearchCondition(terms []string) (string, []interface{}) {
	clauses := make([]string, 0, len(terms))
	args := make([]interface{}, 0, len(terms)*2)
	for _, term := range terms {
		pattern := "%" + term + "%"
		clauses = append(clauses, "(LOWER(query) LIKE ? OR LOWER(response_summary) LIKE ?)")
		args = append(args, pattern, pattern)
	}
	return strings.Join(clauses, " OR "), args
}

func toEntries(models []*model.MemoryEntry) []memory.Entry {
	entries := make([]memory.Entry, 0, len(models))
	for _, m := range models {
		var userContext map[string]interface{}
		if len(m.Context) > 0 {
			_ = json.Unmarshal(m.Context, &userContext)
		}
		entries = append(entries, memory.Entry{
			ID:              m.Id,
			Email:           m.Email,
			SessionID:       m.SessionId,
			Query:           m.Query,
			ResponseSummary: m.ResponseSummary,
			FullResponse:    m.FullResponse,
			Timestamp:       m.CreatedAt,
			Source:          m.Source,
			Context:         userContext,
		})
	}
	return entries
}
