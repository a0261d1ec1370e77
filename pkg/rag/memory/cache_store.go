package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CacheStore keeps memory entries in process. It backs tests and
// single-node deployments where no database is configured.
type CacheStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
	ttl   time.Duration
}

// NewCacheStore builds an in-process store. A zero ttl keeps entries for
// the life of the process.
func NewCacheStore(ttl time.Duration) *CacheStore {
	expiration := ttl
	if expiration <= 0 {
		expiration = gocache.NoExpiration
	}
	return &CacheStore{
		cache: gocache.New(expiration, 10*time.Minute),
		ttl:   expiration,
	}
}

func (s *CacheStore) Save(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []Entry
	if existing, ok := s.cache.Get(entry.Email); ok {
		entries = existing.([]Entry)
	}
	entries = append(entries, entry)
	s.cache.Set(entry.Email, entries, s.ttl)
	return nil
}

func (s *CacheStore) Recent(ctx context.Context, email, sessionID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.cache.Get(email)
	if !ok {
		return nil, nil
	}

	var out []Entry
	for _, entry := range existing.([]Entry) {
		if sessionID != "" && entry.SessionID != sessionID {
			continue
		}
		out = append(out, entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Search matches entries whose query or summary contains any word of the
// given text, newest first.
func (s *CacheStore) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	var out []Entry
	for _, item := range s.cache.Items() {
		entries, ok := item.Object.([]Entry)
		if !ok {
			continue
		}
		for _, entry := range entries {
			haystack := strings.ToLower(entry.Query + " " + entry.ResponseSummary)
			for _, term := range terms {
				if strings.Contains(haystack, term) {
					out = append(out, entry)
					break
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Store = &CacheStore{}
