// Package chromem adapts the embedded chromem-go database to the
// vectorstore.Store contract. It suits single-binary deployments and tests:
// no external database service, optional gob persistence on disk.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"

	"cv-search-be/pkg/vectorstore"

	chromemgo "github.com/philippgille/chromem-go"
)

type Store struct {
	db         *chromemgo.DB
	collection string
}

var _ vectorstore.Store = &Store{}

// NewStore creates an in-memory store.
func NewStore(collection string) (*Store, error) {
	if collection == "" {
		collection = "cv_fragments"
	}
	return &Store{
		db:         chromemgo.NewDB(),
		collection: collection,
	}, nil
}

// NewPersistentStore creates a store backed by gob files under path.
func NewPersistentStore(path, collection string, compress bool) (*Store, error) {
	if collection == "" {
		collection = "cv_fragments"
	}
	db, err := chromemgo.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("create chromem DB: %w", err)
	}
	return &Store{
		db:         db,
		collection: collection,
	}, nil
}

func (s *Store) getCollection() (*chromemgo.Collection, error) {
	// Embeddings are always supplied by the caller, so no embedding func
	collection, err := s.db.GetOrCreateCollection(s.collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get/create collection %s: %w", s.collection, err)
	}
	return collection, nil
}

func (s *Store) Upsert(ctx context.Context, docs []vectorstore.Document) error {
	if len(docs) == 0 {
		return nil
	}

	collection, err := s.getCollection()
	if err != nil {
		return err
	}

	chromemDocs := make([]chromemgo.Document, len(docs))
	for i, doc := range docs {
		metadata := flattenMetadata(doc.Metadata)
		if doc.CandidateID != "" {
			metadata["candidate_id"] = doc.CandidateID
		}
		chromemDocs[i] = chromemgo.Document{
			ID:        doc.ID,
			Content:   doc.Text,
			Embedding: doc.Embedding,
			Metadata:  metadata,
		}
	}

	if err := collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

// Query searches by embedding, then applies the filter expression
// client-side. chromem only supports exact-match where clauses, so all
// predicate evaluation (membership, ranges, regex, and/or) happens here:
// the collection is over-queried and trimmed after filtering.
func (s *Store) Query(ctx context.Context, vector []float32, filter vectorstore.Filter, topK int) ([]vectorstore.Hit, error) {
	collection, err := s.getCollection()
	if err != nil {
		return nil, err
	}

	docCount := collection.Count()
	if docCount == 0 {
		return []vectorstore.Hit{}, nil
	}

	// Over-query so post-filtering still has enough survivors; chromem
	// requires nResults <= doc count.
	fetch := topK * 4
	if filter == nil {
		fetch = topK
	}
	if fetch > docCount {
		fetch = docCount
	}
	if fetch <= 0 {
		fetch = 1
	}

	results, err := collection.QueryEmbedding(ctx, vector, fetch, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", s.collection, err)
	}

	hits := make([]vectorstore.Hit, 0, len(results))
	for _, r := range results {
		metadata := expandMetadata(r.Metadata)
		if !vectorstore.Matches(filter, metadata) {
			continue
		}
		hits = append(hits, vectorstore.Hit{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Metadata: metadata,
			Text:     r.Content,
		})
		if len(hits) >= topK {
			break
		}
	}

	return hits, nil
}

// flattenMetadata converts arbitrary metadata into chromem's string map;
// non-string values are JSON encoded and recovered on read.
func flattenMetadata(metadata map[string]interface{}) map[string]string {
	out := make(map[string]string, len(metadata))
	for key, value := range metadata {
		if s, ok := value.(string); ok {
			out[key] = s
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			out[key] = fmt.Sprintf("%v", value)
			continue
		}
		out[key] = string(encoded)
	}
	return out
}

func expandMetadata(metadata map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(metadata))
	for key, value := range metadata {
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			switch decoded.(type) {
			case map[string]interface{}, []interface{}, float64, bool:
				out[key] = decoded
				continue
			}
		}
		out[key] = value
	}
	return out
}
