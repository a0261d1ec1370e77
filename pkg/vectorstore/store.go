package vectorstore

import "context"

// Hit is one scored match returned by a vector search.
type Hit struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
	Text     string                 `json:"text"`
}

// Document is a stored fragment with its embedding. Ingestion lives outside
// this service; Upsert exists so tests and seed tooling can populate a store.
type Document struct {
	ID          string                 `json:"id"`
	CandidateID string                 `json:"candidate_id"`
	Text        string                 `json:"text"`
	Embedding   []float32              `json:"embedding"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// Store is the vector-search collaborator: embedding vector + filter in,
// scored matches out, ordered by similarity descending.
type Store interface {
	Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Hit, error)
	Upsert(ctx context.Context, docs []Document) error
}
