package contract

import (
	"context"

	"cv-search-be/internal/entity"
	"cv-search-be/pkg/vectorstore"
)

// ScoredCvFragment wraps a CvFragment with its cosine similarity score
type ScoredCvFragment struct {
	Fragment   *entity.CvFragment
	Similarity float64 // 0.0 to 1.0 (1.0 = identical)
}

type CvEmbeddingRepository interface {
	Create(ctx context.Context, fragment *entity.CvFragment) error
	CreateBulk(ctx context.Context, fragments []*entity.CvFragment) error
	DeleteByCandidateId(ctx context.Context, candidateId string) error
	Count(ctx context.Context) (int64, error)

	// SearchSimilar runs a cosine similarity search constrained by the
	// metadata filter expression. A nil filter searches everything.
	SearchSimilar(ctx context.Context, embedding []float32, filter vectorstore.Filter, limit int) ([]*ScoredCvFragment, error)
}
