package implementation

import (
	"context"

	"cv-search-be/internal/entity"
	"cv-search-be/internal/repository/contract"
	"cv-search-be/pkg/vectorstore"

	"github.com/google/uuid"
)

// CvVectorStore adapts the pgvector-backed repository to the vector store
// contract the retrieval pipeline consumes.
type CvVectorStore struct {
	repo contract.CvEmbeddingRepository
}

var _ vectorstore.Store = &CvVectorStore{}

func NewCvVectorStore(repo contract.CvEmbeddingRepository) *CvVectorStore {
	return &CvVectorStore{repo: repo}
}

func (s *CvVectorStore) Query(ctx context.Context, vector []float32, filter vectorstore.Filter, topK int) ([]vectorstore.Hit, error) {
	scored, err := s.repo.SearchSimilar(ctx, vector, filter, topK)
	if err != nil {
		return nil, err
	}

	hits := make([]vectorstore.Hit, 0, len(scored))
	for _, sc := range scored {
		if sc.Fragment == nil {
			continue
		}
		hits = append(hits, vectorstore.Hit{
			ID:       sc.Fragment.Id.String(),
			Score:    sc.Similarity,
			Metadata: sc.Fragment.Metadata,
			Text:     sc.Fragment.Document,
		})
	}
	return hits, nil
}

func (s *CvVectorStore) Upsert(ctx context.Context, docs []vectorstore.Document) error {
	fragments := make([]*entity.CvFragment, 0, len(docs))
	for _, doc := range docs {
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			id = uuid.New()
		}
		fragments = append(fragments, &entity.CvFragment{
			Id:             id,
			CandidateId:    doc.CandidateID,
			Document:       doc.Text,
			EmbeddingValue: doc.Embedding,
			Metadata:       doc.Metadata,
		})
	}
	return s.repo.CreateBulk(ctx, fragments)
}
