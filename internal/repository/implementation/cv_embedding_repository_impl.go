package implementation

import (
	"context"

	"cv-search-be/internal/entity"
	"cv-search-be/internal/mapper"
	"cv-search-be/internal/model"
	"cv-search-be/internal/repository/contract"
	"cv-search-be/pkg/vectorstore"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type CvEmbeddingRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.CvEmbeddingMapper
}

func NewCvEmbeddingRepository(db *gorm.DB) contract.CvEmbeddingRepository {
	return &CvEmbeddingRepositoryImpl{
		db:     db,
		mapper: mapper.NewCvEmbeddingMapper(),
	}
}

func (r *CvEmbeddingRepositoryImpl) Create(ctx context.Context, fragment *entity.CvFragment) error {
	m := r.mapper.ToModel(fragment)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*fragment = *r.mapper.ToEntity(m)
	return nil
}

func (r *CvEmbeddingRepositoryImpl) CreateBulk(ctx context.Context, fragments []*entity.CvFragment) error {
	if len(fragments) == 0 {
		return nil
	}
	models := r.mapper.ToModels(fragments)
	if err := r.db.WithContext(ctx).Create(models).Error; err != nil {
		return err
	}
	for i, m := range models {
		*fragments[i] = *r.mapper.ToEntity(m)
	}
	return nil
}

func (r *CvEmbeddingRepositoryImpl) DeleteByCandidateId(ctx context.Context, candidateId string) error {
	return r.db.WithContext(ctx).Where("candidate_id = ?", candidateId).Delete(&model.CvEmbedding{}).Error
}

func (r *CvEmbeddingRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CvEmbedding{}).Count(&count).Error
	return count, err
}

func (r *CvEmbeddingRepositoryImpl) SearchSimilar(ctx context.Context, embedding []float32, filter vectorstore.Filter, limit int) ([]*contract.ScoredCvFragment, error) {
	if limit <= 0 {
		limit = 5
	}

	// Cosine distance in pgvector is 1 - cosine_similarity, so
	// 1 - (embedding_value <=> query_vector) recovers the similarity.
	type result struct {
		model.CvEmbedding
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	query := r.db.WithContext(ctx).
		Table("cv_embeddings").
		Select("cv_embeddings.*, 1 - (embedding_value <=> ?) as similarity", queryVector).
		Where("cv_embeddings.deleted_at IS NULL")

	condition, args, err := CompileFilter(filter)
	if err != nil {
		return nil, err
	}
	if condition != "" {
		query = query.Where(condition, args...)
	}

	err = query.
		Order("similarity DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*contract.ScoredCvFragment, len(results))
	for i, res := range results {
		scored[i] = &contract.ScoredCvFragment{
			Fragment:   r.mapper.ToEntity(&res.CvEmbedding),
			Similarity: res.Similarity,
		}
	}
	return scored, nil
}
