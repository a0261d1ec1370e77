package mapper

import (
	"encoding/json"
	"time"

	"cv-search-be/internal/entity"
	"cv-search-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CvEmbeddingMapper struct{}

func NewCvEmbeddingMapper() *CvEmbeddingMapper {
	return &CvEmbeddingMapper{}
}

func (m *CvEmbeddingMapper) ToEntity(e *model.CvEmbedding) *entity.CvFragment {
	if e == nil {
		return nil
	}

	var deletedAt *time.Time
	if e.DeletedAt.Valid {
		t := e.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !e.UpdatedAt.IsZero() {
		t := e.UpdatedAt
		updatedAt = &t
	}

	var metadata map[string]interface{}
	if len(e.Metadata) > 0 {
		_ = json.Unmarshal(e.Metadata, &metadata)
	}

	return &entity.CvFragment{
		Id:             e.Id,
		CandidateId:    e.CandidateId,
		Document:       e.Document,
		EmbeddingValue: e.EmbeddingValue.Slice(),
		Metadata:       metadata,
		ChunkIndex:     e.ChunkIndex,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      updatedAt,
		DeletedAt:      deletedAt,
		IsDeleted:      e.DeletedAt.Valid,
	}
}

func (m *CvEmbeddingMapper) ToModel(e *entity.CvFragment) *model.CvEmbedding {
	if e == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if e.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *e.DeletedAt, Valid: true}
	} else if e.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if e.UpdatedAt != nil {
		updatedAt = *e.UpdatedAt
	}

	var metadata datatypes.JSON
	if e.Metadata != nil {
		if raw, err := json.Marshal(e.Metadata); err == nil {
			metadata = raw
		}
	}

	return &model.CvEmbedding{
		Id:             e.Id,
		CandidateId:    e.CandidateId,
		Document:       e.Document,
		EmbeddingValue: pgvector.NewVector(e.EmbeddingValue),
		Metadata:       metadata,
		ChunkIndex:     e.ChunkIndex,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      updatedAt,
		DeletedAt:      deletedAt,
	}
}

func (m *CvEmbeddingMapper) ToEntities(models []*model.CvEmbedding) []*entity.CvFragment {
	entities := make([]*entity.CvFragment, len(models))
	for i, e := range models {
		entities[i] = m.ToEntity(e)
	}
	return entities
}

func (m *CvEmbeddingMapper) ToModels(fragments []*entity.CvFragment) []*model.CvEmbedding {
	models := make([]*model.CvEmbedding, len(fragments))
	for i, e := range fragments {
		models[i] = m.ToModel(e)
	}
	return models
}
