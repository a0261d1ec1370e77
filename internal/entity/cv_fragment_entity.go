package entity

import (
	"time"

	"github.com/google/uuid"
)

// CvFragment is one embedded chunk of a candidate's CV together with the
// structured metadata extracted at ingestion time.
type CvFragment struct {
	Id             uuid.UUID
	CandidateId    string
	Document       string
	EmbeddingValue []float32
	Metadata       map[string]interface{}
	ChunkIndex     int
	CreatedAt      time.Time
	UpdatedAt      *time.Time
	DeletedAt      *time.Time
	IsDeleted      bool
}
