package entity

import (
	"time"

	"github.com/google/uuid"
)

type DocumentChunk struct {
	Id             uuid.UUID
	DocumentName   string
	PlanName       string
	Content        string
	EmbeddingValue []float32
	ChunkIndex     int
	CreatedAt      time.Time
}
