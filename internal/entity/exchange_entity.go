package entity

import (
	"time"

	"coverage-rag-be/pkg/search"

	"github.com/google/uuid"
)

// Exchange is one query/response pair with the retrieval results that
// grounded the response. Results are immutable once attached; citations are
// recomputed from Response and Results, never stored.
type Exchange struct {
	Id            uuid.UUID
	ChatSessionId uuid.UUID
	Query         string
	Response      string
	Results       []search.Result
	Temperature   float64
	TopP          float64
	Incomplete    bool
	CreatedAt     time.Time
}
