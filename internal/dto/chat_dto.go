package dto

import (
	"time"

	"coverage-rag-be/pkg/rag/citation"

	"github.com/google/uuid"
)

type QueryRequest struct {
	SessionId *uuid.UUID `json:"session_id,omitempty"`
	Query     string     `json:"query" validate:"required"`
	PlanName  string     `json:"plan_name,omitempty"` // optional retrieval filter
}

type QueryResponse struct {
	SessionId  uuid.UUID           `json:"session_id"`
	ExchangeId uuid.UUID           `json:"exchange_id"`
	Response   string              `json:"response"`
	Citations  []citation.Citation `json:"citations"`
	Incomplete bool                `json:"incomplete"`
}

type CreateSessionResponse struct {
	Id uuid.UUID `json:"id"`
}

type SessionSummaryResponse struct {
	Id             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	CreatedAt      time.Time  `json:"created_at"`
	LatestExchange *time.Time `json:"latest_exchange,omitempty"`
}

type ExchangeResponse struct {
	Id         uuid.UUID           `json:"id"`
	Query      string              `json:"query"`
	Response   string              `json:"response"`
	Citations  []citation.Citation `json:"citations"`
	Incomplete bool                `json:"incomplete"`
	CreatedAt  time.Time           `json:"created_at"`
}

type ClearSessionResponse struct {
	Id uuid.UUID `json:"id"` // fresh identity for subsequent exchanges
}
