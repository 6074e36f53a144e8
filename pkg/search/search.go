package search

import (
	"context"
	"errors"
)

// ErrUnavailable signals that the retrieval backend could not be reached.
// Callers treat this as terminal for the exchange; no retry happens here.
var ErrUnavailable = errors.New("retrieval backend unavailable")

// Query describes one retrieval request
type Query struct {
	Text         string
	Top          int
	Filter       string   // optional backend filter expression (e.g. plan name)
	SelectFields []string // optional projection, backend defaults apply when empty
}

// Result is one scored retrieval record. Ordinal position in the returned
// slice is the addressing scheme used by citation markers, so order must be
// preserved exactly as the backend returned it.
type Result struct {
	Document string                 `json:"document"`
	Content  string                 `json:"content"`
	Plan     string                 `json:"plan,omitempty"`
	Score    float64                `json:"score"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
}

// Provider defines the contract for any retrieval backend
type Provider interface {
	// Retrieve returns scored results in descending score order. A backend
	// that matches nothing yields an empty slice, not an error.
	Retrieve(ctx context.Context, query Query) ([]Result, error)
}
