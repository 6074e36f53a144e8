package contract

import (
	"context"

	"coverage-rag-be/internal/entity"
	"coverage-rag-be/internal/repository/specification"
)

// ScoredDocumentChunk pairs a chunk with its cosine similarity to a query vector
type ScoredDocumentChunk struct {
	Chunk      *entity.DocumentChunk
	Similarity float64
}

type DocumentChunkRepository interface {
	CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error
	DeleteByDocumentName(ctx context.Context, documentName string) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DocumentChunk, error)

	// SearchSimilarWithScore returns the topK chunks nearest to the query
	// vector in descending similarity order. planFilter narrows the scan to
	// one plan when non-empty.
	SearchSimilarWithScore(ctx context.Context, queryVector []float32, topK int, planFilter string) ([]*ScoredDocumentChunk, error)
}
