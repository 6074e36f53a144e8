package search

import (
	"context"
	"fmt"

	"coverage-rag-be/pkg/embedding"
)

// ScoredChunk is one vector-search hit with its cosine similarity to the
// query vector.
type ScoredChunk struct {
	DocumentName string
	PlanName     string
	Content      string
	Similarity   float64
}

// ChunkSearcher runs a similarity scan over stored document chunks. The
// storage layer implements it; this package only consumes results.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, queryVector []float32, topK int, planFilter string) ([]ScoredChunk, error)
}

// LocalProvider retrieves over a locally stored chunk index. It embeds the
// query itself instead of calling an external search service.
type LocalProvider struct {
	searcher          ChunkSearcher
	embeddingProvider embedding.EmbeddingProvider
}

var _ Provider = &LocalProvider{}

func NewLocalProvider(searcher ChunkSearcher, embeddingProvider embedding.EmbeddingProvider) *LocalProvider {
	return &LocalProvider{
		searcher:          searcher,
		embeddingProvider: embeddingProvider,
	}
}

func (p *LocalProvider) Retrieve(ctx context.Context, query Query) ([]Result, error) {
	embeddingRes, err := p.embeddingProvider.Generate(query.Text, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("%w: embedding generation failed: %v", ErrUnavailable, err)
	}

	scored, err := p.searcher.SearchChunks(ctx, embeddingRes.Embedding.Values, query.Top, query.Filter)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]Result, 0, len(scored))
	for _, s := range scored {
		results = append(results, Result{
			Document: s.DocumentName,
			Content:  s.Content,
			Plan:     s.PlanName,
			Score:    s.Similarity,
		})
	}

	return results, nil
}
