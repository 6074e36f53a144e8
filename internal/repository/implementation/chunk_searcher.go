package implementation

import (
	"context"

	"coverage-rag-be/internal/repository/contract"
	"coverage-rag-be/pkg/search"

	"gorm.io/gorm"
)

// ChunkSearcherImpl adapts the document chunk repository to the retrieval
// gateway's ChunkSearcher port.
type ChunkSearcherImpl struct {
	repo contract.DocumentChunkRepository
}

var _ search.ChunkSearcher = &ChunkSearcherImpl{}

func NewChunkSearcher(db *gorm.DB) search.ChunkSearcher {
	return &ChunkSearcherImpl{
		repo: NewDocumentChunkRepository(db),
	}
}

func (s *ChunkSearcherImpl) SearchChunks(ctx context.Context, queryVector []float32, topK int, planFilter string) ([]search.ScoredChunk, error) {
	scored, err := s.repo.SearchSimilarWithScore(ctx, queryVector, topK, planFilter)
	if err != nil {
		return nil, err
	}

	chunks := make([]search.ScoredChunk, len(scored))
	for i, sc := range scored {
		chunks[i] = search.ScoredChunk{
			DocumentName: sc.Chunk.DocumentName,
			PlanName:     sc.Chunk.PlanName,
			Content:      sc.Chunk.Content,
			Similarity:   sc.Similarity,
		}
	}
	return chunks, nil
}
