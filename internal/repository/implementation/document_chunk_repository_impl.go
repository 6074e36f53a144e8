package implementation

import (
	"context"

	"coverage-rag-be/internal/entity"
	"coverage-rag-be/internal/mapper"
	"coverage-rag-be/internal/model"
	"coverage-rag-be/internal/repository/contract"
	"coverage-rag-be/internal/repository/specification"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type DocumentChunkRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewDocumentChunkRepository(db *gorm.DB) contract.DocumentChunkRepository {
	return &DocumentChunkRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *DocumentChunkRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *DocumentChunkRepositoryImpl) CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error {
	models := make([]*model.DocumentChunk, len(chunks))
	for i, c := range chunks {
		models[i] = &model.DocumentChunk{
			Id:             c.Id,
			DocumentName:   c.DocumentName,
			PlanName:       c.PlanName,
			Content:        c.Content,
			EmbeddingValue: pgvector.NewVector(c.EmbeddingValue),
			ChunkIndex:     c.ChunkIndex,
			CreatedAt:      c.CreatedAt,
		}
	}

	if err := r.db.WithContext(ctx).Create(models).Error; err != nil {
		return err
	}

	for i, m := range models {
		*chunks[i] = *r.mapper.DocumentChunkToEntity(m)
	}
	return nil
}

func (r *DocumentChunkRepositoryImpl) DeleteByDocumentName(ctx context.Context, documentName string) error {
	return r.db.WithContext(ctx).Where("document_name = ?", documentName).Delete(&model.DocumentChunk{}).Error
}

func (r *DocumentChunkRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DocumentChunk, error) {
	var models []*model.DocumentChunk
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.DocumentChunk, len(models))
	for i, m := range models {
		entities[i] = r.mapper.DocumentChunkToEntity(m)
	}
	return entities, nil
}

// SearchSimilarWithScore runs a cosine similarity scan over document_chunks.
// pgvector's <=> operator yields cosine distance, so similarity = 1 - distance.
func (r *DocumentChunkRepositoryImpl) SearchSimilarWithScore(ctx context.Context, queryVector []float32, topK int, planFilter string) ([]*contract.ScoredDocumentChunk, error) {
	if topK <= 0 {
		topK = 5
	}

	type row struct {
		model.DocumentChunk
		Similarity float64
	}
	var rows []row

	vec := pgvector.NewVector(queryVector)

	query := r.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.*, 1 - (embedding_value <=> ?) as similarity", vec)

	if planFilter != "" {
		query = query.Where("plan_name = ?", planFilter)
	}

	err := query.
		Order("similarity DESC").
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*contract.ScoredDocumentChunk, len(rows))
	for i, res := range rows {
		scored[i] = &contract.ScoredDocumentChunk{
			Chunk:      r.mapper.DocumentChunkToEntity(&res.DocumentChunk),
			Similarity: res.Similarity,
		}
	}
	return scored, nil
}
