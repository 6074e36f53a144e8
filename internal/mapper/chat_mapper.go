package mapper

import (
	"encoding/json"
	"time"

	"coverage-rag-be/internal/entity"
	"coverage-rag-be/internal/model"
	"coverage-rag-be/pkg/search"

	"gorm.io/gorm"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Session Mappers

func (m *ChatMapper) ChatSessionToEntity(s *model.ChatSession) *entity.ChatSession {
	if s == nil {
		return nil
	}

	var deletedAt *time.Time
	if s.DeletedAt.Valid {
		t := s.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		updatedAt = &t
	}

	return &entity.ChatSession{
		Id:        s.Id,
		UserId:    s.UserId,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
		IsDeleted: s.DeletedAt.Valid,
	}
}

func (m *ChatMapper) ChatSessionToModel(s *entity.ChatSession) *model.ChatSession {
	if s == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if s.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *s.DeletedAt, Valid: true}
	} else if s.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if s.UpdatedAt != nil {
		updatedAt = *s.UpdatedAt
	}

	return &model.ChatSession{
		Id:        s.Id,
		UserId:    s.UserId,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
	}
}

// Exchange Mappers

func (m *ChatMapper) ExchangeToEntity(e *model.Exchange) *entity.Exchange {
	if e == nil {
		return nil
	}

	var results []search.Result
	if len(e.Results) > 0 {
		// A row written by this service always holds a valid result array;
		// an unreadable one degrades to no grounding rather than an error.
		_ = json.Unmarshal(e.Results, &results)
	}

	return &entity.Exchange{
		Id:            e.Id,
		ChatSessionId: e.ChatSessionId,
		Query:         e.Query,
		Response:      e.Response,
		Results:       results,
		Temperature:   e.Temperature,
		TopP:          e.TopP,
		Incomplete:    e.Incomplete,
		CreatedAt:     e.CreatedAt,
	}
}

func (m *ChatMapper) ExchangeToModel(e *entity.Exchange) (*model.Exchange, error) {
	if e == nil {
		return nil, nil
	}

	resultsJSON, err := json.Marshal(e.Results)
	if err != nil {
		return nil, err
	}

	return &model.Exchange{
		Id:            e.Id,
		ChatSessionId: e.ChatSessionId,
		Query:         e.Query,
		Response:      e.Response,
		Results:       resultsJSON,
		Temperature:   e.Temperature,
		TopP:          e.TopP,
		Incomplete:    e.Incomplete,
		CreatedAt:     e.CreatedAt,
	}, nil
}

// Chunk Mappers

func (m *ChatMapper) DocumentChunkToEntity(c *model.DocumentChunk) *entity.DocumentChunk {
	if c == nil {
		return nil
	}

	return &entity.DocumentChunk{
		Id:             c.Id,
		DocumentName:   c.DocumentName,
		PlanName:       c.PlanName,
		Content:        c.Content,
		EmbeddingValue: c.EmbeddingValue.Slice(),
		ChunkIndex:     c.ChunkIndex,
		CreatedAt:      c.CreatedAt,
	}
}
