package implementation

import (
	"context"

	"coverage-rag-be/internal/repository/contract"
	"coverage-rag-be/internal/repository/specification"
	"coverage-rag-be/pkg/rag/history"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExchangeHistorySourceImpl adapts the exchange repository to the history
// loader's ExchangeSource port.
type ExchangeHistorySourceImpl struct {
	repo contract.ExchangeRepository
}

var _ history.ExchangeSource = &ExchangeHistorySourceImpl{}

func NewExchangeHistorySource(db *gorm.DB) history.ExchangeSource {
	return &ExchangeHistorySourceImpl{
		repo: NewExchangeRepository(db),
	}
}

func (s *ExchangeHistorySourceImpl) RecentExchanges(ctx context.Context, sessionId uuid.UUID, limit int) ([]history.ExchangeEntry, error) {
	exchanges, err := s.repo.FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit, Offset: 0},
	)
	if err != nil {
		return nil, err
	}

	entries := make([]history.ExchangeEntry, len(exchanges))
	for i, ex := range exchanges {
		entries[i] = history.ExchangeEntry{
			Query:    ex.Query,
			Response: ex.Response,
		}
	}
	return entries, nil
}
