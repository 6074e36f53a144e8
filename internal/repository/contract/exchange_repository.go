package contract

import (
	"context"
	"time"

	"coverage-rag-be/internal/entity"
	"coverage-rag-be/internal/repository/specification"

	"github.com/google/uuid"
)

// ExchangeRepository is append-only: exchanges are never updated or deleted
// individually, history consistency depends on it.
type ExchangeRepository interface {
	Create(ctx context.Context, exchange *entity.Exchange) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Exchange, error)
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Exchange, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)

	// LatestCreatedAt returns the newest exchange timestamp per session,
	// omitting sessions with no exchanges. One query regardless of how
	// many sessions are asked for.
	LatestCreatedAt(ctx context.Context, sessionIds []uuid.UUID) (map[uuid.UUID]time.Time, error)
}
