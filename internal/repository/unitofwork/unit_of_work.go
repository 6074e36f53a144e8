package unitofwork

import (
	"context"

	"coverage-rag-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ChatSessionRepository() contract.ChatSessionRepository
	ExchangeRepository() contract.ExchangeRepository
	DocumentChunkRepository() contract.DocumentChunkRepository
}
