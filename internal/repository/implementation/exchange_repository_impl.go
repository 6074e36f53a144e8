package implementation

import (
	"context"
	"errors"
	"time"

	"coverage-rag-be/internal/entity"
	"coverage-rag-be/internal/mapper"
	"coverage-rag-be/internal/model"
	"coverage-rag-be/internal/repository/contract"
	"coverage-rag-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ExchangeRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewExchangeRepository(db *gorm.DB) contract.ExchangeRepository {
	return &ExchangeRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ExchangeRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ExchangeRepositoryImpl) Create(ctx context.Context, exchange *entity.Exchange) error {
	m, err := r.mapper.ExchangeToModel(exchange)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*exchange = *r.mapper.ExchangeToEntity(m)
	return nil
}

func (r *ExchangeRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Exchange, error) {
	var m model.Exchange
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ExchangeToEntity(&m), nil
}

func (r *ExchangeRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Exchange, error) {
	var models []*model.Exchange
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Exchange, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ExchangeToEntity(m)
	}
	return entities, nil
}

func (r *ExchangeRepositoryImpl) LatestCreatedAt(ctx context.Context, sessionIds []uuid.UUID) (map[uuid.UUID]time.Time, error) {
	latest := make(map[uuid.UUID]time.Time, len(sessionIds))
	if len(sessionIds) == 0 {
		return latest, nil
	}

	type row struct {
		ChatSessionId uuid.UUID
		CreatedAt     time.Time
	}
	var rows []row

	err := r.db.WithContext(ctx).
		Model(&model.Exchange{}).
		Select("chat_session_id, MAX(created_at) as created_at").
		Where("chat_session_id IN ?", sessionIds).
		Group("chat_session_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, rec := range rows {
		latest[rec.ChatSessionId] = rec.CreatedAt
	}
	return latest, nil
}

func (r *ExchangeRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.Exchange{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
