package repository

import (
	"context"
	"errors"

	"golang-predict-settler/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SagaRepository defines operations on redemption sagas.
type SagaRepository interface {
	// Create inserts a saga row. A duplicate id returns inserted=false, which
	// callers treat as a redelivered request.
	Create(ctx context.Context, saga *entity.RedemptionSaga) (inserted bool, err error)
	FindByID(ctx context.Context, id string) (*entity.RedemptionSaga, error)
	FindByIDForUpdate(ctx context.Context, id string) (*entity.RedemptionSaga, error)
	Update(ctx context.Context, saga *entity.RedemptionSaga) error
}

// NewSagaRepository creates a new GORM-based saga repository.
func NewSagaRepository(db *gorm.DB) SagaRepository {
	return &sagaRepository{db: db}
}

type sagaRepository struct {
	db *gorm.DB
}

func (r *sagaRepository) Create(ctx context.Context, saga *entity.RedemptionSaga) (bool, error) {
	err := r.db.WithContext(ctx).Create(saga).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *sagaRepository) FindByID(ctx context.Context, id string) (*entity.RedemptionSaga, error) {
	return r.findByID(ctx, id, false)
}

func (r *sagaRepository) FindByIDForUpdate(ctx context.Context, id string) (*entity.RedemptionSaga, error) {
	return r.findByID(ctx, id, true)
}

func (r *sagaRepository) findByID(ctx context.Context, id string, forUpdate bool) (*entity.RedemptionSaga, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var saga entity.RedemptionSaga
	err := q.Where("id = ?", id).First(&saga).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &saga, nil
}

func (r *sagaRepository) Update(ctx context.Context, saga *entity.RedemptionSaga) error {
	return r.db.WithContext(ctx).Save(saga).Error
}
