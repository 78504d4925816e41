package repository

import (
	"context"
	"errors"

	"golang-predict-settler/internal/entity"

	"gorm.io/gorm"
)

// ShortfallRepository records capped revision debits for manual
// reconciliation.
type ShortfallRepository interface {
	// Create inserts a shortfall row; replays keyed on the same ref are
	// no-ops.
	Create(ctx context.Context, shortfall *entity.ReconciliationShortfall) (inserted bool, err error)
}

// NewShortfallRepository creates a new GORM-based shortfall repository.
func NewShortfallRepository(db *gorm.DB) ShortfallRepository {
	return &shortfallRepository{db: db}
}

type shortfallRepository struct {
	db *gorm.DB
}

func (r *shortfallRepository) Create(ctx context.Context, shortfall *entity.ReconciliationShortfall) (bool, error) {
	err := r.db.WithContext(ctx).Create(shortfall).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
