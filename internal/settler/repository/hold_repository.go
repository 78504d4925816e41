package repository

import (
	"context"
	"errors"

	"golang-predict-settler/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HoldRepository defines operations on points holds.
type HoldRepository interface {
	// Create inserts a hold. A duplicate (ref_type, ref_id) returns
	// inserted=false.
	Create(ctx context.Context, hold *entity.Hold) (inserted bool, err error)
	FindByRef(ctx context.Context, refType entity.LedgerRefType, refID string) (*entity.Hold, error)
	FindByRefForUpdate(ctx context.Context, refType entity.LedgerRefType, refID string) (*entity.Hold, error)
	UpdateStatus(ctx context.Context, hold *entity.Hold, status entity.HoldStatus) error
}

// NewHoldRepository creates a new GORM-based hold repository.
func NewHoldRepository(db *gorm.DB) HoldRepository {
	return &holdRepository{db: db}
}

type holdRepository struct {
	db *gorm.DB
}

func (r *holdRepository) Create(ctx context.Context, hold *entity.Hold) (bool, error) {
	err := r.db.WithContext(ctx).Create(hold).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *holdRepository) FindByRef(ctx context.Context, refType entity.LedgerRefType, refID string) (*entity.Hold, error) {
	return r.findByRef(ctx, refType, refID, false)
}

func (r *holdRepository) FindByRefForUpdate(ctx context.Context, refType entity.LedgerRefType, refID string) (*entity.Hold, error) {
	return r.findByRef(ctx, refType, refID, true)
}

func (r *holdRepository) findByRef(ctx context.Context, refType entity.LedgerRefType, refID string, forUpdate bool) (*entity.Hold, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var hold entity.Hold
	err := q.Where("ref_type = ? AND ref_id = ?", refType, refID).First(&hold).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

func (r *holdRepository) UpdateStatus(ctx context.Context, hold *entity.Hold, status entity.HoldStatus) error {
	// Guard in the WHERE clause keeps terminal holds terminal even under a
	// racing update.
	res := r.db.WithContext(ctx).
		Model(hold).
		Where("status = ?", entity.HoldOpen).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	hold.Status = status
	return nil
}
