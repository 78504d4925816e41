package repository

import (
	"context"
	"errors"

	"golang-predict-settler/internal/entity"

	"gorm.io/gorm"
)

// LedgerRepository defines append-only operations on the ledger. There are
// no update or delete operations; the (ref_type, ref_id) unique index is the
// sole idempotency primitive.
type LedgerRepository interface {
	// Create appends an entry. A duplicate (ref_type, ref_id) returns
	// inserted=false and leaves the ledger untouched.
	Create(ctx context.Context, entry *entity.LedgerEntry) (inserted bool, err error)
	FindByRef(ctx context.Context, refType entity.LedgerRefType, refID string) (*entity.LedgerEntry, error)
	// LastEntry returns the most recent entry for a user, or nil.
	LastEntry(ctx context.Context, userID uint64) (*entity.LedgerEntry, error)
	// AcquireUserLock serializes same-user appends for the surrounding
	// transaction so balance_after stays a correct running sum.
	AcquireUserLock(ctx context.Context, userID uint64) error
}

// NewLedgerRepository creates a new GORM-based ledger repository.
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

type ledgerRepository struct {
	db *gorm.DB
}

func (r *ledgerRepository) Create(ctx context.Context, entry *entity.LedgerEntry) (bool, error) {
	err := r.db.WithContext(ctx).Create(entry).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *ledgerRepository) FindByRef(ctx context.Context, refType entity.LedgerRefType, refID string) (*entity.LedgerEntry, error) {
	var entry entity.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("ref_type = ? AND ref_id = ?", refType, refID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *ledgerRepository) LastEntry(ctx context.Context, userID uint64) (*entity.LedgerEntry, error) {
	var entry entity.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *ledgerRepository) AcquireUserLock(ctx context.Context, userID uint64) error {
	// Transaction-scoped advisory lock, released automatically on commit or
	// rollback.
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", int64(userID)).Error
}
