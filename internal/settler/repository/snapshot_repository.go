package repository

import (
	"context"
	"errors"

	"golang-predict-settler/internal/entity"

	"gorm.io/gorm"
)

// SnapshotRepository defines operations on revisioned price snapshots.
// Snapshots are insert-only; a correction is a new, higher revision.
type SnapshotRepository interface {
	// Create inserts a snapshot row. Replays of an already-stored revision
	// return inserted=false.
	Create(ctx context.Context, snapshot *entity.PriceSnapshot) (inserted bool, err error)
	MaxRevision(ctx context.Context, asofDate, symbol string) (int, error)
	// Current returns the max-revision snapshot for (asofDate, symbol).
	Current(ctx context.Context, asofDate, symbol string) (*entity.PriceSnapshot, error)
	// CurrentForDay returns the max-revision snapshot per symbol for the day.
	CurrentForDay(ctx context.Context, asofDate string) ([]entity.PriceSnapshot, error)
}

// NewSnapshotRepository creates a new GORM-based snapshot repository.
func NewSnapshotRepository(db *gorm.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

type snapshotRepository struct {
	db *gorm.DB
}

func (r *snapshotRepository) Create(ctx context.Context, snapshot *entity.PriceSnapshot) (bool, error) {
	err := r.db.WithContext(ctx).Create(snapshot).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *snapshotRepository) MaxRevision(ctx context.Context, asofDate, symbol string) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&entity.PriceSnapshot{}).
		Where("asof_date = ? AND symbol = ?", asofDate, symbol).
		Select("MAX(revision)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *snapshotRepository) Current(ctx context.Context, asofDate, symbol string) (*entity.PriceSnapshot, error) {
	var snapshot entity.PriceSnapshot
	err := r.db.WithContext(ctx).
		Where("asof_date = ? AND symbol = ?", asofDate, symbol).
		Order("revision DESC").
		First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *snapshotRepository) CurrentForDay(ctx context.Context, asofDate string) ([]entity.PriceSnapshot, error) {
	var snapshots []entity.PriceSnapshot
	err := r.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (symbol) *
		     FROM price_snapshots
		     WHERE asof_date = ?
		     ORDER BY symbol, revision DESC`, asofDate).
		Scan(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
