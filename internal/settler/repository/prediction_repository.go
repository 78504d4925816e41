package repository

import (
	"context"
	"time"

	"golang-predict-settler/internal/entity"

	"gorm.io/gorm"
)

// PredictionRepository defines read/lock operations on predictions. The
// engine never creates predictions; submission belongs to the API layer.
type PredictionRepository interface {
	// LockDay stamps locked_at on every unlocked prediction for the day.
	LockDay(ctx context.Context, tradingDay string, lockedAt time.Time) error
	FindLockedForUser(ctx context.Context, tradingDay string, userID uint64) ([]entity.Prediction, error)
	FindLockedForSymbol(ctx context.Context, tradingDay, symbol string) ([]entity.Prediction, error)
	DistinctUserIDs(ctx context.Context, tradingDay string) ([]uint64, error)
}

// NewPredictionRepository creates a new GORM-based prediction repository.
func NewPredictionRepository(db *gorm.DB) PredictionRepository {
	return &predictionRepository{db: db}
}

type predictionRepository struct {
	db *gorm.DB
}

func (r *predictionRepository) LockDay(ctx context.Context, tradingDay string, lockedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.Prediction{}).
		Where("trading_day = ? AND locked_at IS NULL", tradingDay).
		Update("locked_at", lockedAt).Error
}

func (r *predictionRepository) FindLockedForUser(ctx context.Context, tradingDay string, userID uint64) ([]entity.Prediction, error) {
	var predictions []entity.Prediction
	err := r.db.WithContext(ctx).
		Where("trading_day = ? AND user_id = ? AND locked_at IS NOT NULL", tradingDay, userID).
		Find(&predictions).Error
	if err != nil {
		return nil, err
	}
	return predictions, nil
}

func (r *predictionRepository) FindLockedForSymbol(ctx context.Context, tradingDay, symbol string) ([]entity.Prediction, error) {
	var predictions []entity.Prediction
	err := r.db.WithContext(ctx).
		Where("trading_day = ? AND symbol = ? AND locked_at IS NOT NULL", tradingDay, symbol).
		Find(&predictions).Error
	if err != nil {
		return nil, err
	}
	return predictions, nil
}

func (r *predictionRepository) DistinctUserIDs(ctx context.Context, tradingDay string) ([]uint64, error) {
	var userIDs []uint64
	err := r.db.WithContext(ctx).
		Model(&entity.Prediction{}).
		Where("trading_day = ? AND locked_at IS NOT NULL", tradingDay).
		Distinct("user_id").
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}
