package repository

import (
	"context"
	"errors"

	"golang-predict-settler/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RewardRepository defines operations on reward inventory.
type RewardRepository interface {
	FindBySKU(ctx context.Context, sku string) (*entity.RewardItem, error)
	FindBySKUForUpdate(ctx context.Context, sku string) (*entity.RewardItem, error)
	Save(ctx context.Context, item *entity.RewardItem) error
}

// NewRewardRepository creates a new GORM-based reward repository.
func NewRewardRepository(db *gorm.DB) RewardRepository {
	return &rewardRepository{db: db}
}

type rewardRepository struct {
	db *gorm.DB
}

func (r *rewardRepository) FindBySKU(ctx context.Context, sku string) (*entity.RewardItem, error) {
	return r.findBySKU(ctx, sku, false)
}

func (r *rewardRepository) FindBySKUForUpdate(ctx context.Context, sku string) (*entity.RewardItem, error) {
	return r.findBySKU(ctx, sku, true)
}

func (r *rewardRepository) findBySKU(ctx context.Context, sku string, forUpdate bool) (*entity.RewardItem, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var item entity.RewardItem
	err := q.Where("sku = ?", sku).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *rewardRepository) Save(ctx context.Context, item *entity.RewardItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}
