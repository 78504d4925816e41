package repository

import (
	"context"
	"errors"

	"golang-predict-settler/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettlementRepository defines operations on computed settlements.
type SettlementRepository interface {
	// Upsert overwrites the settlement for (trading_day, symbol). The outcome
	// is a pure function of the source snapshot, so the overwrite is safe.
	Upsert(ctx context.Context, settlement *entity.Settlement) error
	FindByDay(ctx context.Context, tradingDay string) ([]entity.Settlement, error)
	FindByDaySymbol(ctx context.Context, tradingDay, symbol string) (*entity.Settlement, error)
}

// NewSettlementRepository creates a new GORM-based settlement repository.
func NewSettlementRepository(db *gorm.DB) SettlementRepository {
	return &settlementRepository{db: db}
}

type settlementRepository struct {
	db *gorm.DB
}

func (r *settlementRepository) Upsert(ctx context.Context, settlement *entity.Settlement) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "trading_day"}, {Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"outcome", "close", "previous_close", "source_revision", "computed_at",
			}),
		}).
		Create(settlement).Error
}

func (r *settlementRepository) FindByDay(ctx context.Context, tradingDay string) ([]entity.Settlement, error) {
	var settlements []entity.Settlement
	err := r.db.WithContext(ctx).Where("trading_day = ?", tradingDay).Find(&settlements).Error
	if err != nil {
		return nil, err
	}
	return settlements, nil
}

func (r *settlementRepository) FindByDaySymbol(ctx context.Context, tradingDay, symbol string) (*entity.Settlement, error) {
	var settlement entity.Settlement
	err := r.db.WithContext(ctx).
		Where("trading_day = ? AND symbol = ?", tradingDay, symbol).
		First(&settlement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}
