package repository

import (
	"context"

	"golang-predict-settler/internal/entity"

	"gorm.io/gorm"
)

// UniverseRepository reads the day's symbol universe selected by the
// external picker.
type UniverseRepository interface {
	SymbolsForDay(ctx context.Context, tradingDay string) ([]string, error)
}

// NewUniverseRepository creates a new GORM-based universe repository.
func NewUniverseRepository(db *gorm.DB) UniverseRepository {
	return &universeRepository{db: db}
}

type universeRepository struct {
	db *gorm.DB
}

func (r *universeRepository) SymbolsForDay(ctx context.Context, tradingDay string) ([]string, error) {
	var symbols []string
	err := r.db.WithContext(ctx).
		Model(&entity.UniverseSymbol{}).
		Where("trading_day = ?", tradingDay).
		Order("symbol ASC").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, err
	}
	return symbols, nil
}
