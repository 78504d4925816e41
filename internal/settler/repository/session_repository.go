package repository

import (
	"context"
	"time"

	"golang-predict-settler/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRepository defines data operations on trading sessions.
type SessionRepository interface {
	// Create inserts the session unless the trading day already has one.
	// Returns whether a row was inserted.
	Create(ctx context.Context, session *entity.TradingSession) (bool, error)
	FindByDay(ctx context.Context, tradingDay string) (*entity.TradingSession, error)
	// FindByDayForUpdate locks the session row for the duration of the
	// surrounding transaction. With nowait, a held lock returns an error
	// instead of blocking.
	FindByDayForUpdate(ctx context.Context, tradingDay string, nowait bool) (*entity.TradingSession, error)
	Update(ctx context.Context, session *entity.TradingSession) error
	FindDueForSettle(ctx context.Context, now time.Time) ([]entity.TradingSession, error)
}

// NewSessionRepository creates a new GORM-based session repository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Create(ctx context.Context, session *entity.TradingSession) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trading_day"}},
			DoNothing: true,
		}).
		Create(session)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *sessionRepository) FindByDay(ctx context.Context, tradingDay string) (*entity.TradingSession, error) {
	var session entity.TradingSession
	if err := r.db.WithContext(ctx).Where("trading_day = ?", tradingDay).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) FindByDayForUpdate(ctx context.Context, tradingDay string, nowait bool) (*entity.TradingSession, error) {
	locking := clause.Locking{Strength: "UPDATE"}
	if nowait {
		locking.Options = "NOWAIT"
	}
	var session entity.TradingSession
	if err := r.db.WithContext(ctx).Clauses(locking).Where("trading_day = ?", tradingDay).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) Update(ctx context.Context, session *entity.TradingSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

func (r *sessionRepository) FindDueForSettle(ctx context.Context, now time.Time) ([]entity.TradingSession, error) {
	var sessions []entity.TradingSession
	err := r.db.WithContext(ctx).
		Where("phase = ? AND predict_cutoff_at <= ?", entity.PhasePredict, now).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
