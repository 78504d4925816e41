package service

import (
	"context"
	"fmt"
	"time"

	"golang-predict-settler/internal/entity"
	"golang-predict-settler/internal/settler/repository"
	"golang-predict-settler/pkg/logger"
	"golang-predict-settler/pkg/utils"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// SessionProvisioner creates the trading-session row for each day ahead of
// the prediction window. Open and cutoff times come from cron expressions,
// which also encode the trading calendar (weekdays only, typically).
type SessionProvisioner interface {
	// EnsureSession creates today's session if the calendar has one and it
	// does not exist yet. Re-runs are no-ops.
	EnsureSession(ctx context.Context)
}

// NewSessionProvisioner creates a session provisioner from cron expressions
// for the prediction open and cutoff times.
func NewSessionProvisioner(db *gorm.DB, log *logger.Logger, openSpec, cutoffSpec string) (SessionProvisioner, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	openSchedule, err := parser.Parse(openSpec)
	if err != nil {
		return nil, fmt.Errorf("invalid session open cron %q: %w", openSpec, err)
	}
	cutoffSchedule, err := parser.Parse(cutoffSpec)
	if err != nil {
		return nil, fmt.Errorf("invalid session cutoff cron %q: %w", cutoffSpec, err)
	}
	return &sessionProvisioner{
		db:             db,
		logger:         log,
		openSchedule:   openSchedule,
		cutoffSchedule: cutoffSchedule,
	}, nil
}

type sessionProvisioner struct {
	db             *gorm.DB
	logger         *logger.Logger
	openSchedule   cron.Schedule
	cutoffSchedule cron.Schedule
}

func (p *sessionProvisioner) EnsureSession(ctx context.Context) {
	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	openAt := p.openSchedule.Next(startOfDay.Add(-time.Second))
	if !sameDay(openAt, now) {
		// Non-trading day per the calendar encoded in the cron expression.
		return
	}
	cutoffAt := p.cutoffSchedule.Next(openAt)

	tradingDay := utils.FormatTradingDay(now)
	inserted, err := repository.NewSessionRepository(p.db).Create(ctx, &entity.TradingSession{
		TradingDay:      tradingDay,
		Phase:           entity.PhasePredict,
		PredictOpenAt:   openAt,
		PredictCutoffAt: cutoffAt,
	})
	if err != nil {
		p.logger.Error("Failed to provision session", logger.ErrorField(err), logger.Field("trading_day", tradingDay))
		return
	}
	if inserted {
		p.logger.Info("Session provisioned",
			logger.Field("trading_day", tradingDay),
			logger.Field("predict_open_at", openAt),
			logger.Field("predict_cutoff_at", cutoffAt))
	}
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
