package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang-predict-settler/internal/entity"
	"golang-predict-settler/internal/settler/dto"
	"golang-predict-settler/internal/settler/repository"
	"golang-predict-settler/pkg/common"
	"golang-predict-settler/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SessionService is the single authority over a trading day's phase. No
// other component re-derives time-boundary logic.
type SessionService interface {
	GetPhase(ctx context.Context, tradingDay string) (entity.SessionPhase, error)
	CanPredict(ctx context.Context, tradingDay string, now time.Time) (bool, error)
	// FlipToSettle moves the day from PREDICT to SETTLE and locks that day's
	// predictions. Concurrent calls after the first are no-ops.
	FlipToSettle(ctx context.Context, tradingDay string) error
	// FlipDueSessions flips every session past its cutoff and enqueues a
	// settlement trigger for each.
	FlipDueSessions(ctx context.Context)
}

// NewSessionService creates the session controller.
func NewSessionService(db *gorm.DB, redisClient *goredis.Client, log *logger.Logger, streamMaxLen int64) SessionService {
	return &sessionService{db: db, redisClient: redisClient, logger: log, streamMaxLen: streamMaxLen}
}

type sessionService struct {
	db           *gorm.DB
	redisClient  *goredis.Client
	logger       *logger.Logger
	streamMaxLen int64
}

func (s *sessionService) GetPhase(ctx context.Context, tradingDay string) (entity.SessionPhase, error) {
	session, err := repository.NewSessionRepository(s.db).FindByDay(ctx, tradingDay)
	if err != nil {
		return "", err
	}
	return session.Phase, nil
}

func (s *sessionService) CanPredict(ctx context.Context, tradingDay string, now time.Time) (bool, error) {
	session, err := repository.NewSessionRepository(s.db).FindByDay(ctx, tradingDay)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return session.Phase == entity.PhasePredict && now.Before(session.PredictCutoffAt), nil
}

func (s *sessionService) FlipToSettle(ctx context.Context, tradingDay string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessions := repository.NewSessionRepository(tx)

		session, err := sessions.FindByDayForUpdate(ctx, tradingDay, false)
		if err != nil {
			return err
		}
		if session.Phase == entity.PhaseSettle {
			// Someone else already flipped; confirmed no-op.
			return nil
		}
		if session.Phase != entity.PhasePredict {
			return ErrPhaseRegression
		}

		now := time.Now()
		session.Phase = entity.PhaseSettle
		session.SettledAt.Time = now
		session.SettledAt.Valid = true
		if err := sessions.Update(ctx, session); err != nil {
			return err
		}

		// Locking predictions in the same transaction enforces their
		// immutability from this point on.
		if err := repository.NewPredictionRepository(tx).LockDay(ctx, tradingDay, now); err != nil {
			return err
		}

		event, err := newDomainEvent(entity.TopicSessionFlipped, tradingDay, dto.SessionFlippedEvent{
			TradingDay: tradingDay,
			SettledAt:  now,
		})
		if err != nil {
			return err
		}
		if _, err := repository.NewOutboxRepository(tx).Create(ctx, event); err != nil {
			return err
		}
		return nil
	})
}

func (s *sessionService) FlipDueSessions(ctx context.Context) {
	due, err := repository.NewSessionRepository(s.db).FindDueForSettle(ctx, time.Now())
	if err != nil {
		s.logger.Error("Failed to find due sessions", logger.ErrorField(err))
		return
	}

	for _, session := range due {
		if err := s.FlipToSettle(ctx, session.TradingDay); err != nil {
			s.logger.Error("Failed to flip session", logger.ErrorField(err), logger.Field("trading_day", session.TradingDay))
			continue
		}
		s.logger.Info("Session flipped to SETTLE", logger.Field("trading_day", session.TradingDay))

		payload, err := json.Marshal(dto.SettleTriggerMessage{TradingDay: session.TradingDay})
		if err != nil {
			s.logger.Error("Failed to marshal settle trigger", logger.ErrorField(err))
			continue
		}
		if err := s.redisClient.XAdd(ctx, &goredis.XAddArgs{
			Stream: common.RedisStreamSettleTrigger,
			Values: map[string]interface{}{"payload": payload},
			MaxLen: s.streamMaxLen,
		}).Err(); err != nil {
			// The next flip tick finds the day already settled and the
			// manual trigger endpoint remains available, so just log.
			s.logger.Error("Failed to enqueue settle trigger", logger.ErrorField(err), logger.Field("trading_day", session.TradingDay))
		}
	}
}
