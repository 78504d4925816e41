package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang-predict-settler/internal/entity"
	"golang-predict-settler/internal/settler/dto"
	"golang-predict-settler/pkg/common"
	"golang-predict-settler/pkg/logger"

	gocache "github.com/patrickmn/go-cache"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SettlementService converts the day's current price snapshots into
// per-symbol outcomes.
type SettlementService interface {
	// Settle computes and upserts outcomes for every symbol in the day's
	// universe, then fans out one award trigger per predicting user. Safe to
	// re-run: the outcome is a pure function of the max-revision snapshots.
	Settle(ctx context.Context, tradingDay string) error
	// ProcessTrigger consumes one settlement trigger from the stream.
	ProcessTrigger(ctx context.Context)
}

// NewSettlementService creates the settlement engine.
func NewSettlementService(db *gorm.DB, redisClient *goredis.Client, log *logger.Logger, streamMaxLen int64) SettlementService {
	return &settlementService{
		db:            db,
		redisClient:   redisClient,
		logger:        log,
		streamMaxLen:  streamMaxLen,
		universeCache: gocache.New(12*time.Hour, time.Hour),
		repos:         gormRepos,
		runTx:         gormTxRunner(db),
	}
}

type settlementService struct {
	db           *gorm.DB
	redisClient  *goredis.Client
	logger       *logger.Logger
	streamMaxLen int64
	// The universe is immutable once the picker writes it, so a cache hit
	// can never be stale.
	universeCache *gocache.Cache
	repos         repoFactory
	runTx         txRunner
}

// ComputeOutcome applies the outcome rule: UP if close rose, DOWN if it
// fell, VOID when unchanged or when the snapshot is missing.
func ComputeOutcome(snapshot *entity.PriceSnapshot) entity.SettlementOutcome {
	if snapshot == nil {
		return entity.OutcomeVoid
	}
	switch {
	case snapshot.Close > snapshot.PreviousClose:
		return entity.OutcomeUp
	case snapshot.Close < snapshot.PreviousClose:
		return entity.OutcomeDown
	default:
		return entity.OutcomeVoid
	}
}

func (s *settlementService) ProcessTrigger(ctx context.Context) {
	msg, msgID, ok := readStreamMessage(ctx, s.redisClient, common.RedisStreamSettleTrigger, s.logger)
	if !ok {
		return
	}

	var trigger dto.SettleTriggerMessage
	if err := json.Unmarshal(msg, &trigger); err != nil {
		s.logger.Error("Failed to unmarshal settle trigger", logger.ErrorField(err), logger.Field("message_id", msgID))
		ackStreamMessage(ctx, s.redisClient, common.RedisStreamSettleTrigger, msgID, s.logger)
		return
	}

	if err := s.Settle(ctx, trigger.TradingDay); err != nil {
		// Left unacked; the stream redelivers and idempotency makes the
		// retry safe.
		s.logger.Error("Settlement failed", logger.ErrorField(err), logger.Field("trading_day", trigger.TradingDay))
		return
	}
	ackStreamMessage(ctx, s.redisClient, common.RedisStreamSettleTrigger, msgID, s.logger)
}

func (s *settlementService) Settle(ctx context.Context, tradingDay string) error {
	symbols, err := s.universeSymbols(ctx, tradingDay)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		s.logger.Warn("No universe for trading day, nothing to settle", logger.Field("trading_day", tradingDay))
		return nil
	}

	err = s.runTx(ctx, func(tx *gorm.DB) error {
		r := s.repos(tx)
		// The session row lock serializes concurrent settlement runs for the
		// same day. NOWAIT turns contention into "already running".
		session, err := r.sessions.FindByDayForUpdate(ctx, tradingDay, true)
		if err != nil {
			if isLockNotAvailable(err) {
				return errAlreadyRunning
			}
			return err
		}
		if session.Phase != entity.PhaseSettle {
			return fmt.Errorf("session %s is still in %s phase", tradingDay, session.Phase)
		}

		snapshots, err := r.snapshots.CurrentForDay(ctx, tradingDay)
		if err != nil {
			return err
		}
		bySymbol := make(map[string]*entity.PriceSnapshot, len(snapshots))
		for i := range snapshots {
			bySymbol[snapshots[i].Symbol] = &snapshots[i]
		}

		now := time.Now()
		outcomes := make([]dto.SymbolOutcome, 0, len(symbols))
		for _, symbol := range symbols {
			snapshot := bySymbol[symbol]
			settlement := &entity.Settlement{
				TradingDay: tradingDay,
				Symbol:     symbol,
				Outcome:    ComputeOutcome(snapshot),
				ComputedAt: now,
			}
			if snapshot != nil {
				settlement.Close = snapshot.Close
				settlement.PreviousClose = snapshot.PreviousClose
				settlement.SourceRevision = snapshot.Revision
			}
			if err := r.settlements.Upsert(ctx, settlement); err != nil {
				return err
			}
			outcomes = append(outcomes, dto.SymbolOutcome{
				Symbol:         symbol,
				Outcome:        string(settlement.Outcome),
				SourceRevision: settlement.SourceRevision,
			})
		}

		eventKey := settlementEventKey(tradingDay, outcomes)
		event, err := newDomainEvent(entity.TopicSettlementComputed, eventKey, dto.SettlementComputedEvent{
			TradingDay: tradingDay,
			Outcomes:   outcomes,
			ComputedAt: now,
		})
		if err != nil {
			return err
		}
		if _, err := r.outbox.Create(ctx, event); err != nil {
			return err
		}
		return nil
	})
	if errors.Is(err, errAlreadyRunning) {
		s.logger.Info("Settlement already running, skipping", logger.Field("trading_day", tradingDay))
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Unknown trading day: retrying can never succeed, so the trigger
		// is dropped instead of redelivering forever.
		s.logger.Warn("No session for trading day, dropping settle trigger", logger.Field("trading_day", tradingDay))
		return nil
	}
	if err != nil {
		return err
	}

	return s.enqueueAwards(ctx, tradingDay)
}

// enqueueAwards fans out one trigger per distinct predicting user, not per
// prediction, to bound the message volume.
func (s *settlementService) enqueueAwards(ctx context.Context, tradingDay string) error {
	userIDs, err := s.repos(s.db).predictions.DistinctUserIDs(ctx, tradingDay)
	if err != nil {
		return err
	}
	for _, userID := range userIDs {
		payload, err := json.Marshal(dto.PointsAwardMessage{UserID: userID, TradingDay: tradingDay})
		if err != nil {
			return err
		}
		if err := s.redisClient.XAdd(ctx, &goredis.XAddArgs{
			Stream: common.RedisStreamPointsAward,
			Values: map[string]interface{}{"payload": payload},
			MaxLen: s.streamMaxLen,
		}).Err(); err != nil {
			return fmt.Errorf("failed to enqueue award trigger for user %d: %w", userID, err)
		}
	}
	s.logger.Info("Award triggers enqueued",
		logger.Field("trading_day", tradingDay),
		logger.IntField("users", len(userIDs)))
	return nil
}

func (s *settlementService) universeSymbols(ctx context.Context, tradingDay string) ([]string, error) {
	if cached, found := s.universeCache.Get(tradingDay); found {
		return cached.([]string), nil
	}
	symbols, err := s.repos(s.db).universe.SymbolsForDay(ctx, tradingDay)
	if err != nil {
		return nil, err
	}
	if len(symbols) > 0 {
		s.universeCache.Set(tradingDay, symbols, gocache.DefaultExpiration)
	}
	return symbols, nil
}

// settlementEventKey changes only when a source revision changes, so a
// plain re-run emits no second event while a revision-driven recompute does.
func settlementEventKey(tradingDay string, outcomes []dto.SymbolOutcome) string {
	parts := make([]string, 0, len(outcomes)+1)
	parts = append(parts, tradingDay)
	for _, o := range outcomes {
		parts = append(parts, fmt.Sprintf("%s@%d", o.Symbol, o.SourceRevision))
	}
	return strings.Join(parts, ",")
}

// isLockNotAvailable matches Postgres error 55P03 raised by FOR UPDATE
// NOWAIT on a held lock.
func isLockNotAvailable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "55P03")
}
