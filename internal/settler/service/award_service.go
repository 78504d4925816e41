package service

import (
	"context"
	"encoding/json"
	"fmt"

	"golang-predict-settler/internal/entity"
	"golang-predict-settler/internal/settler/dto"
	"golang-predict-settler/pkg/common"
	"golang-predict-settler/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// AwardService joins a user's locked predictions against settlements and
// credits wins. The deterministic ref makes redelivered triggers no-ops.
type AwardService interface {
	Award(ctx context.Context, userID uint64, tradingDay string) error
	// ProcessTask consumes one award trigger from the stream.
	ProcessTask(ctx context.Context)
}

// NewAwardService creates the points award worker.
func NewAwardService(db *gorm.DB, redisClient *goredis.Client, ledger LedgerService, log *logger.Logger, rewardPerWin int64) AwardService {
	return &awardService{
		db:           db,
		redisClient:  redisClient,
		ledger:       ledger,
		logger:       log,
		rewardPerWin: rewardPerWin,
		repos:        gormRepos,
		runTx:        gormTxRunner(db),
	}
}

type awardService struct {
	db           *gorm.DB
	redisClient  *goredis.Client
	ledger       LedgerService
	logger       *logger.Logger
	rewardPerWin int64
	repos        repoFactory
	runTx        txRunner
}

// AwardRefID derives the idempotency key for a user's award on a day.
func AwardRefID(userID uint64, tradingDay string) string {
	return fmt.Sprintf("%d:%s", userID, tradingDay)
}

// CountWins counts locked predictions matching their symbol's outcome.
// VOID settlements never count.
func CountWins(predictions []entity.Prediction, settlements map[string]entity.SettlementOutcome) int {
	wins := 0
	for _, prediction := range predictions {
		outcome, ok := settlements[prediction.Symbol]
		if !ok {
			continue
		}
		if Classify(prediction.Choice, outcome) == ClassWin {
			wins++
		}
	}
	return wins
}

func (s *awardService) ProcessTask(ctx context.Context) {
	msg, msgID, ok := readStreamMessage(ctx, s.redisClient, common.RedisStreamPointsAward, s.logger)
	if !ok {
		return
	}

	var trigger dto.PointsAwardMessage
	if err := json.Unmarshal(msg, &trigger); err != nil {
		s.logger.Error("Failed to unmarshal award trigger", logger.ErrorField(err), logger.Field("message_id", msgID))
		ackStreamMessage(ctx, s.redisClient, common.RedisStreamPointsAward, msgID, s.logger)
		return
	}

	if err := s.Award(ctx, trigger.UserID, trigger.TradingDay); err != nil {
		s.logger.Error("Award failed", logger.ErrorField(err),
			logger.Field("user_id", trigger.UserID), logger.Field("trading_day", trigger.TradingDay))
		return
	}
	ackStreamMessage(ctx, s.redisClient, common.RedisStreamPointsAward, msgID, s.logger)
}

func (s *awardService) Award(ctx context.Context, userID uint64, tradingDay string) error {
	return s.runTx(ctx, func(tx *gorm.DB) error {
		r := s.repos(tx)

		refID := AwardRefID(userID, tradingDay)
		existing, err := r.ledger.FindByRef(ctx, entity.RefTypeSettlement, refID)
		if err != nil {
			return err
		}
		if existing != nil {
			// Redelivered trigger. A revision may have flipped outcomes since
			// the award was written, so recomputing here could disagree with
			// the stored entry; revision compensation owns any adjustment.
			return nil
		}

		predictions, err := r.predictions.FindLockedForUser(ctx, tradingDay, userID)
		if err != nil {
			return err
		}
		if len(predictions) == 0 {
			return nil
		}

		rows, err := r.settlements.FindByDay(ctx, tradingDay)
		if err != nil {
			return err
		}
		outcomes := make(map[string]entity.SettlementOutcome, len(rows))
		for _, row := range rows {
			outcomes[row.Symbol] = row.Outcome
		}

		wins := CountWins(predictions, outcomes)
		if wins == 0 {
			// No entry at all: the ledger stays dense with meaningful events.
			return nil
		}

		total := int64(wins) * s.rewardPerWin
		result, err := s.ledger.CreditTx(ctx, tx, userID, total, entity.ReasonPointsAward, entity.RefTypeSettlement, refID)
		if err != nil {
			return err
		}
		if !result.Inserted {
			return nil
		}

		s.logger.Info("Points credited",
			logger.Field("user_id", userID),
			logger.Field("trading_day", tradingDay),
			logger.IntField("wins", wins),
			logger.Field("delta", total))

		event, err := newDomainEvent(entity.TopicPointsCredited, refID, dto.PointsCreditedEvent{
			UserID:       userID,
			TradingDay:   tradingDay,
			Delta:        total,
			BalanceAfter: result.BalanceAfter,
			RefID:        refID,
		})
		if err != nil {
			return err
		}
		if _, err := r.outbox.Create(ctx, event); err != nil {
			return err
		}
		return nil
	})
}
