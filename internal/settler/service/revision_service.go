package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang-predict-settler/internal/entity"
	"golang-predict-settler/internal/settler/dto"
	"golang-predict-settler/pkg/common"
	"golang-predict-settler/pkg/logger"
	"golang-predict-settler/pkg/telegram"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// RevisionService absorbs corrected or late price data. It inserts the new
// snapshot revision, recomputes the affected settlement and emits
// compensating ledger entries for users whose win/loss classification
// changed. This is the only path producing negative deltas against prior
// wins.
type RevisionService interface {
	HandleSnapshot(ctx context.Context, snapshot entity.PriceSnapshot) error
}

// NewRevisionService creates the revision handler.
func NewRevisionService(db *gorm.DB, redisClient *goredis.Client, ledger LedgerService, log *logger.Logger, notifier telegram.Notifier, rewardPerWin, streamMaxLen int64) RevisionService {
	return &revisionService{
		db:           db,
		redisClient:  redisClient,
		ledger:       ledger,
		logger:       log,
		notifier:     notifier,
		rewardPerWin: rewardPerWin,
		streamMaxLen: streamMaxLen,
		repos:        gormRepos,
		runTx:        gormTxRunner(db),
	}
}

type revisionService struct {
	db           *gorm.DB
	redisClient  *goredis.Client
	ledger       LedgerService
	logger       *logger.Logger
	notifier     telegram.Notifier
	rewardPerWin int64
	streamMaxLen int64
	repos        repoFactory
	runTx        txRunner
}

// Classification is a prediction's result against an outcome.
type Classification int

const (
	ClassVoid Classification = iota
	ClassWin
	ClassLoss
)

// Classify maps a prediction choice and a settlement outcome to a result.
func Classify(choice entity.PredictionChoice, outcome entity.SettlementOutcome) Classification {
	if outcome == entity.OutcomeVoid {
		return ClassVoid
	}
	if string(choice) == string(outcome) {
		return ClassWin
	}
	return ClassLoss
}

// CompensationDelta is the ledger adjustment owed to a previously awarded
// user whose classification changed from oldOutcome to newOutcome on one
// symbol. Zero means no adjustment.
func CompensationDelta(choice entity.PredictionChoice, oldOutcome, newOutcome entity.SettlementOutcome, reward int64) int64 {
	oldClass := Classify(choice, oldOutcome)
	newClass := Classify(choice, newOutcome)
	if oldClass == newClass {
		return 0
	}
	switch {
	case newClass == ClassWin:
		return reward
	case oldClass == ClassWin:
		return -reward
	default:
		// Loss <-> void: neither was credited.
		return 0
	}
}

// CapDebit caps a debit at the available balance. Returns the delta to
// apply and the uncollectable shortfall.
func CapDebit(delta, balance int64) (applied, shortfall int64) {
	if delta >= 0 || -delta <= balance {
		return delta, 0
	}
	return -balance, -delta - balance
}

// RevisionRefID derives the idempotency key for a compensation entry.
// Revisions are monotonic per (date, symbol), so the symbol is part of the
// key: two symbols on the same day routinely share a revision number and
// each owes its own compensation.
func RevisionRefID(userID uint64, tradingDay, symbol string, revision int) string {
	return fmt.Sprintf("%d:%s:%s:rev%d", userID, tradingDay, symbol, revision)
}

func (s *revisionService) HandleSnapshot(ctx context.Context, snapshot entity.PriceSnapshot) error {
	snapshots := s.repos(s.db).snapshots

	maxRev, err := snapshots.MaxRevision(ctx, snapshot.AsOfDate, snapshot.Symbol)
	if err != nil {
		return err
	}
	if snapshot.Revision <= maxRev {
		// Replay or out-of-order old revision; keep it for audit, current
		// data is unaffected.
		if _, err := snapshots.Create(ctx, &snapshot); err != nil {
			return err
		}
		s.logger.Info("Snapshot revision not newer than stored max, no recompute",
			logger.Field("symbol", snapshot.Symbol),
			logger.IntField("revision", snapshot.Revision),
			logger.IntField("max_revision", maxRev))
		return nil
	}

	var reRunAwards []uint64
	err = s.runTx(ctx, func(tx *gorm.DB) error {
		reRunAwards = nil
		r := s.repos(tx)

		// Serialize against the settlement engine for this day.
		session, err := r.sessions.FindByDayForUpdate(ctx, snapshot.AsOfDate, false)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			session = nil
		} else if err != nil {
			return err
		}

		// The pre-check above ran before the session lock; a concurrent
		// newer revision may have committed in between. Re-read the stored
		// max under the lock so the recompute can never regress the
		// settlement to older data.
		lockedMax, err := r.snapshots.MaxRevision(ctx, snapshot.AsOfDate, snapshot.Symbol)
		if err != nil {
			return err
		}
		if snapshot.Revision <= lockedMax {
			if _, err := r.snapshots.Create(ctx, &snapshot); err != nil {
				return err
			}
			s.logger.Info("Snapshot lost the revision race, no recompute",
				logger.Field("symbol", snapshot.Symbol),
				logger.IntField("revision", snapshot.Revision),
				logger.IntField("max_revision", lockedMax))
			return nil
		}

		if _, err := r.snapshots.Create(ctx, &snapshot); err != nil {
			return err
		}

		if session == nil || session.Phase != entity.PhaseSettle {
			// Not settled yet; the settlement run will read the max revision
			// when it happens.
			return nil
		}

		old, err := r.settlements.FindByDaySymbol(ctx, snapshot.AsOfDate, snapshot.Symbol)
		if err != nil {
			return err
		}
		if old == nil {
			// Symbol outside the settled universe.
			return nil
		}

		newOutcome := ComputeOutcome(&snapshot)
		if err := r.settlements.Upsert(ctx, &entity.Settlement{
			TradingDay:     snapshot.AsOfDate,
			Symbol:         snapshot.Symbol,
			Outcome:        newOutcome,
			Close:          snapshot.Close,
			PreviousClose:  snapshot.PreviousClose,
			SourceRevision: snapshot.Revision,
			ComputedAt:     time.Now(),
		}); err != nil {
			return err
		}
		if newOutcome == old.Outcome {
			return nil
		}

		s.logger.Info("Revision flipped outcome",
			logger.Field("trading_day", snapshot.AsOfDate),
			logger.Field("symbol", snapshot.Symbol),
			logger.Field("old", old.Outcome),
			logger.Field("new", newOutcome),
			logger.IntField("revision", snapshot.Revision))

		predictions, err := r.predictions.FindLockedForSymbol(ctx, snapshot.AsOfDate, snapshot.Symbol)
		if err != nil {
			return err
		}
		for _, prediction := range predictions {
			rerun, err := s.compensateUser(ctx, tx, prediction, old.Outcome, newOutcome, snapshot.Revision)
			if err != nil {
				return err
			}
			if rerun {
				reRunAwards = append(reRunAwards, prediction.UserID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Users never awarded for this day are settled by a fresh award run
	// against the corrected settlements.
	for _, userID := range reRunAwards {
		payload, err := json.Marshal(dto.PointsAwardMessage{UserID: userID, TradingDay: snapshot.AsOfDate})
		if err != nil {
			return err
		}
		if err := s.redisClient.XAdd(ctx, &goredis.XAddArgs{
			Stream: common.RedisStreamPointsAward,
			Values: map[string]interface{}{"payload": payload},
			MaxLen: s.streamMaxLen,
		}).Err(); err != nil {
			return fmt.Errorf("failed to re-enqueue award for user %d: %w", userID, err)
		}
	}
	return nil
}

// compensateUser adjusts one previously awarded user, or reports that the
// user's award should simply be (re)computed because no award entry exists
// yet.
func (s *revisionService) compensateUser(ctx context.Context, tx *gorm.DB, prediction entity.Prediction, oldOutcome, newOutcome entity.SettlementOutcome, revision int) (reRunAward bool, err error) {
	delta := CompensationDelta(prediction.Choice, oldOutcome, newOutcome, s.rewardPerWin)
	if delta == 0 {
		return false, nil
	}

	r := s.repos(tx)
	awarded, err := r.ledger.FindByRef(ctx, entity.RefTypeSettlement, AwardRefID(prediction.UserID, prediction.TradingDay))
	if err != nil {
		return false, err
	}
	if awarded == nil {
		return true, nil
	}

	refID := RevisionRefID(prediction.UserID, prediction.TradingDay, prediction.Symbol, revision)

	var shortfall int64
	if delta < 0 {
		balance, err := balanceFrom(ctx, r.ledger, prediction.UserID)
		if err != nil {
			return false, err
		}
		delta, shortfall = CapDebit(delta, balance)
		if shortfall > 0 {
			if err := s.recordShortfall(ctx, tx, prediction, refID, delta, shortfall); err != nil {
				return false, err
			}
		}
		if delta == 0 {
			// Entire debit uncollectable; the shortfall row carries it.
			return false, nil
		}
	}

	result, err := s.ledger.CreditTx(ctx, tx, prediction.UserID, delta, entity.ReasonRevisionAdjust, entity.RefTypeRevision, refID)
	if err != nil {
		return false, err
	}
	if !result.Inserted {
		// Redelivered revision; the compensation already exists.
		return false, nil
	}

	topic := entity.TopicPointsCredited
	if delta < 0 {
		topic = entity.TopicPointsReversed
	}
	event, err := newDomainEvent(topic, refID, dto.PointsReversedEvent{
		UserID:     prediction.UserID,
		TradingDay: prediction.TradingDay,
		Delta:      delta,
		Shortfall:  shortfall,
		Revision:   revision,
		RefID:      refID,
	})
	if err != nil {
		return false, err
	}
	if _, err := r.outbox.Create(ctx, event); err != nil {
		return false, err
	}
	return false, nil
}

func (s *revisionService) recordShortfall(ctx context.Context, tx *gorm.DB, prediction entity.Prediction, refID string, applied, shortfall int64) error {
	inserted, err := s.repos(tx).shortfalls.Create(ctx, &entity.ReconciliationShortfall{
		UserID:     prediction.UserID,
		TradingDay: prediction.TradingDay,
		RefID:      refID,
		Requested:  -applied + shortfall,
		Applied:    -applied,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	s.logger.Warn("Revision debit capped, shortfall recorded",
		logger.Field("user_id", prediction.UserID),
		logger.Field("trading_day", prediction.TradingDay),
		logger.Field("shortfall", shortfall))
	if err := s.notifier.SendMessage(telegram.FormatShortfallAlert(prediction.UserID, prediction.TradingDay, -applied+shortfall, -applied)); err != nil {
		s.logger.Error("Failed to send shortfall alert", logger.ErrorField(err))
	}
	return nil
}
