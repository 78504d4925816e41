package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"golang-predict-settler/internal/entity"
	"golang-predict-settler/internal/settler/dto"
	"golang-predict-settler/internal/settler/repository"
	"golang-predict-settler/pkg/common"
	"golang-predict-settler/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// sagaTransitions is the closed edge set of the redemption state machine.
// Compensation edges are ordinary transitions, not a separate mechanism.
var sagaTransitions = map[entity.SagaStatus][]entity.SagaStatus{
	entity.SagaRequested: {entity.SagaReserved, entity.SagaCancelled, entity.SagaFailed},
	entity.SagaReserved:  {entity.SagaIssued, entity.SagaCancelled, entity.SagaFailed},
}

// ValidTransition reports whether from -> to is an edge of the saga state
// machine.
func ValidTransition(from, to entity.SagaStatus) bool {
	for _, next := range sagaTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RedemptionService orchestrates the hold -> reserve -> issue -> commit
// workflow with compensation. Every step is independently retryable; a step
// already completed is detected through the saga/hold status and skipped.
type RedemptionService interface {
	// Process advances a saga as far as it can go for one delivery.
	Process(ctx context.Context, msg dto.RedemptionRequestMessage) error
	// Cancel aborts a not-yet-issued saga on the owning user's request.
	Cancel(ctx context.Context, sagaID string, userID uint64) error
	// ProcessTask consumes one redemption request from the stream.
	ProcessTask(ctx context.Context)
}

// NewRedemptionService creates the redemption saga orchestrator.
func NewRedemptionService(db *gorm.DB, redisClient *goredis.Client, ledger LedgerService, vendor repository.VendorRepository, log *logger.Logger) RedemptionService {
	return &redemptionService{
		db:          db,
		redisClient: redisClient,
		ledger:      ledger,
		vendor:      vendor,
		logger:      log,
		repos:       gormRepos,
		runTx:       gormTxRunner(db),
	}
}

type redemptionService struct {
	db          *gorm.DB
	redisClient *goredis.Client
	ledger      LedgerService
	vendor      repository.VendorRepository
	logger      *logger.Logger
	repos       repoFactory
	runTx       txRunner
}

func (s *redemptionService) ProcessTask(ctx context.Context) {
	msg, msgID, ok := readStreamMessage(ctx, s.redisClient, common.RedisStreamRedemptionRequest, s.logger)
	if !ok {
		return
	}

	var request dto.RedemptionRequestMessage
	if err := json.Unmarshal(msg, &request); err != nil {
		s.logger.Error("Failed to unmarshal redemption request", logger.ErrorField(err), logger.Field("message_id", msgID))
		ackStreamMessage(ctx, s.redisClient, common.RedisStreamRedemptionRequest, msgID, s.logger)
		return
	}

	if err := s.Process(ctx, request); err != nil {
		s.logger.Error("Redemption processing failed", logger.ErrorField(err), logger.Field("saga_id", request.SagaID))
		return
	}
	ackStreamMessage(ctx, s.redisClient, common.RedisStreamRedemptionRequest, msgID, s.logger)
}

func (s *redemptionService) Process(ctx context.Context, msg dto.RedemptionRequestMessage) error {
	sagas := s.repos(s.db).sagas

	saga, err := sagas.FindByID(ctx, msg.SagaID)
	if err != nil {
		return err
	}
	if saga == nil {
		saga = &entity.RedemptionSaga{
			ID:         msg.SagaID,
			UserID:     msg.UserID,
			SKU:        msg.SKU,
			CostPoints: msg.CostPoints,
			Status:     entity.SagaRequested,
		}
		// A racing duplicate delivery may insert first; either way the row
		// exists afterwards.
		if _, err := sagas.Create(ctx, saga); err != nil {
			return err
		}
		saga, err = sagas.FindByID(ctx, msg.SagaID)
		if err != nil {
			return err
		}
	}

	if saga.Status == entity.SagaRequested {
		if err := s.reserve(ctx, saga); err != nil {
			if errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrOutOfStock) {
				s.logger.Info("Redemption rejected", logger.ErrorField(err), logger.Field("saga_id", saga.ID))
				return s.compensate(ctx, saga.ID, entity.SagaFailed)
			}
			return err
		}
		saga.Status = entity.SagaReserved
	}

	if saga.Status == entity.SagaReserved {
		if err := s.issue(ctx, saga); err != nil {
			if errors.Is(err, ErrInsufficientBalance) {
				// Debit conflict: the user spent the points mid-saga.
				return s.compensate(ctx, saga.ID, entity.SagaFailed)
			}
			// Vendor and store errors are transient; redelivery retries the
			// step against the unchanged RESERVED state.
			return err
		}
	}
	return nil
}

// reserve moves REQUESTED -> RESERVED: opens the points hold and reserves
// one inventory unit. The hold does not debit; the balance check is
// optimistic.
func (s *redemptionService) reserve(ctx context.Context, saga *entity.RedemptionSaga) error {
	return s.runTx(ctx, func(tx *gorm.DB) error {
		r := s.repos(tx)
		locked, err := r.sagas.FindByIDForUpdate(ctx, saga.ID)
		if err != nil {
			return err
		}
		if locked.Status != entity.SagaRequested {
			// Step already done on a previous delivery.
			return nil
		}

		balance, err := balanceFrom(ctx, r.ledger, locked.UserID)
		if err != nil {
			return err
		}
		if balance < locked.CostPoints {
			return fmt.Errorf("%w: balance %d, cost %d", ErrInsufficientBalance, balance, locked.CostPoints)
		}

		item, err := r.rewards.FindBySKUForUpdate(ctx, locked.SKU)
		if err != nil {
			return err
		}
		if item == nil || item.Available() < 1 {
			return fmt.Errorf("%w: sku %s", ErrOutOfStock, locked.SKU)
		}
		item.Reserved++
		if err := r.rewards.Save(ctx, item); err != nil {
			return err
		}

		if _, err := r.holds.Create(ctx, &entity.Hold{
			RefType: entity.RefTypeRedemption,
			RefID:   locked.ID,
			UserID:  locked.UserID,
			Amount:  locked.CostPoints,
			Status:  entity.HoldOpen,
		}); err != nil {
			return err
		}

		if !ValidTransition(locked.Status, entity.SagaReserved) {
			return fmt.Errorf("invalid saga transition %s -> RESERVED", locked.Status)
		}
		locked.Status = entity.SagaReserved
		if err := r.sagas.Update(ctx, locked); err != nil {
			return err
		}

		return s.emitSagaEvent(ctx, r.outbox, locked, entity.TopicRedemptionReserved)
	})
}

// issue moves RESERVED -> ISSUED: mints the vendor code, debits the ledger
// and commits the hold. The vendor call runs outside the transaction and is
// idempotent on saga id, so a crash between vendor success and commit only
// costs a retried vendor call.
func (s *redemptionService) issue(ctx context.Context, saga *entity.RedemptionSaga) error {
	code, err := s.vendor.IssueCode(ctx, saga.ID, saga.SKU)
	if err != nil {
		return fmt.Errorf("vendor issue failed: %w", err)
	}

	return s.runTx(ctx, func(tx *gorm.DB) error {
		r := s.repos(tx)
		locked, err := r.sagas.FindByIDForUpdate(ctx, saga.ID)
		if err != nil {
			return err
		}
		if locked.Status != entity.SagaReserved {
			return nil
		}

		if _, err := s.ledger.CreditTx(ctx, tx, locked.UserID, -locked.CostPoints,
			entity.ReasonRedemption, entity.RefTypeRedemption, locked.ID); err != nil {
			return err
		}

		hold, err := r.holds.FindByRefForUpdate(ctx, entity.RefTypeRedemption, locked.ID)
		if err != nil {
			return err
		}
		if hold == nil {
			return fmt.Errorf("hold missing for saga %s", locked.ID)
		}
		if hold.Status == entity.HoldOpen {
			if err := r.holds.UpdateStatus(ctx, hold, entity.HoldCommitted); err != nil {
				return err
			}
		}

		item, err := r.rewards.FindBySKUForUpdate(ctx, locked.SKU)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("reward item missing for sku %s", locked.SKU)
		}
		item.Reserved--
		item.Stock--
		if err := r.rewards.Save(ctx, item); err != nil {
			return err
		}

		if !ValidTransition(locked.Status, entity.SagaIssued) {
			return fmt.Errorf("invalid saga transition %s -> ISSUED", locked.Status)
		}
		locked.Status = entity.SagaIssued
		locked.VendorCode = sql.NullString{String: code, Valid: true}
		if err := r.sagas.Update(ctx, locked); err != nil {
			return err
		}

		s.logger.Info("Redemption issued", logger.Field("saga_id", locked.ID), logger.Field("sku", locked.SKU))
		return s.emitSagaEvent(ctx, r.outbox, locked, entity.TopicRedemptionIssued)
	})
}

func (s *redemptionService) Cancel(ctx context.Context, sagaID string, userID uint64) error {
	saga, err := s.repos(s.db).sagas.FindByID(ctx, sagaID)
	if err != nil {
		return err
	}
	if saga == nil {
		return ErrSagaNotFound
	}
	if saga.UserID != userID {
		return ErrHoldNotOwned
	}
	if saga.Status == entity.SagaIssued {
		return ErrSagaTerminal
	}
	return s.compensate(ctx, sagaID, entity.SagaCancelled)
}

// compensate releases the reserved inventory unit, cancels the hold and
// moves the saga to its terminal state. Idempotent: a saga already terminal
// is left untouched.
func (s *redemptionService) compensate(ctx context.Context, sagaID string, terminal entity.SagaStatus) error {
	return s.runTx(ctx, func(tx *gorm.DB) error {
		r := s.repos(tx)
		locked, err := r.sagas.FindByIDForUpdate(ctx, sagaID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrSagaNotFound
		}
		if locked.Terminal() {
			return nil
		}

		hold, err := r.holds.FindByRefForUpdate(ctx, entity.RefTypeRedemption, locked.ID)
		if err != nil {
			return err
		}
		if hold != nil && hold.Status == entity.HoldOpen {
			if err := r.holds.UpdateStatus(ctx, hold, entity.HoldCancelled); err != nil {
				return err
			}
		}

		if locked.Status == entity.SagaReserved {
			item, err := r.rewards.FindBySKUForUpdate(ctx, locked.SKU)
			if err != nil {
				return err
			}
			if item != nil {
				item.Reserved--
				if err := r.rewards.Save(ctx, item); err != nil {
					return err
				}
			}
		}

		if !ValidTransition(locked.Status, terminal) {
			return fmt.Errorf("invalid saga transition %s -> %s", locked.Status, terminal)
		}
		locked.Status = terminal
		if err := r.sagas.Update(ctx, locked); err != nil {
			return err
		}

		topic := entity.TopicRedemptionFailed
		if terminal == entity.SagaCancelled {
			topic = entity.TopicRedemptionCancel
		}
		s.logger.Info("Redemption compensated", logger.Field("saga_id", locked.ID), logger.Field("status", terminal))
		return s.emitSagaEvent(ctx, r.outbox, locked, topic)
	})
}

func (s *redemptionService) emitSagaEvent(ctx context.Context, outbox repository.OutboxRepository, saga *entity.RedemptionSaga, topic string) error {
	event, err := newDomainEvent(topic, saga.ID+":"+string(saga.Status), dto.RedemptionEvent{
		SagaID:     saga.ID,
		UserID:     saga.UserID,
		SKU:        saga.SKU,
		CostPoints: saga.CostPoints,
		Status:     string(saga.Status),
		VendorCode: saga.VendorCode.String,
	})
	if err != nil {
		return err
	}
	_, err = outbox.Create(ctx, event)
	return err
}
