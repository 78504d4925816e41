package service

import (
	"context"

	"golang-predict-settler/internal/settler/repository"

	"gorm.io/gorm"
)

// repoSet bundles the repositories bound to one DB handle. Services rebuild
// the set per transaction through a factory so tests can substitute
// in-memory implementations.
type repoSet struct {
	sessions    repository.SessionRepository
	snapshots   repository.SnapshotRepository
	settlements repository.SettlementRepository
	predictions repository.PredictionRepository
	universe    repository.UniverseRepository
	ledger      repository.LedgerRepository
	outbox      repository.OutboxRepository
	sagas       repository.SagaRepository
	holds       repository.HoldRepository
	rewards     repository.RewardRepository
	shortfalls  repository.ShortfallRepository
}

type repoFactory func(db *gorm.DB) repoSet

func gormRepos(db *gorm.DB) repoSet {
	return repoSet{
		sessions:    repository.NewSessionRepository(db),
		snapshots:   repository.NewSnapshotRepository(db),
		settlements: repository.NewSettlementRepository(db),
		predictions: repository.NewPredictionRepository(db),
		universe:    repository.NewUniverseRepository(db),
		ledger:      repository.NewLedgerRepository(db),
		outbox:      repository.NewOutboxRepository(db),
		sagas:       repository.NewSagaRepository(db),
		holds:       repository.NewHoldRepository(db),
		rewards:     repository.NewRewardRepository(db),
		shortfalls:  repository.NewShortfallRepository(db),
	}
}

// txRunner executes fn inside a database transaction. Tests substitute a
// runner that invokes fn directly.
type txRunner func(ctx context.Context, fn func(tx *gorm.DB) error) error

func gormTxRunner(db *gorm.DB) txRunner {
	return func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		return db.WithContext(ctx).Transaction(fn)
	}
}

// balanceFrom reads the running balance through the given ledger repository.
func balanceFrom(ctx context.Context, ledger repository.LedgerRepository, userID uint64) (int64, error) {
	last, err := ledger.LastEntry(ctx, userID)
	if err != nil {
		return 0, err
	}
	if last == nil {
		return 0, nil
	}
	return last.BalanceAfter, nil
}
