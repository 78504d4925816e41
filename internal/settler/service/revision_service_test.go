package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"golang-predict-settler/internal/entity"
	"golang-predict-settler/pkg/telegram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassWin, Classify(entity.ChoiceUp, entity.OutcomeUp))
	assert.Equal(t, ClassWin, Classify(entity.ChoiceDown, entity.OutcomeDown))
	assert.Equal(t, ClassLoss, Classify(entity.ChoiceUp, entity.OutcomeDown))
	assert.Equal(t, ClassLoss, Classify(entity.ChoiceDown, entity.OutcomeUp))
	assert.Equal(t, ClassVoid, Classify(entity.ChoiceUp, entity.OutcomeVoid))
	assert.Equal(t, ClassVoid, Classify(entity.ChoiceDown, entity.OutcomeVoid))
}

func TestCompensationDelta(t *testing.T) {
	const reward = int64(100)

	tests := []struct {
		name     string
		choice   entity.PredictionChoice
		old, new entity.SettlementOutcome
		expected int64
	}{
		{"loss becomes win", entity.ChoiceUp, entity.OutcomeDown, entity.OutcomeUp, reward},
		{"win becomes loss", entity.ChoiceUp, entity.OutcomeUp, entity.OutcomeDown, -reward},
		{"win becomes void", entity.ChoiceUp, entity.OutcomeUp, entity.OutcomeVoid, -reward},
		{"void becomes win", entity.ChoiceDown, entity.OutcomeVoid, entity.OutcomeDown, reward},
		{"loss becomes void", entity.ChoiceUp, entity.OutcomeDown, entity.OutcomeVoid, 0},
		{"void becomes loss", entity.ChoiceDown, entity.OutcomeVoid, entity.OutcomeUp, 0},
		{"outcome unchanged", entity.ChoiceUp, entity.OutcomeUp, entity.OutcomeUp, 0},
		{"class unchanged on flip", entity.ChoiceUp, entity.OutcomeDown, entity.OutcomeDown, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CompensationDelta(tt.choice, tt.old, tt.new, reward))
		})
	}
}

func TestCapDebit(t *testing.T) {
	t.Run("covered debit passes through", func(t *testing.T) {
		applied, shortfall := CapDebit(-100, 250)
		assert.Equal(t, int64(-100), applied)
		assert.Equal(t, int64(0), shortfall)
	})

	t.Run("debit equal to balance passes through", func(t *testing.T) {
		applied, shortfall := CapDebit(-100, 100)
		assert.Equal(t, int64(-100), applied)
		assert.Equal(t, int64(0), shortfall)
	})

	t.Run("debit beyond balance is capped", func(t *testing.T) {
		applied, shortfall := CapDebit(-100, 30)
		assert.Equal(t, int64(-30), applied)
		assert.Equal(t, int64(70), shortfall)
	})

	t.Run("zero balance absorbs nothing", func(t *testing.T) {
		applied, shortfall := CapDebit(-100, 0)
		assert.Equal(t, int64(0), applied)
		assert.Equal(t, int64(100), shortfall)
	})

	t.Run("credits are never capped", func(t *testing.T) {
		applied, shortfall := CapDebit(100, 0)
		assert.Equal(t, int64(100), applied)
		assert.Equal(t, int64(0), shortfall)
	})
}

func TestRevisionRefID(t *testing.T) {
	refID := RevisionRefID(42, "2026-03-02", "AAPL", 3)
	assert.Equal(t, "42:2026-03-02:AAPL:rev3", refID)

	// The same revision for the same user and symbol always derives the same
	// ref, so a redelivered recompute hits the existing ledger entry.
	assert.Equal(t, refID, RevisionRefID(42, "2026-03-02", "AAPL", 3))
	assert.NotEqual(t, refID, RevisionRefID(42, "2026-03-02", "AAPL", 4))
	assert.NotEqual(t, refID, RevisionRefID(43, "2026-03-02", "AAPL", 3))

	// Revisions are monotonic per (date, symbol): two symbols sharing a
	// revision number on the same day owe separately keyed compensations.
	assert.NotEqual(t, RevisionRefID(42, "2026-03-02", "AAPL", 2), RevisionRefID(42, "2026-03-02", "MSFT", 2))
}

func newRevisionFixture(t *testing.T, stores *memStores) (*revisionService, *fakeLedgerService) {
	t.Helper()
	ledger := &fakeLedgerService{entries: stores.ledger}
	svc := NewRevisionService(nil, nil, ledger, testLogger(t), telegram.NoopNotifier{}, 100, 100).(*revisionService)
	svc.repos = stores.factory()
	svc.runTx = passthroughTx
	return svc, ledger
}

func seedSettledDay(stores *memStores, day string, userID uint64, symbols ...string) {
	stores.sessions.rows[day] = entity.TradingSession{TradingDay: day, Phase: entity.PhaseSettle}
	var total int64
	for _, symbol := range symbols {
		stores.snapshots.(*memSnapshots).rows = append(stores.snapshots.(*memSnapshots).rows, entity.PriceSnapshot{
			AsOfDate: day, Symbol: symbol, Revision: 1, Close: 110, PreviousClose: 100,
		})
		stores.settlements.rows[settlementKey(day, symbol)] = entity.Settlement{
			TradingDay: day, Symbol: symbol, Outcome: entity.OutcomeUp, Close: 110, PreviousClose: 100, SourceRevision: 1,
		}
		stores.predictions.rows = append(stores.predictions.rows, entity.Prediction{
			UserID: userID, TradingDay: day, Symbol: symbol, Choice: entity.ChoiceUp,
			LockedAt: sql.NullTime{Time: time.Now(), Valid: true},
		})
		total += 100
	}
	stores.ledger.entries = append(stores.ledger.entries, entity.LedgerEntry{
		ID: 1, UserID: userID, Delta: total, Reason: entity.ReasonPointsAward,
		RefType: entity.RefTypeSettlement, RefID: AwardRefID(userID, day), BalanceAfter: total,
	})
}

func TestHandleSnapshotCompensatesEachSymbol(t *testing.T) {
	const day = "2026-03-02"
	stores := newMemStores()
	seedSettledDay(stores, day, 42, "AAPL", "MSFT")
	svc, ledger := newRevisionFixture(t, stores)
	ctx := context.Background()

	// Both flips arrive as revision 2 of their own symbol.
	require.NoError(t, svc.HandleSnapshot(ctx, entity.PriceSnapshot{
		AsOfDate: day, Symbol: "AAPL", Revision: 2, Close: 90, PreviousClose: 100,
	}))
	require.NoError(t, svc.HandleSnapshot(ctx, entity.PriceSnapshot{
		AsOfDate: day, Symbol: "MSFT", Revision: 2, Close: 90, PreviousClose: 100,
	}))

	aapl, err := ledger.entries.FindByRef(context.Background(), entity.RefTypeRevision, RevisionRefID(42, day, "AAPL", 2))
	require.NoError(t, err)
	require.NotNil(t, aapl, "AAPL compensation must exist")
	assert.Equal(t, int64(-100), aapl.Delta)

	msft, err := ledger.entries.FindByRef(context.Background(), entity.RefTypeRevision, RevisionRefID(42, day, "MSFT", 2))
	require.NoError(t, err)
	require.NotNil(t, msft, "MSFT compensation must exist despite sharing the revision number")
	assert.Equal(t, int64(-100), msft.Delta)

	balance, err := ledger.BalanceOf(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	assert.Len(t, stores.outbox.events, 2)
}

func TestHandleSnapshotStaleRevisionLosesRace(t *testing.T) {
	const day = "2026-03-02"
	stores := newMemStores()
	seedSettledDay(stores, day, 7, "AAPL")
	svc, ledger := newRevisionFixture(t, stores)
	ctx := context.Background()

	// Between the unlocked pre-check and the locked re-read, a newer
	// revision commits its snapshot and settlement.
	base := stores.snapshots.(*memSnapshots)
	racing := &racingSnapshots{SnapshotRepository: base}
	racing.onCall = func(n int) {
		if n != 2 {
			return
		}
		base.rows = append(base.rows, entity.PriceSnapshot{
			AsOfDate: day, Symbol: "AAPL", Revision: 3, Close: 90, PreviousClose: 100,
		})
		stores.settlements.rows[settlementKey(day, "AAPL")] = entity.Settlement{
			TradingDay: day, Symbol: "AAPL", Outcome: entity.OutcomeDown,
			Close: 90, PreviousClose: 100, SourceRevision: 3,
		}
	}
	stores.snapshots = racing
	svc.repos = stores.factory()

	require.NoError(t, svc.HandleSnapshot(ctx, entity.PriceSnapshot{
		AsOfDate: day, Symbol: "AAPL", Revision: 2, Close: 120, PreviousClose: 100,
	}))

	// The stale revision is kept for audit but never overwrites the newer
	// settlement or emits compensation of its own.
	settled, err := stores.settlements.FindByDaySymbol(ctx, day, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, settled)
	assert.Equal(t, 3, settled.SourceRevision)
	assert.Equal(t, entity.OutcomeDown, settled.Outcome)

	stored, err := base.MaxRevision(ctx, day, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 3, stored)
	audit, err := base.Current(ctx, day, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 3, audit.Revision)

	assert.Len(t, ledger.entries.entries, 1, "only the seeded award entry")
	assert.Empty(t, stores.outbox.events)
}
