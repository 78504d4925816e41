package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"golang-predict-settler/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwardRefID(t *testing.T) {
	assert.Equal(t, "42:2026-03-02", AwardRefID(42, "2026-03-02"))
	assert.NotEqual(t, AwardRefID(42, "2026-03-02"), AwardRefID(42, "2026-03-03"))
	assert.NotEqual(t, AwardRefID(42, "2026-03-02"), AwardRefID(43, "2026-03-02"))
}

func TestCountWins(t *testing.T) {
	predictions := []entity.Prediction{
		{Symbol: "AAA", Choice: entity.ChoiceUp},
		{Symbol: "BBB", Choice: entity.ChoiceDown},
		{Symbol: "CCC", Choice: entity.ChoiceUp},
		{Symbol: "DDD", Choice: entity.ChoiceDown},
	}

	t.Run("mixed outcomes", func(t *testing.T) {
		outcomes := map[string]entity.SettlementOutcome{
			"AAA": entity.OutcomeUp,   // win
			"BBB": entity.OutcomeUp,   // loss
			"CCC": entity.OutcomeVoid, // void
			"DDD": entity.OutcomeDown, // win
		}
		assert.Equal(t, 2, CountWins(predictions, outcomes))
	})

	t.Run("symbol without settlement does not count", func(t *testing.T) {
		outcomes := map[string]entity.SettlementOutcome{
			"AAA": entity.OutcomeUp,
		}
		assert.Equal(t, 1, CountWins(predictions, outcomes))
	})

	t.Run("all void", func(t *testing.T) {
		outcomes := map[string]entity.SettlementOutcome{
			"AAA": entity.OutcomeVoid,
			"BBB": entity.OutcomeVoid,
			"CCC": entity.OutcomeVoid,
			"DDD": entity.OutcomeVoid,
		}
		assert.Equal(t, 0, CountWins(predictions, outcomes))
	})

	t.Run("no predictions", func(t *testing.T) {
		assert.Equal(t, 0, CountWins(nil, map[string]entity.SettlementOutcome{"AAA": entity.OutcomeUp}))
	})
}

func newAwardFixture(t *testing.T, stores *memStores) (*awardService, *fakeLedgerService) {
	t.Helper()
	ledger := &fakeLedgerService{entries: stores.ledger}
	svc := NewAwardService(nil, nil, ledger, testLogger(t), 100).(*awardService)
	svc.repos = stores.factory()
	svc.runTx = passthroughTx
	return svc, ledger
}

func seedAwardDay(stores *memStores, day string, userID uint64, outcomes map[string]entity.SettlementOutcome) {
	for symbol, outcome := range outcomes {
		stores.settlements.rows[settlementKey(day, symbol)] = entity.Settlement{
			TradingDay: day, Symbol: symbol, Outcome: outcome, SourceRevision: 1,
		}
		stores.predictions.rows = append(stores.predictions.rows, entity.Prediction{
			UserID: userID, TradingDay: day, Symbol: symbol, Choice: entity.ChoiceUp,
			LockedAt: sql.NullTime{Time: time.Now(), Valid: true},
		})
	}
}

func TestAwardCreditsWinsOnce(t *testing.T) {
	const day = "2026-03-02"
	stores := newMemStores()
	seedAwardDay(stores, day, 42, map[string]entity.SettlementOutcome{
		"AAA": entity.OutcomeUp,
		"BBB": entity.OutcomeUp,
		"CCC": entity.OutcomeDown,
	})
	svc, ledger := newAwardFixture(t, stores)
	ctx := context.Background()

	require.NoError(t, svc.Award(ctx, 42, day))

	entry, err := ledger.entries.FindByRef(ctx, entity.RefTypeSettlement, AwardRefID(42, day))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(200), entry.Delta)
	assert.Len(t, stores.outbox.events, 1)

	// Redelivery with unchanged outcomes stays a no-op.
	require.NoError(t, svc.Award(ctx, 42, day))
	assert.Len(t, ledger.entries.entries, 1)
	assert.Len(t, stores.outbox.events, 1)
}

func TestAwardRedeliveryAfterRevisionKeepsEntry(t *testing.T) {
	const day = "2026-03-02"
	stores := newMemStores()
	seedAwardDay(stores, day, 42, map[string]entity.SettlementOutcome{
		"AAA": entity.OutcomeUp,
		"BBB": entity.OutcomeUp,
	})
	svc, ledger := newAwardFixture(t, stores)
	ctx := context.Background()

	require.NoError(t, svc.Award(ctx, 42, day))
	require.Len(t, ledger.entries.entries, 1)

	// A revision flips one symbol after the award was written; the
	// compensation path owns the adjustment, so a redelivered trigger must
	// not recompute a diverging total against the existing ref.
	flipped := stores.settlements.rows[settlementKey(day, "AAA")]
	flipped.Outcome = entity.OutcomeDown
	flipped.SourceRevision = 2
	stores.settlements.rows[settlementKey(day, "AAA")] = flipped

	require.NoError(t, svc.Award(ctx, 42, day))

	require.Len(t, ledger.entries.entries, 1)
	assert.Equal(t, int64(200), ledger.entries.entries[0].Delta)
	assert.Len(t, stores.outbox.events, 1)
}
