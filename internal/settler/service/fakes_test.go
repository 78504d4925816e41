package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"golang-predict-settler/internal/entity"
	"golang-predict-settler/internal/settler/repository"
	"golang-predict-settler/pkg/logger"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// In-memory repository implementations backing the service tests. They
// mirror the real repositories' contracts: not-found returns, duplicate
// handling and FOR UPDATE semantics, minus the locking itself.

type memStores struct {
	sessions    *memSessions
	snapshots   repository.SnapshotRepository
	settlements *memSettlements
	predictions *memPredictions
	universe    *memUniverse
	ledger      *memLedger
	outbox      *memOutbox
	sagas       *memSagas
	holds       *memHolds
	rewards     *memRewards
	shortfalls  *memShortfalls
}

func newMemStores() *memStores {
	return &memStores{
		sessions:    &memSessions{rows: map[string]entity.TradingSession{}},
		snapshots:   &memSnapshots{},
		settlements: &memSettlements{rows: map[string]entity.Settlement{}},
		predictions: &memPredictions{},
		universe:    &memUniverse{rows: map[string][]string{}},
		ledger:      &memLedger{},
		outbox:      &memOutbox{},
		sagas:       &memSagas{rows: map[string]entity.RedemptionSaga{}},
		holds:       &memHolds{rows: map[string]entity.Hold{}},
		rewards:     &memRewards{rows: map[string]entity.RewardItem{}},
		shortfalls:  &memShortfalls{},
	}
}

func (m *memStores) factory() repoFactory {
	return func(*gorm.DB) repoSet {
		return repoSet{
			sessions:    m.sessions,
			snapshots:   m.snapshots,
			settlements: m.settlements,
			predictions: m.predictions,
			universe:    m.universe,
			ledger:      m.ledger,
			outbox:      m.outbox,
			sagas:       m.sagas,
			holds:       m.holds,
			rewards:     m.rewards,
			shortfalls:  m.shortfalls,
		}
	}
}

func passthroughTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error", "console")
	require.NoError(t, err)
	return log
}

type memSessions struct {
	rows map[string]entity.TradingSession
}

func (m *memSessions) Create(ctx context.Context, session *entity.TradingSession) (bool, error) {
	if _, ok := m.rows[session.TradingDay]; ok {
		return false, nil
	}
	m.rows[session.TradingDay] = *session
	return true, nil
}

func (m *memSessions) FindByDay(ctx context.Context, tradingDay string) (*entity.TradingSession, error) {
	row, ok := m.rows[tradingDay]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memSessions) FindByDayForUpdate(ctx context.Context, tradingDay string, nowait bool) (*entity.TradingSession, error) {
	row, ok := m.rows[tradingDay]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (m *memSessions) Update(ctx context.Context, session *entity.TradingSession) error {
	m.rows[session.TradingDay] = *session
	return nil
}

func (m *memSessions) FindDueForSettle(ctx context.Context, now time.Time) ([]entity.TradingSession, error) {
	var due []entity.TradingSession
	for _, row := range m.rows {
		if row.Phase == entity.PhasePredict && !row.PredictCutoffAt.After(now) {
			due = append(due, row)
		}
	}
	return due, nil
}

type memSnapshots struct {
	rows []entity.PriceSnapshot
}

func (m *memSnapshots) Create(ctx context.Context, snapshot *entity.PriceSnapshot) (bool, error) {
	for _, row := range m.rows {
		if row.AsOfDate == snapshot.AsOfDate && row.Symbol == snapshot.Symbol && row.Revision == snapshot.Revision {
			return false, nil
		}
	}
	m.rows = append(m.rows, *snapshot)
	return true, nil
}

func (m *memSnapshots) MaxRevision(ctx context.Context, asofDate, symbol string) (int, error) {
	max := 0
	for _, row := range m.rows {
		if row.AsOfDate == asofDate && row.Symbol == symbol && row.Revision > max {
			max = row.Revision
		}
	}
	return max, nil
}

func (m *memSnapshots) Current(ctx context.Context, asofDate, symbol string) (*entity.PriceSnapshot, error) {
	var current *entity.PriceSnapshot
	for i := range m.rows {
		row := m.rows[i]
		if row.AsOfDate != asofDate || row.Symbol != symbol {
			continue
		}
		if current == nil || row.Revision > current.Revision {
			copied := row
			current = &copied
		}
	}
	return current, nil
}

func (m *memSnapshots) CurrentForDay(ctx context.Context, asofDate string) ([]entity.PriceSnapshot, error) {
	bySymbol := map[string]entity.PriceSnapshot{}
	var order []string
	for _, row := range m.rows {
		if row.AsOfDate != asofDate {
			continue
		}
		current, ok := bySymbol[row.Symbol]
		if !ok {
			order = append(order, row.Symbol)
		}
		if !ok || row.Revision > current.Revision {
			bySymbol[row.Symbol] = row
		}
	}
	out := make([]entity.PriceSnapshot, 0, len(order))
	for _, symbol := range order {
		out = append(out, bySymbol[symbol])
	}
	return out, nil
}

// racingSnapshots lets a test commit a competing revision between the
// unlocked pre-check and the locked re-read.
type racingSnapshots struct {
	repository.SnapshotRepository
	calls  int
	onCall func(n int)
}

func (r *racingSnapshots) MaxRevision(ctx context.Context, asofDate, symbol string) (int, error) {
	r.calls++
	if r.onCall != nil {
		r.onCall(r.calls)
	}
	return r.SnapshotRepository.MaxRevision(ctx, asofDate, symbol)
}

type memSettlements struct {
	rows map[string]entity.Settlement
}

func settlementKey(tradingDay, symbol string) string {
	return tradingDay + "|" + symbol
}

func (m *memSettlements) Upsert(ctx context.Context, settlement *entity.Settlement) error {
	m.rows[settlementKey(settlement.TradingDay, settlement.Symbol)] = *settlement
	return nil
}

func (m *memSettlements) FindByDay(ctx context.Context, tradingDay string) ([]entity.Settlement, error) {
	var out []entity.Settlement
	for _, row := range m.rows {
		if row.TradingDay == tradingDay {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memSettlements) FindByDaySymbol(ctx context.Context, tradingDay, symbol string) (*entity.Settlement, error) {
	row, ok := m.rows[settlementKey(tradingDay, symbol)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

type memPredictions struct {
	rows []entity.Prediction
}

func (m *memPredictions) LockDay(ctx context.Context, tradingDay string, lockedAt time.Time) error {
	for i := range m.rows {
		if m.rows[i].TradingDay == tradingDay && !m.rows[i].Locked() {
			m.rows[i].LockedAt.Time = lockedAt
			m.rows[i].LockedAt.Valid = true
		}
	}
	return nil
}

func (m *memPredictions) FindLockedForUser(ctx context.Context, tradingDay string, userID uint64) ([]entity.Prediction, error) {
	var out []entity.Prediction
	for _, row := range m.rows {
		if row.TradingDay == tradingDay && row.UserID == userID && row.Locked() {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memPredictions) FindLockedForSymbol(ctx context.Context, tradingDay, symbol string) ([]entity.Prediction, error) {
	var out []entity.Prediction
	for _, row := range m.rows {
		if row.TradingDay == tradingDay && row.Symbol == symbol && row.Locked() {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memPredictions) DistinctUserIDs(ctx context.Context, tradingDay string) ([]uint64, error) {
	seen := map[uint64]bool{}
	var out []uint64
	for _, row := range m.rows {
		if row.TradingDay == tradingDay && !seen[row.UserID] {
			seen[row.UserID] = true
			out = append(out, row.UserID)
		}
	}
	return out, nil
}

type memUniverse struct {
	rows map[string][]string
}

func (m *memUniverse) SymbolsForDay(ctx context.Context, tradingDay string) ([]string, error) {
	return m.rows[tradingDay], nil
}

type memLedger struct {
	entries []entity.LedgerEntry
}

func (m *memLedger) Create(ctx context.Context, entry *entity.LedgerEntry) (bool, error) {
	for _, row := range m.entries {
		if row.RefType == entry.RefType && row.RefID == entry.RefID {
			return false, nil
		}
	}
	entry.ID = uint64(len(m.entries) + 1)
	m.entries = append(m.entries, *entry)
	return true, nil
}

func (m *memLedger) FindByRef(ctx context.Context, refType entity.LedgerRefType, refID string) (*entity.LedgerEntry, error) {
	for i := range m.entries {
		if m.entries[i].RefType == refType && m.entries[i].RefID == refID {
			row := m.entries[i]
			return &row, nil
		}
	}
	return nil, nil
}

func (m *memLedger) LastEntry(ctx context.Context, userID uint64) (*entity.LedgerEntry, error) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].UserID == userID {
			row := m.entries[i]
			return &row, nil
		}
	}
	return nil, nil
}

func (m *memLedger) AcquireUserLock(ctx context.Context, userID uint64) error {
	return nil
}

type memOutbox struct {
	events []entity.OutboxEvent
}

func (m *memOutbox) Create(ctx context.Context, event *entity.OutboxEvent) (bool, error) {
	for _, row := range m.events {
		if row.EventID == event.EventID {
			return false, nil
		}
	}
	event.ID = uint64(len(m.events) + 1)
	m.events = append(m.events, *event)
	return true, nil
}

func (m *memOutbox) FindUnpublished(ctx context.Context, limit int) ([]entity.OutboxEvent, error) {
	var out []entity.OutboxEvent
	for _, row := range m.events {
		if !row.Published {
			out = append(out, row)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memOutbox) MarkPublished(ctx context.Context, id uint64, publishedAt time.Time) error {
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].Published = true
			m.events[i].PublishedAt.Time = publishedAt
			m.events[i].PublishedAt.Valid = true
		}
	}
	return nil
}

func (m *memOutbox) topics() []string {
	out := make([]string, 0, len(m.events))
	for _, row := range m.events {
		out = append(out, row.Topic)
	}
	return out
}

type memSagas struct {
	rows map[string]entity.RedemptionSaga
}

func (m *memSagas) Create(ctx context.Context, saga *entity.RedemptionSaga) (bool, error) {
	if _, ok := m.rows[saga.ID]; ok {
		return false, nil
	}
	m.rows[saga.ID] = *saga
	return true, nil
}

func (m *memSagas) FindByID(ctx context.Context, id string) (*entity.RedemptionSaga, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memSagas) FindByIDForUpdate(ctx context.Context, id string) (*entity.RedemptionSaga, error) {
	return m.FindByID(ctx, id)
}

func (m *memSagas) Update(ctx context.Context, saga *entity.RedemptionSaga) error {
	m.rows[saga.ID] = *saga
	return nil
}

type memHolds struct {
	rows map[string]entity.Hold
}

func holdKey(refType entity.LedgerRefType, refID string) string {
	return string(refType) + "|" + refID
}

func (m *memHolds) Create(ctx context.Context, hold *entity.Hold) (bool, error) {
	key := holdKey(hold.RefType, hold.RefID)
	if _, ok := m.rows[key]; ok {
		return false, nil
	}
	hold.ID = uint64(len(m.rows) + 1)
	m.rows[key] = *hold
	return true, nil
}

func (m *memHolds) FindByRef(ctx context.Context, refType entity.LedgerRefType, refID string) (*entity.Hold, error) {
	row, ok := m.rows[holdKey(refType, refID)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memHolds) FindByRefForUpdate(ctx context.Context, refType entity.LedgerRefType, refID string) (*entity.Hold, error) {
	return m.FindByRef(ctx, refType, refID)
}

func (m *memHolds) UpdateStatus(ctx context.Context, hold *entity.Hold, status entity.HoldStatus) error {
	hold.Status = status
	m.rows[holdKey(hold.RefType, hold.RefID)] = *hold
	return nil
}

type memRewards struct {
	rows map[string]entity.RewardItem
}

func (m *memRewards) FindBySKU(ctx context.Context, sku string) (*entity.RewardItem, error) {
	row, ok := m.rows[sku]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memRewards) FindBySKUForUpdate(ctx context.Context, sku string) (*entity.RewardItem, error) {
	return m.FindBySKU(ctx, sku)
}

func (m *memRewards) Save(ctx context.Context, item *entity.RewardItem) error {
	m.rows[item.SKU] = *item
	return nil
}

type memShortfalls struct {
	rows []entity.ReconciliationShortfall
}

func (m *memShortfalls) Create(ctx context.Context, shortfall *entity.ReconciliationShortfall) (bool, error) {
	for _, row := range m.rows {
		if row.RefID == shortfall.RefID {
			return false, nil
		}
	}
	m.rows = append(m.rows, *shortfall)
	return true, nil
}

// fakeLedgerService applies the real credit contract against the in-memory
// ledger: idempotent on (ref_type, ref_id), overdraft-rejecting, with an
// injectable one-shot debit failure for conflict scenarios.
type fakeLedgerService struct {
	entries  *memLedger
	debitErr error
}

func (f *fakeLedgerService) Credit(ctx context.Context, userID uint64, delta int64, reason entity.LedgerReason, refType entity.LedgerRefType, refID string) (*CreditResult, error) {
	return f.CreditTx(ctx, nil, userID, delta, reason, refType, refID)
}

func (f *fakeLedgerService) CreditTx(ctx context.Context, tx *gorm.DB, userID uint64, delta int64, reason entity.LedgerReason, refType entity.LedgerRefType, refID string) (*CreditResult, error) {
	if delta < 0 && f.debitErr != nil {
		err := f.debitErr
		f.debitErr = nil
		return nil, err
	}

	existing, _ := f.entries.FindByRef(ctx, refType, refID)
	if existing != nil {
		if existing.Delta != delta || existing.UserID != userID {
			return nil, fmt.Errorf("%w: ref %s:%s", ErrRefMismatch, refType, refID)
		}
		return &CreditResult{BalanceAfter: existing.BalanceAfter, Inserted: false}, nil
	}

	prev, err := balanceFrom(ctx, f.entries, userID)
	if err != nil {
		return nil, err
	}
	after, err := nextBalance(prev, delta)
	if err != nil {
		return nil, err
	}
	if _, err := f.entries.Create(ctx, &entity.LedgerEntry{
		UserID:       userID,
		Delta:        delta,
		Reason:       reason,
		RefType:      refType,
		RefID:        refID,
		BalanceAfter: after,
	}); err != nil {
		return nil, err
	}
	return &CreditResult{BalanceAfter: after, Inserted: true}, nil
}

func (f *fakeLedgerService) BalanceOf(ctx context.Context, userID uint64) (int64, error) {
	return balanceFrom(ctx, f.entries, userID)
}

type fakeVendor struct {
	code  string
	err   error
	calls int
}

func (v *fakeVendor) IssueCode(ctx context.Context, sagaID, sku string) (string, error) {
	v.calls++
	if v.err != nil {
		return "", v.err
	}
	return v.code, nil
}
