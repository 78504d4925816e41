package dto

import "time"

// SessionFlippedEvent mirrors a PREDICT -> SETTLE transition.
type SessionFlippedEvent struct {
	TradingDay string    `json:"trading_day"`
	SettledAt  time.Time `json:"settled_at"`
}

// SymbolOutcome is one symbol's result inside a SettlementComputedEvent.
type SymbolOutcome struct {
	Symbol         string `json:"symbol"`
	Outcome        string `json:"outcome"`
	SourceRevision int    `json:"source_revision"`
}

// SettlementComputedEvent mirrors a completed settlement batch.
type SettlementComputedEvent struct {
	TradingDay string          `json:"trading_day"`
	Outcomes   []SymbolOutcome `json:"outcomes"`
	ComputedAt time.Time       `json:"computed_at"`
}

// PointsCreditedEvent mirrors a ledger credit.
type PointsCreditedEvent struct {
	UserID       uint64 `json:"user_id"`
	TradingDay   string `json:"trading_day"`
	Delta        int64  `json:"delta"`
	BalanceAfter int64  `json:"balance_after"`
	RefID        string `json:"ref_id"`
}

// PointsReversedEvent mirrors a compensating entry after a revision.
type PointsReversedEvent struct {
	UserID     uint64 `json:"user_id"`
	TradingDay string `json:"trading_day"`
	Delta      int64  `json:"delta"`
	Shortfall  int64  `json:"shortfall,omitempty"`
	Revision   int    `json:"revision"`
	RefID      string `json:"ref_id"`
}

// RedemptionEvent mirrors a saga transition.
type RedemptionEvent struct {
	SagaID     string `json:"saga_id"`
	UserID     uint64 `json:"user_id"`
	SKU        string `json:"sku"`
	CostPoints int64  `json:"cost_points"`
	Status     string `json:"status"`
	VendorCode string `json:"vendor_code,omitempty"`
}
