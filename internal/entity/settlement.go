package entity

import "time"

// SettlementOutcome classifies a symbol's price movement for a trading day.
type SettlementOutcome string

const (
	OutcomeUp   SettlementOutcome = "UP"
	OutcomeDown SettlementOutcome = "DOWN"
	OutcomeVoid SettlementOutcome = "VOID"
)

// Settlement is the computed outcome for (trading_day, symbol). It is a pure
// function of the max-revision snapshot at computation time, so the upsert is
// an unconditional overwrite.
type Settlement struct {
	ID             uint64            `gorm:"primaryKey" json:"id"`
	TradingDay     string            `gorm:"size:10;not null;uniqueIndex:ux_settlements_day_symbol,priority:1" json:"trading_day"`
	Symbol         string            `gorm:"size:16;not null;uniqueIndex:ux_settlements_day_symbol,priority:2" json:"symbol"`
	Outcome        SettlementOutcome `gorm:"size:8;not null" json:"outcome"`
	Close          float64           `json:"close"`
	PreviousClose  float64           `json:"previous_close"`
	SourceRevision int               `gorm:"not null" json:"source_revision"`
	ComputedAt     time.Time         `gorm:"not null" json:"computed_at"`
}

func (Settlement) TableName() string {
	return "settlements"
}
