package entity

import "time"

// UniverseSymbol is one symbol in a trading day's prediction universe. Rows
// are written by the external universe picker and only read here.
type UniverseSymbol struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	TradingDay string    `gorm:"size:10;not null;uniqueIndex:ux_universe_day_symbol,priority:1" json:"trading_day"`
	Symbol     string    `gorm:"size:16;not null;uniqueIndex:ux_universe_day_symbol,priority:2" json:"symbol"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (UniverseSymbol) TableName() string {
	return "universe_symbols"
}
