package entity

import "time"

// PriceSnapshot is one revision of a symbol's end-of-day prices. Revisions
// are never mutated in place: vendor corrections insert a higher revision
// and older rows remain for audit.
type PriceSnapshot struct {
	ID            uint64    `gorm:"primaryKey" json:"id"`
	AsOfDate      string    `gorm:"size:10;not null;uniqueIndex:ux_snapshots_date_symbol_rev,priority:1" json:"asof_date"`
	Symbol        string    `gorm:"size:16;not null;uniqueIndex:ux_snapshots_date_symbol_rev,priority:2" json:"symbol"`
	Revision      int       `gorm:"not null;uniqueIndex:ux_snapshots_date_symbol_rev,priority:3" json:"revision"`
	Close         float64   `gorm:"not null" json:"close"`
	PreviousClose float64   `gorm:"not null" json:"previous_close"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (PriceSnapshot) TableName() string {
	return "price_snapshots"
}
