package entity

import "time"

// ReconciliationShortfall records the uncollectable remainder of a revision
// debit that was capped at the user's current balance. Ops resolves these
// manually; the engine never drives a balance negative.
type ReconciliationShortfall struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	UserID     uint64    `gorm:"not null;index" json:"user_id"`
	TradingDay string    `gorm:"size:10;not null" json:"trading_day"`
	RefID      string    `gorm:"size:64;not null;uniqueIndex" json:"ref_id"`
	Requested  int64     `gorm:"not null" json:"requested"`
	Applied    int64     `gorm:"not null" json:"applied"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ReconciliationShortfall) TableName() string {
	return "reconciliation_shortfalls"
}
