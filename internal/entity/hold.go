package entity

import "time"

// HoldStatus is the lifecycle of a points reservation. COMMITTED and
// CANCELLED are terminal.
type HoldStatus string

const (
	HoldOpen      HoldStatus = "OPEN"
	HoldCommitted HoldStatus = "COMMITTED"
	HoldCancelled HoldStatus = "CANCELLED"
)

// Hold reserves part of a user's points balance while a redemption saga is
// in flight. It does not debit by itself; the debit happens when the hold is
// committed.
type Hold struct {
	ID        uint64        `gorm:"primaryKey" json:"id"`
	RefType   LedgerRefType `gorm:"size:16;not null;uniqueIndex:ux_holds_ref,priority:1" json:"ref_type"`
	RefID     string        `gorm:"size:64;not null;uniqueIndex:ux_holds_ref,priority:2" json:"ref_id"`
	UserID    uint64        `gorm:"not null;index" json:"user_id"`
	Amount    int64         `gorm:"not null" json:"amount"`
	Status    HoldStatus    `gorm:"size:16;not null;default:OPEN" json:"status"`
	CreatedAt time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Hold) TableName() string {
	return "holds"
}

// Terminal reports whether the hold can no longer change state.
func (h Hold) Terminal() bool {
	return h.Status == HoldCommitted || h.Status == HoldCancelled
}
