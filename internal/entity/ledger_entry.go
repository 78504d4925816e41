package entity

import "time"

// LedgerReason is the closed set of reasons a ledger entry may carry.
type LedgerReason string

const (
	ReasonPointsAward    LedgerReason = "POINTS_AWARD"
	ReasonRevisionAdjust LedgerReason = "REVISION_ADJUST"
	ReasonRedemption     LedgerReason = "REDEMPTION"
)

// LedgerRefType is the closed set of reference types. Together with RefID it
// forms the globally unique idempotency key.
type LedgerRefType string

const (
	RefTypeSettlement LedgerRefType = "SETTLEMENT"
	RefTypeRevision   LedgerRefType = "REVISION"
	RefTypeRedemption LedgerRefType = "REDEMPTION"
)

// LedgerEntry is an append-only balance mutation. (RefType, RefID) is unique
// across all entries; a duplicate insert attempt is the idempotency signal.
// BalanceAfter is the running sum of the user's deltas including this one.
// Rows are never updated or deleted.
type LedgerEntry struct {
	ID           uint64        `gorm:"primaryKey" json:"id"`
	UserID       uint64        `gorm:"not null;index:ix_ledger_user" json:"user_id"`
	Delta        int64         `gorm:"not null" json:"delta"`
	Reason       LedgerReason  `gorm:"size:32;not null" json:"reason"`
	RefType      LedgerRefType `gorm:"size:16;not null;uniqueIndex:ux_ledger_ref,priority:1" json:"ref_type"`
	RefID        string        `gorm:"size:64;not null;uniqueIndex:ux_ledger_ref,priority:2" json:"ref_id"`
	BalanceAfter int64         `gorm:"not null" json:"balance_after"`
	CreatedAt    time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
