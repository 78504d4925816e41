package entity

import (
	"database/sql"
	"time"
)

// SagaStatus is the redemption saga state. ISSUED, CANCELLED and FAILED are
// terminal.
type SagaStatus string

const (
	SagaRequested SagaStatus = "REQUESTED"
	SagaReserved  SagaStatus = "RESERVED"
	SagaIssued    SagaStatus = "ISSUED"
	SagaCancelled SagaStatus = "CANCELLED"
	SagaFailed    SagaStatus = "FAILED"
)

// RedemptionSaga tracks the multi-step hold -> reserve -> issue -> commit
// workflow. Every transition is driven by exactly one saga step and is
// idempotent on redelivery.
type RedemptionSaga struct {
	ID         string         `gorm:"size:36;primaryKey" json:"id"`
	UserID     uint64         `gorm:"not null;index" json:"user_id"`
	SKU        string         `gorm:"size:64;not null" json:"sku"`
	CostPoints int64          `gorm:"not null" json:"cost_points"`
	VendorCode sql.NullString `gorm:"size:128" json:"vendor_code"`
	Status     SagaStatus     `gorm:"size:16;not null;default:REQUESTED" json:"status"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RedemptionSaga) TableName() string {
	return "redemption_sagas"
}

// Terminal reports whether the saga has reached a final state.
func (s RedemptionSaga) Terminal() bool {
	return s.Status == SagaIssued || s.Status == SagaCancelled || s.Status == SagaFailed
}
