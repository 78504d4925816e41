package entity

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

// Outbox topics. Downstream consumers dedup on EventID.
const (
	TopicSessionFlipped     = "session.flipped"
	TopicSettlementComputed = "settlement.computed"
	TopicPointsCredited     = "points.credited"
	TopicPointsReversed     = "points.reversed"
	TopicRedemptionReserved = "redemption.reserved"
	TopicRedemptionIssued   = "redemption.issued"
	TopicRedemptionCancel   = "redemption.cancelled"
	TopicRedemptionFailed   = "redemption.failed"
)

// OutboxEvent is inserted in the same transaction as the domain mutation it
// describes, then published at-least-once by the outbox poller. Published
// transitions false -> true exactly once and never reverses.
type OutboxEvent struct {
	ID          uint64         `gorm:"primaryKey" json:"id"`
	EventID     string         `gorm:"size:36;not null;uniqueIndex" json:"event_id"`
	Topic       string         `gorm:"size:64;not null" json:"topic"`
	Payload     datatypes.JSON `gorm:"not null" json:"payload"`
	Published   bool           `gorm:"not null;default:false;index:ix_outbox_unpublished,where:published = false" json:"published"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	PublishedAt sql.NullTime   `json:"published_at"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}
