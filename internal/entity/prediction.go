package entity

import (
	"database/sql"
	"time"
)

// PredictionChoice is the user's directional call for a symbol.
type PredictionChoice string

const (
	ChoiceUp   PredictionChoice = "UP"
	ChoiceDown PredictionChoice = "DOWN"
)

// Prediction is a user's call on a symbol for a trading day. Once LockedAt
// is set the row is immutable. Windowed predictions additionally carry
// TargetOpenTime.
type Prediction struct {
	ID             uint64           `gorm:"primaryKey" json:"id"`
	UserID         uint64           `gorm:"not null;uniqueIndex:ux_predictions_day_user_symbol,priority:2" json:"user_id"`
	TradingDay     string           `gorm:"size:10;not null;uniqueIndex:ux_predictions_day_user_symbol,priority:1" json:"trading_day"`
	Symbol         string           `gorm:"size:16;not null;uniqueIndex:ux_predictions_day_user_symbol,priority:3" json:"symbol"`
	Choice         PredictionChoice `gorm:"size:8;not null" json:"choice"`
	SubmittedAt    time.Time        `gorm:"not null" json:"submitted_at"`
	LockedAt       sql.NullTime     `json:"locked_at"`
	TargetOpenTime sql.NullTime     `json:"target_open_time"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (Prediction) TableName() string {
	return "predictions"
}

// Locked reports whether the prediction participates in settlement.
func (p Prediction) Locked() bool {
	return p.LockedAt.Valid
}
