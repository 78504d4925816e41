package entity

import (
	"database/sql"
	"time"
)

// SessionPhase is the lifecycle phase of a trading day. Transitions are
// monotonic: PREDICT -> SETTLE, never backward.
type SessionPhase string

const (
	PhasePredict SessionPhase = "PREDICT"
	PhaseSettle  SessionPhase = "SETTLE"
)

// TradingSession is the single source of truth for a trading day's phase.
// Exactly one row exists per trading day.
type TradingSession struct {
	ID              uint         `gorm:"primaryKey" json:"id"`
	TradingDay      string       `gorm:"size:10;not null;uniqueIndex" json:"trading_day"`
	Phase           SessionPhase `gorm:"size:10;not null;default:PREDICT" json:"phase"`
	PredictOpenAt   time.Time    `gorm:"not null" json:"predict_open_at"`
	PredictCutoffAt time.Time    `gorm:"not null" json:"predict_cutoff_at"`
	SettledAt       sql.NullTime `json:"settled_at"`
	CreatedAt       time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TradingSession) TableName() string {
	return "trading_sessions"
}
