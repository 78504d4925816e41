package entity

import "time"

// RewardItem is one redeemable SKU with finite inventory. Reserved units are
// held by in-flight sagas and either committed (stock decremented) or
// released on compensation.
type RewardItem struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	SKU        string    `gorm:"size:64;not null;uniqueIndex" json:"sku"`
	Name       string    `gorm:"size:128;not null" json:"name"`
	CostPoints int64     `gorm:"not null" json:"cost_points"`
	Stock      int       `gorm:"not null" json:"stock"`
	Reserved   int       `gorm:"not null;default:0" json:"reserved"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RewardItem) TableName() string {
	return "reward_items"
}

// Available is the stock not yet claimed by an open reservation.
func (r RewardItem) Available() int {
	return r.Stock - r.Reserved
}
