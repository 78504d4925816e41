package dto

// SettleTriggerMessage asks the settlement engine to run one trading day.
type SettleTriggerMessage struct {
	TradingDay string `json:"trading_day"`
}

// PointsAwardMessage asks the award worker to credit one user for one day.
// The queue partitions on user:trading_day, so redeliveries of the same pair
// arrive in order.
type PointsAwardMessage struct {
	UserID     uint64 `json:"user_id"`
	TradingDay string `json:"trading_day"`
}

// RedemptionRequestMessage starts or resumes a redemption saga.
type RedemptionRequestMessage struct {
	SagaID     string `json:"saga_id"`
	UserID     uint64 `json:"user_id"`
	SKU        string `json:"sku"`
	CostPoints int64  `json:"cost_points"`
}

// SnapshotMessage is one validated end-of-day price record from the vendor
// feed.
type SnapshotMessage struct {
	AsOf          string  `json:"asof"`
	Symbol        string  `json:"symbol"`
	Close         float64 `json:"close"`
	PreviousClose float64 `json:"previous_close"`
	Revision      int     `json:"revision"`
}
