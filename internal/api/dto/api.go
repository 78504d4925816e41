package dto

// ErrorResponse represents a generic error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IngestSnapshotRequest is the price-snapshot webhook body.
type IngestSnapshotRequest struct {
	AsOf          string  `json:"asof"`
	Symbol        string  `json:"symbol"`
	Close         float64 `json:"close"`
	PreviousClose float64 `json:"previous_close"`
	Revision      int     `json:"revision"`
}

// IngestBatchRequest wraps a batch import of snapshots.
type IngestBatchRequest struct {
	Snapshots []IngestSnapshotRequest `json:"snapshots"`
}

// SessionResponse is the session query response.
type SessionResponse struct {
	TradingDay string `json:"trading_day"`
	Phase      string `json:"phase"`
}

// CanPredictResponse is the prediction-gate query response.
type CanPredictResponse struct {
	TradingDay string `json:"trading_day"`
	CanPredict bool   `json:"can_predict"`
}

// RedemptionRequest starts a redemption saga.
type RedemptionRequest struct {
	UserID     uint64 `json:"user_id"`
	SKU        string `json:"sku"`
	CostPoints int64  `json:"cost_points"`
}

// RedemptionResponse acknowledges an enqueued redemption.
type RedemptionResponse struct {
	SagaID string `json:"saga_id"`
	Status string `json:"status"`
}

// BalanceResponse is the ledger balance query response.
type BalanceResponse struct {
	UserID  uint64 `json:"user_id"`
	Balance int64  `json:"balance"`
}
