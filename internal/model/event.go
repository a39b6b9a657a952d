package model

// TradeEvent 交易生命周期事件 (Kafka 消息体)
type TradeEvent struct {
	AttemptID     string `json:"attempt_id"`
	OrderID       string `json:"order_id,omitempty"`
	WalletAddress string `json:"wallet_address"`
	ProductID     string `json:"product_id"`
	Kind          string `json:"kind"`   // SUBSCRIBE / REDEEM
	Status        string `json:"status"` // CREATED / CONFIRMED / FAILED
	Amount        string `json:"amount"`
	Quantity      string `json:"quantity"`
	ApproveTxHash string `json:"approve_tx_hash,omitempty"`
	Error         string `json:"error,omitempty"`
	OccurredAt    int64  `json:"occurred_at"`
}
