package model

import "github.com/shopspring/decimal"

// TradeStep 持久化的待恢复交易所处步骤
type TradeStep int8

const (
	TradeStepCreated   TradeStep = 0 // 订单已创建，尚未签名
	TradeStepApproving TradeStep = 1 // 已进入签名挂起 (深链往返中)
	TradeStepApproved  TradeStep = 2 // 链上授权完成，待确认支付
	TradeStepPaid      TradeStep = 3 // 支付确认完成
)

func (s TradeStep) String() string {
	switch s {
	case TradeStepCreated:
		return "CREATED"
	case TradeStepApproving:
		return "APPROVING"
	case TradeStepApproved:
		return "APPROVED"
	case TradeStepPaid:
		return "PAID"
	default:
		return "UNKNOWN"
	}
}

// PendingTradeStatus 待恢复交易记录状态
type PendingTradeStatus int8

const (
	PendingTradeStatusActive    PendingTradeStatus = 0 // 进行中 (进程可能在此期间被杀)
	PendingTradeStatusCompleted PendingTradeStatus = 1 // 正常完成
	PendingTradeStatusFailed    PendingTradeStatus = 2 // 失败终止
	PendingTradeStatusAbandoned PendingTradeStatus = 3 // 恢复时放弃 (超龄或无法续作)
)

func (s PendingTradeStatus) String() string {
	switch s {
	case PendingTradeStatusActive:
		return "ACTIVE"
	case PendingTradeStatusCompleted:
		return "COMPLETED"
	case PendingTradeStatusFailed:
		return "FAILED"
	case PendingTradeStatusAbandoned:
		return "ABANDONED"
	default:
		return "UNKNOWN"
	}
}

// PendingTrade 交易挂起上下文
//
// 在进入签名挂起 (外部钱包深链往返) 之前落库，进程被杀后
// 重启时据此恢复或提示未完成交易。成功/失败后更新为终态。
type PendingTrade struct {
	ID            int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	AttemptID     string             `gorm:"column:attempt_id;type:varchar(64);uniqueIndex;not null" json:"attempt_id"`
	WalletAddress string             `gorm:"column:wallet_address;type:varchar(64);index;not null" json:"wallet_address"`
	ProductID     string             `gorm:"column:product_id;type:varchar(64);index;not null" json:"product_id"`
	Kind          OrderKind          `gorm:"column:kind;type:smallint;not null" json:"kind"`
	Step          TradeStep          `gorm:"column:step;type:smallint;not null;default:0" json:"step"`
	OrderID       string             `gorm:"column:order_id;type:varchar(64)" json:"order_id"`
	Amount        decimal.Decimal    `gorm:"column:amount;type:decimal(36,18);not null" json:"amount"`
	Quantity      decimal.Decimal    `gorm:"column:quantity;type:decimal(36,18);not null" json:"quantity"`
	FundNetValue  decimal.Decimal    `gorm:"column:fund_net_value;type:decimal(36,18);not null" json:"fund_net_value"`
	ApproveTxHash string             `gorm:"column:approve_tx_hash;type:varchar(128)" json:"approve_tx_hash"`
	Status        PendingTradeStatus `gorm:"column:status;type:smallint;index;not null;default:0" json:"status"`
	ErrorMessage  string             `gorm:"column:error_message;type:varchar(500)" json:"error_message"`
	CreatedAt     int64              `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt     int64              `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 表名
func (PendingTrade) TableName() string {
	return "trade_pending_trades"
}
