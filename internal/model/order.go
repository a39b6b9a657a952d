package model

import "github.com/shopspring/decimal"

// OrderKind 订单类型
type OrderKind int8

const (
	OrderKindSubscribe OrderKind = 0 // 申购
	OrderKindRedeem    OrderKind = 1 // 赎回
)

func (k OrderKind) String() string {
	switch k {
	case OrderKindSubscribe:
		return "SUBSCRIBE"
	case OrderKindRedeem:
		return "REDEEM"
	default:
		return "UNKNOWN"
	}
}

// TradeState 交易编排状态机状态
//
// Idle -> Validating -> CreatingOrder -> AwaitingApproval -> ConfirmingPayment -> Succeeded
// 任意非 Idle 状态失败进入 Failed；Failed/Succeeded 在用户关闭后回到 Idle。
type TradeState int8

const (
	TradeStateIdle              TradeState = 0
	TradeStateValidating        TradeState = 1
	TradeStateCreatingOrder     TradeState = 2
	TradeStateAwaitingApproval  TradeState = 3
	TradeStateConfirmingPayment TradeState = 4
	TradeStateSucceeded         TradeState = 5
	TradeStateFailed            TradeState = 6
)

func (s TradeState) String() string {
	switch s {
	case TradeStateIdle:
		return "IDLE"
	case TradeStateValidating:
		return "VALIDATING"
	case TradeStateCreatingOrder:
		return "CREATING_ORDER"
	case TradeStateAwaitingApproval:
		return "AWAITING_APPROVAL"
	case TradeStateConfirmingPayment:
		return "CONFIRMING_PAYMENT"
	case TradeStateSucceeded:
		return "SUCCEEDED"
	case TradeStateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal 判断是否为终态
func (s TradeState) IsTerminal() bool {
	return s == TradeStateSucceeded || s == TradeStateFailed
}

// Product 基金产品快照 (编排器校验所需的最小字段集)
type Product struct {
	ProductID          string
	FundName           string
	FundNetValue       decimal.Decimal
	MinSubscribeAmount decimal.Decimal
	MinRedeemQuantity  decimal.Decimal
	AssetMint          string // 份额 token 的 mint 地址 (赎回划转用)
	AssetDecimals      uint8  // 份额 token 精度
}
