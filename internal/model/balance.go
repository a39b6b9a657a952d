package model

import "github.com/shopspring/decimal"

// Balance 余额快照
//
// Known=false 表示获取失败的"不可用"哨兵值: 余额展示是
// 建议性的，查询失败不向上抛错；编排器在校验时对不可用
// 的基金余额跳过上限检查 (视为尚未确定)。
type Balance struct {
	Amount decimal.Decimal
	Known  bool
}

// KnownBalance 已知余额
func KnownBalance(amount decimal.Decimal) Balance {
	return Balance{Amount: amount, Known: true}
}

// UnavailableBalance 不可用哨兵
func UnavailableBalance() Balance {
	return Balance{Amount: decimal.Zero, Known: false}
}
