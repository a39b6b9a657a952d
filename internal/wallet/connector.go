// Package wallet 封装外部钱包连接器的签名能力
//
// 底层传输 (本地密钥对 vs 深链跳转到独立钱包 App) 对调用方不可见。
// 深链签名是异步的、由用户控制时长的挂起点: 本进程可能在等待期间
// 被切到后台，签名结果经 URL 回调送回。
package wallet

import (
	"context"
	"errors"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/onchain-fund/onchain-trade/internal/model"
)

// 用户拒绝签名的标准错误码 (EIP-1193 / 钱包通用约定)
const codeUserRejected = 4001

var (
	// ErrNotConnected 钱包未连接
	ErrNotConnected = errors.New("wallet not connected")
	// ErrNoSignCapability 连接器不具备所需签名能力
	ErrNoSignCapability = errors.New("connector has no signing capability")
	// ErrUserRejected 用户在钱包侧明确拒绝
	ErrUserRejected = errors.New("user rejected the request")
)

// ConnectorError 连接器侧错误 (携带钱包错误码)
type ConnectorError struct {
	Code    int
	Message string
}

func (e *ConnectorError) Error() string {
	return e.Message
}

// IsUserRejection 判断错误是否为用户拒绝
//
// 两种识别方式: 错误码 4001，或错误文本含 "User rejected"。
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	var ce *ConnectorError
	if errors.As(err, &ce) && ce.Code == codeUserRejected {
		return true
	}
	return strings.Contains(err.Error(), "User rejected")
}

// Connector 外部钱包连接器契约
//
// SignMessage 返回钱包原生编码的签名 (深链钱包约定为 base58)。
// SignTransaction 的返回形态见 model.SignedTx。
type Connector interface {
	// Connected 当前是否已连接
	Connected() bool
	// Address 连接的钱包地址 (base58 公钥)，未连接时为空
	Address() string
	// SignMessage 对消息签名，返回钱包原生编码的签名字符串
	SignMessage(ctx context.Context, message string) (string, error)
	// SignTransaction 对交易部分签名
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*model.SignedTx, error)
}
