package wallet

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/onchain-fund/onchain-trade/internal/model"
)

var base58SigPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

// TxSender 原始交易提交能力 (由链连接提供方实现)
type TxSender interface {
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)
}

// Signer 钱包签名适配器
//
// 不持有连接器引用，每次操作都从 Store 重新读取当前连接器，
// 避免在深链往返等异步挂起后继续使用已失效的句柄。
type Signer struct {
	store  *Store
	sender TxSender
}

// NewSigner 创建签名适配器
func NewSigner(store *Store, sender TxSender) *Signer {
	return &Signer{store: store, sender: sender}
}

// Address 当前钱包地址
func (s *Signer) Address() (string, error) {
	conn, err := s.store.Current()
	if err != nil {
		return "", err
	}
	return conn.Address(), nil
}

// SignMessage 对消息签名，返回 base64 编码的签名
//
// 深链钱包的原生签名编码是 base58，按后端传输约定转码为 base64；
// 非 base58 形态视为已是传输编码，原样返回。
func (s *Signer) SignMessage(ctx context.Context, message string) (string, error) {
	conn, err := s.store.Current()
	if err != nil {
		return "", err
	}

	sig, err := conn.SignMessage(ctx, message)
	if err != nil {
		if IsUserRejection(err) {
			return "", fmt.Errorf("%w: %s", ErrUserRejected, err.Error())
		}
		return "", fmt.Errorf("sign message: %w", err)
	}

	if base58SigPattern.MatchString(sig) {
		if raw, derr := base58.Decode(sig); derr == nil {
			return base64.StdEncoding.EncodeToString(raw), nil
		}
	}
	return sig, nil
}

// PartialSign 对 legacy 交易部分签名
func (s *Signer) PartialSign(ctx context.Context, tx *solana.Transaction) (*model.SignedTx, error) {
	return s.signTransaction(ctx, tx)
}

// PartialSignV0 对 versioned (v0) 交易部分签名
//
// solana-go 用同一 Transaction 类型承载 versioned message，
// 两个入口保留以对齐连接器协议的能力声明。
func (s *Signer) PartialSignV0(ctx context.Context, tx *solana.Transaction) (*model.SignedTx, error) {
	return s.signTransaction(ctx, tx)
}

func (s *Signer) signTransaction(ctx context.Context, tx *solana.Transaction) (*model.SignedTx, error) {
	conn, err := s.store.Current()
	if err != nil {
		return nil, err
	}

	signed, err := conn.SignTransaction(ctx, tx)
	if err != nil {
		if IsUserRejection(err) {
			return nil, fmt.Errorf("%w: %s", ErrUserRejected, err.Error())
		}
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if signed == nil {
		// 连接器声明了接口却没有返回签名载荷 (部分深链钱包
		// 只支持消息签名)
		return nil, ErrNoSignCapability
	}
	return signed, nil
}

// SignAndSend 签名并提交交易，返回链上交易签名 (tx hash)
//
// 组合 PartialSign + 字节归一化 + RPC 提交。签名完成后不再回读
// 钱包状态，签名字节本身已经完备。
func (s *Signer) SignAndSend(ctx context.Context, tx *solana.Transaction) (string, error) {
	signed, err := s.signTransaction(ctx, tx)
	if err != nil {
		return "", err
	}

	raw, err := signed.Bytes()
	if err != nil {
		return "", err
	}

	sig, err := s.sender.SendRawTransaction(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("send raw transaction: %w", err)
	}
	return sig, nil
}
