package model

import (
	"encoding/base64"
	"errors"
	"regexp"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

var (
	// ErrInvalidSignedTx 签名结果形态无效
	ErrInvalidSignedTx = errors.New("invalid signed transaction format")
)

// base58Pattern base58 字母表 (无 0 O I l)
var base58Pattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

// SignedTx 签名结果变体
//
// 钱包连接器有两种返回形态:
//  1. 进程内签名: 直接返回可序列化的交易对象 (Tx)
//  2. 深链往返: 外部钱包 App 通过回调送回 base58/base64 编码的
//     交易字符串 (Encoded)
//
// 消费方只通过 Bytes() 取原始字节，归一化逻辑集中在这一处。
type SignedTx struct {
	// Tx 进程内签名得到的交易对象
	Tx *solana.Transaction
	// Encoded 深链回调携带的编码交易字符串
	Encoded string
}

// NewSignedTx 包装进程内交易对象
func NewSignedTx(tx *solana.Transaction) *SignedTx {
	return &SignedTx{Tx: tx}
}

// NewEncodedSignedTx 包装深链回调的编码字符串
func NewEncodedSignedTx(encoded string) *SignedTx {
	return &SignedTx{Encoded: encoded}
}

// Bytes 归一化为原始交易字节
//
// 编码字符串先按 base58 字母表检测: 匹配则 base58 解码，
// 否则按 base64 解码。两者都不是有效形态时返回 ErrInvalidSignedTx。
func (s *SignedTx) Bytes() ([]byte, error) {
	if s == nil {
		return nil, ErrInvalidSignedTx
	}

	if s.Encoded != "" {
		if base58Pattern.MatchString(s.Encoded) {
			raw, err := base58.Decode(s.Encoded)
			if err == nil {
				return raw, nil
			}
			// 落入 base64 分支: base58 字母表是 base64 的子集，
			// 检测可能误判
		}
		raw, err := base64.StdEncoding.DecodeString(s.Encoded)
		if err != nil {
			return nil, ErrInvalidSignedTx
		}
		return raw, nil
	}

	if s.Tx != nil {
		raw, err := s.Tx.MarshalBinary()
		if err != nil {
			return nil, ErrInvalidSignedTx
		}
		return raw, nil
	}

	return nil, ErrInvalidSignedTx
}
