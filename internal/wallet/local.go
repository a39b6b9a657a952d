package wallet

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/onchain-fund/onchain-trade/internal/model"
)

// LocalConnector 本地密钥对连接器
//
// 用于测试与运维工具场景，持有私钥直接签名，不经过外部钱包应用。
type LocalConnector struct {
	key       solana.PrivateKey
	connected bool
}

// NewLocalConnector 从私钥创建本地连接器
func NewLocalConnector(key solana.PrivateKey) *LocalConnector {
	return &LocalConnector{key: key, connected: true}
}

// NewRandomLocalConnector 随机生成密钥对的本地连接器
func NewRandomLocalConnector() *LocalConnector {
	w := solana.NewWallet()
	return &LocalConnector{key: w.PrivateKey, connected: true}
}

// Connected 返回连接状态
func (c *LocalConnector) Connected() bool { return c.connected }

// Disconnect 断开连接
func (c *LocalConnector) Disconnect() { c.connected = false }

// Address 钱包地址 (base58)
func (c *LocalConnector) Address() string {
	return c.key.PublicKey().String()
}

// SignMessage 对消息签名，返回 base58 编码的原生签名
func (c *LocalConnector) SignMessage(_ context.Context, message string) (string, error) {
	if !c.connected {
		return "", ErrNotConnected
	}
	sig, err := c.key.Sign([]byte(message))
	if err != nil {
		return "", err
	}
	return base58.Encode(sig[:]), nil
}

// SignTransaction 对交易部分签名
func (c *LocalConnector) SignTransaction(_ context.Context, tx *solana.Transaction) (*model.SignedTx, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}
	pub := c.key.PublicKey()
	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pub) {
			return &c.key
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return model.NewSignedTx(tx), nil
}
