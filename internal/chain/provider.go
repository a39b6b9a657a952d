package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	ErrEmptyRPCURL = errors.New("solana rpc url is empty")
)

// Provider Solana RPC 连接提供方
//
// 连接惰性建立: 首次链上调用时才初始化 rpc.Client，之后复用同一实例。
// 应用启动阶段不触链，离线环境下非链路径仍可工作。
type Provider struct {
	rpcURL     string
	commitment rpc.CommitmentType

	once   sync.Once
	client *rpc.Client
}

// NewProvider 创建连接提供方
func NewProvider(rpcURL, commitment string) *Provider {
	return &Provider{
		rpcURL:     rpcURL,
		commitment: parseCommitment(commitment),
	}
}

func parseCommitment(s string) rpc.CommitmentType {
	switch s {
	case "processed":
		return rpc.CommitmentProcessed
	case "confirmed":
		return rpc.CommitmentConfirmed
	default:
		return rpc.CommitmentFinalized
	}
}

// Client 获取 RPC 客户端 (惰性初始化)
func (p *Provider) Client() (*rpc.Client, error) {
	if p.rpcURL == "" {
		return nil, ErrEmptyRPCURL
	}
	p.once.Do(func() {
		p.client = rpc.New(p.rpcURL)
	})
	return p.client, nil
}

// Commitment 查询用的确认级别
func (p *Provider) Commitment() rpc.CommitmentType {
	return p.commitment
}

// LatestBlockhash 获取最新 blockhash，用于组装交易
func (p *Provider) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	client, err := p.Client()
	if err != nil {
		return solana.Hash{}, err
	}
	out, err := client.GetLatestBlockhash(ctx, p.commitment)
	if err != nil {
		return solana.Hash{}, err
	}
	return out.Value.Blockhash, nil
}

// SendRawTransaction 提交已签名的原始交易字节，返回交易签名
func (p *Provider) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	client, err := p.Client()
	if err != nil {
		return "", err
	}
	sig, err := client.SendEncodedTransaction(ctx, base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}
