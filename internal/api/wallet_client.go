package api

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"
)

type walletConnectRequest struct {
	Signature     string `json:"signature"`     // base64
	WalletAddress string `json:"walletAddress"` // base58 公钥
	Message       string `json:"message"`
}

// WalletConnectResult 钱包登录结果
type WalletConnectResult struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

type userFundBalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// WalletClient 钱包会话与用户资产查询客户端
type WalletClient struct {
	*Client
}

// NewWalletClient 创建钱包客户端
func NewWalletClient(client *Client) *WalletClient {
	return &WalletClient{Client: client}
}

// Connect 以签名换取会话 token
func (c *WalletClient) Connect(ctx context.Context, signatureB64, walletAddress, message string) (*WalletConnectResult, error) {
	req := &walletConnectRequest{
		Signature:     signatureB64,
		WalletAddress: walletAddress,
		Message:       message,
	}

	var resp WalletConnectResult
	if err := c.post(ctx, "/wallet/v1/connect", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetUserFundBalance 查询用户某只基金的份额余额 (后端口径，非链上直读)
func (c *WalletClient) GetUserFundBalance(ctx context.Context, userAddress, fundName string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("userAddress", userAddress)
	params.Set("fundName", fundName)

	var resp userFundBalanceResponse
	if err := c.get(ctx, "/user/v1/getUserFundBalance", params, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}
