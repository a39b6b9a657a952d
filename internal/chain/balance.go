package chain

import (
	"context"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/onchain-fund/onchain-trade/internal/api"
	"github.com/onchain-fund/onchain-trade/internal/model"
	"github.com/onchain-fund/onchain-trade/pkg/logger"
)

// BalanceProvider 余额提供方
//
// 现金余额查链上 SPL token 账户，基金持仓余额查后端。
// 两类查询都是尽力而为: 失败时返回不可用余额而不是错误，
// 让编排层决定是阻断还是放行 (赎回校验在余额不可用时跳过)。
type BalanceProvider struct {
	provider     *Provider
	walletClient *api.WalletClient
	cashMint     solana.PublicKey
}

// NewBalanceProvider 创建余额提供方
func NewBalanceProvider(provider *Provider, walletClient *api.WalletClient, cashMint string) (*BalanceProvider, error) {
	mint, err := solana.PublicKeyFromBase58(cashMint)
	if err != nil {
		return nil, err
	}
	return &BalanceProvider{
		provider:     provider,
		walletClient: walletClient,
		cashMint:     mint,
	}, nil
}

// CashBalance 查询钱包的现金 token 余额
//
// 钱包从未持有过该 token 时关联账户不存在，链上返回
// "could not find account"，此时余额确定为零而不是未知。
func (b *BalanceProvider) CashBalance(ctx context.Context, walletAddress string) model.Balance {
	owner, err := solana.PublicKeyFromBase58(walletAddress)
	if err != nil {
		logger.Warn("invalid wallet address for balance query",
			zap.String("address", walletAddress), zap.Error(err))
		return model.UnavailableBalance()
	}

	ata, _, err := solana.FindAssociatedTokenAddress(owner, b.cashMint)
	if err != nil {
		logger.Warn("derive associated token address failed",
			zap.String("address", walletAddress), zap.Error(err))
		return model.UnavailableBalance()
	}

	client, err := b.provider.Client()
	if err != nil {
		logger.Warn("rpc client unavailable", zap.Error(err))
		return model.UnavailableBalance()
	}

	out, err := client.GetTokenAccountBalance(ctx, ata, b.provider.Commitment())
	if err != nil {
		if strings.Contains(err.Error(), "could not find account") {
			return model.KnownBalance(decimal.Zero)
		}
		logger.Warn("get token account balance failed",
			zap.String("address", walletAddress), zap.Error(err))
		return model.UnavailableBalance()
	}
	if out == nil || out.Value == nil {
		return model.UnavailableBalance()
	}

	amount, err := decimal.NewFromString(out.Value.UiAmountString)
	if err != nil {
		logger.Warn("parse token balance failed",
			zap.String("raw", out.Value.UiAmountString), zap.Error(err))
		return model.UnavailableBalance()
	}
	return model.KnownBalance(amount)
}

// FundBalance 查询钱包在某只基金的持仓份额
func (b *BalanceProvider) FundBalance(ctx context.Context, walletAddress, fundName string) model.Balance {
	quantity, err := b.walletClient.GetUserFundBalance(ctx, walletAddress, fundName)
	if err != nil {
		logger.Warn("get user fund balance failed",
			zap.String("address", walletAddress),
			zap.String("fund", fundName), zap.Error(err))
		return model.UnavailableBalance()
	}
	return model.KnownBalance(quantity)
}
