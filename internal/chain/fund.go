package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const computeBudgetProgram = "ComputeBudget111111111111111111111111111111"

var (
	ErrNonPositiveAmount = errors.New("transfer amount must be positive")
)

// FundClient 基金交易的链上指令组装
//
// 申购与赎回的 approve 环节都落到同一个原语: 把 SPL token 从
// 用户钱包的关联账户转到托管账户，用 TransferChecked 带上
// decimals 校验防止精度错配。交易在这里只组装不签名，签名
// 由钱包侧完成。
type FundClient struct {
	provider *Provider

	cashMint     solana.PublicKey
	cashDecimals uint8
	escrow       solana.PublicKey
}

// NewFundClient 创建基金链上客户端
func NewFundClient(provider *Provider, cashMint string, cashDecimals uint8, escrowAccount string) (*FundClient, error) {
	mint, err := solana.PublicKeyFromBase58(cashMint)
	if err != nil {
		return nil, fmt.Errorf("invalid cash mint: %w", err)
	}
	escrow, err := solana.PublicKeyFromBase58(escrowAccount)
	if err != nil {
		return nil, fmt.Errorf("invalid escrow account: %w", err)
	}
	return &FundClient{
		provider:     provider,
		cashMint:     mint,
		cashDecimals: cashDecimals,
		escrow:       escrow,
	}, nil
}

// ApproveCash 组装申购的现金划转交易 (未签名)
func (f *FundClient) ApproveCash(ctx context.Context, ownerAddress string, amount decimal.Decimal) (*solana.Transaction, error) {
	return f.buildTransfer(ctx, ownerAddress, f.cashMint, f.cashDecimals, amount)
}

// ApproveFundAsset 组装赎回的基金份额划转交易 (未签名)
//
// 份额 token 的 mint 与精度因基金而异，由调用方传入。
func (f *FundClient) ApproveFundAsset(ctx context.Context, ownerAddress, assetMint string, assetDecimals uint8, quantity decimal.Decimal) (*solana.Transaction, error) {
	mint, err := solana.PublicKeyFromBase58(assetMint)
	if err != nil {
		return nil, fmt.Errorf("invalid asset mint: %w", err)
	}
	return f.buildTransfer(ctx, ownerAddress, mint, assetDecimals, quantity)
}

func (f *FundClient) buildTransfer(ctx context.Context, ownerAddress string, mint solana.PublicKey, decimals uint8, amount decimal.Decimal) (*solana.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	owner, err := solana.PublicKeyFromBase58(ownerAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid owner address: %w", err)
	}

	sourceATA, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive source token account: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(f.escrow, mint)
	if err != nil {
		return nil, fmt.Errorf("derive escrow token account: %w", err)
	}

	baseUnits, err := toBaseUnits(amount, decimals)
	if err != nil {
		return nil, err
	}

	blockhash, err := f.provider.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}

	instructions := []solana.Instruction{
		computeUnitLimitInstruction(200_000),
		computeUnitPriceInstruction(10_000),
		transferCheckedInstruction(sourceATA, mint, destATA, owner, baseUnits, decimals),
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(owner),
	)
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	return tx, nil
}

// toBaseUnits 十进制数量换算到 token 最小单位
func toBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	shifted := amount.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", amount.String(), decimals)
	}
	bi := shifted.BigInt()
	if shifted.Sign() < 0 || !bi.IsUint64() {
		return 0, fmt.Errorf("amount %s out of range at %d decimals", amount.String(), decimals)
	}
	return bi.Uint64(), nil
}

// transferCheckedInstruction SPL Token TransferChecked 指令
//
// data 布局: [12, amount u64 LE, decimals u8]
func transferCheckedInstruction(source, mint, dest, owner solana.PublicKey, amount uint64, decimals uint8) solana.Instruction {
	data := make([]byte, 10)
	data[0] = 12
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals

	return solana.NewInstruction(
		solana.TokenProgramID,
		[]*solana.AccountMeta{
			{PublicKey: source, IsSigner: false, IsWritable: true},
			{PublicKey: mint, IsSigner: false, IsWritable: false},
			{PublicKey: dest, IsSigner: false, IsWritable: true},
			{PublicKey: owner, IsSigner: true, IsWritable: false},
		},
		data,
	)
}

// computeUnitLimitInstruction ComputeBudget SetComputeUnitLimit (tag 0x02)
func computeUnitLimitInstruction(units uint32) solana.Instruction {
	data := make([]byte, 5)
	data[0] = 0x02
	binary.LittleEndian.PutUint32(data[1:5], units)
	return solana.NewInstruction(
		solana.MustPublicKeyFromBase58(computeBudgetProgram),
		[]*solana.AccountMeta{},
		data,
	)
}

// computeUnitPriceInstruction ComputeBudget SetComputeUnitPrice (tag 0x03)
func computeUnitPriceInstruction(microLamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = 0x03
	binary.LittleEndian.PutUint64(data[1:9], microLamports)
	return solana.NewInstruction(
		solana.MustPublicKeyFromBase58(computeBudgetProgram),
		[]*solana.AccountMeta{},
		data,
	)
}
