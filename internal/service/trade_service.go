package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/onchain-fund/onchain-trade/internal/api"
	"github.com/onchain-fund/onchain-trade/internal/kafka"
	"github.com/onchain-fund/onchain-trade/internal/metrics"
	"github.com/onchain-fund/onchain-trade/internal/model"
	"github.com/onchain-fund/onchain-trade/internal/repository"
	"github.com/onchain-fund/onchain-trade/internal/ui"
	"github.com/onchain-fund/onchain-trade/internal/wallet"
	"github.com/onchain-fund/onchain-trade/pkg/lock"
	"github.com/onchain-fund/onchain-trade/pkg/logger"
)

var (
	ErrTradeInProgress = errors.New("another trade is already in progress for this product")
)

const genericFailureMessage = "Transaction failed"
const rejectionMessage = "Transaction request was cancelled"

// OrderAPI 后端订单协议客户端能力
type OrderAPI interface {
	CreateSubscribeOrder(ctx context.Context, productID string, totalAmount, productQuantity, fundNetValue decimal.Decimal) (string, error)
	PaySubscriptionOrder(ctx context.Context, orderID, approveTxHash string, cashAmount decimal.Decimal) error
	CreateRedemptionOrder(ctx context.Context, productID string, redeemAmount, productQuantity, fundNetValue decimal.Decimal) (string, error)
	PayRedemptionOrder(ctx context.Context, orderID string, ifRealize bool, approveTxHash string) error
}

// BalanceProvider 余额查询能力
type BalanceProvider interface {
	CashBalance(ctx context.Context, walletAddress string) model.Balance
	FundBalance(ctx context.Context, walletAddress, fundName string) model.Balance
}

// ApprovalBuilder 链上授权交易组装能力
type ApprovalBuilder interface {
	ApproveCash(ctx context.Context, ownerAddress string, amount decimal.Decimal) (*solana.Transaction, error)
	ApproveFundAsset(ctx context.Context, ownerAddress, assetMint string, assetDecimals uint8, quantity decimal.Decimal) (*solana.Transaction, error)
}

// TransactionSigner 签名并提交能力
type TransactionSigner interface {
	Address() (string, error)
	SignAndSend(ctx context.Context, tx *solana.Transaction) (string, error)
}

// TradeLocker 进行中交易互斥
type TradeLocker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// TradeResult 一次交易编排的终态
type TradeResult struct {
	State         model.TradeState
	Reason        string // 校验拦截原因 (State 为 Idle 时有值)
	AttemptID     string
	OrderID       string
	ApproveTxHash string
}

// TradeServiceOptions 交易编排配置
type TradeServiceOptions struct {
	AmountScale    int32
	QuantityScale  int32
	RecoveryMaxAge time.Duration
}

// TradeService 交易编排器
//
// 申购和赎回共用同一套状态机:
//
//	Idle -> Validating -> CreatingOrder -> AwaitingApproval -> ConfirmingPayment -> Succeeded
//
// 任一步失败进入 Failed: 关闭 loading 弹层、按服务端消息 > 异常
// 消息 > 通用文案的优先级弹 toast、保留输入内容供用户重试。
// 成功时清空输入、展示终态弹层并刷新余额。
//
// create -> pay 配对调用之间可能经历外部钱包的深链往返，期间
// 进程可能被杀，所以进入签名前先把挂起上下文落库，重启时由
// RecoverPending 续作或放弃。
type TradeService struct {
	orders      OrderAPI
	balances    BalanceProvider
	funds       ApprovalBuilder
	signer      TransactionSigner
	pendingRepo repository.PendingTradeRepository
	locker      TradeLocker
	events      kafka.EventPublisher
	coordinator *ui.Coordinator
	opts        TradeServiceOptions

	stateMu        sync.Mutex
	stateListeners []func(model.TradeState)
}

// NewTradeService 创建交易编排器
func NewTradeService(
	orders OrderAPI,
	balances BalanceProvider,
	funds ApprovalBuilder,
	signer TransactionSigner,
	pendingRepo repository.PendingTradeRepository,
	locker TradeLocker,
	events kafka.EventPublisher,
	coordinator *ui.Coordinator,
	opts TradeServiceOptions,
) *TradeService {
	if opts.AmountScale == 0 {
		opts.AmountScale = 2
	}
	if opts.QuantityScale == 0 {
		opts.QuantityScale = 6
	}
	if opts.RecoveryMaxAge == 0 {
		opts.RecoveryMaxAge = 24 * time.Hour
	}
	return &TradeService{
		orders:      orders,
		balances:    balances,
		funds:       funds,
		signer:      signer,
		pendingRepo: pendingRepo,
		locker:      locker,
		events:      events,
		coordinator: coordinator,
		opts:        opts,
	}
}

// OnStateChange 注册状态机变更监听 (界面层据此渲染进度文案)
func (s *TradeService) OnStateChange(fn func(model.TradeState)) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.stateListeners = append(s.stateListeners, fn)
}

func (s *TradeService) setState(state model.TradeState) {
	s.stateMu.Lock()
	listeners := s.stateListeners
	s.stateMu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}

// Subscribe 执行一次申购
//
// 校验不通过时返回 Idle 态与拦截原因，不产生任何网络调用。
func (s *TradeService) Subscribe(ctx context.Context, product *model.Product, amountInput string) (*TradeResult, error) {
	s.setState(model.TradeStateValidating)

	address, err := s.signer.Address()
	if err != nil {
		return s.blocked("wallet is not connected"), nil
	}

	amount, reason := parseAmount(amountInput)
	if reason != "" {
		return s.blocked(reason), nil
	}
	if !product.FundNetValue.IsPositive() {
		return s.blocked("fund net value is unavailable"), nil
	}
	if amount.LessThan(product.MinSubscribeAmount) {
		return s.blocked(fmt.Sprintf("minimum subscription amount is %s", product.MinSubscribeAmount.String())), nil
	}

	cash := s.balances.CashBalance(ctx, address)
	metrics.RecordBalanceQuery("chain", cash.Known)
	if cash.Known && amount.GreaterThan(cash.Amount) {
		return s.blocked("insufficient cash balance"), nil
	}

	quantity := amount.Div(product.FundNetValue).Round(s.opts.QuantityScale)

	return s.run(ctx, product, model.OrderKindSubscribe, address, amount, quantity, false)
}

// Redeem 执行一次赎回
//
// quantityInput 是份额数量; realize 表示是否要求立即变现。
// 持仓余额不可用 (sentinel) 时跳过上限校验，按未知处理放行。
func (s *TradeService) Redeem(ctx context.Context, product *model.Product, quantityInput string, realize bool) (*TradeResult, error) {
	s.setState(model.TradeStateValidating)

	address, err := s.signer.Address()
	if err != nil {
		return s.blocked("wallet is not connected"), nil
	}

	quantity, reason := parseAmount(quantityInput)
	if reason != "" {
		return s.blocked(reason), nil
	}
	if !product.FundNetValue.IsPositive() {
		return s.blocked("fund net value is unavailable"), nil
	}
	if quantity.LessThan(product.MinRedeemQuantity) {
		return s.blocked(fmt.Sprintf("minimum redemption quantity is %s", product.MinRedeemQuantity.String())), nil
	}

	holding := s.balances.FundBalance(ctx, address, product.FundName)
	metrics.RecordBalanceQuery("backend", holding.Known)
	if holding.Known && quantity.GreaterThan(holding.Amount) {
		return s.blocked("insufficient fund balance"), nil
	}

	amount := quantity.Mul(product.FundNetValue).Round(s.opts.AmountScale)

	return s.run(ctx, product, model.OrderKindRedeem, address, amount, quantity, realize)
}

// run 在产品级互斥锁内走完 create -> approve -> pay 主链路
func (s *TradeService) run(ctx context.Context, product *model.Product, kind model.OrderKind, address string, amount, quantity decimal.Decimal, realize bool) (*TradeResult, error) {
	var result *TradeResult
	var runErr error

	err := s.locker.WithLock(ctx, "product:"+product.ProductID, func(ctx context.Context) error {
		result, runErr = s.execute(ctx, product, kind, address, amount, quantity, realize)
		return nil
	})
	if errors.Is(err, lock.ErrLockAcquireFailed) {
		s.setState(model.TradeStateFailed)
		s.coordinator.Toast(ErrTradeInProgress.Error())
		return &TradeResult{State: model.TradeStateFailed}, ErrTradeInProgress
	}
	if err != nil {
		s.setState(model.TradeStateFailed)
		s.coordinator.Toast(genericFailureMessage)
		return &TradeResult{State: model.TradeStateFailed}, err
	}
	return result, runErr
}

func (s *TradeService) execute(ctx context.Context, product *model.Product, kind model.OrderKind, address string, amount, quantity decimal.Decimal, realize bool) (*TradeResult, error) {
	start := time.Now()
	attemptID := uuid.New().String()

	pending := &model.PendingTrade{
		AttemptID:     attemptID,
		WalletAddress: address,
		ProductID:     product.ProductID,
		Kind:          kind,
		Step:          model.TradeStepCreated,
		Amount:        amount,
		Quantity:      quantity,
		FundNetValue:  product.FundNetValue,
	}
	if err := s.pendingRepo.Create(ctx, pending); err != nil {
		return s.fail(ctx, pending, start, "create_order", err), err
	}

	// loading 弹层覆盖 create 到终态的整个区间
	s.coordinator.ShowModal(ui.ModalLoading)
	defer func() {
		if s.coordinator.Modal() == ui.ModalLoading {
			s.coordinator.CloseModal()
		}
	}()

	logger.Info("trade started",
		zap.String("attempt_id", attemptID),
		zap.String("product_id", product.ProductID),
		zap.String("kind", kind.String()),
		zap.String("amount", amount.String()),
		zap.String("quantity", quantity.String()))

	s.setState(model.TradeStateCreatingOrder)
	orderID, err := s.createOrder(ctx, product, kind, amount, quantity)
	if err != nil {
		metrics.RecordStepFailure("create_order")
		return s.fail(ctx, pending, start, "create_order", err), err
	}
	pending.OrderID = orderID
	if err := s.pendingRepo.UpdateOrderID(ctx, attemptID, orderID); err != nil {
		logger.Warn("persist order id failed", zap.String("attempt_id", attemptID), zap.Error(err))
	}
	s.publish(ctx, pending, "CREATED", "")

	// 组装授权交易并交给钱包签名提交。进入签名前推进
	// 持久化步骤，深链挂起期间进程被杀也能识别。
	s.setState(model.TradeStateAwaitingApproval)
	if err := s.pendingRepo.UpdateStep(ctx, attemptID, model.TradeStepApproving); err != nil {
		logger.Warn("persist step failed", zap.String("attempt_id", attemptID), zap.Error(err))
	}

	tx, err := s.buildApproval(ctx, product, kind, address, amount, quantity)
	if err != nil {
		metrics.RecordStepFailure("approve")
		return s.fail(ctx, pending, start, "approve", err), err
	}

	txHash, err := s.signer.SignAndSend(ctx, tx)
	if err != nil {
		metrics.RecordStepFailure("approve")
		return s.fail(ctx, pending, start, "approve", err), err
	}
	pending.ApproveTxHash = txHash
	if err := s.pendingRepo.UpdateApproveTxHash(ctx, attemptID, txHash); err != nil {
		logger.Warn("persist approve tx hash failed", zap.String("attempt_id", attemptID), zap.Error(err))
	}

	s.setState(model.TradeStateConfirmingPayment)
	if err := s.confirmPayment(ctx, kind, orderID, txHash, amount, realize); err != nil {
		metrics.RecordStepFailure("pay")
		return s.fail(ctx, pending, start, "pay", err), err
	}

	if err := s.pendingRepo.MarkCompleted(ctx, attemptID); err != nil {
		logger.Warn("mark completed failed", zap.String("attempt_id", attemptID), zap.Error(err))
	}

	// 成功路径: 清空输入、切换终态弹层、刷新余额
	s.setState(model.TradeStateSucceeded)
	s.coordinator.ClearAmountInput()
	if kind == model.OrderKindSubscribe {
		s.coordinator.ShowModal(ui.ModalSuccess)
	} else {
		s.coordinator.ShowModal(ui.ModalRedeemProgress)
	}
	s.refreshBalances(ctx, address, product)

	s.publish(ctx, pending, "CONFIRMED", "")
	metrics.RecordTrade(kindLabel(kind), "succeeded", time.Since(start).Seconds())
	logger.Info("trade succeeded",
		zap.String("attempt_id", attemptID),
		zap.String("order_id", orderID),
		zap.String("approve_tx_hash", txHash),
		zap.Duration("elapsed", time.Since(start)))

	return &TradeResult{
		State:         model.TradeStateSucceeded,
		AttemptID:     attemptID,
		OrderID:       orderID,
		ApproveTxHash: txHash,
	}, nil
}

func (s *TradeService) createOrder(ctx context.Context, product *model.Product, kind model.OrderKind, amount, quantity decimal.Decimal) (string, error) {
	if kind == model.OrderKindSubscribe {
		return s.orders.CreateSubscribeOrder(ctx, product.ProductID, amount, quantity, product.FundNetValue)
	}
	return s.orders.CreateRedemptionOrder(ctx, product.ProductID, quantity, quantity, product.FundNetValue)
}

func (s *TradeService) buildApproval(ctx context.Context, product *model.Product, kind model.OrderKind, address string, amount, quantity decimal.Decimal) (*solana.Transaction, error) {
	if kind == model.OrderKindSubscribe {
		return s.funds.ApproveCash(ctx, address, amount)
	}
	return s.funds.ApproveFundAsset(ctx, address, product.AssetMint, product.AssetDecimals, quantity)
}

func (s *TradeService) confirmPayment(ctx context.Context, kind model.OrderKind, orderID, txHash string, amount decimal.Decimal, realize bool) error {
	if kind == model.OrderKindSubscribe {
		return s.orders.PaySubscriptionOrder(ctx, orderID, txHash, amount)
	}
	return s.orders.PayRedemptionOrder(ctx, orderID, realize, txHash)
}

// refreshBalances 成功后重新拉取余额快照
func (s *TradeService) refreshBalances(ctx context.Context, address string, product *model.Product) {
	cash := s.balances.CashBalance(ctx, address)
	metrics.RecordBalanceQuery("chain", cash.Known)
	holding := s.balances.FundBalance(ctx, address, product.FundName)
	metrics.RecordBalanceQuery("backend", holding.Known)
}

// blocked 校验拦截，状态机退回 Idle
func (s *TradeService) blocked(reason string) *TradeResult {
	s.setState(model.TradeStateIdle)
	return &TradeResult{State: model.TradeStateIdle, Reason: reason}
}

// fail 统一失败收尾: 落库、toast、事件、指标
func (s *TradeService) fail(ctx context.Context, pending *model.PendingTrade, start time.Time, step string, cause error) *TradeResult {
	s.setState(model.TradeStateFailed)
	msg := toastMessage(cause)
	status := "failed"
	if wallet.IsUserRejection(cause) {
		status = "rejected"
	}

	if err := s.pendingRepo.MarkFailed(ctx, pending.AttemptID, cause.Error()); err != nil &&
		!errors.Is(err, repository.ErrPendingTradeNotFound) {
		logger.Warn("mark failed failed", zap.String("attempt_id", pending.AttemptID), zap.Error(err))
	}

	s.coordinator.Toast(msg)
	s.publish(ctx, pending, "FAILED", cause.Error())
	metrics.RecordTrade(kindLabel(pending.Kind), status, time.Since(start).Seconds())
	logger.Error("trade failed",
		zap.String("attempt_id", pending.AttemptID),
		zap.String("step", step),
		zap.String("kind", pending.Kind.String()),
		zap.Error(cause))

	return &TradeResult{
		State:         model.TradeStateFailed,
		AttemptID:     pending.AttemptID,
		OrderID:       pending.OrderID,
		ApproveTxHash: pending.ApproveTxHash,
	}
}

func (s *TradeService) publish(ctx context.Context, pending *model.PendingTrade, status, errMsg string) {
	if s.events == nil {
		return
	}
	event := &model.TradeEvent{
		AttemptID:     pending.AttemptID,
		OrderID:       pending.OrderID,
		WalletAddress: pending.WalletAddress,
		ProductID:     pending.ProductID,
		Kind:          pending.Kind.String(),
		Status:        status,
		Amount:        pending.Amount.String(),
		Quantity:      pending.Quantity.String(),
		ApproveTxHash: pending.ApproveTxHash,
		Error:         errMsg,
		OccurredAt:    time.Now().UnixMilli(),
	}
	var err error
	switch status {
	case "CREATED":
		err = s.events.PublishTradeCreated(ctx, event)
	case "CONFIRMED":
		err = s.events.PublishTradeConfirmed(ctx, event)
	default:
		err = s.events.PublishTradeFailed(ctx, event)
	}
	if err != nil {
		logger.Warn("publish trade event failed",
			zap.String("attempt_id", pending.AttemptID),
			zap.String("status", status),
			zap.Error(err))
	}
}

// RecoverPending 启动时处理上次进程退出遗留的挂起交易
//
// 已拿到 approveTxHash 的交易说明链上授权已完成，补发一次
// 支付确认; 其余步骤无法安全续作 (重复签名或重复建单)，标记
// 放弃，订单留在后端作为悬挂单。超龄记录一律放弃。
func (s *TradeService) RecoverPending(ctx context.Context) error {
	trades, err := s.pendingRepo.ListActive(ctx, "")
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	for _, trade := range trades {
		age := time.Duration(now-trade.CreatedAt) * time.Millisecond
		if age > s.opts.RecoveryMaxAge {
			s.abandon(ctx, trade, "expired")
			continue
		}

		if trade.Step == model.TradeStepApproved && trade.OrderID != "" && trade.ApproveTxHash != "" {
			s.resumeConfirmation(ctx, trade)
			continue
		}

		s.abandon(ctx, trade, "not resumable")
	}
	return nil
}

func (s *TradeService) resumeConfirmation(ctx context.Context, trade *model.PendingTrade) {
	err := s.confirmPayment(ctx, trade.Kind, trade.OrderID, trade.ApproveTxHash, trade.Amount, false)
	if err != nil {
		if markErr := s.pendingRepo.MarkFailed(ctx, trade.AttemptID, err.Error()); markErr != nil {
			logger.Warn("mark recovered trade failed",
				zap.String("attempt_id", trade.AttemptID), zap.Error(markErr))
		}
		metrics.RecordRecovery("abandoned")
		logger.Error("resume payment confirmation failed",
			zap.String("attempt_id", trade.AttemptID),
			zap.String("order_id", trade.OrderID),
			zap.Error(err))
		return
	}

	if markErr := s.pendingRepo.MarkCompleted(ctx, trade.AttemptID); markErr != nil {
		logger.Warn("mark recovered trade completed",
			zap.String("attempt_id", trade.AttemptID), zap.Error(markErr))
	}
	s.publish(ctx, trade, "CONFIRMED", "")
	metrics.RecordRecovery("resumed")
	logger.Info("pending trade resumed",
		zap.String("attempt_id", trade.AttemptID),
		zap.String("order_id", trade.OrderID))
}

func (s *TradeService) abandon(ctx context.Context, trade *model.PendingTrade, why string) {
	if err := s.pendingRepo.MarkAbandoned(ctx, trade.AttemptID); err != nil {
		logger.Warn("mark abandoned failed",
			zap.String("attempt_id", trade.AttemptID), zap.Error(err))
	}
	metrics.RecordRecovery("abandoned")
	s.coordinator.Toast(fmt.Sprintf("Your %s order was interrupted, please try again", kindLabel(trade.Kind)))
	logger.Warn("pending trade abandoned",
		zap.String("attempt_id", trade.AttemptID),
		zap.String("step", trade.Step.String()),
		zap.String("reason", why))
}

// History 钱包的历史交易记录 (分页)
func (s *TradeService) History(ctx context.Context, walletAddress string, page *repository.Pagination) ([]*model.PendingTrade, error) {
	return s.pendingRepo.ListRecent(ctx, walletAddress, page)
}

// parseAmount 解析输入金额，返回拦截原因
func parseAmount(input string) (decimal.Decimal, string) {
	if input == "" {
		return decimal.Zero, "amount is required"
	}
	amount, err := decimal.NewFromString(input)
	if err != nil {
		return decimal.Zero, "invalid amount"
	}
	if !amount.IsPositive() {
		return decimal.Zero, "amount must be positive"
	}
	return amount, ""
}

// toastMessage 失败提示文案: 服务端消息 > 异常消息 > 通用文案
func toastMessage(err error) string {
	if err == nil {
		return genericFailureMessage
	}
	if wallet.IsUserRejection(err) {
		return rejectionMessage
	}
	var domainErr *api.DomainError
	if errors.As(err, &domainErr) && domainErr.Msg != "" {
		return domainErr.Msg
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return genericFailureMessage
}

func kindLabel(kind model.OrderKind) string {
	if kind == model.OrderKindSubscribe {
		return "subscribe"
	}
	return "redeem"
}
