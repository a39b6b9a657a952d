package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/onchain-fund/onchain-trade/internal/api"
	"github.com/onchain-fund/onchain-trade/internal/model"
	"github.com/onchain-fund/onchain-trade/internal/repository"
	"github.com/onchain-fund/onchain-trade/internal/ui"
	"github.com/onchain-fund/onchain-trade/internal/wallet"
	"github.com/onchain-fund/onchain-trade/pkg/lock"
)

var testDBCounter int64

func setupTestRepo(t *testing.T) repository.PendingTradeRepository {
	counter := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:servicedb%d?mode=memory&cache=shared", counter)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.PendingTrade{}))
	return repository.NewPendingTradeRepository(db)
}

// mockOrderAPI 模拟后端订单协议客户端
type mockOrderAPI struct {
	mock.Mock
}

func (m *mockOrderAPI) CreateSubscribeOrder(ctx context.Context, productID string, totalAmount, productQuantity, fundNetValue decimal.Decimal) (string, error) {
	args := m.Called(ctx, productID, totalAmount, productQuantity, fundNetValue)
	return args.String(0), args.Error(1)
}

func (m *mockOrderAPI) PaySubscriptionOrder(ctx context.Context, orderID, approveTxHash string, cashAmount decimal.Decimal) error {
	args := m.Called(ctx, orderID, approveTxHash, cashAmount)
	return args.Error(0)
}

func (m *mockOrderAPI) CreateRedemptionOrder(ctx context.Context, productID string, redeemAmount, productQuantity, fundNetValue decimal.Decimal) (string, error) {
	args := m.Called(ctx, productID, redeemAmount, productQuantity, fundNetValue)
	return args.String(0), args.Error(1)
}

func (m *mockOrderAPI) PayRedemptionOrder(ctx context.Context, orderID string, ifRealize bool, approveTxHash string) error {
	args := m.Called(ctx, orderID, ifRealize, approveTxHash)
	return args.Error(0)
}

// stubBalances 固定余额提供方
type stubBalances struct {
	cash    model.Balance
	holding model.Balance
}

func (s *stubBalances) CashBalance(ctx context.Context, walletAddress string) model.Balance {
	return s.cash
}

func (s *stubBalances) FundBalance(ctx context.Context, walletAddress, fundName string) model.Balance {
	return s.holding
}

// stubFunds 固定授权交易组装
type stubFunds struct {
	err error
}

func (s *stubFunds) ApproveCash(ctx context.Context, ownerAddress string, amount decimal.Decimal) (*solana.Transaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &solana.Transaction{}, nil
}

func (s *stubFunds) ApproveFundAsset(ctx context.Context, ownerAddress, assetMint string, assetDecimals uint8, quantity decimal.Decimal) (*solana.Transaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &solana.Transaction{}, nil
}

// stubSigner 固定签名结果
type stubSigner struct {
	address string
	txHash  string
	err     error
}

func (s *stubSigner) Address() (string, error) {
	if s.address == "" {
		return "", wallet.ErrNotConnected
	}
	return s.address, nil
}

func (s *stubSigner) SignAndSend(ctx context.Context, tx *solana.Transaction) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.txHash, nil
}

// passLocker 直接执行的锁
type passLocker struct{}

func (passLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// busyLocker 始终占用的锁
type busyLocker struct{}

func (busyLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return lock.ErrLockAcquireFailed
}

const testWallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

func testProduct() *model.Product {
	return &model.Product{
		ProductID:          "fund-001",
		FundName:           "Stable Growth",
		FundNetValue:       decimal.RequireFromString("1.0"),
		MinSubscribeAmount: decimal.NewFromInt(10),
		MinRedeemQuantity:  decimal.NewFromInt(1),
		AssetMint:          "So11111111111111111111111111111111111111112",
		AssetDecimals:      6,
	}
}

type tradeFixture struct {
	orders      *mockOrderAPI
	balances    *stubBalances
	funds       *stubFunds
	signer      *stubSigner
	repo        repository.PendingTradeRepository
	coordinator *ui.Coordinator
	svc         *TradeService
}

func newTradeFixture(t *testing.T) *tradeFixture {
	f := &tradeFixture{
		orders: &mockOrderAPI{},
		balances: &stubBalances{
			cash:    model.KnownBalance(decimal.NewFromInt(1000)),
			holding: model.KnownBalance(decimal.NewFromInt(500)),
		},
		funds:       &stubFunds{},
		signer:      &stubSigner{address: testWallet, txHash: "5KtP9UzJ3xA"},
		repo:        setupTestRepo(t),
		coordinator: ui.NewCoordinator(),
	}
	f.svc = NewTradeService(
		f.orders, f.balances, f.funds, f.signer,
		f.repo, passLocker{}, nil, f.coordinator,
		TradeServiceOptions{AmountScale: 2, QuantityScale: 6},
	)
	return f
}

func TestSubscribe_Success(t *testing.T) {
	f := newTradeFixture(t)
	f.coordinator.SetAmountInput("100")
	ctx := context.Background()

	f.orders.On("CreateSubscribeOrder", mock.Anything, "fund-001",
		mock.Anything, mock.Anything, mock.Anything).Return("ord1", nil)
	f.orders.On("PaySubscriptionOrder", mock.Anything, "ord1", "5KtP9UzJ3xA",
		mock.Anything).Return(nil)

	result, err := f.svc.Subscribe(ctx, testProduct(), "100")
	require.NoError(t, err)
	assert.Equal(t, model.TradeStateSucceeded, result.State)
	assert.Equal(t, "ord1", result.OrderID)
	assert.Equal(t, "5KtP9UzJ3xA", result.ApproveTxHash)

	// Success clears the input and opens the success modal
	snap := f.coordinator.Snapshot()
	assert.Empty(t, snap.AmountInput)
	assert.Equal(t, ui.ModalSuccess, snap.Modal)

	// Pending row reached terminal completed state
	row, err := f.repo.GetByAttemptID(ctx, result.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, model.PendingTradeStatusCompleted, row.Status)
	assert.Equal(t, model.TradeStepPaid, row.Step)

	f.orders.AssertExpectations(t)
}

func TestSubscribe_QuantityDerivation(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()

	product := testProduct()
	product.FundNetValue = decimal.RequireFromString("1.05")

	// 100 / 1.05 rounded to 6 decimal places
	wantQuantity := decimal.RequireFromString("95.238095")

	f.orders.On("CreateSubscribeOrder", mock.Anything, "fund-001",
		mock.Anything, mock.MatchedBy(func(q decimal.Decimal) bool {
			return q.Equal(wantQuantity)
		}), mock.Anything).Return("ord2", nil)
	f.orders.On("PaySubscriptionOrder", mock.Anything, "ord2",
		mock.Anything, mock.Anything).Return(nil)

	result, err := f.svc.Subscribe(ctx, product, "100")
	require.NoError(t, err)
	assert.Equal(t, model.TradeStateSucceeded, result.State)
	f.orders.AssertExpectations(t)
}

func TestTrade_AmountQuantityRoundTrip(t *testing.T) {
	// 申购按 amount/nav 推导份额，赎回按 quantity*nav 推导金额。
	// 把申购推导出的份额原样喂回赎回，金额必须在一分钱内回到原值。
	for _, nav := range []string{"1.05", "0.97", "2.333333"} {
		t.Run("nav "+nav, func(t *testing.T) {
			f := newTradeFixture(t)
			ctx := context.Background()

			product := testProduct()
			product.FundNetValue = decimal.RequireFromString(nav)

			var derivedQuantity decimal.Decimal
			f.orders.On("CreateSubscribeOrder", mock.Anything, "fund-001",
				mock.Anything, mock.MatchedBy(func(q decimal.Decimal) bool {
					derivedQuantity = q
					return true
				}), mock.Anything).Return("ord-s", nil)
			f.orders.On("PaySubscriptionOrder", mock.Anything, "ord-s",
				mock.Anything, mock.Anything).Return(nil)

			_, err := f.svc.Subscribe(ctx, product, "100")
			require.NoError(t, err)
			require.False(t, derivedQuantity.IsZero())

			f.orders.On("CreateRedemptionOrder", mock.Anything, "fund-001",
				mock.Anything, mock.Anything, mock.Anything).Return("ord-r", nil)
			f.orders.On("PayRedemptionOrder", mock.Anything, "ord-r",
				false, mock.Anything).Return(nil)

			result, err := f.svc.Redeem(ctx, product, derivedQuantity.String(), false)
			require.NoError(t, err)

			row, err := f.repo.GetByAttemptID(ctx, result.AttemptID)
			require.NoError(t, err)
			drift := row.Amount.Sub(decimal.NewFromInt(100)).Abs()
			assert.True(t, drift.LessThanOrEqual(decimal.RequireFromString("0.01")),
				"round trip drift %s at nav %s", drift, nav)
		})
	}
}

func TestTrade_StateTransitionsObservable(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()

	var states []model.TradeState
	f.svc.OnStateChange(func(s model.TradeState) {
		states = append(states, s)
	})

	f.orders.On("CreateSubscribeOrder", mock.Anything, "fund-001",
		mock.Anything, mock.Anything, mock.Anything).Return("ord1", nil)
	f.orders.On("PaySubscriptionOrder", mock.Anything, "ord1",
		mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Subscribe(ctx, testProduct(), "100")
	require.NoError(t, err)

	assert.Equal(t, []model.TradeState{
		model.TradeStateValidating,
		model.TradeStateCreatingOrder,
		model.TradeStateAwaitingApproval,
		model.TradeStateConfirmingPayment,
		model.TradeStateSucceeded,
	}, states)
}

func TestTrade_StateMachineReturnsToIdleWhenBlocked(t *testing.T) {
	f := newTradeFixture(t)

	var states []model.TradeState
	f.svc.OnStateChange(func(s model.TradeState) {
		states = append(states, s)
	})

	_, err := f.svc.Subscribe(context.Background(), testProduct(), "5")
	require.NoError(t, err)

	assert.Equal(t, []model.TradeState{
		model.TradeStateValidating,
		model.TradeStateIdle,
	}, states)
}

func TestTrade_StateMachineEndsFailedOnRejection(t *testing.T) {
	f := newTradeFixture(t)

	var last model.TradeState
	f.svc.OnStateChange(func(s model.TradeState) {
		last = s
	})

	f.orders.On("CreateSubscribeOrder", mock.Anything, "fund-001",
		mock.Anything, mock.Anything, mock.Anything).Return("ord1", nil)
	f.signer.err = &wallet.ConnectorError{Code: 4001, Message: "User rejected the request"}

	_, err := f.svc.Subscribe(context.Background(), testProduct(), "100")
	require.Error(t, err)
	assert.Equal(t, model.TradeStateFailed, last)
}

func TestSubscribe_UserRejection(t *testing.T) {
	f := newTradeFixture(t)
	f.coordinator.SetAmountInput("100")
	ctx := context.Background()

	f.orders.On("CreateSubscribeOrder", mock.Anything, "fund-001",
		mock.Anything, mock.Anything, mock.Anything).Return("ord1", nil)
	f.signer.err = &wallet.ConnectorError{Code: 4001, Message: "User rejected the request"}

	result, err := f.svc.Subscribe(ctx, testProduct(), "100")
	require.Error(t, err)
	assert.Equal(t, model.TradeStateFailed, result.State)

	// Rejection gets the softer toast wording, input preserved for retry
	snap := f.coordinator.Snapshot()
	assert.Equal(t, "100", snap.AmountInput)
	assert.Equal(t, ui.ModalNone, snap.Modal)
	toasts := f.coordinator.DrainToasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, rejectionMessage, toasts[0])

	row, rerr := f.repo.GetByAttemptID(ctx, result.AttemptID)
	require.NoError(t, rerr)
	assert.Equal(t, model.PendingTradeStatusFailed, row.Status)

	f.orders.AssertNotCalled(t, "PaySubscriptionOrder",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubscribe_PayFailureUsesServerMessage(t *testing.T) {
	f := newTradeFixture(t)
	f.coordinator.SetAmountInput("100")
	ctx := context.Background()

	f.orders.On("CreateSubscribeOrder", mock.Anything, "fund-001",
		mock.Anything, mock.Anything, mock.Anything).Return("ord1", nil)
	f.orders.On("PaySubscriptionOrder", mock.Anything, "ord1", "5KtP9UzJ3xA",
		mock.Anything).Return(&api.DomainError{Msg: "insufficient liquidity"})

	result, err := f.svc.Subscribe(ctx, testProduct(), "100")
	require.Error(t, err)
	assert.Equal(t, model.TradeStateFailed, result.State)

	// Server-provided message wins, loading modal closed, no success modal
	toasts := f.coordinator.DrainToasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, "insufficient liquidity", toasts[0])
	assert.Equal(t, ui.ModalNone, f.coordinator.Modal())
	assert.Equal(t, "100", f.coordinator.Snapshot().AmountInput)
}

func TestSubscribe_ValidationBlocksBeforeNetwork(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()

	t.Run("below minimum", func(t *testing.T) {
		result, err := f.svc.Subscribe(ctx, testProduct(), "5")
		require.NoError(t, err)
		assert.Equal(t, model.TradeStateIdle, result.State)
		assert.Contains(t, result.Reason, "minimum subscription amount")
	})

	t.Run("above cash balance", func(t *testing.T) {
		result, err := f.svc.Subscribe(ctx, testProduct(), "5000")
		require.NoError(t, err)
		assert.Equal(t, model.TradeStateIdle, result.State)
		assert.Equal(t, "insufficient cash balance", result.Reason)
	})

	t.Run("empty amount", func(t *testing.T) {
		result, err := f.svc.Subscribe(ctx, testProduct(), "")
		require.NoError(t, err)
		assert.Equal(t, model.TradeStateIdle, result.State)
		assert.Equal(t, "amount is required", result.Reason)
	})

	t.Run("wallet not connected", func(t *testing.T) {
		f.signer.address = ""
		defer func() { f.signer.address = testWallet }()
		result, err := f.svc.Subscribe(ctx, testProduct(), "100")
		require.NoError(t, err)
		assert.Equal(t, model.TradeStateIdle, result.State)
		assert.Equal(t, "wallet is not connected", result.Reason)
	})

	t.Run("zero net value", func(t *testing.T) {
		product := testProduct()
		product.FundNetValue = decimal.Zero
		result, err := f.svc.Subscribe(ctx, product, "100")
		require.NoError(t, err)
		assert.Equal(t, model.TradeStateIdle, result.State)
		assert.Equal(t, "fund net value is unavailable", result.Reason)

		result, err = f.svc.Redeem(ctx, product, "100", false)
		require.NoError(t, err)
		assert.Equal(t, model.TradeStateIdle, result.State)
		assert.Equal(t, "fund net value is unavailable", result.Reason)
	})

	// None of the blocked attempts may reach the backend
	f.orders.AssertNotCalled(t, "CreateSubscribeOrder",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRedeem_SkipsBalanceCheckWhenUnavailable(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()

	// Backend holding query failed, sentinel balance must not block the trade
	f.balances.holding = model.UnavailableBalance()

	f.orders.On("CreateRedemptionOrder", mock.Anything, "fund-001",
		mock.Anything, mock.Anything, mock.Anything).Return("ord3", nil)
	f.orders.On("PayRedemptionOrder", mock.Anything, "ord3", false, "5KtP9UzJ3xA").Return(nil)

	result, err := f.svc.Redeem(ctx, testProduct(), "100", false)
	require.NoError(t, err)
	assert.Equal(t, model.TradeStateSucceeded, result.State)
	assert.Equal(t, ui.ModalRedeemProgress, f.coordinator.Modal())
	f.orders.AssertExpectations(t)
}

func TestRedeem_BlockedByKnownBalance(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()

	f.balances.holding = model.KnownBalance(decimal.NewFromInt(50))

	result, err := f.svc.Redeem(ctx, testProduct(), "100", false)
	require.NoError(t, err)
	assert.Equal(t, model.TradeStateIdle, result.State)
	assert.Equal(t, "insufficient fund balance", result.Reason)
}

func TestTrade_LockContention(t *testing.T) {
	f := newTradeFixture(t)
	f.svc = NewTradeService(
		f.orders, f.balances, f.funds, f.signer,
		f.repo, busyLocker{}, nil, f.coordinator,
		TradeServiceOptions{},
	)

	result, err := f.svc.Subscribe(context.Background(), testProduct(), "100")
	assert.ErrorIs(t, err, ErrTradeInProgress)
	assert.Equal(t, model.TradeStateFailed, result.State)

	toasts := f.coordinator.DrainToasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, ErrTradeInProgress.Error(), toasts[0])
}

func TestRecoverPending(t *testing.T) {
	f := newTradeFixture(t)
	ctx := context.Background()

	seed := func(attemptID string, step model.TradeStep, orderID, txHash string) {
		trade := &model.PendingTrade{
			AttemptID:     attemptID,
			WalletAddress: testWallet,
			ProductID:     "fund-001",
			Kind:          model.OrderKindSubscribe,
			Step:          step,
			OrderID:       orderID,
			Amount:        decimal.NewFromInt(100),
			Quantity:      decimal.NewFromInt(100),
			FundNetValue:  decimal.NewFromInt(1),
			ApproveTxHash: txHash,
		}
		require.NoError(t, f.repo.Create(ctx, trade))
	}

	// Approved with a recorded tx hash: payment confirmation is replayed
	seed("resumable", model.TradeStepApproved, "ord-r", "txhash-r")
	// Interrupted before signing: nothing safe to replay
	seed("stuck-created", model.TradeStepCreated, "", "")

	f.orders.On("PaySubscriptionOrder", mock.Anything, "ord-r", "txhash-r",
		mock.Anything).Return(nil)

	require.NoError(t, f.svc.RecoverPending(ctx))

	resumed, err := f.repo.GetByAttemptID(ctx, "resumable")
	require.NoError(t, err)
	assert.Equal(t, model.PendingTradeStatusCompleted, resumed.Status)

	stuck, err := f.repo.GetByAttemptID(ctx, "stuck-created")
	require.NoError(t, err)
	assert.Equal(t, model.PendingTradeStatusAbandoned, stuck.Status)

	f.orders.AssertExpectations(t)
}

func TestRecoverPending_AbandonsExpired(t *testing.T) {
	f := newTradeFixture(t)
	f.svc = NewTradeService(
		f.orders, f.balances, f.funds, f.signer,
		f.repo, passLocker{}, nil, f.coordinator,
		TradeServiceOptions{RecoveryMaxAge: time.Millisecond},
	)
	ctx := context.Background()

	trade := &model.PendingTrade{
		AttemptID:     "old",
		WalletAddress: testWallet,
		ProductID:     "fund-001",
		Kind:          model.OrderKindSubscribe,
		Step:          model.TradeStepApproved,
		OrderID:       "ord-old",
		Amount:        decimal.NewFromInt(100),
		Quantity:      decimal.NewFromInt(100),
		FundNetValue:  decimal.NewFromInt(1),
		ApproveTxHash: "txhash-old",
	}
	require.NoError(t, f.repo.Create(ctx, trade))
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, f.svc.RecoverPending(ctx))

	row, err := f.repo.GetByAttemptID(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, model.PendingTradeStatusAbandoned, row.Status)

	// Expired rows never reach the backend, even with a tx hash on file
	f.orders.AssertNotCalled(t, "PaySubscriptionOrder",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestToastMessagePreference(t *testing.T) {
	assert.Equal(t, "insufficient liquidity",
		toastMessage(&api.DomainError{Msg: "insufficient liquidity"}))
	assert.Equal(t, rejectionMessage,
		toastMessage(wallet.ErrUserRejected))
	assert.Equal(t, "connection reset",
		toastMessage(errors.New("connection reset")))
	assert.Equal(t, genericFailureMessage, toastMessage(nil))
}
