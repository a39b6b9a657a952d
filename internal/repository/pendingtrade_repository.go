package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/onchain-fund/onchain-trade/internal/model"
)

var (
	ErrPendingTradeNotFound = errors.New("pending trade not found")
)

// PendingTradeRepository 交易挂起上下文仓储接口
type PendingTradeRepository interface {
	Create(ctx context.Context, trade *model.PendingTrade) error
	GetByAttemptID(ctx context.Context, attemptID string) (*model.PendingTrade, error)
	UpdateStep(ctx context.Context, attemptID string, step model.TradeStep) error
	UpdateOrderID(ctx context.Context, attemptID string, orderID string) error
	UpdateApproveTxHash(ctx context.Context, attemptID string, txHash string) error
	MarkCompleted(ctx context.Context, attemptID string) error
	MarkFailed(ctx context.Context, attemptID string, errMsg string) error
	MarkAbandoned(ctx context.Context, attemptID string) error

	ListActive(ctx context.Context, walletAddress string) ([]*model.PendingTrade, error)
	ListRecent(ctx context.Context, walletAddress string, page *Pagination) ([]*model.PendingTrade, error)
}

// pendingTradeRepository 交易挂起上下文仓储实现
type pendingTradeRepository struct {
	*Repository
}

// NewPendingTradeRepository 创建交易挂起上下文仓储
func NewPendingTradeRepository(db *gorm.DB) PendingTradeRepository {
	return &pendingTradeRepository{
		Repository: NewRepository(db),
	}
}

func (r *pendingTradeRepository) Create(ctx context.Context, trade *model.PendingTrade) error {
	now := time.Now().UnixMilli()
	trade.CreatedAt = now
	trade.UpdatedAt = now
	return r.DB(ctx).Create(trade).Error
}

func (r *pendingTradeRepository) GetByAttemptID(ctx context.Context, attemptID string) (*model.PendingTrade, error) {
	var trade model.PendingTrade
	err := r.DB(ctx).Where("attempt_id = ?", attemptID).First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPendingTradeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

func (r *pendingTradeRepository) UpdateStep(ctx context.Context, attemptID string, step model.TradeStep) error {
	return r.updateByAttemptID(ctx, attemptID, map[string]interface{}{
		"step": step,
	})
}

func (r *pendingTradeRepository) UpdateOrderID(ctx context.Context, attemptID string, orderID string) error {
	return r.updateByAttemptID(ctx, attemptID, map[string]interface{}{
		"order_id": orderID,
	})
}

func (r *pendingTradeRepository) UpdateApproveTxHash(ctx context.Context, attemptID string, txHash string) error {
	return r.updateByAttemptID(ctx, attemptID, map[string]interface{}{
		"approve_tx_hash": txHash,
		"step":            model.TradeStepApproved,
	})
}

func (r *pendingTradeRepository) MarkCompleted(ctx context.Context, attemptID string) error {
	return r.updateByAttemptID(ctx, attemptID, map[string]interface{}{
		"status": model.PendingTradeStatusCompleted,
		"step":   model.TradeStepPaid,
	})
}

func (r *pendingTradeRepository) MarkFailed(ctx context.Context, attemptID string, errMsg string) error {
	return r.updateByAttemptID(ctx, attemptID, map[string]interface{}{
		"status":        model.PendingTradeStatusFailed,
		"error_message": errMsg,
	})
}

func (r *pendingTradeRepository) MarkAbandoned(ctx context.Context, attemptID string) error {
	return r.updateByAttemptID(ctx, attemptID, map[string]interface{}{
		"status": model.PendingTradeStatusAbandoned,
	})
}

func (r *pendingTradeRepository) updateByAttemptID(ctx context.Context, attemptID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UnixMilli()
	result := r.DB(ctx).Model(&model.PendingTrade{}).
		Where("attempt_id = ?", attemptID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPendingTradeNotFound
	}
	return nil
}

func (r *pendingTradeRepository) ListActive(ctx context.Context, walletAddress string) ([]*model.PendingTrade, error) {
	var trades []*model.PendingTrade
	query := r.DB(ctx).Where("status = ?", model.PendingTradeStatusActive)
	if walletAddress != "" {
		query = query.Where("wallet_address = ?", walletAddress)
	}
	err := query.Order("created_at ASC").Find(&trades).Error
	return trades, err
}

func (r *pendingTradeRepository) ListRecent(ctx context.Context, walletAddress string, page *Pagination) ([]*model.PendingTrade, error) {
	var trades []*model.PendingTrade

	query := r.DB(ctx).Model(&model.PendingTrade{}).Where("wallet_address = ?", walletAddress)

	if err := query.Count(&page.Total).Error; err != nil {
		return nil, err
	}

	err := query.
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&trades).Error
	return trades, err
}
