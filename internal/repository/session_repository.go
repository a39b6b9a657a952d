package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/onchain-fund/onchain-trade/internal/model"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// SessionRepository 登录会话仓储接口
type SessionRepository interface {
	Upsert(ctx context.Context, session *model.Session) error
	GetByAddress(ctx context.Context, walletAddress string) (*model.Session, error)
	ClearToken(ctx context.Context, walletAddress string) error
}

// sessionRepository 登录会话仓储实现
type sessionRepository struct {
	*Repository
}

// NewSessionRepository 创建登录会话仓储
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{
		Repository: NewRepository(db),
	}
}

func (r *sessionRepository) Upsert(ctx context.Context, session *model.Session) error {
	now := time.Now().UnixMilli()
	if session.CreatedAt == 0 {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wallet_address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"token", "user_id", "updated_at",
		}),
	}).Create(session).Error
}

func (r *sessionRepository) GetByAddress(ctx context.Context, walletAddress string) (*model.Session, error) {
	var session model.Session
	err := r.DB(ctx).Where("wallet_address = ?", walletAddress).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) ClearToken(ctx context.Context, walletAddress string) error {
	result := r.DB(ctx).Model(&model.Session{}).
		Where("wallet_address = ?", walletAddress).
		Updates(map[string]interface{}{
			"token":      "",
			"updated_at": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}
