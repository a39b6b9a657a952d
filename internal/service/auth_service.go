package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/onchain-fund/onchain-trade/internal/api"
	"github.com/onchain-fund/onchain-trade/internal/model"
	"github.com/onchain-fund/onchain-trade/internal/repository"
	"github.com/onchain-fund/onchain-trade/internal/ui"
	"github.com/onchain-fund/onchain-trade/internal/wallet"
	"github.com/onchain-fund/onchain-trade/pkg/logger"
)

const reconnectMessage = "Please reconnect your wallet"
const signInFailedMessage = "Sign in failed"

// MessageSigner 消息签名能力 (返回 base64 编码签名)
type MessageSigner interface {
	SignMessage(ctx context.Context, message string) (string, error)
}

// AuthAPI 后端钱包认证接口
type AuthAPI interface {
	Connect(ctx context.Context, signatureB64, walletAddress, message string) (*api.WalletConnectResult, error)
}

// TokenStore 进程内会话 token 容器
type TokenStore interface {
	SetToken(token string)
	ClearToken()
	HasToken() bool
}

// AuthService 认证会话引导
//
// 监听钱包连接状态: 连接且无 token 时自动走一次挑战签名登录。
// 登录失败不自动重试，等下一次连接状态变化重新触发守卫条件。
// 断开连接时清空进程内与持久化的 token。
type AuthService struct {
	signer      MessageSigner
	authAPI     AuthAPI
	sessions    repository.SessionRepository
	tokens      TokenStore
	coordinator *ui.Coordinator
}

// NewAuthService 创建认证会话引导
func NewAuthService(
	signer MessageSigner,
	authAPI AuthAPI,
	sessions repository.SessionRepository,
	tokens TokenStore,
	coordinator *ui.Coordinator,
) *AuthService {
	return &AuthService{
		signer:      signer,
		authAPI:     authAPI,
		sessions:    sessions,
		tokens:      tokens,
		coordinator: coordinator,
	}
}

// OnWalletStateChange 钱包连接状态变化回调
//
// 守卫条件: 有地址、已连接、无 token 才触发登录，满足其一
// 不成立就什么都不做，避免重复签名弹窗。
func (s *AuthService) OnWalletStateChange(ctx context.Context, state wallet.State) {
	if !state.Connected || state.Address == "" {
		s.SignOut(ctx, state.Address)
		return
	}
	if s.tokens.HasToken() {
		return
	}
	if err := s.SignIn(ctx, state.Address); err != nil {
		logger.Warn("wallet sign-in failed",
			zap.String("address", state.Address), zap.Error(err))
	}
}

// SignIn 对带时间戳的挑战消息签名并换取会话 token
func (s *AuthService) SignIn(ctx context.Context, address string) error {
	message := challengeMessage(time.Now().UnixMilli())

	signature, err := s.signer.SignMessage(ctx, message)
	if err != nil {
		if wallet.IsUserRejection(err) {
			s.coordinator.Toast(rejectionMessage)
		} else {
			s.coordinator.Toast(signInFailedMessage)
		}
		return err
	}

	result, err := s.authAPI.Connect(ctx, signature, address, message)
	if err != nil {
		if strings.Contains(err.Error(), "reconnect") {
			s.coordinator.Toast(reconnectMessage)
		} else {
			s.coordinator.Toast(signInFailedMessage)
		}
		return err
	}

	s.tokens.SetToken(result.Token)
	if err := s.sessions.Upsert(ctx, &model.Session{
		WalletAddress: address,
		Token:         result.Token,
		UserID:        result.UserID,
	}); err != nil {
		// token 已可用，持久化失败只影响下次启动的会话恢复
		logger.Warn("persist session failed",
			zap.String("address", address), zap.Error(err))
	}

	logger.Info("wallet signed in",
		zap.String("address", address),
		zap.String("user_id", result.UserID))
	return nil
}

// SignOut 清空进程内与持久化的会话
func (s *AuthService) SignOut(ctx context.Context, address string) {
	s.tokens.ClearToken()
	if address == "" {
		return
	}
	if err := s.sessions.ClearToken(ctx, address); err != nil &&
		!errors.Is(err, repository.ErrSessionNotFound) {
		logger.Warn("clear persisted session failed",
			zap.String("address", address), zap.Error(err))
	}
}

// RestoreSession 启动时从持久化会话恢复 token
//
// 找不到会话或 token 为空不算错误，走正常的连接触发登录。
func (s *AuthService) RestoreSession(ctx context.Context, address string) bool {
	session, err := s.sessions.GetByAddress(ctx, address)
	if err != nil {
		if !errors.Is(err, repository.ErrSessionNotFound) {
			logger.Warn("load persisted session failed",
				zap.String("address", address), zap.Error(err))
		}
		return false
	}
	if session.Token == "" {
		return false
	}
	s.tokens.SetToken(session.Token)
	return true
}

// challengeMessage 登录挑战消息，带当前毫秒时间戳防重放
func challengeMessage(timestampMs int64) string {
	return fmt.Sprintf("Sign in to OnChain\nTimestamp: %d", timestampMs)
}
