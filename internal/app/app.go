// Package app 提供 onchain-trade 服务的应用生命周期管理
//
// 服务职责:
//  1. 交易编排: 申购/赎回的 create -> approve -> pay 主链路
//  2. 钱包会话: 连接触发的挑战签名登录与会话持久化
//  3. 挂起恢复: 启动时续作或放弃上次进程遗留的未完成交易
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/onchain-fund/onchain-trade/internal/api"
	"github.com/onchain-fund/onchain-trade/internal/chain"
	"github.com/onchain-fund/onchain-trade/internal/config"
	"github.com/onchain-fund/onchain-trade/internal/kafka"
	"github.com/onchain-fund/onchain-trade/internal/model"
	"github.com/onchain-fund/onchain-trade/internal/repository"
	"github.com/onchain-fund/onchain-trade/internal/service"
	"github.com/onchain-fund/onchain-trade/internal/ui"
	"github.com/onchain-fund/onchain-trade/internal/wallet"
	"github.com/onchain-fund/onchain-trade/pkg/lock"
	"github.com/onchain-fund/onchain-trade/pkg/logger"
)

// App 应用
type App struct {
	cfg *config.Config

	// 基础设施
	db    *gorm.DB
	redis *redis.Client

	// 链上
	provider   *chain.Provider
	balances   *chain.BalanceProvider
	fundClient *chain.FundClient

	// 后端
	apiClient    *api.Client
	orderClient  *api.OrderClient
	walletClient *api.WalletClient

	// 钱包
	walletStore *wallet.Store
	signer      *wallet.Signer

	// 仓储
	sessionRepo repository.SessionRepository
	pendingRepo repository.PendingTradeRepository

	// 服务
	tradeSvc *service.TradeService
	authSvc  *service.AuthService

	// UI
	coordinator *ui.Coordinator

	// Kafka
	kafkaProducer  *kafka.Producer
	eventPublisher *kafka.KafkaEventPublisher

	// 运行控制
	metricsServer *http.Server
	stopCh        chan struct{}
}

// NewApp 创建应用
func NewApp(cfg *config.Config) (*App, error) {
	app := &App{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}

	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}

	if err := app.initChain(); err != nil {
		return nil, fmt.Errorf("failed to init chain clients: %w", err)
	}

	if err := app.initBackend(); err != nil {
		return nil, fmt.Errorf("failed to init backend clients: %w", err)
	}

	app.initRepositories()

	if err := app.initKafka(); err != nil {
		return nil, fmt.Errorf("failed to init kafka: %w", err)
	}

	app.initServices()

	return app, nil
}

// initInfrastructure 初始化基础设施
func (a *App) initInfrastructure() error {
	// PostgreSQL
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		a.cfg.Postgres.Host,
		a.cfg.Postgres.Port,
		a.cfg.Postgres.User,
		a.cfg.Postgres.Password,
		a.cfg.Postgres.Database,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(a.cfg.Postgres.MaxConnections)
	sqlDB.SetMaxIdleConns(a.cfg.Postgres.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(a.cfg.Postgres.ConnMaxLifetime) * time.Second)

	a.db = db
	logger.Info("database connected", zap.String("host", a.cfg.Postgres.Host))

	if err := autoMigrate(a.db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("database migrated")

	// Redis
	redisAddr := "localhost:6379"
	if len(a.cfg.Redis.Addresses) > 0 {
		redisAddr = a.cfg.Redis.Addresses[0]
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})

	if err := a.redis.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", redisAddr))

	return nil
}

// initChain 初始化链上客户端
func (a *App) initChain() error {
	a.provider = chain.NewProvider(a.cfg.Solana.RPCURL, a.cfg.Solana.Commitment)

	fundClient, err := chain.NewFundClient(
		a.provider,
		a.cfg.Solana.CashMint,
		a.cfg.Solana.CashDecimals,
		a.cfg.Solana.EscrowAccount,
	)
	if err != nil {
		return err
	}
	a.fundClient = fundClient

	logger.Info("chain clients initialized",
		zap.String("rpc_url", a.cfg.Solana.RPCURL),
		zap.String("cash_mint", a.cfg.Solana.CashMint))
	return nil
}

// initBackend 初始化后端客户端与钱包组件
func (a *App) initBackend() error {
	a.apiClient = api.NewClient(
		a.cfg.Backend.BaseURL,
		time.Duration(a.cfg.Backend.TimeoutSeconds)*time.Second,
	)
	a.orderClient = api.NewOrderClient(a.apiClient)
	a.walletClient = api.NewWalletClient(a.apiClient)

	// 余额读取依赖后端份额接口，放在钱包客户端就绪之后装配
	balances, err := chain.NewBalanceProvider(a.provider, a.walletClient, a.cfg.Solana.CashMint)
	if err != nil {
		return err
	}
	a.balances = balances

	a.walletStore = wallet.NewStore()
	a.signer = wallet.NewSigner(a.walletStore, a.provider)

	logger.Info("backend clients initialized", zap.String("base_url", a.cfg.Backend.BaseURL))
	return nil
}

// initRepositories 初始化仓储
func (a *App) initRepositories() {
	a.sessionRepo = repository.NewSessionRepository(a.db)
	a.pendingRepo = repository.NewPendingTradeRepository(a.db)

	logger.Info("repositories initialized")
}

// initKafka 初始化 Kafka
func (a *App) initKafka() error {
	producer, err := kafka.NewProducer(&kafka.ProducerConfig{
		Brokers:  a.cfg.Kafka.Brokers,
		ClientID: a.cfg.Kafka.ClientID,
	})
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	a.kafkaProducer = producer
	a.eventPublisher = kafka.NewKafkaEventPublisher(producer)

	logger.Info("kafka initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return nil
}

// initServices 初始化服务
func (a *App) initServices() {
	a.coordinator = ui.NewCoordinator()

	locker := lock.NewRedisLocker(
		a.redis,
		"trade:lock:",
		time.Duration(a.cfg.Trade.LockTTLSeconds)*time.Second,
	)

	a.tradeSvc = service.NewTradeService(
		a.orderClient,
		a.balances,
		a.fundClient,
		a.signer,
		a.pendingRepo,
		locker,
		a.eventPublisher,
		a.coordinator,
		service.TradeServiceOptions{
			AmountScale:    int32(a.cfg.Trade.AmountScale),
			QuantityScale:  int32(a.cfg.Trade.QuantityScale),
			RecoveryMaxAge: time.Duration(a.cfg.Trade.RecoveryMaxAge) * time.Second,
		},
	)

	a.authSvc = service.NewAuthService(
		a.signer,
		a.walletClient,
		a.sessionRepo,
		a.apiClient,
		a.coordinator,
	)

	// 钱包连接状态变化驱动会话引导
	a.walletStore.OnChange(func(state wallet.State) {
		a.authSvc.OnWalletStateChange(context.Background(), state)
	})

	logger.Info("services initialized")
}

// WalletStore 钱包连接器容器 (供连接器装配方使用)
func (a *App) WalletStore() *wallet.Store {
	return a.walletStore
}

// TradeService 交易编排器
func (a *App) TradeService() *service.TradeService {
	return a.tradeSvc
}

// AuthService 认证会话引导
func (a *App) AuthService() *service.AuthService {
	return a.authSvc
}

// Coordinator 界面状态协调器
func (a *App) Coordinator() *ui.Coordinator {
	return a.coordinator
}

// Run 运行应用
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动前先处理上次遗留的挂起交易
	if err := a.tradeSvc.RecoverPending(ctx); err != nil {
		logger.Error("recover pending trades failed", zap.Error(err))
	}

	// 指标端口
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	a.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Service.MetricsPort),
		Handler: mux,
	}

	go func() {
		logger.Info("metrics server listening", zap.Int("port", a.cfg.Service.MetricsPort))
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-a.stopCh:
		logger.Info("shutdown requested")
	}

	return a.shutdown()
}

// shutdown 关闭应用
func (a *App) shutdown() error {
	logger.Info("shutting down...")

	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metricsServer.Shutdown(shutdownCtx)
	}

	if a.kafkaProducer != nil {
		_ = a.kafkaProducer.Close()
	}

	if a.redis != nil {
		_ = a.redis.Close()
	}

	if a.db != nil {
		sqlDB, _ := a.db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// Stop 停止应用
func (a *App) Stop() {
	close(a.stopCh)
}

// autoMigrate 表结构迁移
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Session{},
		&model.PendingTrade{},
	)
}
