package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 配置
type Config struct {
	Service  ServiceConfig  `yaml:"service" json:"service"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka" json:"kafka"`
	Backend  BackendConfig  `yaml:"backend" json:"backend"`
	Solana   SolanaConfig   `yaml:"solana" json:"solana"`
	Trade    TradeConfig    `yaml:"trade" json:"trade"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	Name        string `yaml:"name" json:"name"`
	MetricsPort int    `yaml:"metrics_port" json:"metrics_port"`
	Env         string `yaml:"env" json:"env"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	Database        string `yaml:"database" json:"database"`
	User            string `yaml:"user" json:"user"`
	Password        string `yaml:"password" json:"password"`
	MaxConnections  int    `yaml:"max_connections" json:"max_connections"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addresses []string `yaml:"addresses" json:"addresses"`
	Password  string   `yaml:"password" json:"password"`
	DB        int      `yaml:"db" json:"db"`
	PoolSize  int      `yaml:"pool_size" json:"pool_size"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers" json:"brokers"`
	ClientID string   `yaml:"client_id" json:"client_id"`
}

// BackendConfig 后端订单服务配置
type BackendConfig struct {
	BaseURL        string `yaml:"base_url" json:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// SolanaConfig Solana 链配置
type SolanaConfig struct {
	RPCURL        string `yaml:"rpc_url" json:"rpc_url"`
	CashMint      string `yaml:"cash_mint" json:"cash_mint"`
	CashDecimals  uint8  `yaml:"cash_decimals" json:"cash_decimals"`
	EscrowAccount string `yaml:"escrow_account" json:"escrow_account"`
	Commitment    string `yaml:"commitment" json:"commitment"`
}

// TradeConfig 交易编排配置
type TradeConfig struct {
	LockTTLSeconds  int `yaml:"lock_ttl_seconds" json:"lock_ttl_seconds"`
	AmountScale     int `yaml:"amount_scale" json:"amount_scale"`
	QuantityScale   int `yaml:"quantity_scale" json:"quantity_scale"`
	RecoveryMaxAge  int `yaml:"recovery_max_age" json:"recovery_max_age"`   // 秒
	HistoryPageSize int `yaml:"history_page_size" json:"history_page_size"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// 环境变量替换
	content := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)

	return &cfg, nil
}

// expandEnvVars 展开环境变量 ${VAR:default}
func expandEnvVars(s string) string {
	result := s
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := result[start+2 : end]
		parts := strings.SplitN(expr, ":", 2)
		varName := parts[0]
		defaultVal := ""
		if len(parts) > 1 {
			defaultVal = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			value = defaultVal
		}

		result = result[:start] + value + result[end+1:]
	}
	return result
}

// setDefaults 设置默认值
func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "onchain-trade"
	}
	if cfg.Service.MetricsPort == 0 {
		cfg.Service.MetricsPort = 9108
	}
	if cfg.Service.Env == "" {
		cfg.Service.Env = "dev"
	}

	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.MaxConnections == 0 {
		cfg.Postgres.MaxConnections = 20
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}
	if cfg.Postgres.ConnMaxLifetime == 0 {
		cfg.Postgres.ConnMaxLifetime = 3600
	}

	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 20
	}

	if cfg.Backend.TimeoutSeconds == 0 {
		cfg.Backend.TimeoutSeconds = 30
	}

	if cfg.Solana.RPCURL == "" {
		cfg.Solana.RPCURL = "https://api.devnet.solana.com"
	}
	if cfg.Solana.CashDecimals == 0 {
		cfg.Solana.CashDecimals = 6
	}
	if cfg.Solana.Commitment == "" {
		cfg.Solana.Commitment = "finalized"
	}

	if cfg.Trade.LockTTLSeconds == 0 {
		cfg.Trade.LockTTLSeconds = 300
	}
	if cfg.Trade.AmountScale == 0 {
		cfg.Trade.AmountScale = 2
	}
	if cfg.Trade.QuantityScale == 0 {
		cfg.Trade.QuantityScale = 6
	}
	if cfg.Trade.RecoveryMaxAge == 0 {
		cfg.Trade.RecoveryMaxAge = 86400
	}
	if cfg.Trade.HistoryPageSize == 0 {
		cfg.Trade.HistoryPageSize = 20
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
