// Package metrics 提供 onchain-trade 服务的 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "onchain_trade"

// 交易编排指标
var (
	// TradesTotal 交易总数
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "交易总数",
		},
		[]string{"kind", "status"}, // kind: subscribe/redeem, status: succeeded/failed/rejected
	)

	// TradeDuration 交易端到端耗时
	TradeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trade_duration_seconds",
			Help:      "交易端到端耗时(秒)",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	// TradeStepFailures 分步骤失败数
	TradeStepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_step_failures_total",
			Help:      "按失败步骤统计的交易失败数",
		},
		[]string{"step"}, // validate, create_order, approve, pay
	)

	// TradesRecovered 启动恢复的挂起交易数
	TradesRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_recovered_total",
			Help:      "启动时恢复处理的挂起交易数",
		},
		[]string{"outcome"}, // resumed, abandoned
	)
)

// 余额查询指标
var (
	// BalanceQueriesTotal 余额查询总数
	BalanceQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_queries_total",
			Help:      "余额查询总数",
		},
		[]string{"source", "result"}, // source: chain/backend, result: ok/unavailable
	)
)

// 后端接口指标
var (
	// BackendRequestDuration 后端请求耗时
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "后端 API 请求耗时(秒)",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint"},
	)
)

// Kafka 指标
var (
	// KafkaMessagesProduced Kafka 生产消息数
	KafkaMessagesProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_produced_total",
			Help:      "Kafka 生产消息总数",
		},
		[]string{"topic"},
	)
)

// Helper functions

// RecordTrade 记录交易结束
func RecordTrade(kind, status string, durationSeconds float64) {
	TradesTotal.WithLabelValues(kind, status).Inc()
	if durationSeconds > 0 {
		TradeDuration.WithLabelValues(kind).Observe(durationSeconds)
	}
}

// RecordStepFailure 记录步骤失败
func RecordStepFailure(step string) {
	TradeStepFailures.WithLabelValues(step).Inc()
}

// RecordRecovery 记录挂起交易恢复结果
func RecordRecovery(outcome string) {
	TradesRecovered.WithLabelValues(outcome).Inc()
}

// RecordBalanceQuery 记录余额查询
func RecordBalanceQuery(source string, ok bool) {
	result := "ok"
	if !ok {
		result = "unavailable"
	}
	BalanceQueriesTotal.WithLabelValues(source, result).Inc()
}

// RecordBackendRequest 记录后端请求耗时
func RecordBackendRequest(endpoint string, seconds float64) {
	BackendRequestDuration.WithLabelValues(endpoint).Observe(seconds)
}

// RecordKafkaMessage 记录 Kafka 消息
func RecordKafkaMessage(topic string) {
	KafkaMessagesProduced.WithLabelValues(topic).Inc()
}
