// Package kafka 提供交易生命周期事件的 Kafka 生产者
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/onchain-fund/onchain-trade/internal/metrics"
	"github.com/onchain-fund/onchain-trade/internal/model"
	"github.com/onchain-fund/onchain-trade/pkg/logger"
)

// 交易生命周期 Topic
//
// Partition Key 统一使用 attempt_id，同一笔交易的事件落在
// 同一分区保持顺序。
const (
	// TopicTradeCreated 订单已创建 (进入签名流程前)
	TopicTradeCreated = "trade-created"

	// TopicTradeConfirmed 交易确认完成 (支付成功)
	TopicTradeConfirmed = "trade-confirmed"

	// TopicTradeFailed 交易失败 (含用户拒签)
	TopicTradeFailed = "trade-failed"
)

// Producer Kafka 生产者
type Producer struct {
	producer sarama.SyncProducer
	mu       sync.RWMutex
	closed   bool
}

// ProducerConfig 生产者配置
type ProducerConfig struct {
	Brokers      []string
	ClientID     string
	RequiredAcks sarama.RequiredAcks
	MaxRetries   int
	RetryBackoff time.Duration
}

// NewProducer 创建生产者
func NewProducer(cfg *ProducerConfig) (*Producer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.ClientID = cfg.ClientID
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	requiredAcks := cfg.RequiredAcks
	if requiredAcks == 0 {
		requiredAcks = sarama.WaitForAll
	}
	config.Producer.RequiredAcks = requiredAcks

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	config.Producer.Retry.Max = maxRetries

	retryBackoff := cfg.RetryBackoff
	if retryBackoff == 0 {
		retryBackoff = 100 * time.Millisecond
	}
	config.Producer.Retry.Backoff = retryBackoff

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, err
	}

	return &Producer{
		producer: producer,
	}, nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	return p.producer.Close()
}

// send 发送消息
func (p *Producer) send(topic string, key string, value []byte) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return errors.New("producer is closed")
	}
	p.mu.RUnlock()

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Error("failed to send kafka message",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err))
		return err
	}

	metrics.RecordKafkaMessage(topic)
	logger.Debug("kafka message sent",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))

	return nil
}

// SendTradeEvent 发送交易生命周期事件
func (p *Producer) SendTradeEvent(ctx context.Context, topic string, event *model.TradeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.send(topic, event.AttemptID, data)
}

// EventPublisher 事件发布器接口
type EventPublisher interface {
	PublishTradeCreated(ctx context.Context, event *model.TradeEvent) error
	PublishTradeConfirmed(ctx context.Context, event *model.TradeEvent) error
	PublishTradeFailed(ctx context.Context, event *model.TradeEvent) error
}

// KafkaEventPublisher Kafka 事件发布器
type KafkaEventPublisher struct {
	producer *Producer
}

// NewKafkaEventPublisher 创建 Kafka 事件发布器
func NewKafkaEventPublisher(producer *Producer) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		producer: producer,
	}
}

func (p *KafkaEventPublisher) PublishTradeCreated(ctx context.Context, event *model.TradeEvent) error {
	return p.producer.SendTradeEvent(ctx, TopicTradeCreated, event)
}

func (p *KafkaEventPublisher) PublishTradeConfirmed(ctx context.Context, event *model.TradeEvent) error {
	return p.producer.SendTradeEvent(ctx, TopicTradeConfirmed, event)
}

func (p *KafkaEventPublisher) PublishTradeFailed(ctx context.Context, event *model.TradeEvent) error {
	return p.producer.SendTradeEvent(ctx, TopicTradeFailed, event)
}
