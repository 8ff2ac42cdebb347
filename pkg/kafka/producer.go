// Package kafka 提供通知镜像的 Kafka 生产者与消费者
package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/qiminjie89/rtsession/pkg/logger"
)

// ProducerConfig Kafka 生产者配置
type ProducerConfig struct {
	Brokers      []string // Kafka broker 地址
	Topic        string   // 目标 topic
	BatchTimeout time.Duration
}

// messageWriter kafka.Writer 的最小子集
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer Kafka 生产者
type Producer struct {
	topic  string
	writer messageWriter
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg ProducerConfig) *Producer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = 50 * time.Millisecond
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // 同一用户的通知落在同一分区，保持顺序
		BatchTimeout: batchTimeout,
		Async:        false,
	}
	return &Producer{topic: cfg.Topic, writer: writer}
}

// Publish 发送一条消息
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error("kafka send failed",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.String("key", key),
		)
		return err
	}
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}
