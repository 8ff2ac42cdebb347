package kafka

import (
	"context"
	"errors"
	"io"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/qiminjie89/rtsession/pkg/logger"
)

// ConsumerConfig Kafka 消费者配置
type ConsumerConfig struct {
	Brokers []string // Kafka broker 地址
	Topic   string   // 订阅的 topic
	GroupID string   // 消费组，为空时不提交 offset
}

// messageReader kafka.Reader 的最小子集
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 读取通知镜像 topic
type Consumer struct {
	topic  string
	group  string
	reader messageReader
}

// Message Kafka 消息
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
}

// MessageHandler 消息处理函数，返回错误时记录日志并继续
type MessageHandler func(msg *Message) error

// NewConsumer 创建 Kafka 消费者
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka consumer requires brokers and topic")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{topic: cfg.Topic, group: cfg.GroupID, reader: reader}, nil
}

// Run 消费直到 ctx 取消或 reader 关闭
func (c *Consumer) Run(ctx context.Context, handler MessageHandler) error {
	logger.Info("kafka consumer started",
		zap.String("topic", c.topic),
		zap.String("group", c.group),
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := handler(&Message{
			Key:       msg.Key,
			Value:     msg.Value,
			Partition: msg.Partition,
			Offset:    msg.Offset,
		}); err != nil {
			logger.Error("kafka message handler failed",
				zap.Error(err),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
		}

		if c.group == "" {
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Error("kafka commit failed", zap.Error(err))
		}
	}
}

// Close 关闭消费者
func (c *Consumer) Close() error {
	return c.reader.Close()
}
