// rtmirror 读取通知镜像 topic 并逐条打印，用于排查通知投递
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/qiminjie89/rtsession/internal/notify"
	"github.com/qiminjie89/rtsession/pkg/config"
	"github.com/qiminjie89/rtsession/pkg/kafka"
	"github.com/qiminjie89/rtsession/pkg/logger"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma separated kafka brokers")
	topic := flag.String("topic", config.DefaultKafkaTopic, "notification mirror topic")
	group := flag.String("group", "", "consumer group, empty reads without committing")
	user := flag.String("user", "", "only print notifications of this user")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	if err := logger.Init(logger.Config{Level: *level, Format: "console", Output: "stderr"}); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Sync()

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: strings.Split(*brokers, ","),
		Topic:   *topic,
		GroupID: *group,
	})
	if err != nil {
		logger.Error("create consumer failed", zap.Error(err))
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = consumer.Run(ctx, func(msg *kafka.Message) error {
		m, err := notify.DecodeMirrored(msg.Value)
		if err != nil {
			return err
		}
		if *user != "" && m.UserID != *user {
			return nil
		}
		fmt.Printf("%s user=%s %s [%s] %s: %s\n",
			m.CreatedAt.Format("2006-01-02 15:04:05"), m.UserID, m.ID, m.Type, m.Title, m.Description)
		return nil
	})
	if err != nil {
		logger.Error("consume failed", zap.Error(err))
		os.Exit(1)
	}
}
