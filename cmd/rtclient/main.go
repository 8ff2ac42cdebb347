package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/rtsession/internal/core"
	"github.com/qiminjie89/rtsession/internal/gameroom"
	"github.com/qiminjie89/rtsession/internal/notify"
	"github.com/qiminjie89/rtsession/internal/protocol"
	"github.com/qiminjie89/rtsession/pkg/config"
	"github.com/qiminjie89/rtsession/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "configs/rtclient.yaml", "config file path")
	roomID := flag.String("room", "", "game room to open on start")
	roomStatus := flag.String("room-status", string(gameroom.StatusPending), "status of the room given by -room")
	creatorID := flag.String("creator", "", "creator of the room given by -room")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("load config failed: " + err.Error())
	}

	// 初始化日志
	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting rtclient", zap.String("config", *configPath))

	c, err := core.New(context.Background(), cfg, core.Deps{
		Alerter: notify.AlerterFunc(func(item notify.Item) {
			fmt.Printf("\n[%s] %s\n> ", item.Title, item.Description)
		}),
		OnGameEvent: func(ev protocol.GameEvent) {
			fmt.Printf("\n[game %s] %s %v\n> ", ev.RoomID, ev.Kind, ev.Payload)
		},
	})
	if err != nil {
		logger.Error("create session core failed", zap.Error(err))
		os.Exit(1)
	}
	if err := c.Start(); err != nil {
		logger.Error("start session core failed", zap.Error(err))
		os.Exit(1)
	}

	token := cfg.Auth.Token
	if token == "" {
		token = c.Credentials().Token()
	}
	if token != "" {
		if err := c.Login(token); err != nil {
			logger.Error("login failed", zap.Error(err))
		}
	}

	if *roomID != "" {
		room := gameroom.Room{
			ID:        protocol.ID(*roomID),
			Status:    gameroom.Status(*roomStatus),
			CreatorID: protocol.ID(*creatorID),
		}
		if _, err := c.OpenRoom(room); err != nil {
			logger.Error("open room failed", zap.String("room_id", *roomID), zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		runInteractive(c, os.Stdin)
		close(done)
	}()

	// 等待退出信号或交互结束
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
		c.Terminate()
	case <-done:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		logger.Warn("stop session core", zap.Error(err))
	}
}
