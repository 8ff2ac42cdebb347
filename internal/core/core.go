// Package core 组装会话核心：凭证、通知通道、在线状态、通知分派与游戏房间
package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/rtsession/internal/api"
	"github.com/qiminjie89/rtsession/internal/gameroom"
	"github.com/qiminjie89/rtsession/internal/notify"
	"github.com/qiminjie89/rtsession/internal/presence"
	"github.com/qiminjie89/rtsession/internal/protocol"
	"github.com/qiminjie89/rtsession/internal/session"
	"github.com/qiminjie89/rtsession/pkg/auth"
	"github.com/qiminjie89/rtsession/pkg/cache"
	"github.com/qiminjie89/rtsession/pkg/config"
	"github.com/qiminjie89/rtsession/pkg/kafka"
	"github.com/qiminjie89/rtsession/pkg/logger"
	"github.com/qiminjie89/rtsession/pkg/transport"
)

// 通道名，用于日志与指标
const (
	ChannelRealtime = "realtime"
	ChannelGame     = "game"
)

// ErrNotLoggedIn 未登录
var ErrNotLoggedIn = errors.New("not logged in")

// Deps 可替换的外部依赖，零值按配置创建
type Deps struct {
	Dialer      transport.Dialer
	HTTPClient  *http.Client
	Cache       cache.Cache
	Publisher   notify.Publisher
	Alerter     notify.Alerter
	OnGameEvent gameroom.EventHandler
	Clock       session.Clock
}

// Snapshot 当前状态概览
type Snapshot struct {
	LoggedIn      bool
	UserID        string
	Username      string
	Realtime      session.State
	Game          session.State
	RoomID        string
	JoinIntent    gameroom.JoinIntent
	OnlineFriends int
	Unread        int
}

// Core 进程内唯一的会话核心。在线集合与通知日志在这里创建并按引用传递
type Core struct {
	cfg   *config.Config
	deps  Deps
	codec protocol.Codec
	log   *zap.Logger

	creds         *auth.Store
	api           *api.Client
	realtime      *session.Manager
	watcher       *session.TokenWatcher
	presence      *presence.Tracker
	notifications *notify.Dispatcher
	rooms         *gameroom.Registry
	cache         cache.Cache
	health        *Health
	closers       []func() error

	mu          sync.Mutex
	identity    auth.Identity
	loggedIn    bool
	game        *gameroom.Session
	gameManager *session.Manager
	gameWatcher *session.TokenWatcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 按配置组装会话核心，不建立任何连接
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Core, error) {
	codec, err := protocol.CodecByName(cfg.Connection.Codec)
	if err != nil {
		return nil, err
	}

	c := &Core{
		cfg:      cfg,
		deps:     deps,
		codec:    codec,
		log:      logger.Named("core"),
		creds:    auth.NewStore(""),
		presence: presence.NewTracker(),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if c.deps.Dialer == nil {
		c.deps.Dialer = transport.NewWebSocketDialer(transport.WebSocketConfig{
			ReadBufferSize:   cfg.Dialer.ReadBufferSize,
			WriteBufferSize:  cfg.Dialer.WriteBufferSize,
			HandshakeTimeout: cfg.Dialer.HandshakeTimeout,
			ReadLimit:        cfg.Dialer.ReadLimit,
		})
	}

	c.cache, err = c.openCache(ctx)
	if err != nil {
		c.cancel()
		return nil, err
	}

	c.api = api.New(api.Config{
		BaseURL:    cfg.Server.BaseURL,
		TicketPath: cfg.Server.TicketPath,
		LeavePath:  cfg.Server.LeavePath,
		Timeout:    cfg.Server.HTTPTimeout,
	}, c.creds, deps.HTTPClient)

	c.rooms = gameroom.NewRegistry(c.cache)

	var sink notify.Sink
	if pub := c.publisher(); pub != nil {
		sink = notify.NewPublisherSink(pub, c.userID)
	}
	c.notifications = notify.NewDispatcher(notify.Options{
		Log:      notify.NewLog(cfg.Notifications.Capacity),
		Presence: c.presence,
		Cache:    c.cache,
		Games:    c.rooms,
		Alerter:  deps.Alerter,
		Sink:     sink,
		Alerts:   cfg.Notifications.Alerts,
	})

	c.realtime = session.NewManager(c.realtimeOptions(), c.deps.Dialer, c.api)
	c.watcher = session.NewTokenWatcher(c.realtime)
	c.realtime.Subscribe(c.notifications.Handlers())

	c.health = newHealth(c, cfg.Health.GRPCAddr, cfg.Health.HTTPAddr, c.metricsPath(), cfg.Metrics.Addr)
	c.realtime.Subscribe(c.health.Handlers())

	c.creds.Subscribe(c.onToken)
	return c, nil
}

func (c *Core) realtimeOptions() session.Options {
	return c.managerOptions(ChannelRealtime, c.cfg.Server.WSBaseURL+c.cfg.Server.RealtimeWS,
		c.cfg.Connection.HandshakeAck, c.cfg.Connection.HandshakeTimeout)
}

func (c *Core) gameOptions() session.Options {
	return c.managerOptions(ChannelGame, c.cfg.Server.WSBaseURL+c.cfg.Server.GameWS,
		c.cfg.Game.HandshakeAck, c.cfg.Game.HandshakeTimeout)
}

func (c *Core) managerOptions(channel, endpoint string, ack []string, handshake time.Duration) session.Options {
	return session.Options{
		Channel:          channel,
		Endpoint:         endpoint,
		ReconnectDelays:  c.cfg.Connection.ReconnectDelays,
		HandshakeTimeout: handshake,
		HandshakeAck:     ack,
		WriteTimeout:     c.cfg.Connection.WriteTimeout,
		EventBuffer:      c.cfg.Connection.EventBuffer,
		Codec:            c.codec,
		Clock:            c.deps.Clock,
	}
}

func (c *Core) openCache(ctx context.Context) (cache.Cache, error) {
	if c.deps.Cache != nil {
		return c.deps.Cache, nil
	}
	switch c.cfg.Cache.Driver {
	case "redis":
		r, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:      c.cfg.Cache.Addr,
			Password:  c.cfg.Cache.Password,
			DB:        c.cfg.Cache.DB,
			KeyPrefix: c.cfg.Cache.KeyPrefix,
			TTL:       c.cfg.Cache.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis cache: %w", err)
		}
		c.closers = append(c.closers, r.Close)
		return r, nil
	default:
		return cache.NewMemory(c.cfg.Cache.TTL), nil
	}
}

func (c *Core) publisher() notify.Publisher {
	if c.deps.Publisher != nil {
		return c.deps.Publisher
	}
	if !c.cfg.Kafka.Enabled {
		return nil
	}
	p := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: c.cfg.Kafka.Brokers,
		Topic:   c.cfg.Kafka.Topic,
	})
	c.closers = append(c.closers, p.Close)
	return p
}

func (c *Core) metricsPath() string {
	if !c.cfg.Metrics.Enabled {
		return ""
	}
	return c.cfg.Metrics.Path
}

// Start 启动健康检查服务与凭证文件监听
func (c *Core) Start() error {
	if err := c.health.start(&c.wg); err != nil {
		return fmt.Errorf("start health: %w", err)
	}

	if path := c.cfg.Auth.TokenFile; path != "" {
		if err := c.creds.LoadFile(path); err != nil {
			return err
		}
		if err := c.creds.WatchFile(c.ctx, path); err != nil {
			return err
		}
	}

	c.log.Info("session core started",
		zap.String("base_url", c.cfg.Server.BaseURL),
		zap.String("codec", c.codec.Name()),
	)
	return nil
}

// Login 设置长期凭证并启用通知通道
func (c *Core) Login(token string) error {
	id, err := auth.ParseIdentity(token)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if id.Expired(time.Now()) {
		return fmt.Errorf("login: %w", auth.ErrTokenExpired)
	}

	c.mu.Lock()
	c.identity = id
	c.loggedIn = true
	c.mu.Unlock()

	c.creds.Set(token)
	c.realtime.Enable()
	c.log.Info("logged in", zap.String("user_id", id.UserID))
	return nil
}

// Logout 正常结束房间会话、停用通知通道并清空在线集合与通知日志
func (c *Core) Logout(ctx context.Context) error {
	err := c.closeGame(ctx)

	c.realtime.Disable()
	c.presence.Reset()
	c.notifications.Reset()

	c.mu.Lock()
	c.identity = auth.Identity{}
	c.loggedIn = false
	c.mu.Unlock()

	c.creds.Set("")
	c.log.Info("logged out")
	return err
}

// OpenRoom 打开或切换当前游戏房间
func (c *Core) OpenRoom(room gameroom.Room) (*gameroom.Session, error) {
	c.mu.Lock()
	if !c.loggedIn {
		c.mu.Unlock()
		return nil, ErrNotLoggedIn
	}
	if c.game == nil {
		mgr := session.NewManager(c.gameOptions(), c.deps.Dialer, c.api)
		gs := gameroom.NewSession(mgr, c.api, gameroom.Options{
			UserID:       protocol.ID(c.identity.UserID),
			BaseEndpoint: c.cfg.Server.WSBaseURL + c.cfg.Server.GameWS,
			LeaveTimeout: c.cfg.Game.LeaveTimeout,
			OnEvent:      c.deps.OnGameEvent,
		})
		mgr.Subscribe(gs.Handlers())
		c.rooms.Add(gs)

		watcher := session.NewTokenWatcher(mgr)
		watcher.Observe(c.creds.Token())

		c.game, c.gameManager, c.gameWatcher = gs, mgr, watcher
	}
	gs := c.game
	c.mu.Unlock()

	if err := gs.SetRoom(room); err != nil {
		return nil, err
	}
	return gs, nil
}

// Game 当前房间会话，可能为空
func (c *Core) Game() *gameroom.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.game
}

// Realtime 通知通道管理器
func (c *Core) Realtime() *session.Manager { return c.realtime }

// Presence 在线集合
func (c *Core) Presence() *presence.Tracker { return c.presence }

// Notifications 通知分派器
func (c *Core) Notifications() *notify.Dispatcher { return c.notifications }

// Health 健康检查
func (c *Core) Health() *Health { return c.health }

// Credentials 长期凭证存储
func (c *Core) Credentials() *auth.Store { return c.creds }

// Snapshot 当前状态概览
func (c *Core) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		LoggedIn: c.loggedIn,
		UserID:   c.identity.UserID,
		Username: c.identity.Username,
	}
	game, mgr := c.game, c.gameManager
	c.mu.Unlock()

	snap.Realtime = c.realtime.State()
	if game != nil {
		snap.RoomID = game.RoomID()
		snap.JoinIntent = game.Intent()
		snap.Game = mgr.State()
	}
	snap.OnlineFriends = c.presence.Len()
	snap.Unread = c.notifications.UnreadCount()
	return snap
}

// Terminate 进程被信号中断时调用：只发出不等待的离开请求
func (c *Core) Terminate() {
	if gs := c.Game(); gs != nil {
		gs.Terminate()
	}
}

// Stop 正常结束：离开房间、卸载所有连接、停止后台服务
func (c *Core) Stop(ctx context.Context) error {
	c.log.Info("stopping session core")

	err := c.closeGame(ctx)
	c.realtime.Close()
	c.health.stop(ctx)
	c.cancel()
	c.wg.Wait()

	for _, closeFn := range c.closers {
		if cerr := closeFn(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}

	c.log.Info("session core stopped")
	return err
}

func (c *Core) closeGame(ctx context.Context) error {
	c.mu.Lock()
	gs := c.game
	c.game, c.gameManager, c.gameWatcher = nil, nil, nil
	c.mu.Unlock()

	if gs == nil {
		return nil
	}
	c.rooms.Remove(gs)
	err := gs.Close(ctx)
	gs.Wait()
	return err
}

// onToken 凭证变化时刷新身份，并让两个通道各自判断是否需要轮换重连
func (c *Core) onToken(token string) {
	if token != "" {
		if id, err := auth.ParseIdentity(token); err == nil {
			c.mu.Lock()
			if c.loggedIn {
				c.identity = id
			}
			c.mu.Unlock()
		}
	}

	c.watcher.Observe(token)

	c.mu.Lock()
	gw := c.gameWatcher
	c.mu.Unlock()
	if gw != nil {
		gw.Observe(token)
	}
}

func (c *Core) userID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity.UserID
}
