// Package notify 将通知通道的入站消息分派为缓存失效、通知条目、
// 在线状态变化与游戏房间转发
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qiminjie89/rtsession/internal/presence"
	"github.com/qiminjie89/rtsession/internal/protocol"
	"github.com/qiminjie89/rtsession/internal/session"
	"github.com/qiminjie89/rtsession/pkg/cache"
	"github.com/qiminjie89/rtsession/pkg/logger"
	"github.com/qiminjie89/rtsession/pkg/metrics"
)

// Alerter 一次性提醒（弹窗、终端输出等）
type Alerter interface {
	Alert(item Item)
}

// AlerterFunc 函数适配
type AlerterFunc func(item Item)

// Alert 实现 Alerter
func (f AlerterFunc) Alert(item Item) { f(item) }

// GameForwarder 接收转发的游戏房间事件
type GameForwarder interface {
	Forward(roomID string, msg protocol.Message)
}

// Sink 通知条目的外部镜像
type Sink interface {
	Publish(ctx context.Context, item Item) error
}

// Options 分派器依赖
type Options struct {
	Log      *Log
	Presence *presence.Tracker
	Cache    cache.Cache   // 可为空
	Games    GameForwarder // 可为空
	Alerter  Alerter       // 可为空
	Sink     Sink          // 可为空
	Alerts   []string      // 需要提醒的事件类型
	Timeout  time.Duration // 缓存与镜像调用超时
	Logger   *zap.Logger
	now      func() time.Time
}

// Dispatcher 通知分派器
type Dispatcher struct {
	log      *Log
	presence *presence.Tracker
	cache    cache.Cache
	games    GameForwarder
	alerter  Alerter
	sink     Sink
	alerts   map[string]struct{}
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewDispatcher 创建分派器
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Log == nil {
		opts.Log = NewLog(DefaultCapacity)
	}
	if opts.Presence == nil {
		opts.Presence = presence.NewTracker()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("notify")
	}
	if opts.now == nil {
		opts.now = time.Now
	}

	alerts := make(map[string]struct{}, len(opts.Alerts))
	for _, t := range opts.Alerts {
		alerts[t] = struct{}{}
	}

	return &Dispatcher{
		log:      opts.Log,
		presence: opts.Presence,
		cache:    opts.Cache,
		games:    opts.Games,
		alerter:  opts.Alerter,
		sink:     opts.Sink,
		alerts:   alerts,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		now:      opts.now,
	}
}

// Log 通知日志
func (d *Dispatcher) Log() *Log { return d.log }

// Handlers 订阅连接管理器的消息回调
func (d *Dispatcher) Handlers() session.Handlers {
	return session.Handlers{
		OnMessage: func(_ session.SocketID, msg protocol.Message) {
			d.Dispatch(msg)
		},
	}
}

// Dispatch 按消息类型分派，未知类型忽略
func (d *Dispatcher) Dispatch(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.PresenceSnapshot:
		ids := make([]string, 0, len(m.UserIDs))
		for _, id := range m.UserIDs {
			ids = append(ids, id.String())
		}
		d.presence.ApplySnapshot(ids)
		d.logger.Debug("presence snapshot applied", zap.Int("online", len(ids)))

	case protocol.PresenceDelta:
		d.applyPresence(m)

	case protocol.GameEvent:
		if d.games != nil {
			d.games.Forward(m.RoomID.String(), m)
		}

	case protocol.Event:
		d.dispatchEvent(m)

	case protocol.Connected, protocol.Pong:

	default:
		metrics.NotificationsIgnored.WithLabelValues(msg.Type()).Inc()
		d.logger.Debug("ignore unknown message", zap.String("type", msg.Type()))
	}
}

// MarkRead 标记单条已读
func (d *Dispatcher) MarkRead(id string) bool { return d.log.MarkRead(id) }

// MarkAllRead 全部已读
func (d *Dispatcher) MarkAllRead() { d.log.MarkAllRead() }

// Items 通知列表，最新的在前
func (d *Dispatcher) Items() []Item { return d.log.Items() }

// UnreadCount 未读数量
func (d *Dispatcher) UnreadCount() int { return d.log.UnreadCount() }

// Reset 登出时清空通知日志
func (d *Dispatcher) Reset() { d.log.Reset() }

func (d *Dispatcher) applyPresence(m protocol.PresenceDelta) {
	id := m.UserID.String()
	online := m.Online()

	var changed bool
	if online {
		changed = d.presence.MarkOnline(id)
	} else {
		changed = d.presence.MarkOffline(id)
	}
	if !changed || d.alerter == nil || !d.presence.ShouldNotify(id, online) {
		return
	}

	name := m.Username
	if name == "" {
		name = "user " + id
	}
	title := "Friend online"
	desc := name + " is now online"
	if !online {
		title = "Friend offline"
		desc = name + " went offline"
	}
	d.alerter.Alert(Item{
		ID:          uuid.NewString(),
		Type:        protocol.TypeFriendPresenceChanged,
		Title:       title,
		Description: desc,
		CreatedAt:   d.now(),
		Meta:        map[string]string{"user_id": id, "status": m.Status},
	})
}

func (d *Dispatcher) dispatchEvent(ev protocol.Event) {
	r, ok := routes[ev.Kind]
	if !ok {
		metrics.NotificationsIgnored.WithLabelValues(ev.Kind).Inc()
		return
	}

	var p eventPayload
	if err := protocol.DecodePayload(ev.Payload, &p); err != nil {
		d.logger.Warn("decode event payload failed",
			zap.String("type", ev.Kind),
			zap.Error(err),
		)
		return
	}

	for _, key := range r.keys(p) {
		d.invalidate(key)
	}

	if r.item == nil {
		return
	}
	item := r.item(p)
	item.ID = uuid.NewString()
	item.Type = ev.Kind
	item.CreatedAt = d.now()
	d.log.Append(item)

	if _, alert := d.alerts[ev.Kind]; alert && d.alerter != nil {
		d.alerter.Alert(item)
	}
	d.mirror(item)
}

func (d *Dispatcher) invalidate(key string) {
	if d.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.cache.Invalidate(ctx, key); err != nil {
		metrics.CacheInvalidations.WithLabelValues("error").Inc()
		d.logger.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
		return
	}
	metrics.CacheInvalidations.WithLabelValues("ok").Inc()
}

func (d *Dispatcher) mirror(item Item) {
	if d.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sink.Publish(ctx, item); err != nil {
		d.logger.Warn("mirror notification failed",
			zap.String("id", item.ID),
			zap.Error(err),
		)
	}
}
