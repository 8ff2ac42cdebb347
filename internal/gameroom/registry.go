package gameroom

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/rtsession/internal/protocol"
	"github.com/qiminjie89/rtsession/pkg/cache"
	"github.com/qiminjie89/rtsession/pkg/logger"
	"github.com/qiminjie89/rtsession/pkg/metrics"
)

// KeyRooms 房间列表的缓存 key
const KeyRooms = "game_rooms"

// Registry 接收通知通道转发来的房间事件：
// 刷新或失效房间缓存，并交给正在该房间的会话
type Registry struct {
	cache   cache.Cache
	timeout time.Duration
	log     *zap.Logger

	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

// NewRegistry 创建房间注册表，c 可为空
func NewRegistry(c cache.Cache) *Registry {
	return &Registry{
		cache:    c,
		timeout:  3 * time.Second,
		log:      logger.Named("gameroom_registry"),
		sessions: make(map[*Session]struct{}),
	}
}

// Add 登记会话
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s] = struct{}{}
	r.mu.Unlock()
}

// Remove 注销会话
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	delete(r.sessions, s)
	r.mu.Unlock()
}

// Sessions 当前登记的会话
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Forward 实现 notify.GameForwarder。
// 携带房间状态的事件直接刷新房间缓存，其余事件使其失效
func (r *Registry) Forward(roomID string, msg protocol.Message) {
	r.invalidate(KeyRooms)

	ev, ok := msg.(protocol.GameEvent)
	if roomID != "" {
		if ok && carriesState(ev) {
			r.refresh(CacheKey(roomID), ev.Payload)
		} else {
			r.invalidate(CacheKey(roomID))
		}
	}

	if !ok || roomID == "" {
		return
	}
	for _, s := range r.Sessions() {
		if s.RoomID() == roomID {
			s.handleEvent(ev)
		}
	}
}

func carriesState(ev protocol.GameEvent) bool {
	switch ev.Kind {
	case protocol.TypeGameStarted, protocol.TypeGameState:
		return len(ev.Payload) > 0
	}
	return false
}

func (r *Registry) refresh(key string, payload map[string]any) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Warn("encode room state failed", zap.String("key", key), zap.Error(err))
		r.invalidate(key)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.cache.Set(ctx, key, data); err != nil {
		metrics.CacheRefreshes.WithLabelValues("error").Inc()
		r.log.Warn("cache refresh failed", zap.String("key", key), zap.Error(err))
		r.invalidate(key)
		return
	}
	metrics.CacheRefreshes.WithLabelValues("ok").Inc()
}

func (r *Registry) invalidate(key string) {
	if r.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.cache.Invalidate(ctx, key); err != nil {
		metrics.CacheInvalidations.WithLabelValues("error").Inc()
		r.log.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
		return
	}
	metrics.CacheInvalidations.WithLabelValues("ok").Inc()
}
