package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/qiminjie89/rtsession/pkg/logger"
)

// Reconnector TokenWatcher 需要的连接控制面
type Reconnector interface {
	Enabled() bool
	ReconnectWithCause(cause CloseCause)
}

// TokenWatcher 长期凭证变化时触发一次计划重连
type TokenWatcher struct {
	target Reconnector
	log    *zap.Logger

	mu   sync.Mutex
	prev string
	seen bool
}

// NewTokenWatcher 创建凭证轮换监听
func NewTokenWatcher(target Reconnector) *TokenWatcher {
	return &TokenWatcher{
		target: target,
		log:    logger.Named("token_watcher"),
	}
}

// Observe 评估一次当前凭证，返回是否触发了重连。
// 禁用期间只记录基线；首次观察不触发；前后均非空且不同才触发
func (w *TokenWatcher) Observe(token string) bool {
	w.mu.Lock()
	prev, seen := w.prev, w.seen
	w.prev, w.seen = token, true
	w.mu.Unlock()

	if !w.target.Enabled() {
		return false
	}
	if !seen || prev == "" || token == "" || prev == token {
		return false
	}

	w.log.Info("auth token rotated, reconnecting")
	w.target.ReconnectWithCause(CauseTokenRotation)
	return true
}
