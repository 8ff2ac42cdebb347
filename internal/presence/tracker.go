// Package presence 维护好友在线集合
package presence

import (
	"sort"
	"sync"

	"github.com/qiminjie89/rtsession/pkg/metrics"
)

// Tracker 在线好友集合。进程内只创建一个，由 core 持有并在登出时 Reset
type Tracker struct {
	mu       sync.RWMutex
	online   map[string]struct{}
	notified map[string]bool // 每个好友最近一次提醒的状态
}

// NewTracker 创建空集合
func NewTracker() *Tracker {
	return &Tracker{
		online:   make(map[string]struct{}),
		notified: make(map[string]bool),
	}
}

// ApplySnapshot 整体替换在线集合，空快照清空
func (t *Tracker) ApplySnapshot(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			next[id] = struct{}{}
		}
	}

	t.mu.Lock()
	t.online = next
	t.updateGaugeLocked()
	t.mu.Unlock()
}

// MarkOnline 标记上线，返回集合是否变化
func (t *Tracker) MarkOnline(id string) bool {
	if id == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.online[id]; ok {
		return false
	}
	t.online[id] = struct{}{}
	t.updateGaugeLocked()
	return true
}

// MarkOffline 标记下线，返回集合是否变化
func (t *Tracker) MarkOffline(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.online[id]; !ok {
		return false
	}
	delete(t.online, id)
	t.updateGaugeLocked()
	return true
}

// Reset 清空集合与提醒去重状态
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.online = make(map[string]struct{})
	t.notified = make(map[string]bool)
	t.updateGaugeLocked()
	t.mu.Unlock()
}

// IsOnline 是否在线
func (t *Tracker) IsOnline(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[id]
	return ok
}

// Online 按字典序返回在线集合
func (t *Tracker) Online() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.online))
	for id := range t.online {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len 在线人数
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.online)
}

// ShouldNotify 同一好友连续相同状态只提醒一次
func (t *Tracker) ShouldNotify(id string, online bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.notified[id]; ok && last == online {
		return false
	}
	t.notified[id] = online
	return true
}

func (t *Tracker) updateGaugeLocked() {
	metrics.PresenceOnline.Set(float64(len(t.online)))
}
