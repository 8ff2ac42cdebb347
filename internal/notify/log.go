package notify

import (
	"maps"
	"sync"
	"time"

	"github.com/qiminjie89/rtsession/pkg/metrics"
)

// DefaultCapacity 通知日志默认容量
const DefaultCapacity = 30

// Item 一条通知
type Item struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	CreatedAt   time.Time         `json:"created_at"`
	Read        bool              `json:"read"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Log 有界通知日志，最新的在前，超出容量时淘汰最旧的
type Log struct {
	mu       sync.RWMutex
	capacity int
	items    []Item
}

// NewLog 创建通知日志，capacity <= 0 时取默认值
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity, items: make([]Item, 0, capacity)}
}

// Append 追加一条通知
func (l *Log) Append(item Item) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item.Meta = maps.Clone(item.Meta)
	l.items = append(l.items, Item{})
	copy(l.items[1:], l.items)
	l.items[0] = item

	if n := len(l.items) - l.capacity; n > 0 {
		l.items = l.items[:l.capacity]
		metrics.NotificationsEvicted.Add(float64(n))
	}
	metrics.NotificationsAppended.WithLabelValues(item.Type).Inc()
}

// MarkRead 标记单条已读，返回是否找到
func (l *Log) MarkRead(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == id {
			l.items[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead 全部标记已读
func (l *Log) MarkAllRead() {
	l.mu.Lock()
	for i := range l.items {
		l.items[i].Read = true
	}
	l.mu.Unlock()
}

// Items 返回副本（含 Meta），最新的在前
func (l *Log) Items() []Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Item, len(l.items))
	for i, item := range l.items {
		item.Meta = maps.Clone(item.Meta)
		out[i] = item
	}
	return out
}

// UnreadCount 未读数量
func (l *Log) UnreadCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, it := range l.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// Len 当前条数
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Reset 清空
func (l *Log) Reset() {
	l.mu.Lock()
	l.items = l.items[:0]
	l.mu.Unlock()
}
