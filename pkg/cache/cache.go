// Package cache 提供外部数据缓存的客户端抽象：
// 会话核心只做失效与刷新，不关心缓存内容的结构
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache 外部数据缓存
type Cache interface {
	// Invalidate 使指定 key 失效
	Invalidate(ctx context.Context, key string) error
	// Set 刷新指定 key
	Set(ctx context.Context, key string, value []byte) error
}

// Memory 进程内缓存，带可选 TTL
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory 创建进程内缓存，ttl 为 0 表示不过期
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Invalidate 实现 Cache
func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Set 实现 Cache
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// Get 读取缓存
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Len 返回条目数
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
