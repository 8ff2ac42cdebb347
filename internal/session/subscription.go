package session

import "sync/atomic"

// Subscription 一组订阅回调。回调可随时通过 Set 整体替换，
// 管理器每次投递都读取最新的一组
type Subscription struct {
	m *Manager
	h atomic.Pointer[Handlers]
}

// Subscribe 注册订阅
func (m *Manager) Subscribe(h Handlers) *Subscription {
	sub := &Subscription{m: m}
	sub.Set(h)

	m.subMu.Lock()
	m.subs = append(m.subs, sub)
	m.subMu.Unlock()
	return sub
}

// Set 替换回调
func (s *Subscription) Set(h Handlers) {
	s.h.Store(&h)
}

// Cancel 取消订阅，可重复调用
func (s *Subscription) Cancel() {
	m := s.m
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for i, sub := range m.subs {
		if sub == s {
			m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
			return
		}
	}
}

func (s *Subscription) handlers() Handlers {
	if h := s.h.Load(); h != nil {
		return *h
	}
	return Handlers{}
}

func (m *Manager) subscriptions() []*Subscription {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	return append([]*Subscription(nil), m.subs...)
}
