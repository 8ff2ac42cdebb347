package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qiminjie89/rtsession/internal/protocol"
	"github.com/qiminjie89/rtsession/pkg/auth"
	"github.com/qiminjie89/rtsession/pkg/logger"
	"github.com/qiminjie89/rtsession/pkg/metrics"
	"github.com/qiminjie89/rtsession/pkg/transport"
)

// 默认值
const (
	DefaultHandshakeTimeout = 15 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultEventBuffer      = 256
)

// DefaultReconnectDelays 默认退避序列
var DefaultReconnectDelays = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}

// Options 管理器配置
type Options struct {
	Channel          string // 指标与日志标签，如 realtime、game
	Endpoint         string // 不含票据的 ws(s) 地址
	ReconnectDelays  []time.Duration
	HandshakeTimeout time.Duration // 默认 15s，负数表示不等待握手确认
	HandshakeAck     []string      // 视为握手确认的消息类型
	WriteTimeout     time.Duration
	EventBuffer      int
	Codec            protocol.Codec
	Clock            Clock
	Logger           *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.Channel == "" {
		o.Channel = "default"
	}
	if len(o.ReconnectDelays) == 0 {
		o.ReconnectDelays = DefaultReconnectDelays
	}
	switch {
	case o.HandshakeTimeout == 0:
		o.HandshakeTimeout = DefaultHandshakeTimeout
	case o.HandshakeTimeout < 0:
		o.HandshakeTimeout = 0
	}
	if o.HandshakeAck == nil {
		o.HandshakeAck = []string{protocol.TypeConnected}
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.Codec == nil {
		o.Codec = protocol.JSONCodec{}
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
}

// Manager 持有唯一一条逻辑实时连接。
// 状态都在 mu 下修改；订阅回调由单独的投递协程按序执行，
// 因此所有订阅者对同一管理器的回调互不并发。
type Manager struct {
	opts    Options
	dialer  transport.Dialer
	tickets TicketProvider
	log     *zap.Logger
	ack     map[string]struct{}

	mu             sync.Mutex
	state          State
	enabled        bool
	closed         bool
	endpoint       string
	current        SocketID // 最近一次创建尝试的标识
	nextID         SocketID
	sock           *socket // 当前已打开的连接
	causes         map[SocketID]CloseCause
	planned        bool
	attempt        int
	reconnectTimer Timer
	timerGen       uint64
	handshakeTimer Timer
	verified       bool
	dialCancel     context.CancelFunc

	subMu sync.RWMutex
	subs  []*Subscription

	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type eventKind int

const (
	evOpen eventKind = iota
	evMessage
	evError
	evClose
)

type event struct {
	kind  eventKind
	id    SocketID
	msg   protocol.Message
	err   error
	close CloseEvent
}

// NewManager 创建连接管理器，创建后处于禁用状态，调用 Enable 开始连接
func NewManager(opts Options, dialer transport.Dialer, tickets TicketProvider) *Manager {
	opts.applyDefaults()

	ack := make(map[string]struct{}, len(opts.HandshakeAck))
	for _, t := range opts.HandshakeAck {
		ack[t] = struct{}{}
	}

	log := opts.Logger
	if log == nil {
		log = logger.Named("session")
	}
	log = log.With(
		zap.String("channel", opts.Channel),
		zap.String("manager_id", uuid.NewString()[:8]),
	)

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:     opts,
		dialer:   dialer,
		tickets:  tickets,
		log:      log,
		ack:      ack,
		endpoint: opts.Endpoint,
		causes:   make(map[SocketID]CloseCause),
		events:   make(chan event, opts.EventBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
	m.setStateLocked(StateDisconnected)

	m.wg.Add(1)
	go m.deliverLoop()
	return m
}

// State 当前连接状态
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsOpen 连接是否已打开
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected && m.sock != nil
}

// Enabled 是否已启用
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// CurrentSocket 当前连接标识
func (m *Manager) CurrentSocket() SocketID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetEndpoint 修改目标地址，下一次创建连接时生效
func (m *Manager) SetEndpoint(endpoint string) {
	m.mu.Lock()
	m.endpoint = endpoint
	m.mu.Unlock()
}

// Enable 启用并立即开始连接
func (m *Manager) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.enabled {
		return
	}
	m.enabled = true
	m.attempt = 0
	m.log.Info("session enabled")
	m.connectLocked()
}

// Disable 计划关闭当前连接并停止一切重连
func (m *Manager) Disable() {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return
	}
	m.enabled = false
	s := m.shutdownLocked(CauseDisabled)
	m.mu.Unlock()

	m.log.Info("session disabled")
	if s != nil {
		s.close()
	}
}

// Close 卸载管理器：停止重连、关闭连接并等待后台协程退出。
// 不能在订阅回调中调用
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.enabled = false
	s := m.shutdownLocked(CauseUnmount)
	m.mu.Unlock()

	if s != nil {
		s.close()
	}
	m.cancel()
	m.wg.Wait()
	m.log.Info("session closed")
}

// shutdownLocked 取消所有定时器与拨号，摘下当前连接交由调用方在锁外关闭
func (m *Manager) shutdownLocked(cause CloseCause) *socket {
	m.planned = true
	m.cancelReconnectLocked()
	m.stopHandshakeLocked()
	m.cancelDialLocked()

	s := m.sock
	m.sock = nil
	if s != nil {
		m.causes[s.id] = cause
	}
	m.setStateLocked(StateDisconnected)
	return s
}

// Reconnect 手动重连：取消待执行的重连、清零计数，
// 有连接则关闭它走正常重连路径，否则立即连接
func (m *Manager) Reconnect(planned bool) {
	cause := CauseManualReconnect
	if planned {
		cause = CausePlannedReconnect
	}
	m.reconnect(planned, cause)
}

// ReconnectWithCause 以指定原因发起计划重连
func (m *Manager) ReconnectWithCause(cause CloseCause) {
	m.reconnect(true, cause)
}

func (m *Manager) reconnect(planned bool, cause CloseCause) {
	m.mu.Lock()
	if !m.enabled || m.closed {
		m.mu.Unlock()
		return
	}
	m.cancelReconnectLocked()
	m.attempt = 0
	if planned {
		m.planned = true
	}

	s := m.sock
	if s == nil {
		m.log.Info("reconnecting now", zap.String("cause", string(cause)))
		m.connectLocked()
		m.mu.Unlock()
		return
	}
	m.causes[s.id] = cause
	m.mu.Unlock()

	m.log.Info("closing socket for reconnect",
		zap.Uint64("socket_id", uint64(s.id)),
		zap.String("cause", string(cause)),
	)
	s.close()
}

// Send 编码并发送一条消息；未连接时立即返回 ErrNotConnected，不排队
func (m *Manager) Send(v any) error {
	m.mu.Lock()
	s := m.sock
	open := m.state == StateConnected && s != nil
	m.mu.Unlock()

	if !open {
		metrics.SessionMessagesSent.WithLabelValues(m.opts.Channel, "not_connected").Inc()
		return ErrNotConnected
	}

	data, err := m.opts.Codec.Marshal(v)
	if err != nil {
		metrics.SessionMessagesSent.WithLabelValues(m.opts.Channel, "error").Inc()
		return fmt.Errorf("encode message: %w", err)
	}
	if err := s.write(m.opts.Codec.FrameType(), data, m.opts.WriteTimeout); err != nil {
		metrics.SessionMessagesSent.WithLabelValues(m.opts.Channel, "error").Inc()
		return fmt.Errorf("write socket %d: %w", s.id, err)
	}
	metrics.SessionMessagesSent.WithLabelValues(m.opts.Channel, "ok").Inc()
	return nil
}

// connectLocked 分配新的连接标识并异步拨号，使进行中的拨号失效
func (m *Manager) connectLocked() {
	m.cancelDialLocked()
	m.nextID++
	id := m.nextID
	m.current = id
	m.setStateLocked(StateConnecting)

	ctx, cancel := context.WithCancel(m.ctx)
	m.dialCancel = cancel
	endpoint := m.endpoint

	m.wg.Add(1)
	go m.dial(ctx, id, endpoint)
}

func (m *Manager) dial(ctx context.Context, id SocketID, endpoint string) {
	defer m.wg.Done()

	ticket, err := m.tickets.Ticket(ctx)
	if err != nil {
		m.dialFailed(id, "ticket_error", fmt.Errorf("fetch ticket: %w", err))
		return
	}
	if !ticket.Valid(time.Now()) {
		m.dialFailed(id, "ticket_expired", fmt.Errorf("fetch ticket: %w", auth.ErrTicketExpired))
		return
	}

	target, err := withTicket(endpoint, ticket.Token)
	if err != nil {
		m.dialFailed(id, "dial_error", err)
		return
	}

	conn, err := m.dialer.Dial(ctx, target)
	if err != nil {
		m.dialFailed(id, "dial_error", fmt.Errorf("dial: %w", err))
		return
	}

	m.mu.Lock()
	if id != m.current || !m.enabled || m.closed {
		m.mu.Unlock()
		metrics.SessionStaleEvents.WithLabelValues(m.opts.Channel).Inc()
		_ = conn.Close()
		return
	}
	s := newSocket(id, conn)
	m.sock = s
	m.dialCancel = nil
	m.attempt = 0
	m.planned = false
	m.verified = false
	m.setStateLocked(StateConnected)
	m.startHandshakeLocked(id)
	m.mu.Unlock()

	metrics.SessionDialAttempts.WithLabelValues(m.opts.Channel, "ok").Inc()
	m.log.Info("socket opened",
		zap.Uint64("socket_id", uint64(id)),
		zap.String("remote", conn.RemoteAddr()),
	)

	m.post(event{kind: evOpen, id: id})

	m.wg.Add(1)
	go m.readLoop(s)
}

func (m *Manager) dialFailed(id SocketID, result string, err error) {
	m.mu.Lock()
	if id != m.current || !m.enabled || m.closed {
		m.mu.Unlock()
		return
	}
	m.dialCancel = nil
	m.setStateLocked(StateDisconnected)
	attempt := m.attempt
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	metrics.SessionDialAttempts.WithLabelValues(m.opts.Channel, result).Inc()
	m.log.Warn("transport creation failed",
		zap.Uint64("socket_id", uint64(id)),
		zap.Int("attempt", attempt),
		zap.Error(err),
	)
	m.post(event{kind: evError, id: id, err: err})
}

func (m *Manager) readLoop(s *socket) {
	defer m.wg.Done()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			m.handleClose(s, err)
			return
		}

		msg, err := protocol.Decode(m.opts.Codec, data)
		if err != nil {
			metrics.SessionMessagesMalformed.WithLabelValues(m.opts.Channel).Inc()
			m.log.Debug("drop malformed message",
				zap.Uint64("socket_id", uint64(s.id)),
				zap.Error(err),
			)
			continue
		}

		if ping, ok := msg.(protocol.Ping); ok {
			m.answerPing(s, ping)
			continue
		}

		metrics.SessionMessagesReceived.WithLabelValues(m.opts.Channel, msg.Type()).Inc()
		if _, ok := m.ack[msg.Type()]; ok {
			m.acknowledge(s.id)
		}
		m.post(event{kind: evMessage, id: s.id, msg: msg})
	}
}

// answerPing 仅在该连接仍是当前已打开连接时应答
func (m *Manager) answerPing(s *socket, ping protocol.Ping) {
	m.mu.Lock()
	live := m.sock == s && m.state == StateConnected
	m.mu.Unlock()
	if !live {
		return
	}

	data, frameType, err := protocol.PongFor(m.opts.Codec, ping)
	if err != nil {
		m.log.Warn("encode pong failed", zap.Error(err))
		return
	}
	if err := s.write(frameType, data, m.opts.WriteTimeout); err != nil {
		m.log.Debug("write pong failed", zap.Uint64("socket_id", uint64(s.id)), zap.Error(err))
		return
	}
	metrics.SessionPingsAnswered.WithLabelValues(m.opts.Channel).Inc()
}

func (m *Manager) handleClose(s *socket, err error) {
	m.mu.Lock()
	cause := m.causes[s.id]
	delete(m.causes, s.id)
	if s.id != m.current {
		m.mu.Unlock()
		metrics.SessionStaleEvents.WithLabelValues(m.opts.Channel).Inc()
		return
	}
	if m.sock == s {
		m.sock = nil
	}
	m.stopHandshakeLocked()
	m.setStateLocked(StateDisconnected)
	planned := m.planned
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	s.close()
	metrics.SessionCloseCause.WithLabelValues(m.opts.Channel, cause.Label()).Inc()

	fields := []zap.Field{
		zap.Uint64("socket_id", uint64(s.id)),
		zap.String("cause", cause.Label()),
		zap.Bool("planned", planned),
	}
	switch {
	case cause == CauseHandshakeTimeout:
		m.log.Warn("socket closed", append(fields, zap.Error(err))...)
	case cause != CauseNone || planned:
		m.log.Info("socket closed", fields...)
	case transport.IsNormalClose(err):
		m.log.Warn("socket closed by peer", fields...)
	default:
		m.log.Warn("unexpected socket close", append(fields, zap.Error(err))...)
	}

	m.post(event{kind: evClose, id: s.id, close: CloseEvent{
		SocketID: s.id,
		Cause:    cause,
		Planned:  planned,
		Err:      err,
	}})
}

// scheduleReconnectLocked 已有待执行的重连时不做任何事
func (m *Manager) scheduleReconnectLocked() {
	if !m.enabled || m.closed || m.reconnectTimer != nil {
		return
	}
	delays := m.opts.ReconnectDelays
	idx := m.attempt
	if idx > len(delays)-1 {
		idx = len(delays) - 1
	}
	delay := delays[idx]
	m.attempt++

	m.timerGen++
	gen := m.timerGen
	m.reconnectTimer = m.opts.Clock.AfterFunc(delay, func() { m.reconnectFired(gen) })

	metrics.SessionReconnectsScheduled.WithLabelValues(m.opts.Channel).Inc()
	metrics.SessionReconnectDelay.WithLabelValues(m.opts.Channel).Observe(delay.Seconds())
	m.log.Debug("reconnect scheduled",
		zap.Int("attempt", m.attempt),
		zap.Duration("delay", delay),
	)
}

func (m *Manager) reconnectFired(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.timerGen || m.reconnectTimer == nil {
		return
	}
	m.reconnectTimer = nil
	if !m.enabled || m.closed || m.sock != nil {
		return
	}
	m.connectLocked()
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.timerGen++
}

func (m *Manager) cancelDialLocked() {
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
}

func (m *Manager) startHandshakeLocked(id SocketID) {
	if m.opts.HandshakeTimeout <= 0 || len(m.ack) == 0 {
		m.verified = true
		return
	}
	m.handshakeTimer = m.opts.Clock.AfterFunc(m.opts.HandshakeTimeout, func() {
		m.handshakeExpired(id)
	})
}

func (m *Manager) stopHandshakeLocked() {
	if m.handshakeTimer != nil {
		m.handshakeTimer.Stop()
		m.handshakeTimer = nil
	}
}

func (m *Manager) acknowledge(id SocketID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sock == nil || m.sock.id != id || m.verified {
		return
	}
	m.verified = true
	m.stopHandshakeLocked()
	m.log.Debug("handshake acknowledged", zap.Uint64("socket_id", uint64(id)))
}

func (m *Manager) handshakeExpired(id SocketID) {
	m.mu.Lock()
	s := m.sock
	if s == nil || s.id != id || m.verified || m.handshakeTimer == nil {
		m.mu.Unlock()
		return
	}
	m.handshakeTimer = nil
	m.causes[id] = CauseHandshakeTimeout
	m.mu.Unlock()

	metrics.SessionHandshakeTimeouts.WithLabelValues(m.opts.Channel).Inc()
	m.log.Warn("handshake timed out",
		zap.Uint64("socket_id", uint64(id)),
		zap.Duration("timeout", m.opts.HandshakeTimeout),
	)
	s.close()
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	metrics.SessionConnectionState.WithLabelValues(m.opts.Channel).Set(float64(s))
}

func (m *Manager) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.ctx.Done():
	}
}

func (m *Manager) deliverLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.events:
			m.deliver(ev)
		}
	}
}

// deliver 在投递时再次比对连接标识，过期连接的事件直接丢弃
func (m *Manager) deliver(ev event) {
	if ev.kind != evError {
		m.mu.Lock()
		stale := ev.id != m.current
		m.mu.Unlock()
		if stale {
			metrics.SessionStaleEvents.WithLabelValues(m.opts.Channel).Inc()
			return
		}
	}

	for _, sub := range m.subscriptions() {
		h := sub.handlers()
		switch ev.kind {
		case evOpen:
			if h.OnOpen != nil {
				h.OnOpen(ev.id)
			}
		case evMessage:
			if h.OnMessage != nil {
				h.OnMessage(ev.id, ev.msg)
			}
		case evError:
			if h.OnError != nil {
				h.OnError(ev.err)
			}
		case evClose:
			if h.OnClose != nil {
				h.OnClose(ev.close)
			}
		}
	}
}

// withTicket 将票据写入 ticket 查询参数
func withTicket(endpoint, ticket string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if ticket != "" {
		q := u.Query()
		q.Set("ticket", ticket)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
