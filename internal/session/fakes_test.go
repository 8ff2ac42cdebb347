package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qiminjie89/rtsession/internal/protocol"
	"github.com/qiminjie89/rtsession/pkg/auth"
	"github.com/qiminjie89/rtsession/pkg/transport"
)

const waitTimeout = 2 * time.Second

var errConnClosed = errors.New("use of closed connection")

// fakeTimer 手动触发的定时器
type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

func (t *fakeTimer) fire() {
	t.f()
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	added  chan *fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{added: make(chan *fakeTimer, 64)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	c.added <- t
	return t
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) next(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case timer := <-c.added:
		return timer
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a timer")
		return nil
	}
}

// fakeConn 内存连接：in 为服务端下发，out 为客户端写出
type fakeConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return transport.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.out <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) RemoteAddr() string               { return "fake" }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) nextOut(t *testing.T) string {
	t.Helper()
	select {
	case data := <-c.out:
		return string(data)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for an outbound frame")
		return ""
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	fail  error
	conns chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(_ context.Context, rawURL string) (transport.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, rawURL)
	fail := d.fail
	d.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a dial")
		return nil
	}
}

// staticTickets 每次返回递增编号的票据
func staticTickets() (TicketProvider, *atomic.Int64) {
	var n atomic.Int64
	return TicketFunc(func(context.Context) (auth.Ticket, error) {
		i := n.Add(1)
		return auth.Ticket{Token: "t" + strconv.FormatInt(i, 10)}, nil
	}), &n
}

// recorder 收集订阅回调
type recorder struct {
	opens    chan SocketID
	messages chan protocol.Message
	errors   chan error
	closes   chan CloseEvent
}

func newRecorder() *recorder {
	return &recorder{
		opens:    make(chan SocketID, 16),
		messages: make(chan protocol.Message, 16),
		errors:   make(chan error, 16),
		closes:   make(chan CloseEvent, 16),
	}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnOpen:    func(id SocketID) { r.opens <- id },
		OnMessage: func(_ SocketID, msg protocol.Message) { r.messages <- msg },
		OnError:   func(err error) { r.errors <- err },
		OnClose:   func(ev CloseEvent) { r.closes <- ev },
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for an event")
		var zero T
		return zero
	}
}

func assertNone[T any](t *testing.T, ch <-chan T, wait time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected event: %#v", v)
	case <-time.After(wait):
	}
}

func requireEventuallyState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, waitTimeout, 5*time.Millisecond)
}
