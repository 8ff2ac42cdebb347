package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	ReadLimit        int64
	Header           http.Header
}

// WebSocketDialer 基于 gorilla/websocket 的拨号器
type WebSocketDialer struct {
	dialer    websocket.Dialer
	readLimit int64
	header    http.Header
}

// NewWebSocketDialer 创建 WebSocket 拨号器
func NewWebSocketDialer(cfg WebSocketConfig) *WebSocketDialer {
	return &WebSocketDialer{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		readLimit: cfg.ReadLimit,
		header:    cfg.Header,
	}
}

// Dial 拨号
func (d *WebSocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, rawURL, d.header)
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{Status: resp.StatusCode, Err: err}
		}
		return nil, err
	}
	if d.readLimit > 0 {
		conn.SetReadLimit(d.readLimit)
	}
	return newWebSocketConn(conn), nil
}

// HandshakeError 升级被服务端拒绝（票据无效等）
type HandshakeError struct {
	Status int
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake rejected with status %d: %v", e.Status, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// WebSocketConn WebSocket 连接实现
type WebSocketConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func newWebSocketConn(conn *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{conn: conn}
}

// ReadMessage 读取消息
func (c *WebSocketConn) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

// WriteMessage 发送消息
func (c *WebSocketConn) WriteMessage(messageType int, data []byte) error {
	return c.conn.WriteMessage(messageType, data)
}

// SetWriteDeadline 设置写超时
func (c *WebSocketConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// Close 发送关闭帧后关闭底层连接，可重复调用
func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr 返回远程地址
func (c *WebSocketConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// IsNormalClose 判断是否为正常关闭
func IsNormalClose(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent)
}
