// Package transport 提供客户端传输层抽象，当前实现为 WebSocket
package transport

import (
	"context"
	"time"
)

// 消息帧类型，与 WebSocket 保持一致
const (
	TextMessage   = 1
	BinaryMessage = 2
)

// Dialer 建立到服务端的连接
type Dialer interface {
	// Dial 拨号到完整 URL（已包含票据等查询参数）
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// Conn 面向消息的连接
type Conn interface {
	// ReadMessage 阻塞读取下一条消息
	ReadMessage() (messageType int, data []byte, err error)
	// WriteMessage 写入一条消息，调用方负责串行化
	WriteMessage(messageType int, data []byte) error
	// SetWriteDeadline 设置写超时
	SetWriteDeadline(t time.Time) error
	// Close 关闭连接
	Close() error
	// RemoteAddr 返回远程地址
	RemoteAddr() string
}

// DialerFunc 函数适配器
type DialerFunc func(ctx context.Context, rawURL string) (Conn, error)

// Dial 实现 Dialer
func (f DialerFunc) Dial(ctx context.Context, rawURL string) (Conn, error) {
	return f(ctx, rawURL)
}
