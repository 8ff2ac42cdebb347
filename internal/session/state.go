// Package session 实现单条逻辑实时连接的状态机：
// 票据获取、拨号、握手确认、心跳应答、退避重连与过期回调过滤
package session

import (
	"errors"

	"github.com/qiminjie89/rtsession/internal/protocol"
)

var (
	// ErrNotConnected 连接未就绪时发送
	ErrNotConnected = errors.New("not connected")
	// ErrClosed 管理器已卸载
	ErrClosed = errors.New("session manager closed")
)

// State 连接状态
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String 实现 fmt.Stringer
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// SocketID 每次创建连接分配的单调递增标识，永不复用
type SocketID uint64

// CloseCause 内部主动关闭的原因；为空表示对端或网络关闭
type CloseCause string

const (
	CauseNone             CloseCause = ""
	CausePlannedReconnect CloseCause = "planned-reconnect"
	CauseManualReconnect  CloseCause = "manual-reconnect"
	CauseHandshakeTimeout CloseCause = "handshake-timeout"
	CauseDisabled         CloseCause = "disabled"
	CauseUnmount          CloseCause = "unmount"
	CauseTokenRotation    CloseCause = "token-rotation"
	CauseRoomChange       CloseCause = "room-change"
)

// Label 指标标签
func (c CloseCause) Label() string {
	if c == CauseNone {
		return "unplanned"
	}
	return string(c)
}

// CloseEvent 关闭事件
type CloseEvent struct {
	SocketID SocketID
	Cause    CloseCause
	Planned  bool  // 关闭前是否设置了计划重连标记
	Err      error // 读循环的结束原因
}

// Handlers 订阅回调，未设置的回调会被跳过
type Handlers struct {
	OnOpen    func(id SocketID)
	OnMessage func(id SocketID, msg protocol.Message)
	OnError   func(err error)
	OnClose   func(ev CloseEvent)
}
