package gameroom

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/rtsession/internal/api"
	"github.com/qiminjie89/rtsession/internal/protocol"
	"github.com/qiminjie89/rtsession/internal/session"
	"github.com/qiminjie89/rtsession/pkg/logger"
	"github.com/qiminjie89/rtsession/pkg/metrics"
)

// 错误定义
var (
	ErrNotReady = errors.New("game room not ready")
	ErrNoRoom   = errors.New("no room selected")
)

// JoinIntent 加入意图
type JoinIntent int

// 加入意图取值
const (
	NotRequested JoinIntent = iota
	Requested
	Confirmed
)

func (i JoinIntent) String() string {
	switch i {
	case Requested:
		return "requested"
	case Confirmed:
		return "confirmed"
	default:
		return "not_requested"
	}
}

// JoinResult JoinRoom 的结果
type JoinResult int

// JoinRoom 结果取值
const (
	JoinPending   JoinResult = iota // 连接未就绪，打开后自动加入
	JoinConfirmed                   // 已发送或此前已确认
)

// Conn 房间会话需要的连接控制面，session.Manager 实现了它
type Conn interface {
	IsOpen() bool
	Send(v any) error
	Enable()
	SetEndpoint(endpoint string)
	ReconnectWithCause(cause session.CloseCause)
	Close()
}

// Leaver 通过 REST 离开房间
type Leaver interface {
	LeaveRoom(ctx context.Context, roomID string) error
}

// EventHandler 接收房间事件（开始、状态、聊天、错误等）
type EventHandler func(ev protocol.GameEvent)

// Options 房间会话配置
type Options struct {
	UserID       protocol.ID // 本地身份
	BaseEndpoint string      // 游戏通道地址，不含 room_id
	LeaveTimeout time.Duration
	OnEvent      EventHandler
	Logger       *zap.Logger
}

// Session 单个房间的会话协议，同一时刻只针对一个房间
type Session struct {
	conn    Conn
	leaver  Leaver
	opts    Options
	log     *zap.Logger
	leaveWG sync.WaitGroup

	mu          sync.Mutex
	room        Room
	hasRoom     bool
	intent      JoinIntent
	participant bool
	enabled     bool
	closed      bool
}

// NewSession 创建房间会话。调用方负责用 Handlers 订阅 conn 所属的管理器
func NewSession(conn Conn, leaver Leaver, opts Options) *Session {
	if opts.LeaveTimeout == 0 {
		opts.LeaveTimeout = 3 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("gameroom")
	}
	return &Session{
		conn:   conn,
		leaver: leaver,
		opts:   opts,
		log:    log,
	}
}

// Handlers 连接事件回调
func (s *Session) Handlers() session.Handlers {
	return session.Handlers{
		OnOpen: func(session.SocketID) { s.onOpen() },
		OnMessage: func(_ session.SocketID, msg protocol.Message) {
			if ev, ok := msg.(protocol.GameEvent); ok {
				s.handleEvent(ev)
			}
		},
	}
}

// Intent 当前加入意图
func (s *Session) Intent() JoinIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intent
}

// Room 当前房间
func (s *Session) Room() (Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room, s.hasRoom
}

// RoomID 当前房间 id，没有房间时为空
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasRoom {
		return ""
	}
	return s.room.ID.String()
}

// Participant 本地身份是否为当前房间参与者
func (s *Session) Participant() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participant
}

// SetRoom 设置或更新目标房间。
// 房间 id 变化时重置加入意图并强制计划重连；
// 等待中且本地不是创建者的房间自动请求加入
func (s *Session) SetRoom(room Room) error {
	if room.ID.IsZero() {
		return ErrNoRoom
	}
	endpoint, err := Endpoint(s.opts.BaseEndpoint, room.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return session.ErrClosed
	}
	first := !s.hasRoom
	changed := s.hasRoom && s.room.ID != room.ID
	if changed {
		s.intent = NotRequested
	}
	listed := !room.Status.Ended() && room.HasParticipant(s.opts.UserID)
	if !first && !changed && s.intent == Confirmed && !room.Status.Ended() {
		// 已发送加入的同一房间：元数据可能还没有列出本地身份
		listed = listed || s.participant
	}
	s.room = room
	s.hasRoom = true
	s.participant = listed

	autoJoin := room.shouldAutoJoin(s.opts.UserID) && s.intent == NotRequested
	if autoJoin {
		s.intent = Requested
	}
	enable := first && !s.enabled
	s.enabled = true
	s.mu.Unlock()

	log := s.log.With(zap.String("room_id", room.ID.String()))
	switch {
	case enable:
		log.Info("game room selected", zap.String("status", string(room.Status)))
		s.conn.SetEndpoint(endpoint)
		s.conn.Enable()
	case changed:
		log.Info("game room changed, reconnecting")
		s.conn.SetEndpoint(endpoint)
		s.conn.ReconnectWithCause(session.CauseRoomChange)
	}

	if autoJoin {
		log.Debug("auto join requested")
		// 换房或首次连接时由新连接的 OnOpen 发送
		if !enable && !changed && s.conn.IsOpen() {
			s.sendRequestedJoin()
		}
	}
	return nil
}

// JoinRoom 请求加入当前房间。
// 连接未打开时记录意图并返回 JoinPending；已确认时不重复发送
func (s *Session) JoinRoom() (JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasRoom {
		return JoinPending, ErrNoRoom
	}
	if s.intent == Confirmed {
		if s.conn.IsOpen() {
			return JoinConfirmed, nil
		}
		return JoinPending, nil
	}
	if !s.conn.IsOpen() {
		s.intent = Requested
		return JoinPending, nil
	}
	if err := s.sendJoinLocked(); err != nil {
		s.intent = Requested
		if errors.Is(err, session.ErrNotConnected) {
			return JoinPending, nil
		}
		return JoinPending, err
	}
	return JoinConfirmed, nil
}

// SendAction 发送房间动作，缺少 room_id 时补全；未就绪时返回 ErrNotReady，不排队
func (s *Session) SendAction(action protocol.Outbound) error {
	s.mu.Lock()
	room, hasRoom, closed := s.room, s.hasRoom, s.closed
	s.mu.Unlock()

	if closed || !hasRoom || !s.conn.IsOpen() {
		metrics.GameActionsRejected.Inc()
		return ErrNotReady
	}
	if action.RoomID.IsZero() {
		action.RoomID = room.ID
	}
	if err := s.conn.Send(action); err != nil {
		if errors.Is(err, session.ErrNotConnected) {
			metrics.GameActionsRejected.Inc()
			return ErrNotReady
		}
		return fmt.Errorf("send %s: %w", action.Type, err)
	}
	return nil
}

// Terminate 进程异常退出时调用：发出不等待结果的离开请求
func (s *Session) Terminate() {
	s.mu.Lock()
	roomID, leave := s.room.ID.String(), s.participant && s.hasRoom
	s.participant = false
	s.mu.Unlock()

	if !leave || s.leaver == nil {
		return
	}

	s.leaveWG.Add(1)
	go func() {
		defer s.leaveWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.LeaveTimeout)
		defer cancel()
		if err := s.leaver.LeaveRoom(ctx, roomID); err != nil && !errors.Is(err, api.ErrNotParticipant) {
			metrics.GameLeaves.WithLabelValues("beacon", "error").Inc()
			return
		}
		metrics.GameLeaves.WithLabelValues("beacon", "ok").Inc()
	}()
	s.log.Info("leave beacon sent", zap.String("room_id", roomID))
}

// Close 正常结束房间会话：等待离开请求完成（非参与者的拒绝静默处理），
// 然后卸载连接。不能在连接回调中调用
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	roomID, leave := s.room.ID.String(), s.participant && s.hasRoom
	s.participant = false
	s.mu.Unlock()

	var err error
	if leave && s.leaver != nil {
		err = s.leaver.LeaveRoom(ctx, roomID)
		switch {
		case err == nil:
			metrics.GameLeaves.WithLabelValues("awaited", "ok").Inc()
			s.log.Info("left game room", zap.String("room_id", roomID))
		case errors.Is(err, api.ErrNotParticipant):
			metrics.GameLeaves.WithLabelValues("awaited", "not_participant").Inc()
			err = nil
		default:
			metrics.GameLeaves.WithLabelValues("awaited", "error").Inc()
			s.log.Warn("leave game room failed", zap.String("room_id", roomID), zap.Error(err))
		}
	}

	s.conn.Close()
	return err
}

// Wait 等待已发出的离开请求结束，仅用于测试与优雅退出
func (s *Session) Wait() {
	s.leaveWG.Wait()
}

func (s *Session) onOpen() {
	s.mu.Lock()
	requested := s.intent == Requested
	s.mu.Unlock()
	if requested {
		s.sendRequestedJoin()
	}
}

// sendRequestedJoin 仅在意图仍为 Requested 时发送
func (s *Session) sendRequestedJoin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.intent != Requested || !s.hasRoom {
		return
	}
	if err := s.sendJoinLocked(); err != nil {
		s.log.Debug("join deferred", zap.String("room_id", s.room.ID.String()), zap.Error(err))
	}
}

func (s *Session) sendJoinLocked() error {
	if err := s.conn.Send(protocol.JoinRoom(s.room.ID)); err != nil {
		return err
	}
	s.intent = Confirmed
	s.participant = true
	metrics.GameJoinsSent.Inc()
	s.log.Info("join sent", zap.String("room_id", s.room.ID.String()))
	return nil
}

// handleEvent 处理房间事件：更新状态，已满足的拒绝静默处理，其余交给 OnEvent
func (s *Session) handleEvent(ev protocol.GameEvent) {
	s.mu.Lock()
	if !ev.RoomID.IsZero() && s.hasRoom && ev.RoomID != s.room.ID {
		s.mu.Unlock()
		return
	}

	suppress := false
	switch ev.Kind {
	case protocol.TypeError:
		code := protocol.ClassifyRejection(ev.ErrorMessage())
		if code.Satisfied() {
			suppress = true
			switch code {
			case protocol.ErrCodeAlreadyStarted:
				s.intent = Confirmed
				// 加入被拒且元数据未列出本地身份时，服务端没有接受这次加入
				if !s.room.HasParticipant(s.opts.UserID) {
					s.participant = false
				}
			case protocol.ErrCodeNotParticipant:
				s.participant = false
			}
			s.log.Debug("rejection treated as satisfied",
				zap.String("room_id", s.room.ID.String()),
				zap.String("reason", code.String()),
			)
		}
	case protocol.TypeGameStarted:
		s.room.Status = StatusActive
		if s.intent == Confirmed {
			s.participant = true
		}
	case protocol.TypeGameCancelled:
		s.room.Status = StatusCancelled
		s.participant = false
	case protocol.TypeGameState:
		if st, _ := ev.Payload["status"].(string); st != "" {
			s.room.Status = Status(st)
			if s.room.Status.Ended() {
				s.participant = false
			}
		}
	}
	s.mu.Unlock()

	if !suppress && s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
}
