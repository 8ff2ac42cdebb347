package gameroom

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiminjie89/rtsession/internal/api"
	"github.com/qiminjie89/rtsession/internal/protocol"
	"github.com/qiminjie89/rtsession/internal/session"
	"github.com/qiminjie89/rtsession/pkg/cache"
)

const base = "ws://example.test/api/ws/game"

type fakeConn struct {
	mu         sync.Mutex
	open       bool
	enabled    int
	closed     bool
	sent       []protocol.Outbound
	endpoints  []string
	reconnects []session.CloseCause
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) setOpen(open bool) {
	c.mu.Lock()
	c.open = open
	c.mu.Unlock()
}

func (c *fakeConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return session.ErrNotConnected
	}
	c.sent = append(c.sent, v.(protocol.Outbound))
	return nil
}

func (c *fakeConn) Enable() {
	c.mu.Lock()
	c.enabled++
	c.mu.Unlock()
}

func (c *fakeConn) SetEndpoint(endpoint string) {
	c.mu.Lock()
	c.endpoints = append(c.endpoints, endpoint)
	c.mu.Unlock()
}

func (c *fakeConn) ReconnectWithCause(cause session.CloseCause) {
	c.mu.Lock()
	c.reconnects = append(c.reconnects, cause)
	c.mu.Unlock()
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) joins() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.sent {
		if m.Type == protocol.TypeJoinRoom {
			n++
		}
	}
	return n
}

type fakeLeaver struct {
	mu    sync.Mutex
	rooms []string
	err   error
	done  chan struct{}
}

func newFakeLeaver() *fakeLeaver {
	return &fakeLeaver{done: make(chan struct{}, 4)}
}

func (l *fakeLeaver) LeaveRoom(_ context.Context, roomID string) error {
	l.mu.Lock()
	l.rooms = append(l.rooms, roomID)
	err := l.err
	l.mu.Unlock()
	l.done <- struct{}{}
	return err
}

func (l *fakeLeaver) calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.rooms...)
}

func newTestSession(conn *fakeConn, leaver Leaver, user protocol.ID, onEvent EventHandler) *Session {
	return NewSession(conn, leaver, Options{
		UserID:       user,
		BaseEndpoint: base,
		LeaveTimeout: time.Second,
		OnEvent:      onEvent,
	})
}

func TestJoinRoomBeforeOpenIsPending(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSession(conn, nil, "2", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusActive, CreatorID: "1", OpponentID: "2"}))

	res, err := s.JoinRoom()
	require.NoError(t, err)
	assert.Equal(t, JoinPending, res)
	assert.Equal(t, Requested, s.Intent())
	assert.Equal(t, 0, conn.joins())

	conn.setOpen(true)
	s.Handlers().OnOpen(1)
	assert.Equal(t, 1, conn.joins())
	assert.Equal(t, Confirmed, s.Intent())

	// 重连后不再重复发送
	s.Handlers().OnOpen(2)
	assert.Equal(t, 1, conn.joins())
}

func TestDoubleJoinSendsOnce(t *testing.T) {
	conn := &fakeConn{open: true}
	s := newTestSession(conn, nil, "2", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusActive, CreatorID: "1"}))

	res, err := s.JoinRoom()
	require.NoError(t, err)
	assert.Equal(t, JoinConfirmed, res)

	res, err = s.JoinRoom()
	require.NoError(t, err)
	assert.Equal(t, JoinConfirmed, res)

	assert.Equal(t, 1, conn.joins())
	assert.Equal(t, protocol.ID("10"), conn.sent[0].RoomID)
}

func TestJoinWithoutRoom(t *testing.T) {
	s := newTestSession(&fakeConn{open: true}, nil, "2", nil)
	_, err := s.JoinRoom()
	assert.ErrorIs(t, err, ErrNoRoom)
}

func TestAutoJoinPendingRoomAsNonCreator(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSession(conn, nil, "2", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusPending, CreatorID: "1"}))

	assert.Equal(t, Requested, s.Intent())
	assert.Equal(t, 1, conn.enabled)
	assert.Equal(t, []string{base + "?room_id=10"}, conn.endpoints)

	conn.setOpen(true)
	s.Handlers().OnOpen(1)
	assert.Equal(t, 1, conn.joins())
	assert.True(t, s.Participant())
}

func TestNoAutoJoinForCreator(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSession(conn, nil, "1", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusPending, CreatorID: "1"}))

	assert.Equal(t, NotRequested, s.Intent())
	assert.True(t, s.Participant())

	conn.setOpen(true)
	s.Handlers().OnOpen(1)
	assert.Equal(t, 0, conn.joins())
}

func TestMetadataRefreshAutoJoinsWhenOpen(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSession(conn, nil, "2", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusActive, CreatorID: "1"}))
	conn.setOpen(true)
	s.Handlers().OnOpen(1)
	assert.Equal(t, 0, conn.joins())

	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusPending, CreatorID: "1"}))
	assert.Equal(t, 1, conn.joins())
	assert.Equal(t, Confirmed, s.Intent())
	assert.Empty(t, conn.reconnects)
}

func TestMetadataRefreshKeepsConfirmedParticipant(t *testing.T) {
	conn := &fakeConn{}
	leaver := newFakeLeaver()
	s := newTestSession(conn, leaver, "2", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusPending, CreatorID: "1"}))
	conn.setOpen(true)
	s.Handlers().OnOpen(1)
	require.Equal(t, Confirmed, s.Intent())
	require.True(t, s.Participant())

	// 刷新的元数据尚未列出对手
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusPending, CreatorID: "1"}))
	assert.True(t, s.Participant())
	assert.Equal(t, 1, conn.joins())

	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, []string{"10"}, leaver.calls())
}

func TestMetadataRefreshEndedRoomDropsParticipant(t *testing.T) {
	conn := &fakeConn{}
	leaver := newFakeLeaver()
	s := newTestSession(conn, leaver, "2", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusPending, CreatorID: "1"}))
	conn.setOpen(true)
	s.Handlers().OnOpen(1)
	require.True(t, s.Participant())

	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusFinished, CreatorID: "1", OpponentID: "2"}))
	assert.False(t, s.Participant())

	require.NoError(t, s.Close(context.Background()))
	assert.Empty(t, leaver.calls())
}

func TestRoomChangeResetsIntentAndReconnects(t *testing.T) {
	conn := &fakeConn{open: true}
	s := newTestSession(conn, nil, "2", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusActive, CreatorID: "1"}))
	_, err := s.JoinRoom()
	require.NoError(t, err)
	require.Equal(t, Confirmed, s.Intent())

	require.NoError(t, s.SetRoom(Room{ID: "11", Status: StatusActive, CreatorID: "1"}))
	assert.Equal(t, NotRequested, s.Intent())
	assert.Equal(t, []session.CloseCause{session.CauseRoomChange}, conn.reconnects)
	assert.Equal(t, base+"?room_id=11", conn.endpoints[len(conn.endpoints)-1])
	assert.Equal(t, 1, conn.enabled)

	// 新连接打开后不会自动加入
	s.Handlers().OnOpen(2)
	assert.Equal(t, 1, conn.joins())
}

func TestRoomChangeToPendingRoomJoinsOnNextOpen(t *testing.T) {
	conn := &fakeConn{open: true}
	s := newTestSession(conn, nil, "2", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusActive, CreatorID: "1"}))

	require.NoError(t, s.SetRoom(Room{ID: "11", Status: StatusPending, CreatorID: "1"}))
	assert.Equal(t, Requested, s.Intent())
	assert.Equal(t, 0, conn.joins())

	s.Handlers().OnOpen(2)
	assert.Equal(t, 1, conn.joins())
	assert.Equal(t, protocol.ID("11"), conn.sent[0].RoomID)
}

func TestSendAction(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSession(conn, nil, "1", nil)

	assert.ErrorIs(t, s.SendAction(protocol.MakeMove("", map[string]int{"column": 3})), ErrNotReady)

	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusActive, CreatorID: "1"}))
	assert.ErrorIs(t, s.SendAction(protocol.MakeMove("", map[string]int{"column": 3})), ErrNotReady)
	assert.Empty(t, conn.sent)

	conn.setOpen(true)
	require.NoError(t, s.SendAction(protocol.MakeMove("", map[string]int{"column": 3})))
	require.NoError(t, s.SendAction(protocol.Chat("99", "hi")))

	require.Len(t, conn.sent, 2)
	assert.Equal(t, protocol.ID("10"), conn.sent[0].RoomID)
	assert.Equal(t, protocol.ID("99"), conn.sent[1].RoomID)
}

func TestAlreadyStartedErrorIsSuppressed(t *testing.T) {
	conn := &fakeConn{open: true}
	var events []protocol.GameEvent
	s := newTestSession(conn, nil, "2", func(ev protocol.GameEvent) { events = append(events, ev) })
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusActive, CreatorID: "1"}))

	h := s.Handlers()
	h.OnMessage(1, protocol.GameEvent{Kind: protocol.TypeError, Payload: map[string]any{"message": "Game already started or finished"}})
	assert.Empty(t, events)
	assert.Equal(t, Confirmed, s.Intent())

	h.OnMessage(1, protocol.GameEvent{Kind: protocol.TypeError, Payload: map[string]any{"message": "Not your turn"}})
	require.Len(t, events, 1)
	assert.Equal(t, "Not your turn", events[0].ErrorMessage())
}

func TestRejectedJoinClearsParticipant(t *testing.T) {
	rejected := protocol.GameEvent{Kind: protocol.TypeError, Payload: map[string]any{"message": "Game already started or finished"}}

	conn := &fakeConn{open: true}
	leaver := newFakeLeaver()
	s := newTestSession(conn, leaver, "2", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusActive, CreatorID: "1", OpponentID: "3"}))
	_, err := s.JoinRoom()
	require.NoError(t, err)
	require.True(t, s.Participant())

	s.Handlers().OnMessage(1, rejected)
	assert.False(t, s.Participant())
	assert.Equal(t, Confirmed, s.Intent())

	require.NoError(t, s.Close(context.Background()))
	assert.Empty(t, leaver.calls())

	// 元数据列出本地身份时保持参与者
	conn = &fakeConn{open: true}
	s = newTestSession(conn, nil, "2", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusActive, CreatorID: "1", OpponentID: "2"}))
	_, err = s.JoinRoom()
	require.NoError(t, err)
	s.Handlers().OnMessage(1, rejected)
	assert.True(t, s.Participant())
}

func TestEventsUpdateRoomState(t *testing.T) {
	conn := &fakeConn{open: true}
	var kinds []string
	s := newTestSession(conn, nil, "1", func(ev protocol.GameEvent) { kinds = append(kinds, ev.Kind) })
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusPending, CreatorID: "1"}))
	h := s.Handlers()

	h.OnMessage(1, protocol.GameEvent{Kind: protocol.TypeGameStarted, Payload: map[string]any{"status": "active"}})
	room, _ := s.Room()
	assert.Equal(t, StatusActive, room.Status)

	// 其他房间的事件忽略
	h.OnMessage(1, protocol.GameEvent{Kind: protocol.TypeGameCancelled, RoomID: "77"})
	assert.True(t, s.Participant())

	h.OnMessage(1, protocol.GameEvent{Kind: protocol.TypeGameState, Payload: map[string]any{"status": "finished"}})
	room, _ = s.Room()
	assert.Equal(t, StatusFinished, room.Status)
	assert.False(t, s.Participant())

	h.OnMessage(1, protocol.Connected{})
	assert.Equal(t, []string{protocol.TypeGameStarted, protocol.TypeGameState}, kinds)
}

func TestTerminateFiresLeave(t *testing.T) {
	conn := &fakeConn{open: true}
	leaver := newFakeLeaver()
	s := newTestSession(conn, leaver, "1", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusActive, CreatorID: "1", OpponentID: "2"}))

	s.Terminate()
	select {
	case <-leaver.done:
	case <-time.After(2 * time.Second):
		t.Fatal("leave not sent")
	}
	s.Wait()
	assert.Equal(t, []string{"10"}, leaver.calls())

	// Terminate 之后的正常关闭不再重复离开
	require.NoError(t, s.Close(context.Background()))
	assert.Len(t, leaver.calls(), 1)
	assert.True(t, conn.closed)
}

func TestCloseSuppressesNotParticipant(t *testing.T) {
	conn := &fakeConn{open: true}
	leaver := newFakeLeaver()
	leaver.err = &api.Error{Status: 403, Message: "Not a participant in this room"}
	s := newTestSession(conn, leaver, "2", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusActive, CreatorID: "1", OpponentID: "2"}))

	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, []string{"10"}, leaver.calls())
	assert.True(t, conn.closed)

	require.NoError(t, s.Close(context.Background()))
	assert.Len(t, leaver.calls(), 1)
	assert.ErrorIs(t, s.SetRoom(Room{ID: "11"}), session.ErrClosed)
}

func TestCloseReturnsOtherLeaveErrors(t *testing.T) {
	conn := &fakeConn{open: true}
	leaver := newFakeLeaver()
	leaver.err = errors.New("boom")
	s := newTestSession(conn, leaver, "1", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusActive, CreatorID: "1"}))

	assert.Error(t, s.Close(context.Background()))
	assert.True(t, conn.closed)
}

func TestNonParticipantSkipsLeave(t *testing.T) {
	leaver := newFakeLeaver()
	s := newTestSession(&fakeConn{}, leaver, "3", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusActive, CreatorID: "1", OpponentID: "2"}))

	s.Terminate()
	require.NoError(t, s.Close(context.Background()))
	assert.Empty(t, leaver.calls())

	ended := newTestSession(&fakeConn{}, leaver, "1", nil)
	require.NoError(t, ended.SetRoom(Room{ID: "12", Status: StatusCancelled, CreatorID: "1"}))
	require.NoError(t, ended.Close(context.Background()))
	assert.Empty(t, leaver.calls())
}

type recordingCache struct {
	mu   sync.Mutex
	keys []string
}

func (c *recordingCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	c.keys = append(c.keys, key)
	c.mu.Unlock()
	return nil
}

func (c *recordingCache) Set(context.Context, string, []byte) error { return nil }

var _ cache.Cache = (*recordingCache)(nil)

func TestRegistryForward(t *testing.T) {
	c := &recordingCache{}
	r := NewRegistry(c)

	var got []protocol.GameEvent
	s := newTestSession(&fakeConn{}, nil, "1", func(ev protocol.GameEvent) { got = append(got, ev) })
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusActive, CreatorID: "1"}))
	r.Add(s)

	r.Forward("10", protocol.GameEvent{Kind: protocol.TypeGameCancelled, RoomID: "10"})
	r.Forward("11", protocol.GameEvent{Kind: protocol.TypeGameCancelled, RoomID: "11"})

	assert.Equal(t, []string{KeyRooms, "game_room:10", KeyRooms, "game_room:11"}, c.keys)
	require.Len(t, got, 1)
	room, _ := s.Room()
	assert.Equal(t, StatusCancelled, room.Status)
	assert.False(t, s.Participant())

	r.Remove(s)
	r.Forward("10", protocol.GameEvent{Kind: protocol.TypeGameState, RoomID: "10"})
	assert.Len(t, got, 1)
}

func TestEndpoint(t *testing.T) {
	u, err := Endpoint("wss://host/api/ws/game", "42")
	require.NoError(t, err)
	assert.Equal(t, "wss://host/api/ws/game?room_id=42", u)
}

func TestRegistryRefreshesRoomState(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory(0)
	require.NoError(t, mem.Set(ctx, KeyRooms, []byte(`[]`)))
	require.NoError(t, mem.Set(ctx, CacheKey("10"), []byte(`{"status":"pending"}`)))

	r := NewRegistry(mem)
	s := newTestSession(&fakeConn{}, nil, "1", nil)
	require.NoError(t, s.SetRoom(Room{ID: "10", Status: StatusPending, CreatorID: "1"}))
	r.Add(s)

	r.Forward("10", protocol.GameEvent{
		Kind:    protocol.TypeGameState,
		RoomID:  "10",
		Payload: map[string]any{"status": "active", "current_turn": float64(2)},
	})

	data, ok := mem.Get(CacheKey("10"))
	require.True(t, ok)
	assert.JSONEq(t, `{"status":"active","current_turn":2}`, string(data))
	_, ok = mem.Get(KeyRooms)
	assert.False(t, ok)
	room, _ := s.Room()
	assert.Equal(t, StatusActive, room.Status)

	r.Forward("10", protocol.GameEvent{Kind: protocol.TypeGameCancelled, RoomID: "10"})
	_, ok = mem.Get(CacheKey("10"))
	assert.False(t, ok)
}
