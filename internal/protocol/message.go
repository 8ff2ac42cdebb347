// Package protocol 定义实时会话的消息信封、消息类型与编解码
package protocol

// 连接层消息类型
const (
	TypeConnected = "connected" // 握手确认
	TypePing      = "PING"
	TypePong      = "PONG"
)

// 在线状态
const (
	TypeFriendsOnlineSnapshot = "friends_online_snapshot"
	TypeFriendPresenceChanged = "friend_presence_changed"
	TypeChatroomPresence      = "chatroom_presence"
)

// 实时业务事件
const (
	TypePostCreated            = "post_created"
	TypePostReactionUpdated    = "post_reaction_updated"
	TypeCommentCreated         = "comment_created"
	TypeCommentUpdated         = "comment_updated"
	TypeCommentDeleted         = "comment_deleted"
	TypeMessageReceived        = "message_received"
	TypeMessagesDropped        = "messages_dropped"
	TypeFriendRequestReceived  = "friend_request_received"
	TypeFriendRequestSent      = "friend_request_sent"
	TypeFriendRequestAccepted  = "friend_request_accepted"
	TypeFriendRequestRejected  = "friend_request_rejected"
	TypeFriendRequestCancelled = "friend_request_cancelled"
	TypeFriendAdded            = "friend_added"
	TypeFriendRemoved          = "friend_removed"
	TypeSanctumRequestCreated  = "sanctum_request_created"
	TypeSanctumRequestReviewed = "sanctum_request_reviewed"
)

// 游戏房间消息类型
const (
	// 客户端 → 服务端
	TypeJoinRoom = "join_room"
	TypeMakeMove = "make_move"
	TypeChat     = "chat"

	// 服务端 → 客户端
	TypeGameStarted    = "game_started"
	TypeGameState      = "game_state"
	TypeGameCancelled  = "game_cancelled"
	TypeServerShutdown = "server_shutdown"
	TypeError          = "error"
)

// 在线状态取值
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Message 入站消息的和类型，具体变体见下方各结构体
type Message interface {
	// Type 返回线上的 type 判别字段
	Type() string
	isMessage()
}

// Connected 握手确认
type Connected struct {
	UserID   ID     `mapstructure:"user_id"`
	Username string `mapstructure:"username"`
}

// Ping 心跳探测，Bare 表示裸字符串形式
type Ping struct {
	Bare  bool
	Lower bool
}

// Pong 心跳应答
type Pong struct{}

// PresenceSnapshot 好友在线快照，整体替换
type PresenceSnapshot struct {
	UserIDs []ID `mapstructure:"user_ids"`
}

// PresenceDelta 单个好友上下线
type PresenceDelta struct {
	UserID   ID     `mapstructure:"user_id"`
	Username string `mapstructure:"username"`
	Status   string `mapstructure:"status"`
}

// Online 是否为上线事件
func (p PresenceDelta) Online() bool {
	return p.Status == StatusOnline
}

// Event 通用实时业务事件（帖子、评论、好友、私信等）
type Event struct {
	Kind    string
	Payload map[string]any
}

// GameEvent 游戏房间事件，RoomID 可能为空
type GameEvent struct {
	Kind    string
	RoomID  ID
	Payload map[string]any
}

// ErrorMessage 返回 payload.message（error 事件）
func (g GameEvent) ErrorMessage() string {
	if g.Payload == nil {
		return ""
	}
	msg, _ := g.Payload["message"].(string)
	return msg
}

// Unknown 无法识别的消息类型，保留原始字段以便前向兼容
type Unknown struct {
	Kind   string
	Fields map[string]any
}

func (Connected) Type() string        { return TypeConnected }
func (PresenceSnapshot) Type() string { return TypeFriendsOnlineSnapshot }
func (PresenceDelta) Type() string    { return TypeFriendPresenceChanged }
func (Pong) Type() string             { return TypePong }
func (e Event) Type() string          { return e.Kind }
func (g GameEvent) Type() string      { return g.Kind }
func (u Unknown) Type() string        { return u.Kind }

func (p Ping) Type() string {
	if p.Lower {
		return "ping"
	}
	return TypePing
}

func (Connected) isMessage()        {}
func (Ping) isMessage()             {}
func (Pong) isMessage()             {}
func (PresenceSnapshot) isMessage() {}
func (PresenceDelta) isMessage()    {}
func (Event) isMessage()            {}
func (GameEvent) isMessage()        {}
func (Unknown) isMessage()          {}

// eventTypes 已知的实时业务事件
var eventTypes = map[string]struct{}{
	TypePostCreated:            {},
	TypePostReactionUpdated:    {},
	TypeCommentCreated:         {},
	TypeCommentUpdated:         {},
	TypeCommentDeleted:         {},
	TypeMessageReceived:        {},
	TypeMessagesDropped:        {},
	TypeFriendRequestReceived:  {},
	TypeFriendRequestSent:      {},
	TypeFriendRequestAccepted:  {},
	TypeFriendRequestRejected:  {},
	TypeFriendRequestCancelled: {},
	TypeFriendAdded:            {},
	TypeFriendRemoved:          {},
	TypeSanctumRequestCreated:  {},
	TypeSanctumRequestReviewed: {},
	TypeChatroomPresence:       {},
}

// gameTypes 已知的游戏房间事件
var gameTypes = map[string]struct{}{
	TypeGameStarted:    {},
	TypeGameState:      {},
	TypeGameCancelled:  {},
	TypeServerShutdown: {},
	TypeError:          {},
	TypeChat:           {},
}

// IsEventType 是否为已知业务事件
func IsEventType(t string) bool {
	_, ok := eventTypes[t]
	return ok
}

// IsGameType 是否为已知游戏事件
func IsGameType(t string) bool {
	_, ok := gameTypes[t]
	return ok
}
