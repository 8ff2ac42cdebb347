package notify

import (
	"github.com/qiminjie89/rtsession/internal/protocol"
)

// 外部缓存 key
const (
	KeyPosts           = "posts"
	KeyFriends         = "friends"
	KeyFriendRequests  = "friend_requests"
	KeyConversations   = "conversations"
	KeySanctumRequests = "sanctum_requests"
)

// PostKey 单个帖子
func PostKey(id protocol.ID) string { return "post:" + id.String() }

// CommentsKey 帖子评论列表
func CommentsKey(postID protocol.ID) string { return "post:" + postID.String() + ":comments" }

// MessagesKey 会话消息列表
func MessagesKey(convID protocol.ID) string { return "conversation:" + convID.String() + ":messages" }

// ChatroomPresenceKey 聊天室在线列表
func ChatroomPresenceKey(roomID protocol.ID) string {
	return "chatroom:" + roomID.String() + ":presence"
}

type userSummary struct {
	ID       protocol.ID `mapstructure:"id"`
	Username string      `mapstructure:"username"`
}

func (u userSummary) name() string {
	if u.Username != "" {
		return u.Username
	}
	if !u.ID.IsZero() {
		return "user " + u.ID.String()
	}
	return "someone"
}

// eventPayload 各业务事件载荷字段的并集
type eventPayload struct {
	ID             protocol.ID `mapstructure:"id"`
	PostID         protocol.ID `mapstructure:"post_id"`
	ConversationID protocol.ID `mapstructure:"conversation_id"`
	RoomID         protocol.ID `mapstructure:"room_id"`
	UserID         protocol.ID `mapstructure:"user_id"`
	Status         string      `mapstructure:"status"`
	Preview        string      `mapstructure:"preview"`
	RequestedName  string      `mapstructure:"requested_name"`
	FromUser       userSummary `mapstructure:"from_user"`
	ToUser         userSummary `mapstructure:"to_user"`
	FriendUser     userSummary `mapstructure:"friend_user"`
}

type route struct {
	keys func(p eventPayload) []string
	item func(p eventPayload) Item // nil 表示不产生通知条目
}

func static(keys ...string) func(eventPayload) []string {
	return func(eventPayload) []string { return keys }
}

func nonEmpty(keys ...string) []string {
	out := keys[:0]
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func when(id protocol.ID, key func(protocol.ID) string) string {
	if id.IsZero() {
		return ""
	}
	return key(id)
}

var routes = map[string]route{
	protocol.TypePostCreated: {keys: static(KeyPosts)},
	protocol.TypePostReactionUpdated: {keys: func(p eventPayload) []string {
		return nonEmpty(KeyPosts, when(p.PostID, PostKey))
	}},
	protocol.TypeCommentCreated: {keys: commentKeys},
	protocol.TypeCommentUpdated: {keys: commentKeys},
	protocol.TypeCommentDeleted: {keys: commentKeys},

	protocol.TypeMessageReceived: {
		keys: func(p eventPayload) []string {
			return nonEmpty(KeyConversations, when(p.ConversationID, MessagesKey))
		},
		item: func(p eventPayload) Item {
			return Item{
				Title:       "New message",
				Description: p.FromUser.name() + ": " + p.Preview,
				Meta:        meta("conversation_id", p.ConversationID.String()),
			}
		},
	},
	protocol.TypeMessagesDropped: {keys: func(p eventPayload) []string {
		return nonEmpty(KeyConversations, when(p.ConversationID, MessagesKey))
	}},

	protocol.TypeFriendRequestReceived: {
		keys: static(KeyFriendRequests),
		item: func(p eventPayload) Item {
			return Item{
				Title:       "Friend request",
				Description: p.FromUser.name() + " sent you a friend request",
				Meta:        meta("user_id", p.FromUser.ID.String()),
			}
		},
	},
	protocol.TypeFriendRequestSent: {keys: static(KeyFriendRequests)},
	protocol.TypeFriendRequestAccepted: {
		keys: static(KeyFriendRequests, KeyFriends),
		item: func(p eventPayload) Item {
			return Item{
				Title:       "Friend request accepted",
				Description: "You are now friends with " + p.FriendUser.name(),
				Meta:        meta("user_id", p.FriendUser.ID.String()),
			}
		},
	},
	protocol.TypeFriendRequestRejected:  {keys: static(KeyFriendRequests)},
	protocol.TypeFriendRequestCancelled: {keys: static(KeyFriendRequests)},
	protocol.TypeFriendAdded:            {keys: static(KeyFriends, KeyFriendRequests)},
	protocol.TypeFriendRemoved:          {keys: static(KeyFriends)},

	protocol.TypeSanctumRequestCreated: {keys: static(KeySanctumRequests)},
	protocol.TypeSanctumRequestReviewed: {
		keys: static(KeySanctumRequests),
		item: func(p eventPayload) Item {
			desc := "Your sanctum request was reviewed"
			if p.Status != "" {
				desc = "Your sanctum request was " + p.Status
			}
			return Item{
				Title:       "Sanctum request",
				Description: desc,
				Meta:        meta("request_id", p.ID.String(), "status", p.Status),
			}
		},
	},

	protocol.TypeChatroomPresence: {keys: func(p eventPayload) []string {
		return nonEmpty(when(p.RoomID, ChatroomPresenceKey))
	}},
}

func commentKeys(p eventPayload) []string {
	return nonEmpty(when(p.PostID, PostKey), when(p.PostID, CommentsKey))
}

// meta 成对的 key/value，空值跳过
func meta(kv ...string) map[string]string {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			m[kv[i]] = kv[i+1]
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
