// Package gameroom 实现游戏房间的加入、离开与动作协议
package gameroom

import (
	"fmt"
	"net/url"

	"github.com/qiminjie89/rtsession/internal/protocol"
)

// Status 房间状态
type Status string

// 房间状态取值
const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

// Ended 房间是否已经结束
func (s Status) Ended() bool {
	return s == StatusFinished || s == StatusCancelled
}

// Room 房间元数据
type Room struct {
	ID         protocol.ID
	Status     Status
	CreatorID  protocol.ID
	OpponentID protocol.ID
}

// HasParticipant user 是否为房间参与者（创建者或对手）
func (r Room) HasParticipant(user protocol.ID) bool {
	if user.IsZero() {
		return false
	}
	return r.CreatorID == user || r.OpponentID == user
}

// shouldAutoJoin 等待中的房间，非创建者打开时自动加入
func (r Room) shouldAutoJoin(user protocol.ID) bool {
	return r.Status == StatusPending && !user.IsZero() && r.CreatorID != user
}

// CacheKey 房间数据的外部缓存 key
func CacheKey(roomID string) string {
	return "game_room:" + roomID
}

// Endpoint 房间通道地址：base?room_id=<id>
func Endpoint(base string, roomID protocol.ID) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse game endpoint %q: %w", base, err)
	}
	q := u.Query()
	q.Set("room_id", roomID.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}
