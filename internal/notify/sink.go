package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher 按 key 发布字节消息，pkg/kafka.Producer 实现了它
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// PublisherSink 将通知条目以 JSON 镜像到 Publisher，key 为当前用户
type PublisherSink struct {
	pub  Publisher
	user func() string
}

// NewPublisherSink 创建镜像，user 返回当前登录用户 id
func NewPublisherSink(pub Publisher, user func() string) *PublisherSink {
	return &PublisherSink{pub: pub, user: user}
}

// Mirrored 镜像记录：通知条目加所属用户
type Mirrored struct {
	UserID string `json:"user_id"`
	Item
}

// DecodeMirrored 解析一条镜像记录
func DecodeMirrored(data []byte) (Mirrored, error) {
	var m Mirrored
	if err := json.Unmarshal(data, &m); err != nil {
		return Mirrored{}, fmt.Errorf("decode notification: %w", err)
	}
	if m.ID == "" {
		return Mirrored{}, fmt.Errorf("decode notification: missing id")
	}
	return m, nil
}

// Publish 实现 Sink
func (s *PublisherSink) Publish(ctx context.Context, item Item) error {
	user := ""
	if s.user != nil {
		user = s.user()
	}
	data, err := json.Marshal(Mirrored{UserID: user, Item: item})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	key := user
	if key == "" {
		key = item.ID
	}
	return s.pub.Publish(ctx, key, data)
}
