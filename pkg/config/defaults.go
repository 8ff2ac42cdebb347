package config

import (
	"strings"
	"time"
)

// 可选字段默认值
const (
	DefaultBaseURL          = "http://localhost:8080"
	DefaultRealtimeWS       = "/api/ws"
	DefaultGameWS           = "/api/ws/game"
	DefaultTicketPath       = "/api/ws/ticket"
	DefaultLeavePath        = "/api/games/rooms/%s/leave"
	DefaultHTTPTimeout      = 10 * time.Second
	DefaultHandshakeTimeout = 15 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultEventBuffer      = 256
	DefaultCodec            = "json"
	DefaultLeaveTimeout     = 3 * time.Second
	DefaultDialTimeout      = 10 * time.Second
	DefaultBufferSize       = 4096
	DefaultReadLimit        = 1 << 20
	DefaultCapacity         = 30
	DefaultCacheDriver      = "memory"
	DefaultCacheKeyPrefix   = "rtsession:"
	DefaultCacheTTL         = 5 * time.Minute
	DefaultKafkaTopic       = "rtsession.notifications"
	DefaultMetricsPath      = "/metrics"
)

// DefaultGameHandshakeTimeout 游戏通道默认不等待握手确认：等待对手的房间里服务端不下发任何消息
const DefaultGameHandshakeTimeout = -1 * time.Second

// DefaultReconnectDelays 重连退避序列，超出后停留在最后一项
var DefaultReconnectDelays = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}

// DefaultHandshakeAck 通知通道的握手确认消息类型
var DefaultHandshakeAck = []string{"connected", "friends_online_snapshot"}

// DefaultGameHandshakeAck 游戏通道的握手确认消息类型
var DefaultGameHandshakeAck = []string{"connected", "game_state", "game_started"}

// DefaultAlerts 默认弹出提醒的事件类型
var DefaultAlerts = []string{"friend_request_received", "friend_request_accepted", "message_received", "sanctum_request_reviewed"}

func (c *Config) applyDefaults() {
	// Server
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = DefaultBaseURL
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if c.Server.WSBaseURL == "" {
		c.Server.WSBaseURL = wsBase(c.Server.BaseURL)
	}
	if c.Server.RealtimeWS == "" {
		c.Server.RealtimeWS = DefaultRealtimeWS
	}
	if c.Server.GameWS == "" {
		c.Server.GameWS = DefaultGameWS
	}
	if c.Server.TicketPath == "" {
		c.Server.TicketPath = DefaultTicketPath
	}
	if c.Server.LeavePath == "" {
		c.Server.LeavePath = DefaultLeavePath
	}
	if c.Server.HTTPTimeout == 0 {
		c.Server.HTTPTimeout = DefaultHTTPTimeout
	}

	// Connection
	if len(c.Connection.ReconnectDelays) == 0 {
		c.Connection.ReconnectDelays = append([]time.Duration(nil), DefaultReconnectDelays...)
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if len(c.Connection.HandshakeAck) == 0 {
		c.Connection.HandshakeAck = append([]string(nil), DefaultHandshakeAck...)
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.EventBuffer == 0 {
		c.Connection.EventBuffer = DefaultEventBuffer
	}
	if c.Connection.Codec == "" {
		c.Connection.Codec = DefaultCodec
	}

	// Game
	if len(c.Game.HandshakeAck) == 0 {
		c.Game.HandshakeAck = append([]string(nil), DefaultGameHandshakeAck...)
	}
	if c.Game.HandshakeTimeout == 0 {
		c.Game.HandshakeTimeout = DefaultGameHandshakeTimeout
	}
	if c.Game.LeaveTimeout == 0 {
		c.Game.LeaveTimeout = DefaultLeaveTimeout
	}

	// Dialer
	if c.Dialer.ReadBufferSize == 0 {
		c.Dialer.ReadBufferSize = DefaultBufferSize
	}
	if c.Dialer.WriteBufferSize == 0 {
		c.Dialer.WriteBufferSize = DefaultBufferSize
	}
	if c.Dialer.HandshakeTimeout == 0 {
		c.Dialer.HandshakeTimeout = DefaultDialTimeout
	}
	if c.Dialer.ReadLimit == 0 {
		c.Dialer.ReadLimit = DefaultReadLimit
	}

	// Notifications
	if c.Notifications.Capacity == 0 {
		c.Notifications.Capacity = DefaultCapacity
	}
	if c.Notifications.Alerts == nil {
		c.Notifications.Alerts = append([]string(nil), DefaultAlerts...)
	}

	// Cache
	if c.Cache.Driver == "" {
		c.Cache.Driver = DefaultCacheDriver
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = DefaultCacheKeyPrefix
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}

	// Kafka
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = DefaultKafkaTopic
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	// Metrics
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// wsBase 将 http(s) 基地址转换为 ws(s)
func wsBase(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
