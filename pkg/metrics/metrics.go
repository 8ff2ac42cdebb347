// Package metrics 提供 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 连接管理指标
var (
	// 连接状态：0 断开，1 连接中，2 已连接
	SessionConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rtsession_connection_state",
		Help: "Current connection state per channel",
	}, []string{"channel"})

	SessionDialAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsession_dial_attempts_total",
		Help: "Socket creation attempts by result",
	}, []string{"channel", "result"}) // ok, ticket_error, dial_error

	SessionReconnectsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsession_reconnects_scheduled_total",
		Help: "Reconnect timers scheduled",
	}, []string{"channel"})

	SessionReconnectDelay = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rtsession_reconnect_delay_seconds",
		Help:    "Scheduled reconnect delay",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"channel"})

	// 关闭原因，unplanned 表示对端或网络关闭
	SessionCloseCause = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsession_close_total",
		Help: "Socket close count by cause",
	}, []string{"channel", "cause"})

	SessionHandshakeTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsession_handshake_timeouts_total",
		Help: "Sockets force-closed because the handshake acknowledgement never arrived",
	}, []string{"channel"})

	SessionStaleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsession_stale_events_total",
		Help: "Events dropped because their socket was superseded",
	}, []string{"channel"})

	// 消息指标
	SessionMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsession_messages_received_total",
		Help: "Inbound messages by envelope type",
	}, []string{"channel", "msg_type"})

	SessionMessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsession_messages_sent_total",
		Help: "Outbound messages by result",
	}, []string{"channel", "result"}) // ok, not_connected, error

	SessionMessagesMalformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsession_messages_malformed_total",
		Help: "Inbound messages that failed to decode",
	}, []string{"channel"})

	SessionPingsAnswered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsession_pings_answered_total",
		Help: "Ping sentinels answered with pong",
	}, []string{"channel"})
)

// 协议层指标
var (
	NotificationsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsession_notifications_appended_total",
		Help: "Notification items appended to the log",
	}, []string{"type"})

	NotificationsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtsession_notifications_evicted_total",
		Help: "Notification items evicted past capacity",
	})

	NotificationsIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsession_notifications_ignored_total",
		Help: "Inbound events with an unrecognized type",
	}, []string{"type"})

	CacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsession_cache_invalidations_total",
		Help: "External cache invalidations by result",
	}, []string{"result"})

	CacheRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsession_cache_refreshes_total",
		Help: "External cache entries rewritten from inbound events, by result",
	}, []string{"result"})

	PresenceOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtsession_presence_online",
		Help: "Peers currently believed online",
	})

	GameJoinsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtsession_game_joins_sent_total",
		Help: "join_room messages written to the transport",
	})

	GameActionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtsession_game_actions_rejected_total",
		Help: "Game actions refused because the transport was not open",
	})

	GameLeaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsession_game_leaves_total",
		Help: "Leave requests by mode and result",
	}, []string{"mode", "result"}) // mode: awaited, beacon
)
