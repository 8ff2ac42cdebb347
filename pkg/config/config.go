// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 会话核心配置
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Connection    ConnectionConfig    `yaml:"connection"`
	Game          GameConfig          `yaml:"game"`
	Dialer        DialerConfig        `yaml:"dialer"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Cache         CacheConfig         `yaml:"cache"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Health        HealthConfig        `yaml:"health"`
	Log           LogConfig           `yaml:"log"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// ServerConfig 服务端地址
type ServerConfig struct {
	BaseURL     string        `yaml:"base_url"`     // http(s)://host:port
	WSBaseURL   string        `yaml:"ws_base_url"`  // 为空时由 base_url 推导
	RealtimeWS  string        `yaml:"realtime_ws"`  // 通知/在线状态通道
	GameWS      string        `yaml:"game_ws"`      // 游戏房间通道
	TicketPath  string        `yaml:"ticket_path"`  // 短期票据签发
	LeavePath   string        `yaml:"leave_path"`   // 含 %s 房间占位
	HTTPTimeout time.Duration `yaml:"http_timeout"` // REST 请求超时
}

// AuthConfig 长期凭证配置
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"` // 监听文件变化实现凭证轮换
}

// ConnectionConfig 连接状态机配置
type ConnectionConfig struct {
	ReconnectDelays  []time.Duration `yaml:"reconnect_delays"`
	HandshakeTimeout time.Duration   `yaml:"handshake_timeout"`
	HandshakeAck     []string        `yaml:"handshake_ack"`
	WriteTimeout     time.Duration   `yaml:"write_timeout"`
	EventBuffer      int             `yaml:"event_buffer"`
	Codec            string          `yaml:"codec"` // json, msgpack
}

// GameConfig 游戏房间通道配置
type GameConfig struct {
	HandshakeAck     []string      `yaml:"handshake_ack"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"` // 负数表示不等待握手确认
	LeaveTimeout     time.Duration `yaml:"leave_timeout"`
}

// DialerConfig WebSocket 拨号配置
type DialerConfig struct {
	ReadBufferSize   int           `yaml:"read_buffer_size"`
	WriteBufferSize  int           `yaml:"write_buffer_size"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReadLimit        int64         `yaml:"read_limit"`
}

// NotificationsConfig 通知日志配置
type NotificationsConfig struct {
	Capacity int      `yaml:"capacity"`
	Alerts   []string `yaml:"alerts"` // 需要弹出提醒的事件类型
}

// CacheConfig 外部数据缓存配置
type CacheConfig struct {
	Driver    string        `yaml:"driver"` // memory, redis
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// HealthConfig 健康检查配置
type HealthConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// Load 加载配置文件，展开环境变量并填充默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 配置内容
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Default 返回全部取默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
