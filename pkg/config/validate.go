package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 校验必填项与取值范围
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.Server.BaseURL); err != nil {
		return fmt.Errorf("server.base_url is invalid: %w", err)
	}
	if !strings.HasPrefix(c.Server.WSBaseURL, "ws://") && !strings.HasPrefix(c.Server.WSBaseURL, "wss://") {
		return fmt.Errorf("server.ws_base_url must use ws:// or wss://, got %q", c.Server.WSBaseURL)
	}
	if !strings.Contains(c.Server.LeavePath, "%s") {
		return errors.New("server.leave_path must contain a %s room placeholder")
	}

	for i, d := range c.Connection.ReconnectDelays {
		if d <= 0 {
			return fmt.Errorf("connection.reconnect_delays[%d] must be > 0, got %s", i, d)
		}
	}
	if c.Connection.HandshakeTimeout < 0 {
		return errors.New("connection.handshake_timeout must be >= 0")
	}
	if c.Connection.EventBuffer < 1 {
		return errors.New("connection.event_buffer must be >= 1")
	}
	switch c.Connection.Codec {
	case "json", "msgpack":
	default:
		return fmt.Errorf("connection.codec must be json or msgpack, got %q", c.Connection.Codec)
	}

	if c.Notifications.Capacity < 1 {
		return errors.New("notifications.capacity must be >= 1")
	}

	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Cache.Addr == "" {
			return errors.New("cache.addr is required when cache.driver is redis")
		}
	default:
		return fmt.Errorf("cache.driver must be memory or redis, got %q", c.Cache.Driver)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}

	if c.Auth.Token == "" && c.Auth.TokenFile == "" {
		return errors.New("auth.token or auth.token_file is required")
	}

	return nil
}
