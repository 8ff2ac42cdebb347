// Package api 会话核心用到的少量 REST 接口：连接票据签发与离开房间
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/rtsession/pkg/auth"
	"github.com/qiminjie89/rtsession/pkg/logger"
)

// 错误定义
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotParticipant = errors.New("not a participant in this room")
)

// Error 服务端拒绝的请求
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// Is 让 errors.Is 能识别 401 与非参与者的 403
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotParticipant:
		return e.Status == http.StatusForbidden &&
			strings.Contains(strings.ToLower(e.Message), "not a participant")
	}
	return false
}

// Config 客户端配置
type Config struct {
	BaseURL    string
	TicketPath string
	LeavePath  string // 含一个 %s 房间占位
	Timeout    time.Duration
}

// Client REST 客户端，每次请求都从 creds 读取当前长期凭证
type Client struct {
	cfg   Config
	http  *http.Client
	creds auth.Source
	log   *zap.Logger
}

// New 创建客户端，httpClient 为空时按配置超时新建
func New(cfg Config, creds auth.Source, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:   cfg,
		http:  httpClient,
		creds: creds,
		log:   logger.Named("api"),
	}
}

type ticketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int64  `json:"expires_in"`
}

// Ticket 申请一次性连接票据
func (c *Client) Ticket(ctx context.Context) (auth.Ticket, error) {
	var resp ticketResponse
	if err := c.post(ctx, c.cfg.TicketPath, &resp); err != nil {
		return auth.Ticket{}, fmt.Errorf("issue ticket: %w", err)
	}
	if resp.Ticket == "" {
		return auth.Ticket{}, errors.New("issue ticket: empty ticket in response")
	}

	t := auth.Ticket{Token: resp.Ticket}
	if resp.ExpiresIn > 0 {
		t.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	} else {
		t.ExpiresAt = auth.TicketExpiry(resp.Ticket)
	}
	return t, nil
}

// LeaveRoom 通过 REST 离开房间，非参与者返回 ErrNotParticipant
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	path := fmt.Sprintf(c.cfg.LeavePath, url.PathEscape(roomID))
	if err := c.post(ctx, path, nil); err != nil {
		return fmt.Errorf("leave room %s: %w", roomID, err)
	}
	c.log.Debug("left room", zap.String("room_id", roomID))
	return nil
}

func (c *Client) post(ctx context.Context, path string, out any) error {
	token := ""
	if c.creds != nil {
		token = c.creds.Token()
	}
	if token == "" {
		return ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimPrefix(token, "Bearer "))
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Status: resp.StatusCode, Message: errorMessage(body)}
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage 兼容 {"error":"..."}、{"error":{"message":"..."}} 与 {"message":"..."}
func errorMessage(body []byte) string {
	var env struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return strings.TrimSpace(string(body))
	}
	if len(env.Error) > 0 {
		var s string
		if json.Unmarshal(env.Error, &s) == nil {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return env.Message
}
