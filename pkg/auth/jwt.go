// Package auth 提供长期凭证的解析、连接票据与凭证来源管理
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrTicketExpired = errors.New("ticket expired")
)

// Claims JWT claims。服务端签发时 sub 即用户 ID
type Claims struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Identity 本地身份
type Identity struct {
	UserID    string
	Username  string
	ExpiresAt time.Time // 零值表示未声明过期时间
}

// Expired 是否已过期
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// ParseIdentity 从凭证中读取本地身份，不校验签名（签名由服务端校验）
func ParseIdentity(tokenString string) (Identity, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return Identity{}, ErrInvalidToken
	}
	return identityFrom(claims)
}

func identityFrom(claims *Claims) (Identity, error) {
	id := Identity{UserID: claims.UserID, Username: claims.Username}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	if id.UserID == "" {
		return Identity{}, ErrInvalidToken
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}
