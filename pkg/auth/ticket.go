package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Ticket 短期一次性连接票据，与长期凭证区分
type Ticket struct {
	Token     string
	ExpiresAt time.Time // 零值表示未知
}

// Valid 票据在 now 时刻是否仍可用
func (t Ticket) Valid(now time.Time) bool {
	if t.Token == "" {
		return false
	}
	return t.ExpiresAt.IsZero() || now.Before(t.ExpiresAt)
}

// TicketExpiry 票据若为 JWT 则读取 exp，否则返回零值
func TicketExpiry(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
