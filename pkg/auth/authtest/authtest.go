// Package authtest 为测试签发凭证。客户端只解析不校验签名，密钥任意
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/qiminjie89/rtsession/pkg/auth"
)

const secret = "authtest-secret"

// Token 签发 HS256 凭证，sub 为用户 ID；ttl 为负数时签发已过期的凭证
func Token(tb testing.TB, userID, username string, ttl time.Duration) string {
	tb.Helper()
	now := time.Now()
	claims := &auth.Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		tb.Fatalf("sign token: %v", err)
	}
	return token
}
