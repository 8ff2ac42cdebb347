package session

import (
	"context"
	"time"

	"github.com/qiminjie89/rtsession/pkg/auth"
)

// Timer 可取消的定时器
type Timer interface {
	Stop() bool
}

// Clock 定时器来源，测试中替换为可手动触发的实现
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// TicketProvider 每次创建连接前获取一次性票据
type TicketProvider interface {
	Ticket(ctx context.Context) (auth.Ticket, error)
}

// TicketFunc 函数适配器
type TicketFunc func(ctx context.Context) (auth.Ticket, error)

// Ticket 实现 TicketProvider
func (f TicketFunc) Ticket(ctx context.Context) (auth.Ticket, error) {
	return f(ctx)
}
