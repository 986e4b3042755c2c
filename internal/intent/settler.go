package intent

import (
	"context"
	"time"
)

// Settler 模拟链上结算等待。真实实现应当替换为确认轮询。
type Settler interface {
	Await(ctx context.Context) error
}

// TimerSettler 等待固定延迟加上 [0, Jitter) 的随机抖动，可被上下文取消。
type TimerSettler struct {
	Delay  time.Duration
	Jitter time.Duration
	Rand   Randomness
}

// Await 阻塞直到延迟结束或 ctx 结束。
func (s TimerSettler) Await(ctx context.Context) error {
	wait := s.Delay
	if s.Jitter > 0 && s.Rand != nil {
		wait += time.Duration(s.Rand.Float64() * float64(s.Jitter))
	}
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SettlerFunc 把普通函数适配为 Settler。
type SettlerFunc func(ctx context.Context) error

// Await 实现 Settler。
func (f SettlerFunc) Await(ctx context.Context) error {
	return f(ctx)
}
