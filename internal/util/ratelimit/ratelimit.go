// Package ratelimit 实现交易 API 调用的最小间隔限速。
// 进程内全局串行化连续调用之间的最小间隔，避免触发交易所限流。
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter 最小间隔限速器
// Wait 会在距离上次调用不足最小间隔时休眠剩余时间。
type Limiter struct {
	// mu 互斥锁
	mu sync.Mutex
	// minInterval 相邻调用的最小间隔
	minInterval time.Duration
	// lastCall 上次调用时间；零值表示尚未调用
	lastCall time.Time
}

// New 创建限速器
// 参数 minInterval: 相邻调用的最小间隔
func New(minInterval time.Duration) *Limiter {
	return &Limiter{minInterval: minInterval}
}

// NewDefault 创建默认限速器（200ms 间隔）
func NewDefault() *Limiter {
	return New(200 * time.Millisecond)
}

// Wait 等待至允许下一次调用
// 距上次调用不足最小间隔时休眠剩余时间；休眠可被 ctx 取消打断。
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	var sleep time.Duration
	if !l.lastCall.IsZero() {
		if elapsed := now.Sub(l.lastCall); elapsed < l.minInterval {
			sleep = l.minInterval - elapsed
		}
	}
	l.lastCall = now.Add(sleep)
	l.mu.Unlock()

	if sleep <= 0 {
		return nil
	}

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Reset 重置限速器
// 下一次 Wait 将立即放行
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastCall = time.Time{}
}
