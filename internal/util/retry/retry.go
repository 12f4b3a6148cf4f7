// Package retry 实现带指数退避的有界重试。
// 用于包裹单次交易 API 调用（而非整个交易周期），
// 每次失败记录日志，重试耗尽后返回最后一次错误。
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Config 重试配置
type Config struct {
	// MaxRetries 最大重试次数（总调用次数 = MaxRetries + 1）
	MaxRetries int
	// InitialDelay 首次重试前的等待时间
	InitialDelay time.Duration
	// MaxDelay 等待时间上限
	MaxDelay time.Duration
	// Multiplier 指数退避倍率
	Multiplier float64
}

// DefaultConfig 创建默认重试配置
// 3 次重试，初始 500ms，倍率 2.0，上限 10s
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// NoRetry 创建不重试的配置
func NoRetry() Config {
	return Config{MaxRetries: 0, Multiplier: 1.0}
}

// Do 以指数退避重试执行操作
// 参数 name: 操作名称，用于日志标识
// 参数 op: 待执行的操作
// 返回: 首次成功的结果；全部失败时返回最后一次错误
func Do[T any](ctx context.Context, logger *zap.Logger, name string, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt < cfg.MaxRetries {
			logger.Warn("操作失败，准备重试",
				zap.String("op", name),
				zap.Int("attempt", attempt+1),
				zap.Int("total", cfg.MaxRetries+1),
				zap.Duration("delay", delay),
				zap.Error(err))

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}

			// 指数退避并限制上限
			next := time.Duration(float64(delay) * cfg.Multiplier)
			if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
				next = cfg.MaxDelay
			}
			delay = next
		}
	}

	logger.Error("操作重试耗尽",
		zap.String("op", name),
		zap.Int("attempts", cfg.MaxRetries+1),
		zap.Error(lastErr))
	return zero, lastErr
}
