// Package timeutil 提供时间相关的工具函数。
// 主要用于生成报价与挂单的高精度时间戳。
package timeutil

import (
	"time"
)

var (
	// baseTime 基准时间点（包含单调时钟读数）
	baseTime = time.Now()
	// baseUnixNs 基准时间点对应的 Unix 纳秒时间戳
	baseUnixNs = baseTime.UnixNano()
)

// NowNano 获取当前时间的纳秒时间戳
// 使用"单调时钟 + 启动时 Unix 时间"组合实现，
// 在系统时间跳变（NTP/手动调整）时仍保持时间差单调，
// 避免污染报价新鲜度判断与挂单过期统计。
func NowNano() int64 {
	return baseUnixNs + time.Since(baseTime).Nanoseconds()
}

// NowMs 获取当前时间的毫秒时间戳
func NowMs() int64 {
	return NowNano() / 1_000_000
}

// SinceNano 计算从指定纳秒时间戳到现在的时间差
func SinceNano(startNs int64) time.Duration {
	return time.Duration(NowNano() - startNs)
}
