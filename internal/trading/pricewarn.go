// Package trading 价格告警冷却器。
package trading

import (
	"sync"
	"time"

	"polymarket-hedger/internal/util/timeutil"
)

// warnTracker 价格告警冷却器
// 同一 token 的越界告警在冷却期内只记录一次，避免刷盘
type warnTracker struct {
	// mu 状态锁
	mu sync.Mutex
	// lastWarnNs 每个 key 上次告警时间（纳秒）
	lastWarnNs map[string]int64
	// cooldown 冷却时长
	cooldown time.Duration
}

// newWarnTracker 创建价格告警冷却器
// 参数 cooldown: 冷却时长
func newWarnTracker(cooldown time.Duration) *warnTracker {
	return &warnTracker{
		lastWarnNs: make(map[string]int64),
		cooldown:   cooldown,
	}
}

// shouldWarn 判断是否应发出告警并刷新冷却
// 参数 key: 告警去重键
// 返回: 冷却已过时为 true
func (w *warnTracker) shouldWarn(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := timeutil.NowNano()
	if last, ok := w.lastWarnNs[key]; ok && now-last < int64(w.cooldown) {
		return false
	}
	w.lastWarnNs[key] = now
	return true
}
