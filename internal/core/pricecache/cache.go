// Package pricecache 维护所有订阅标的的最新买卖报价。
// 由行情任务写入、协调器并发读取，使用读写锁保护。
// 买价与卖价独立存储：book 事件同时带来双边，price_change 事件
// 以最新成交价同时覆盖双边，但也可能只更新其中一边。
package pricecache

import (
	"sync"

	"polymarket-hedger/internal/core/model"
	"polymarket-hedger/internal/util/timeutil"
)

// entry 单个标的的双边报价
type entry struct {
	// bid 最优买价
	bid float64
	// ask 最优卖价
	ask float64
	// hasBid 是否已收到买价
	hasBid bool
	// hasAsk 是否已收到卖价
	hasAsk bool
	// updatedAtUnixNs 最后更新时间（纳秒）
	updatedAtUnixNs int64
}

// Cache 最新报价缓存
type Cache struct {
	// mu 读写锁
	mu sync.RWMutex
	// quotes 按规范化键缓存双边报价
	quotes map[model.InstrumentKey]entry
}

// New 创建报价缓存
func New() *Cache {
	return &Cache{
		quotes: make(map[model.InstrumentKey]entry),
	}
}

// SetBid 更新买价
// 参数 key: 规范化标的键
func (c *Cache) SetBid(key model.InstrumentKey, bid float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.quotes[key]
	e.bid = bid
	e.hasBid = true
	e.updatedAtUnixNs = timeutil.NowNano()
	c.quotes[key] = e
}

// SetAsk 更新卖价
// 参数 key: 规范化标的键
func (c *Cache) SetAsk(key model.InstrumentKey, ask float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.quotes[key]
	e.ask = ask
	e.hasAsk = true
	e.updatedAtUnixNs = timeutil.NowNano()
	c.quotes[key] = e
}

// Get 读取某标的的双边报价
// 仅当买卖双边都已收到时 ok 为 true
func (c *Cache) Get(key model.InstrumentKey) (bid, ask float64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, found := c.quotes[key]
	if !found || !e.hasBid || !e.hasAsk {
		return 0, 0, false
	}
	return e.bid, e.ask, true
}

// Snapshot 获取给定标的集合的报价快照
// 只返回双边完整的报价；键不在缓存中的标的被跳过。
func (c *Cache) Snapshot(keys []model.InstrumentKey) map[model.InstrumentKey]model.Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[model.InstrumentKey]model.Quote, len(keys))
	for _, key := range keys {
		e, found := c.quotes[key]
		if !found || !e.hasBid || !e.hasAsk {
			continue
		}
		result[key] = model.Quote{
			Key:             key,
			Bid:             e.bid,
			Ask:             e.ask,
			UpdatedAtUnixNs: e.updatedAtUnixNs,
		}
	}
	return result
}

// Clear 清空缓存
// 在重建订阅前调用，避免旧标的的报价泄漏到新标的集合的决策中。
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.quotes = make(map[model.InstrumentKey]entry)
}

// Len 获取缓存的标的数量
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.quotes)
}
