// Package ledger 维护本地追踪的挂单。
// 协调器下单成功后写入，成交检测、撤单和周期开始前的整体清除时移除。
// 使用读写锁保护，支持行情任务之外的多 goroutine 读取。
package ledger

import (
	"sync"
	"time"

	"polymarket-hedger/internal/core/model"
	"polymarket-hedger/internal/util/timeutil"
)

// Ledger 挂单台账
// 按规范化标的键组织；结构上允许同一标的存在多条记录，
// 但协调器约定在下单前先清除，因此通常每个标的至多一条。
type Ledger struct {
	// mu 读写锁
	mu sync.RWMutex
	// orders 按标的键分组的追踪挂单
	orders map[model.InstrumentKey][]model.TrackedOrder
}

// New 创建挂单台账
func New() *Ledger {
	return &Ledger{
		orders: make(map[model.InstrumentKey][]model.TrackedOrder),
	}
}

// Track 追踪一笔新挂单
// 参数 key: 规范化标的键
// 参数 orderID: 交易所返回的订单 ID
func (l *Ledger) Track(key model.InstrumentKey, orderID string, side model.Side, price, size float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.orders[key] = append(l.orders[key], model.TrackedOrder{
		OrderID:        orderID,
		Key:            key,
		Side:           side,
		Price:          price,
		Size:           size,
		PlacedAtUnixNs: timeutil.NowNano(),
	})
}

// OrdersFor 获取某标的的全部追踪挂单（副本）
func (l *Ledger) OrdersFor(key model.InstrumentKey) []model.TrackedOrder {
	l.mu.RLock()
	defer l.mu.RUnlock()

	list := l.orders[key]
	if len(list) == 0 {
		return nil
	}
	result := make([]model.TrackedOrder, len(list))
	copy(result, list)
	return result
}

// ClearFor 清除某标的的全部追踪挂单
// 返回: 清除的记录数；不影响其它标的
func (l *Ledger) ClearFor(key model.InstrumentKey) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := len(l.orders[key])
	delete(l.orders, key)
	return removed
}

// MissingFrom 成交判定
// 给定交易所当前仍处于 open 状态的订单 ID 集合，返回已追踪但不在
// 该集合中的挂单——按约定视为已成交。
// 注意：这是启发式判定，外部撤单也会被归类为成交（已知局限）。
func (l *Ledger) MissingFrom(key model.InstrumentKey, openIDs map[string]struct{}) []model.TrackedOrder {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var filled []model.TrackedOrder
	for _, o := range l.orders[key] {
		if _, open := openIDs[o.OrderID]; !open {
			filled = append(filled, o)
		}
	}
	return filled
}

// StaleFor 查找某标的下挂单时间超过阈值的追踪挂单
// 用于统计长期未成交（过期）的订单。
func (l *Ledger) StaleFor(key model.InstrumentKey, threshold time.Duration) []model.TrackedOrder {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := timeutil.NowNano()
	var stale []model.TrackedOrder
	for _, o := range l.orders[key] {
		if now-o.PlacedAtUnixNs > threshold.Nanoseconds() {
			stale = append(stale, o)
		}
	}
	return stale
}

// All 获取全部追踪挂单（副本），按标的键分组
func (l *Ledger) All() map[model.InstrumentKey][]model.TrackedOrder {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[model.InstrumentKey][]model.TrackedOrder, len(l.orders))
	for key, list := range l.orders {
		copied := make([]model.TrackedOrder, len(list))
		copy(copied, list)
		result[key] = copied
	}
	return result
}

// Count 获取全部追踪挂单数量
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := 0
	for _, list := range l.orders {
		total += len(list)
	}
	return total
}
