// Package book 维护按标的划分的净仓位，并派生库存偏斜指标。
// 每次确认成交都通过 Update 进入；偏斜与库存状态按需重算，从不缓存。
// 使用读写锁保护，行情周期之间可并发读取。
package book

import (
	"fmt"
	"math"
	"sync"

	"polymarket-hedger/internal/core/model"
	"polymarket-hedger/internal/util/timeutil"
)

// balancedSkewLimit 均衡判定阈值
const balancedSkewLimit = 0.3

// skipSkewLimit 单边跳过阈值
// 偏斜超过该值时应跳过继续加重偏斜方向的买入
const skipSkewLimit = 0.7

// Book 仓位簿
type Book struct {
	// mu 读写锁
	mu sync.RWMutex
	// positions 按规范化键索引的仓位
	positions map[model.InstrumentKey]*model.Position
}

// New 创建仓位簿
func New() *Book {
	return &Book{
		positions: make(map[model.InstrumentKey]*model.Position),
	}
}

// Update 应用一笔确认成交
// 同向成交累加并更新加权均价；反向成交先减仓，
// 来量超过现有仓位时翻转方向（数量取差额，均价取来价）。
func (b *Book) Update(key model.InstrumentKey, side model.Side, size, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := model.PositionEntry{Size: size, Price: price, TsUnixNs: timeutil.NowNano()}

	pos, ok := b.positions[key]
	if !ok {
		b.positions[key] = &model.Position{
			Key:       key,
			Side:      side,
			TotalSize: size,
			AvgPrice:  price,
			Entries:   []model.PositionEntry{entry},
		}
		return
	}

	if pos.Side == side {
		// 同向加仓：加权均价
		totalValue := pos.TotalSize*pos.AvgPrice + size*price
		pos.TotalSize += size
		pos.AvgPrice = totalValue / pos.TotalSize
	} else if size >= pos.TotalSize {
		// 翻转方向
		pos.Side = side
		pos.TotalSize = size - pos.TotalSize
		pos.AvgPrice = price
	} else {
		// 减仓，均价不变
		pos.TotalSize -= size
	}
	pos.Entries = append(pos.Entries, entry)
}

// Get 获取某标的的仓位副本
func (b *Book) Get(key model.InstrumentKey) (model.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pos, ok := b.positions[key]
	if !ok {
		return model.Position{}, false
	}
	return clonePosition(pos), true
}

// All 获取全部仓位副本
func (b *Book) All() map[model.InstrumentKey]model.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make(map[model.InstrumentKey]model.Position, len(b.positions))
	for key, pos := range b.positions {
		result[key] = clonePosition(pos)
	}
	return result
}

// ClearFor 清除某标的的仓位（如市场结算后）
func (b *Book) ClearFor(key model.InstrumentKey) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.positions, key)
}

// InventoryStatus 计算库存状态
// 纯聚合，O(仓位数)；买入侧计入 UpValue，卖出侧计入 DownValue。
func (b *Book) InventoryStatus() model.InventoryStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var upValue, downValue float64
	for _, pos := range b.positions {
		value := pos.TotalSize * pos.AvgPrice
		if pos.Side == model.SideBuy {
			upValue += value
		} else {
			downValue += value
		}
	}

	total := upValue + downValue
	skew := 0.0
	if total != 0 {
		skew = (upValue - downValue) / total
	}

	return model.InventoryStatus{
		UpValue:        upValue,
		DownValue:      downValue,
		TotalValue:     total,
		Skew:           skew,
		IsBalanced:     math.Abs(skew) < balancedSkewLimit,
		Recommendation: recommend(skew),
	}
}

// Skew 计算库存偏斜
// InventoryStatus().Skew 的简写
func (b *Book) Skew() float64 {
	return b.InventoryStatus().Skew
}

// TotalExposure 计算全部仓位的名义价值之和
func (b *Book) TotalExposure() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total float64
	for _, pos := range b.positions {
		total += pos.TotalSize * pos.AvgPrice
	}
	return total
}

// PositionLimit 计算某方向的动态仓位上限
// 基础上限为 baseMax 的一半；偏斜朝该方向加重时上限收紧，
// 偏斜有利于再平衡时上限放宽。
func (b *Book) PositionLimit(side model.Side, baseMax float64) float64 {
	skew := b.Skew()
	baseLimit := baseMax / 2

	if side == model.SideBuy {
		if skew > 0.5 {
			return baseLimit * (1 - skew)
		}
		return baseLimit * (1 + math.Abs(skew))
	}

	if skew < -0.5 {
		return baseLimit * (1 - math.Abs(skew))
	}
	return baseLimit * (1 + skew)
}

// MergeOpportunity 检查同一市场的 UP/DOWN 仓位是否可合并赎回
// 当两侧仓位都存在且重叠数量不低于阈值时，返回可合并数量（两者较小值）。
func (b *Book) MergeOpportunity(upKey, downKey model.InstrumentKey, threshold float64) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	up, upOK := b.positions[upKey]
	down, downOK := b.positions[downKey]
	if !upOK || !downOK || up.TotalSize <= 0 || down.TotalSize <= 0 {
		return 0, false
	}

	amount := math.Min(up.TotalSize, down.TotalSize)
	if amount < threshold {
		return 0, false
	}
	return amount, true
}

// ShouldSkipSide 判断某方向是否应暂停交易
// 偏斜超过 skipSkewLimit 时跳过继续加重该方向的买入
func (b *Book) ShouldSkipSide(side model.Side) (bool, string) {
	skew := b.Skew()

	if side == model.SideBuy && skew > skipSkewLimit {
		return true, fmt.Sprintf("UP 库存过高（%.1f%%），暂停买入 UP", skew*100)
	}
	if side == model.SideSell && skew < -skipSkewLimit {
		return true, fmt.Sprintf("DOWN 库存过高（%.1f%%），暂停卖出", math.Abs(skew)*100)
	}
	return false, "可交易"
}

// recommend 根据偏斜生成调仓建议文本
func recommend(skew float64) string {
	switch {
	case skew > 0.5:
		return fmt.Sprintf("UP 仓位过重（%.1f%%），减少 UP 或增加 DOWN", skew*100)
	case skew < -0.5:
		return fmt.Sprintf("DOWN 仓位过重（%.1f%%），减少 DOWN 或增加 UP", math.Abs(skew)*100)
	case skew > balancedSkewLimit:
		return fmt.Sprintf("UP 略微偏重（%.1f%%），考虑再平衡", skew*100)
	case skew < -balancedSkewLimit:
		return fmt.Sprintf("DOWN 略微偏重（%.1f%%），考虑再平衡", math.Abs(skew)*100)
	default:
		return "仓位均衡"
	}
}

// clonePosition 创建仓位的深拷贝
func clonePosition(pos *model.Position) model.Position {
	clone := *pos
	if pos.Entries != nil {
		clone.Entries = make([]model.PositionEntry, len(pos.Entries))
		copy(clone.Entries, pos.Entries)
	}
	return clone
}
