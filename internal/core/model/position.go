// Package model 定义对冲客户端使用的核心数据结构。
package model

// PositionEntry 单笔成交记录
type PositionEntry struct {
	// Size 成交数量
	Size float64
	// Price 成交价格
	Price float64
	// TsUnixNs 成交时间（纳秒）
	TsUnixNs int64
}

// Position 某一标的的净仓位
// 同向成交累加并更新加权均价；反向成交减少仓位，
// 当来量超过现有仓位时翻转方向（方向取来量方向，数量取差额，均价取来价）。
// 除显式清除（如市场结算）外不会删除。
type Position struct {
	// Key 规范化标的键
	Key InstrumentKey
	// Side 仓位方向
	Side Side
	// TotalSize 净仓位数量
	TotalSize float64
	// AvgPrice 加权平均价格
	AvgPrice float64
	// Entries 成交明细列表
	Entries []PositionEntry
}

// Value 计算仓位名义价值
func (p *Position) Value() float64 {
	return p.TotalSize * p.AvgPrice
}

// InventoryStatus 库存状态汇总
// 派生数据，按需从 PositionBook 重新计算，从不缓存（避免陈旧）。
type InventoryStatus struct {
	// UpValue 买入侧仓位总价值
	UpValue float64
	// DownValue 卖出侧仓位总价值
	DownValue float64
	// TotalValue 总仓位价值
	TotalValue float64
	// Skew 库存偏斜，范围 [-1, 1]
	// 计算公式: (UpValue - DownValue) / TotalValue；TotalValue 为 0 时为 0
	Skew float64
	// IsBalanced 是否均衡（|Skew| < 0.3）
	IsBalanced bool
	// Recommendation 调仓建议（仅用于日志展示）
	Recommendation string
}
