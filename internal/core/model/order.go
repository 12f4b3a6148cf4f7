// Package model 定义对冲客户端使用的核心数据结构。
package model

// TrackedOrder 本地追踪的挂单
// 由协调器在下单成功后写入 OrderLedger；被检测为成交、被显式撤销、
// 或在新周期开始前被整体清除时移除。协调器只持有副本，所有权归 OrderLedger。
type TrackedOrder struct {
	// OrderID 交易所返回的订单 ID
	OrderID string
	// Key 规范化标的键
	Key InstrumentKey
	// Side 订单方向
	Side Side
	// Price 委托价格
	Price float64
	// Size 委托数量（份额）
	Size float64
	// PlacedAtUnixNs 下单时间（纳秒）
	PlacedAtUnixNs int64
}

// Notional 计算委托名义价值
func (o TrackedOrder) Notional() float64 {
	return o.Price * o.Size
}
