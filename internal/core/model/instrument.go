// Package model 定义对冲客户端使用的核心数据结构。
// 包含标的标识、报价、挂单追踪、仓位等核心类型。
package model

// CanonicalKeyLen 规范化标识长度
// 行情推送的 asset_id 很长（77+ 字符），而元数据 API 返回的 token_id 较短；
// 两者的前 20 个字符一致，因此统一截取前 20 个字符作为缓存键。
// 注意：该约定依赖双方 API 的 ID 格式，任何一方变更都会导致查找静默失效。
const CanonicalKeyLen = 20

// InstrumentKey 标的的规范化标识
// PriceCache、OrderLedger、PositionBook 的所有查找都必须使用规范化后的键。
type InstrumentKey string

// Canonicalize 将原始标识规范化为 InstrumentKey
// 参数 rawID: 行情推送或元数据 API 返回的原始 ID
// 返回: 截取前 CanonicalKeyLen 个字符后的规范化键；短于该长度的 ID 原样返回
func Canonicalize(rawID string) InstrumentKey {
	if len(rawID) > CanonicalKeyLen {
		return InstrumentKey(rawID[:CanonicalKeyLen])
	}
	return InstrumentKey(rawID)
}

// Side 订单方向
type Side string

const (
	// SideBuy 买入方向
	SideBuy Side = "BUY"
	// SideSell 卖出方向
	SideSell Side = "SELL"
)

// Outcome 二元市场结果标签
type Outcome string

const (
	// OutcomeUp UP 结果（价格上涨一侧）
	OutcomeUp Outcome = "UP"
	// OutcomeDown DOWN 结果（价格下跌一侧）
	OutcomeDown Outcome = "DOWN"
)

// Quote 某一标的的最新买卖报价
// 仅由行情任务写入；每次更新覆盖旧值，不保留历史。
type Quote struct {
	// Key 规范化标的键
	Key InstrumentKey
	// Bid 最优买价
	Bid float64
	// Ask 最优卖价
	Ask float64
	// UpdatedAtUnixNs 本机最后更新时间（纳秒）
	UpdatedAtUnixNs int64
}
