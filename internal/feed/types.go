// Package feed 定义 Polymarket 行情 WebSocket 消息类型。
package feed

// SubscribeRequest Polymarket 市场频道订阅请求
// 发送后服务端会对每个 asset 先推送一次完整 book 快照。
type SubscribeRequest struct {
	// AssetIDs 订阅的 token ID 列表（完整长 ID）
	AssetIDs []string `json:"assets_ids"`
}

// PriceLevel 订单簿档位（价格、数量均为字符串）
type PriceLevel struct {
	// Price 价格
	Price string `json:"price"`
	// Size 数量
	Size string `json:"size"`
}

// BookEvent 完整订单簿快照消息
// 字段映射：
// - event_type: book
// - asset_id: token 长 ID -> 规范化为 InstrumentKey
// - bids/asks: 档位列表，首个档位为最优价
type BookEvent struct {
	// EventType 事件类型: book
	EventType string `json:"event_type"`
	// AssetID token 长 ID
	AssetID string `json:"asset_id"`
	// Market 市场 condition ID
	Market string `json:"market"`
	// Bids 买盘档位
	Bids []PriceLevel `json:"bids"`
	// Asks 卖盘档位
	Asks []PriceLevel `json:"asks"`
	// Timestamp 服务端时间戳（毫秒，字符串）
	Timestamp string `json:"timestamp"`
}

// PriceChange 单个 token 的价格变动
type PriceChange struct {
	// AssetID token 长 ID
	AssetID string `json:"asset_id"`
	// Price 变动后的价格
	Price string `json:"price"`
	// Size 对应数量
	Size string `json:"size"`
	// Side 方向: BUY / SELL
	Side string `json:"side"`
}

// PriceChangeEvent 增量价格变动消息
// 字段映射：
// - event_type: price_change
// - price_changes: 变动列表，价格同时作为双边报价应用
type PriceChangeEvent struct {
	// EventType 事件类型: price_change
	EventType string `json:"event_type"`
	// Market 市场 condition ID
	Market string `json:"market"`
	// PriceChanges 价格变动列表
	PriceChanges []PriceChange `json:"price_changes"`
	// Timestamp 服务端时间戳（毫秒，字符串）
	Timestamp string `json:"timestamp"`
}

// ConnectionMetrics 连接质量指标
type ConnectionMetrics struct {
	// ReconnectCount 重连次数
	ReconnectCount int64
	// ParseErrorCount 解析错误次数
	ParseErrorCount int64
	// UpdatesPerSec 每秒更新次数
	UpdatesPerSec float64
	// LastMessageAgeMs 最后消息距今时间（毫秒）
	LastMessageAgeMs int64
}
