// Package feed 实现 Polymarket 行情消息解析。
// 服务端消息可能是单个事件对象，也可能是事件数组。
package feed

import (
	"bytes"
	"encoding/json"
	"fmt"

	"polymarket-hedger/internal/core/model"
	"polymarket-hedger/internal/util/fastparse"
	"polymarket-hedger/internal/util/timeutil"
)

// Update 解析后的报价更新
// book 事件产出双边更新，price_change 事件将同一价格应用到双边。
type Update struct {
	// Key 规范化 token 标识
	Key model.InstrumentKey
	// Bid 买一价
	Bid float64
	// Ask 卖一价
	Ask float64
	// HasBid 是否包含买一价
	HasBid bool
	// HasAsk 是否包含卖一价
	HasAsk bool
	// ArrivedAtUnixNs 本地接收时间（纳秒）
	ArrivedAtUnixNs int64
}

// Parser Polymarket 消息解析器
type Parser struct{}

// NewParser 创建消息解析器
func NewParser() *Parser {
	return &Parser{}
}

// Parse 解析 WebSocket 消息为报价更新列表
// 参数 data: 原始消息字节
// 返回: 更新列表（不识别的事件类型返回空切片），格式错误时返回错误
func (p *Parser) Parse(data []byte) ([]Update, error) {
	arrivedAt := timeutil.NowNano()

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var events []json.RawMessage
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("解析事件数组失败: %w", err)
		}
		var updates []Update
		for _, raw := range events {
			us, err := p.parseEvent(raw, arrivedAt)
			if err != nil {
				return nil, err
			}
			updates = append(updates, us...)
		}
		return updates, nil
	}

	return p.parseEvent(trimmed, arrivedAt)
}

func (p *Parser) parseEvent(data []byte, arrivedAt int64) ([]Update, error) {
	var head struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("解析事件类型失败: %w", err)
	}

	switch head.EventType {
	case "book":
		return p.parseBook(data, arrivedAt)
	case "price_change":
		return p.parsePriceChange(data, arrivedAt)
	case "":
		// 价格变动事件可能不带 event_type 标记，按消息形状识别：
		// 含非空 price_changes 数组的按 price_change 处理，其余忽略
		var shape struct {
			PriceChanges []json.RawMessage `json:"price_changes"`
		}
		if err := json.Unmarshal(data, &shape); err != nil || len(shape.PriceChanges) == 0 {
			return nil, nil
		}
		return p.parsePriceChange(data, arrivedAt)
	default:
		// 其他事件类型（tick_size_change、last_trade_price 等）忽略
		return nil, nil
	}
}

// parseBook 解析完整订单簿快照
// 首个档位为最优价；缺失的一侧不产出更新
func (p *Parser) parseBook(data []byte, arrivedAt int64) ([]Update, error) {
	var msg BookEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("解析 book 消息失败: %w", err)
	}

	if msg.AssetID == "" {
		return nil, nil
	}

	u := Update{
		Key:             model.Canonicalize(msg.AssetID),
		ArrivedAtUnixNs: arrivedAt,
	}

	if len(msg.Bids) > 0 {
		px, err := fastparse.ParseFloat(msg.Bids[0].Price)
		if err != nil {
			return nil, fmt.Errorf("解析买一价失败: %w", err)
		}
		u.Bid = px
		u.HasBid = true
	}
	if len(msg.Asks) > 0 {
		px, err := fastparse.ParseFloat(msg.Asks[0].Price)
		if err != nil {
			return nil, fmt.Errorf("解析卖一价失败: %w", err)
		}
		u.Ask = px
		u.HasAsk = true
	}

	if !u.HasBid && !u.HasAsk {
		return nil, nil
	}
	return []Update{u}, nil
}

// parsePriceChange 解析增量价格变动
// 每个变动的价格同时写入买卖双边，作为该 token 的当前报价近似
func (p *Parser) parsePriceChange(data []byte, arrivedAt int64) ([]Update, error) {
	var msg PriceChangeEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("解析 price_change 消息失败: %w", err)
	}

	updates := make([]Update, 0, len(msg.PriceChanges))
	for _, pc := range msg.PriceChanges {
		if pc.AssetID == "" {
			continue
		}
		px, err := fastparse.ParseFloat(pc.Price)
		if err != nil {
			return nil, fmt.Errorf("解析变动价格失败: %w", err)
		}
		updates = append(updates, Update{
			Key:             model.Canonicalize(pc.AssetID),
			Bid:             px,
			Ask:             px,
			HasBid:          true,
			HasAsk:          true,
			ArrivedAtUnixNs: arrivedAt,
		})
	}
	return updates, nil
}
