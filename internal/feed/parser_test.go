// Package feed 行情解析器测试
package feed

import (
	"math"
	"testing"

	"polymarket-hedger/internal/core/model"
)

const (
	testUpAssetID   = "71321045679252212594626385532706912750332728571942532289631379312455583992563"
	testDownAssetID = "52114319501245915516055106046884209969926127482827954674443846427813813222426"
)

// TestParseBook 测试完整订单簿快照解析
// 首个档位应被取为最优价，ID 应被规范化为短键
func TestParseBook(t *testing.T) {
	parser := NewParser()

	data := []byte(`{
		"event_type": "book",
		"asset_id": "` + testUpAssetID + `",
		"market": "0xdeadbeef",
		"bids": [{"price": "0.48", "size": "100"}, {"price": "0.47", "size": "200"}],
		"asks": [{"price": "0.52", "size": "150"}, {"price": "0.53", "size": "80"}],
		"timestamp": "1700000000000"
	}`)

	updates, err := parser.Parse(data)
	if err != nil {
		t.Fatalf("解析 book 消息失败: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("更新数量 = %d, 期望 1", len(updates))
	}

	u := updates[0]
	if u.Key != model.Canonicalize(testUpAssetID) {
		t.Errorf("Key = %s, 期望规范化后的短键", u.Key)
	}
	if !u.HasBid || math.Abs(u.Bid-0.48) > 1e-9 {
		t.Errorf("Bid = %f (has=%v), 期望 0.48", u.Bid, u.HasBid)
	}
	if !u.HasAsk || math.Abs(u.Ask-0.52) > 1e-9 {
		t.Errorf("Ask = %f (has=%v), 期望 0.52", u.Ask, u.HasAsk)
	}
}

// TestParseBookOneSided 测试单边订单簿
// 缺失的一侧不应标记为有效
func TestParseBookOneSided(t *testing.T) {
	parser := NewParser()

	data := []byte(`{
		"event_type": "book",
		"asset_id": "` + testUpAssetID + `",
		"bids": [{"price": "0.48", "size": "100"}],
		"asks": []
	}`)

	updates, err := parser.Parse(data)
	if err != nil {
		t.Fatalf("解析单边 book 失败: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("更新数量 = %d, 期望 1", len(updates))
	}
	if !updates[0].HasBid {
		t.Error("期望包含买一价")
	}
	if updates[0].HasAsk {
		t.Error("空卖盘不应标记 HasAsk")
	}
}

// TestParsePriceChange 测试增量价格变动解析
// 同一价格应同时应用到买卖双边
func TestParsePriceChange(t *testing.T) {
	parser := NewParser()

	data := []byte(`{
		"event_type": "price_change",
		"market": "0xdeadbeef",
		"price_changes": [
			{"asset_id": "` + testUpAssetID + `", "price": "0.55", "size": "50", "side": "BUY"},
			{"asset_id": "` + testDownAssetID + `", "price": "0.45", "size": "30", "side": "SELL"}
		]
	}`)

	updates, err := parser.Parse(data)
	if err != nil {
		t.Fatalf("解析 price_change 失败: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("更新数量 = %d, 期望 2", len(updates))
	}

	for _, u := range updates {
		if !u.HasBid || !u.HasAsk {
			t.Errorf("price_change 更新应为双边: %+v", u)
		}
		if math.Abs(u.Bid-u.Ask) > 1e-9 {
			t.Errorf("price_change 双边价格应相等: bid=%f ask=%f", u.Bid, u.Ask)
		}
	}
	if math.Abs(updates[0].Bid-0.55) > 1e-9 {
		t.Errorf("首个更新价格 = %f, 期望 0.55", updates[0].Bid)
	}
}

// TestParseUntaggedPriceChange 测试不带 event_type 的价格变动消息
// 服务端的增量推送可能只有 market 和 price_changes 字段，按形状识别
func TestParseUntaggedPriceChange(t *testing.T) {
	parser := NewParser()

	data := []byte(`{
		"market": "0xdeadbeef",
		"price_changes": [
			{"asset_id": "` + testUpAssetID + `", "price": "0.55", "size": "50", "side": "BUY"}
		]
	}`)

	updates, err := parser.Parse(data)
	if err != nil {
		t.Fatalf("解析无标记价格变动失败: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("更新数量 = %d, 期望 1", len(updates))
	}
	u := updates[0]
	if u.Key != model.Canonicalize(testUpAssetID) {
		t.Errorf("Key = %s, 期望规范化后的短键", u.Key)
	}
	if !u.HasBid || !u.HasAsk || math.Abs(u.Bid-0.55) > 1e-9 {
		t.Errorf("更新 = %+v, 期望双边 0.55", u)
	}
}

// TestParseUntaggedUnknownShape 测试既无标记也无 price_changes 的消息被忽略
func TestParseUntaggedUnknownShape(t *testing.T) {
	parser := NewParser()

	updates, err := parser.Parse([]byte(`{"type": "pong", "market": "0xdeadbeef"}`))
	if err != nil {
		t.Fatalf("未知形状消息不应报错: %v", err)
	}
	if len(updates) != 0 {
		t.Errorf("未知形状消息应返回空更新, 实际 %d 个", len(updates))
	}
}

// TestParseEventArray 测试事件数组消息
// 订阅后服务端会以数组形式批量推送快照
func TestParseEventArray(t *testing.T) {
	parser := NewParser()

	data := []byte(`[
		{"event_type": "book", "asset_id": "` + testUpAssetID + `",
		 "bids": [{"price": "0.48", "size": "10"}], "asks": [{"price": "0.52", "size": "10"}]},
		{"event_type": "book", "asset_id": "` + testDownAssetID + `",
		 "bids": [{"price": "0.46", "size": "10"}], "asks": [{"price": "0.54", "size": "10"}]}
	]`)

	updates, err := parser.Parse(data)
	if err != nil {
		t.Fatalf("解析事件数组失败: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("更新数量 = %d, 期望 2", len(updates))
	}
	if updates[0].Key == updates[1].Key {
		t.Error("两个 token 的短键不应相同")
	}
}

// TestParseUnknownEvent 测试不识别的事件类型被忽略
func TestParseUnknownEvent(t *testing.T) {
	parser := NewParser()

	updates, err := parser.Parse([]byte(`{"event_type": "tick_size_change", "asset_id": "xyz"}`))
	if err != nil {
		t.Fatalf("不识别的事件不应报错: %v", err)
	}
	if len(updates) != 0 {
		t.Errorf("不识别的事件应返回空更新, 实际 %d 个", len(updates))
	}
}

// TestParseMalformed 测试格式错误的消息返回错误
func TestParseMalformed(t *testing.T) {
	parser := NewParser()

	cases := []string{
		`{not json`,
		`[{"event_type": "book", "asset_id": "x", "bids": [{"price": "abc", "size": "1"}]}]`,
	}
	for _, c := range cases {
		if _, err := parser.Parse([]byte(c)); err == nil {
			t.Errorf("期望解析错误: %s", c)
		}
	}
}

// TestParseEmpty 测试空消息
func TestParseEmpty(t *testing.T) {
	parser := NewParser()
	updates, err := parser.Parse([]byte("  "))
	if err != nil {
		t.Fatalf("空消息不应报错: %v", err)
	}
	if len(updates) != 0 {
		t.Errorf("空消息应返回空更新")
	}
}
