// Package ledger 挂单台账测试
package ledger

import (
	"testing"
	"time"

	"polymarket-hedger/internal/core/model"
)

const (
	upKey   model.InstrumentKey = "71321045679252212594"
	downKey model.InstrumentKey = "52114319501245915516"
)

// TestTrackAndOrdersFor 测试追踪和查询
func TestTrackAndOrdersFor(t *testing.T) {
	l := New()
	l.Track(upKey, "o1", model.SideBuy, 0.48, 1)
	l.Track(upKey, "o2", model.SideBuy, 0.47, 2)

	orders := l.OrdersFor(upKey)
	if len(orders) != 2 {
		t.Fatalf("挂单数 = %d, 期望 2", len(orders))
	}
	if orders[0].OrderID != "o1" || orders[1].OrderID != "o2" {
		t.Errorf("挂单顺序异常: %+v", orders)
	}
	if l.Count() != 2 {
		t.Errorf("Count = %d, 期望 2", l.Count())
	}
	if orders := l.OrdersFor(downKey); orders != nil {
		t.Errorf("未追踪标的应返回 nil, 实际 %v", orders)
	}
}

// TestClearForIsolation 测试清除单个标的不影响其它标的
func TestClearForIsolation(t *testing.T) {
	l := New()
	l.Track(upKey, "o1", model.SideBuy, 0.48, 1)
	l.Track(downKey, "o2", model.SideBuy, 0.48, 1)

	if removed := l.ClearFor(upKey); removed != 1 {
		t.Errorf("清除数 = %d, 期望 1", removed)
	}
	if len(l.OrdersFor(upKey)) != 0 {
		t.Error("UP 挂单应被清除")
	}
	if len(l.OrdersFor(downKey)) != 1 {
		t.Error("DOWN 挂单不应受影响")
	}
}

// TestMissingFrom 测试成交判定
// 不在交易所 open 集合中的追踪挂单视为已成交
func TestMissingFrom(t *testing.T) {
	l := New()
	l.Track(upKey, "o1", model.SideBuy, 0.48, 1)
	l.Track(upKey, "o2", model.SideBuy, 0.47, 2)

	openIDs := map[string]struct{}{"o2": {}}
	filled := l.MissingFrom(upKey, openIDs)
	if len(filled) != 1 {
		t.Fatalf("成交数 = %d, 期望 1", len(filled))
	}
	if filled[0].OrderID != "o1" {
		t.Errorf("成交订单 = %s, 期望 o1", filled[0].OrderID)
	}

	// 全部 open 时无成交
	openIDs["o1"] = struct{}{}
	if filled := l.MissingFrom(upKey, openIDs); len(filled) != 0 {
		t.Errorf("全部 open 时成交数 = %d, 期望 0", len(filled))
	}
}

// TestMissingFromEmptyOpenSet 测试 open 集合为空时全部判定成交
func TestMissingFromEmptyOpenSet(t *testing.T) {
	l := New()
	l.Track(upKey, "o1", model.SideBuy, 0.48, 1)

	filled := l.MissingFrom(upKey, map[string]struct{}{})
	if len(filled) != 1 {
		t.Errorf("成交数 = %d, 期望 1", len(filled))
	}
}

// TestStaleFor 测试过期挂单查找
func TestStaleFor(t *testing.T) {
	l := New()
	l.Track(upKey, "o1", model.SideBuy, 0.48, 1)

	// 刚挂的单不过期
	if stale := l.StaleFor(upKey, time.Minute); len(stale) != 0 {
		t.Errorf("新挂单不应过期, 实际 %d 笔", len(stale))
	}
	// 阈值为零时立即过期
	time.Sleep(time.Millisecond)
	if stale := l.StaleFor(upKey, 0); len(stale) != 1 {
		t.Errorf("零阈值下过期数 = %d, 期望 1", len(stale))
	}
}

// TestAll 测试全量查询按标的分组
func TestAll(t *testing.T) {
	l := New()
	l.Track(upKey, "o1", model.SideBuy, 0.48, 1)
	l.Track(upKey, "o2", model.SideBuy, 0.47, 1)
	l.Track(downKey, "o3", model.SideBuy, 0.46, 1)

	all := l.All()
	if len(all) != 2 {
		t.Fatalf("分组数 = %d, 期望 2", len(all))
	}
	if len(all[upKey]) != 2 || len(all[downKey]) != 1 {
		t.Errorf("分组数量异常: %v", all)
	}

	// 修改副本不影响台账
	all[upKey][0].OrderID = "mutated"
	if l.OrdersFor(upKey)[0].OrderID != "o1" {
		t.Error("修改 All 副本不应影响台账内部状态")
	}
}

// TestOrdersForReturnsCopy 测试查询返回副本
func TestOrdersForReturnsCopy(t *testing.T) {
	l := New()
	l.Track(upKey, "o1", model.SideBuy, 0.48, 1)

	orders := l.OrdersFor(upKey)
	orders[0].OrderID = "mutated"

	if l.OrdersFor(upKey)[0].OrderID != "o1" {
		t.Error("修改副本不应影响台账内部状态")
	}
}
