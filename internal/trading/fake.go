// Package trading 内存交易客户端。
// 用于模拟盘模式和协调器测试：订单仅保存在内存中，
// 可手动标记成交来模拟交易所侧的状态变化。
package trading

import (
	"context"
	"fmt"
	"sync"

	"polymarket-hedger/internal/core/model"
	"polymarket-hedger/internal/util/fastparse"
)

// FakeClient 内存交易客户端
type FakeClient struct {
	// mu 状态锁
	mu sync.Mutex
	// nextID 下一个订单 ID 序号
	nextID int64
	// open 未成交挂单（key 为订单 ID）
	open map[string]OpenOrder
	// balance 可用余额
	balance float64

	// placed 全部下单记录（含已成交和已撤销）
	placed []OpenOrder
	// cancelled 撤单记录
	cancelled []string

	// PlaceErr 预置下单错误，非 nil 时下单直接失败
	PlaceErr error
	// PlaceErrByToken 按 token 预置的下单错误，用于模拟单边失败
	PlaceErrByToken map[string]error
	// PlaceHook 下单成功后的回调（不持锁调用），
	// 用于模拟两笔下单之间余额被外部占用等状态变化
	PlaceHook func(tokenID string)
	// CancelErr 预置撤单错误，非 nil 时撤单直接失败
	CancelErr error
	// BalanceErr 预置余额查询错误
	BalanceErr error
}

// NewFakeClient 创建内存交易客户端
// 参数 balance: 初始余额
func NewFakeClient(balance float64) *FakeClient {
	return &FakeClient{
		open:    make(map[string]OpenOrder),
		balance: balance,
	}
}

// PlaceLimitOrder 提交限价单（内存撮合）
func (c *FakeClient) PlaceLimitOrder(_ context.Context, tokenID string, side model.Side, price, size float64) (string, error) {
	c.mu.Lock()

	if c.PlaceErr != nil {
		err := c.PlaceErr
		c.mu.Unlock()
		return "", err
	}
	if err, ok := c.PlaceErrByToken[tokenID]; ok && err != nil {
		c.mu.Unlock()
		return "", err
	}

	c.nextID++
	id := fmt.Sprintf("fake-%d", c.nextID)
	order := OpenOrder{
		ID:      id,
		AssetID: tokenID,
		Side:    string(side),
		Price:   fastparse.FormatFloat(price, 2),
		Size:    fastparse.FormatFloat(size, 2),
	}
	c.open[id] = order
	c.placed = append(c.placed, order)
	hook := c.PlaceHook
	c.mu.Unlock()

	if hook != nil {
		hook(tokenID)
	}
	return id, nil
}

// CancelOrder 撤销订单
// 订单不存在时视为已成交或已撤销，不报错
func (c *FakeClient) CancelOrder(_ context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.CancelErr != nil {
		return c.CancelErr
	}

	delete(c.open, orderID)
	c.cancelled = append(c.cancelled, orderID)
	return nil
}

// GetOpenOrders 查询未成交挂单
func (c *FakeClient) GetOpenOrders(_ context.Context, _ string) ([]OpenOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	orders := make([]OpenOrder, 0, len(c.open))
	for _, o := range c.open {
		orders = append(orders, o)
	}
	return orders, nil
}

// GetBalance 查询可用余额
func (c *FakeClient) GetBalance(_ context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.BalanceErr != nil {
		return 0, c.BalanceErr
	}
	return c.balance, nil
}

// Fill 标记订单成交并从挂单中移除
// 返回: 订单是否存在
func (c *FakeClient) Fill(orderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.open[orderID]; !ok {
		return false
	}
	delete(c.open, orderID)
	return true
}

// SetBalance 调整可用余额
func (c *FakeClient) SetBalance(balance float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance = balance
}

// Placed 获取全部下单记录副本
func (c *FakeClient) Placed() []OpenOrder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]OpenOrder(nil), c.placed...)
}

// Cancelled 获取撤单记录副本
func (c *FakeClient) Cancelled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cancelled...)
}

// OpenCount 获取当前挂单数量
func (c *FakeClient) OpenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.open)
}
