// Package stats 维护跨重启持久化的交易统计。
// 统计文件为 JSON，权限 0600，启动时加载、退出和定时保存。
package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TradingStats 交易统计
// 所有计数方法并发安全
type TradingStats struct {
	mu sync.Mutex

	// OrdersPlaced 累计下单次数
	OrdersPlaced int64 `json:"orders_placed"`
	// OrdersFilled 累计成交次数
	OrdersFilled int64 `json:"orders_filled"`
	// OrdersCancelled 累计撤单次数
	OrdersCancelled int64 `json:"orders_cancelled"`
	// OrdersExpired 累计过期挂单次数
	OrdersExpired int64 `json:"orders_expired"`
	// Errors 累计错误次数
	Errors int64 `json:"errors"`
	// MergeCount 累计可合并机会次数
	MergeCount int64 `json:"merge_count"`
	// TotalVolume 累计成交名义价值（USDC）
	TotalVolume float64 `json:"total_volume"`
	// TotalPnL 累计已实现盈亏（USDC）
	TotalPnL float64 `json:"total_pnl"`
	// StartTime 统计起始时间（RFC3339）
	StartTime string `json:"start_time"`
	// LastUpdate 最后更新时间（RFC3339）
	LastUpdate string `json:"last_update"`
}

// New 创建空统计，起始时间为当前时间
func New() *TradingStats {
	now := time.Now().UTC().Format(time.RFC3339)
	return &TradingStats{
		StartTime:  now,
		LastUpdate: now,
	}
}

// RecordPlaced 记录一次下单
func (s *TradingStats) RecordPlaced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OrdersPlaced++
	s.touch()
}

// RecordFill 记录一次成交
// 参数 notional: 成交名义价值
func (s *TradingStats) RecordFill(notional float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OrdersFilled++
	s.TotalVolume += notional
	s.touch()
}

// RecordCancelled 记录撤单
// 参数 n: 撤单数量
func (s *TradingStats) RecordCancelled(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OrdersCancelled += int64(n)
	s.touch()
}

// RecordExpired 记录过期挂单
// 参数 n: 过期数量
func (s *TradingStats) RecordExpired(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OrdersExpired += int64(n)
	s.touch()
}

// RecordError 记录一次错误
func (s *TradingStats) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors++
	s.touch()
}

// RecordMerge 记录一次可合并机会
func (s *TradingStats) RecordMerge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MergeCount++
	s.touch()
}

// 调用方必须持有 s.mu
func (s *TradingStats) touch() {
	s.LastUpdate = time.Now().UTC().Format(time.RFC3339)
}

// Save 保存统计到文件
// 文件权限 0600，目录不存在时自动创建
// 参数 path: 统计文件路径
func (s *TradingStats) Save(path string) error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("序列化统计失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建统计目录失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("写入统计文件失败: %w", err)
	}
	return nil
}

// Load 从文件加载统计
// 参数 path: 统计文件路径
func Load(path string) (*TradingStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取统计文件失败: %w", err)
	}

	var s TradingStats
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("解析统计文件失败: %w", err)
	}
	if s.StartTime == "" {
		s.StartTime = time.Now().UTC().Format(time.RFC3339)
	}
	return &s, nil
}

// LoadOrNew 加载统计，文件不存在或损坏时返回新统计
// 参数 path: 统计文件路径
// 参数 logger: 日志记录器
func LoadOrNew(path string, logger *zap.Logger) *TradingStats {
	s, err := Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("加载统计失败，使用空统计", zap.String("path", path), zap.Error(err))
		}
		return New()
	}
	logger.Info("已加载历史统计",
		zap.String("path", path),
		zap.Int64("orders_placed", s.OrdersPlaced),
		zap.Int64("orders_filled", s.OrdersFilled))
	return s
}

// Fields 获取用于日志输出的统计字段
func (s *TradingStats) Fields() []zap.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []zap.Field{
		zap.Int64("orders_placed", s.OrdersPlaced),
		zap.Int64("orders_filled", s.OrdersFilled),
		zap.Int64("orders_cancelled", s.OrdersCancelled),
		zap.Int64("orders_expired", s.OrdersExpired),
		zap.Int64("errors", s.Errors),
		zap.Int64("merge_count", s.MergeCount),
		zap.Float64("total_volume", s.TotalVolume),
		zap.Float64("total_pnl", s.TotalPnL),
	}
}
