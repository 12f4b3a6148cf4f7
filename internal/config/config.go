// Package config 负责加载和验证 YAML 配置文件。
// 提供应用程序所需的所有配置项，包括行情连接、交易参数、风控阈值、
// 统计持久化等。安全取向：私钥等敏感项只从环境变量读取，不写入配置文件。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置根结构
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Market 市场发现配置
	Market MarketConfig `yaml:"market"`
	// Feed 行情 WebSocket 配置
	Feed FeedConfig `yaml:"feed"`
	// API 交易 API 配置
	API APIConfig `yaml:"api"`
	// Trading 交易参数配置
	Trading TradingConfig `yaml:"trading"`
	// Stats 统计持久化配置
	Stats StatsConfig `yaml:"stats"`
	// History 成交历史输出配置
	History HistoryConfig `yaml:"history"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// MarketConfig 市场发现配置
type MarketConfig struct {
	// GammaURL 市场元数据 API 地址
	GammaURL string `yaml:"gamma_url"`
	// Series 市场系列 slug 前缀，如 btc-updown-5m
	Series string `yaml:"series"`
	// SlotSeconds 市场时间槽长度（秒），5 分钟市场为 300
	SlotSeconds int `yaml:"slot_seconds"`
	// CheckIntervalS 市场轮换检查间隔（秒）
	CheckIntervalS int `yaml:"check_interval_s"`
	// TimeoutMs 元数据 HTTP 请求超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
}

// FeedConfig 行情 WebSocket 配置
type FeedConfig struct {
	// URL WebSocket 连接地址
	URL string `yaml:"url"`
	// ConnectTimeoutMs 建连超时（毫秒）
	ConnectTimeoutMs int `yaml:"connect_timeout_ms"`
	// ReconnectDelayMs 断线重连的固定延迟（毫秒）
	// 长生命周期的低频重连，不使用指数退避
	ReconnectDelayMs int `yaml:"reconnect_delay_ms"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// PongTimeoutMs 心跳响应超时（毫秒），超时触发重连
	PongTimeoutMs int `yaml:"pong_timeout_ms"`
	// ReadTimeoutMs 读取静默阈值（毫秒），超过后补发一次心跳
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
}

// APIConfig 交易 API 配置
type APIConfig struct {
	// BaseURL 交易（CLOB）API 地址
	BaseURL string `yaml:"base_url"`
	// TimeoutMs HTTP 请求超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
	// MinIntervalMs 相邻 API 调用的最小间隔（毫秒）
	MinIntervalMs int `yaml:"min_interval_ms"`
	// MaxRetries 单次调用的最大重试次数
	MaxRetries int `yaml:"max_retries"`
	// RetryInitialDelayMs 首次重试延迟（毫秒）
	RetryInitialDelayMs int `yaml:"retry_initial_delay_ms"`
	// RetryMaxDelayMs 重试延迟上限（毫秒）
	RetryMaxDelayMs int `yaml:"retry_max_delay_ms"`
	// RetryMultiplier 指数退避倍率
	RetryMultiplier float64 `yaml:"retry_multiplier"`
}

// TradingConfig 交易参数配置
type TradingConfig struct {
	// DryRun 模拟盘模式，使用内存撮合客户端，不发送真实请求
	DryRun bool `yaml:"dry_run"`
	// OrderSize 单笔委托数量（份额）
	OrderSize float64 `yaml:"order_size"`
	// MaxPosition 单侧最大仓位
	MaxPosition float64 `yaml:"max_position"`
	// MaxTotalPosition 全部市场的总仓位上限（名义价值）
	MaxTotalPosition float64 `yaml:"max_total_position"`
	// ImbalanceThreshold 再平衡偏斜阈值，|skew| 超过后只买轻的一侧
	ImbalanceThreshold float64 `yaml:"imbalance_threshold"`
	// MergeThreshold 可合并赎回的最小重叠数量
	MergeThreshold float64 `yaml:"merge_threshold"`
	// SafeRangeLow 软性安全价格下界，越界仅告警
	SafeRangeLow float64 `yaml:"safe_range_low"`
	// SafeRangeHigh 软性安全价格上界，越界仅告警
	SafeRangeHigh float64 `yaml:"safe_range_high"`
	// ExtremeLow 硬性价格下界，越界跳过本周期
	ExtremeLow float64 `yaml:"extreme_low"`
	// ExtremeHigh 硬性价格上界，越界跳过本周期
	ExtremeHigh float64 `yaml:"extreme_high"`
	// BalanceBuffer 余额安全系数（0.15 = 预留 15% 缓冲）
	BalanceBuffer float64 `yaml:"balance_buffer"`
	// CycleIntervalS 交易周期间隔（秒）
	CycleIntervalS int `yaml:"cycle_interval_s"`
	// RefreshIntervalS 定价窗口长度（秒），窗口内各周期复用同一组报价
	RefreshIntervalS int `yaml:"refresh_interval_s"`
	// CancelPropagationMs 撤单传播等待（毫秒）
	CancelPropagationMs int `yaml:"cancel_propagation_ms"`
	// StaleOrderS 挂单过期阈值（秒），超过计入 expired 统计
	StaleOrderS int `yaml:"stale_order_s"`
	// WarnCooldownS 价格告警冷却（秒）
	WarnCooldownS int `yaml:"warn_cooldown_s"`
}

// StatsConfig 统计持久化配置
type StatsConfig struct {
	// Path 统计文件路径
	Path string `yaml:"path"`
	// SaveIntervalS 定时保存间隔（秒）
	SaveIntervalS int `yaml:"save_interval_s"`
}

// HistoryConfig 成交历史输出配置
type HistoryConfig struct {
	// Enabled 是否输出成交历史
	Enabled bool `yaml:"enabled"`
	// Path JSONL 输出文件路径
	Path string `yaml:"path"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "polymarket-hedger"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	// 市场发现默认值
	if c.Market.GammaURL == "" {
		c.Market.GammaURL = "https://gamma-api.polymarket.com/markets"
	}
	if c.Market.Series == "" {
		c.Market.Series = "btc-updown-5m"
	}
	if c.Market.SlotSeconds == 0 {
		c.Market.SlotSeconds = 300 // 5 分钟
	}
	if c.Market.CheckIntervalS == 0 {
		c.Market.CheckIntervalS = 60
	}
	if c.Market.TimeoutMs == 0 {
		c.Market.TimeoutMs = 10000
	}

	// 行情默认值
	if c.Feed.URL == "" {
		c.Feed.URL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if c.Feed.ConnectTimeoutMs == 0 {
		c.Feed.ConnectTimeoutMs = 30000
	}
	if c.Feed.ReconnectDelayMs == 0 {
		c.Feed.ReconnectDelayMs = 5000
	}
	if c.Feed.PingIntervalMs == 0 {
		c.Feed.PingIntervalMs = 5000
	}
	if c.Feed.PongTimeoutMs == 0 {
		c.Feed.PongTimeoutMs = 10000
	}
	if c.Feed.ReadTimeoutMs == 0 {
		c.Feed.ReadTimeoutMs = 30000
	}

	// 交易 API 默认值
	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://clob.polymarket.com"
	}
	if c.API.TimeoutMs == 0 {
		c.API.TimeoutMs = 10000
	}
	if c.API.MinIntervalMs == 0 {
		c.API.MinIntervalMs = 200
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = 3
	}
	if c.API.RetryInitialDelayMs == 0 {
		c.API.RetryInitialDelayMs = 500
	}
	if c.API.RetryMaxDelayMs == 0 {
		c.API.RetryMaxDelayMs = 10000
	}
	if c.API.RetryMultiplier == 0 {
		c.API.RetryMultiplier = 2.0
	}

	// 交易参数默认值
	if c.Trading.OrderSize == 0 {
		c.Trading.OrderSize = 1.0
	}
	if c.Trading.MaxPosition == 0 {
		c.Trading.MaxPosition = 5.0
	}
	if c.Trading.MaxTotalPosition == 0 {
		c.Trading.MaxTotalPosition = 30.0
	}
	if c.Trading.ImbalanceThreshold == 0 {
		c.Trading.ImbalanceThreshold = 0.4
	}
	if c.Trading.MergeThreshold == 0 {
		c.Trading.MergeThreshold = 0.5
	}
	if c.Trading.SafeRangeLow == 0 {
		c.Trading.SafeRangeLow = 0.01
	}
	if c.Trading.SafeRangeHigh == 0 {
		c.Trading.SafeRangeHigh = 0.99
	}
	if c.Trading.ExtremeLow == 0 {
		c.Trading.ExtremeLow = 0.10
	}
	if c.Trading.ExtremeHigh == 0 {
		c.Trading.ExtremeHigh = 0.90
	}
	if c.Trading.BalanceBuffer == 0 {
		c.Trading.BalanceBuffer = 0.15
	}
	if c.Trading.CycleIntervalS == 0 {
		c.Trading.CycleIntervalS = 5
	}
	if c.Trading.RefreshIntervalS == 0 {
		c.Trading.RefreshIntervalS = 45
	}
	if c.Trading.CancelPropagationMs == 0 {
		c.Trading.CancelPropagationMs = 100
	}
	if c.Trading.StaleOrderS == 0 {
		c.Trading.StaleOrderS = 120
	}
	if c.Trading.WarnCooldownS == 0 {
		c.Trading.WarnCooldownS = 60
	}

	// 统计默认值
	if c.Stats.Path == "" {
		c.Stats.Path = "./data/hedger_stats.json"
	}
	if c.Stats.SaveIntervalS == 0 {
		c.Stats.SaveIntervalS = 300
	}

	// 成交历史默认值
	if c.History.Path == "" {
		c.History.Path = "./data/trades.jsonl"
	}
	if c.History.BufferSize == 0 {
		c.History.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	if c.Market.GammaURL == "" {
		errs = append(errs, "market.gamma_url: 元数据 API 地址不能为空")
	}
	if c.Market.Series == "" {
		errs = append(errs, "market.series: 市场系列不能为空")
	}
	if c.Market.SlotSeconds <= 0 {
		errs = append(errs, "market.slot_seconds: 时间槽长度必须为正数")
	}

	if c.Feed.URL == "" {
		errs = append(errs, "feed.url: 行情 WebSocket 地址不能为空")
	}
	if c.API.BaseURL == "" {
		errs = append(errs, "api.base_url: 交易 API 地址不能为空")
	}

	if c.Trading.OrderSize <= 0 {
		errs = append(errs, "trading.order_size: 委托数量必须为正数")
	}
	if c.Trading.MaxTotalPosition <= 0 {
		errs = append(errs, "trading.max_total_position: 总仓位上限必须为正数")
	}
	if c.Trading.ImbalanceThreshold <= 0 || c.Trading.ImbalanceThreshold > 1 {
		errs = append(errs, "trading.imbalance_threshold: 偏斜阈值必须在 (0, 1] 之间")
	}
	if c.Trading.SafeRangeLow >= c.Trading.SafeRangeHigh {
		errs = append(errs, "trading.safe_range_low: 安全范围下界必须小于上界")
	}
	if c.Trading.ExtremeLow >= c.Trading.ExtremeHigh {
		errs = append(errs, "trading.extreme_low: 硬性范围下界必须小于上界")
	}
	if c.Trading.BalanceBuffer < 0 {
		errs = append(errs, "trading.balance_buffer: 余额缓冲不能为负数")
	}
	if c.Trading.CycleIntervalS <= 0 {
		errs = append(errs, "trading.cycle_interval_s: 交易周期必须为正数")
	}
	if c.Trading.RefreshIntervalS <= 0 {
		errs = append(errs, "trading.refresh_interval_s: 定价窗口必须为正数")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// CycleInterval 获取交易周期间隔
func (c *TradingConfig) CycleInterval() time.Duration {
	return time.Duration(c.CycleIntervalS) * time.Second
}

// RefreshInterval 获取定价窗口长度
func (c *TradingConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalS) * time.Second
}

// CancelPropagation 获取撤单传播等待时长
func (c *TradingConfig) CancelPropagation() time.Duration {
	return time.Duration(c.CancelPropagationMs) * time.Millisecond
}
