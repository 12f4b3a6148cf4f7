package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestLoadDefaults 测试最小配置加载后默认值全部生效
func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  name: test-hedger
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.App.Name != "test-hedger" {
		t.Errorf("App.Name = %s, 期望 test-hedger", cfg.App.Name)
	}
	if cfg.App.LogLevel != "info" {
		t.Errorf("App.LogLevel 默认值 = %s, 期望 info", cfg.App.LogLevel)
	}
	if cfg.Market.SlotSeconds != 300 {
		t.Errorf("Market.SlotSeconds 默认值 = %d, 期望 300", cfg.Market.SlotSeconds)
	}
	if cfg.Trading.ImbalanceThreshold != 0.4 {
		t.Errorf("Trading.ImbalanceThreshold 默认值 = %f, 期望 0.4", cfg.Trading.ImbalanceThreshold)
	}
	if cfg.Trading.ExtremeLow != 0.10 || cfg.Trading.ExtremeHigh != 0.90 {
		t.Errorf("硬性价格范围默认值 = [%f, %f], 期望 [0.10, 0.90]",
			cfg.Trading.ExtremeLow, cfg.Trading.ExtremeHigh)
	}
	if cfg.Trading.BalanceBuffer != 0.15 {
		t.Errorf("Trading.BalanceBuffer 默认值 = %f, 期望 0.15", cfg.Trading.BalanceBuffer)
	}
	if cfg.Trading.CycleIntervalS != 5 || cfg.Trading.RefreshIntervalS != 45 {
		t.Errorf("交易间隔默认值 = [%d, %d], 期望 [5, 45]",
			cfg.Trading.CycleIntervalS, cfg.Trading.RefreshIntervalS)
	}
	if cfg.API.MinIntervalMs != 200 {
		t.Errorf("API.MinIntervalMs 默认值 = %d, 期望 200", cfg.API.MinIntervalMs)
	}
}

// TestLoadFileNotFound 测试文件不存在时返回错误
func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("期望文件不存在错误，实际为 nil")
	}
}

// TestValidateInvalid 测试非法配置被拒绝
func TestValidateInvalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		keyword string
	}{
		{
			name:    "偏斜阈值越界",
			mutate:  func(c *Config) { c.Trading.ImbalanceThreshold = 1.5 },
			keyword: "imbalance_threshold",
		},
		{
			name:    "安全范围颠倒",
			mutate:  func(c *Config) { c.Trading.SafeRangeLow = 0.99; c.Trading.SafeRangeHigh = 0.01 },
			keyword: "safe_range_low",
		},
		{
			name:    "无效日志级别",
			mutate:  func(c *Config) { c.App.LogLevel = "verbose" },
			keyword: "log_level",
		},
		{
			name:    "委托数量为负",
			mutate:  func(c *Config) { c.Trading.OrderSize = -1 },
			keyword: "order_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.setDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("期望验证失败，实际通过")
			}
			if !strings.Contains(err.Error(), tt.keyword) {
				t.Errorf("错误信息缺少关键字 %s: %v", tt.keyword, err)
			}
		})
	}
}

// TestValidateDefaultsPass 测试默认配置可通过验证
func TestValidateDefaultsPass(t *testing.T) {
	var cfg Config
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("默认配置验证失败: %v", err)
	}
}
