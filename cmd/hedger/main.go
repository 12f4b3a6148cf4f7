// Package main 是 Polymarket 双边对冲客户端的入口点。
// 客户端在 BTC 5 分钟涨跌市场上双边挂买单，赚取成交价差，
// 并通过库存偏斜控制保持 UP/DOWN 仓位大致平衡。
//
// 市场按 5 分钟时间槽滚动，轮换时撤掉旧市场挂单并重建行情订阅。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"polymarket-hedger/internal/config"
	"polymarket-hedger/internal/core/book"
	"polymarket-hedger/internal/core/ledger"
	"polymarket-hedger/internal/core/pricecache"
	"polymarket-hedger/internal/feed"
	"polymarket-hedger/internal/metadata"
	"polymarket-hedger/internal/output/jsonl"
	"polymarket-hedger/internal/stats"
	"polymarket-hedger/internal/trading"
	"polymarket-hedger/internal/util/ratelimit"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	// 交易客户端：模拟盘使用内存撮合，实盘需要 API 凭据
	limiter := ratelimit.New(time.Duration(cfg.API.MinIntervalMs) * time.Millisecond)
	var client trading.Client
	if cfg.Trading.DryRun {
		logger.Warn("模拟盘模式，不发送真实订单")
		client = trading.NewFakeClient(1000)
	} else {
		client, err = trading.NewHTTPClient(&cfg.API, limiter, logger)
		if err != nil {
			logger.Error("创建交易客户端失败", zap.Error(err))
			os.Exit(1)
		}
	}

	var historyWriter *jsonl.Writer
	if cfg.History.Enabled {
		historyWriter, err = jsonl.NewWriter(cfg.History.Path, cfg.History.BufferSize)
		if err != nil {
			logger.Error("创建成交历史 writer 失败", zap.Error(err))
			os.Exit(1)
		}
	}

	// 核心组件
	tradingStats := stats.LoadOrNew(cfg.Stats.Path, logger)
	cache := pricecache.New()
	orderLedger := ledger.New()
	positionBook := book.New()

	marketFeed := feed.NewFeed(&cfg.Feed, cache, logger)
	marketFeed.Start(ctx)

	fetcher := metadata.NewHTTPFetcher(cfg.Market.GammaURL, cfg.Market.TimeoutMs)
	resolver := metadata.NewResolver(&cfg.Market, fetcher, logger)

	coordinator := trading.NewCoordinator(&cfg.Trading, client, cache,
		orderLedger, positionBook, tradingStats, historyWriter, logger)

	// 启动时解析首个市场并建立行情订阅
	market, err := resolveWithRetry(ctx, resolver, logger)
	if err != nil {
		logger.Error("解析初始市场失败", zap.Error(err))
		os.Exit(1)
	}
	marketFeed.UpdateSubscription(ctx, market.TokenIDs())
	logger.Info("初始市场就绪",
		zap.String("slug", market.Slug),
		zap.String("question", market.Question),
		zap.Time("end_date", market.EndDate))

	// 统计定时持久化
	go statsSaver(ctx, logger, tradingStats, &cfg.Stats)

	runLoop(ctx, logger, cfg, resolver, marketFeed, coordinator, tradingStats, market)

	// 优雅关闭（10s 超时）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		marketFeed.Stop()
		if historyWriter != nil {
			_ = historyWriter.Close()
		}
		if err := tradingStats.Save(cfg.Stats.Path); err != nil {
			logger.Warn("保存统计失败", zap.Error(err))
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("关闭超时，强制退出")
	case <-done:
		logger.Info("关闭完成", tradingStats.Fields()...)
	}
}

// runLoop 主事件循环
// 交易周期、市场轮换检查各由独立 ticker 驱动，全部在单 goroutine 内
// 串行处理，避免交易动作并发交叠。
func runLoop(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	resolver *metadata.Resolver,
	marketFeed *feed.Feed,
	coordinator *trading.Coordinator,
	tradingStats *stats.TradingStats,
	market *metadata.Market,
) {
	tradeTicker := time.NewTicker(cfg.Trading.CycleInterval())
	defer tradeTicker.Stop()
	marketTicker := time.NewTicker(time.Duration(cfg.Market.CheckIntervalS) * time.Second)
	defer marketTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-tradeTicker.C:
			if err := coordinator.RunCycle(ctx, market); err != nil {
				tradingStats.RecordError()
				logger.Error("交易周期失败", zap.String("market", market.Slug), zap.Error(err))
			}

		case <-marketTicker.C:
			next, err := resolver.Resolve(ctx, time.Now())
			if err != nil {
				tradingStats.RecordError()
				logger.Warn("市场轮换检查失败", zap.Error(err))
				continue
			}
			if next.Slug == market.Slug {
				continue
			}

			// 轮换：先清理旧市场，再切换订阅
			logger.Info("市场轮换",
				zap.String("from", market.Slug),
				zap.String("to", next.Slug))
			if err := coordinator.CancelAll(ctx, market); err != nil {
				tradingStats.RecordError()
				logger.Error("清理旧市场失败，推迟轮换", zap.Error(err))
				continue
			}
			marketFeed.UpdateSubscription(ctx, next.TokenIDs())
			market = next
		}
	}
}

// resolveWithRetry 启动时解析市场，失败按固定间隔重试数次
func resolveWithRetry(ctx context.Context, resolver *metadata.Resolver, logger *zap.Logger) (*metadata.Market, error) {
	const attempts = 5
	var lastErr error
	for i := 0; i < attempts; i++ {
		market, err := resolver.Resolve(ctx, time.Now())
		if err == nil {
			return market, nil
		}
		lastErr = err
		logger.Warn("解析市场失败，稍后重试", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return nil, lastErr
}

// statsSaver 定时持久化交易统计
func statsSaver(ctx context.Context, logger *zap.Logger, tradingStats *stats.TradingStats, cfg *config.StatsConfig) {
	ticker := time.NewTicker(time.Duration(cfg.SaveIntervalS) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tradingStats.Save(cfg.Path); err != nil {
				logger.Warn("定时保存统计失败", zap.Error(err))
			}
		}
	}
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
