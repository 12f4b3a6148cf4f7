// Package feed 实现 Polymarket 行情 WebSocket 客户端。
// 连接地址: wss://ws-subscriptions-clob.polymarket.com/ws/market
// 订阅消息: {"assets_ids": [...]}
// 心跳机制: 协议层 ping/pong + 读取静默监测
//
// 市场轮换时通过代次计数器切换订阅：旧连接的读取协程在代次失配后
// 自动退出，其残留消息不会写入价格缓存。
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"polymarket-hedger/internal/config"
	"polymarket-hedger/internal/core/model"
	"polymarket-hedger/internal/core/pricecache"
	"polymarket-hedger/internal/util/timeutil"
)

// Feed Polymarket 行情客户端
type Feed struct {
	// cfg WebSocket 配置
	cfg *config.FeedConfig
	// logger 日志记录器
	logger *zap.Logger
	// parser 消息解析器
	parser *Parser
	// cache 价格缓存，解析后的报价写入此处
	cache *pricecache.Cache

	// generation 订阅代次，每次换订阅自增
	// 读取协程持有启动时的代次，失配后丢弃消息并退出
	generation uint64

	// conn 当前活跃连接
	conn *websocket.Conn
	// connMu 连接锁，序列化写操作
	connMu sync.Mutex

	// assetIDs 当前订阅的 token 长 ID 列表
	assetIDs []string
	// assetMu 订阅列表锁
	assetMu sync.Mutex

	// metrics 连接指标
	metrics ConnectionMetrics
	// metricsMu 指标锁
	metricsMu sync.RWMutex

	// lastMsgTime 最后消息时间（纳秒）
	lastMsgTime int64
	// updateCount 更新计数（用于计算 QPS）
	updateCount int64
	// closed 是否已关闭
	closed int32

	// parseErrSampleCount 解析错误计数（用于采样日志）
	parseErrSampleCount uint64
	// lastParseErrLogNs 上次解析错误日志时间（纳秒）
	lastParseErrLogNs int64
}

// NewFeed 创建行情客户端
// 参数 cfg: WebSocket 配置
// 参数 cache: 价格缓存
// 参数 logger: 日志记录器
func NewFeed(cfg *config.FeedConfig, cache *pricecache.Cache, logger *zap.Logger) *Feed {
	return &Feed{
		cfg:    cfg,
		logger: logger.Named("feed"),
		parser: NewParser(),
		cache:  cache,
	}
}

// Start 启动客户端后台统计
// 实际连接由 UpdateSubscription 触发
func (f *Feed) Start(ctx context.Context) {
	go f.metricsLoop(ctx)
}

// UpdateSubscription 切换订阅到新的 token 列表
// 自增订阅代次并清空价格缓存，旧连接的读取协程会在下一次读取后退出；
// 新代次的连接协程立即启动。
// 参数 ctx: 上下文
// 参数 assetIDs: 新市场的 token 长 ID 列表
func (f *Feed) UpdateSubscription(ctx context.Context, assetIDs []string) {
	f.assetMu.Lock()
	f.assetIDs = append([]string(nil), assetIDs...)
	f.assetMu.Unlock()

	gen := atomic.AddUint64(&f.generation, 1)
	f.closeConn()
	f.cache.Clear()

	f.logger.Info("切换行情订阅",
		zap.Uint64("generation", gen),
		zap.Int("assets", len(assetIDs)))

	go f.run(ctx, gen)
}

// run 单个订阅代次的连接主循环
// 代次失配或上下文取消后退出；连接失败按固定延迟重试
func (f *Feed) run(ctx context.Context, gen uint64) {
	reconnectDelay := time.Duration(f.cfg.ReconnectDelayMs) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if atomic.LoadInt32(&f.closed) == 1 {
			return
		}
		if atomic.LoadUint64(&f.generation) != gen {
			return
		}

		conn, err := f.connect(ctx, gen)
		if err != nil {
			f.logger.Warn("行情连接失败，等待重连",
				zap.Uint64("generation", gen),
				zap.Duration("delay", reconnectDelay),
				zap.Error(err))
			f.incrementReconnectCount()
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		f.readLoop(ctx, gen, conn)

		if atomic.LoadUint64(&f.generation) != gen {
			return
		}
		f.incrementReconnectCount()
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// connect 建立连接并发送订阅请求
// 仅当代次仍是当前代次时注册连接，否则立即关闭
func (f *Feed) connect(ctx context.Context, gen uint64) (*websocket.Conn, error) {
	timeout := time.Duration(f.cfg.ConnectTimeoutMs) * time.Millisecond
	dialer := websocket.Dialer{HandshakeTimeout: timeout}

	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("连接行情 WebSocket 失败: %w", err)
	}

	readTimeout := time.Duration(f.cfg.ReadTimeoutMs) * time.Millisecond
	if readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
	conn.SetPongHandler(func(string) error {
		atomic.StoreInt64(&f.lastMsgTime, timeutil.NowNano())
		if readTimeout > 0 {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		return nil
	})

	f.assetMu.Lock()
	ids := append([]string(nil), f.assetIDs...)
	f.assetMu.Unlock()

	req := SubscribeRequest{AssetIDs: ids}
	data, err := json.Marshal(req)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("序列化订阅请求失败: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("发送订阅请求失败: %w", err)
	}

	f.connMu.Lock()
	if atomic.LoadUint64(&f.generation) != gen {
		f.connMu.Unlock()
		_ = conn.Close()
		return nil, fmt.Errorf("订阅代次已失效")
	}
	f.conn = conn
	f.connMu.Unlock()

	atomic.StoreInt64(&f.lastMsgTime, timeutil.NowNano())
	f.logger.Info("行情 WebSocket 连接成功",
		zap.Uint64("generation", gen),
		zap.String("url", f.cfg.URL),
		zap.Int("assets", len(ids)))

	go f.pingLoop(ctx, gen, conn)
	return conn, nil
}

// readLoop 单个连接的读取循环
// 连接断开或代次失配时返回
func (f *Feed) readLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	readTimeout := time.Duration(f.cfg.ReadTimeoutMs) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if atomic.LoadInt32(&f.closed) == 1 {
			return
		}
		if atomic.LoadUint64(&f.generation) != gen {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if atomic.LoadUint64(&f.generation) == gen && atomic.LoadInt32(&f.closed) == 0 {
				f.logger.Warn("读取行情消息失败", zap.Uint64("generation", gen), zap.Error(err))
			}
			return
		}

		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		atomic.StoreInt64(&f.lastMsgTime, timeutil.NowNano())

		updates, err := f.parser.Parse(data)
		if err != nil {
			f.incrementParseErrorCount()
			f.maybeLogParseError(err, data)
			continue
		}

		f.applyUpdates(gen, updates)
	}
}

// applyUpdates 将报价更新写入缓存
// 代次失配的更新整批丢弃，保证换订阅后缓存不被旧市场污染
func (f *Feed) applyUpdates(gen uint64, updates []Update) {
	if atomic.LoadUint64(&f.generation) != gen {
		return
	}
	for _, u := range updates {
		if u.HasBid {
			f.cache.SetBid(u.Key, u.Bid)
		}
		if u.HasAsk {
			f.cache.SetAsk(u.Key, u.Ask)
		}
		atomic.AddInt64(&f.updateCount, 1)
	}
}

// pingLoop 单个连接的心跳循环
// 定期发送 ping；读取静默超过阈值时补发一次，pong 超时由读取错误兜底
func (f *Feed) pingLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	interval := time.Duration(f.cfg.PingIntervalMs) * time.Millisecond
	pongTimeout := time.Duration(f.cfg.PongTimeoutMs) * time.Millisecond

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&f.closed) == 1 {
				return
			}
			if atomic.LoadUint64(&f.generation) != gen {
				return
			}

			f.connMu.Lock()
			deadline := time.Now().Add(5 * time.Second)
			err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline)
			f.connMu.Unlock()
			if err != nil {
				return
			}

			lastMsg := atomic.LoadInt64(&f.lastMsgTime)
			if lastMsg > 0 && timeutil.SinceNano(lastMsg) > pongTimeout {
				f.logger.Warn("行情心跳超时，强制断开重连",
					zap.Uint64("generation", gen),
					zap.Duration("silence", timeutil.SinceNano(lastMsg)))
				_ = conn.Close()
				return
			}
		}
	}
}

func (f *Feed) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastCount int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&f.closed) == 1 {
				return
			}

			count := atomic.LoadInt64(&f.updateCount)
			qps := float64(count - lastCount)
			lastCount = count

			lastMsg := atomic.LoadInt64(&f.lastMsgTime)
			var ageMs int64
			if lastMsg > 0 {
				ageMs = int64(timeutil.SinceNano(lastMsg) / time.Millisecond)
			}

			f.metricsMu.Lock()
			f.metrics.UpdatesPerSec = qps
			f.metrics.LastMessageAgeMs = ageMs
			f.metricsMu.Unlock()
		}
	}
}

func (f *Feed) closeConn() {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}

// Stop 关闭客户端
func (f *Feed) Stop() {
	atomic.StoreInt32(&f.closed, 1)
	f.closeConn()
	f.logger.Info("行情客户端已关闭")
}

// Quote 读取某标的的双边报价
// 仅当买卖双边都已收到时 ok 为 true
func (f *Feed) Quote(key model.InstrumentKey) (bid, ask float64, ok bool) {
	return f.cache.Get(key)
}

// AllQuotes 获取给定标的集合的报价快照
func (f *Feed) AllQuotes(keys []model.InstrumentKey) map[model.InstrumentKey]model.Quote {
	return f.cache.Snapshot(keys)
}

// Generation 获取当前订阅代次
func (f *Feed) Generation() uint64 {
	return atomic.LoadUint64(&f.generation)
}

// Metrics 获取连接指标
func (f *Feed) Metrics() ConnectionMetrics {
	f.metricsMu.RLock()
	defer f.metricsMu.RUnlock()
	return f.metrics
}

func (f *Feed) incrementReconnectCount() {
	f.metricsMu.Lock()
	f.metrics.ReconnectCount++
	f.metricsMu.Unlock()
}

func (f *Feed) incrementParseErrorCount() {
	f.metricsMu.Lock()
	f.metrics.ParseErrorCount++
	f.metricsMu.Unlock()
}

// maybeLogParseError 采样记录解析错误原始消息，避免刷盘
// 采样策略：每 100 次错误记录 1 条，且同一类日志至少间隔 1 分钟。
func (f *Feed) maybeLogParseError(err error, data []byte) {
	count := atomic.AddUint64(&f.parseErrSampleCount, 1)
	if count%100 != 0 {
		return
	}

	nowNs := timeutil.NowNano()
	last := atomic.LoadInt64(&f.lastParseErrLogNs)
	if last > 0 && nowNs-last < int64(time.Minute) {
		return
	}
	atomic.StoreInt64(&f.lastParseErrLogNs, nowNs)

	sample := data
	if len(sample) > 200 {
		sample = sample[:200]
	}
	f.logger.Warn("解析行情消息失败（采样）", zap.Error(err), zap.ByteString("data", sample))
}
