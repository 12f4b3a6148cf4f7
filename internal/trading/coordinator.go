// Package trading 交易周期协调器。
// 每个周期串行执行：成交检测 -> 撤单 -> 清台账 -> 风控检查 ->
// 定价 -> 尺寸计算 -> 余额检查 -> 顺序下单。
// 周期内任一交易所调用失败即中止本周期，留待下一周期重试。
package trading

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"polymarket-hedger/internal/config"
	"polymarket-hedger/internal/core/book"
	"polymarket-hedger/internal/core/ledger"
	"polymarket-hedger/internal/core/model"
	"polymarket-hedger/internal/core/pricecache"
	"polymarket-hedger/internal/metadata"
	"polymarket-hedger/internal/output/jsonl"
	"polymarket-hedger/internal/stats"
	"polymarket-hedger/internal/util/timeutil"
)

// complementTolerance 双边价格互补性容差
// UP 买价与 DOWN 买价之和应接近 1，偏离过大说明行情异常
const complementTolerance = 0.1

// fixedPrices 周期窗口内的固定报价
// 窗口内的每个周期复用同一组价格，避免追价；
// 市场轮换或窗口到期后重新捕获。
type fixedPrices struct {
	// market 捕获时的市场 slug
	market string
	// upPrice UP 委托价
	upPrice float64
	// downPrice DOWN 委托价
	downPrice float64
	// capturedAtNs 捕获时间（纳秒）
	capturedAtNs int64
}

// Coordinator 交易周期协调器
// 串行驱动所有交易动作，共享结构只通过各自的锁访问
type Coordinator struct {
	// cfg 交易参数配置
	cfg *config.TradingConfig
	// client 交易客户端
	client Client
	// cache 价格缓存
	cache *pricecache.Cache
	// ledger 挂单台账
	ledger *ledger.Ledger
	// book 仓位簿
	book *book.Book
	// stats 交易统计
	stats *stats.TradingStats
	// history 成交历史写入器（可为 nil）
	history *jsonl.Writer
	// logger 日志记录器
	logger *zap.Logger

	// warns 价格告警冷却器
	warns *warnTracker
	// fixed 当前窗口的固定报价
	fixed fixedPrices
}

// NewCoordinator 创建交易周期协调器
// 参数 history: 成交历史写入器，可为 nil 表示不落盘
func NewCoordinator(cfg *config.TradingConfig, client Client, cache *pricecache.Cache,
	orderLedger *ledger.Ledger, positionBook *book.Book, tradingStats *stats.TradingStats,
	history *jsonl.Writer, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		client:  client,
		cache:   cache,
		ledger:  orderLedger,
		book:    positionBook,
		stats:   tradingStats,
		history: history,
		logger:  logger.Named("coordinator"),
		warns:   newWarnTracker(time.Duration(cfg.WarnCooldownS) * time.Second),
	}
}

// RunCycle 执行一个完整交易周期
// 交易所调用失败时返回错误并中止；风控跳过不算错误。
// 参数 market: 当前交易的市场
func (c *Coordinator) RunCycle(ctx context.Context, market *metadata.Market) error {
	upKey, downKey := market.UpKey(), market.DownKey()

	// 1. 撤单前先检测成交，否则撤单会抹掉成交痕迹
	open, err := c.client.GetOpenOrders(ctx, market.ConditionID)
	if err != nil {
		return fmt.Errorf("查询交易所挂单失败: %w", err)
	}
	openIDs := make(map[string]struct{}, len(open))
	for _, o := range open {
		openIDs[o.ID] = struct{}{}
	}
	c.detectFills(market, openIDs)

	// 2. 撤掉交易所侧的全部挂单，失败中止本周期。
	// 按交易所返回的列表撤，而不是按本地台账：进程重启或外部下单
	// 留下的未追踪挂单也要清掉，否则新单会叠在旧单上。
	cancelled, err := c.cancelOpen(ctx, open)
	if err != nil {
		return fmt.Errorf("撤单失败: %w", err)
	}

	// 3. 清台账并等待撤单传播。
	// 过期统计只在真正清除时计一次，且只统计仍挂着的订单，
	// 已按成交入账的不重复计数。
	staleThreshold := time.Duration(c.cfg.StaleOrderS) * time.Second
	expired := 0
	for _, key := range []model.InstrumentKey{upKey, downKey} {
		for _, o := range c.ledger.StaleFor(key, staleThreshold) {
			if _, stillOpen := openIDs[o.OrderID]; stillOpen {
				expired++
			}
		}
		c.ledger.ClearFor(key)
	}
	if expired > 0 {
		c.stats.RecordExpired(expired)
	}
	if cancelled > 0 {
		c.stats.RecordCancelled(cancelled)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.CancelPropagation()):
		}
	}

	// 4. 可合并机会只做提示，赎回在链上进行
	if amount, ok := c.book.MergeOpportunity(upKey, downKey, c.cfg.MergeThreshold); ok {
		c.stats.RecordMerge()
		c.logger.Info("检测到可合并赎回机会",
			zap.String("market", market.Slug),
			zap.Float64("amount", amount))
	}

	// 5. 总仓位熔断
	exposure := c.book.TotalExposure()
	if exposure >= c.cfg.MaxTotalPosition {
		c.logger.Warn("总仓位达到上限，跳过本周期",
			zap.Float64("exposure", exposure),
			zap.Float64("limit", c.cfg.MaxTotalPosition))
		return nil
	}

	// 6. 定价
	upPrice, downPrice, ok := c.resolvePrices(market)
	if !ok {
		return nil
	}

	// 7. 尺寸计算
	upSize, downSize := c.computeSizes(upKey, downKey, upPrice, downPrice, exposure)
	if upSize <= 0 && downSize <= 0 {
		c.logger.Debug("双边尺寸均为零，跳过下单")
		return nil
	}

	// 8. 余额检查
	balance, err := c.client.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("查询余额失败: %w", err)
	}
	required := (upPrice*upSize + downPrice*downSize) * (1 + c.cfg.BalanceBuffer)
	if balance < required {
		c.logger.Warn("余额不足，跳过下单",
			zap.Float64("balance", balance),
			zap.Float64("required", required))
		return nil
	}

	// 9. 顺序下单；一边失败不阻断另一边。
	// 第一边成交出去后余额可能已被占用，下第二边前向交易所复核。
	var placeErr error
	upPlaced := false
	if upSize > 0 {
		if err := c.placeOrder(ctx, market, market.UpToken, upKey, upPrice, upSize); err != nil {
			placeErr = multierr.Append(placeErr, fmt.Errorf("UP 下单失败: %w", err))
		} else {
			upPlaced = true
		}
	}
	if downSize > 0 {
		if upPlaced {
			remaining, err := c.client.GetBalance(ctx)
			if err != nil {
				return multierr.Append(placeErr, fmt.Errorf("复核余额失败: %w", err))
			}
			balance = remaining
		}
		if balance < downPrice*downSize*(1+c.cfg.BalanceBuffer) {
			c.logger.Warn("剩余余额不足以下第二边",
				zap.Float64("balance", balance),
				zap.Float64("required", downPrice*downSize*(1+c.cfg.BalanceBuffer)))
			return placeErr
		}
		if err := c.placeOrder(ctx, market, market.DownToken, downKey, downPrice, downSize); err != nil {
			placeErr = multierr.Append(placeErr, fmt.Errorf("DOWN 下单失败: %w", err))
		}
	}

	return placeErr
}

// detectFills 检测并入账已成交的挂单
// 已追踪但不在交易所 open 集合中的订单视为成交
func (c *Coordinator) detectFills(market *metadata.Market, openIDs map[string]struct{}) {
	for _, key := range []model.InstrumentKey{market.UpKey(), market.DownKey()} {
		for _, o := range c.ledger.MissingFrom(key, openIDs) {
			side := c.outcomeSide(market, key)
			c.book.Update(key, side, o.Size, o.Price)
			c.stats.RecordFill(o.Notional())
			c.logger.Info("检测到成交",
				zap.String("market", market.Slug),
				zap.String("key", string(key)),
				zap.String("side", string(side)),
				zap.Float64("price", o.Price),
				zap.Float64("size", o.Size))
			c.appendHistory(market, o)
		}
	}
}

// cancelOpen 撤销交易所返回的全部挂单
// 本地台账之外的残留挂单一并撤销，保证下单前每个标的至多一笔在途委托。
// 任一撤单失败立即返回错误，台账保持不动，下一周期重试。
func (c *Coordinator) cancelOpen(ctx context.Context, open []OpenOrder) (int, error) {
	cancelled := 0
	for _, o := range open {
		if err := c.client.CancelOrder(ctx, o.ID); err != nil {
			return cancelled, fmt.Errorf("撤销订单 %s 失败: %w", o.ID, err)
		}
		cancelled++
	}
	return cancelled, nil
}

// resolvePrices 解析本周期的双边委托价
// 窗口内复用固定报价；UP 取 UP 买一价，DOWN 取 1 - UP 卖一价。
// 报价缺失或价格越过硬性范围时返回 ok=false 跳过本周期。
func (c *Coordinator) resolvePrices(market *metadata.Market) (upPrice, downPrice float64, ok bool) {
	window := c.cfg.RefreshInterval()
	if c.fixed.market == market.Slug && timeutil.SinceNano(c.fixed.capturedAtNs) < window {
		return c.fixed.upPrice, c.fixed.downPrice, true
	}

	upBid, upAsk, found := c.cache.Get(market.UpKey())
	if !found {
		c.logger.Debug("UP 报价尚未就绪，跳过本周期", zap.String("market", market.Slug))
		return 0, 0, false
	}

	upPrice = upBid
	downPrice = 1 - upAsk

	// 互补性检查：UP 买一与 DOWN 买一之和应接近 1
	if downBid, _, found := c.cache.Get(market.DownKey()); found {
		if diff := math.Abs(upBid + downBid - 1); diff >= complementTolerance {
			if c.warns.shouldWarn("complement:" + market.Slug) {
				c.logger.Warn("双边价格互补性异常",
					zap.String("market", market.Slug),
					zap.Float64("up_bid", upBid),
					zap.Float64("down_bid", downBid),
					zap.Float64("diff", diff))
			}
		}
	}

	// 硬性范围：临近结算的极端价格直接跳过
	for _, px := range []float64{upPrice, downPrice} {
		if px < c.cfg.ExtremeLow || px > c.cfg.ExtremeHigh {
			c.logger.Info("价格进入极端区间，跳过本周期",
				zap.String("market", market.Slug),
				zap.Float64("up", upPrice),
				zap.Float64("down", downPrice))
			return 0, 0, false
		}
	}

	// 软性范围：越界仅告警，不阻断
	for _, px := range []float64{upPrice, downPrice} {
		if px < c.cfg.SafeRangeLow || px > c.cfg.SafeRangeHigh {
			if c.warns.shouldWarn("saferange:" + market.Slug) {
				c.logger.Warn("价格超出安全范围",
					zap.String("market", market.Slug),
					zap.Float64("price", px))
			}
		}
	}

	c.fixed = fixedPrices{
		market:       market.Slug,
		upPrice:      upPrice,
		downPrice:    downPrice,
		capturedAtNs: timeutil.NowNano(),
	}
	c.logger.Info("捕获本窗口固定报价",
		zap.String("market", market.Slug),
		zap.Float64("up", upPrice),
		zap.Float64("down", downPrice))
	return upPrice, downPrice, true
}

// computeSizes 计算双边委托尺寸
// 偏斜超过阈值时归零偏重一侧；随后受总仓位余量和单侧动态上限约束。
func (c *Coordinator) computeSizes(upKey, downKey model.InstrumentKey, upPrice, downPrice, exposure float64) (upSize, downSize float64) {
	upSize = c.cfg.OrderSize
	downSize = c.cfg.OrderSize

	skew := c.book.Skew()
	if skew > c.cfg.ImbalanceThreshold {
		upSize = 0
		c.logger.Info("UP 库存偏重，本周期只买 DOWN", zap.Float64("skew", skew))
	} else if skew < -c.cfg.ImbalanceThreshold {
		downSize = 0
		c.logger.Info("DOWN 库存偏重，本周期只买 UP", zap.Float64("skew", skew))
	}

	// 偏斜极端时的硬性保护，独立于可配置阈值
	if skip, reason := c.book.ShouldSkipSide(model.SideBuy); skip && upSize > 0 {
		upSize = 0
		c.logger.Warn("跳过 UP 下单", zap.String("reason", reason))
	}
	if skip, reason := c.book.ShouldSkipSide(model.SideSell); skip && downSize > 0 {
		downSize = 0
		c.logger.Warn("跳过 DOWN 下单", zap.String("reason", reason))
	}

	// 单侧动态上限
	upSize = c.capBySideLimit(upKey, model.SideBuy, upSize)
	downSize = c.capBySideLimit(downKey, model.SideSell, downSize)

	// 总仓位余量按下单顺序分配
	room := c.cfg.MaxTotalPosition - exposure
	if upSize > 0 {
		if notional := upPrice * upSize; notional > room {
			upSize = math.Max(room/upPrice, 0)
		}
		room -= upPrice * upSize
	}
	if downSize > 0 {
		if notional := downPrice * downSize; notional > room {
			downSize = math.Max(room/downPrice, 0)
		}
	}

	return upSize, downSize
}

// capBySideLimit 用单侧动态仓位上限约束尺寸
func (c *Coordinator) capBySideLimit(key model.InstrumentKey, side model.Side, size float64) float64 {
	if size <= 0 {
		return 0
	}

	limit := c.book.PositionLimit(side, c.cfg.MaxPosition)
	var held float64
	if pos, ok := c.book.Get(key); ok {
		held = pos.TotalSize
	}

	allowed := limit - held
	if allowed <= 0 {
		return 0
	}
	return math.Min(size, allowed)
}

// placeOrder 下单并登记台账
func (c *Coordinator) placeOrder(ctx context.Context, market *metadata.Market, tokenID string, key model.InstrumentKey, price, size float64) error {
	orderID, err := c.client.PlaceLimitOrder(ctx, tokenID, model.SideBuy, price, size)
	if err != nil {
		return err
	}

	c.ledger.Track(key, orderID, model.SideBuy, price, size)
	c.stats.RecordPlaced()
	c.logger.Info("挂单成功",
		zap.String("market", market.Slug),
		zap.String("key", string(key)),
		zap.String("order_id", orderID),
		zap.Float64("price", price),
		zap.Float64("size", size))
	return nil
}

// CancelAll 撤销某市场的全部追踪挂单并清理本地状态
// 市场轮换前调用；仓位随市场结算自动了结，一并清除。
func (c *Coordinator) CancelAll(ctx context.Context, market *metadata.Market) error {
	upKey, downKey := market.UpKey(), market.DownKey()

	cancelled := 0
	for _, key := range []model.InstrumentKey{upKey, downKey} {
		for _, o := range c.ledger.OrdersFor(key) {
			if err := c.client.CancelOrder(ctx, o.OrderID); err != nil {
				return fmt.Errorf("撤销订单 %s 失败: %w", o.OrderID, err)
			}
			cancelled++
		}
		c.ledger.ClearFor(key)
		c.book.ClearFor(key)
	}

	if cancelled > 0 {
		c.stats.RecordCancelled(cancelled)
	}
	c.logger.Info("市场清理完成",
		zap.String("market", market.Slug),
		zap.Int("cancelled", cancelled))
	return nil
}

// outcomeSide 将标的键映射到仓位簿的方向约定
// UP 持仓记为买入侧，DOWN 持仓记为卖出侧
func (c *Coordinator) outcomeSide(market *metadata.Market, key model.InstrumentKey) model.Side {
	if key == market.DownKey() {
		return model.SideSell
	}
	return model.SideBuy
}

// appendHistory 落盘一条成交历史
func (c *Coordinator) appendHistory(market *metadata.Market, o model.TrackedOrder) {
	if c.history == nil {
		return
	}
	rec := jsonl.TradeRecord{
		TsUnixMs: timeutil.NowMs(),
		Market:   market.Slug,
		AssetKey: string(o.Key),
		Side:     string(o.Side),
		Price:    o.Price,
		Size:     o.Size,
		OrderID:  o.OrderID,
	}
	if err := c.history.Append(rec); err != nil {
		c.logger.Warn("写入成交历史失败", zap.Error(err))
	}
}
