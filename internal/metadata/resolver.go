// Package metadata 负责从 Gamma API 发现当前可交易的 5 分钟市场。
//
// 市场按固定时间槽滚动：slug 由系列前缀加槽起始 Unix 秒组成。
// 剩余时间不足 30 秒的市场不再进入，直接解析下一个槽。
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"polymarket-hedger/internal/config"
)

// minTimeToExpiry 进入市场所需的最小剩余时间
// 临近到期的市场价格剧烈波动，不值得挂单
const minTimeToExpiry = 30 * time.Second

// Resolver 市场解析器
// 根据当前时间计算目标时间槽并查询对应市场
type Resolver struct {
	// cfg 市场发现配置
	cfg *config.MarketConfig
	// fetcher 元数据获取器
	fetcher Fetcher
	// logger 日志记录器
	logger *zap.Logger
}

// NewResolver 创建市场解析器
// 参数 cfg: 市场发现配置
// 参数 fetcher: 元数据获取器
// 参数 logger: 日志记录器
func NewResolver(cfg *config.MarketConfig, fetcher Fetcher, logger *zap.Logger) *Resolver {
	return &Resolver{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger.Named("metadata"),
	}
}

// Resolve 解析当前应交易的市场
// 先尝试当前时间槽；剩余时间不足或查询失败时回退到下一个槽。
// 参数 ctx: 上下文
// 参数 now: 当前时间
// 返回: 可交易市场，两个槽都失败时返回错误
func (r *Resolver) Resolve(ctx context.Context, now time.Time) (*Market, error) {
	slot := time.Duration(r.cfg.SlotSeconds) * time.Second
	slotStart := now.Truncate(slot)
	slotEnd := slotStart.Add(slot)

	// 当前槽剩余时间不足时直接跳到下一个槽
	candidates := []time.Time{slotStart, slotStart.Add(slot)}
	if slotEnd.Sub(now) < minTimeToExpiry {
		candidates = candidates[1:]
	}

	var lastErr error
	for _, start := range candidates {
		slug := r.SlotSlug(start)
		market, err := r.resolveSlug(ctx, slug, now)
		if err != nil {
			lastErr = err
			r.logger.Debug("时间槽市场不可用", zap.String("slug", slug), zap.Error(err))
			continue
		}
		return market, nil
	}

	return nil, fmt.Errorf("解析可交易市场失败: %w", lastErr)
}

// SlotSlug 由槽起始时间构造市场 slug
func (r *Resolver) SlotSlug(slotStart time.Time) string {
	return fmt.Sprintf("%s-%d", r.cfg.Series, slotStart.Unix())
}

func (r *Resolver) resolveSlug(ctx context.Context, slug string, now time.Time) (*Market, error) {
	gm, err := r.fetcher.FetchBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	market, err := ParseMarket(gm)
	if err != nil {
		return nil, err
	}

	if market.TimeToExpiry(now) < minTimeToExpiry {
		return nil, fmt.Errorf("市场剩余时间不足: slug=%s, remaining=%s",
			slug, market.TimeToExpiry(now).Round(time.Second))
	}
	if gm.Closed {
		return nil, fmt.Errorf("市场已关闭: slug=%s", slug)
	}

	return market, nil
}

// ParseMarket 将 Gamma 响应转换为可交易市场
// 校验 token ID 数量和到期时间格式
func ParseMarket(gm *GammaMarket) (*Market, error) {
	var tokenIDs []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIds), &tokenIDs); err != nil {
		return nil, fmt.Errorf("解析 clobTokenIds 失败: %w", err)
	}
	if len(tokenIDs) != 2 {
		return nil, fmt.Errorf("token 数量异常: %d, 期望 2", len(tokenIDs))
	}

	endDate, err := time.Parse(time.RFC3339, gm.EndDate)
	if err != nil {
		return nil, fmt.Errorf("解析到期时间失败: %w", err)
	}

	return &Market{
		Slug:        gm.Slug,
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		UpToken:     tokenIDs[0],
		DownToken:   tokenIDs[1],
		EndDate:     endDate,
	}, nil
}
