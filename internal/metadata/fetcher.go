// Package metadata 负责从 Gamma API 发现当前可交易的 5 分钟市场。
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Fetcher 市场元数据获取器接口
type Fetcher interface {
	// FetchBySlug 按 slug 查询市场元数据
	FetchBySlug(ctx context.Context, slug string) (*GammaMarket, error)
}

// HTTPFetcher HTTP 市场元数据获取器
type HTTPFetcher struct {
	// baseURL Gamma API 地址
	baseURL string
	// client HTTP 客户端
	client *http.Client
}

// NewHTTPFetcher 创建 HTTP 市场元数据获取器
// 参数 baseURL: Gamma API 地址
// 参数 timeoutMs: HTTP 请求超时时间（毫秒）
func NewHTTPFetcher(baseURL string, timeoutMs int) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: time.Duration(timeoutMs) * time.Millisecond,
		},
	}
}

// FetchBySlug 按 slug 查询市场元数据
// 参数 ctx: 上下文，用于取消请求
// 参数 slug: 市场 slug
// 返回: 匹配的市场，未找到时返回错误
func (f *HTTPFetcher) FetchBySlug(ctx context.Context, slug string) (*GammaMarket, error) {
	reqURL := fmt.Sprintf("%s?slug=%s", f.baseURL, url.QueryEscape(slug))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("User-Agent", "polymarket-hedger/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求市场元数据失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP 状态码错误: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	var markets []GammaMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("解析市场元数据失败: %w", err)
	}

	if len(markets) == 0 {
		return nil, fmt.Errorf("未找到市场: slug=%s", slug)
	}

	return &markets[0], nil
}
