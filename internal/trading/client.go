// Package trading 实现交易客户端与交易周期协调器。
// 交易 API: Polymarket CLOB（L2 HMAC 认证）
// 所有请求经过速率限制器串行放行，并按指数退避重试。
package trading

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"polymarket-hedger/internal/config"
	"polymarket-hedger/internal/core/model"
	"polymarket-hedger/internal/util/fastparse"
	"polymarket-hedger/internal/util/ratelimit"
	"polymarket-hedger/internal/util/retry"
)

// OpenOrder 交易所侧的未成交挂单
type OpenOrder struct {
	// ID 订单 ID
	ID string `json:"id"`
	// AssetID token 长 ID
	AssetID string `json:"asset_id"`
	// Side 方向: BUY / SELL
	Side string `json:"side"`
	// Price 委托价格（字符串）
	Price string `json:"price"`
	// Size 委托数量（字符串）
	Size string `json:"size"`
}

// Client 交易客户端接口
// 协调器通过此接口下单、撤单、查询挂单和余额，
// 测试使用内存实现替换。
type Client interface {
	// PlaceLimitOrder 提交限价单，返回订单 ID
	PlaceLimitOrder(ctx context.Context, tokenID string, side model.Side, price, size float64) (string, error)
	// CancelOrder 撤销订单
	CancelOrder(ctx context.Context, orderID string) error
	// GetOpenOrders 查询指定市场的未成交挂单
	GetOpenOrders(ctx context.Context, conditionID string) ([]OpenOrder, error)
	// GetBalance 查询可用余额（USDC）
	GetBalance(ctx context.Context) (float64, error)
}

// HTTPClient Polymarket CLOB 交易客户端
// 认证凭据从环境变量读取: POLY_API_KEY, POLY_API_SECRET, POLY_API_PASSPHRASE
type HTTPClient struct {
	// cfg 交易 API 配置
	cfg *config.APIConfig
	// logger 日志记录器
	logger *zap.Logger
	// client HTTP 客户端
	client *http.Client
	// limiter API 速率限制器
	limiter *ratelimit.Limiter
	// retryCfg 重试配置
	retryCfg retry.Config

	// apiKey API Key
	apiKey string
	// apiSecret API Secret（base64 编码）
	apiSecret string
	// passphrase API Passphrase
	passphrase string
}

// NewHTTPClient 创建 CLOB 交易客户端
// 参数 cfg: 交易 API 配置
// 参数 limiter: API 速率限制器
// 参数 logger: 日志记录器
// 返回: 客户端，凭据缺失时返回错误
func NewHTTPClient(cfg *config.APIConfig, limiter *ratelimit.Limiter, logger *zap.Logger) (*HTTPClient, error) {
	apiKey := os.Getenv("POLY_API_KEY")
	apiSecret := os.Getenv("POLY_API_SECRET")
	passphrase := os.Getenv("POLY_API_PASSPHRASE")
	if apiKey == "" || apiSecret == "" || passphrase == "" {
		return nil, fmt.Errorf("交易凭据缺失: 需要环境变量 POLY_API_KEY, POLY_API_SECRET, POLY_API_PASSPHRASE")
	}

	return &HTTPClient{
		cfg:    cfg,
		logger: logger.Named("clob"),
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		},
		limiter: limiter,
		retryCfg: retry.Config{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: time.Duration(cfg.RetryInitialDelayMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
			Multiplier:   cfg.RetryMultiplier,
		},
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		passphrase: passphrase,
	}, nil
}

// placeOrderRequest 下单请求体
type placeOrderRequest struct {
	// TokenID token 长 ID
	TokenID string `json:"token_id"`
	// Price 委托价格
	Price string `json:"price"`
	// Size 委托数量
	Size string `json:"size"`
	// Side 方向: BUY / SELL
	Side string `json:"side"`
	// OrderType 订单类型，限价单为 GTC
	OrderType string `json:"order_type"`
}

// placeOrderResponse 下单响应体
type placeOrderResponse struct {
	// Success 是否成功
	Success bool `json:"success"`
	// OrderID 订单 ID
	OrderID string `json:"orderID"`
	// ErrorMsg 失败原因
	ErrorMsg string `json:"errorMsg"`
}

// PlaceLimitOrder 提交限价单
// 参数 tokenID: token 长 ID
// 参数 side: 方向
// 参数 price: 委托价格
// 参数 size: 委托数量
// 返回: 订单 ID
func (c *HTTPClient) PlaceLimitOrder(ctx context.Context, tokenID string, side model.Side, price, size float64) (string, error) {
	req := placeOrderRequest{
		TokenID:   tokenID,
		Price:     fastparse.FormatFloat(price, 2),
		Size:      fastparse.FormatFloat(size, 2),
		Side:      string(side),
		OrderType: "GTC",
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("序列化下单请求失败: %w", err)
	}

	return retry.Do(ctx, c.logger, "place_order", c.retryCfg, func(ctx context.Context) (string, error) {
		data, err := c.doRequest(ctx, http.MethodPost, "/order", body)
		if err != nil {
			return "", err
		}

		var resp placeOrderResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return "", fmt.Errorf("解析下单响应失败: %w", err)
		}
		if !resp.Success {
			return "", fmt.Errorf("下单被拒绝: %s", resp.ErrorMsg)
		}
		return resp.OrderID, nil
	})
}

// CancelOrder 撤销订单
// 参数 orderID: 订单 ID
func (c *HTTPClient) CancelOrder(ctx context.Context, orderID string) error {
	body, err := json.Marshal(map[string]string{"orderID": orderID})
	if err != nil {
		return fmt.Errorf("序列化撤单请求失败: %w", err)
	}

	_, err = retry.Do(ctx, c.logger, "cancel_order", c.retryCfg, func(ctx context.Context) (struct{}, error) {
		if _, err := c.doRequest(ctx, http.MethodDelete, "/order", body); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("撤销订单失败: %w", err)
	}
	return nil
}

// GetOpenOrders 查询指定市场的未成交挂单
// 参数 conditionID: 市场 condition ID
func (c *HTTPClient) GetOpenOrders(ctx context.Context, conditionID string) ([]OpenOrder, error) {
	path := "/data/orders?market=" + conditionID

	return retry.Do(ctx, c.logger, "get_open_orders", c.retryCfg, func(ctx context.Context) ([]OpenOrder, error) {
		data, err := c.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var orders []OpenOrder
		if err := json.Unmarshal(data, &orders); err != nil {
			return nil, fmt.Errorf("解析挂单列表失败: %w", err)
		}
		return orders, nil
	})
}

// balanceResponse 余额查询响应体
type balanceResponse struct {
	// Balance 可用余额（6 位小数定点字符串）
	Balance string `json:"balance"`
}

// usdcDecimals USDC 定点小数位
const usdcDecimals = 1e6

// GetBalance 查询可用余额（USDC）
func (c *HTTPClient) GetBalance(ctx context.Context) (float64, error) {
	return retry.Do(ctx, c.logger, "get_balance", c.retryCfg, func(ctx context.Context) (float64, error) {
		data, err := c.doRequest(ctx, http.MethodGet, "/balance-allowance?asset_type=COLLATERAL", nil)
		if err != nil {
			return 0, err
		}

		var resp balanceResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return 0, fmt.Errorf("解析余额响应失败: %w", err)
		}
		raw, err := fastparse.ParseFloat(resp.Balance)
		if err != nil {
			return 0, fmt.Errorf("解析余额数值失败: %w", err)
		}
		return raw / usdcDecimals, nil
	})
}

// doRequest 执行签名 HTTP 请求
// 每次请求先经过速率限制器，再附加 L2 HMAC 认证头
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("等待速率限制失败: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := c.sign(ts, method, path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY-API-KEY", c.apiKey)
	req.Header.Set("POLY-SIGNATURE", sig)
	req.Header.Set("POLY-TIMESTAMP", ts)
	req.Header.Set("POLY-PASSPHRASE", c.passphrase)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		sample := data
		if len(sample) > 200 {
			sample = sample[:200]
		}
		return nil, fmt.Errorf("HTTP 状态码错误: %d, body=%s", resp.StatusCode, sample)
	}

	return data, nil
}

// sign 计算 L2 HMAC-SHA256 签名
// 签名串: timestamp + method + path + body
func (c *HTTPClient) sign(ts, method, path string, body []byte) (string, error) {
	secret, err := base64.URLEncoding.DecodeString(c.apiSecret)
	if err != nil {
		return "", fmt.Errorf("解码 API Secret 失败: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	if body != nil {
		mac.Write(body)
	}
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
