// Package metadata 负责从 Gamma API 发现当前可交易的 5 分钟市场。
package metadata

import (
	"time"

	"polymarket-hedger/internal/core/model"
)

// GammaMarket Gamma API 市场元数据
// API: GET /markets?slug=xxx
// 注意 clobTokenIds 和 outcomes 是 JSON 编码的字符串而非数组。
type GammaMarket struct {
	// ID 市场 ID
	ID string `json:"id"`
	// Slug 市场 slug，如 btc-updown-5m-1700000100
	Slug string `json:"slug"`
	// Question 市场问题描述
	Question string `json:"question"`
	// ConditionID 链上 condition ID
	ConditionID string `json:"conditionId"`
	// ClobTokenIds token 长 ID 列表（JSON 编码字符串，UP 在前）
	ClobTokenIds string `json:"clobTokenIds"`
	// Outcomes 结果名称列表（JSON 编码字符串）
	Outcomes string `json:"outcomes"`
	// EndDate 市场到期时间（RFC3339）
	EndDate string `json:"endDate"`
	// Active 是否活跃
	Active bool `json:"active"`
	// Closed 是否已关闭
	Closed bool `json:"closed"`
}

// Market 解析后的可交易市场
type Market struct {
	// Slug 市场 slug
	Slug string
	// ConditionID 链上 condition ID
	ConditionID string
	// Question 市场问题描述
	Question string
	// UpToken UP 方向 token 长 ID
	UpToken string
	// DownToken DOWN 方向 token 长 ID
	DownToken string
	// EndDate 市场到期时间
	EndDate time.Time
}

// TokenIDs 获取市场的双边 token 长 ID 列表（UP 在前）
func (m *Market) TokenIDs() []string {
	return []string{m.UpToken, m.DownToken}
}

// UpKey 获取 UP token 的规范化短键
func (m *Market) UpKey() model.InstrumentKey {
	return model.Canonicalize(m.UpToken)
}

// DownKey 获取 DOWN token 的规范化短键
func (m *Market) DownKey() model.InstrumentKey {
	return model.Canonicalize(m.DownToken)
}

// TimeToExpiry 获取距市场到期的剩余时间
func (m *Market) TimeToExpiry(now time.Time) time.Duration {
	return m.EndDate.Sub(now)
}
