// Package fastparse 提供高性能的字符串解析函数。
// 避免在行情热路径使用 fmt，统一经 strconv 转换。
// 主要用于解析行情推送中字符串形式的价格和数量字段。
package fastparse

import (
	"strconv"
)

// ParseFloat 快速解析浮点数字符串
// 参数 s: 待解析的字符串，如 "0.5300"
// 返回: 解析后的浮点数和可能的错误
func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// FormatFloat 格式化浮点数为字符串
// 参数 prec: 小数位数，-1 表示最短表示
func FormatFloat(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}
