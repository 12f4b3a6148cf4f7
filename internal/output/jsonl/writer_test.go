// Package jsonl 成交历史写入器测试
package jsonl

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// TestAppendAndRead 测试写入的记录可逐行解析
func TestAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	w, err := NewWriter(path, 10)
	if err != nil {
		t.Fatalf("创建写入器失败: %v", err)
	}

	recs := []TradeRecord{
		{TsUnixMs: 1, Market: "btc-updown-5m-100", AssetKey: "71321045679252212594", Side: "BUY", Price: 0.48, Size: 1, OrderID: "o1"},
		{TsUnixMs: 2, Market: "btc-updown-5m-100", AssetKey: "52114319501245915516", Side: "BUY", Price: 0.49, Size: 2, OrderID: "o2"},
	}
	for _, r := range recs {
		if err := w.Append(r); err != nil {
			t.Fatalf("追加记录失败: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("关闭写入器失败: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("打开输出文件失败: %v", err)
	}
	defer f.Close()

	var got []TradeRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r TradeRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("解析记录失败: %v", err)
		}
		got = append(got, r)
	}

	if len(got) != len(recs) {
		t.Fatalf("记录数量 = %d, 期望 %d", len(got), len(recs))
	}
	for i := range recs {
		if got[i] != recs[i] {
			t.Errorf("记录 %d = %+v, 期望 %+v", i, got[i], recs[i])
		}
	}
}

// TestAppendAfterClose 测试关闭后追加返回错误
func TestAppendAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	w, err := NewWriter(path, 10)
	if err != nil {
		t.Fatalf("创建写入器失败: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("关闭写入器失败: %v", err)
	}
	if err := w.Append(TradeRecord{}); err == nil {
		t.Fatal("关闭后追加应返回错误")
	}
}

// TestCloseIdempotent 测试重复关闭安全
func TestCloseIdempotent(t *testing.T) {
	w, err := NewWriter(filepath.Join(t.TempDir(), "trades.jsonl"), 10)
	if err != nil {
		t.Fatalf("创建写入器失败: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("首次关闭失败: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("重复关闭失败: %v", err)
	}
}
