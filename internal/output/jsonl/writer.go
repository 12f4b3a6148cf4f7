// Package jsonl 实现成交历史的异步 JSONL 落盘。
// 交易周期热路径只负责投递，JSON 编码与文件 I/O 在后台 goroutine 完成。
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// TradeRecord 单条成交历史记录
type TradeRecord struct {
	// TsUnixMs 记录时间（毫秒）
	TsUnixMs int64 `json:"ts_ms"`
	// Market 市场 slug
	Market string `json:"market"`
	// AssetKey 规范化 token 短键
	AssetKey string `json:"asset_key"`
	// Side 方向: BUY / SELL
	Side string `json:"side"`
	// Price 成交价格
	Price float64 `json:"price"`
	// Size 成交数量
	Size float64 `json:"size"`
	// OrderID 订单 ID
	OrderID string `json:"order_id"`
}

type opType int

const (
	opAppend opType = iota
	opFlush
	opClose
)

type op struct {
	typ  opType
	rec  TradeRecord
	done chan error
}

// Writer 成交历史异步写入器
type Writer struct {
	// path 输出文件路径
	path string
	// ch 操作通道
	ch chan op

	closeOnce sync.Once
	closeErr  error
	closed    int32

	sendMu sync.Mutex

	wg sync.WaitGroup
}

// NewWriter 创建成交历史写入器
// 参数 path: 输出文件路径（追加写入）
// 参数 bufferSize: 缓冲区大小（channel capacity）
func NewWriter(path string, bufferSize int) (*Writer, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败: %w", err)
	}

	w := &Writer{
		path: path,
		ch:   make(chan op, bufferSize),
	}

	w.wg.Add(1)
	go w.loop(f)

	return w, nil
}

// Append 异步追加一条成交记录
func (w *Writer) Append(rec TradeRecord) error {
	if w == nil {
		return fmt.Errorf("writer 为空")
	}
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if atomic.LoadInt32(&w.closed) == 1 {
		return fmt.Errorf("writer 已关闭")
	}
	w.ch <- op{typ: opAppend, rec: rec}
	return nil
}

// Flush 强制 flush 文件缓冲区
func (w *Writer) Flush() error {
	if w == nil {
		return nil
	}
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if atomic.LoadInt32(&w.closed) == 1 {
		return nil
	}
	done := make(chan error, 1)
	w.ch <- op{typ: opFlush, done: done}
	return <-done
}

// Close 关闭写入器（会先 flush）
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.closeOnce.Do(func() {
		w.sendMu.Lock()
		atomic.StoreInt32(&w.closed, 1)
		done := make(chan error, 1)
		w.ch <- op{typ: opClose, done: done}
		w.closeErr = <-done
		close(w.ch)
		w.sendMu.Unlock()
	})
	w.wg.Wait()
	return w.closeErr
}

func (w *Writer) loop(f *os.File) {
	defer w.wg.Done()
	defer f.Close()

	bw := bufio.NewWriterSize(f, 1<<20)

	for req := range w.ch {
		switch req.typ {
		case opAppend:
			b, err := json.Marshal(req.rec)
			if err != nil {
				continue
			}
			if _, err := bw.Write(b); err != nil {
				continue
			}
			_ = bw.WriteByte('\n')
		case opFlush:
			req.done <- bw.Flush()
		case opClose:
			req.done <- bw.Flush()
			return
		}
	}
}
