// Package stats 交易统计测试
package stats

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

// TestSaveLoadRoundTrip 测试统计保存后可完整加载
func TestSaveLoadRoundTrip(t *testing.T) {
	s := New()
	s.RecordPlaced()
	s.RecordPlaced()
	s.RecordFill(0.48)
	s.RecordCancelled(3)
	s.RecordExpired(1)
	s.RecordError()
	s.RecordMerge()

	path := filepath.Join(t.TempDir(), "sub", "stats.json")
	if err := s.Save(path); err != nil {
		t.Fatalf("保存统计失败: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("加载统计失败: %v", err)
	}

	if loaded.OrdersPlaced != 2 {
		t.Errorf("OrdersPlaced = %d, 期望 2", loaded.OrdersPlaced)
	}
	if loaded.OrdersFilled != 1 {
		t.Errorf("OrdersFilled = %d, 期望 1", loaded.OrdersFilled)
	}
	if loaded.OrdersCancelled != 3 {
		t.Errorf("OrdersCancelled = %d, 期望 3", loaded.OrdersCancelled)
	}
	if loaded.OrdersExpired != 1 {
		t.Errorf("OrdersExpired = %d, 期望 1", loaded.OrdersExpired)
	}
	if loaded.Errors != 1 {
		t.Errorf("Errors = %d, 期望 1", loaded.Errors)
	}
	if loaded.MergeCount != 1 {
		t.Errorf("MergeCount = %d, 期望 1", loaded.MergeCount)
	}
	if loaded.TotalVolume != 0.48 {
		t.Errorf("TotalVolume = %f, 期望 0.48", loaded.TotalVolume)
	}
	if loaded.StartTime == "" || loaded.LastUpdate == "" {
		t.Error("时间戳不应为空")
	}
}

// TestSaveFilePermissions 测试统计文件权限为 0600
func TestSaveFilePermissions(t *testing.T) {
	s := New()
	path := filepath.Join(t.TempDir(), "stats.json")
	if err := s.Save(path); err != nil {
		t.Fatalf("保存统计失败: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("读取文件信息失败: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("文件权限 = %o, 期望 0600", perm)
	}
}

// TestLoadOrNewMissingFile 测试文件不存在时返回空统计
func TestLoadOrNewMissingFile(t *testing.T) {
	s := LoadOrNew(filepath.Join(t.TempDir(), "missing.json"), zap.NewNop())
	if s == nil {
		t.Fatal("期望返回空统计")
	}
	if s.OrdersPlaced != 0 {
		t.Errorf("空统计 OrdersPlaced = %d", s.OrdersPlaced)
	}
}

// TestLoadOrNewCorruptFile 测试文件损坏时返回空统计
func TestLoadOrNewCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatalf("写入损坏文件失败: %v", err)
	}

	s := LoadOrNew(path, zap.NewNop())
	if s == nil || s.OrdersPlaced != 0 {
		t.Fatal("损坏文件应返回空统计")
	}
}

// TestConcurrentRecording 测试并发计数
func TestConcurrentRecording(t *testing.T) {
	s := New()
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				s.RecordPlaced()
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	if s.OrdersPlaced != 1000 {
		t.Errorf("OrdersPlaced = %d, 期望 1000", s.OrdersPlaced)
	}
}
