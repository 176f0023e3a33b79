package cem

import "fmt"

// StatusSink 进度与状态通知接收方，由展示层实现
type StatusSink interface {
	// Step 逐要素进度：index从0（准备阶段）到total
	Step(index, total int, message string)
	// Bytes 单次下载的字节级进度，total为0表示长度未知
	Bytes(received, total int64)
}

// NopSink 丢弃所有通知
type NopSink struct{}

func (NopSink) Step(int, int, string) {}

func (NopSink) Bytes(int64, int64) {}

// HumanSize 字节数的可读格式
func HumanSize(n float64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	f := n
	for _, u := range units {
		if f < 1024.0 {
			return fmt.Sprintf("%.1f %s", f, u)
		}
		f /= 1024.0
	}
	return fmt.Sprintf("%.1f PB", f)
}
