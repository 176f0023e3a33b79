package cem

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ProgressFunc 每个数据块到达时回调一次，total为0表示长度未知
type ProgressFunc func(received, total int64)

// CoverageFetcher 流式下载器接口
type CoverageFetcher interface {
	FetchToFile(ctx context.Context, rawURL, destPath string, onProgress ProgressFunc) error
}

// Fetcher 基于net/http的流式下载器
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher 创建下载器，timeout是单次传输的硬上限
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: "CEM-Downloader/1.0",
	}
}

// FetchToFile 发起GET并将响应体流式写入destPath，不在内存中缓存完整载荷
// 失败时已写入的部分文件保留在磁盘上，由调用方决定清理策略
func (f *Fetcher) FetchToFile(ctx context.Context, rawURL, destPath string, onProgress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return &NetworkError{URL: rawURL, Detail: fmt.Sprintf("create request failed: %v", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return &NetworkError{URL: rawURL, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &NetworkError{URL: rawURL, Detail: fmt.Sprintf("server returned status: %d", resp.StatusCode)}
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("创建输出文件失败: %w", err)
	}

	var received int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return fmt.Errorf("写入输出文件失败: %w", werr)
			}
			received += int64(n)
			if onProgress != nil {
				onProgress(received, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return &NetworkError{URL: rawURL, Detail: rerr.Error()}
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("关闭输出文件失败: %w", err)
	}
	// 截断的响应体不能当作有效文件接受
	if total > 0 && received != total {
		return &NetworkError{URL: rawURL, Detail: fmt.Sprintf("truncated body: %d/%d bytes", received, total)}
	}
	return nil
}
