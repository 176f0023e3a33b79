package cem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// stubFetcher 按序号决定成功或失败，记录请求过的URL
type stubFetcher struct {
	calls    int
	failOn   map[int]bool
	lastURLs []string
}

func (s *stubFetcher) FetchToFile(ctx context.Context, rawURL, destPath string, onProgress ProgressFunc) error {
	s.calls++
	s.lastURLs = append(s.lastURLs, rawURL)
	if s.failOn[s.calls] {
		return &NetworkError{URL: rawURL, Detail: "simulated failure"}
	}
	if onProgress != nil {
		onProgress(4, 4)
	}
	return os.WriteFile(destPath, []byte("tiff"), 0644)
}

type stubClipper struct {
	calls int
}

func (s *stubClipper) ClipToMask(ctx context.Context, rasterPath, maskPath, outputPath string, opts ClipOptions) error {
	s.calls++
	return os.WriteFile(outputPath, []byte("clipped"), 0644)
}

func squareAt(lon, lat float64) orb.Polygon {
	return orb.Polygon{{
		{lon, lat}, {lon + 0.1, lat}, {lon + 0.1, lat + 0.1}, {lon, lat + 0.1}, {lon, lat},
	}}
}

func layerOf(name string, polys ...orb.Geometry) *MemoryLayer {
	fc := geojson.NewFeatureCollection()
	for _, p := range polys {
		fc.Append(geojson.NewFeature(p))
	}
	return &MemoryLayer{LayerName: name, Code: "4326", FC: fc}
}

func TestDownloadSplitPerPolygon(t *testing.T) {
	fetcher := &stubFetcher{}
	clipper := &stubClipper{}
	d := &Downloader{
		WCSBase:    "http://wcs.local",
		CoverageID: "cem",
		WorkRoot:   t.TempDir(),
		Fetcher:    fetcher,
		Clipper:    clipper,
	}

	layer := layerOf("cuenca", squareAt(-99.2, 19.3), squareAt(-100.0, 20.0), squareAt(-101.0, 21.0))
	result, err := d.DownloadSplitPerPolygon(context.Background(), layer, 30, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Total != 3 || result.Succeeded != 3 || result.Failed != 0 {
		t.Errorf("result = %d/%d/%d; want 3/3/0", result.Total, result.Succeeded, result.Failed)
	}
	if fetcher.calls != 3 || clipper.calls != 3 {
		t.Errorf("fetcher/clipper calls = %d/%d; want 3/3", fetcher.calls, clipper.calls)
	}

	for i, item := range result.Items {
		if item.Index != i+1 {
			t.Errorf("item %d index = %d; want %d", i, item.Index, i+1)
		}
		if item.State != StateLoaded {
			t.Errorf("item %d state = %s; want %s", i, item.State, StateLoaded)
		}
		want := fmt.Sprintf("cuenca__poly%04d__cem_30m_clip.tif", i+1)
		if !strings.HasSuffix(item.OutputPath, want) {
			t.Errorf("item %d output = %s; want suffix %s", i, item.OutputPath, want)
		}
		if _, err := os.Stat(item.OutputPath); err != nil {
			t.Errorf("item %d output missing: %v", i, err)
		}
	}
}

func TestDownloadSplitPadsRequestBBox(t *testing.T) {
	fetcher := &stubFetcher{}
	d := &Downloader{
		WCSBase:    "http://wcs.local",
		CoverageID: "cem",
		WorkRoot:   t.TempDir(),
		Fetcher:    fetcher,
		Clipper:    &stubClipper{},
	}

	// (-99.2,19.3)-(-99.1,19.4)的方块，30米对应1角秒步长
	layer := layerOf("l", squareAt(-99.2, 19.3))
	if _, err := d.DownloadSplitPerPolygon(context.Background(), layer, 30, nil); err != nil {
		t.Fatal(err)
	}
	if len(fetcher.lastURLs) != 1 {
		t.Fatalf("request count = %d; want 1", len(fetcher.lastURLs))
	}

	// 请求bbox必须等于几何bbox向四周各外扩一个角度步长
	wantBBox := "bbox=-99.20027778,19.29972222,-99.09972222,19.40027778"
	if !strings.Contains(fetcher.lastURLs[0], wantBBox) {
		t.Errorf("request URL missing padded bbox %q:\n%s", wantBBox, fetcher.lastURLs[0])
	}
	if !strings.Contains(fetcher.lastURLs[0], "resx=0.0002778") {
		t.Errorf("request URL missing resx:\n%s", fetcher.lastURLs[0])
	}
}

func TestDownloadSplitFailureIsolation(t *testing.T) {
	// 第2个多边形下载失败，其余两个应照常完成
	fetcher := &stubFetcher{failOn: map[int]bool{2: true}}
	d := &Downloader{
		WCSBase:    "http://wcs.local",
		CoverageID: "cem",
		WorkRoot:   t.TempDir(),
		Fetcher:    fetcher,
		Clipper:    &stubClipper{},
	}

	layer := layerOf("l", squareAt(-99, 19), squareAt(-100, 20), squareAt(-101, 21))
	result, err := d.DownloadSplitPerPolygon(context.Background(), layer, 30, nil)
	if err != nil {
		t.Fatalf("batch must not abort on per-feature failure: %v", err)
	}

	if result.Succeeded != 2 || result.Failed != 1 {
		t.Errorf("succeeded/failed = %d/%d; want 2/1", result.Succeeded, result.Failed)
	}
	if fetcher.calls != 3 {
		t.Errorf("fetcher calls = %d; want 3 (loop must continue past failures)", fetcher.calls)
	}

	failed := result.Items[1]
	if failed.State != StateFailed || failed.Err == nil {
		t.Errorf("item 2 = %+v; want failed with error", failed)
	}
	var netErr *NetworkError
	if !errors.As(failed.Err, &netErr) {
		t.Errorf("item 2 error type = %T; want *NetworkError", failed.Err)
	}
	if !strings.Contains(result.Summary(), "成功 2 个，失败 1 个") {
		t.Errorf("Summary() = %q", result.Summary())
	}
}

func TestDownloadSplitInvalidResolution(t *testing.T) {
	fetcher := &stubFetcher{}
	d := &Downloader{
		WCSBase:    "http://wcs.local",
		CoverageID: "cem",
		WorkRoot:   t.TempDir(),
		Fetcher:    fetcher,
		Clipper:    &stubClipper{},
	}

	layer := layerOf("l", squareAt(-99, 19))
	_, err := d.DownloadSplitPerPolygon(context.Background(), layer, 45, nil)
	if err == nil {
		t.Fatal("expected error for resolution 45")
	}
	var invalid *InvalidResolutionError
	if !errors.As(err, &invalid) {
		t.Errorf("error type = %T; want *InvalidResolutionError", err)
	}
	// 配置错误必须在任何网络请求之前被拒绝
	if fetcher.calls != 0 {
		t.Errorf("fetcher calls = %d; want 0", fetcher.calls)
	}
}

func TestDownloadSplitEmptyLayer(t *testing.T) {
	d := &Downloader{
		WCSBase:    "http://wcs.local",
		CoverageID: "cem",
		WorkRoot:   t.TempDir(),
		Fetcher:    &stubFetcher{},
		Clipper:    &stubClipper{},
	}

	result, err := d.DownloadSplitPerPolygon(context.Background(), layerOf("empty"), 30, nil)
	if err != nil {
		t.Fatalf("empty layer must succeed: %v", err)
	}
	if result.Total != 0 || len(result.Items) != 0 {
		t.Errorf("result = %+v; want empty", result)
	}
}

func TestDownloadSplitMultiPolygonExploded(t *testing.T) {
	mp := orb.MultiPolygon{squareAt(-99, 19), squareAt(-100, 20)}
	fetcher := &stubFetcher{}
	d := &Downloader{
		WCSBase:    "http://wcs.local",
		CoverageID: "cem",
		WorkRoot:   t.TempDir(),
		Fetcher:    fetcher,
		Clipper:    &stubClipper{},
	}

	result, err := d.DownloadSplitPerPolygon(context.Background(), layerOf("mp", mp), 60, nil)
	if err != nil {
		t.Fatal(err)
	}
	// 多部件要素拆分后每个部件独立下载
	if result.Total != 2 || fetcher.calls != 2 {
		t.Errorf("total/calls = %d/%d; want 2/2", result.Total, fetcher.calls)
	}
}

func TestDownloadSplitCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &Downloader{
		WCSBase:    "http://wcs.local",
		CoverageID: "cem",
		WorkRoot:   t.TempDir(),
		Fetcher:    &stubFetcher{},
		Clipper:    &stubClipper{},
	}
	_, err := d.DownloadSplitPerPolygon(ctx, layerOf("l", squareAt(-99, 19)), 30, nil)
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestExplodeToSingleParts(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(squareAt(-99, 19)))
	fc.Append(geojson.NewFeature(orb.MultiPolygon{squareAt(-100, 20), squareAt(-101, 21)}))
	fc.Append(geojson.NewFeature(orb.Point{-99, 19})) // 非面要素被忽略

	polys := ExplodeToSingleParts(fc)
	if len(polys) != 3 {
		t.Errorf("len = %d; want 3", len(polys))
	}
	if got := ExplodeToSingleParts(nil); got != nil {
		t.Errorf("nil collection should yield nil, got %v", got)
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{512, "512.0 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := HumanSize(tt.in); got != tt.want {
			t.Errorf("HumanSize(%v) = %q; want %q", tt.in, got, tt.want)
		}
	}
}
