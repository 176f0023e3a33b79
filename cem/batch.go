package cem

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
)

// PolyState 单个多边形在流水线中的状态
type PolyState string

const (
	StatePending     PolyState = "pending"
	StateProjecting  PolyState = "projecting"
	StateDownloading PolyState = "downloading"
	StateMasking     PolyState = "masking"
	StateClipping    PolyState = "clipping"
	StateLoaded      PolyState = "loaded"
	StateFailed      PolyState = "failed"
)

// FeatureResult 单个多边形的处理结果，Index从1开始
type FeatureResult struct {
	Index      int
	State      PolyState
	OutputPath string
	Err        error
}

// BatchResult 整批结果，单个多边形失败不会使整批中止
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
	Items     []FeatureResult
}

// Summary 按序汇总：成功/失败计数与失败明细
func (r *BatchResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "成功 %d 个，失败 %d 个", r.Succeeded, r.Failed)
	for _, it := range r.Items {
		if it.Err != nil {
			fmt.Fprintf(&b, "\n[%d] %v", it.Index, it.Err)
		}
	}
	return b.String()
}

// Downloader 逐多边形下载与裁剪流水线
// 循环是严格串行的：同一时刻对远端服务只有一个在途请求
type Downloader struct {
	WCSBase    string
	CoverageID string
	WorkRoot   string
	Fetcher    CoverageFetcher
	Clipper    RasterCropper
}

// DownloadSplitPerPolygon 为图层中每个单部件多边形生成一个裁剪后的GeoTIFF
// 分辨率校验与空输入判断发生在任何IO之前；逐要素失败被隔离到各自的结果项中
func (d *Downloader) DownloadSplitPerPolygon(ctx context.Context, layer VectorLayer, resM int, sink StatusSink) (*BatchResult, error) {
	if sink == nil {
		sink = NopSink{}
	}

	// 配置级错误在循环开始前终止整批
	step, err := AngularStepDegrees(resM)
	if err != nil {
		return nil, err
	}

	polys := ExplodeToSingleParts(layer.FeatureCollection())
	total := len(polys)
	result := &BatchResult{Total: total}
	if total == 0 {
		sink.Step(0, 0, "图层不包含多边形")
		return result, nil
	}

	workDir := filepath.Join(d.WorkRoot, fmt.Sprintf("wcs_%s_%dm", layer.Name(), resM))
	if err := os.MkdirAll(workDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("创建临时目录失败: %w", err)
	}

	sink.Step(0, total, fmt.Sprintf("准备处理 %d 个多边形", total))

	for i, poly := range polys {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		idx := i + 1

		item := d.processOne(ctx, poly, layer, resM, step, idx, total, workDir, sink)
		if item.Err != nil {
			result.Failed++
			log.Printf("[%d/%d] ERROR: %v", idx, total, item.Err)
			sink.Step(idx, total, fmt.Sprintf("[%d/%d] 失败: %v", idx, total, item.Err))
		} else {
			result.Succeeded++
			sink.Step(idx, total, fmt.Sprintf("[%d/%d] OK -> %s", idx, total, item.OutputPath))
		}
		result.Items = append(result.Items, item)
	}

	return result, nil
}

// processOne 单个多边形的完整流水线，任何子步骤失败都被收敛为结果项
func (d *Downloader) processOne(ctx context.Context, poly orb.Polygon, layer VectorLayer, resM int, step float64, idx, total int, workDir string, sink StatusSink) (item FeatureResult) {
	item = FeatureResult{Index: idx, State: StatePending}
	defer func() {
		if r := recover(); r != nil {
			item.State = StateFailed
			item.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	fail := func(err error) FeatureResult {
		item.State = StateFailed
		item.Err = err
		return item
	}

	item.State = StateProjecting
	bbox, err := BBox4326FromGeometry(poly, layer.EPSG())
	if err != nil {
		return fail(err)
	}
	// 外扩一个像素步长，避免请求范围贴着像素边界被截掉
	padded := bbox.Pad(step)

	queryURL, err := BuildQueryURL(d.WCSBase, d.CoverageID, padded, resM)
	if err != nil {
		return fail(err)
	}

	rawTif := filepath.Join(workDir, fmt.Sprintf("wcs_raw_poly_%04d.tif", idx))
	maskPath := filepath.Join(workDir, fmt.Sprintf("mask_poly_%04d.geojson", idx))
	outTif := filepath.Join(workDir, fmt.Sprintf("%s__poly%04d__cem_%dm_clip.tif", layer.Name(), idx, resM))

	item.State = StateDownloading
	sink.Step(idx-1, total, fmt.Sprintf("[%d/%d] WCS GetCoverage: %s", idx, total, queryURL))
	if err := d.Fetcher.FetchToFile(ctx, queryURL, rawTif, sink.Bytes); err != nil {
		return fail(err)
	}

	item.State = StateMasking
	if err := WriteSinglePolygonMask(poly, layer.EPSG(), maskPath); err != nil {
		return fail(err)
	}

	item.State = StateClipping
	sink.Step(idx-1, total, fmt.Sprintf("[%d/%d] 正在裁剪", idx, total))
	if err := d.Clipper.ClipToMask(ctx, rawTif, maskPath, outTif, DefaultClipOptions()); err != nil {
		return fail(err)
	}

	item.State = StateLoaded
	item.OutputPath = outTif
	return item
}
