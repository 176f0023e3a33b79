package cem

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
)

// ClipOptions 掩膜裁剪参数
type ClipOptions struct {
	CropToCutline  bool
	KeepResolution bool
	NoData         float64
	AlphaBand      bool
}

// DefaultClipOptions CEM产品的固定裁剪参数
func DefaultClipOptions() ClipOptions {
	return ClipOptions{
		CropToCutline:  true,
		KeepResolution: true,
		NoData:         -9999,
		AlphaBand:      true,
	}
}

// RasterCropper 外部掩膜裁剪操作
type RasterCropper interface {
	ClipToMask(ctx context.Context, rasterPath, maskPath, outputPath string, opts ClipOptions) error
}

// GdalWarpClipper 通过gdalwarp子进程执行掩膜裁剪
type GdalWarpClipper struct {
	Binary string
}

// ClipToMask 调用gdalwarp做cutline裁剪
// KeepResolution时不传-tr，gdalwarp默认保持源栅格分辨率
func (c *GdalWarpClipper) ClipToMask(ctx context.Context, rasterPath, maskPath, outputPath string, opts ClipOptions) error {
	bin := c.Binary
	if bin == "" {
		bin = "gdalwarp"
	}

	args := []string{"-of", "GTiff", "-cutline", maskPath}
	if opts.CropToCutline {
		args = append(args, "-crop_to_cutline")
	}
	args = append(args, "-dstnodata", strconv.FormatFloat(opts.NoData, 'f', -1, 64))
	if opts.AlphaBand {
		args = append(args, "-dstalpha")
	}
	args = append(args, "-overwrite", rasterPath, outputPath)

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return &ClipError{Detail: detail}
	}
	return nil
}
