package cem

import (
	"fmt"
	"net/url"
	"strings"
)

// BoundingBox EPSG:4326下的轴对齐边界框
type BoundingBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// Pad 向四个方向外扩pad度，避免裁剪时边缘像素被截断
func (b BoundingBox) Pad(pad float64) BoundingBox {
	return BoundingBox{
		MinX: b.MinX - pad,
		MinY: b.MinY - pad,
		MaxX: b.MaxX + pad,
		MaxY: b.MaxY + pad,
	}
}

// String bbox参数串，固定8位小数
func (b BoundingBox) String() string {
	return fmt.Sprintf("%.8f,%.8f,%.8f,%.8f", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// BuildQueryURL 构建WCS 1.0.0 GetCoverage请求
// 纯函数：相同输入总是产生相同URL，bbox取8位小数，resx/resy取7位小数
func BuildQueryURL(base, coverageID string, bbox BoundingBox, resM int) (string, error) {
	step, err := AngularStepDegrees(resM)
	if err != nil {
		return "", err
	}

	params := []string{
		"request=GetCoverage",
		"service=WCS",
		"version=1.0.0",
		"coverage=" + url.QueryEscape(coverageID),
		"crs=" + url.QueryEscape("EPSG:4326"),
		"bbox=" + bbox.String(),
		fmt.Sprintf("resx=%.7f", step),
		fmt.Sprintf("resy=%.7f", step),
		"format=GeoTIFF",
	}
	return base + "?" + strings.Join(params, "&"), nil
}
