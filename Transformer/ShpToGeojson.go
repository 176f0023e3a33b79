package Transformer

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"gitee.com/LJ_COOL/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// SplitPoints 按parts索引把点集切分为独立的环
func SplitPoints(points []shp.Point, parts []int32) [][]shp.Point {
	var rings [][]shp.Point
	for i, partIndex := range parts {
		start := partIndex
		var end int32
		if i < len(parts)-1 {
			end = parts[i+1]
		} else {
			end = int32(len(points))
		}
		rings = append(rings, points[start:end])
	}
	return rings
}

// IsClockwise 顺时针的环是外环（shapefile约定）
func IsClockwise(points []orb.Point) bool {
	sum := 0.0
	for i := 0; i < len(points)-1; i++ {
		p1 := points[i]
		p2 := points[i+1]
		sum += (p2[0] - p1[0]) * (p2[1] + p1[1])
	}
	return sum > 0
}

// groupRings 按外环/内环标记把环索引分组，每组构成一个完整多边形
func groupRings(count int, outer []bool) [][]int {
	var result [][]int
	var current []int
	started := false
	for i := 0; i < count; i++ {
		if outer[i] {
			if started {
				result = append(result, current)
			}
			current = []int{i}
			started = true
		} else if started {
			current = append(current, i)
		}
	}
	if len(current) > 0 {
		result = append(result, current)
	}
	return result
}

// latin1ToUtf8 INEGI的DBF属性多为Latin-1编码
func latin1ToUtf8(s string) string {
	reader := transform.NewReader(bytes.NewReader([]byte(s)), charmap.ISO8859_1.NewDecoder())
	d, err := io.ReadAll(reader)
	if err != nil {
		return s
	}
	return string(d)
}

// detectCRS 根据坐标量级粗判坐标系
// 经纬度范围内返回4326；UTM量级的平面坐标无法从数值推断分带，返回空串由调用方显式指定
func detectCRS(x float64) string {
	switch {
	case x >= -180 && x <= 180:
		return "4326"
	default:
		return ""
	}
}

// buildAttributes 读取一条记录的DBF属性
func buildAttributes(n int, reader *shp.Reader, fields []shp.Field) map[string]interface{} {
	attrs := make(map[string]interface{})
	for k, f := range fields {
		name := latin1ToUtf8(strings.TrimRight(f.String(), "\x00"))
		attrs[name] = latin1ToUtf8(reader.ReadAttribute(n, k))
	}
	if len(fields) == 0 {
		attrs["attribute"] = "null"
	}
	return attrs
}

// polygonFromShape 把shapefile多边形记录转换为orb.MultiPolygon
func polygonFromShape(points []shp.Point, parts []int32, detected map[string]bool) orb.MultiPolygon {
	rings := SplitPoints(points, parts)

	outer := make([]bool, len(rings))
	for i, ring := range rings {
		orbPoints := make([]orb.Point, len(ring))
		for j, pt := range ring {
			orbPoints[j] = orb.Point{pt.X, pt.Y}
		}
		outer[i] = IsClockwise(orbPoints)
	}

	var multi orb.MultiPolygon
	for _, group := range groupRings(len(rings), outer) {
		var poly orb.Polygon
		for _, i := range group {
			coords := make([]orb.Point, len(rings[i]))
			for j, pt := range rings[i] {
				if crs := detectCRS(pt.X); crs != "" {
					detected[crs] = true
				}
				coords[j] = orb.Point{pt.X, pt.Y}
			}
			poly = append(poly, orb.Ring(coords))
		}
		multi = append(multi, poly)
	}
	return multi
}

// ConvertSHPToGeoJSON 读取shapefile为FeatureCollection并返回探测到的坐标系代码
// 只保留面要素，点线被跳过（下载流水线只消费多边形）
func ConvertSHPToGeoJSON(shpPath string) (*geojson.FeatureCollection, string, error) {
	shape, err := shp.Open(shpPath)
	if err != nil {
		return nil, "", fmt.Errorf("打开shapefile失败: %w", err)
	}
	defer shape.Close()

	fc := geojson.NewFeatureCollection()
	fields := shape.Fields()
	detected := make(map[string]bool)

	for shape.Next() {
		n, p := shape.Shape()

		var multi orb.MultiPolygon
		switch s := p.(type) {
		case *shp.Polygon:
			multi = polygonFromShape(s.Points, s.Parts, detected)
		case *shp.PolygonZ:
			multi = polygonFromShape(s.Points, s.Parts, detected)
		case *shp.PolygonM:
			multi = polygonFromShape(s.Points, s.Parts, detected)
		default:
			continue
		}

		feature := geojson.NewFeature(multi)
		feature.Properties = buildAttributes(n, shape, fields)
		fc.Append(feature)
	}

	crs := ""
	if detected["4326"] {
		crs = "4326"
	}
	return fc, crs, nil
}
