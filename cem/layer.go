package cem

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// VectorLayer 多边形输入图层的能力集合
// 几何归调用方所有，这里只读取
type VectorLayer interface {
	Name() string
	EPSG() string
	FeatureCollection() *geojson.FeatureCollection
}

// MemoryLayer 内存图层，GeoJSON与shapefile输入统一走这里
type MemoryLayer struct {
	LayerName string
	Code      string
	FC        *geojson.FeatureCollection
}

func (l *MemoryLayer) Name() string {
	return l.LayerName
}

func (l *MemoryLayer) EPSG() string {
	return l.Code
}

func (l *MemoryLayer) FeatureCollection() *geojson.FeatureCollection {
	return l.FC
}

// ExplodeToSingleParts 将多部件要素拆分为单部件多边形，每个部件是一个独立工作单元
// 非面要素被忽略
func ExplodeToSingleParts(fc *geojson.FeatureCollection) []orb.Polygon {
	if fc == nil {
		return nil
	}
	var out []orb.Polygon
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			out = append(out, g)
		case orb.MultiPolygon:
			for _, poly := range g {
				out = append(out, poly)
			}
		}
	}
	return out
}
