package cem

import (
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// WriteSinglePolygonMask 将单个多边形重投影到EPSG:4326后写出为单要素GeoJSON掩膜
// 掩膜只带一个整数id属性，供外部裁剪操作作为cutline使用
func WriteSinglePolygonMask(poly orb.Polygon, srcEPSG string, outPath string) error {
	poly4326, err := ReprojectPolygonTo4326(poly, srcEPSG)
	if err != nil {
		return err
	}

	fc := geojson.NewFeatureCollection()
	feat := geojson.NewFeature(poly4326)
	feat.Properties = geojson.Properties{"id": 1}
	fc.Append(feat)

	data, err := fc.MarshalJSON()
	if err != nil {
		return &MaskWriteError{Path: outPath, Detail: err.Error()}
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return &MaskWriteError{Path: outPath, Detail: err.Error()}
	}
	return nil
}
