package cem

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestBBox4326Identity(t *testing.T) {
	poly := orb.Polygon{{{-99.2, 19.3}, {-99.1, 19.3}, {-99.1, 19.4}, {-99.2, 19.4}, {-99.2, 19.3}}}

	for _, code := range []string{"", "4326", "EPSG:4326", "epsg:4326"} {
		bbox, err := BBox4326FromGeometry(poly, code)
		if err != nil {
			t.Fatalf("BBox4326FromGeometry(%q) unexpected error: %v", code, err)
		}
		want := BoundingBox{MinX: -99.2, MinY: 19.3, MaxX: -99.1, MaxY: 19.4}
		if bbox != want {
			t.Errorf("BBox4326FromGeometry(%q) = %+v; want %+v", code, bbox, want)
		}
	}
}

// 先正算Web墨卡托，再验证反算能还原经纬度
func TestMercatorRoundTrip(t *testing.T) {
	tests := []struct {
		lon, lat float64
	}{
		{-99.1332, 19.4326},  // 墨西哥城
		{-103.3496, 20.6597}, // 瓜达拉哈拉
		{-86.8515, 21.1619},  // 坎昆
	}

	for _, tt := range tests {
		x := tt.lon / 180.0 * originShift
		y := earthRadius * math.Log(math.Tan(math.Pi/4+tt.lat*math.Pi/360.0))

		lon, lat := mercatorToLonLat(x, y)
		if math.Abs(lon-tt.lon) > 1e-6 || math.Abs(lat-tt.lat) > 1e-6 {
			t.Errorf("mercatorToLonLat(%v, %v) = (%v, %v); want (%v, %v)", x, y, lon, lat, tt.lon, tt.lat)
		}
	}
}

func TestUTMInverseCentralMeridian(t *testing.T) {
	// 中央子午线上easting恒为500000，反算经度应精确等于分带中央经线
	tests := []struct {
		zone    int
		wantLon float64
	}{
		{11, -117},
		{13, -105},
		{14, -99},
		{16, -87},
	}

	for _, tt := range tests {
		lon, lat := utmInverse(500000, 2147000, tt.zone)
		if math.Abs(lon-tt.wantLon) > 1e-9 {
			t.Errorf("zone %d: lon = %v; want %v", tt.zone, lon, tt.wantLon)
		}
		if lat < 15 || lat > 25 {
			t.Errorf("zone %d: lat = %v; want within Mexico latitudes", tt.zone, lat)
		}
	}
}

func TestUTMInverseKnownPoint(t *testing.T) {
	// 墨西哥城大致位于14区 (486000E, 2148000N)，反算应落在城区范围
	lon, lat := utmInverse(486000, 2148000, 14)
	if math.Abs(lon-(-99.13)) > 0.05 {
		t.Errorf("lon = %v; want about -99.13", lon)
	}
	if math.Abs(lat-19.43) > 0.05 {
		t.Errorf("lat = %v; want about 19.43", lat)
	}
}

func TestBBox4326UnknownEPSG(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	_, err := BBox4326FromGeometry(poly, "2154")
	if err == nil {
		t.Fatal("expected error for unsupported EPSG code")
	}
	var projErr *ProjectionError
	if !errors.As(err, &projErr) {
		t.Errorf("error type = %T; want *ProjectionError", err)
	}
}

func TestBBox4326MultiPolygon(t *testing.T) {
	mp := orb.MultiPolygon{
		{{{-99.2, 19.3}, {-99.1, 19.3}, {-99.1, 19.4}, {-99.2, 19.3}}},
		{{{-99.5, 19.0}, {-99.4, 19.0}, {-99.4, 19.1}, {-99.5, 19.0}}},
	}
	bbox, err := BBox4326FromGeometry(mp, "4326")
	if err != nil {
		t.Fatal(err)
	}
	want := BoundingBox{MinX: -99.5, MinY: 19.0, MaxX: -99.1, MaxY: 19.4}
	if bbox != want {
		t.Errorf("bbox = %+v; want %+v", bbox, want)
	}
}

func TestReprojectPolygonUnknownEPSG(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {1, 1}, {0, 1}, {0, 0}}}
	if _, err := ReprojectPolygonTo4326(poly, "99999"); err == nil {
		t.Fatal("expected error for unsupported EPSG code")
	}
}
