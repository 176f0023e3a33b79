package cem

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

const (
	earthRadius = 6378137.0
	originShift = math.Pi * earthRadius // 20037508.342789244
)

type pointTransform func(x, y float64) (float64, float64)

// normalizeEPSG 统一"EPSG:4326"/"epsg:4326"/"4326"写法
func normalizeEPSG(code string) string {
	code = strings.TrimSpace(strings.ToUpper(code))
	code = strings.TrimPrefix(code, "EPSG:")
	return code
}

// transformTo4326 返回源坐标系到EPSG:4326的点转换函数
// 支持：4326本身、3857 Web墨卡托、32611-32616（墨西哥境内WGS84 UTM分带）
func transformTo4326(srcEPSG string) (pointTransform, error) {
	code := normalizeEPSG(srcEPSG)
	switch code {
	case "", "4326":
		return func(x, y float64) (float64, float64) { return x, y }, nil
	case "3857", "900913":
		return mercatorToLonLat, nil
	case "32611", "32612", "32613", "32614", "32615", "32616":
		zone, _ := strconv.Atoi(code[3:])
		return func(x, y float64) (float64, float64) {
			return utmInverse(x, y, zone)
		}, nil
	default:
		return nil, &ProjectionError{SrcEPSG: srcEPSG, Detail: "该坐标系对到4326没有定义的转换"}
	}
}

// mercatorToLonLat Web墨卡托反算经纬度
func mercatorToLonLat(x, y float64) (float64, float64) {
	lon := x / originShift * 180.0
	lat := math.Atan(math.Sinh(y/earthRadius)) * 180.0 / math.Pi
	return lon, lat
}

// utmInverse WGS84北半球UTM反算经纬度（标准子午线弧长展开式）
func utmInverse(easting, northing float64, zone int) (float64, float64) {
	const a = 6378137.0
	const f = 1.0 / 298.257223563
	const k0 = 0.9996

	e2 := f * (2 - f)
	ep2 := e2 / (1 - e2)
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	x := easting - 500000.0
	m := northing / k0
	mu := m / (a * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))

	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sin1 := math.Sin(phi1)
	cos1 := math.Cos(phi1)
	tan1 := math.Tan(phi1)

	c1 := ep2 * cos1 * cos1
	t1 := tan1 * tan1
	n1 := a / math.Sqrt(1-e2*sin1*sin1)
	r1 := a * (1 - e2) / math.Pow(1-e2*sin1*sin1, 1.5)
	d := x / (n1 * k0)

	latRad := phi1 - (n1*tan1/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)

	lon0 := float64(zone)*6.0 - 183.0
	lonRad := (d - (1+2*t1+c1)*math.Pow(d, 3)/6 +
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120) / cos1

	return lon0 + lonRad*180.0/math.Pi, latRad * 180.0 / math.Pi
}

// ReprojectPolygonTo4326 将单个多边形转换到EPSG:4326
func ReprojectPolygonTo4326(poly orb.Polygon, srcEPSG string) (orb.Polygon, error) {
	tf, err := transformTo4326(srcEPSG)
	if err != nil {
		return nil, err
	}
	out := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		newRing := make(orb.Ring, len(ring))
		for j, pt := range ring {
			x, y := tf(pt[0], pt[1])
			newRing[j] = orb.Point{x, y}
		}
		out[i] = newRing
	}
	return out, nil
}

// BBox4326FromGeometry 先转换坐标再计算轴对齐边界框
// 不处理反子午线与极区的特殊情况
func BBox4326FromGeometry(geom orb.Geometry, srcEPSG string) (BoundingBox, error) {
	tf, err := transformTo4326(srcEPSG)
	if err != nil {
		return BoundingBox{}, err
	}

	bbox := BoundingBox{MinX: 180, MinY: 90, MaxX: -180, MaxY: -90}
	extend := func(x, y float64) {
		lon, lat := tf(x, y)
		bbox.MinX = math.Min(bbox.MinX, lon)
		bbox.MaxX = math.Max(bbox.MaxX, lon)
		bbox.MinY = math.Min(bbox.MinY, lat)
		bbox.MaxY = math.Max(bbox.MaxY, lat)
	}

	switch g := geom.(type) {
	case orb.Polygon:
		for _, ring := range g {
			for _, pt := range ring {
				extend(pt[0], pt[1])
			}
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			for _, ring := range poly {
				for _, pt := range ring {
					extend(pt[0], pt[1])
				}
			}
		}
	default:
		// 其余几何类型用原始包围盒的四角
		b := geom.Bound()
		extend(b.Min[0], b.Min[1])
		extend(b.Max[0], b.Min[1])
		extend(b.Max[0], b.Max[1])
		extend(b.Min[0], b.Max[1])
	}
	return bbox, nil
}
