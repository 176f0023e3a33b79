package cem

import (
	"strings"
	"testing"
)

func TestBoundingBoxPad(t *testing.T) {
	b := BoundingBox{MinX: -99.20, MinY: 19.30, MaxX: -99.10, MaxY: 19.40}
	p := b.Pad(0.01)

	if p.MinX != -99.21 || p.MinY != 19.29 || p.MaxX != -99.09 || p.MaxY != 19.41 {
		t.Errorf("Pad(0.01) = %+v", p)
	}
	// 原bbox不被修改
	if b.MinX != -99.20 {
		t.Error("Pad mutated the receiver")
	}
}

func TestBuildQueryURL(t *testing.T) {
	bbox := BoundingBox{MinX: -99.20, MinY: 19.30, MaxX: -99.10, MaxY: 19.40}
	step, _ := AngularStepDegrees(30)
	padded := bbox.Pad(step)

	got, err := BuildQueryURL("https://gaia.inegi.org.mx/geoserver/wcs", "cem30_workespace:cem3_r15", padded, 30)
	if err != nil {
		t.Fatalf("BuildQueryURL unexpected error: %v", err)
	}

	wantParts := []string{
		"request=GetCoverage",
		"service=WCS",
		"version=1.0.0",
		"coverage=cem30_workespace%3Acem3_r15",
		"crs=EPSG%3A4326",
		"bbox=-99.20027778,19.29972222,-99.09972222,19.40027778",
		"resx=0.0002778",
		"resy=0.0002778",
		"format=GeoTIFF",
	}
	for _, part := range wantParts {
		if !strings.Contains(got, part) {
			t.Errorf("URL missing %q:\n%s", part, got)
		}
	}
	if !strings.HasPrefix(got, "https://gaia.inegi.org.mx/geoserver/wcs?request=GetCoverage") {
		t.Errorf("unexpected URL prefix: %s", got)
	}
}

func TestBuildQueryURLDeterministic(t *testing.T) {
	bbox := BoundingBox{MinX: -103.5, MinY: 20.1, MaxX: -103.2, MaxY: 20.4}
	u1, err := BuildQueryURL("http://wcs.local", "cem", bbox, 90)
	if err != nil {
		t.Fatal(err)
	}
	u2, _ := BuildQueryURL("http://wcs.local", "cem", bbox, 90)
	if u1 != u2 {
		t.Errorf("same input produced different URLs:\n%s\n%s", u1, u2)
	}
}

func TestBuildQueryURLInvalidResolution(t *testing.T) {
	_, err := BuildQueryURL("http://wcs.local", "cem", BoundingBox{}, 45)
	if err == nil {
		t.Fatal("expected error for resolution 45")
	}
}

func TestBoundingBoxString(t *testing.T) {
	b := BoundingBox{MinX: -99.2, MinY: 19.3, MaxX: -99.1, MaxY: 19.4}
	want := "-99.20000000,19.30000000,-99.10000000,19.40000000"
	if got := b.String(); got != want {
		t.Errorf("String() = %q; want %q", got, want)
	}
}
