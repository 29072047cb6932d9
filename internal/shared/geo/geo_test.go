package geo

import (
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	points := []Point{
		{Lon: -74.0060, Lat: 40.7128},
		{Lon: -74.0055, Lat: 40.7133},
		{Lon: -74.0040, Lat: 40.7148},
		{Lon: 106.8166666666667, Lat: -6.2},
	}

	wkt, err := EncodeLineString(points)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeLineString(wkt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(points) {
		t.Fatalf("expected %d points, got %d", len(points), len(decoded))
	}
	for i := range points {
		if decoded[i] != points[i] {
			t.Fatalf("point %d: expected %v, got %v", i, points[i], decoded[i])
		}
	}
}

func TestDecodeWithoutSRIDPrefix(t *testing.T) {
	decoded, err := DecodeLineString("LINESTRING(0 0, 1 1)")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 2 || decoded[1] != (Point{Lon: 1, Lat: 1}) {
		t.Fatalf("unexpected points: %v", decoded)
	}
}

func TestEncodeTooFewPoints(t *testing.T) {
	if _, err := EncodeLineString(nil); !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("expected invalid geometry, got %v", err)
	}
	if _, err := EncodeLineString([]Point{{Lon: 1, Lat: 1}}); !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("expected invalid geometry for single point, got %v", err)
	}
}

func TestEncodeBounds(t *testing.T) {
	boundary := []Point{
		{Lon: -180, Lat: -90},
		{Lon: 180, Lat: 90},
	}
	if _, err := EncodeLineString(boundary); err != nil {
		t.Fatalf("boundary coordinates must be accepted: %v", err)
	}

	cases := [][]Point{
		{{Lon: -180.0001, Lat: 0}, {Lon: 0, Lat: 0}},
		{{Lon: 180.0001, Lat: 0}, {Lon: 0, Lat: 0}},
		{{Lon: 0, Lat: -90.0001}, {Lon: 0, Lat: 0}},
		{{Lon: 0, Lat: 90.0001}, {Lon: 0, Lat: 0}},
	}
	for _, points := range cases {
		if _, err := EncodeLineString(points); !errors.Is(err, ErrInvalidGeometry) {
			t.Fatalf("expected out-of-range rejection for %v", points[0])
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{
		"POINT(1 1)",
		"SRID=4326LINESTRING(0 0, 1 1)",
		"LINESTRING(0 0)",
		"LINESTRING(0, 1 1)",
		"LINESTRING(a b, 1 1)",
	}
	for _, wkt := range cases {
		if _, err := DecodeLineString(wkt); !errors.Is(err, ErrInvalidGeometry) {
			t.Fatalf("expected decode failure for %q", wkt)
		}
	}
}

func TestFromPairs(t *testing.T) {
	points, err := FromPairs([][]float64{{1, 2}, {3, 4}})
	if err != nil {
		t.Fatalf("from pairs: %v", err)
	}
	if points[0] != (Point{Lon: 1, Lat: 2}) {
		t.Fatalf("unexpected point: %v", points[0])
	}

	if _, err := FromPairs([][]float64{{1}}); !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("expected shape error")
	}
	if _, err := FromPairs([][]float64{{200, 0}}); !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("expected bounds error")
	}

	back := Pairs(points)
	if len(back) != 2 || back[1][0] != 3 || back[1][1] != 4 {
		t.Fatalf("unexpected pairs: %v", back)
	}
}
