package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidGeometry covers out-of-range coordinates and too-short paths.
// Returned errors wrap it so callers can classify with errors.Is.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Point is a WGS84 coordinate pair.
type Point struct {
	Lon float64
	Lat float64
}

const sridPrefix = "SRID=4326;"

func ValidatePoint(lon, lat float64) error {
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180, got %v", ErrInvalidGeometry, lon)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90, got %v", ErrInvalidGeometry, lat)
	}
	return nil
}

// EncodeLineString renders an ordered point sequence as EWKT, the form
// Postgres accepts through ST_GeomFromEWKT. Point order is preserved
// exactly; no deduplication or simplification happens here.
func EncodeLineString(points []Point) (string, error) {
	if len(points) < 2 {
		return "", fmt.Errorf("%w: linestring needs at least 2 points, got %d", ErrInvalidGeometry, len(points))
	}

	var b strings.Builder
	b.WriteString(sridPrefix)
	b.WriteString("LINESTRING(")
	for i, p := range points {
		if err := ValidatePoint(p.Lon, p.Lat); err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(formatCoord(p.Lon))
		b.WriteByte(' ')
		b.WriteString(formatCoord(p.Lat))
	}
	b.WriteByte(')')
	return b.String(), nil
}

// DecodeLineString parses WKT or EWKT LINESTRING text as produced by
// EncodeLineString or by ST_AsText. It is the exact inverse of encoding:
// coordinates are formatted with the shortest round-tripping representation,
// so decode(encode(p)) == p for every float64.
func DecodeLineString(wkt string) ([]Point, error) {
	s := strings.TrimSpace(wkt)
	if strings.HasPrefix(s, "SRID=") {
		i := strings.IndexByte(s, ';')
		if i < 0 {
			return nil, fmt.Errorf("%w: malformed EWKT %q", ErrInvalidGeometry, wkt)
		}
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "LINESTRING(") || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("%w: expected LINESTRING, got %q", ErrInvalidGeometry, wkt)
	}
	body := s[len("LINESTRING(") : len(s)-1]

	pairs := strings.Split(body, ",")
	if len(pairs) < 2 {
		return nil, fmt.Errorf("%w: linestring needs at least 2 points, got %d", ErrInvalidGeometry, len(pairs))
	}

	points := make([]Point, 0, len(pairs))
	for _, pair := range pairs {
		fields := strings.Fields(pair)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: malformed coordinate pair %q", ErrInvalidGeometry, pair)
		}
		lon, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad longitude %q", ErrInvalidGeometry, fields[0])
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad latitude %q", ErrInvalidGeometry, fields[1])
		}
		points = append(points, Point{Lon: lon, Lat: lat})
	}
	return points, nil
}

// FromPairs converts the wire representation ([[lon,lat], ...]) into points,
// validating shape and bounds before anything touches the store.
func FromPairs(pairs [][]float64) ([]Point, error) {
	points := make([]Point, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: each point must be [longitude, latitude]", ErrInvalidGeometry)
		}
		if err := ValidatePoint(pair[0], pair[1]); err != nil {
			return nil, err
		}
		points = append(points, Point{Lon: pair[0], Lat: pair[1]})
	}
	return points, nil
}

// Pairs is the inverse of FromPairs.
func Pairs(points []Point) [][]float64 {
	pairs := make([][]float64, 0, len(points))
	for _, p := range points {
		pairs = append(pairs, []float64{p.Lon, p.Lat})
	}
	return pairs
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
