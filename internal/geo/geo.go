package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/kavach/opsengine/pkg/core"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

var to3857 = wgs84.EPSG().Transform(4326, 3857)

// PlanarDistance is the Euclidean separation of two positions measured
// directly in (lat, lng) degrees. It ignores earth curvature and the
// shrinking of longitude degrees away from the equator, which is acceptable
// across a single mine site.
func PlanarDistance(a, b core.Position) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng)
}

// WebMercator projects a WGS84 position to an EPSG:3857 point.
func WebMercator(p core.Position) geom.Point {
	x, y, _ := to3857(p.Lng, p.Lat, 0)
	return geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
		},
	)
}

// ApproxMeters estimates the ground distance between two nearby positions
// by measuring in web mercator and correcting for its scale at the mean latitude.
func ApproxMeters(a, b core.Position) float64 {
	d, ok := geom.Distance(WebMercator(a).AsGeometry(), WebMercator(b).AsGeometry())
	if !ok {
		return 0
	}
	midLat := (a.Lat + b.Lat) / 2 * math.Pi / 180
	return d * math.Cos(midLat)
}

// PositionFromString parses a "lat,lng" string.
func PositionFromString(coords string) (core.Position, error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return core.Position{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.Position{}, ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.Position{}, ErrInvalidCoordinates
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return core.Position{}, ErrInvalidCoordinates
	}
	return core.Position{Lat: lat, Lng: lng}, nil
}
