// Package hexgrid provides pure utilities for the hierarchical hexagonal
// grid that every dataset in HexMesh is indexed by: cell derivation from
// coordinates, per-resolution size tables, minimum-radius and buffer
// computation, and cell enumeration for regions and bounding boxes.
package hexgrid

import (
	"fmt"
	"math"

	h3 "github.com/uber/h3-go/v3"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
)

// Canonical column names shared by stores, queries and loaders.
const (
	CellCol      = "cell"
	LatitudeCol  = "latitude"
	LongitudeCol = "longitude"
	YearCol      = "year"
	MonthCol     = "month"
	DayCol       = "day"
)

const (
	// MinResolution and MaxResolution bound the grid hierarchy.
	MinResolution = 0
	MaxResolution = 15

	// EarthRadiusKM is the spherical-earth radius used for all
	// great-circle math.
	EarthRadiusKM = 6371

	// EarthCircumferenceKM marks the radius beyond which a radius query
	// degenerates to an unfiltered scan.
	EarthCircumferenceKM = 40075

	// KMPerDegree approximates one degree of arc at the equator.
	KMPerDegree = 110
)

// CellCounts holds the total number of cells at each resolution.
var CellCounts = [16]int64{
	122,
	842,
	5882,
	41162,
	288122,
	2016842,
	14117882,
	98825162,
	691776122,
	4842432842,
	33897029882,
	237279209162,
	1660954464122,
	11626681248842,
	81386768741882,
	569707381193162,
}

// AreaKM2 holds the mean cell area in square kilometers at each resolution.
var AreaKM2 = [16]float64{
	4357449.42,
	609788.44,
	86801.78,
	12393.43,
	1770.35,
	252.90,
	36.129,
	5.161293360,
	0.737327598,
	0.105332513,
	0.015047502,
	0.002149643,
	0.000307092,
	0.000043870,
	0.000006267,
	0.000000895,
}

// ValidResolution reports whether res is a usable grid resolution.
func ValidResolution(res int) bool {
	return res >= MinResolution && res <= MaxResolution
}

// CellFromLatLng returns the cell containing (lat, lng) at the given
// resolution.
func CellFromLatLng(lat, lng float64, res int) (string, error) {
	if !ValidResolution(res) {
		return "", geoerr.New(geoerr.KindInvalidArgument,
			"resolution must be between %d and %d, got %d",
			MinResolution, MaxResolution, res)
	}
	return h3.ToString(h3.FromGeo(h3.GeoCoord{Latitude: lat, Longitude: lng}, res)), nil
}

// CellToLatLng returns the center coordinates of a cell.
func CellToLatLng(cell string) (lat, lng float64, err error) {
	idx, err := parseCell(cell)
	if err != nil {
		return 0, 0, err
	}
	geo := h3.ToGeo(idx)
	return geo.Latitude, geo.Longitude, nil
}

// CellResolution extracts the resolution encoded in a cell identifier.
func CellResolution(cell string) (int, error) {
	idx, err := parseCell(cell)
	if err != nil {
		return 0, err
	}
	return h3.Resolution(idx), nil
}

func parseCell(cell string) (h3.H3Index, error) {
	idx := h3.FromString(cell)
	if idx == 0 || !h3.IsValid(idx) {
		return 0, geoerr.New(geoerr.KindInvalidArgument,
			"%q is not a valid cell identifier", cell)
	}
	return idx, nil
}

// MinRadiusKM returns the smallest radius guaranteed to contain at least
// one cell centroid at the given resolution, regardless of where the
// query is centered. A hexagon's smallest enclosing circle has the radius
// of one side, and A = 3/2 * sqrt(3) * s^2 rearranges to the below.
func MinRadiusKM(res int) (float64, error) {
	if !ValidResolution(res) {
		return 0, geoerr.New(geoerr.KindInvalidArgument,
			"resolution must be between %d and %d, got %d",
			MinResolution, MaxResolution, res)
	}
	area := AreaKM2[res]
	return math.Sqrt(2 * area / (3 * math.Sqrt(3))), nil
}

// BufferDegrees returns the polyfill buffer, in degrees, used when
// enumerating cells that overlap a region. The buffer is 1.5x the
// characteristic cell radius so boundary cells are not missed. Below
// resolution 2 cells are so large that no buffer is applied.
func BufferDegrees(res int) (float64, error) {
	if !ValidResolution(res) {
		return 0, geoerr.New(geoerr.KindInvalidArgument,
			"resolution must be between %d and %d, got %d",
			MinResolution, MaxResolution, res)
	}
	if res < 2 {
		return 0, nil
	}
	cellRadiusKM := math.Sqrt(AreaKM2[res] / math.Pi)
	return cellRadiusKM / KMPerDegree * 1.5, nil
}

// PointResCol returns the per-resolution cell column name used by point
// and h3_index dataset tables.
func PointResCol(res int) (string, error) {
	if !ValidResolution(res) {
		return "", geoerr.New(geoerr.KindInvalidArgument,
			"resolution must be between %d and %d, got %d",
			MinResolution, MaxResolution, res)
	}
	return fmt.Sprintf("res%d", res), nil
}

// IsPointResCol reports whether a column name is a per-resolution cell
// column (res0 through res15).
func IsPointResCol(name string) bool {
	if len(name) < 4 || name[:3] != "res" {
		return false
	}
	switch rest := name[3:]; len(rest) {
	case 1:
		return rest[0] >= '0' && rest[0] <= '9'
	case 2:
		return rest[0] == '1' && rest[1] >= '0' && rest[1] <= '5'
	default:
		return false
	}
}

// AllCells enumerates every cell of the grid at the given resolution by
// descending from the 122 base cells. The result order is unspecified.
func AllCells(res int) ([]string, error) {
	if !ValidResolution(res) {
		return nil, geoerr.New(geoerr.KindInvalidArgument,
			"resolution must be between %d and %d, got %d",
			MinResolution, MaxResolution, res)
	}
	base := h3.GetRes0Indexes()
	if res == 0 {
		out := make([]string, len(base))
		for i, b := range base {
			out[i] = h3.ToString(b)
		}
		return out, nil
	}
	var out []string
	for _, b := range base {
		for _, child := range h3.ToChildren(b, res) {
			out = append(out, h3.ToString(child))
		}
	}
	return out, nil
}

// CellsInBound enumerates all cells whose polygon may overlap an
// axis-aligned lat/lng rectangle, using a polyfill of the rectangle
// padded by the resolution's buffer.
func CellsInBound(minLat, maxLat, minLng, maxLng float64, res int) ([]string, error) {
	pad, err := BufferDegrees(res)
	if err != nil {
		return nil, err
	}
	fence := []h3.GeoCoord{
		{Latitude: minLat - pad, Longitude: minLng - pad},
		{Latitude: maxLat + pad, Longitude: minLng - pad},
		{Latitude: maxLat + pad, Longitude: maxLng + pad},
		{Latitude: minLat - pad, Longitude: maxLng + pad},
	}
	cells := h3.Polyfill(h3.GeoPolygon{Geofence: fence}, res)
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = h3.ToString(c)
	}
	return out, nil
}

// DistanceKM returns the great-circle distance between two points.
func DistanceKM(lat1, lng1, lat2, lng2 float64) float64 {
	const deg = math.Pi / 180
	a := math.Sin(lat1*deg)*math.Sin(lat2*deg) +
		math.Cos(lat1*deg)*math.Cos(lat2*deg)*math.Cos((lng1-lng2)*deg)
	// Clamp against rounding outside acos's domain.
	if a > 1 {
		a = 1
	} else if a < -1 {
		a = -1
	}
	return math.Acos(a) * EarthRadiusKM
}
