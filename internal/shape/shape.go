// Package shape provides the geometry collaborator used by the query
// engine and loading pipeline: enumerating grid cells that overlap a
// named region, computing a region's bounding box, and exact
// point-in-region tests. Geometries are loaded from GeoJSON feature
// collections keyed by a "name" property.
package shape

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

// Shape answers spatial membership questions about a set of named
// regions. An empty region name addresses the union of all regions.
type Shape interface {
	// HasRegion reports whether a region with the given name exists.
	HasRegion(region string) bool
	// Bound returns the lat/lng bounding box of a region.
	Bound(region string) (minLat, maxLat, minLng, maxLng float64, err error)
	// ContainsPoint reports whether a point lies inside a region.
	ContainsPoint(lat, lng float64, region string) (bool, error)
	// CellsInRegion enumerates grid cells at the given resolution whose
	// centers fall inside the region or within bufferDeg degrees of it.
	CellsInRegion(resolution int, bufferDeg float64, region string) ([]string, error)
}

// GeoJSONShape is a Shape backed by a GeoJSON feature collection.
type GeoJSONShape struct {
	features []*geojson.Feature
}

// LoadGeoJSON reads a feature collection from a file.
func LoadGeoJSON(path string) (*GeoJSONShape, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geojson file %s: %w", path, err)
	}
	return ParseGeoJSON(data)
}

// ParseGeoJSON parses a feature collection from raw bytes.
func ParseGeoJSON(data []byte) (*GeoJSONShape, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, geoerr.Wrap(geoerr.KindWrongFileType, err, "failed to parse geojson")
	}
	if len(fc.Features) == 0 {
		return nil, geoerr.New(geoerr.KindWrongFileType, "geojson contains no features")
	}
	return &GeoJSONShape{features: fc.Features}, nil
}

// RegionNames returns the distinct feature names in file order.
func (s *GeoJSONShape) RegionNames() []string {
	var names []string
	seen := map[string]bool{}
	for _, f := range s.features {
		name := featureName(f)
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func featureName(f *geojson.Feature) string {
	if v, ok := f.Properties["name"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// HasRegion reports whether any feature carries the given name.
func (s *GeoJSONShape) HasRegion(region string) bool {
	if region == "" {
		return true
	}
	for _, f := range s.features {
		if featureName(f) == region {
			return true
		}
	}
	return false
}

func (s *GeoJSONShape) regionGeometries(region string) ([]orb.Geometry, error) {
	var geoms []orb.Geometry
	for _, f := range s.features {
		if region == "" || featureName(f) == region {
			geoms = append(geoms, f.Geometry)
		}
	}
	if len(geoms) == 0 {
		return nil, geoerr.New(geoerr.KindNotFound, "region %q not found in shapefile", region)
	}
	return geoms, nil
}

// Bound returns the lat/lng bounding box covering every geometry of
// the region.
func (s *GeoJSONShape) Bound(region string) (minLat, maxLat, minLng, maxLng float64, err error) {
	geoms, err := s.regionGeometries(region)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	bound := geoms[0].Bound()
	for _, g := range geoms[1:] {
		bound = bound.Union(g.Bound())
	}
	// orb points are (lng, lat).
	return bound.Min[1], bound.Max[1], bound.Min[0], bound.Max[0], nil
}

// ContainsPoint reports whether the point lies inside any geometry of
// the region.
func (s *GeoJSONShape) ContainsPoint(lat, lng float64, region string) (bool, error) {
	geoms, err := s.regionGeometries(region)
	if err != nil {
		return false, err
	}
	pt := orb.Point{lng, lat}
	for _, g := range geoms {
		if geometryContains(g, pt) {
			return true, nil
		}
	}
	return false, nil
}

func geometryContains(g orb.Geometry, pt orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, pt)
	case orb.Collection:
		for _, sub := range geom {
			if geometryContains(sub, pt) {
				return true
			}
		}
	}
	return false
}

// CellsInRegion enumerates cells at the resolution whose centers are
// inside the region or within bufferDeg degrees of its boundary. The
// candidate set comes from filling the buffered bounding box, then each
// candidate's center is tested exactly.
func (s *GeoJSONShape) CellsInRegion(resolution int, bufferDeg float64, region string) ([]string, error) {
	if !hexgrid.ValidResolution(resolution) {
		return nil, geoerr.New(geoerr.KindInvalidArgument,
			"resolution %d out of range", resolution)
	}
	geoms, err := s.regionGeometries(region)
	if err != nil {
		return nil, err
	}
	minLat, maxLat, minLng, maxLng, err := s.Bound(region)
	if err != nil {
		return nil, err
	}
	candidates, err := hexgrid.CellsInBound(
		minLat-bufferDeg, maxLat+bufferDeg,
		minLng-bufferDeg, maxLng+bufferDeg, resolution)
	if err != nil {
		return nil, err
	}

	var cells []string
	for _, cell := range candidates {
		lat, lng, err := hexgrid.CellToLatLng(cell)
		if err != nil {
			return nil, err
		}
		pt := orb.Point{lng, lat}
		for _, g := range geoms {
			if geometryContains(g, pt) || planar.DistanceFrom(g, pt) <= bufferDeg {
				cells = append(cells, cell)
				break
			}
		}
	}
	return cells, nil
}
