package shape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

// Two squares on either side of the prime meridian.
const twoRegions = `{
	"type": "FeatureCollection",
	"features": [
		{
			"type": "Feature",
			"properties": {"name": "west"},
			"geometry": {
				"type": "Polygon",
				"coordinates": [[[-10, 40], [-2, 40], [-2, 48], [-10, 48], [-10, 40]]]
			}
		},
		{
			"type": "Feature",
			"properties": {"name": "east"},
			"geometry": {
				"type": "Polygon",
				"coordinates": [[[2, 40], [10, 40], [10, 48], [2, 48], [2, 40]]]
			}
		}
	]
}`

func testShape(t *testing.T) *GeoJSONShape {
	t.Helper()
	s, err := ParseGeoJSON([]byte(twoRegions))
	require.NoError(t, err)
	return s
}

func TestParseGeoJSONErrors(t *testing.T) {
	_, err := ParseGeoJSON([]byte("not json"))
	assert.Equal(t, geoerr.KindWrongFileType, geoerr.KindOf(err))

	_, err = ParseGeoJSON([]byte(`{"type": "FeatureCollection", "features": []}`))
	assert.Equal(t, geoerr.KindWrongFileType, geoerr.KindOf(err))
}

func TestRegionNames(t *testing.T) {
	s := testShape(t)
	assert.Equal(t, []string{"west", "east"}, s.RegionNames())
	assert.True(t, s.HasRegion("west"))
	assert.True(t, s.HasRegion(""))
	assert.False(t, s.HasRegion("north"))
}

func TestBound(t *testing.T) {
	s := testShape(t)

	minLat, maxLat, minLng, maxLng, err := s.Bound("west")
	require.NoError(t, err)
	assert.Equal(t, 40.0, minLat)
	assert.Equal(t, 48.0, maxLat)
	assert.Equal(t, -10.0, minLng)
	assert.Equal(t, -2.0, maxLng)

	// Empty region covers the union of all features.
	minLat, maxLat, minLng, maxLng, err = s.Bound("")
	require.NoError(t, err)
	assert.Equal(t, 40.0, minLat)
	assert.Equal(t, 48.0, maxLat)
	assert.Equal(t, -10.0, minLng)
	assert.Equal(t, 10.0, maxLng)

	_, _, _, _, err = s.Bound("north")
	assert.Equal(t, geoerr.KindNotFound, geoerr.KindOf(err))
}

func TestContainsPoint(t *testing.T) {
	s := testShape(t)

	in, err := s.ContainsPoint(44, -6, "west")
	require.NoError(t, err)
	assert.True(t, in)

	in, err = s.ContainsPoint(44, 6, "west")
	require.NoError(t, err)
	assert.False(t, in)

	// Union of regions.
	in, err = s.ContainsPoint(44, 6, "")
	require.NoError(t, err)
	assert.True(t, in)

	// Gap between the squares.
	in, err = s.ContainsPoint(44, 0, "")
	require.NoError(t, err)
	assert.False(t, in)
}

func TestCellsInRegion(t *testing.T) {
	s := testShape(t)

	buffer, err := hexgrid.BufferDegrees(3)
	require.NoError(t, err)

	cells, err := s.CellsInRegion(3, buffer, "west")
	require.NoError(t, err)
	require.NotEmpty(t, cells)

	// Every returned cell center is inside or near the region box.
	for _, cell := range cells {
		lat, lng, err := hexgrid.CellToLatLng(cell)
		require.NoError(t, err)
		assert.InDelta(t, 44, lat, 4+2*buffer)
		assert.InDelta(t, -6, lng, 4+2*buffer)
	}

	// The cell containing the region center is always included.
	center, err := hexgrid.CellFromLatLng(44, -6, 3)
	require.NoError(t, err)
	assert.Contains(t, cells, center)

	_, err = s.CellsInRegion(99, buffer, "west")
	assert.Equal(t, geoerr.KindInvalidArgument, geoerr.KindOf(err))
}
