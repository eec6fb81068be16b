package geomesh

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/registry"
	"github.com/hexmesh-labs/hexmesh/internal/shape"
	"github.com/hexmesh-labs/hexmesh/internal/store"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

const (
	torontoLat = 43.65
	torontoLng = -79.38
	sydneyLat  = -33.87
	sydneyLng  = 151.21
)

type fixture struct {
	engine  *Engine
	catalog *store.Catalog
	reg     *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := store.NewCatalog(t.TempDir(), nil)
	require.NoError(t, err)
	reg := registry.New(cat, nil)
	return &fixture{engine: New(cat, reg, nil), catalog: cat, reg: reg}
}

// seedH3 registers a monthly h3 dataset "temp" with one table at
// resolution 1 holding a Toronto row and a Sydney row.
func (f *fixture) seedH3(t *testing.T) (torontoCell, sydneyCell string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.reg.Register(ctx, registry.Meta{
		Name:         "temp",
		Description:  "monthly temperatures",
		KeyColumns:   []registry.Column{{Name: "cell", Type: "VARCHAR"}},
		ValueColumns: []registry.Column{{Name: "temperature", Type: "DOUBLE"}},
		DatasetType:  registry.TypeH3,
		Interval:     registry.IntervalMonthly,
	}))

	st, err := f.catalog.Open(ctx, "temp")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Exec(ctx, `
		CREATE TABLE temp_1 (
			cell VARCHAR, latitude DOUBLE, longitude DOUBLE,
			year INTEGER, month INTEGER, temperature DOUBLE
		)
	`))

	torontoCell, err = hexgrid.CellFromLatLng(torontoLat, torontoLng, 1)
	require.NoError(t, err)
	sydneyCell, err = hexgrid.CellFromLatLng(sydneyLat, sydneyLng, 1)
	require.NoError(t, err)

	tLat, tLng, err := hexgrid.CellToLatLng(torontoCell)
	require.NoError(t, err)
	sLat, sLng, err := hexgrid.CellToLatLng(sydneyCell)
	require.NoError(t, err)

	require.NoError(t, st.Exec(ctx,
		"INSERT INTO temp_1 VALUES (?, ?, ?, 2020, 6, 12.5), (?, ?, ?, 2020, 6, 18.0)",
		torontoCell, tLat, tLng, sydneyCell, sLat, sLng))
	// A second time slice that queries for 2020-06 must not see.
	require.NoError(t, st.Exec(ctx,
		"INSERT INTO temp_1 VALUES (?, ?, ?, 2021, 6, 99.0)",
		torontoCell, tLat, tLng))
	return torontoCell, sydneyCell
}

// seedPoint registers a one_time point dataset "sensors" with two
// stations and per-resolution cell columns up to resolution 3.
func (f *fixture) seedPoint(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.reg.Register(ctx, registry.Meta{
		Name:         "sensors",
		Description:  "sensor readings",
		ValueColumns: []registry.Column{{Name: "reading", Type: "DOUBLE"}},
		DatasetType:  registry.TypePoint,
		Interval:     registry.IntervalOneTime,
	}))

	st, err := f.catalog.Open(ctx, "sensors")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Exec(ctx, `
		CREATE TABLE sensors (
			res0 VARCHAR, res1 VARCHAR, res2 VARCHAR, res3 VARCHAR,
			latitude DOUBLE, longitude DOUBLE, reading DOUBLE
		)
	`))
	for _, p := range []struct {
		lat, lng, reading float64
	}{
		{torontoLat, torontoLng, 1.5},
		{sydneyLat, sydneyLng, 7.25},
	} {
		args := make([]any, 0, 7)
		for res := 0; res <= 3; res++ {
			cell, err := hexgrid.CellFromLatLng(p.lat, p.lng, res)
			require.NoError(t, err)
			args = append(args, cell)
		}
		args = append(args, p.lat, p.lng, p.reading)
		require.NoError(t, st.Exec(ctx,
			"INSERT INTO sensors VALUES (?, ?, ?, ?, ?, ?, ?)", args...))
	}
}

func june2020() TimeArgs {
	return TimeArgs{Year: Int(2020), Month: Int(6)}
}

func TestPointAndCellQuery(t *testing.T) {
	f := newFixture(t)
	torontoCell, _ := f.seedH3(t)
	ctx := context.Background()

	rows, err := f.engine.PointQuery(ctx, "temp", torontoLat, torontoLng, 1, june2020())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, torontoCell, rows[0].Cell)
	assert.Equal(t, map[string]any{"temperature": 12.5}, rows[0].Values)

	rows, err = f.engine.CellQuery(ctx, "temp", torontoCell, june2020())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 12.5, rows[0].Values["temperature"])
}

func TestTimeFilterRequirements(t *testing.T) {
	f := newFixture(t)
	torontoCell, _ := f.seedH3(t)
	ctx := context.Background()

	// Monthly interval needs both year and month.
	_, err := f.engine.CellQuery(ctx, "temp", torontoCell, TimeArgs{})
	assert.Equal(t, geoerr.KindIntervalInvalid, geoerr.KindOf(err))

	_, err = f.engine.CellQuery(ctx, "temp", torontoCell, TimeArgs{Year: Int(2020)})
	assert.Equal(t, geoerr.KindIntervalInvalid, geoerr.KindOf(err))

	// Different time slices see different rows.
	rows, err := f.engine.CellQuery(ctx, "temp", torontoCell,
		TimeArgs{Year: Int(2021), Month: Int(6)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 99.0, rows[0].Values["temperature"])
}

func TestRadiusQuery(t *testing.T) {
	f := newFixture(t)
	torontoCell, _ := f.seedH3(t)
	ctx := context.Background()

	rows, err := f.engine.RadiusQuery(ctx, "temp", torontoLat, torontoLng, 600, 1, june2020())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, torontoCell, rows[0].Cell)
}

func TestRadiusQueryUnfilteredSpecialCases(t *testing.T) {
	f := newFixture(t)
	f.seedH3(t)
	ctx := context.Background()

	for _, radius := range []float64{-1, hexgrid.EarthCircumferenceKM, 99999} {
		rows, err := f.engine.RadiusQuery(ctx, "temp", torontoLat, torontoLng, radius, 1, june2020())
		require.NoError(t, err)
		// All rows in the 2020-06 slice, spatial filter disabled.
		assert.Len(t, rows, 2, fmt.Sprintf("radius %v", radius))
	}
}

func TestRadiusQueryBelowMinimumFails(t *testing.T) {
	f := newFixture(t)
	f.seedH3(t)
	ctx := context.Background()

	for res := hexgrid.MinResolution; res <= hexgrid.MaxResolution; res++ {
		minRadius, err := hexgrid.MinRadiusKM(res)
		require.NoError(t, err)
		_, err = f.engine.RadiusQuery(ctx, "temp", torontoLat, torontoLng,
			minRadius*0.9, res, june2020())
		require.Error(t, err, fmt.Sprintf("resolution %d", res))
		assert.Equal(t, geoerr.KindInvalidArgument, geoerr.KindOf(err))
	}
}

func TestCellRadiusQuery(t *testing.T) {
	f := newFixture(t)
	torontoCell, _ := f.seedH3(t)
	ctx := context.Background()

	rows, err := f.engine.CellRadiusQuery(ctx, "temp", torontoCell, 600, june2020())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, torontoCell, rows[0].Cell)
}

func TestBoundingBoxQuery(t *testing.T) {
	f := newFixture(t)
	torontoCell, _ := f.seedH3(t)
	ctx := context.Background()

	rows, err := f.engine.BoundingBoxQuery(ctx, "temp", 1, 38, 50, -90, -70, june2020())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, torontoCell, rows[0].Cell)
}

func TestShapeRegionQuery(t *testing.T) {
	f := newFixture(t)
	torontoCell, _ := f.seedH3(t)
	ctx := context.Background()

	sh, err := shape.ParseGeoJSON([]byte(`{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {"name": "ontario"},
			"geometry": {
				"type": "Polygon",
				"coordinates": [[[-90, 40], [-70, 40], [-70, 50], [-90, 50], [-90, 40]]]
			}
		}]
	}`))
	require.NoError(t, err)

	rows, err := f.engine.ShapeRegionQuery(ctx, "temp", sh, "ontario", 1, june2020())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, torontoCell, rows[0].Cell)
}

func TestPointDatasetQueries(t *testing.T) {
	f := newFixture(t)
	f.seedPoint(t)
	ctx := context.Background()

	rows, err := f.engine.RadiusQueryPoint(ctx, "sensors", torontoLat, torontoLng, 100, TimeArgs{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.5, rows[0].Values["reading"])
	assert.Len(t, rows[0].Cells, 4)

	// Negative radius other than -1 is rejected.
	_, err = f.engine.RadiusQueryPoint(ctx, "sensors", torontoLat, torontoLng, -5, TimeArgs{})
	assert.Equal(t, geoerr.KindInvalidArgument, geoerr.KindOf(err))

	// Whole-earth escape hatch returns both stations.
	rows, err = f.engine.RadiusQueryPoint(ctx, "sensors", torontoLat, torontoLng, -1, TimeArgs{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	cell, err := hexgrid.CellFromLatLng(sydneyLat, sydneyLng, 2)
	require.NoError(t, err)
	rows, err = f.engine.CellQueryPoint(ctx, "sensors", cell, TimeArgs{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 7.25, rows[0].Values["reading"])

	rows, err = f.engine.PointQueryPoint(ctx, "sensors", sydneyLat, sydneyLng, 1, TimeArgs{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 7.25, rows[0].Values["reading"])
}

func TestShapeRegionQueryPoint(t *testing.T) {
	f := newFixture(t)
	f.seedPoint(t)
	ctx := context.Background()

	sh, err := shape.ParseGeoJSON([]byte(`{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {"name": "oceania"},
			"geometry": {
				"type": "Polygon",
				"coordinates": [[[140, -45], [160, -45], [160, -25], [140, -25], [140, -45]]]
			}
		}]
	}`))
	require.NoError(t, err)

	rows, err := f.engine.ShapeRegionQueryPoint(ctx, "sensors", sh, "oceania", TimeArgs{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 7.25, rows[0].Values["reading"])
}

func TestDatasetTypeMismatch(t *testing.T) {
	f := newFixture(t)
	torontoCell, _ := f.seedH3(t)
	f.seedPoint(t)
	ctx := context.Background()

	_, err := f.engine.CellQuery(ctx, "sensors", torontoCell, TimeArgs{})
	assert.Equal(t, geoerr.KindUnsupported, geoerr.KindOf(err))

	_, err = f.engine.CellQueryPoint(ctx, "temp", torontoCell, june2020())
	assert.Equal(t, geoerr.KindUnsupported, geoerr.KindOf(err))
}

func TestPointQueryBadResolutionClassifies(t *testing.T) {
	f := newFixture(t)
	f.seedH3(t)
	ctx := context.Background()

	// An out-of-range resolution is caller input, not a store failure.
	_, err := f.engine.PointQuery(ctx, "temp", torontoLat, torontoLng, 16, june2020())
	assert.Equal(t, geoerr.KindInvalidArgument, geoerr.KindOf(err))

	_, err = f.engine.CellQuery(ctx, "temp", "not-a-cell", june2020())
	assert.Equal(t, geoerr.KindInvalidArgument, geoerr.KindOf(err))
}

func TestUnregisteredDataset(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.CellQuery(context.Background(), "nope", "abc", TimeArgs{})
	assert.Equal(t, geoerr.KindNotFound, geoerr.KindOf(err))
}
