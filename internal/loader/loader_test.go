package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/registry"
	"github.com/hexmesh-labs/hexmesh/internal/store"
	"github.com/hexmesh-labs/hexmesh/internal/testutil"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

var sampleColumns = []ColumnSpec{
	{Name: "latitude", Type: ColTypeFloat},
	{Name: "longitude", Type: ColTypeFloat},
	{Name: "temperature", Type: ColTypeFloat},
	{Name: "station", Type: ColTypeStr},
}

const sampleCSV = `latitude,longitude,temperature,station
43.65,-79.38,21.5,toronto
-33.87,151.21,18.0,sydney
51.51,-0.13,14.2,london
`

type loaderFixture struct {
	loader   *Loader
	catalog  *store.Catalog
	registry *registry.Registry
}

func newFixture(t *testing.T) *loaderFixture {
	t.Helper()
	logger := testutil.NewTestLogger(t)
	cat, err := store.NewCatalog(t.TempDir(), logger)
	require.NoError(t, err)
	reg := registry.New(cat, logger)
	return &loaderFixture{loader: New(cat, reg, logger), catalog: cat, registry: reg}
}

func TestCSVSourceTypedColumns(t *testing.T) {
	path := writeFile(t, "data.csv", "1.5,3,hello\n-2.25,7,bye\n")
	src, err := NewCSVSource(path, false, []ColumnSpec{
		{Name: "a", Type: ColTypeFloat},
		{Name: "b", Type: ColTypeInt},
		{Name: "c", Type: ColTypeStr},
	})
	require.NoError(t, err)

	tbl, err := src.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, 1.5, tbl.At(0, "a"))
	assert.Equal(t, int64(3), tbl.At(0, "b"))
	assert.Equal(t, "bye", tbl.At(1, "c"))
}

func TestCSVSourceHeaderRow(t *testing.T) {
	src, err := NewCSVSource(writeFile(t, "data.csv", sampleCSV), true, sampleColumns)
	require.NoError(t, err)
	tbl, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())
}

func TestCSVSourceWrongColumnCount(t *testing.T) {
	path := writeFile(t, "data.csv", "1.5,3\n")
	src, err := NewCSVSource(path, false, []ColumnSpec{
		{Name: "a", Type: ColTypeFloat},
		{Name: "b", Type: ColTypeInt},
		{Name: "c", Type: ColTypeStr},
	})
	require.NoError(t, err)
	_, err = src.Read(context.Background())
	assert.Equal(t, geoerr.KindWrongColumnCount, geoerr.KindOf(err))
}

func TestCSVSourceBadValue(t *testing.T) {
	path := writeFile(t, "data.csv", "not-a-number\n")
	src, err := NewCSVSource(path, false, []ColumnSpec{{Name: "a", Type: ColTypeFloat}})
	require.NoError(t, err)
	_, err = src.Read(context.Background())
	assert.Equal(t, geoerr.KindWrongFileType, geoerr.KindOf(err))
}

func TestCSVSourceConfigErrors(t *testing.T) {
	path := writeFile(t, "data.csv", sampleCSV)

	_, err := NewCSVSource(filepath.Join(t.TempDir(), "missing.csv"), true, sampleColumns)
	assert.Equal(t, geoerr.KindConfigInvalid, geoerr.KindOf(err))

	_, err = NewCSVSource(path, true, []ColumnSpec{{Name: "a", Type: "decimal"}})
	assert.Equal(t, geoerr.KindConfigInvalid, geoerr.KindOf(err))

	_, err = NewCSVSource(path, true, nil)
	assert.Equal(t, geoerr.KindConfigInvalid, geoerr.KindOf(err))
}

func pointConfig() Config {
	return Config{
		DatasetName:   "stations",
		DatasetType:   registry.TypePoint,
		MaxResolution: 2,
		DataColumns:   []string{"temperature"},
		Mode:          ModeCreate,
	}
}

func TestLoadPointDataset(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()
	src, err := NewCSVSource(writeFile(t, "data.csv", sampleCSV), true, sampleColumns)
	require.NoError(t, err)

	require.NoError(t, fix.loader.Load(ctx, src, pointConfig()))

	st, err := fix.catalog.Open(ctx, "stations")
	require.NoError(t, err)
	defer st.Close()

	cols, err := st.TableColumns(ctx, "stations")
	require.NoError(t, err)
	assert.Contains(t, cols, "res0")
	assert.Contains(t, cols, "res2")
	assert.NotContains(t, cols, "res3")

	tbl, err := st.QueryTable(ctx,
		"SELECT latitude, longitude, res2 FROM stations WHERE station = 'toronto'")
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())
	wantCell, err := hexgrid.CellFromLatLng(43.65, -79.38, 2)
	require.NoError(t, err)
	assert.Equal(t, wantCell, tbl.At(0, "res2"))

	meta, err := fix.registry.Get(ctx, "stations")
	require.NoError(t, err)
	assert.Equal(t, registry.TypePoint, meta.DatasetType)
	assert.Equal(t, registry.IntervalOneTime, meta.Interval)
	assert.Equal(t, []string{"temperature"}, meta.ValueColumnNames())
}

func h3Config() Config {
	return Config{
		DatasetName:   "temp",
		DatasetType:   registry.TypeH3,
		MaxResolution: 0,
		DataColumns:   []string{"temperature"},
		Mode:          ModeCreate,
	}
}

func TestLoadH3Dataset(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()
	src, err := NewCSVSource(writeFile(t, "data.csv", sampleCSV), true, sampleColumns)
	require.NoError(t, err)

	require.NoError(t, fix.loader.Load(ctx, src, h3Config()))

	st, err := fix.catalog.Open(ctx, "temp")
	require.NoError(t, err)
	defer st.Close()

	// Every base cell gets an interpolated value bounded by the sample
	// extremes.
	tbl, err := st.QueryTable(ctx,
		"SELECT COUNT(*) AS n, MIN(temperature) AS lo, MAX(temperature) AS hi FROM temp_0")
	require.NoError(t, err)
	baseCells, err := hexgrid.AllCells(0)
	require.NoError(t, err)
	n, _ := tbl.Float64At(0, "n")
	assert.Equal(t, float64(len(baseCells)), n)
	lo, _ := tbl.Float64At(0, "lo")
	hi, _ := tbl.Float64At(0, "hi")
	assert.GreaterOrEqual(t, lo, 14.2-1e-9)
	assert.LessOrEqual(t, hi, 21.5+1e-9)

	meta, err := fix.registry.Get(ctx, "temp")
	require.NoError(t, err)
	assert.Equal(t, registry.TypeH3, meta.DatasetType)
}

func TestLoadCreateModeConflict(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()
	src, err := NewCSVSource(writeFile(t, "data.csv", sampleCSV), true, sampleColumns)
	require.NoError(t, err)

	require.NoError(t, fix.loader.Load(ctx, src, h3Config()))
	err = fix.loader.Load(ctx, src, h3Config())
	assert.Equal(t, geoerr.KindAlreadyExists, geoerr.KindOf(err))
}

func TestLoadH3InsertRequiresTimeColumns(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()
	src, err := NewCSVSource(writeFile(t, "data.csv", sampleCSV), true, sampleColumns)
	require.NoError(t, err)

	require.NoError(t, fix.loader.Load(ctx, src, h3Config()))

	conf := h3Config()
	conf.Mode = ModeInsert
	err = fix.loader.Load(ctx, src, conf)
	assert.Equal(t, geoerr.KindInvalidArgument, geoerr.KindOf(err))
}

func TestLoadH3InsertAppendsTimeSlice(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()
	columns := append(sampleColumns, ColumnSpec{Name: "year", Type: ColTypeInt})

	yearCSV := func(year int) string {
		out := "latitude,longitude,temperature,station,year\n"
		for _, row := range [][2]any{
			{"43.65,-79.38,21.5,toronto", year},
			{"-33.87,151.21,18.0,sydney", year},
		} {
			out += fmt.Sprintf("%s,%d\n", row[0], row[1])
		}
		return out
	}

	conf := h3Config()
	conf.Interval = registry.IntervalYearly
	conf.YearColumn = "year"

	src, err := NewCSVSource(writeFile(t, "y2020.csv", yearCSV(2020)), true, columns)
	require.NoError(t, err)
	require.NoError(t, fix.loader.Load(ctx, src, conf))

	conf.Mode = ModeInsert
	src, err = NewCSVSource(writeFile(t, "y2021.csv", yearCSV(2021)), true, columns)
	require.NoError(t, err)
	require.NoError(t, fix.loader.Load(ctx, src, conf))

	st, err := fix.catalog.Open(ctx, "temp")
	require.NoError(t, err)
	defer st.Close()

	tbl, err := st.QueryTable(ctx,
		"SELECT COUNT(DISTINCT year) AS years, COUNT(*) AS n FROM temp_0")
	require.NoError(t, err)
	years, _ := tbl.Float64At(0, "years")
	assert.Equal(t, 2.0, years)
	baseCells, err := hexgrid.AllCells(0)
	require.NoError(t, err)
	n, _ := tbl.Float64At(0, "n")
	assert.Equal(t, 2*float64(len(baseCells)), n)

	meta, err := fix.registry.Get(ctx, "temp")
	require.NoError(t, err)
	assert.Equal(t, registry.IntervalYearly, meta.Interval)
}

func TestLoadConfigValidation(t *testing.T) {
	fix := newFixture(t)
	ctx := context.Background()
	src, err := NewCSVSource(writeFile(t, "data.csv", sampleCSV), true, sampleColumns)
	require.NoError(t, err)

	for name, mutate := range map[string]func(*Config){
		"empty name":            func(c *Config) { c.DatasetName = "" },
		"empty type":            func(c *Config) { c.DatasetType = "" },
		"unknown type":          func(c *Config) { c.DatasetType = "voxel" },
		"bad resolution":        func(c *Config) { c.MaxResolution = 16 },
		"no data columns":       func(c *Config) { c.DataColumns = nil },
		"bad mode":              func(c *Config) { c.Mode = "upsert" },
		"region sans shapefile": func(c *Config) { c.Region = "ontario" },
	} {
		t.Run(name, func(t *testing.T) {
			conf := h3Config()
			mutate(&conf)
			err := fix.loader.Load(ctx, src, conf)
			assert.Equal(t, geoerr.KindConfigInvalid, geoerr.KindOf(err))
		})
	}

	conf := h3Config()
	conf.DataColumns = []string{"humidity"}
	err = fix.loader.Load(ctx, src, conf)
	assert.Equal(t, geoerr.KindInvalidArgument, geoerr.KindOf(err))
}
