package interpolate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/table"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

func singleCellOpts(t *testing.T, lat, lng float64, resolution, k int) (Options, string) {
	t.Helper()
	cell, err := hexgrid.CellFromLatLng(lat, lng, resolution)
	require.NoError(t, err)
	return Options{
		Resolution:   resolution,
		NumNeighbors: k,
		Power:        2,
		RegionCells:  []string{cell},
	}, cell
}

func TestInterpolateSingleSampleAtCellCenter(t *testing.T) {
	ip := New(nil)
	ctx := context.Background()

	cell, err := hexgrid.CellFromLatLng(43.65, -79.38, 1)
	require.NoError(t, err)
	lat, lng, err := hexgrid.CellToLatLng(cell)
	require.NoError(t, err)

	samples := Samples{
		Latitudes:  []float64{lat},
		Longitudes: []float64{lng},
		ValueNames: []string{"temperature", "humidity"},
		Values: map[string][]float64{
			"temperature": {7.5},
			"humidity":    {0.41},
		},
	}

	// A sample sitting exactly on the target must reproduce its own
	// values for any k, without NaN from the zero distance.
	for _, k := range []int{1, 3, 10} {
		result, err := ip.Interpolate(ctx, samples, Options{
			Resolution:   1,
			NumNeighbors: k,
			Power:        2,
			RegionCells:  []string{cell},
		})
		require.NoError(t, err)
		require.True(t, result.Complete())
		require.Len(t, result.Rows, 1)
		assert.Equal(t, 7.5, result.Rows[0].Values["temperature"])
		assert.Equal(t, 0.41, result.Rows[0].Values["humidity"])
	}
}

func TestInterpolateExactHitAmongManySamples(t *testing.T) {
	ip := New(nil)
	opts, cell := singleCellOpts(t, 45, 10, 2, 3)

	lat, lng, err := hexgrid.CellToLatLng(cell)
	require.NoError(t, err)

	// The sample index must surface the on-center sample among several
	// nearby ones; the exact hit wins over the weighted blend.
	samples := Samples{
		Latitudes:  []float64{lat + 2, lat, lat - 1, lat + 1},
		Longitudes: []float64{lng, lng, lng - 1, lng + 2},
		ValueNames: []string{"v"},
		Values:     map[string][]float64{"v": {100, 42.5, 7, 13}},
	}
	result, err := ip.Interpolate(context.Background(), samples, opts)
	require.NoError(t, err)
	require.True(t, result.Complete())
	require.Len(t, result.Rows, 1)
	assert.Equal(t, 42.5, result.Rows[0].Values["v"])
}

func TestInterpolateWeightedBetweenSamples(t *testing.T) {
	ip := New(nil)
	opts, cell := singleCellOpts(t, 45, 10, 2, 2)

	lat, lng, err := hexgrid.CellToLatLng(cell)
	require.NoError(t, err)

	samples := Samples{
		Latitudes:  []float64{lat + 1, lat - 1},
		Longitudes: []float64{lng, lng},
		ValueNames: []string{"v"},
		Values:     map[string][]float64{"v": {10, 20}},
	}
	result, err := ip.Interpolate(context.Background(), samples, opts)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	v, ok := result.Rows[0].Values["v"].(float64)
	require.True(t, ok)
	assert.Greater(t, v, 10.0)
	assert.Less(t, v, 20.0)
}

func TestInterpolateNullWhenNoUsableWeight(t *testing.T) {
	ip := New(nil)
	opts, cell := singleCellOpts(t, 45, 10, 1, 1)

	// All-zero values keep the numerator at zero through every
	// neighbor escalation, so the column comes back null.
	samples := Samples{
		Latitudes:  []float64{40, 50},
		Longitudes: []float64{5, 15},
		ValueNames: []string{"v"},
		Values:     map[string][]float64{"v": {0, 0}},
	}
	result, err := ip.Interpolate(context.Background(), samples, opts)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Nil(t, result.Rows[0].Values["v"])
	assert.Equal(t, cell, result.Rows[0].Cell)
}

func TestInterpolateWholeGridParallel(t *testing.T) {
	ip := New(nil)

	samples := Samples{
		Latitudes:  []float64{43.65, -33.87, 51.5},
		Longitudes: []float64{-79.38, 151.21, -0.12},
		ValueNames: []string{"v"},
		Values:     map[string][]float64{"v": {1, 2, 3}},
	}
	result, err := ip.Interpolate(context.Background(), samples, Options{
		Resolution:     0,
		NumNeighbors:   2,
		Power:          2,
		MaxParallelism: 4,
	})
	require.NoError(t, err)
	assert.True(t, result.Complete())
	// One output row per base cell.
	assert.Len(t, result.Rows, 122)
}

func TestInterpolateValidation(t *testing.T) {
	ip := New(nil)
	ctx := context.Background()

	_, err := ip.Interpolate(ctx, Samples{}, Options{Resolution: 1, NumNeighbors: 1})
	assert.Equal(t, geoerr.KindInvalidArgument, geoerr.KindOf(err))

	mismatched := Samples{
		Latitudes:  []float64{1, 2},
		Longitudes: []float64{1},
	}
	_, err = ip.Interpolate(ctx, mismatched, Options{Resolution: 1, NumNeighbors: 1})
	assert.Equal(t, geoerr.KindArrayLengthMismatch, geoerr.KindOf(err))

	valid := Samples{
		Latitudes:  []float64{1},
		Longitudes: []float64{1},
		ValueNames: []string{"v"},
		Values:     map[string][]float64{"v": {1}},
	}
	_, err = ip.Interpolate(ctx, valid, Options{Resolution: 99, NumNeighbors: 1})
	assert.Equal(t, geoerr.KindInvalidArgument, geoerr.KindOf(err))

	_, err = ip.Interpolate(ctx, valid, Options{Resolution: 1, NumNeighbors: 0})
	assert.Equal(t, geoerr.KindInvalidArgument, geoerr.KindOf(err))
}

func TestInterpolateTableTimePartitioning(t *testing.T) {
	ip := New(nil)

	cell, err := hexgrid.CellFromLatLng(43.65, -79.38, 1)
	require.NoError(t, err)
	lat, lng, err := hexgrid.CellToLatLng(cell)
	require.NoError(t, err)

	tbl := table.New("latitude", "longitude", "temperature", "year")
	require.NoError(t, tbl.AppendRow(lat, lng, 5.0, 2019))
	require.NoError(t, tbl.AppendRow(lat, lng, 9.0, 2020))

	out, err := ip.InterpolateTable(context.Background(), tbl,
		[]string{"temperature"}, []string{"year"}, Options{
			Resolution:   1,
			NumNeighbors: 1,
			Power:        2,
			RegionCells:  []string{cell},
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"cell", "latitude", "longitude", "temperature", "year"}, out.Columns)
	require.Equal(t, 2, out.Len())

	// Each time slice interpolates on its own samples only.
	byYear := map[any]any{}
	for i := range out.Rows {
		byYear[out.At(i, "year")] = out.At(i, "temperature")
	}
	assert.Equal(t, 5.0, byYear[2019])
	assert.Equal(t, 9.0, byYear[2020])
}

func TestInterpolateTableMissingColumns(t *testing.T) {
	ip := New(nil)

	tbl := table.New("latitude", "value")
	_, err := ip.InterpolateTable(context.Background(), tbl, []string{"value"}, nil,
		Options{Resolution: 1, NumNeighbors: 1, Power: 2})
	assert.Equal(t, geoerr.KindInvalidArgument, geoerr.KindOf(err))
}
