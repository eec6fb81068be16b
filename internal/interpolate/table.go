package interpolate

import (
	"context"
	"fmt"
	"strings"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/table"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

// InterpolateTable regrids a tabular dataset. When timeCols are given,
// rows are partitioned by their distinct time-column combination and
// each partition is interpolated on its own, so samples from different
// time slices never mix; the time values are stamped back onto each
// partition's output rows.
func (ip *Interpolator) InterpolateTable(ctx context.Context, tbl *table.Table, valueCols, timeCols []string, opts Options) (*table.Table, error) {
	for _, required := range []string{hexgrid.LatitudeCol, hexgrid.LongitudeCol} {
		if !tbl.HasColumn(required) {
			return nil, geoerr.New(geoerr.KindInvalidArgument,
				"input table is missing required column %s", required)
		}
	}

	outCols := append([]string{hexgrid.CellCol, hexgrid.LatitudeCol, hexgrid.LongitudeCol}, valueCols...)
	outCols = append(outCols, timeCols...)
	out := table.New(outCols...)

	for _, part := range partitionByTime(tbl, timeCols) {
		samples, err := samplesFrom(tbl, part.rowIndices, valueCols)
		if err != nil {
			return nil, err
		}
		result, err := ip.Interpolate(ctx, samples, opts)
		if err != nil {
			return nil, err
		}
		if !result.Complete() {
			return nil, fmt.Errorf("interpolation incomplete: %d chunks failed, first: %w",
				len(result.Failures), result.Failures[0].Err)
		}
		for _, row := range result.Rows {
			outRow := []any{row.Cell, row.Latitude, row.Longitude}
			for _, name := range valueCols {
				outRow = append(outRow, row.Values[name])
			}
			outRow = append(outRow, part.timeValues...)
			if err := out.AppendRow(outRow...); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

type timePartition struct {
	timeValues []any
	rowIndices []int
}

// partitionByTime groups row indices by their time-column values in
// first-seen order. Without time columns everything is one partition.
func partitionByTime(tbl *table.Table, timeCols []string) []timePartition {
	if len(timeCols) == 0 {
		indices := make([]int, tbl.Len())
		for i := range indices {
			indices[i] = i
		}
		return []timePartition{{rowIndices: indices}}
	}

	colIdx := make([]int, len(timeCols))
	for i, c := range timeCols {
		colIdx[i] = tbl.ColumnIndex(c)
	}

	var order []string
	groups := map[string]*timePartition{}
	for r, row := range tbl.Rows {
		var keyParts []string
		timeValues := make([]any, len(timeCols))
		for i, ci := range colIdx {
			timeValues[i] = row[ci]
			keyParts = append(keyParts, fmt.Sprintf("%v", row[ci]))
		}
		key := strings.Join(keyParts, "\x00")
		part, ok := groups[key]
		if !ok {
			part = &timePartition{timeValues: timeValues}
			groups[key] = part
			order = append(order, key)
		}
		part.rowIndices = append(part.rowIndices, r)
	}

	out := make([]timePartition, len(order))
	for i, key := range order {
		out[i] = *groups[key]
	}
	return out
}

func samplesFrom(tbl *table.Table, rowIndices []int, valueCols []string) (Samples, error) {
	samples := Samples{
		ValueNames: valueCols,
		Values:     make(map[string][]float64, len(valueCols)),
	}
	latIdx := tbl.ColumnIndex(hexgrid.LatitudeCol)
	lngIdx := tbl.ColumnIndex(hexgrid.LongitudeCol)
	valIdx := make([]int, len(valueCols))
	for i, c := range valueCols {
		idx := tbl.ColumnIndex(c)
		if idx < 0 {
			return Samples{}, geoerr.New(geoerr.KindInvalidArgument,
				"input table is missing value column %s", c)
		}
		valIdx[i] = idx
	}

	for _, r := range rowIndices {
		row := tbl.Rows[r]
		lat, ok := table.AsFloat64(row[latIdx])
		if !ok {
			return Samples{}, geoerr.New(geoerr.KindInvalidArgument,
				"non-numeric latitude in row %d", r)
		}
		lng, ok := table.AsFloat64(row[lngIdx])
		if !ok {
			return Samples{}, geoerr.New(geoerr.KindInvalidArgument,
				"non-numeric longitude in row %d", r)
		}
		samples.Latitudes = append(samples.Latitudes, lat)
		samples.Longitudes = append(samples.Longitudes, lng)
		for i, name := range valueCols {
			v, ok := table.AsFloat64(row[valIdx[i]])
			if !ok {
				return Samples{}, geoerr.New(geoerr.KindInvalidArgument,
					"non-numeric value in column %s row %d", name, r)
			}
			samples.Values[name] = append(samples.Values[name], v)
		}
	}
	return samples, nil
}
