package pipeline

import (
	"context"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/shape"
	"github.com/hexmesh-labs/hexmesh/internal/table"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

func init() {
	RegisterPreprocessor("ShapefileFilter", newShapefileFilter)
	RegisterPostprocessor("MultiplyValue", newMultiplyValue)
	RegisterPostprocessor("AddConstantColumn", newAddConstantColumn)
}

// shapefileFilter drops rows whose point falls outside a shapefile
// region.
type shapefileFilter struct {
	shape  shape.Shape
	region string
}

type shapefileFilterConfig struct {
	ShapefilePath string `koanf:"shapefile_path"`
	Region        string `koanf:"region"`
}

func newShapefileFilter(params map[string]any, _ Deps) (Preprocessor, error) {
	var conf shapefileFilterConfig
	if err := decodeParams(params, &conf); err != nil {
		return nil, err
	}
	if conf.ShapefilePath == "" {
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"shapefile_path is mandatory for ShapefileFilter")
	}
	sh, err := shape.LoadGeoJSON(conf.ShapefilePath)
	if err != nil {
		return nil, geoerr.Wrap(geoerr.KindConfigInvalid, err,
			"shapefile %s specified in ShapefileFilter conf could not be loaded",
			conf.ShapefilePath)
	}
	if conf.Region != "" && !sh.HasRegion(conf.Region) {
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"shapefile %s did not contain specified region %s",
			conf.ShapefilePath, conf.Region)
	}
	return &shapefileFilter{shape: sh, region: conf.Region}, nil
}

func (f *shapefileFilter) Run(_ context.Context, tbl *table.Table) (*table.Table, error) {
	latIdx := tbl.ColumnIndex(hexgrid.LatitudeCol)
	lngIdx := tbl.ColumnIndex(hexgrid.LongitudeCol)
	if latIdx < 0 || lngIdx < 0 {
		return nil, geoerr.New(geoerr.KindInvalidArgument,
			"ShapefileFilter input is missing latitude/longitude columns")
	}

	var filterErr error
	out := tbl.Filter(func(row []any) bool {
		if filterErr != nil {
			return false
		}
		lat, ok := table.AsFloat64(row[latIdx])
		if !ok {
			return false
		}
		lng, ok := table.AsFloat64(row[lngIdx])
		if !ok {
			return false
		}
		in, err := f.shape.ContainsPoint(lat, lng, f.region)
		if err != nil {
			filterErr = err
			return false
		}
		return in
	})
	if filterErr != nil {
		return nil, filterErr
	}
	return out, nil
}

// multiplyValue scales every non-geometry column by a constant.
type multiplyValue struct {
	multiplier float64
}

type multiplyValueConfig struct {
	MultiplyBy *float64 `koanf:"multiply_by"`
}

func newMultiplyValue(params map[string]any, _ Deps) (Postprocessor, error) {
	var conf multiplyValueConfig
	if err := decodeParams(params, &conf); err != nil {
		return nil, err
	}
	if conf.MultiplyBy == nil {
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"parameter multiply_by was not provided, it is mandatory for MultiplyValue")
	}
	return &multiplyValue{multiplier: *conf.MultiplyBy}, nil
}

func (m *multiplyValue) Run(_ context.Context, tbl *table.Table) (*table.Table, error) {
	geometry := map[string]bool{
		hexgrid.LatitudeCol:  true,
		hexgrid.LongitudeCol: true,
		hexgrid.CellCol:      true,
	}
	out := table.New(tbl.Columns...)
	for _, row := range tbl.Rows {
		newRow := make([]any, len(row))
		for i, v := range row {
			if geometry[tbl.Columns[i]] || v == nil {
				newRow[i] = v
				continue
			}
			f, ok := table.AsFloat64(v)
			if !ok {
				return nil, geoerr.New(geoerr.KindInvalidArgument,
					"MultiplyValue cannot scale non-numeric column %s", tbl.Columns[i])
			}
			newRow[i] = f * m.multiplier
		}
		if err := out.AppendRow(newRow...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// addConstantColumn stamps a constant-valued column onto every row,
// useful for tagging scenario or date-range metadata.
type addConstantColumn struct {
	name  string
	value any
}

func newAddConstantColumn(params map[string]any, _ Deps) (Postprocessor, error) {
	name, ok := params["column_name"].(string)
	if !ok || name == "" {
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"parameter column_name was not provided, it is mandatory for AddConstantColumn")
	}
	value, ok := params["column_value"]
	if !ok {
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"parameter column_value was not provided, it is mandatory for AddConstantColumn")
	}
	return &addConstantColumn{name: name, value: value}, nil
}

func (a *addConstantColumn) Run(_ context.Context, tbl *table.Table) (*table.Table, error) {
	return tbl.AddColumn(a.name, func(_ []any) any { return a.value })
}
