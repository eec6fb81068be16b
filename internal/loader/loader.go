// Package loader turns raw point samples into stored datasets: h3
// datasets get one interpolated table per resolution, point datasets
// get a single table annotated with per-resolution cell columns.
package loader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/interpolate"
	"github.com/hexmesh-labs/hexmesh/internal/registry"
	"github.com/hexmesh-labs/hexmesh/internal/shape"
	"github.com/hexmesh-labs/hexmesh/internal/store"
	"github.com/hexmesh-labs/hexmesh/internal/table"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

// Interpolation defaults used when regridding onto h3 cells.
const (
	DefaultNumNeighbors = 3
	DefaultPower        = 2
)

type Loader struct {
	catalog  *store.Catalog
	registry *registry.Registry
	interp   *interpolate.Interpolator
	logger   *slog.Logger
}

func New(catalog *store.Catalog, reg *registry.Registry, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		catalog:  catalog,
		registry: reg,
		interp:   interpolate.New(logger),
		logger:   logger,
	}
}

// Load reads the source dataset and materializes it per the config.
func (l *Loader) Load(ctx context.Context, src Source, conf Config) error {
	if err := conf.validate(); err != nil {
		return err
	}

	tbl, err := src.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read source for dataset %s: %w", conf.DatasetName, err)
	}
	for _, col := range append(conf.DataColumns, conf.TimeColumns()...) {
		if !tbl.HasColumn(col) {
			return geoerr.New(geoerr.KindInvalidArgument,
				"configured column %s is not present in the source data", col)
		}
	}

	var sh shape.Shape
	if conf.Shapefile != "" {
		sh, err = shape.LoadGeoJSON(conf.Shapefile)
		if err != nil {
			return err
		}
		if conf.Region != "" && !sh.HasRegion(conf.Region) {
			return geoerr.New(geoerr.KindConfigInvalid,
				"shapefile %s did not contain region %s", conf.Shapefile, conf.Region)
		}
	}

	switch conf.DatasetType {
	case registry.TypeH3:
		err = l.loadH3(ctx, tbl, conf, sh)
	case registry.TypePoint, registry.TypeH3Index:
		err = l.loadPoint(ctx, tbl, conf, sh)
	default:
		err = geoerr.New(geoerr.KindUnsupported,
			"dataset type %s cannot be loaded", conf.DatasetType)
	}
	if err != nil {
		return err
	}
	return l.ensureRegistered(ctx, tbl, conf)
}

// loadH3 interpolates the samples onto every resolution up to the
// configured maximum and writes one table per resolution.
func (l *Loader) loadH3(ctx context.Context, tbl *table.Table, conf Config, sh shape.Shape) error {
	st, err := l.catalog.Open(ctx, conf.DatasetName)
	if err != nil {
		return err
	}
	defer st.Close()

	timeCols := conf.TimeColumns()
	parallelism := conf.MaxParallelism
	if parallelism == 0 {
		parallelism = defaultMaxParallelism
	}

	for res := 0; res <= conf.MaxResolution; res++ {
		opts := interpolate.Options{
			Resolution:     res,
			NumNeighbors:   DefaultNumNeighbors,
			Power:          DefaultPower,
			MaxParallelism: parallelism,
		}
		if sh != nil {
			buffer, err := hexgrid.BufferDegrees(res)
			if err != nil {
				return err
			}
			opts.RegionCells, err = sh.CellsInRegion(res, buffer, conf.Region)
			if err != nil {
				return err
			}
			if len(opts.RegionCells) == 0 {
				// Small regions may not cover a single cell centroid at
				// coarse resolutions.
				l.logger.Warn("region covers no cells, skipping resolution",
					"region", conf.Region, "resolution", res)
				continue
			}
		}

		l.logger.Info("interpolating", "dataset", conf.DatasetName, "resolution", res)
		interpolated, err := l.interp.InterpolateTable(ctx, tbl, conf.DataColumns, timeCols, opts)
		if err != nil {
			return fmt.Errorf("interpolation at resolution %d failed: %w", res, err)
		}

		tableName := fmt.Sprintf("%s_%d", conf.DatasetName, res)
		if err := l.writeTable(ctx, st, tableName, interpolated, conf.Mode, len(timeCols) > 0); err != nil {
			return err
		}
	}
	return nil
}

// loadPoint stores the samples as-is in a single table, adding one cell
// column per resolution up to the configured maximum.
func (l *Loader) loadPoint(ctx context.Context, tbl *table.Table, conf Config, sh shape.Shape) error {
	latIdx := tbl.ColumnIndex(hexgrid.LatitudeCol)
	lngIdx := tbl.ColumnIndex(hexgrid.LongitudeCol)
	if latIdx < 0 || lngIdx < 0 {
		return geoerr.New(geoerr.KindInvalidArgument,
			"source data is missing latitude/longitude columns")
	}

	if sh != nil {
		var filterErr error
		tbl = tbl.Filter(func(row []any) bool {
			if filterErr != nil {
				return false
			}
			lat, okLat := table.AsFloat64(row[latIdx])
			lng, okLng := table.AsFloat64(row[lngIdx])
			if !okLat || !okLng {
				return false
			}
			in, err := sh.ContainsPoint(lat, lng, conf.Region)
			if err != nil {
				filterErr = err
				return false
			}
			return in
		})
		if filterErr != nil {
			return filterErr
		}
	}

	var err error
	for res := 0; res <= conf.MaxResolution; res++ {
		colName, colErr := hexgrid.PointResCol(res)
		if colErr != nil {
			return colErr
		}
		resolution := res
		tbl, err = tbl.AddColumn(colName, func(row []any) any {
			lat, okLat := table.AsFloat64(row[latIdx])
			lng, okLng := table.AsFloat64(row[lngIdx])
			if !okLat || !okLng {
				return nil
			}
			cell, err := hexgrid.CellFromLatLng(lat, lng, resolution)
			if err != nil {
				return nil
			}
			return cell
		})
		if err != nil {
			return err
		}
	}

	st, err := l.catalog.Open(ctx, conf.DatasetName)
	if err != nil {
		return err
	}
	defer st.Close()

	// Point tables allow time-less inserts since rows are independent
	// observations rather than full-grid snapshots.
	return l.writeTable(ctx, st, conf.DatasetName, tbl, conf.Mode, true)
}

func (l *Loader) writeTable(ctx context.Context, st *store.Store, tableName string, tbl *table.Table, mode string, insertable bool) error {
	exists, err := st.TableExists(ctx, tableName)
	if err != nil {
		return err
	}
	if !exists {
		return st.CreateTableFrom(ctx, tableName, tbl)
	}
	if mode == ModeCreate {
		return geoerr.New(geoerr.KindAlreadyExists,
			"table %s already exists, cannot write to it in %s mode", tableName, ModeCreate)
	}
	if !insertable {
		return geoerr.New(geoerr.KindInvalidArgument,
			"cannot insert into dataset table %s without specifying at least one time column",
			tableName)
	}
	return l.insertTable(ctx, st, tableName, tbl)
}

func (l *Loader) insertTable(ctx context.Context, st *store.Store, tableName string, tbl *table.Table) error {
	// TODO: check that inserted time slices do not overlap existing rows.
	return st.InsertInto(ctx, tableName, tbl)
}

// ensureRegistered records the dataset in the metadata registry when it
// is not there yet.
func (l *Loader) ensureRegistered(ctx context.Context, src *table.Table, conf Config) error {
	registered, err := l.registry.Exists(ctx, conf.DatasetName)
	if err != nil {
		return err
	}
	if registered {
		return nil
	}

	meta := registry.Meta{
		Name:        conf.DatasetName,
		Description: conf.Description,
		DatasetType: conf.DatasetType,
		Interval:    conf.Interval,
	}
	meta.KeyColumns = []registry.Column{
		{Name: hexgrid.LatitudeCol, Type: "DOUBLE"},
		{Name: hexgrid.LongitudeCol, Type: "DOUBLE"},
	}
	if conf.DatasetType == registry.TypeH3 {
		meta.KeyColumns = append(
			[]registry.Column{{Name: hexgrid.CellCol, Type: "VARCHAR"}},
			meta.KeyColumns...)
	}
	for _, col := range conf.TimeColumns() {
		meta.KeyColumns = append(meta.KeyColumns,
			registry.Column{Name: col, Type: columnType(src, col)})
	}
	for _, col := range conf.DataColumns {
		meta.ValueColumns = append(meta.ValueColumns,
			registry.Column{Name: col, Type: columnType(src, col)})
	}
	return l.registry.Register(ctx, meta)
}

// columnType maps a column's first non-nil value onto a storable type,
// defaulting to DOUBLE since loaded data columns are numeric.
func columnType(tbl *table.Table, col string) string {
	idx := tbl.ColumnIndex(col)
	if idx < 0 {
		return "DOUBLE"
	}
	for _, row := range tbl.Rows {
		switch row[idx].(type) {
		case nil:
			continue
		case bool:
			return "BOOLEAN"
		case int, int32, int64:
			return "BIGINT"
		case float32, float64:
			return "DOUBLE"
		case string:
			return "VARCHAR"
		default:
			return "VARCHAR"
		}
	}
	return "DOUBLE"
}
