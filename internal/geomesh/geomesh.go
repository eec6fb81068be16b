// Package geomesh is the spatial query engine. It answers point, cell,
// radius, bounding-box, and shapefile-region queries against per-dataset
// stores, resolving each dataset's physical layout through the metadata
// registry and assembling parameterized predicates for every filter.
package geomesh

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/registry"
	"github.com/hexmesh-labs/hexmesh/internal/shape"
	"github.com/hexmesh-labs/hexmesh/internal/sqlbuild"
	"github.com/hexmesh-labs/hexmesh/internal/store"
	"github.com/hexmesh-labs/hexmesh/internal/table"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

// CellDataRow is one result row of an h3-dataset query.
type CellDataRow struct {
	Cell      string
	Latitude  float64
	Longitude float64
	Values    map[string]any
}

// PointDataRow is one result row of a point-dataset query. Cells maps
// each per-resolution column name (res0..res15) to that row's cell.
type PointDataRow struct {
	Latitude  float64
	Longitude float64
	Cells     map[string]string
	Values    map[string]any
}

// TimeArgs carries the optional time filter of a query. Which fields
// are required depends on the dataset's interval.
type TimeArgs struct {
	Year  *int
	Month *int
	Day   *int
}

// Int returns a *int for use in TimeArgs literals.
func Int(v int) *int { return &v }

// Engine executes spatial queries. It is stateless apart from its
// catalog root and opens a fresh store connection per call, so it is
// safe for concurrent readers.
type Engine struct {
	catalog  *store.Catalog
	registry *registry.Registry
	logger   *slog.Logger
}

// New returns a query engine over the given catalog and registry.
func New(catalog *store.Catalog, reg *registry.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{catalog: catalog, registry: reg, logger: logger}
}

// PointQuery returns the h3 rows whose cell contains the point at the
// given resolution.
func (e *Engine) PointQuery(ctx context.Context, dataset string, lat, lng float64, resolution int, t TimeArgs) ([]CellDataRow, error) {
	cell, err := hexgrid.CellFromLatLng(lat, lng, resolution)
	if err != nil {
		return nil, err
	}
	return e.CellQuery(ctx, dataset, cell, t)
}

// PointQueryPoint returns the point rows indexed to the same cell as
// the given point at the given resolution.
func (e *Engine) PointQueryPoint(ctx context.Context, dataset string, lat, lng float64, resolution int, t TimeArgs) ([]PointDataRow, error) {
	cell, err := hexgrid.CellFromLatLng(lat, lng, resolution)
	if err != nil {
		return nil, err
	}
	return e.CellQueryPoint(ctx, dataset, cell, t)
}

// CellQuery returns the h3 rows for one exact cell. The resolution is
// derived from the cell id itself.
func (e *Engine) CellQuery(ctx context.Context, dataset, cell string, t TimeArgs) ([]CellDataRow, error) {
	meta, st, err := e.openDataset(ctx, dataset, registry.TypeH3)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	res, err := hexgrid.CellResolution(cell)
	if err != nil {
		return nil, err
	}
	timePred, err := timeFilter(meta.Interval, t)
	if err != nil {
		return nil, err
	}
	pred := sqlbuild.And(timePred, sqlbuild.Equal(hexgrid.CellCol, cell))
	return e.queryCellRows(ctx, st, h3TableName(dataset, res), hexgrid.CellCol, meta, pred)
}

// CellQueryPoint returns the point rows whose per-resolution cell
// column matches the given cell.
func (e *Engine) CellQueryPoint(ctx context.Context, dataset, cell string, t TimeArgs) ([]PointDataRow, error) {
	meta, st, err := e.openDataset(ctx, dataset, registry.TypePoint)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	res, err := hexgrid.CellResolution(cell)
	if err != nil {
		return nil, err
	}
	resCol, err := hexgrid.PointResCol(res)
	if err != nil {
		return nil, err
	}
	timePred, err := timeFilter(meta.Interval, t)
	if err != nil {
		return nil, err
	}
	pred := sqlbuild.And(timePred, sqlbuild.Equal(resCol, cell))
	return e.queryPointRows(ctx, st, dataset, meta, pred)
}

// RadiusQuery returns the h3 rows within radiusKM of a point. A radius
// of -1, or one at least the Earth's circumference, disables the
// spatial filter entirely. A radius below the resolution's guaranteed
// minimum is rejected: depending on where the center lands it could
// cover zero cell centroids, which would be a misleading empty result.
func (e *Engine) RadiusQuery(ctx context.Context, dataset string, lat, lng, radiusKM float64, resolution int, t TimeArgs) ([]CellDataRow, error) {
	meta, st, err := e.openDataset(ctx, dataset, registry.TypeH3)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	radiusPred, err := h3RadiusPredicate(lat, lng, radiusKM, resolution)
	if err != nil {
		return nil, err
	}
	timePred, err := timeFilter(meta.Interval, t)
	if err != nil {
		return nil, err
	}
	pred := sqlbuild.And(timePred, radiusPred)
	return e.queryCellRows(ctx, st, h3TableName(dataset, resolution), hexgrid.CellCol, meta, pred)
}

// RadiusQueryPoint returns the point rows within radiusKM of a point.
// Point datasets have no grid-derived minimum radius; any non-negative
// radius is accepted, with the same -1 / whole-earth escape hatch.
func (e *Engine) RadiusQueryPoint(ctx context.Context, dataset string, lat, lng, radiusKM float64, t TimeArgs) ([]PointDataRow, error) {
	meta, st, err := e.openDataset(ctx, dataset, registry.TypePoint)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	radiusPred, err := pointRadiusPredicate(lat, lng, radiusKM)
	if err != nil {
		return nil, err
	}
	timePred, err := timeFilter(meta.Interval, t)
	if err != nil {
		return nil, err
	}
	pred := sqlbuild.And(timePred, radiusPred)
	return e.queryPointRows(ctx, st, dataset, meta, pred)
}

// CellRadiusQuery returns the h3 rows within radiusKM of a cell's
// center, at the cell's own resolution.
func (e *Engine) CellRadiusQuery(ctx context.Context, dataset, cell string, radiusKM float64, t TimeArgs) ([]CellDataRow, error) {
	lat, lng, err := hexgrid.CellToLatLng(cell)
	if err != nil {
		return nil, err
	}
	res, err := hexgrid.CellResolution(cell)
	if err != nil {
		return nil, err
	}
	return e.RadiusQuery(ctx, dataset, lat, lng, radiusKM, res, t)
}

// CellRadiusQueryPoint returns the point rows within radiusKM of a
// cell's center.
func (e *Engine) CellRadiusQueryPoint(ctx context.Context, dataset, cell string, radiusKM float64, t TimeArgs) ([]PointDataRow, error) {
	lat, lng, err := hexgrid.CellToLatLng(cell)
	if err != nil {
		return nil, err
	}
	return e.RadiusQueryPoint(ctx, dataset, lat, lng, radiusKM, t)
}

// ShapeRegionQuery returns the h3 rows inside a shapefile region. The
// region polygon is buffered by 1.5x the resolution's characteristic
// cell radius so boundary cells are not missed, then all overlapping
// cells are retrieved with chunked IN predicates.
func (e *Engine) ShapeRegionQuery(ctx context.Context, dataset string, sh shape.Shape, region string, resolution int, t TimeArgs) ([]CellDataRow, error) {
	meta, st, err := e.openDataset(ctx, dataset, registry.TypeH3)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	buffer, err := hexgrid.BufferDegrees(resolution)
	if err != nil {
		return nil, err
	}
	cells, err := sh.CellsInRegion(resolution, buffer, region)
	if err != nil {
		return nil, err
	}
	timePred, err := timeFilter(meta.Interval, t)
	if err != nil {
		return nil, err
	}

	tableName := h3TableName(dataset, resolution)
	var out []CellDataRow
	for _, chunk := range chunkCells(cells, sqlbuild.InChunkSize) {
		pred := sqlbuild.And(timePred, sqlbuild.In(hexgrid.CellCol, chunk))
		rows, err := e.queryCellRows(ctx, st, tableName, hexgrid.CellCol, meta, pred)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// ShapeRegionQueryPoint returns the point rows inside a shapefile
// region. A coarse bounding-box predicate narrows the scan first; the
// exact point-in-polygon test then runs over the survivors in memory.
func (e *Engine) ShapeRegionQueryPoint(ctx context.Context, dataset string, sh shape.Shape, region string, t TimeArgs) ([]PointDataRow, error) {
	meta, st, err := e.openDataset(ctx, dataset, registry.TypePoint)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	minLat, maxLat, minLng, maxLng, err := sh.Bound(region)
	if err != nil {
		return nil, err
	}
	timePred, err := timeFilter(meta.Interval, t)
	if err != nil {
		return nil, err
	}
	pred := sqlbuild.And(timePred,
		sqlbuild.Between(hexgrid.LatitudeCol, minLat, maxLat),
		sqlbuild.Between(hexgrid.LongitudeCol, minLng, maxLng))

	rows, err := e.queryPointRows(ctx, st, dataset, meta, pred)
	if err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, row := range rows {
		in, err := sh.ContainsPoint(row.Latitude, row.Longitude, region)
		if err != nil {
			return nil, err
		}
		if in {
			out = append(out, row)
		}
	}
	return out, nil
}

// BoundingBoxQuery returns the rows whose cells overlap an axis-aligned
// lat/lng rectangle, for h3 and point datasets alike.
func (e *Engine) BoundingBoxQuery(ctx context.Context, dataset string, resolution int, minLat, maxLat, minLng, maxLng float64, t TimeArgs) ([]CellDataRow, error) {
	meta, st, err := e.openDataset(ctx, dataset, registry.TypeH3, registry.TypePoint)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	cells, err := hexgrid.CellsInBound(minLat, maxLat, minLng, maxLng, resolution)
	if err != nil {
		return nil, err
	}
	timePred, err := timeFilter(meta.Interval, t)
	if err != nil {
		return nil, err
	}

	var tableName, cellCol string
	switch meta.DatasetType {
	case registry.TypeH3:
		tableName = h3TableName(dataset, resolution)
		cellCol = hexgrid.CellCol
	case registry.TypePoint:
		tableName = dataset
		cellCol, err = hexgrid.PointResCol(resolution)
		if err != nil {
			return nil, err
		}
	}

	var out []CellDataRow
	for _, chunk := range chunkCells(cells, sqlbuild.InChunkSize) {
		pred := sqlbuild.And(timePred, sqlbuild.In(cellCol, chunk))
		rows, err := e.queryCellRows(ctx, st, tableName, cellCol, meta, pred)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// openDataset resolves metadata, checks the dataset type against the
// allowed set, and opens the dataset store.
func (e *Engine) openDataset(ctx context.Context, dataset string, allowedTypes ...string) (registry.Meta, *store.Store, error) {
	meta, err := e.registry.Get(ctx, dataset)
	if err != nil {
		return registry.Meta{}, nil, err
	}
	allowed := false
	for _, t := range allowedTypes {
		if meta.DatasetType == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return registry.Meta{}, nil, geoerr.New(geoerr.KindUnsupported,
			"operation does not support dataset type %s (dataset %s)",
			meta.DatasetType, dataset)
	}
	if !e.catalog.Exists(dataset) {
		return registry.Meta{}, nil, geoerr.New(geoerr.KindNotFound,
			"no store found for dataset %s", dataset)
	}
	st, err := e.catalog.Open(ctx, dataset)
	if err != nil {
		return registry.Meta{}, nil, err
	}
	return meta, st, nil
}

func (e *Engine) queryCellRows(ctx context.Context, st *store.Store, tableName, cellCol string, meta registry.Meta, pred *sqlbuild.Predicate) ([]CellDataRow, error) {
	valNames := meta.ValueColumnNames()
	cols := append([]string{cellCol, hexgrid.LatitudeCol, hexgrid.LongitudeCol}, valNames...)
	where, args := sqlbuild.Where(pred)
	sqlStr := fmt.Sprintf("SELECT %s FROM %s%s", //nolint:gosec // identifiers come from validated registry metadata
		strings.Join(cols, ", "), tableName, where)

	tbl, err := st.QueryTable(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	out := make([]CellDataRow, 0, tbl.Len())
	for _, row := range tbl.Rows {
		lat, _ := table.AsFloat64(row[1])
		lng, _ := table.AsFloat64(row[2])
		values := make(map[string]any, len(valNames))
		for i, name := range valNames {
			values[name] = row[3+i]
		}
		out = append(out, CellDataRow{
			Cell:      fmt.Sprintf("%v", row[0]),
			Latitude:  lat,
			Longitude: lng,
			Values:    values,
		})
	}
	return out, nil
}

func (e *Engine) queryPointRows(ctx context.Context, st *store.Store, dataset string, meta registry.Meta, pred *sqlbuild.Predicate) ([]PointDataRow, error) {
	allCols, err := st.TableColumns(ctx, dataset)
	if err != nil {
		return nil, err
	}
	var cellCols []string
	for _, c := range allCols {
		if hexgrid.IsPointResCol(c) {
			cellCols = append(cellCols, c)
		}
	}

	valNames := meta.ValueColumnNames()
	cols := append(append([]string{}, cellCols...), hexgrid.LatitudeCol, hexgrid.LongitudeCol)
	cols = append(cols, valNames...)
	where, args := sqlbuild.Where(pred)
	sqlStr := fmt.Sprintf("SELECT %s FROM %s%s", //nolint:gosec // identifiers come from validated registry metadata
		strings.Join(cols, ", "), dataset, where)

	tbl, err := st.QueryTable(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	out := make([]PointDataRow, 0, tbl.Len())
	for _, row := range tbl.Rows {
		cells := make(map[string]string, len(cellCols))
		for i, c := range cellCols {
			if row[i] != nil {
				cells[c] = fmt.Sprintf("%v", row[i])
			}
		}
		lat, _ := table.AsFloat64(row[len(cellCols)])
		lng, _ := table.AsFloat64(row[len(cellCols)+1])
		values := make(map[string]any, len(valNames))
		for i, name := range valNames {
			values[name] = row[len(cellCols)+2+i]
		}
		out = append(out, PointDataRow{
			Latitude:  lat,
			Longitude: lng,
			Cells:     cells,
			Values:    values,
		})
	}
	return out, nil
}

// h3RadiusPredicate returns the spatial predicate for an h3 radius
// query, or nil when the radius disables filtering.
func h3RadiusPredicate(lat, lng, radiusKM float64, resolution int) (*sqlbuild.Predicate, error) {
	if radiusKM == -1 || radiusKM >= hexgrid.EarthCircumferenceKM {
		return nil, nil
	}
	minRadius, err := hexgrid.MinRadiusKM(resolution)
	if err != nil {
		return nil, err
	}
	if radiusKM < minRadius {
		return nil, geoerr.New(geoerr.KindInvalidArgument,
			"radius must be at least %f at resolution %d", minRadius, resolution)
	}
	return sqlbuild.WithinRadiusKM(hexgrid.LatitudeCol, hexgrid.LongitudeCol, lat, lng, radiusKM), nil
}

func pointRadiusPredicate(lat, lng, radiusKM float64) (*sqlbuild.Predicate, error) {
	if radiusKM == -1 || radiusKM >= hexgrid.EarthCircumferenceKM {
		return nil, nil
	}
	if radiusKM < 0 {
		return nil, geoerr.New(geoerr.KindInvalidArgument,
			"radius cannot be negative, got %f", radiusKM)
	}
	return sqlbuild.WithinRadiusKM(hexgrid.LatitudeCol, hexgrid.LongitudeCol, lat, lng, radiusKM), nil
}

// timeFilter builds the time predicate a dataset's interval requires.
// one_time datasets ignore time arguments entirely; yearly needs a
// year; monthly a year and month; daily all three.
func timeFilter(interval string, t TimeArgs) (*sqlbuild.Predicate, error) {
	switch interval {
	case registry.IntervalOneTime:
		return nil, nil
	case registry.IntervalYearly, registry.IntervalMonthly, registry.IntervalDaily:
	default:
		return nil, geoerr.New(geoerr.KindIntervalInvalid,
			"invalid interval %q", interval)
	}

	if t.Year == nil {
		return nil, geoerr.New(geoerr.KindIntervalInvalid,
			"year must be provided for interval %s", interval)
	}
	pred := sqlbuild.Equal(hexgrid.YearCol, *t.Year)

	if interval == registry.IntervalMonthly || interval == registry.IntervalDaily {
		if t.Month == nil {
			return nil, geoerr.New(geoerr.KindIntervalInvalid,
				"month must be provided for interval %s", interval)
		}
		pred = sqlbuild.And(pred, sqlbuild.Equal(hexgrid.MonthCol, *t.Month))
	}
	if interval == registry.IntervalDaily {
		if t.Day == nil {
			return nil, geoerr.New(geoerr.KindIntervalInvalid,
				"day must be provided for interval %s", interval)
		}
		pred = sqlbuild.And(pred, sqlbuild.Equal(hexgrid.DayCol, *t.Day))
	}
	return pred, nil
}

// h3TableName returns the physical table for an h3 dataset resolution.
func h3TableName(dataset string, resolution int) string {
	return fmt.Sprintf("%s_%d", dataset, resolution)
}

func chunkCells(cells []string, size int) [][]string {
	if len(cells) == 0 {
		return nil
	}
	var chunks [][]string
	for start := 0; start < len(cells); start += size {
		end := min(start+size, len(cells))
		chunks = append(chunks, cells[start:end])
	}
	return chunks
}
