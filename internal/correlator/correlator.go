// Package correlator joins caller-supplied assets against one or more
// datasets by grid cell. Each request builds an ephemeral in-memory
// asset table carrying the asset's cell at every resolution, attaches
// the referenced dataset stores, and executes a single LEFT JOIN so an
// asset with no match in a dataset still appears with nulls.
package correlator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/sqlbuild"
	"github.com/hexmesh-labs/hexmesh/internal/store"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

const (
	assetTable    = "assets"
	cellColPrefix = "cell_"

	// DefaultResolution is the join resolution used when the caller
	// does not configure one.
	DefaultResolution = 7
)

// Filter types accepted on an AssetFilter.
const (
	FilterGreaterThan        = "greater_than"
	FilterGreaterThanOrEqual = "greater_than_or_equal"
	FilterLesserThan         = "lesser_than"
	FilterLesserThanOrEqual  = "lesser_than_or_equal"
	FilterEqualTo            = "equal_to"
)

var filterOps = map[string]string{
	FilterGreaterThan:        ">",
	FilterGreaterThanOrEqual: ">=",
	FilterLesserThan:         "<",
	FilterLesserThanOrEqual:  "<=",
	FilterEqualTo:            "=",
}

// LocatedAsset is one caller-supplied asset to correlate. The id must
// be unique within a request.
type LocatedAsset struct {
	ID        string
	Latitude  float64
	Longitude float64
}

// AssetFilter restricts a dataset's rows during the join. Rows where
// the column is null always pass: a dataset with no value for a cell
// must never exclude an asset.
type AssetFilter struct {
	Column      string
	FilterType  string
	TargetValue any
}

// DatasetArg names a dataset to join plus the filters to apply to it.
type DatasetArg struct {
	Name    string
	Filters []AssetFilter
}

// Result is the full correlated set: column names and row values, in
// query order. Never partial.
type Result struct {
	Columns []string
	Data    [][]any
}

// Correlator executes correlation requests against a store catalog.
type Correlator struct {
	catalog    *store.Catalog
	resolution int
	logger     *slog.Logger
}

// New returns a correlator joining at the given resolution. A
// resolution of 0 or less falls back to DefaultResolution.
func New(catalog *store.Catalog, resolution int, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &Correlator{catalog: catalog, resolution: resolution, logger: logger}
}

// Correlate joins every asset against every dataset and returns the
// materialized result. LEFT JOIN semantics guarantee one output row per
// asset per matching dataset row, and at least one row per asset.
func (c *Correlator) Correlate(ctx context.Context, assets []LocatedAsset, datasets []DatasetArg) (*Result, error) {
	if len(assets) == 0 {
		return nil, geoerr.New(geoerr.KindInvalidArgument, "asset list is empty")
	}
	if len(datasets) == 0 {
		return nil, geoerr.New(geoerr.KindInvalidArgument, "dataset list is empty")
	}

	db, err := c.createAssetDB(ctx, assets)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var preds []*sqlbuild.Predicate
	for _, ds := range datasets {
		if !c.catalog.Exists(ds.Name) {
			return nil, geoerr.New(geoerr.KindNotFound,
				"no store found for dataset %s", ds.Name)
		}
		dsPreds, err := c.validateDataset(ctx, ds)
		if err != nil {
			return nil, err
		}
		preds = append(preds, dsPreds...)
	}

	for _, ds := range datasets {
		if err := db.Attach(ctx, ds.Name, c.catalog.Path(ds.Name)); err != nil {
			return nil, err
		}
	}

	where, args := sqlbuild.Where(sqlbuild.And(preds...))
	sqlStr := c.joinQuery(datasets) + where

	tbl, err := db.QueryTable(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	c.logger.Info("correlated assets",
		"assets", len(assets), "datasets", len(datasets), "rows", tbl.Len())
	return &Result{Columns: tbl.Columns, Data: tbl.Rows}, nil
}

// createAssetDB builds the ephemeral in-memory asset table with one
// cell column per resolution and a non-unique index on the join
// resolution's column.
func (c *Correlator) createAssetDB(ctx context.Context, assets []LocatedAsset) (*store.Store, error) {
	db, err := store.OpenMemory(ctx)
	if err != nil {
		return nil, err
	}

	var cellDefs []string
	for res := hexgrid.MinResolution; res <= hexgrid.MaxResolution; res++ {
		cellDefs = append(cellDefs, fmt.Sprintf("%s%d VARCHAR", cellColPrefix, res))
	}
	createSQL := fmt.Sprintf(
		"CREATE TABLE %s (id VARCHAR, latitude DOUBLE, longitude DOUBLE, %s)",
		assetTable, strings.Join(cellDefs, ", "))
	if err := db.Exec(ctx, createSQL); err != nil {
		_ = db.Close()
		return nil, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", 3+16), ",")
	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (%s)", assetTable, placeholders)
	for _, asset := range assets {
		args := []any{asset.ID, asset.Latitude, asset.Longitude}
		for res := hexgrid.MinResolution; res <= hexgrid.MaxResolution; res++ {
			cell, err := hexgrid.CellFromLatLng(asset.Latitude, asset.Longitude, res)
			if err != nil {
				_ = db.Close()
				return nil, err
			}
			args = append(args, cell)
		}
		if err := db.Exec(ctx, insertSQL, args...); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	indexSQL := fmt.Sprintf("CREATE INDEX index_%s%d ON %s (%s%d)",
		cellColPrefix, c.resolution, assetTable, cellColPrefix, c.resolution)
	if err := db.Exec(ctx, indexSQL); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// validateDataset checks that the dataset table and every filter
// column exist, then translates the filters to predicates in order.
func (c *Correlator) validateDataset(ctx context.Context, ds DatasetArg) ([]*sqlbuild.Predicate, error) {
	conn, err := c.catalog.Open(ctx, ds.Name)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	exists, err := conn.TableExists(ctx, ds.Name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, geoerr.New(geoerr.KindNotFound,
			"table %s for dataset %s does not exist", ds.Name, ds.Name)
	}

	var preds []*sqlbuild.Predicate
	for _, f := range ds.Filters {
		op, ok := filterOps[f.FilterType]
		if !ok {
			return nil, geoerr.New(geoerr.KindInvalidArgument,
				"unrecognized filter type %q", f.FilterType)
		}
		hasCol, err := conn.ColumnExists(ctx, ds.Name, f.Column)
		if err != nil {
			return nil, err
		}
		if !hasCol {
			return nil, geoerr.New(geoerr.KindInvalidArgument,
				"column %s does not exist in table %s", f.Column, ds.Name)
		}
		preds = append(preds,
			sqlbuild.CompareOrNull(ds.Name+"."+f.Column, op, f.TargetValue))
	}
	return preds, nil
}

func (c *Correlator) joinQuery(datasets []DatasetArg) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM %s", assetTable)
	for _, ds := range datasets {
		fmt.Fprintf(&b, " LEFT JOIN %s.%s AS %s ON %s.%s%d = %s.%s",
			ds.Name, ds.Name, ds.Name,
			assetTable, cellColPrefix, c.resolution,
			ds.Name, hexgrid.CellCol)
	}
	return b.String()
}
