// Package pipeline is the declarative loading pipeline: a reader, zero
// or more preprocessors, a cell-aggregation stage, zero or more
// postprocessors, and a writer. Steps are named by string discriminator
// in configuration and resolved against closed registries at build
// time, so a bad step name or a conflicting aggregation fails before
// any data is read.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/table"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

// Reader produces the raw tabular dataset. Latitude and longitude
// columns must be present in its output.
type Reader interface {
	Read(ctx context.Context) (*table.Table, error)
	DataColumns() []string
	KeyColumns() []string
}

// Preprocessor transforms the table before aggregation.
type Preprocessor interface {
	Run(ctx context.Context, tbl *table.Table) (*table.Table, error)
}

// Aggregation reduces one data column's values within a cell group.
// Its suffix names the output column as <data_column>_<suffix>.
type Aggregation interface {
	Suffix() string
	Aggregate(values []float64) any
}

// Postprocessor transforms the table after aggregation.
type Postprocessor interface {
	Run(ctx context.Context, tbl *table.Table) (*table.Table, error)
}

// Writer persists the final table.
type Writer interface {
	Write(ctx context.Context, tbl *table.Table) error
}

// Pipeline is one fully-resolved loading run.
type Pipeline struct {
	reader     Reader
	pre        []Preprocessor
	aggs       []Aggregation
	post       []Postprocessor
	writer     Writer
	resolution *int
	keyCols    []string
	logger     *slog.Logger
}

// NewPipeline assembles a pipeline and validates its construction-time
// invariants: aggregation steps require a resolution, and every
// aggregation output column name must be unique.
func NewPipeline(reader Reader, pre []Preprocessor, aggs []Aggregation, post []Postprocessor, writer Writer, resolution *int, keyCols []string, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if reader == nil {
		return nil, geoerr.New(geoerr.KindConfigInvalid, "pipeline has no reading step")
	}
	if writer == nil {
		return nil, geoerr.New(geoerr.KindConfigInvalid, "pipeline has no output step")
	}
	if resolution == nil && len(aggs) > 0 {
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"aggregation steps require aggregation_resolution to be set,"+
				" but it was unset with %d aggregation steps", len(aggs))
	}
	if resolution != nil && !hexgrid.ValidResolution(*resolution) {
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"aggregation_resolution %d out of range", *resolution)
	}

	seen := map[string]bool{}
	for _, dataCol := range reader.DataColumns() {
		for _, agg := range aggs {
			name := dataCol + "_" + agg.Suffix()
			if seen[name] {
				return nil, geoerr.New(geoerr.KindConfigInvalid,
					"aggregation output column name %s is already in use by another aggregation", name)
			}
			seen[name] = true
		}
	}

	return &Pipeline{
		reader:     reader,
		pre:        pre,
		aggs:       aggs,
		post:       post,
		writer:     writer,
		resolution: resolution,
		keyCols:    keyCols,
		logger:     logger,
	}, nil
}

// Run executes the pipeline end to end.
func (p *Pipeline) Run(ctx context.Context) error {
	logger := p.logger.With("run_id", uuid.NewString())

	tbl, err := p.reader.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading step failed: %w", err)
	}
	logger.Info("read input", "rows", tbl.Len(), "columns", len(tbl.Columns))

	for i, step := range p.pre {
		if tbl, err = step.Run(ctx, tbl); err != nil {
			return fmt.Errorf("preprocessing step %d failed: %w", i, err)
		}
	}

	if tbl, err = p.aggregateByCell(tbl); err != nil {
		return err
	}

	for i, step := range p.post {
		if tbl, err = step.Run(ctx, tbl); err != nil {
			return fmt.Errorf("postprocessing step %d failed: %w", i, err)
		}
	}

	if err := p.writer.Write(ctx, tbl); err != nil {
		return fmt.Errorf("output step failed: %w", err)
	}
	logger.Info("pipeline complete", "rows", tbl.Len())
	return nil
}

// aggregateByCell assigns each row its grid cell at the configured
// resolution, groups by key columns plus cell, and applies every
// aggregation to every data column. With no aggregation steps the
// table passes through untouched.
func (p *Pipeline) aggregateByCell(tbl *table.Table) (*table.Table, error) {
	if len(p.aggs) == 0 {
		return tbl, nil
	}

	latIdx := tbl.ColumnIndex(hexgrid.LatitudeCol)
	lngIdx := tbl.ColumnIndex(hexgrid.LongitudeCol)
	if latIdx < 0 || lngIdx < 0 {
		return nil, geoerr.New(geoerr.KindInvalidArgument,
			"aggregation input is missing latitude/longitude columns")
	}

	keyIdx := make([]int, len(p.keyCols))
	for i, c := range p.keyCols {
		idx := tbl.ColumnIndex(c)
		if idx < 0 {
			return nil, geoerr.New(geoerr.KindInvalidArgument,
				"aggregation key column %s not present in input", c)
		}
		keyIdx[i] = idx
	}
	dataCols := p.reader.DataColumns()
	dataIdx := make([]int, len(dataCols))
	for i, c := range dataCols {
		idx := tbl.ColumnIndex(c)
		if idx < 0 {
			return nil, geoerr.New(geoerr.KindInvalidArgument,
				"data column %s not present in input", c)
		}
		dataIdx[i] = idx
	}

	type group struct {
		keyValues []any
		cell      string
		values    [][]float64
	}
	var order []string
	groups := map[string]*group{}
	for _, row := range tbl.Rows {
		lat, ok := table.AsFloat64(row[latIdx])
		if !ok {
			return nil, geoerr.New(geoerr.KindInvalidArgument, "non-numeric latitude value")
		}
		lng, ok := table.AsFloat64(row[lngIdx])
		if !ok {
			return nil, geoerr.New(geoerr.KindInvalidArgument, "non-numeric longitude value")
		}
		cell, err := hexgrid.CellFromLatLng(lat, lng, *p.resolution)
		if err != nil {
			return nil, err
		}

		keyParts := make([]string, 0, len(keyIdx)+1)
		keyValues := make([]any, len(keyIdx))
		for i, ki := range keyIdx {
			keyValues[i] = row[ki]
			keyParts = append(keyParts, fmt.Sprintf("%v", row[ki]))
		}
		keyParts = append(keyParts, cell)
		key := strings.Join(keyParts, "\x00")

		g, ok := groups[key]
		if !ok {
			g = &group{keyValues: keyValues, cell: cell, values: make([][]float64, len(dataCols))}
			groups[key] = g
			order = append(order, key)
		}
		for i, di := range dataIdx {
			if v, ok := table.AsFloat64(row[di]); ok {
				g.values[i] = append(g.values[i], v)
			}
		}
	}

	outCols := append([]string{}, p.keyCols...)
	outCols = append(outCols, hexgrid.CellCol)
	for _, dataCol := range dataCols {
		for _, agg := range p.aggs {
			outCols = append(outCols, dataCol+"_"+agg.Suffix())
		}
	}
	out := table.New(outCols...)
	for _, key := range order {
		g := groups[key]
		row := append([]any{}, g.keyValues...)
		row = append(row, g.cell)
		for i := range dataCols {
			for _, agg := range p.aggs {
				row = append(row, agg.Aggregate(g.values[i]))
			}
		}
		if err := out.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	p.logger.Info("aggregated by cell",
		"resolution", *p.resolution, "groups", out.Len())
	return out, nil
}

// sortFloats returns a sorted copy.
func sortFloats(values []float64) []float64 {
	out := append([]float64{}, values...)
	sort.Float64s(out)
	return out
}
