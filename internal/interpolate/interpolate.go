// Package interpolate regrids scattered samples onto hexagonal grid
// cells using inverse-distance weighting. Target cells are processed in
// chunks by a bounded worker pool; a failed chunk is reported alongside
// the successful rows rather than aborting the whole run.
package interpolate

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/dhconnelly/rtreego"
	"golang.org/x/sync/errgroup"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

const (
	// neighborRetries is how many times the neighbor count is escalated
	// (k, 2k, 3k, 4k) before a cell's column is left null.
	neighborRetries = 4

	parallelChunkSize = 2000
	serialChunkSize   = 10000
)

// Samples is the scattered input data: parallel coordinate slices plus
// one value slice per named column.
type Samples struct {
	Latitudes  []float64
	Longitudes []float64
	ValueNames []string
	Values     map[string][]float64
}

// Len returns the number of samples.
func (s Samples) Len() int { return len(s.Latitudes) }

// Validate checks that every slice has the same length.
func (s Samples) Validate() error {
	n := len(s.Latitudes)
	if n == 0 {
		return geoerr.New(geoerr.KindInvalidArgument, "no samples provided")
	}
	if len(s.Longitudes) != n {
		return geoerr.New(geoerr.KindArrayLengthMismatch,
			"latitude and longitude counts differ: %d vs %d", n, len(s.Longitudes))
	}
	for _, name := range s.ValueNames {
		vals, ok := s.Values[name]
		if !ok {
			return geoerr.New(geoerr.KindInvalidArgument,
				"value column %s has no data", name)
		}
		if len(vals) != n {
			return geoerr.New(geoerr.KindArrayLengthMismatch,
				"value column %s has %d entries for %d samples", name, len(vals), n)
		}
	}
	return nil
}

// Options configures one interpolation run.
type Options struct {
	Resolution   int
	NumNeighbors int
	Power        float64
	// RegionCells restricts the target cells. When empty, every cell
	// of the resolution is interpolated.
	RegionCells    []string
	MaxParallelism int
}

// Row is one interpolated output cell. A value is nil when even the
// escalated neighbor search produced no usable weight.
type Row struct {
	Cell      string
	Latitude  float64
	Longitude float64
	Values    map[string]any
}

// ChunkFailure records one failed chunk of target cells.
type ChunkFailure struct {
	Chunk int
	Err   error
}

// Result carries the interpolated rows and any chunk failures. Row
// order between chunks is not guaranteed; treat Rows as a set.
type Result struct {
	Rows     []Row
	Failures []ChunkFailure
}

// Complete reports whether every chunk succeeded.
func (r *Result) Complete() bool { return len(r.Failures) == 0 }

// sampleEntry is an r-tree leaf pointing back into the sample slices.
type sampleEntry struct {
	index int
	rect  rtreego.Rect
}

func (s *sampleEntry) Bounds() rtreego.Rect { return s.rect }

var _ rtreego.Spatial = (*sampleEntry)(nil)

// Interpolator computes IDW regrids. It holds no state between runs.
type Interpolator struct {
	logger *slog.Logger
}

// New returns an interpolator.
func New(logger *slog.Logger) *Interpolator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Interpolator{logger: logger}
}

// Interpolate regrids the samples onto the target cells.
func (ip *Interpolator) Interpolate(ctx context.Context, samples Samples, opts Options) (*Result, error) {
	if err := samples.Validate(); err != nil {
		return nil, err
	}
	if !hexgrid.ValidResolution(opts.Resolution) {
		return nil, geoerr.New(geoerr.KindInvalidArgument,
			"resolution %d out of range", opts.Resolution)
	}
	if opts.NumNeighbors < 1 {
		return nil, geoerr.New(geoerr.KindInvalidArgument,
			"num_neighbors must be at least 1, got %d", opts.NumNeighbors)
	}

	tree := rtreego.NewTree(2, 25, 50)
	for i := range samples.Latitudes {
		tree.Insert(&sampleEntry{
			index: i,
			rect:  rtreego.Point{samples.Latitudes[i], samples.Longitudes[i]}.ToRect(1e-9),
		})
	}

	cells := opts.RegionCells
	if len(cells) == 0 {
		var err error
		cells, err = hexgrid.AllCells(opts.Resolution)
		if err != nil {
			return nil, err
		}
	}
	ip.logger.Info("interpolating cells",
		"cells", len(cells), "samples", samples.Len(), "resolution", opts.Resolution)

	parallel := opts.MaxParallelism > 1
	chunkSize := serialChunkSize
	if parallel {
		chunkSize = parallelChunkSize
	}
	var chunks [][]string
	for start := 0; start < len(cells); start += chunkSize {
		end := min(start+chunkSize, len(cells))
		chunks = append(chunks, cells[start:end])
	}

	chunkRows := make([][]Row, len(chunks))
	chunkErrs := make([]error, len(chunks))

	if parallel {
		grp, gctx := errgroup.WithContext(ctx)
		grp.SetLimit(opts.MaxParallelism)
		for i, chunk := range chunks {
			grp.Go(func() error {
				chunkRows[i], chunkErrs[i] = ip.interpolateChunk(gctx, samples, tree, chunk, opts)
				return nil
			})
		}
		// Workers record failures instead of returning them, so Wait
		// only reports a goroutine panic path.
		if err := grp.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, chunk := range chunks {
			chunkRows[i], chunkErrs[i] = ip.interpolateChunk(ctx, samples, tree, chunk, opts)
		}
	}

	result := &Result{}
	for i := range chunks {
		if chunkErrs[i] != nil {
			ip.logger.Warn("interpolation chunk failed",
				"chunk", i, "error", chunkErrs[i])
			result.Failures = append(result.Failures, ChunkFailure{Chunk: i, Err: chunkErrs[i]})
			continue
		}
		result.Rows = append(result.Rows, chunkRows[i]...)
	}
	return result, nil
}

func (ip *Interpolator) interpolateChunk(ctx context.Context, samples Samples, tree *rtreego.Rtree, cells []string, opts Options) ([]Row, error) {
	rows := make([]Row, 0, len(cells))
	for _, cell := range cells {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lat, lng, err := hexgrid.CellToLatLng(cell)
		if err != nil {
			return nil, fmt.Errorf("failed to locate cell %s: %w", cell, err)
		}

		// Escalate the neighbor count until every column resolves.
		var values map[string]any
		for i := 1; i <= neighborRetries; i++ {
			values = ip.interpolatePoint(samples, tree, lat, lng, opts.NumNeighbors*i, opts.Power)
			if !hasNil(values) {
				break
			}
		}
		rows = append(rows, Row{Cell: cell, Latitude: lat, Longitude: lng, Values: values})
	}
	return rows, nil
}

// interpolatePoint computes the IDW estimate of every value column at
// one point from its k nearest samples.
func (ip *Interpolator) interpolatePoint(samples Samples, tree *rtreego.Rtree, lat, lng float64, k int, power float64) map[string]any {
	if k > samples.Len() {
		k = samples.Len()
	}
	neighbors := tree.NearestNeighbors(k, rtreego.Point{lat, lng})

	indices := make([]int, 0, len(neighbors))
	weights := make([]float64, 0, len(neighbors))
	exact := -1
	for _, n := range neighbors {
		entry, ok := n.(*sampleEntry)
		if !ok || entry == nil {
			continue
		}
		d := math.Hypot(lat-samples.Latitudes[entry.index], lng-samples.Longitudes[entry.index])
		if d == 0 {
			exact = entry.index
			break
		}
		indices = append(indices, entry.index)
		weights = append(weights, 1/math.Pow(d, power))
	}

	values := make(map[string]any, len(samples.ValueNames))
	if exact >= 0 {
		// A sample sits exactly on the target point; its values win
		// outright rather than dividing by a zero distance.
		for _, name := range samples.ValueNames {
			values[name] = samples.Values[name][exact]
		}
		return values
	}

	var weightSum float64
	for _, w := range weights {
		weightSum += w
	}
	for _, name := range samples.ValueNames {
		var numerator float64
		for i, idx := range indices {
			numerator += weights[i] * samples.Values[name][idx]
		}
		if weightSum == 0 || numerator == 0 {
			values[name] = nil
		} else {
			values[name] = numerator / weightSum
		}
	}
	return values
}

func hasNil(values map[string]any) bool {
	for _, v := range values {
		if v == nil {
			return true
		}
	}
	return false
}
