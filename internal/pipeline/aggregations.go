package pipeline

import (
	"fmt"
	"strconv"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
)

func init() {
	RegisterAggregation("MinAggregation", newSimpleAggregation("min", aggMin))
	RegisterAggregation("MaxAggregation", newSimpleAggregation("max", aggMax))
	RegisterAggregation("MeanAggregation", newSimpleAggregation("mean", aggMean))
	RegisterAggregation("MedianAggregation", newSimpleAggregation("median", aggMedian))
	RegisterAggregation("CountWithinBounds", newCountWithinBounds)
}

// simpleAggregation wraps a parameterless reduction whose suffix is
// its own name.
type simpleAggregation struct {
	suffix string
	fn     func([]float64) any
}

func newSimpleAggregation(suffix string, fn func([]float64) any) AggregationFactory {
	return func(_ map[string]any, _ Deps) (Aggregation, error) {
		return &simpleAggregation{suffix: suffix, fn: fn}, nil
	}
}

func (a *simpleAggregation) Suffix() string { return a.suffix }

func (a *simpleAggregation) Aggregate(values []float64) any {
	if len(values) == 0 {
		return nil
	}
	return a.fn(values)
}

func aggMin(values []float64) any {
	out := values[0]
	for _, v := range values[1:] {
		if v < out {
			out = v
		}
	}
	return out
}

func aggMax(values []float64) any {
	out := values[0]
	for _, v := range values[1:] {
		if v > out {
			out = v
		}
	}
	return out
}

func aggMean(values []float64) any {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func aggMedian(values []float64) any {
	sorted := sortFloats(values)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// countWithinBounds counts values inside an inclusive [min, max]
// range; either bound may be open. Exists mostly to show how a
// parameterized, non-builtin aggregation plugs in.
type countWithinBounds struct {
	min *float64
	max *float64
}

type countWithinBoundsConfig struct {
	Min *float64 `koanf:"min"`
	Max *float64 `koanf:"max"`
}

func newCountWithinBounds(params map[string]any, _ Deps) (Aggregation, error) {
	var conf countWithinBoundsConfig
	if err := decodeParams(params, &conf); err != nil {
		return nil, err
	}
	if conf.Min == nil && conf.Max == nil {
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"CountWithinBounds requires that either or both of min and max be set")
	}
	return &countWithinBounds{min: conf.Min, max: conf.Max}, nil
}

func (a *countWithinBounds) Suffix() string {
	return fmt.Sprintf("within_bounds_%s_%s", boundLabel(a.min), boundLabel(a.max))
}

func boundLabel(v *float64) string {
	if v == nil {
		return "none"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func (a *countWithinBounds) Aggregate(values []float64) any {
	count := 0
	for _, v := range values {
		if a.min != nil && v < *a.min {
			continue
		}
		if a.max != nil && v > *a.max {
			continue
		}
		count++
	}
	return count
}
