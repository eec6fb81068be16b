// Package sqlbuild assembles parameterized SQL predicates. Builders
// return a Predicate pairing a fragment with its bind arguments so
// callers never interpolate values into query text.
package sqlbuild

import (
	"fmt"
	"strings"
)

// InChunkSize caps the number of values per IN list. DuckDB handles
// large lists but the planner degrades well before the statement limit,
// so long membership tests are split into OR-ed chunks.
const InChunkSize = 20000

// Predicate is a SQL fragment plus its ordered bind arguments.
type Predicate struct {
	Fragment string
	Args     []any
}

var comparisonOps = map[string]bool{
	"=": true, "!=": true, "<>": true,
	"<": true, "<=": true, ">": true, ">=": true,
}

// ValidOp reports whether op is a supported comparison operator.
func ValidOp(op string) bool { return comparisonOps[op] }

// Compare builds "col op ?".
func Compare(col, op string, val any) *Predicate {
	return &Predicate{
		Fragment: fmt.Sprintf("%s %s ?", col, op),
		Args:     []any{val},
	}
}

// CompareOrNull builds "(col op ? OR col IS NULL)". Rows missing the
// column value pass the filter instead of being dropped.
func CompareOrNull(col, op string, val any) *Predicate {
	return &Predicate{
		Fragment: fmt.Sprintf("(%s %s ? OR %s IS NULL)", col, op, col),
		Args:     []any{val},
	}
}

// Equal builds "col = ?".
func Equal(col string, val any) *Predicate {
	return Compare(col, "=", val)
}

// Between builds "col >= ? AND col <= ?".
func Between(col string, lo, hi any) *Predicate {
	return &Predicate{
		Fragment: fmt.Sprintf("%s >= ? AND %s <= ?", col, col),
		Args:     []any{lo, hi},
	}
}

// In builds a membership test over values, split into OR-ed chunks of
// at most InChunkSize. Returns nil for an empty value list.
func In(col string, values []string) *Predicate {
	if len(values) == 0 {
		return nil
	}
	var chunks []string
	args := make([]any, 0, len(values))
	for start := 0; start < len(values); start += InChunkSize {
		end := min(start+InChunkSize, len(values))
		chunk := values[start:end]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		chunks = append(chunks, fmt.Sprintf("%s IN (%s)", col, placeholders))
		for _, v := range chunk {
			args = append(args, v)
		}
	}
	frag := strings.Join(chunks, " OR ")
	if len(chunks) > 1 {
		frag = "(" + frag + ")"
	}
	return &Predicate{Fragment: frag, Args: args}
}

// WithinRadiusKM builds a great-circle distance test against a fixed
// point: acos of the spherical law of cosines times the earth radius,
// compared to radiusKM. Latitude and longitude are converted to radians
// inline with the 0.0175 degree factor.
func WithinRadiusKM(latCol, lngCol string, lat, lng, radiusKM float64) *Predicate {
	frag := fmt.Sprintf(
		"acos(sin(? * 0.0175) * sin(%s * 0.0175) + "+
			"cos(? * 0.0175) * cos(%s * 0.0175) * cos((? - %s) * 0.0175)) * 6371 <= ?",
		latCol, latCol, lngCol)
	return &Predicate{
		Fragment: frag,
		Args:     []any{lat, lat, lng, radiusKM},
	}
}

// And joins predicates with AND, skipping nils. Returns nil when no
// predicate remains.
func And(preds ...*Predicate) *Predicate {
	var frags []string
	var args []any
	for _, p := range preds {
		if p == nil {
			continue
		}
		frags = append(frags, p.Fragment)
		args = append(args, p.Args...)
	}
	if len(frags) == 0 {
		return nil
	}
	return &Predicate{Fragment: strings.Join(frags, " AND "), Args: args}
}

// Where renders a predicate as a WHERE clause, or an empty string for
// a nil predicate.
func Where(p *Predicate) (string, []any) {
	if p == nil {
		return "", nil
	}
	return " WHERE " + p.Fragment, p.Args
}
