package loader

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/store"
	"github.com/hexmesh-labs/hexmesh/internal/table"
)

// A Source produces the raw tabular dataset a Loader turns into stored
// tables.
type Source interface {
	Read(ctx context.Context) (*table.Table, error)
}

// Column value types a CSVSource can parse.
const (
	ColTypeStr   = "str"
	ColTypeInt   = "int"
	ColTypeFloat = "float"
)

// ColumnSpec declares one CSV column by position: its name and how to
// parse it.
type ColumnSpec struct {
	Name string `koanf:"name"`
	Type string `koanf:"type"`
}

// CSVSource reads a CSV file with a declared, ordered column layout.
// Unlike the pipeline's CSVReader it does not rely on type sniffing;
// every column's type is stated up front.
type CSVSource struct {
	path      string
	hasHeader bool
	columns   []ColumnSpec
}

func NewCSVSource(path string, hasHeader bool, columns []ColumnSpec) (*CSVSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, geoerr.Wrap(geoerr.KindConfigInvalid, err, "file %s does not exist", path)
	}
	if info.IsDir() {
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"file %s is a directory, not a file", path)
	}
	if len(columns) == 0 {
		return nil, geoerr.New(geoerr.KindConfigInvalid, "no columns declared for %s", path)
	}
	for _, col := range columns {
		switch col.Type {
		case ColTypeStr, ColTypeInt, ColTypeFloat:
		default:
			return nil, geoerr.New(geoerr.KindConfigInvalid,
				"column type %s for column %s is not a supported type", col.Type, col.Name)
		}
	}
	return &CSVSource{path: path, hasHeader: hasHeader, columns: columns}, nil
}

func (s *CSVSource) Read(_ context.Context) (*table.Table, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, geoerr.Wrap(geoerr.KindWrongFileType, err, "failed to open %s", s.path)
	}
	defer f.Close()

	names := make([]string, len(s.columns))
	for i, col := range s.columns {
		names[i] = col.Name
	}
	out := table.New(names...)

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, geoerr.Wrap(geoerr.KindWrongFileType, err,
				"failed to parse %s as csv", s.path)
		}
		if first && s.hasHeader {
			first = false
			continue
		}
		first = false
		if len(record) != len(s.columns) {
			return nil, geoerr.New(geoerr.KindWrongColumnCount,
				"configuration expects %d columns, but row had %d columns",
				len(s.columns), len(record))
		}
		row := make([]any, len(record))
		for i, raw := range record {
			row[i], err = castValue(raw, s.columns[i].Type)
			if err != nil {
				return nil, err
			}
		}
		if err := out.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func castValue(raw, colType string) (any, error) {
	switch colType {
	case ColTypeStr:
		return raw, nil
	case ColTypeInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, geoerr.Wrap(geoerr.KindWrongFileType, err,
				"value %q is not an int", raw)
		}
		return v, nil
	case ColTypeFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, geoerr.Wrap(geoerr.KindWrongFileType, err,
				"value %q is not a float", raw)
		}
		return v, nil
	default:
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"column type %s is not a supported type", colType)
	}
}

// ParquetSource reads a parquet file through an in-memory analytic
// store.
type ParquetSource struct {
	path string
}

func NewParquetSource(path string) (*ParquetSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, geoerr.Wrap(geoerr.KindConfigInvalid, err, "file %s does not exist", path)
	}
	if info.IsDir() {
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"file %s is a directory, not a file", path)
	}
	return &ParquetSource{path: path}, nil
}

func (s *ParquetSource) Read(ctx context.Context) (*table.Table, error) {
	st, err := store.OpenMemory(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.ReadParquet(ctx, s.path)
}
