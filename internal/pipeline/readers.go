package pipeline

import (
	"context"
	"os"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/store"
	"github.com/hexmesh-labs/hexmesh/internal/table"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

func init() {
	RegisterReader("CSVReader", newCSVReader)
	RegisterReader("ParquetReader", newParquetReader)
}

// fileReaderConfig is shared by the file-based reading steps.
type fileReaderConfig struct {
	FilePath    string   `koanf:"file_path"`
	DataColumns []string `koanf:"data_columns"`
	KeyColumns  []string `koanf:"key_columns"`
	Header      *bool    `koanf:"header"`
}

func (c fileReaderConfig) validate(stepName string) error {
	if c.FilePath == "" {
		return geoerr.New(geoerr.KindConfigInvalid,
			"file_path is mandatory for %s", stepName)
	}
	if _, err := os.Stat(c.FilePath); err != nil {
		return geoerr.New(geoerr.KindConfigInvalid,
			"file %s specified in %s conf does not exist", c.FilePath, stepName)
	}
	if len(c.DataColumns) == 0 {
		return geoerr.New(geoerr.KindConfigInvalid,
			"data_columns is mandatory for %s", stepName)
	}
	return nil
}

// fileReader reads a tabular file through DuckDB's scan functions and
// projects it down to the geometry, key, and data columns.
type fileReader struct {
	conf    fileReaderConfig
	parquet bool
}

func newCSVReader(params map[string]any, _ Deps) (Reader, error) {
	var conf fileReaderConfig
	if err := decodeParams(params, &conf); err != nil {
		return nil, err
	}
	if err := conf.validate("CSVReader"); err != nil {
		return nil, err
	}
	return &fileReader{conf: conf}, nil
}

func newParquetReader(params map[string]any, _ Deps) (Reader, error) {
	var conf fileReaderConfig
	if err := decodeParams(params, &conf); err != nil {
		return nil, err
	}
	if err := conf.validate("ParquetReader"); err != nil {
		return nil, err
	}
	return &fileReader{conf: conf, parquet: true}, nil
}

func (r *fileReader) DataColumns() []string { return r.conf.DataColumns }
func (r *fileReader) KeyColumns() []string  { return r.conf.KeyColumns }

func (r *fileReader) Read(ctx context.Context) (*table.Table, error) {
	mem, err := store.OpenMemory(ctx)
	if err != nil {
		return nil, err
	}
	defer mem.Close()

	var tbl *table.Table
	if r.parquet {
		tbl, err = mem.ReadParquet(ctx, r.conf.FilePath)
	} else {
		header := true
		if r.conf.Header != nil {
			header = *r.conf.Header
		}
		tbl, err = mem.ReadCSV(ctx, r.conf.FilePath, header)
	}
	if err != nil {
		return nil, err
	}

	for _, required := range []string{hexgrid.LatitudeCol, hexgrid.LongitudeCol} {
		if !tbl.HasColumn(required) {
			return nil, geoerr.New(geoerr.KindInvalidArgument,
				"loaded dataset did not include expected column %s, columns were: %v",
				required, tbl.Columns)
		}
	}
	for _, col := range r.conf.DataColumns {
		if !tbl.HasColumn(col) {
			return nil, geoerr.New(geoerr.KindInvalidArgument,
				"data column %s specified in data_columns did not exist in the loaded data", col)
		}
	}
	for _, col := range r.conf.KeyColumns {
		if !tbl.HasColumn(col) {
			return nil, geoerr.New(geoerr.KindInvalidArgument,
				"key column %s specified in key_columns did not exist in the loaded data", col)
		}
	}

	keep := append([]string{}, r.conf.KeyColumns...)
	keep = append(keep, hexgrid.LatitudeCol, hexgrid.LongitudeCol)
	keep = append(keep, r.conf.DataColumns...)
	return tbl.Select(keep...)
}
