package pipeline

import (
	"context"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/registry"
	"github.com/hexmesh-labs/hexmesh/internal/store"
	"github.com/hexmesh-labs/hexmesh/internal/table"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

func init() {
	RegisterWriter("StoreWriter", newStoreWriter)
	RegisterWriter("RegisteringStoreWriter", newRegisteringStoreWriter)
}

// Writer modes.
const (
	ModeCreate = "create"
	ModeInsert = "insert"
)

type storeWriterConfig struct {
	DatasetName string `koanf:"dataset_name"`
	Mode        string `koanf:"mode"`
}

func (c *storeWriterConfig) validate() error {
	if c.DatasetName == "" {
		return geoerr.New(geoerr.KindConfigInvalid,
			"dataset_name was not provided, it is mandatory for the output step")
	}
	if c.Mode == "" {
		c.Mode = ModeCreate
	}
	if c.Mode != ModeCreate && c.Mode != ModeInsert {
		return geoerr.New(geoerr.KindConfigInvalid,
			"mode %s is not allowed, must be %s or %s", c.Mode, ModeCreate, ModeInsert)
	}
	return nil
}

// storeWriter persists the table to the dataset's store. Create mode
// fails if the table already exists; insert mode appends by column
// name so datasets can accumulate over time.
type storeWriter struct {
	conf    storeWriterConfig
	catalog *store.Catalog
}

func newStoreWriter(params map[string]any, deps Deps) (Writer, error) {
	var conf storeWriterConfig
	if err := decodeParams(params, &conf); err != nil {
		return nil, err
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	if deps.Catalog == nil {
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"StoreWriter requires a store catalog")
	}
	return &storeWriter{conf: conf, catalog: deps.Catalog}, nil
}

func (w *storeWriter) Write(ctx context.Context, tbl *table.Table) error {
	st, err := w.catalog.Open(ctx, w.conf.DatasetName)
	if err != nil {
		return err
	}
	defer st.Close()

	exists, err := st.TableExists(ctx, w.conf.DatasetName)
	if err != nil {
		return err
	}
	if exists {
		if w.conf.Mode == ModeCreate {
			return geoerr.New(geoerr.KindAlreadyExists,
				"table %s already exists, cannot write in %s mode",
				w.conf.DatasetName, ModeCreate)
		}
		return st.InsertInto(ctx, w.conf.DatasetName, tbl)
	}
	return st.CreateTableFrom(ctx, w.conf.DatasetName, tbl)
}

type registeringWriterConfig struct {
	storeWriterConfig `koanf:",squash"`
	Description       string   `koanf:"description"`
	DatasetType       string   `koanf:"dataset_type"`
	Interval          string   `koanf:"interval"`
	KeyColumns        []string `koanf:"key_columns"`
}

// registeringStoreWriter persists the table like storeWriter and also
// derives a registry entry from the output schema, so a pipeline run
// leaves the dataset immediately queryable. Registration is skipped
// when the dataset is already in the catalog (insert mode appends to
// an existing entry's data).
type registeringStoreWriter struct {
	inner    storeWriter
	conf     registeringWriterConfig
	registry *registry.Registry
}

func newRegisteringStoreWriter(params map[string]any, deps Deps) (Writer, error) {
	var conf registeringWriterConfig
	if err := decodeParams(params, &conf); err != nil {
		return nil, err
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	if deps.Catalog == nil || deps.Registry == nil {
		return nil, geoerr.New(geoerr.KindConfigInvalid,
			"RegisteringStoreWriter requires a store catalog and metadata registry")
	}
	if conf.DatasetType == "" {
		conf.DatasetType = registry.TypeH3Index
	}
	return &registeringStoreWriter{
		inner:    storeWriter{conf: conf.storeWriterConfig, catalog: deps.Catalog},
		conf:     conf,
		registry: deps.Registry,
	}, nil
}

func (w *registeringStoreWriter) Write(ctx context.Context, tbl *table.Table) error {
	if err := w.inner.Write(ctx, tbl); err != nil {
		return err
	}

	exists, err := w.registry.Exists(ctx, w.conf.DatasetName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	meta := registry.Meta{
		Name:        w.conf.DatasetName,
		Description: w.conf.Description,
		DatasetType: w.conf.DatasetType,
		Interval:    w.conf.Interval,
	}
	keySet := map[string]bool{}
	for _, k := range w.conf.KeyColumns {
		keySet[k] = true
	}
	geometry := map[string]bool{
		hexgrid.CellCol:      true,
		hexgrid.LatitudeCol:  true,
		hexgrid.LongitudeCol: true,
	}
	for i, col := range tbl.Columns {
		spec := registry.Column{Name: col, Type: inferredType(tbl, i)}
		switch {
		case keySet[col] || geometry[col]:
			meta.KeyColumns = append(meta.KeyColumns, spec)
		default:
			meta.ValueColumns = append(meta.ValueColumns, spec)
		}
	}
	return w.registry.Register(ctx, meta)
}

// inferredType maps the first non-nil Go value of a column to a
// canonical registry type.
func inferredType(tbl *table.Table, col int) string {
	for _, row := range tbl.Rows {
		switch row[col].(type) {
		case nil:
			continue
		case bool:
			return "BOOLEAN"
		case int, int8, int16, int32, int64, uint, uint32, uint64:
			return "BIGINT"
		case float32, float64:
			return "DOUBLE"
		default:
			return "VARCHAR"
		}
	}
	return "VARCHAR"
}
