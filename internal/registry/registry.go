// Package registry is the dataset metadata catalog. Every dataset known
// to the system has exactly one immutable entry describing its columns,
// type, and reporting interval; all other components consult the
// registry before touching a dataset store.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/store"
)

// StoreName is the reserved name of the registry's own store and table.
// No dataset may be registered under it.
const StoreName = "dataset_metadata"

// Dataset types.
const (
	TypeH3      = "h3"
	TypePoint   = "point"
	TypeH3Index = "h3_index"
)

// Reporting intervals.
const (
	IntervalOneTime = "one_time"
	IntervalYearly  = "yearly"
	IntervalMonthly = "monthly"
	IntervalDaily   = "daily"
)

var datasetTypes = map[string]bool{
	TypeH3: true, TypePoint: true, TypeH3Index: true,
}

var intervals = map[string]bool{
	IntervalOneTime: true, IntervalYearly: true,
	IntervalMonthly: true, IntervalDaily: true,
}

// columnNamePattern restricts column names to alphanumerics and
// underscores so they can be spliced into SQL identifiers safely.
var columnNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Column is one named, typed dataset column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Meta is one registry entry.
type Meta struct {
	Name         string
	Description  string
	KeyColumns   []Column
	ValueColumns []Column
	DatasetType  string
	Interval     string
}

// Columns returns key columns followed by value columns.
func (m Meta) Columns() []Column {
	out := make([]Column, 0, len(m.KeyColumns)+len(m.ValueColumns))
	out = append(out, m.KeyColumns...)
	out = append(out, m.ValueColumns...)
	return out
}

// ValueColumnNames returns the names of the value columns in order.
func (m Meta) ValueColumnNames() []string {
	names := make([]string, len(m.ValueColumns))
	for i, c := range m.ValueColumns {
		names[i] = c.Name
	}
	return names
}

// Registry persists dataset metadata in its own store under the
// catalog root.
type Registry struct {
	catalog *store.Catalog
	logger  *slog.Logger
}

// New returns a registry backed by the given catalog.
func New(catalog *store.Catalog, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{catalog: catalog, logger: logger}
}

func (r *Registry) open(ctx context.Context) (*store.Store, error) {
	st, err := r.catalog.Open(ctx, StoreName)
	if err != nil {
		return nil, err
	}
	err = st.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			dataset_name VARCHAR PRIMARY KEY,
			description VARCHAR,
			key_columns VARCHAR,
			value_columns VARCHAR,
			dataset_type VARCHAR,
			interval VARCHAR
		)
	`, StoreName))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// Register validates and persists a new dataset entry. Column type
// problems are aggregated across all columns into a single error so the
// caller sees every bad column at once, not just the first.
func (r *Registry) Register(ctx context.Context, meta Meta) error {
	if meta.Name == "" {
		return geoerr.New(geoerr.KindInvalidArgument, "dataset name is required")
	}
	if meta.Name == StoreName {
		return geoerr.New(geoerr.KindAlreadyExists,
			"dataset name %s is reserved for the metadata registry", meta.Name)
	}
	if !datasetTypes[meta.DatasetType] {
		return geoerr.New(geoerr.KindInvalidArgument,
			"unknown dataset type %q", meta.DatasetType)
	}
	if meta.Interval == "" {
		meta.Interval = IntervalOneTime
	}
	if !intervals[meta.Interval] {
		return geoerr.New(geoerr.KindIntervalInvalid,
			"unknown interval %q", meta.Interval)
	}

	if err := validateColumnNames(meta.Columns()); err != nil {
		return err
	}

	var typeErrs []string
	canonKeys, errs := canonicalizeColumns(meta.KeyColumns)
	typeErrs = append(typeErrs, errs...)
	canonValues, errs := canonicalizeColumns(meta.ValueColumns)
	typeErrs = append(typeErrs, errs...)
	if len(typeErrs) > 0 {
		return geoerr.New(geoerr.KindInvalidColumnType,
			"invalid column types: %s", strings.Join(typeErrs, "; "))
	}
	meta.KeyColumns = canonKeys
	meta.ValueColumns = canonValues

	st, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	exists, err := r.existsIn(ctx, st, meta.Name)
	if err != nil {
		return err
	}
	if exists {
		return geoerr.New(geoerr.KindAlreadyExists,
			"dataset %s is already registered", meta.Name)
	}

	keyJSON, err := json.Marshal(meta.KeyColumns)
	if err != nil {
		return fmt.Errorf("failed to encode key columns: %w", err)
	}
	valueJSON, err := json.Marshal(meta.ValueColumns)
	if err != nil {
		return fmt.Errorf("failed to encode value columns: %w", err)
	}
	err = st.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?)", StoreName),
		meta.Name, meta.Description, string(keyJSON), string(valueJSON),
		meta.DatasetType, meta.Interval)
	if err != nil {
		return err
	}
	r.logger.Info("registered dataset",
		"dataset", meta.Name, "type", meta.DatasetType, "interval", meta.Interval)
	return nil
}

// Exists reports whether a dataset is registered.
func (r *Registry) Exists(ctx context.Context, name string) (bool, error) {
	if !r.catalog.Exists(StoreName) {
		return false, nil
	}
	st, err := r.open(ctx)
	if err != nil {
		return false, err
	}
	defer st.Close()
	return r.existsIn(ctx, st, name)
}

func (r *Registry) existsIn(ctx context.Context, st *store.Store, name string) (bool, error) {
	var count int
	err := st.QueryRow(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE dataset_name = ?", StoreName), name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up dataset %s: %w", name, err)
	}
	return count > 0, nil
}

// Get returns a dataset's metadata. Column names are re-validated on
// read so a corrupted entry cannot flow into SQL assembly downstream.
func (r *Registry) Get(ctx context.Context, name string) (Meta, error) {
	if !r.catalog.Exists(StoreName) {
		return Meta{}, geoerr.New(geoerr.KindNotFound, "dataset %s is not registered", name)
	}
	st, err := r.open(ctx)
	if err != nil {
		return Meta{}, err
	}
	defer st.Close()

	row := st.QueryRow(ctx, fmt.Sprintf(`
		SELECT dataset_name, description, key_columns, value_columns, dataset_type, interval
		FROM %s WHERE dataset_name = ?
	`, StoreName), name)
	meta, err := scanMeta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Meta{}, geoerr.New(geoerr.KindNotFound, "dataset %s is not registered", name)
	}
	if err != nil {
		return Meta{}, err
	}
	if err := validateColumnNames(meta.Columns()); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

// List returns all registry entries ordered by dataset name.
func (r *Registry) List(ctx context.Context) ([]Meta, error) {
	if !r.catalog.Exists(StoreName) {
		return nil, nil
	}
	st, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	rows, err := st.Query(ctx, fmt.Sprintf(`
		SELECT dataset_name, description, key_columns, value_columns, dataset_type, interval
		FROM %s
	`, StoreName))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Meta
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registry entries: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeta(row rowScanner) (Meta, error) {
	var meta Meta
	var keyJSON, valueJSON string
	err := row.Scan(&meta.Name, &meta.Description, &keyJSON, &valueJSON,
		&meta.DatasetType, &meta.Interval)
	if err != nil {
		return Meta{}, err
	}
	if err := json.Unmarshal([]byte(keyJSON), &meta.KeyColumns); err != nil {
		return Meta{}, fmt.Errorf("failed to decode key columns of %s: %w", meta.Name, err)
	}
	if err := json.Unmarshal([]byte(valueJSON), &meta.ValueColumns); err != nil {
		return Meta{}, fmt.Errorf("failed to decode value columns of %s: %w", meta.Name, err)
	}
	return meta, nil
}

func validateColumnNames(cols []Column) error {
	for _, c := range cols {
		if !columnNamePattern.MatchString(c.Name) {
			return geoerr.New(geoerr.KindInvalidArgument,
				"column name %q may only contain letters, digits, and underscores", c.Name)
		}
	}
	return nil
}

func canonicalizeColumns(cols []Column) ([]Column, []string) {
	out := make([]Column, len(cols))
	var errs []string
	for i, c := range cols {
		canon, err := CanonicalType(c.Type)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", c.Name, err))
			continue
		}
		out[i] = Column{Name: c.Name, Type: canon}
	}
	return out, errs
}
