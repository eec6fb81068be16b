// Package store provides access to the per-dataset DuckDB stores that
// hold all HexMesh data. A Catalog resolves dataset names to store files
// under a single root directory; a Store wraps one open connection.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/hexmesh-labs/hexmesh/internal/table"
)

// StoreExt is the file extension of every dataset store.
const StoreExt = ".duckdb"

// Catalog resolves dataset names to store files under a root directory.
type Catalog struct {
	root   string
	logger *slog.Logger
}

// NewCatalog returns a catalog rooted at dir, creating the directory if
// it does not exist yet.
func NewCatalog(dir string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if dir == "" {
		return nil, fmt.Errorf("store root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root %s: %w", dir, err)
	}
	return &Catalog{root: dir, logger: logger}, nil
}

// Root returns the catalog's root directory.
func (c *Catalog) Root() string { return c.root }

// Path returns the store file path for a dataset.
func (c *Catalog) Path(dataset string) string {
	return filepath.Join(c.root, dataset+StoreExt)
}

// Exists reports whether a dataset store file exists.
func (c *Catalog) Exists(dataset string) bool {
	_, err := os.Stat(c.Path(dataset))
	return err == nil
}

// Open opens (creating if absent) the store for a dataset.
func (c *Catalog) Open(ctx context.Context, dataset string) (*Store, error) {
	return Open(ctx, c.Path(dataset))
}

// Open opens a DuckDB store at the given path. An empty path opens an
// in-memory store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb store: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// OpenMemory opens an ephemeral in-memory store.
func OpenMemory(ctx context.Context) (*Store, error) {
	return Open(ctx, "")
}

// Store wraps one open DuckDB connection.
type Store struct {
	db   *sql.DB
	path string
}

// Path returns the store file path (empty for in-memory stores).
func (s *Store) Path() string { return s.path }

// Close closes the store connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Exec executes a statement that returns no rows.
func (s *Store) Exec(ctx context.Context, sqlStr string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

// Query executes a statement that returns rows. The caller must close
// the result and check rows.Err after iteration.
func (s *Store) Query(ctx context.Context, sqlStr string, args ...any) (*sql.Rows, error) {
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return rows, nil
}

// QueryRow executes a statement expected to return at most one row.
func (s *Store) QueryRow(ctx context.Context, sqlStr string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, sqlStr, args...)
}

// QueryTable executes a statement and materializes the full result set.
func (s *Store) QueryTable(ctx context.Context, sqlStr string, args ...any) (*table.Table, error) {
	rows, err := s.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	out := table.New(cols...)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result rows: %w", err)
	}
	return out, nil
}

// TableExists reports whether a table exists in the store.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_name = ?
	`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return count > 0, nil
}

// ColumnExists reports whether a column exists on a table.
func (s *Store) ColumnExists(ctx context.Context, tableName, column string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.columns
		WHERE table_name = ? AND column_name = ?
	`, tableName, column).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check column %s.%s: %w", tableName, column, err)
	}
	return count > 0, nil
}

// TableColumns returns the ordered column names of a table.
func (s *Store) TableColumns(ctx context.Context, tableName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_name = ?
		ORDER BY ordinal_position
	`, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", tableName, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns of %s: %w", tableName, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not found", tableName)
	}
	return cols, nil
}

// Attach attaches another store file under an alias, making its tables
// addressable as alias.table.
func (s *Store) Attach(ctx context.Context, alias, path string) error {
	stmt := fmt.Sprintf("ATTACH DATABASE '%s' AS %s (READ_ONLY)", path, alias) //nolint:gosec // alias is a validated dataset name
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to attach %s as %s: %w", path, alias, err)
	}
	return nil
}

// CreateTableFrom creates a table with the given name from an in-memory
// table, inferring DuckDB column types from the first non-nil value of
// each column.
func (s *Store) CreateTableFrom(ctx context.Context, name string, tbl *table.Table) error {
	defs := make([]string, len(tbl.Columns))
	for i, col := range tbl.Columns {
		defs[i] = fmt.Sprintf("%s %s", col, inferType(tbl, i))
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", ")) //nolint:gosec // table name is a validated dataset name
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	return s.InsertInto(ctx, name, tbl)
}

// InsertInto appends the rows of an in-memory table, matching columns
// by name.
func (s *Store) InsertInto(ctx context.Context, name string, tbl *table.Table) error {
	if tbl.Len() == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tbl.Columns)), ",")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", //nolint:gosec // table name is a validated dataset name
		name, strings.Join(tbl.Columns, ", "), placeholders)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare insert into %s: %w", name, err)
	}
	for _, row := range tbl.Rows {
		if _, err := prepared.ExecContext(ctx, row...); err != nil {
			_ = prepared.Close()
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert into %s: %w", name, err)
		}
	}
	if err := prepared.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to close insert statement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert into %s: %w", name, err)
	}
	return nil
}

// ReadCSV reads a CSV file into memory using DuckDB's schema inference.
func (s *Store) ReadCSV(ctx context.Context, path string, header bool) (*table.Table, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	return s.QueryTable(ctx, fmt.Sprintf(
		"SELECT * FROM read_csv_auto('%s', header=%t)", abs, header))
}

// ReadParquet reads a Parquet file into memory.
func (s *Store) ReadParquet(ctx context.Context, path string) (*table.Table, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	return s.QueryTable(ctx, fmt.Sprintf(
		"SELECT * FROM read_parquet('%s')", abs))
}

// inferType maps the first non-nil Go value of a column to a DuckDB type.
func inferType(tbl *table.Table, col int) string {
	for _, row := range tbl.Rows {
		switch row[col].(type) {
		case nil:
			continue
		case bool:
			return "BOOLEAN"
		case int, int32, int64:
			return "BIGINT"
		case float32, float64:
			return "DOUBLE"
		case string:
			return "VARCHAR"
		default:
			return "VARCHAR"
		}
	}
	return "VARCHAR"
}
