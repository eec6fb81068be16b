package commands

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hexmesh-labs/hexmesh/internal/registry"
	"github.com/hexmesh-labs/hexmesh/internal/store"
)

// CommandContext carries the shared collaborators every command needs.
type CommandContext struct {
	Catalog  *store.Catalog
	Registry *registry.Registry
	Logger   *slog.Logger
}

// NewCommandContext builds the catalog and registry from the root
// command's persistent flags.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	dir, err := cmd.Flags().GetString("database-dir")
	if err != nil {
		return nil, err
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(),
		&slog.HandlerOptions{Level: level}))

	catalog, err := store.NewCatalog(dir, logger)
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Catalog:  catalog,
		Registry: registry.New(catalog, logger),
		Logger:   logger,
	}, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
