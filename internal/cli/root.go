// Package cli provides the command-line interface for HexMesh.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hexmesh-labs/hexmesh/internal/cli/commands"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hexmesh",
		Short: "HexMesh - Geospatial Data Mesh",
		Long: `HexMesh stores geospatial datasets on a hierarchical hexagonal grid
and serves queries, correlations and loading pipelines over them.

Datasets live in per-dataset analytic database files under a shared
directory, with a metadata registry describing each one.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Built with Go and DuckDB
`)

	rootCmd.PersistentFlags().String("database-dir", "./databases",
		"Directory holding the dataset database files")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(commands.NewRegisterCommand())
	rootCmd.AddCommand(commands.NewDatasetsCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewCorrelateCommand())
	rootCmd.AddCommand(commands.NewLoadCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
