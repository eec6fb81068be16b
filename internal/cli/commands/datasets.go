package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hexmesh-labs/hexmesh/internal/registry"
)

// NewDatasetsCommand creates the datasets command.
func NewDatasetsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List registered datasets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}

			metas, err := cmdCtx.Registry.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), metas)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Datasets (%d total):\n\n", len(metas))
			for _, meta := range metas {
				fmt.Fprintf(out, "  %-24s %-8s %-9s %s\n",
					meta.Name, meta.DatasetType, meta.Interval, meta.Description)
				if keys := columnNames(meta.KeyColumns); len(keys) > 0 {
					fmt.Fprintf(out, "    keys:   %s\n", strings.Join(keys, ", "))
				}
				if values := columnNames(meta.ValueColumns); len(values) > 0 {
					fmt.Fprintf(out, "    values: %s\n", strings.Join(values, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func columnNames(cols []registry.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
