package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hexmesh-labs/hexmesh/internal/registry"
)

// NewRegisterCommand creates the register command.
func NewRegisterCommand() *cobra.Command {
	var (
		name        string
		description string
		datasetType string
		interval    string
		keyCols     []string
		valueCols   []string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a dataset in the metadata registry",
		Long: `Register a dataset so queries can find its tables and columns.

Columns are given as name:TYPE pairs, for example temperature:DOUBLE.`,
		Example: `  # Register a monthly h3 dataset
  hexmesh register --name temperatures --type h3 --interval monthly \
    --key-column cell:VARCHAR --key-column year:INTEGER --key-column month:INTEGER \
    --value-column temperature:DOUBLE`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}

			keys, err := parseColumns(keyCols)
			if err != nil {
				return err
			}
			values, err := parseColumns(valueCols)
			if err != nil {
				return err
			}

			meta := registry.Meta{
				Name:         name,
				Description:  description,
				DatasetType:  datasetType,
				Interval:     interval,
				KeyColumns:   keys,
				ValueColumns: values,
			}
			if err := cmdCtx.Registry.Register(cmd.Context(), meta); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered dataset %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Dataset name")
	cmd.Flags().StringVar(&description, "description", "", "Dataset description")
	cmd.Flags().StringVar(&datasetType, "type", "", "Dataset type (h3|point|h3_index)")
	cmd.Flags().StringVar(&interval, "interval", "", "Time interval (one_time|yearly|monthly|daily)")
	cmd.Flags().StringArrayVar(&keyCols, "key-column", nil, "Key column as name:TYPE (repeatable)")
	cmd.Flags().StringArrayVar(&valueCols, "value-column", nil, "Value column as name:TYPE (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func parseColumns(specs []string) ([]registry.Column, error) {
	var out []registry.Column
	for _, spec := range specs {
		name, colType, ok := strings.Cut(spec, ":")
		if !ok || name == "" || colType == "" {
			return nil, fmt.Errorf("column %q is not in name:TYPE form", spec)
		}
		out = append(out, registry.Column{Name: name, Type: colType})
	}
	return out, nil
}
