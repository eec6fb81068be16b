package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hexmesh-labs/hexmesh/internal/loader"
	"github.com/hexmesh-labs/hexmesh/internal/pipeline"
)

// NewLoadCommand creates the load command tree.
func NewLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load datasets from files or pipeline configs",
	}
	cmd.AddCommand(newLoadPipelineCommand())
	cmd.AddCommand(newLoadCSVCommand())
	cmd.AddCommand(newLoadParquetCommand())
	return cmd
}

func newLoadPipelineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline <config.yaml>",
		Short: "Run a loading pipeline from a YAML config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			deps := pipeline.Deps{
				Catalog:  cmdCtx.Catalog,
				Registry: cmdCtx.Registry,
				Logger:   cmdCtx.Logger,
			}
			p, err := pipeline.BuildFromFile(args[0], deps)
			if err != nil {
				return err
			}
			if err := p.Run(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Pipeline completed")
			return nil
		},
	}
}

// loaderFlags are the dataset flags shared by the csv and parquet
// loaders.
type loaderFlags struct {
	conf loader.Config
}

func (f *loaderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.conf.DatasetName, "dataset", "", "Dataset name")
	cmd.Flags().StringVar(&f.conf.DatasetType, "type", "", "Dataset type (h3|point|h3_index)")
	cmd.Flags().StringVar(&f.conf.Description, "description", "", "Dataset description")
	cmd.Flags().StringVar(&f.conf.Interval, "interval", "", "Time interval (one_time|yearly|monthly|daily)")
	cmd.Flags().IntVar(&f.conf.MaxResolution, "max-resolution", 3, "Highest grid resolution to load")
	cmd.Flags().StringSliceVar(&f.conf.DataColumns, "data-column", nil, "Data columns to load (repeatable)")
	cmd.Flags().StringVar(&f.conf.YearColumn, "year-column", "", "Year column")
	cmd.Flags().StringVar(&f.conf.MonthColumn, "month-column", "", "Month column")
	cmd.Flags().StringVar(&f.conf.DayColumn, "day-column", "", "Day column")
	cmd.Flags().StringVar(&f.conf.Shapefile, "shapefile", "", "GeoJSON shapefile restricting the load")
	cmd.Flags().StringVar(&f.conf.Region, "region", "", "Region name within the shapefile")
	cmd.Flags().StringVar(&f.conf.Mode, "mode", loader.ModeCreate, "Loading mode (create|insert)")
	cmd.Flags().IntVar(&f.conf.MaxParallelism, "max-parallelism", 0, "Parallel interpolation workers")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("data-column")
}

func runLoad(cmd *cobra.Command, src loader.Source, conf loader.Config) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ld := loader.New(cmdCtx.Catalog, cmdCtx.Registry, cmdCtx.Logger)
	if err := ld.Load(cmd.Context(), src, conf); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded dataset %s\n", conf.DatasetName)
	return nil
}

func newLoadCSVCommand() *cobra.Command {
	var (
		flags   loaderFlags
		header  bool
		columns []string
	)
	cmd := &cobra.Command{
		Use:   "csv <file.csv>",
		Short: "Load a dataset from a CSV file",
		Long: `Load a dataset from a CSV file with a declared column layout.

Columns are given in file order as name:type pairs, where type is one
of str, int or float.`,
		Example: `  hexmesh load csv samples.csv --dataset temperatures --type h3 \
    --column latitude:float --column longitude:float --column temperature:float \
    --data-column temperature --max-resolution 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := parseColumnSpecs(columns)
			if err != nil {
				return err
			}
			src, err := loader.NewCSVSource(args[0], header, specs)
			if err != nil {
				return err
			}
			return runLoad(cmd, src, flags.conf)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&header, "header", true, "File has a header row")
	cmd.Flags().StringArrayVar(&columns, "column", nil, "Column as name:type, in file order (repeatable)")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func newLoadParquetCommand() *cobra.Command {
	var flags loaderFlags
	cmd := &cobra.Command{
		Use:   "parquet <file.parquet>",
		Short: "Load a dataset from a parquet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := loader.NewParquetSource(args[0])
			if err != nil {
				return err
			}
			return runLoad(cmd, src, flags.conf)
		},
	}
	flags.register(cmd)
	return cmd
}

func parseColumnSpecs(specs []string) ([]loader.ColumnSpec, error) {
	var out []loader.ColumnSpec
	for _, spec := range specs {
		name, colType, ok := strings.Cut(spec, ":")
		if !ok || name == "" || colType == "" {
			return nil, fmt.Errorf("column %q is not in name:type form", spec)
		}
		out = append(out, loader.ColumnSpec{Name: name, Type: colType})
	}
	return out, nil
}
