package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hexmesh-labs/hexmesh/internal/geomesh"
	"github.com/hexmesh-labs/hexmesh/internal/registry"
	"github.com/hexmesh-labs/hexmesh/internal/shape"
)

// queryFlags are the flags shared by every query subcommand.
type queryFlags struct {
	dataset    string
	resolution int
	year       int
	month      int
	day        int
}

func (f *queryFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	f.addTo(fs)
	_ = cmd.MarkFlagRequired("dataset")
}

func (f *queryFlags) addTo(fs *pflag.FlagSet) {
	fs.StringVar(&f.dataset, "dataset", "", "Dataset to query")
	fs.IntVar(&f.resolution, "resolution", 0, "Grid resolution")
	fs.IntVar(&f.year, "year", 0, "Year filter")
	fs.IntVar(&f.month, "month", 0, "Month filter")
	fs.IntVar(&f.day, "day", 0, "Day filter")
}

// timeArgs converts the flags that were actually set into a time filter.
func (f *queryFlags) timeArgs(cmd *cobra.Command) geomesh.TimeArgs {
	var t geomesh.TimeArgs
	if cmd.Flags().Changed("year") {
		t.Year = geomesh.Int(f.year)
	}
	if cmd.Flags().Changed("month") {
		t.Month = geomesh.Int(f.month)
	}
	if cmd.Flags().Changed("day") {
		t.Day = geomesh.Int(f.day)
	}
	return t
}

// querySetup resolves the dataset's type so each subcommand can pick
// the h3 or point variant of its query.
func querySetup(cmd *cobra.Command, dataset string) (*geomesh.Engine, registry.Meta, error) {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return nil, registry.Meta{}, err
	}
	meta, err := cmdCtx.Registry.Get(cmd.Context(), dataset)
	if err != nil {
		return nil, registry.Meta{}, err
	}
	eng := geomesh.New(cmdCtx.Catalog, cmdCtx.Registry, cmdCtx.Logger)
	return eng, meta, nil
}

// NewQueryCommand creates the query command tree.
func NewQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query dataset values by location",
	}
	cmd.AddCommand(newQueryPointCommand())
	cmd.AddCommand(newQueryCellCommand())
	cmd.AddCommand(newQueryRadiusCommand())
	cmd.AddCommand(newQueryBBoxCommand())
	cmd.AddCommand(newQueryRegionCommand())
	return cmd
}

func newQueryPointCommand() *cobra.Command {
	var (
		flags    queryFlags
		lat, lng float64
	)
	cmd := &cobra.Command{
		Use:   "point",
		Short: "Query the cell containing a point",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, meta, err := querySetup(cmd, flags.dataset)
			if err != nil {
				return err
			}
			t := flags.timeArgs(cmd)
			switch meta.DatasetType {
			case registry.TypeH3:
				rows, err := eng.PointQuery(cmd.Context(), flags.dataset, lat, lng, flags.resolution, t)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			default:
				rows, err := eng.PointQueryPoint(cmd.Context(), flags.dataset, lat, lng, flags.resolution, t)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			}
		},
	}
	flags.register(cmd)
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	_ = cmd.MarkFlagRequired("resolution")
	return cmd
}

func newQueryCellCommand() *cobra.Command {
	var (
		flags queryFlags
		cell  string
	)
	cmd := &cobra.Command{
		Use:   "cell",
		Short: "Query one exact cell",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, meta, err := querySetup(cmd, flags.dataset)
			if err != nil {
				return err
			}
			t := flags.timeArgs(cmd)
			switch meta.DatasetType {
			case registry.TypeH3:
				rows, err := eng.CellQuery(cmd.Context(), flags.dataset, cell, t)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			default:
				rows, err := eng.CellQueryPoint(cmd.Context(), flags.dataset, cell, t)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			}
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&cell, "cell", "", "Cell identifier")
	_ = cmd.MarkFlagRequired("cell")
	return cmd
}

func newQueryRadiusCommand() *cobra.Command {
	var (
		flags    queryFlags
		lat, lng float64
		radius   float64
	)
	cmd := &cobra.Command{
		Use:   "radius",
		Short: "Query all values within a radius of a point",
		Long: `Query all values within a radius (in km) of a point.

A negative radius, or one exceeding the earth's circumference, returns
the entire dataset.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, meta, err := querySetup(cmd, flags.dataset)
			if err != nil {
				return err
			}
			t := flags.timeArgs(cmd)
			switch meta.DatasetType {
			case registry.TypeH3:
				rows, err := eng.RadiusQuery(cmd.Context(), flags.dataset, lat, lng, radius, flags.resolution, t)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			default:
				rows, err := eng.RadiusQueryPoint(cmd.Context(), flags.dataset, lat, lng, radius, t)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			}
		},
	}
	flags.register(cmd)
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude")
	cmd.Flags().Float64Var(&radius, "radius", 0, "Radius in kilometers")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	_ = cmd.MarkFlagRequired("radius")
	return cmd
}

func newQueryBBoxCommand() *cobra.Command {
	var (
		flags                          queryFlags
		minLat, maxLat, minLng, maxLng float64
	)
	cmd := &cobra.Command{
		Use:   "bbox",
		Short: "Query all values within a bounding box",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, _, err := querySetup(cmd, flags.dataset)
			if err != nil {
				return err
			}
			rows, err := eng.BoundingBoxQuery(cmd.Context(), flags.dataset, flags.resolution,
				minLat, maxLat, minLng, maxLng, flags.timeArgs(cmd))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
	flags.register(cmd)
	cmd.Flags().Float64Var(&minLat, "min-lat", 0, "Minimum latitude")
	cmd.Flags().Float64Var(&maxLat, "max-lat", 0, "Maximum latitude")
	cmd.Flags().Float64Var(&minLng, "min-lng", 0, "Minimum longitude")
	cmd.Flags().Float64Var(&maxLng, "max-lng", 0, "Maximum longitude")
	_ = cmd.MarkFlagRequired("resolution")
	for _, f := range []string{"min-lat", "max-lat", "min-lng", "max-lng"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newQueryRegionCommand() *cobra.Command {
	var (
		flags     queryFlags
		shapefile string
		region    string
	)
	cmd := &cobra.Command{
		Use:   "region",
		Short: "Query all values within a shapefile region",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, meta, err := querySetup(cmd, flags.dataset)
			if err != nil {
				return err
			}
			sh, err := shape.LoadGeoJSON(shapefile)
			if err != nil {
				return err
			}
			if region != "" && !sh.HasRegion(region) {
				return fmt.Errorf("shapefile %s does not contain region %s", shapefile, region)
			}
			t := flags.timeArgs(cmd)
			switch meta.DatasetType {
			case registry.TypeH3:
				rows, err := eng.ShapeRegionQuery(cmd.Context(), flags.dataset, sh, region, flags.resolution, t)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			default:
				rows, err := eng.ShapeRegionQueryPoint(cmd.Context(), flags.dataset, sh, region, t)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			}
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&shapefile, "shapefile", "", "GeoJSON shapefile path")
	cmd.Flags().StringVar(&region, "region", "", "Region name within the shapefile")
	_ = cmd.MarkFlagRequired("shapefile")
	return cmd
}
