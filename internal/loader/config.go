package loader

import (
	"github.com/hexmesh-labs/hexmesh/internal/geoerr"
	"github.com/hexmesh-labs/hexmesh/internal/registry"
	"github.com/hexmesh-labs/hexmesh/pkg/hexgrid"
)

// Loading modes. Create refuses to touch an existing table, insert
// appends to one.
const (
	ModeCreate = "create"
	ModeInsert = "insert"
)

const defaultMaxParallelism = 4

// Config describes how a source dataset becomes stored tables.
type Config struct {
	DatasetName string `koanf:"dataset_name"`
	DatasetType string `koanf:"dataset_type"`
	Description string `koanf:"description"`

	Interval      string `koanf:"interval"`
	MaxResolution int    `koanf:"max_resolution"`

	// DataColumns are the columns carrying values to load; everything
	// else besides latitude, longitude and the time columns is dropped.
	DataColumns []string `koanf:"data_columns"`

	YearColumn  string `koanf:"year_column"`
	MonthColumn string `koanf:"month_column"`
	DayColumn   string `koanf:"day_column"`

	// Shapefile and Region optionally restrict interpolated output to
	// a named region of a geojson file.
	Shapefile string `koanf:"shapefile"`
	Region    string `koanf:"region"`

	Mode           string `koanf:"mode"`
	MaxParallelism int    `koanf:"max_parallelism"`
}

// TimeColumns returns the configured time columns in year, month, day
// order, skipping the unset ones.
func (c *Config) TimeColumns() []string {
	var out []string
	for _, col := range []string{c.YearColumn, c.MonthColumn, c.DayColumn} {
		if col != "" {
			out = append(out, col)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.DatasetName == "" {
		return geoerr.New(geoerr.KindConfigInvalid,
			"mandatory parameter dataset_name is empty")
	}
	switch c.DatasetType {
	case registry.TypeH3, registry.TypePoint, registry.TypeH3Index:
	case "":
		return geoerr.New(geoerr.KindConfigInvalid,
			"mandatory parameter dataset_type is empty")
	default:
		return geoerr.New(geoerr.KindConfigInvalid,
			"dataset_type %s is not loadable", c.DatasetType)
	}
	if !hexgrid.ValidResolution(c.MaxResolution) {
		return geoerr.New(geoerr.KindConfigInvalid,
			"max_resolution must be between %d and %d, got %d",
			hexgrid.MinResolution, hexgrid.MaxResolution, c.MaxResolution)
	}
	if len(c.DataColumns) == 0 {
		return geoerr.New(geoerr.KindConfigInvalid,
			"mandatory parameter data_columns is empty")
	}
	if c.Mode != ModeCreate && c.Mode != ModeInsert {
		return geoerr.New(geoerr.KindConfigInvalid,
			"loading mode %q is not valid, valid modes are %s and %s",
			c.Mode, ModeCreate, ModeInsert)
	}
	if c.Shapefile == "" && c.Region != "" {
		return geoerr.New(geoerr.KindConfigInvalid,
			"region %s was specified without a shapefile", c.Region)
	}
	return nil
}
