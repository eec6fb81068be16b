package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hexmesh-labs/hexmesh/internal/correlator"
)

// correlateRequest is the JSON shape of a correlation request file.
type correlateRequest struct {
	Resolution int `json:"resolution"`
	Assets     []struct {
		ID        string  `json:"id"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"assets"`
	Datasets []struct {
		Name    string `json:"name"`
		Filters []struct {
			Column      string `json:"column"`
			FilterType  string `json:"filter_type"`
			TargetValue any    `json:"target_value"`
		} `json:"filters"`
	} `json:"datasets"`
}

// NewCorrelateCommand creates the correlate command.
func NewCorrelateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correlate <request.json>",
		Short: "Join located assets against dataset values",
		Long: `Correlate joins a list of located assets against one or more h3_index
datasets at a shared resolution. Every asset appears in the output even
when no dataset matched it.

The request file holds the assets, the datasets with their filters, and
optionally the join resolution.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read request file: %w", err)
			}
			var req correlateRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return fmt.Errorf("failed to parse request file %s: %w", args[0], err)
			}

			assets := make([]correlator.LocatedAsset, len(req.Assets))
			for i, a := range req.Assets {
				assets[i] = correlator.LocatedAsset{
					ID:        a.ID,
					Latitude:  a.Latitude,
					Longitude: a.Longitude,
				}
			}
			datasets := make([]correlator.DatasetArg, len(req.Datasets))
			for i, d := range req.Datasets {
				arg := correlator.DatasetArg{Name: d.Name}
				for _, f := range d.Filters {
					arg.Filters = append(arg.Filters, correlator.AssetFilter{
						Column:      f.Column,
						FilterType:  f.FilterType,
						TargetValue: f.TargetValue,
					})
				}
				datasets[i] = arg
			}

			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			corr := correlator.New(cmdCtx.Catalog, req.Resolution, cmdCtx.Logger)
			result, err := corr.Correlate(cmd.Context(), assets, datasets)
			if err != nil {
				return err
			}

			// Emit rows keyed by column name rather than positionally.
			rows := make([]map[string]any, len(result.Data))
			for i, row := range result.Data {
				out := make(map[string]any, len(result.Columns))
				for j, col := range result.Columns {
					out[col] = row[j]
				}
				rows[i] = out
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
	return cmd
}
