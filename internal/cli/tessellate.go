package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meazyme/v-allo/pkg/io"
)

const defaultCellsOut = "cells.geojson"

// tessellateCommand creates the tessellate command, which writes the Voronoi
// cells of a node layer.
func (c *CLI) tessellateCommand() *cobra.Command {
	var (
		cfg    runConfig
		common commonOpts
	)

	cmd := &cobra.Command{
		Use:   "tessellate",
		Short: "Write the Voronoi cells of a node layer",
		Long: `Write the Voronoi cells of a node layer as GeoJSON.

Cells are clipped to the bounding box of the nodes grown by --buffer and
carry the node ID and the cell area in CRS units.`,
		Example: `  vallo tessellate --nodes stations.geojson --crs EPSG:25832 -o cells.geojson`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.resolve(cmd, common.config, 0); err != nil {
				return err
			}
			if err := cfg.requireInputs(false); err != nil {
				return err
			}
			return c.runTessellate(cmd.Context(), cfg, common)
		},
	}

	common.bind(cmd)
	cfg.bindFlags(cmd, flagSet{}, nil)
	cmd.Flags().StringVarP(&cfg.Output.Cells, "output", "o", defaultCellsOut, "cells GeoJSON")

	return cmd
}

func (c *CLI) runTessellate(ctx context.Context, cfg runConfig, common commonOpts) error {
	// The region layer is not used here even if the run file names one.
	cfg.Input.Regions = ""
	l, err := c.readLayers(ctx, cfg.Input)
	if err != nil {
		return err
	}

	runner, err := c.newRunner(common.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	opts := cfg.Run
	opts.Logger = c.Logger
	opts.Refresh = common.refresh

	nodes, _, err := runner.Normalize(ctx, l.nodes, nil, opts)
	if err != nil {
		return err
	}
	cells, hit, err := runner.Tessellate(ctx, nodes, opts)
	if err != nil {
		return err
	}
	if err := io.ExportCellsGeoJSON(cfg.Output.Cells, cells, opts.CRS); err != nil {
		return err
	}

	printNewline()
	printSuccess("Tessellated %d nodes", len(cells))
	printStats(len(nodes), 0, 0, hit)
	printFile(cfg.Output.Cells)
	return nil
}
