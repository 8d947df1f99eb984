package cli

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/meazyme/v-allo/pkg/io"
	"github.com/meazyme/v-allo/pkg/observability"
	"github.com/meazyme/v-allo/pkg/pipeline"
	"github.com/meazyme/v-allo/pkg/plausibility"
	"github.com/meazyme/v-allo/pkg/render/nodelink"
)

const defaultProportionsOut = "proportions.csv"

// proportionsCommand creates the proportions command, which stops after the
// plausibility check and writes the proportion table.
func (c *CLI) proportionsCommand() *cobra.Command {
	var (
		cfg      runConfig
		common   commonOpts
		minShare float64
	)

	cmd := &cobra.Command{
		Use:   "proportions",
		Short: "Compute the node/region proportion table",
		Long: `Compute the node/region proportion table.

Each row gives the share of a region's area covered by a node's Voronoi cell.
Shares of a fully covered region sum to 1. The table is checked for
plausibility like in allocate, but no demand is needed.`,
		Example: `  vallo proportions --nodes stations.geojson --regions districts.shp --region-id AGS
  vallo proportions --config run.toml -o out/proportions.csv --report out/report.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.resolve(cmd, common.config, 0); err != nil {
				return err
			}
			if err := cfg.requireInputs(true); err != nil {
				return err
			}
			return c.runProportions(cmd.Context(), cfg, common, minShare)
		},
	}

	common.bind(cmd)
	cfg.bindFlags(cmd, flagSet{regions: true, check: true}, nil)
	cmd.Flags().StringVarP(&cfg.Output.Proportions, "output", "o", defaultProportionsOut, "proportion table CSV")
	cmd.Flags().StringVar(&cfg.Output.Cells, "cells-out", "", "also write the Voronoi cells as GeoJSON")
	cmd.Flags().StringVar(&cfg.Output.Graph, "graph-out", "", "also write the region/node graph in Graphviz DOT format")
	cmd.Flags().Float64Var(&minShare, "graph-min-share", 0, "leave out graph edges below this proportion")

	return cmd
}

func (c *CLI) runProportions(ctx context.Context, cfg runConfig, common commonOpts, minShare float64) error {
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
	bar := newOverlayBar(os.Stderr)
	if !common.noProgress && isTerminal(os.Stderr) {
		opts.Progress = bar.update
	}

	nodes, regions, err := runner.Normalize(ctx, l.nodes, l.regions, opts)
	if err != nil {
		return err
	}
	cells, table, info, err := runner.Proportions(ctx, nodes, regions, opts)
	bar.finish()
	if err != nil {
		return err
	}

	report, artifacts, err := runner.Check(ctx, plausibility.Input{
		Nodes:   nodes,
		Regions: regions,
		Cells:   cells,
		Records: table.Records,
		Pieces:  table.Pieces,
	}, opts)
	if err != nil {
		return err
	}

	result := &pipeline.Result{
		CRS:       opts.CRS,
		Nodes:     nodes,
		Regions:   regions,
		Cells:     cells,
		Table:     table,
		Report:    report,
		Artifacts: artifacts,
		Stats: pipeline.Stats{
			NodeCount:   len(nodes),
			RegionCount: len(regions),
			RecordCount: len(table.Records),
			PieceCount:  len(table.Pieces),
		},
		CacheInfo: info,
	}
	if err := writeCheckOutputs(result, cfg); err != nil {
		return err
	}
	if cfg.Run.Strict && report.HasErrors() {
		printReportSummary(report)
		return fmt.Errorf("%s: %w", observability.StageCheck, report.Err())
	}

	t := newTimer(c.Logger)
	if err := io.ExportProportionsCSV(cfg.Output.Proportions, table.Records); err != nil {
		return err
	}
	if cfg.Output.Cells != "" {
		if err := io.ExportCellsGeoJSON(cfg.Output.Cells, cells, opts.CRS); err != nil {
			return err
		}
	}
	if cfg.Output.Graph != "" {
		dot := nodelink.ToDOT(table.Records, nodelink.Options{MinShare: minShare, Detailed: cfg.Run.RenderLabels})
		if err := os.WriteFile(cfg.Output.Graph, []byte(dot), 0o644); err != nil {
			return fmt.Errorf("write graph: %w", err)
		}
	}
	t.done("Wrote outputs")

	printProportions(result, cfg.Output)
	return nil
}

// printProportions prints the table summary and the least covered regions.
func printProportions(result *pipeline.Result, out outputConfig) {
	printNewline()
	printSuccess("Computed %d proportions", result.Stats.RecordCount)
	printStats(result.Stats.NodeCount, result.Stats.RegionCount, result.Stats.RecordCount, result.CacheInfo.OverlayHit)
	printReportSummary(result.Report)

	sums := result.Report.RegionSums
	ids := make([]string, 0, len(sums))
	for id := range sums {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if sums[ids[i]] != sums[ids[j]] {
			return sums[ids[i]] < sums[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > summaryRows {
		ids = ids[:summaryRows]
	}
	if len(ids) > 0 {
		rows := make([][]string, len(ids))
		for i, id := range ids {
			rows[i] = []string{id, fmt.Sprintf("%.4f", sums[id])}
		}
		printNewline()
		printTable([]string{"Region", "Covered"}, rows, 1)
	}

	printNewline()
	for _, p := range outputPaths(out) {
		printFile(p)
	}
}
