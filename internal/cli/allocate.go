package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/meazyme/v-allo/pkg/buildinfo"
	"github.com/meazyme/v-allo/pkg/errors"
	"github.com/meazyme/v-allo/pkg/io"
	"github.com/meazyme/v-allo/pkg/observability"
	"github.com/meazyme/v-allo/pkg/pipeline"
	"github.com/meazyme/v-allo/pkg/plausibility"
)

const (
	defaultAllocationOut = "allocation.csv"

	// summaryRows is how many nodes the result table shows.
	summaryRows = 10
)

// commonOpts holds flags shared by the pipeline commands but kept out of the
// run file.
type commonOpts struct {
	config     string
	noCache    bool
	refresh    bool
	noProgress bool
}

func (o *commonOpts) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.config, "config", "c", "", "TOML run file (default $"+envConfig+")")
	cmd.Flags().BoolVar(&o.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&o.refresh, "refresh", false, "recompute instead of reading the cache")
	cmd.Flags().BoolVar(&o.noProgress, "no-progress", false, "hide the overlay progress bar (always hidden when stderr is not a terminal)")
}

// allocateCommand creates the allocate command running the full pipeline.
func (c *CLI) allocateCommand() *cobra.Command {
	var (
		cfg    runConfig
		common commonOpts
		blend  float64
	)

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Allocate regional demand to nodes",
		Long: `Allocate regional demand to nodes.

The allocate command runs the full pipeline: both layers are reprojected into
one planar CRS, every node gets its Voronoi cell, cells are intersected with
the regions, and each region's demand is split between the nodes in
proportion to the area their cells cover.

Demand comes from a CSV table (--demand), a region attribute
(--demand-field), or both; table values win. Regions with no demand count as
zero unless --missing-demand=abort.

The geometric stages are cached locally, so re-running with new demand
figures is fast.`,
		Example: `  vallo allocate --nodes stations.geojson --regions districts.geojson --demand population.csv
  vallo allocate --config run.toml --strict --diagnostics out/diag`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.resolve(cmd, common.config, blend); err != nil {
				return err
			}
			if err := cfg.requireInputs(true); err != nil {
				return err
			}
			return c.runAllocate(cmd.Context(), cfg, common)
		},
	}

	common.bind(cmd)
	cfg.bindFlags(cmd, flagSet{regions: true, demand: true, check: true}, &blend)
	cmd.Flags().StringVarP(&cfg.Output.Allocation, "output", "o", defaultAllocationOut, "allocation CSV")
	cmd.Flags().StringVar(&cfg.Output.Proportions, "proportions-out", "", "also write the proportion table as CSV")
	cmd.Flags().StringVar(&cfg.Output.Cells, "cells-out", "", "also write the Voronoi cells as GeoJSON")

	return cmd
}

// runAllocate reads the inputs, runs the pipeline and writes all outputs.
func (c *CLI) runAllocate(ctx context.Context, cfg runConfig, common commonOpts) error {
	collector, err := setupMetrics(cfg.Output.Metrics)
	if err != nil {
		return err
	}
	if collector != nil {
		defer observability.Reset()
	}

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

	result, err := runner.Execute(ctx, pipeline.Input{
		Nodes:   l.nodes,
		Regions: l.regions,
		Demand:  l.demand,
		Weights: l.weights,
	}, opts)
	bar.finish()

	// A strict failure still carries the report; write it before failing.
	if result != nil {
		if werr := writeCheckOutputs(result, cfg); werr != nil {
			return werr
		}
	}
	if err != nil {
		if cfg.Run.Strict && result != nil && result.Report.HasErrors() && !errors.IsFatal(errors.GetCode(err)) {
			printReportSummary(result.Report)
			printNextStep("Allocate anyway", "rerun without --strict")
		}
		return err
	}

	logStages(c.Logger, result.Stats.Stages())

	t := newTimer(c.Logger)
	if err := io.ExportAllocationCSV(cfg.Output.Allocation, result.Allocation); err != nil {
		return err
	}
	if cfg.Output.Proportions != "" {
		if err := io.ExportProportionsCSV(cfg.Output.Proportions, result.Table.Records); err != nil {
			return err
		}
	}
	if cfg.Output.Cells != "" {
		if err := io.ExportCellsGeoJSON(cfg.Output.Cells, result.Cells, result.CRS); err != nil {
			return err
		}
	}
	if collector != nil {
		if err := collector.WriteTextfile(cfg.Output.Metrics); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	t.done("Wrote outputs")

	printAllocation(result, cfg.Output)
	return nil
}

// setupMetrics registers a fresh collector as the global hooks when a
// metrics file is requested.
func setupMetrics(path string) (*observability.Collector, error) {
	if path == "" {
		return nil, nil
	}
	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("set up metrics: %w", err)
	}
	observability.SetPipelineHooks(collector)
	observability.SetCacheHooks(collector)
	return collector, nil
}

// writeCheckOutputs writes the report and diagnostic SVGs.
func writeCheckOutputs(result *pipeline.Result, cfg runConfig) error {
	if cfg.Output.Report != "" {
		if err := io.ExportReportJSON(cfg.Output.Report, summarize(result, cfg.Run)); err != nil {
			return err
		}
	}
	if cfg.Output.Diagnostics != "" && len(result.Artifacts) > 0 {
		if _, err := io.ExportArtifacts(cfg.Output.Diagnostics, ".svg", result.Artifacts); err != nil {
			return err
		}
	}
	return nil
}

// summarize builds the report document of a run.
func summarize(result *pipeline.Result, opts pipeline.Options) io.Summary {
	s := io.Summary{
		RunID:   result.RunID,
		Version: buildinfo.Short(),
		CRS:     result.CRS,
		Buffer:  opts.Buffer,
		Nodes:   result.Stats.NodeCount,
		Regions: result.Stats.RegionCount,
		Records: result.Stats.RecordCount,
		Demand:  result.TotalDemand(),
		Stages:  result.Stats.Stages(),
		Cached:  result.CacheInfo.OverlayHit,
		Report:  result.Report,
	}
	if result.Allocation != nil {
		s.Total = result.Allocation.Total
		s.MissingDemand = result.Allocation.MissingDemand
	}
	return s
}

// printAllocation prints the result summary and the largest node values.
func printAllocation(result *pipeline.Result, out outputConfig) {
	alloc := result.Allocation

	printNewline()
	printSuccess("Allocated %s of %s demand", formatNumber(alloc.Total), formatNumber(result.TotalDemand()))
	printStats(result.Stats.NodeCount, result.Stats.RegionCount, result.Stats.RecordCount, result.CacheInfo.OverlayHit)
	printReportSummary(result.Report)
	if n := len(alloc.MissingDemand); n > 0 {
		printWarning("%d regions had no demand and counted as zero", n)
	}

	ids := alloc.Nodes()
	sort.SliceStable(ids, func(i, j int) bool { return alloc.Values[ids[i]] > alloc.Values[ids[j]] })
	shown := ids
	if len(shown) > summaryRows {
		shown = shown[:summaryRows]
	}
	rows := make([][]string, len(shown))
	for i, id := range shown {
		share := 0.0
		if alloc.Total > 0 {
			share = 100 * alloc.Values[id] / alloc.Total
		}
		rows[i] = []string{id, formatNumber(alloc.Values[id]), fmt.Sprintf("%.1f%%", share)}
	}
	printNewline()
	printTable([]string{"Node", "Value", "Share"}, rows, 1, 2)
	if len(ids) > len(shown) {
		printDetail("%d more nodes in %s", len(ids)-len(shown), out.Allocation)
	}

	printNewline()
	for _, p := range outputPaths(out) {
		printFile(p)
	}
}

// printReportSummary prints finding counts and the first few findings.
func printReportSummary(report *plausibility.Report) {
	if report == nil {
		return
	}
	warnings := report.Count(plausibility.SeverityWarning)
	errs := report.Count(plausibility.SeverityError)
	if warnings == 0 && errs == 0 {
		printDetail("plausibility check passed (max deviation %.2g)", report.MaxDeviation())
		return
	}
	if errs > 0 {
		printError("%d plausibility errors", errs)
	}
	if warnings > 0 {
		printWarning("%d plausibility warnings", warnings)
	}
	for i, f := range report.Findings {
		if i == 5 {
			printDetail("… see --report for the full list")
			break
		}
		printDetail("%s %s: %s", f.Code, f.ID, f.Message)
	}
}

func outputPaths(out outputConfig) []string {
	var paths []string
	for _, p := range []string{out.Allocation, out.Proportions, out.Cells, out.Graph, out.Report, out.Diagnostics, out.Metrics} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
