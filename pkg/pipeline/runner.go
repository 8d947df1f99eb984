package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ctessum/geom"
	"github.com/google/uuid"

	"github.com/meazyme/v-allo/pkg/allocate"
	"github.com/meazyme/v-allo/pkg/cache"
	"github.com/meazyme/v-allo/pkg/observability"
	"github.com/meazyme/v-allo/pkg/overlay"
	"github.com/meazyme/v-allo/pkg/plausibility"
	"github.com/meazyme/v-allo/pkg/projection"
	"github.com/meazyme/v-allo/pkg/render/svg"
	"github.com/meazyme/v-allo/pkg/spatial"
	"github.com/meazyme/v-allo/pkg/voronoi"
)

// cacheVersion prefixes every cache key. Bump it when the encoding of
// cached entries changes.
const cacheVersion = "v1:"

// Runner encapsulates pipeline execution with caching.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a versioned DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewScopedKeyer(cache.NewDefaultKeyer(), cacheVersion)
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs the complete normalize → tessellate → overlay → check →
// allocate pipeline with caching.
//
// In strict mode a report with error findings stops the run before
// allocation; the partial result is returned together with the error.
func (r *Runner) Execute(ctx context.Context, in Input, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, stageError("invalid options", err)
	}

	result := &Result{
		RunID:     uuid.New().String(),
		CRS:       opts.CRS,
		Artifacts: make(map[string][]byte),
	}
	logger := r.Logger.With("run", result.RunID[:8])

	// Stage 1: Normalize
	start := time.Now()
	nodes, regions, err := r.Normalize(ctx, in.Nodes, in.Regions, opts)
	if err != nil {
		return nil, err
	}
	result.Stats.NormalizeTime = time.Since(start)
	result.Nodes, result.Regions = nodes, regions
	result.Stats.NodeCount = len(nodes)
	result.Stats.RegionCount = len(regions)

	// Stages 2-4: Tessellate, Assign, Overlay
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start = time.Now()
	cells, table, info, err := r.proportions(ctx, nodes, regions, opts, &result.Stats)
	if err != nil {
		return nil, err
	}
	result.Cells, result.Table = cells, table
	result.CacheInfo = info
	result.Stats.RecordCount = len(table.Records)
	result.Stats.PieceCount = len(table.Pieces)
	if info.OverlayHit {
		logger.Info("loaded proportions from cache",
			"cells", len(cells),
			"records", len(table.Records),
			"duration", time.Since(start))
	}

	// Stage 5: Check
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start = time.Now()
	report, artifacts, err := r.Check(ctx, plausibility.Input{
		Nodes:   nodes,
		Regions: regions,
		Cells:   cells,
		Records: table.Records,
		Pieces:  table.Pieces,
	}, opts)
	if err != nil {
		return nil, err
	}
	result.Report = report
	result.Artifacts = artifacts
	result.Stats.CheckTime = time.Since(start)

	logger.Info("checked proportions",
		"warnings", report.Count(plausibility.SeverityWarning),
		"errors", report.Count(plausibility.SeverityError),
		"duration", result.Stats.CheckTime)
	logFindings(logger, report)

	if opts.Strict && report.HasErrors() {
		return result, stageError(observability.StageCheck, report.Err())
	}

	// Stage 6: Allocate
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Demand = ResolveDemand(regions, in.Demand)
	start = time.Now()
	alloc, err := r.Allocate(ctx, spatial.NodeIDs(nodes), table.Records, result.Demand, in.Weights, opts)
	if err != nil {
		return result, err
	}
	result.Allocation = alloc
	result.Stats.AllocateTime = time.Since(start)

	logger.Info("allocated demand",
		"nodes", len(alloc.Values),
		"total", alloc.Total,
		"duration", result.Stats.AllocateTime)
	if len(alloc.MissingDemand) > 0 {
		logger.Warn("regions without demand counted as zero", "regions", alloc.MissingDemand)
	}

	return result, nil
}

// Normalize reprojects nodes and regions into opts.CRS.
func (r *Runner) Normalize(ctx context.Context, nodes []spatial.Node, regions []spatial.Region, opts Options) ([]spatial.Node, []spatial.Region, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, nil, stageError("invalid options", err)
	}

	var outNodes []spatial.Node
	var outRegions []spatial.Region
	d, err := r.stage(ctx, observability.StageNormalize, len(nodes)+len(regions), func() (int, error) {
		var err error
		outNodes, outRegions, err = projection.Normalize(nodes, regions, opts.CRS)
		return len(outNodes) + len(outRegions), err
	})
	if err != nil {
		return nil, nil, err
	}

	r.Logger.Info("normalized layers",
		"crs", opts.CRS,
		"nodes", len(outNodes),
		"regions", len(outRegions),
		"duration", d)
	return outNodes, outRegions, nil
}

// Tessellate computes the cells of already projected nodes with caching and
// returns cache hit info.
func (r *Runner) Tessellate(ctx context.Context, nodes []spatial.Node, opts Options) ([]spatial.Cell, bool, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, false, stageError("invalid options", err)
	}

	return r.cells(ctx, nodes, opts, &Stats{})
}

// cells returns the cells of nodes from the cells cache, tessellating on a
// miss.
func (r *Runner) cells(ctx context.Context, nodes []spatial.Node, opts Options, stats *Stats) ([]spatial.Cell, bool, error) {
	nodesHash, err := cache.HashJSON(nodeFingerprint(nodes))
	if err != nil {
		return nil, false, stageError(observability.StageTessellate, err)
	}
	cacheKey := r.Keyer.CellsKey(nodesHash, cache.CellsKeyOpts{CRS: opts.CRS, Buffer: opts.Buffer})

	var cells []spatial.Cell
	if r.lookup(ctx, "cells", cacheKey, opts, &cells) {
		return cells, true, nil
	}

	start := time.Now()
	cells, err = r.tessellate(ctx, nodes, opts)
	if err != nil {
		return nil, false, err
	}
	stats.TessellateTime = time.Since(start)
	r.store(ctx, "cells", cacheKey, cells, cache.TTLCells)
	return cells, false, nil
}

// Proportions computes cells and the proportion table of already projected
// layers with caching and reports which stages came from the cache.
func (r *Runner) Proportions(ctx context.Context, nodes []spatial.Node, regions []spatial.Region, opts Options) ([]spatial.Cell, *overlay.Table, CacheInfo, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, nil, CacheInfo{}, stageError("invalid options", err)
	}
	return r.proportions(ctx, nodes, regions, opts, &Stats{})
}

// overlayEntry is the cached form of a Proportions result.
type overlayEntry struct {
	Cells []spatial.Cell `json:"cells"`
	Table *overlay.Table `json:"table"`
}

// proportions serves the overlay from the cache when possible. On an
// overlay miss the cells may still come from the cells cache, e.g. when only
// the regions changed.
func (r *Runner) proportions(ctx context.Context, nodes []spatial.Node, regions []spatial.Region, opts Options, stats *Stats) ([]spatial.Cell, *overlay.Table, CacheInfo, error) {
	var info CacheInfo
	inputHash, err := cache.HashJSON(struct {
		Nodes   any `json:"nodes"`
		Regions any `json:"regions"`
	}{nodeFingerprint(nodes), regionFingerprint(regions)})
	if err != nil {
		return nil, nil, info, stageError(observability.StageOverlay, err)
	}
	cacheKey := r.Keyer.OverlayKey(inputHash, cache.OverlayKeyOpts{CRS: opts.CRS, Buffer: opts.Buffer})

	var entry overlayEntry
	if r.lookup(ctx, "overlay", cacheKey, opts, &entry) && entry.Table != nil {
		return entry.Cells, entry.Table, CacheInfo{CellsHit: true, OverlayHit: true}, nil
	}

	cells, hit, err := r.cells(ctx, nodes, opts, stats)
	if err != nil {
		return nil, nil, info, err
	}
	info.CellsHit = hit

	if err := ctx.Err(); err != nil {
		return nil, nil, info, err
	}

	var table *overlay.Table
	d, err := r.stage(ctx, observability.StageOverlay, len(cells), func() (int, error) {
		var err error
		table, err = overlay.Compute(cells, regions, overlay.Options{Progress: opts.Progress})
		if err != nil {
			return 0, err
		}
		return len(table.Records), nil
	})
	if err != nil {
		return nil, nil, info, err
	}
	stats.OverlayTime = d

	r.Logger.Info("computed proportions",
		"records", len(table.Records),
		"pieces", len(table.Pieces),
		"duration", d)

	r.store(ctx, "overlay", cacheKey, overlayEntry{Cells: cells, Table: table}, cache.TTLOverlay)
	return cells, table, info, nil
}

// tessellate runs the tessellate and assign stages without caching.
func (r *Runner) tessellate(ctx context.Context, nodes []spatial.Node, opts Options) ([]spatial.Cell, error) {
	var raw []geom.Polygon
	d, err := r.stage(ctx, observability.StageTessellate, len(nodes), func() (int, error) {
		var err error
		raw, err = voronoi.Tessellate(spatial.Points(nodes), opts.Buffer)
		return len(raw), err
	})
	if err != nil {
		return nil, err
	}
	r.Logger.Info("tessellated nodes",
		"cells", len(raw),
		"buffer", opts.Buffer,
		"duration", d)

	var cells []spatial.Cell
	d, err = r.stage(ctx, observability.StageAssign, len(raw), func() (int, error) {
		var err error
		cells, err = voronoi.Assign(raw, nodes)
		return len(cells), err
	})
	if err != nil {
		return nil, err
	}
	r.Logger.Debug("assigned cells to nodes", "cells", len(cells), "duration", d)
	return cells, nil
}

// Check runs the plausibility checker. With opts.Render set, diagnostic
// views are rendered through opts.Renderer or the built-in SVG sink and
// returned keyed by view name. Invalid options are an error; findings never
// are.
func (r *Runner) Check(ctx context.Context, in plausibility.Input, opts Options) (*plausibility.Report, map[string][]byte, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, nil, stageError("invalid options", err)
	}

	checkOpts := plausibility.Options{
		Tolerance:          opts.Tolerance,
		ExpectFullCoverage: opts.ExpectFullCoverage,
	}
	var sink *svg.Sink
	switch {
	case opts.Renderer != nil:
		checkOpts.Renderer = opts.Renderer
	case opts.Render:
		svgOpts := []svg.Option{svg.WithWidth(opts.RenderWidth)}
		if opts.RenderLabels {
			svgOpts = append(svgOpts, svg.WithLabels())
		}
		sink = svg.New(svgOpts...)
		checkOpts.Renderer = sink
	}

	hooks := observability.Pipeline()
	hooks.OnStageStart(ctx, observability.StageCheck, len(in.Records))
	start := time.Now()
	report := plausibility.Check(in, checkOpts)
	hooks.OnStageComplete(ctx, observability.StageCheck, len(report.Findings), time.Since(start), nil)
	hooks.OnCheckComplete(ctx, report.Count(plausibility.SeverityWarning), report.Count(plausibility.SeverityError))

	artifacts := make(map[string][]byte)
	if sink != nil {
		artifacts = sink.Artifacts()
	}
	return report, artifacts, nil
}

// Allocate distributes demand to nodes. Every ID in nodeIDs gets a value,
// zero when the node's cell covers no region.
func (r *Runner) Allocate(ctx context.Context, nodeIDs []string, records []spatial.Proportion, demand, weights map[string]float64, opts Options) (*allocate.Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, stageError("invalid options", err)
	}

	var res *allocate.Result
	_, err := r.stage(ctx, observability.StageAllocate, len(records), func() (int, error) {
		var err error
		res, err = allocate.Allocate(records, demand, opts.AllocateOptions(nodeIDs, weights))
		if err != nil {
			return 0, err
		}
		return len(res.Values), nil
	})
	if err != nil {
		return nil, err
	}
	observability.Pipeline().OnAllocationComplete(ctx, res.Total, len(res.Values))
	return res, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// stage runs fn between hook calls and wraps its error with the stage name.
// fn returns the size of the stage output.
func (r *Runner) stage(ctx context.Context, name string, items int, fn func() (int, error)) (time.Duration, error) {
	hooks := observability.Pipeline()
	hooks.OnStageStart(ctx, name, items)
	start := time.Now()
	out, err := fn()
	d := time.Since(start)
	hooks.OnStageComplete(ctx, name, out, d, err)
	if err != nil {
		return d, stageError(name, err)
	}
	return d, nil
}

// lookup decodes a cached entry into v. Corrupt entries count as misses.
func (r *Runner) lookup(ctx context.Context, keyType, key string, opts Options, v any) bool {
	if opts.Refresh {
		return false
	}
	if err := cache.GetJSON(ctx, r.Cache, key, v); err != nil {
		if !cache.IsMiss(err) {
			r.Logger.Warn("cache read failed", "key", key, "err", err)
		} else if errors.Is(err, cache.ErrCorrupt) {
			r.Logger.Debug("dropped unreadable cache entry", "key", key, "err", err)
		}
		observability.Cache().OnCacheMiss(ctx, keyType)
		return false
	}
	observability.Cache().OnCacheHit(ctx, keyType)
	return true
}

func (r *Runner) store(ctx context.Context, keyType, key string, v any, ttl time.Duration) {
	size, err := cache.SetJSON(ctx, r.Cache, key, v, ttl)
	if err != nil {
		r.Logger.Warn("cache write failed", "key", key, "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, keyType, size)
}

func logFindings(logger *log.Logger, report *plausibility.Report) {
	for _, f := range report.Findings {
		kv := []any{"code", f.Code, string(f.Subject), f.ID}
		if f.Severity == plausibility.SeverityError {
			logger.Error(f.Message, kv...)
			continue
		}
		logger.Warn(f.Message, kv...)
	}
}
