// Package pipeline runs the complete allocation workflow for vallo.
//
// This package wires the algorithm packages into one batch run that the CLI
// (and any embedding program) can call. By centralizing this logic, every
// entry point gets the same stage order, caching and logging.
//
// # Architecture
//
// The pipeline consists of six stages:
//
//  1. Normalize: reproject nodes and regions into one planar CRS
//  2. Tessellate: build the bounded Voronoi diagram of the nodes
//  3. Assign: pair every cell with the node it contains
//  4. Overlay: intersect cells with regions into proportion records
//  5. Check: validate the records and render diagnostic views
//  6. Allocate: distribute regional demand to nodes
//
// Stages 2 to 4 depend only on geometry, so their output (cells plus the
// proportion table) is cached. A second run over the same layers with new
// demand figures starts at stage 5.
//
// # Usage
//
//	runner := pipeline.NewRunner(fileCache, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Input{
//	    Nodes:   nodes,
//	    Regions: regions,
//	    Demand:  demand,
//	}, pipeline.Options{CRS: "EPSG:3035", Render: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Allocation.Values)
//
// Run individual stages:
//
//	// Cells only
//	cells, hit, err := runner.Tessellate(ctx, projectedNodes, opts)
//
//	// Cells and proportion table, no demand
//	cells, table, info, err := runner.Proportions(ctx, projectedNodes, projectedRegions, opts)
package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/meazyme/v-allo/pkg/allocate"
	"github.com/meazyme/v-allo/pkg/errors"
	"github.com/meazyme/v-allo/pkg/overlay"
	"github.com/meazyme/v-allo/pkg/plausibility"
	"github.com/meazyme/v-allo/pkg/spatial"
	"github.com/meazyme/v-allo/pkg/voronoi"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and Library Use
// =============================================================================

const (
	// DefaultCRS is the common planar CRS. ETRS89-LAEA is equal-area, which
	// is what area proportions want for European data.
	DefaultCRS = "EPSG:3035"

	// DefaultBuffer is the tessellation frame margin in CRS units.
	DefaultBuffer = voronoi.DefaultBuffer

	// DefaultTolerance is ε for the per-region sum checks.
	DefaultTolerance = plausibility.DefaultTolerance

	// DefaultMissingDemand is the missing-demand policy name.
	DefaultMissingDemand = "zero"

	// DefaultRenderWidth is the diagnostic picture width in pixels.
	DefaultRenderWidth = 1000
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for an allocation run.
// Field names double as keys of the TOML run file.
type Options struct {
	// Geometry options
	CRS    string  `json:"crs" toml:"crs"`
	Buffer float64 `json:"buffer" toml:"buffer"`

	// Check options
	Tolerance          float64 `json:"tolerance" toml:"tolerance"`
	ExpectFullCoverage bool    `json:"expect_full_coverage" toml:"expect_full_coverage"`
	Strict             bool    `json:"strict" toml:"strict"` // report errors abort the run

	// Allocation options
	MissingDemand string   `json:"missing_demand" toml:"missing_demand"`
	Blend         *float64 `json:"blend,omitempty" toml:"blend"`

	// Diagnostics
	Render       bool `json:"render" toml:"render"`
	RenderWidth  int  `json:"render_width,omitempty" toml:"render_width"`
	RenderLabels bool `json:"render_labels,omitempty" toml:"render_labels"`

	// Refresh skips cache lookups; results are still written back.
	Refresh bool `json:"refresh,omitempty" toml:"-"`

	// Runtime options (not serialized)
	Logger   *log.Logger           `json:"-" toml:"-"`
	Progress func(done, total int) `json:"-" toml:"-"`
	Renderer plausibility.Renderer `json:"-" toml:"-"` // overrides the built-in SVG sink
	policy   allocate.MissingDemandPolicy

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Input holds the layers and tables of one run. Nodes and regions may be in
// any CRS the projection registry understands.
type Input struct {
	Nodes   []spatial.Node
	Regions []spatial.Region
	// Demand maps region ID to demand. Regions missing here fall back to
	// their own Demand field.
	Demand map[string]float64
	// Weights maps node ID to a secondary weight. Nil disables weighting.
	Weights map[string]float64
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// RunID identifies the run in logs and reports.
	RunID string

	// CRS is the planar CRS all geometry below is expressed in.
	CRS string

	// Nodes and Regions are the projected inputs.
	Nodes   []spatial.Node
	Regions []spatial.Region

	// Cells holds one Voronoi cell per node.
	Cells []spatial.Cell

	// Table holds the proportion records and intersection pieces.
	Table *overlay.Table

	// Report holds the plausibility findings.
	Report *plausibility.Report

	// Allocation holds per-node values. Nil when strict mode stopped the run.
	Allocation *allocate.Result

	// Demand is the resolved region → demand mapping used for allocation.
	Demand map[string]float64

	// Artifacts contains rendered diagnostic views keyed by view name.
	Artifacts map[string][]byte

	// Stats contains timing and size information.
	Stats Stats

	// CacheInfo tracks which stages hit the cache.
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	NodeCount      int
	RegionCount    int
	RecordCount    int
	PieceCount     int
	NormalizeTime  time.Duration
	TessellateTime time.Duration
	OverlayTime    time.Duration
	CheckTime      time.Duration
	AllocateTime   time.Duration
}

// Stages returns per-stage durations in seconds keyed by stage name.
// Tessellation and assignment are timed together.
func (s Stats) Stages() map[string]float64 {
	return map[string]float64{
		"normalize":  s.NormalizeTime.Seconds(),
		"tessellate": s.TessellateTime.Seconds(),
		"overlay":    s.OverlayTime.Seconds(),
		"check":      s.CheckTime.Seconds(),
		"allocate":   s.AllocateTime.Seconds(),
	}
}

// CacheInfo tracks cache hits for each pipeline stage.
type CacheInfo struct {
	CellsHit   bool // cells came from the cells or overlay cache
	OverlayHit bool // proportion table came from the overlay cache
}

// TotalDemand sums the resolved demand of all regions.
func (r *Result) TotalDemand() float64 {
	var sum float64
	for _, v := range r.Demand {
		sum += v
	}
	return sum
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults applies defaults and validates every field.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	o.SetDefaults()
	if err := o.Validate(); err != nil {
		return err
	}
	o.validated = true
	return nil
}

// SetDefaults fills zero fields with their defaults.
func (o *Options) SetDefaults() {
	if o.CRS == "" {
		o.CRS = DefaultCRS
	}
	if o.Buffer == 0 {
		o.Buffer = DefaultBuffer
	}
	if o.Tolerance == 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MissingDemand == "" {
		o.MissingDemand = DefaultMissingDemand
	}
	if o.RenderWidth == 0 {
		o.RenderWidth = DefaultRenderWidth
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// Validate checks option values without applying defaults.
func (o *Options) Validate() error {
	if err := errors.ValidateBuffer(o.Buffer); err != nil {
		return err
	}
	if err := errors.ValidateTolerance(o.Tolerance); err != nil {
		return err
	}
	if o.Blend != nil {
		if err := errors.ValidateFraction("blend", *o.Blend); err != nil {
			return err
		}
	}
	if o.RenderWidth < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "render width must be positive, got %d", o.RenderWidth)
	}
	p, err := allocate.ParseMissingDemandPolicy(o.MissingDemand)
	if err != nil {
		return err
	}
	o.policy = p
	return nil
}

// AllocateOptions returns the allocator options for the run's node IDs and
// weights.
func (o *Options) AllocateOptions(nodeIDs []string, weights map[string]float64) allocate.Options {
	return allocate.Options{
		Weights:       weights,
		Blend:         o.Blend,
		MissingDemand: o.policy,
		Nodes:         nodeIDs,
	}
}

// ResolveDemand merges explicit demand with the regions' own Demand fields.
// Explicit values win.
func ResolveDemand(regions []spatial.Region, demand map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(regions)+len(demand))
	for _, r := range regions {
		if r.Demand != nil {
			out[r.ID] = *r.Demand
		}
	}
	for id, v := range demand {
		out[id] = v
	}
	return out
}

// stageError wraps err with the stage name, keeping its code.
func stageError(stage string, err error) error {
	return fmt.Errorf("%s: %w", stage, err)
}
