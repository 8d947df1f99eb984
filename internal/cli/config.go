package cli

import (
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/meazyme/v-allo/pkg/errors"
	"github.com/meazyme/v-allo/pkg/pipeline"
)

// =============================================================================
// Run File
// =============================================================================

// runConfig mirrors the TOML run file:
//
//	[input]
//	nodes = "stations.geojson"
//	regions = "nuts3.shp"
//	region_id = "NUTS_ID"
//	demand = "population.csv"
//
//	[run]
//	crs = "EPSG:3035"
//	buffer = 5000
//	strict = true
//
//	[output]
//	allocation = "out/allocation.csv"
//	diagnostics = "out/diagnostics"
//
// Every key has a flag of the same meaning; flags given on the command line
// win over the file.
type runConfig struct {
	Input  inputConfig      `toml:"input"`
	Run    pipeline.Options `toml:"run"`
	Output outputConfig     `toml:"output"`
}

type inputConfig struct {
	Nodes      string `toml:"nodes"`
	NodeID     string `toml:"node_id"`
	NodesCRS   string `toml:"nodes_crs"`
	Regions    string `toml:"regions"`
	RegionID   string `toml:"region_id"`
	RegionsCRS string `toml:"regions_crs"`

	// DemandField reads demand from a region attribute.
	DemandField string `toml:"demand_field"`
	// Demand reads demand from a CSV table; it wins over DemandField.
	Demand      string `toml:"demand"`
	DemandID    string `toml:"demand_id"`
	DemandValue string `toml:"demand_value"`

	Weights     string `toml:"weights"`
	WeightID    string `toml:"weight_id"`
	WeightValue string `toml:"weight_value"`
}

type outputConfig struct {
	Allocation  string `toml:"allocation"`
	Proportions string `toml:"proportions"`
	Cells       string `toml:"cells"`
	Graph       string `toml:"graph"`
	Report      string `toml:"report"`
	Diagnostics string `toml:"diagnostics"`
	Metrics     string `toml:"metrics"`
}

// Flag defaults follow the attribute names of the reference datasets.
const (
	defaultNodeID      = "point_id"
	defaultRegionID    = "region_id"
	defaultDemandValue = "demand"
	defaultWeightValue = "weight"
)

// loadConfig decodes a run file. Unknown keys are an error so typos do not
// silently fall back to defaults.
func loadConfig(path string) (runConfig, error) {
	var cfg runConfig
	if err := errors.ValidatePath(path); err != nil {
		return cfg, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, errors.New(errors.ErrCodeFileNotFound, "config file %s does not exist", path)
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return cfg, errors.New(errors.ErrCodeInvalidFormat, "%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// configPath returns the --config flag value, else $VALLO_CONFIG.
func configPath(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(envConfig)
}

// merge copies file values into cfg for every flag the user did not set.
func (cfg *runConfig) merge(file runConfig, changed func(string) bool) {
	in, fin := &cfg.Input, file.Input
	pick(changed("nodes"), &in.Nodes, fin.Nodes)
	pick(changed("node-id"), &in.NodeID, fin.NodeID)
	pick(changed("nodes-crs"), &in.NodesCRS, fin.NodesCRS)
	pick(changed("regions"), &in.Regions, fin.Regions)
	pick(changed("region-id"), &in.RegionID, fin.RegionID)
	pick(changed("regions-crs"), &in.RegionsCRS, fin.RegionsCRS)
	pick(changed("demand-field"), &in.DemandField, fin.DemandField)
	pick(changed("demand"), &in.Demand, fin.Demand)
	pick(changed("demand-id"), &in.DemandID, fin.DemandID)
	pick(changed("demand-value"), &in.DemandValue, fin.DemandValue)
	pick(changed("weights"), &in.Weights, fin.Weights)
	pick(changed("weight-id"), &in.WeightID, fin.WeightID)
	pick(changed("weight-value"), &in.WeightValue, fin.WeightValue)

	run, frun := &cfg.Run, file.Run
	pick(changed("crs"), &run.CRS, frun.CRS)
	pick(changed("buffer"), &run.Buffer, frun.Buffer)
	pick(changed("tolerance"), &run.Tolerance, frun.Tolerance)
	pick(changed("full-coverage"), &run.ExpectFullCoverage, frun.ExpectFullCoverage)
	pick(changed("strict"), &run.Strict, frun.Strict)
	pick(changed("missing-demand"), &run.MissingDemand, frun.MissingDemand)
	pick(changed("blend"), &run.Blend, frun.Blend)
	pick(changed("render"), &run.Render, frun.Render)
	pick(changed("render-width"), &run.RenderWidth, frun.RenderWidth)
	pick(changed("labels"), &run.RenderLabels, frun.RenderLabels)

	out, fout := &cfg.Output, file.Output
	pick(changed("output"), &out.Allocation, fout.Allocation)
	pick(changed("proportions-out"), &out.Proportions, fout.Proportions)
	pick(changed("cells-out"), &out.Cells, fout.Cells)
	pick(changed("graph-out"), &out.Graph, fout.Graph)
	pick(changed("report"), &out.Report, fout.Report)
	pick(changed("diagnostics"), &out.Diagnostics, fout.Diagnostics)
	pick(changed("metrics"), &out.Metrics, fout.Metrics)
}

// pick sets *dst to v unless the flag was changed or v is the zero value.
func pick[T comparable](changed bool, dst *T, v T) {
	var zero T
	if !changed && v != zero {
		*dst = v
	}
}

// =============================================================================
// Flag Registration
// =============================================================================

// flagSet describes which flag groups a command takes.
type flagSet struct {
	regions bool
	demand  bool
	check   bool
}

// bindFlags registers the run-file flags on cmd. blend receives --blend,
// which has no zero value meaning "unset".
func (cfg *runConfig) bindFlags(cmd *cobra.Command, set flagSet, blend *float64) {
	f := cmd.Flags()
	in := &cfg.Input

	f.StringVar(&in.Nodes, "nodes", "", "node layer (.geojson or .shp)")
	f.StringVar(&in.NodeID, "node-id", defaultNodeID, "node ID attribute")
	f.StringVar(&in.NodesCRS, "nodes-crs", "", "override the node layer CRS")
	f.StringVar(&cfg.Run.CRS, "crs", pipeline.DefaultCRS, "planar CRS to compute in")
	f.Float64Var(&cfg.Run.Buffer, "buffer", pipeline.DefaultBuffer, "tessellation frame margin in CRS units")
	_ = cmd.RegisterFlagCompletionFunc("crs", completeCRS(true))
	_ = cmd.RegisterFlagCompletionFunc("nodes-crs", completeCRS(false))

	if set.regions {
		f.StringVar(&in.Regions, "regions", "", "region layer (.geojson or .shp)")
		f.StringVar(&in.RegionID, "region-id", defaultRegionID, "region ID attribute")
		f.StringVar(&in.RegionsCRS, "regions-crs", "", "override the region layer CRS")
		_ = cmd.RegisterFlagCompletionFunc("regions-crs", completeCRS(false))
	}

	if set.check {
		f.Float64Var(&cfg.Run.Tolerance, "tolerance", pipeline.DefaultTolerance, "tolerance for proportion sums")
		f.BoolVar(&cfg.Run.ExpectFullCoverage, "full-coverage", false, "warn about regions not fully covered by cells")
		f.BoolVar(&cfg.Run.Strict, "strict", false, "fail when the plausibility check reports errors")
		f.StringVar(&cfg.Output.Report, "report", "", "write the run report as JSON")
		f.StringVar(&cfg.Output.Diagnostics, "diagnostics", "", "write diagnostic SVGs to this directory")
		f.BoolVar(&cfg.Run.RenderLabels, "labels", false, "label nodes and regions in diagnostic SVGs")
		f.IntVar(&cfg.Run.RenderWidth, "render-width", pipeline.DefaultRenderWidth, "diagnostic SVG width in pixels")
	}

	if set.demand {
		f.StringVar(&in.DemandField, "demand-field", "", "region attribute holding demand")
		f.StringVar(&in.Demand, "demand", "", "CSV table with demand per region")
		f.StringVar(&in.DemandID, "demand-id", defaultRegionID, "region ID column of the demand table")
		f.StringVar(&in.DemandValue, "demand-value", defaultDemandValue, "value column of the demand table")
		f.StringVar(&in.Weights, "weights", "", "CSV table with secondary weights per node")
		f.StringVar(&in.WeightID, "weight-id", defaultNodeID, "node ID column of the weights table")
		f.StringVar(&in.WeightValue, "weight-value", defaultWeightValue, "value column of the weights table")
		f.StringVar(&cfg.Run.MissingDemand, "missing-demand", pipeline.DefaultMissingDemand, "regions without demand: zero or abort")
		f.Float64Var(blend, "blend", 1, "share of the weighted split, in [0, 1]")
		f.StringVar(&cfg.Output.Metrics, "metrics", "", "write Prometheus metrics in textfile format")
	}
}

// resolve applies the run file and flag-only values after parsing.
func (cfg *runConfig) resolve(cmd *cobra.Command, configFlag string, blend float64) error {
	changed := cmd.Flags().Changed
	if changed("blend") {
		cfg.Run.Blend = &blend
	}
	if path := configPath(configFlag); path != "" {
		file, err := loadConfig(path)
		if err != nil {
			return err
		}
		cfg.merge(file, changed)
		loggerFromContext(cmd.Context()).Debug("loaded run file", "path", path)
	}
	if cfg.Output.Diagnostics != "" {
		cfg.Run.Render = true
	}
	return nil
}

// requireInputs checks that the layers a command needs are named.
func (cfg *runConfig) requireInputs(regions bool) error {
	if cfg.Input.Nodes == "" {
		return errors.New(errors.ErrCodeInvalidInput, "no node layer given (--nodes or [input] nodes)")
	}
	if regions && cfg.Input.Regions == "" {
		return errors.New(errors.ErrCodeInvalidInput, "no region layer given (--regions or [input] regions)")
	}
	return nil
}
