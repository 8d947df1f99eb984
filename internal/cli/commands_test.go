package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/meazyme/v-allo/pkg/errors"
)

const stationsJSON = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3035"}},
  "features": [
    {"type": "Feature", "properties": {"point_id": "a"}, "geometry": {"type": "Point", "coordinates": [0, 0]}},
    {"type": "Feature", "properties": {"point_id": "b"}, "geometry": {"type": "Point", "coordinates": [10, 0]}},
    {"type": "Feature", "properties": {"point_id": "c"}, "geometry": {"type": "Point", "coordinates": [5, 10]}}
  ]
}`

const districtsJSON = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "EPSG:3035"}},
  "features": [
    {"type": "Feature", "properties": {"region_id": "U", "pop": 40},
     "geometry": {"type": "Polygon", "coordinates": [[[4,4],[6,4],[6,6],[4,6],[4,4]]]}}
  ]
}`

const farDistrictsJSON = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "EPSG:3035"}},
  "features": [
    {"type": "Feature", "properties": {"region_id": "U"},
     "geometry": {"type": "Polygon", "coordinates": [[[4,4],[6,4],[6,6],[4,6],[4,4]]]}},
    {"type": "Feature", "properties": {"region_id": "far"},
     "geometry": {"type": "Polygon", "coordinates": [[[100,100],[101,100],[101,101],[100,101],[100,100]]]}}
  ]
}`

// runCLI executes the root command with args in an isolated environment.
func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	t.Setenv(envCacheDir, filepath.Join(t.TempDir(), "cache"))
	t.Setenv(envConfig, "")

	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestAllocateCommand(t *testing.T) {
	dir := t.TempDir()
	nodes := writeFile(t, dir, "stations.geojson", stationsJSON)
	regions := writeFile(t, dir, "districts.geojson", districtsJSON)
	demand := writeFile(t, dir, "demand.csv", "region_id,demand\nU,100\n")
	out := filepath.Join(dir, "out", "allocation.csv")
	props := filepath.Join(dir, "out", "proportions.csv")
	report := filepath.Join(dir, "out", "report.json")

	err := runCLI(t, "allocate",
		"--nodes", nodes, "--regions", regions, "--demand", demand,
		"-o", out, "--proportions-out", props, "--report", report, "--no-progress")
	if err != nil {
		t.Fatalf("allocate error = %v", err)
	}

	rows := readCSV(t, out)
	if len(rows) != 4 || rows[0][0] != "node_id" || rows[0][1] != "value" {
		t.Fatalf("allocation rows = %v", rows)
	}
	want := map[string]float64{"a": 1.5625, "b": 1.5625, "c": 96.875}
	for _, row := range rows[1:] {
		v, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			t.Fatalf("value %q: %v", row[1], err)
		}
		if math.Abs(v-want[row[0]]) > 1e-9 {
			t.Errorf("value[%s] = %v, want %v", row[0], v, want[row[0]])
		}
	}

	if rows := readCSV(t, props); len(rows) != 4 || rows[0][2] != "proportion" {
		t.Errorf("proportion rows = %v", rows)
	}

	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var summary struct {
		RunID   string  `json:"run_id"`
		Version string  `json:"version"`
		Total   float64 `json:"total"`
		Demand  float64 `json:"demand"`
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if summary.Version == "" {
		t.Error("report should record the build version")
	}
	if summary.RunID == "" || math.Abs(summary.Total-100) > 1e-9 || summary.Demand != 100 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestAllocateCommandDemandField(t *testing.T) {
	dir := t.TempDir()
	nodes := writeFile(t, dir, "stations.geojson", stationsJSON)
	regions := writeFile(t, dir, "districts.geojson", districtsJSON)
	out := filepath.Join(dir, "allocation.csv")

	err := runCLI(t, "allocate", "--nodes", nodes, "--regions", regions,
		"--demand-field", "pop", "-o", out, "--no-progress")
	if err != nil {
		t.Fatalf("allocate error = %v", err)
	}

	total := 0.0
	for _, row := range readCSV(t, out)[1:] {
		v, _ := strconv.ParseFloat(row[1], 64)
		total += v
	}
	if math.Abs(total-40) > 1e-9 {
		t.Errorf("total = %v, want 40", total)
	}
}

func TestAllocateCommandLonLatGeoJSON(t *testing.T) {
	dir := t.TempDir()
	nodes := writeFile(t, dir, "stations.geojson", `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"point_id": "a"}, "geometry": {"type": "Point", "coordinates": [10, 52]}},
    {"type": "Feature", "properties": {"point_id": "b"}, "geometry": {"type": "Point", "coordinates": [10.1, 52]}},
    {"type": "Feature", "properties": {"point_id": "c"}, "geometry": {"type": "Point", "coordinates": [10.05, 52.1]}}
  ]
}`)
	regions := writeFile(t, dir, "districts.geojson", `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"region_id": "U", "pop": 40},
     "geometry": {"type": "Polygon", "coordinates": [[[10.04,52.02],[10.06,52.02],[10.06,52.04],[10.04,52.04],[10.04,52.02]]]}}
  ]
}`)
	out := filepath.Join(dir, "allocation.csv")

	err := runCLI(t, "allocate", "--nodes", nodes, "--regions", regions,
		"--demand-field", "pop", "-o", out, "--no-progress")
	if err != nil {
		t.Fatalf("allocate error = %v", err)
	}

	rows := readCSV(t, out)
	if len(rows) != 4 {
		t.Fatalf("allocation rows = %v", rows)
	}
	total := 0.0
	for _, row := range rows[1:] {
		v, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			t.Fatalf("value %q: %v", row[1], err)
		}
		total += v
	}
	if math.Abs(total-40) > 1e-6 {
		t.Errorf("total = %v, want 40", total)
	}
}

func TestAllocateCommandStrict(t *testing.T) {
	dir := t.TempDir()
	nodes := writeFile(t, dir, "stations.geojson", stationsJSON)
	regions := writeFile(t, dir, "districts.geojson", farDistrictsJSON)
	out := filepath.Join(dir, "allocation.csv")
	report := filepath.Join(dir, "report.json")

	err := runCLI(t, "allocate", "--nodes", nodes, "--regions", regions,
		"--strict", "-o", out, "--report", report, "--no-progress")
	if !errors.Is(err, errors.ErrCodeCoverage) {
		t.Fatalf("allocate error = %v, want COVERAGE", err)
	}
	if _, err := os.Stat(report); err != nil {
		t.Errorf("strict failure should still write the report: %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("strict failure should not write the allocation")
	}
}

func TestAllocateCommandInputErrors(t *testing.T) {
	dir := t.TempDir()
	nodes := writeFile(t, dir, "stations.geojson", stationsJSON)
	regions := writeFile(t, dir, "districts.geojson", districtsJSON)

	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"no nodes", []string{"allocate", "--regions", "r.geojson"}, errors.ErrCodeInvalidInput},
		{"no regions", []string{"allocate", "--nodes", nodes}, errors.ErrCodeInvalidInput},
		{"missing file", []string{"allocate", "--nodes", nodes, "--regions", filepath.Join(dir, "nope.geojson")}, errors.ErrCodeFileNotFound},
		{"bad policy", []string{"allocate", "--nodes", nodes, "--regions", regions, "--missing-demand", "guess"}, errors.ErrCodeInvalidInput},
		{"bad config", []string{"allocate", "--config", filepath.Join(dir, "nope.toml")}, errors.ErrCodeFileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runCLI(t, tt.args...)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestProportionsCommand(t *testing.T) {
	dir := t.TempDir()
	nodes := writeFile(t, dir, "stations.geojson", stationsJSON)
	regions := writeFile(t, dir, "districts.geojson", districtsJSON)
	out := filepath.Join(dir, "proportions.csv")
	diag := filepath.Join(dir, "diag")

	graph := filepath.Join(dir, "proportions.dot")

	err := runCLI(t, "proportions", "--nodes", nodes, "--regions", regions,
		"-o", out, "--diagnostics", diag, "--graph-out", graph, "--no-progress")
	if err != nil {
		t.Fatalf("proportions error = %v", err)
	}

	rows := readCSV(t, out)
	if len(rows) != 4 {
		t.Fatalf("rows = %v", rows)
	}
	sum := 0.0
	for _, row := range rows[1:] {
		if row[0] != "U" {
			t.Errorf("region = %q, want U", row[0])
		}
		v, _ := strconv.ParseFloat(row[2], 64)
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("proportion sum = %v, want 1", sum)
	}

	dot, err := os.ReadFile(graph)
	if err != nil {
		t.Fatalf("read graph: %v", err)
	}
	if !strings.Contains(string(dot), `"r:U" -- "n:c"`) {
		t.Errorf("graph is missing the U-c edge:\n%s", dot)
	}

	svgs, _ := filepath.Glob(filepath.Join(diag, "*.svg"))
	if len(svgs) == 0 {
		t.Error("--diagnostics should write SVG views")
	}
}

func TestTessellateCommand(t *testing.T) {
	dir := t.TempDir()
	nodes := writeFile(t, dir, "stations.geojson", stationsJSON)
	out := filepath.Join(dir, "cells.geojson")

	if err := runCLI(t, "tessellate", "--nodes", nodes, "--buffer", "5", "-o", out); err != nil {
		t.Fatalf("tessellate error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read cells: %v", err)
	}
	var fc struct {
		Features []struct {
			Properties struct {
				NodeID string  `json:"node_id"`
				Area   float64 `json:"area"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &fc); err != nil {
		t.Fatalf("decode cells: %v", err)
	}
	if len(fc.Features) != 3 {
		t.Fatalf("features = %d, want 3", len(fc.Features))
	}
	// The frame is [-5, 15] x [-5, 15].
	area := 0.0
	for _, f := range fc.Features {
		area += f.Properties.Area
	}
	if math.Abs(area-400) > 1e-6 {
		t.Errorf("total cell area = %v, want 400", area)
	}
}

func TestTessellateCommandTooFewNodes(t *testing.T) {
	dir := t.TempDir()
	nodes := writeFile(t, dir, "two.geojson", `{"type":"FeatureCollection",
		"crs":{"type":"name","properties":{"name":"EPSG:3035"}},
		"features":[
		{"type":"Feature","properties":{"point_id":"a"},"geometry":{"type":"Point","coordinates":[0,0]}},
		{"type":"Feature","properties":{"point_id":"b"},"geometry":{"type":"Point","coordinates":[1,1]}}]}`)

	err := runCLI(t, "tessellate", "--nodes", nodes, "-o", filepath.Join(dir, "cells.geojson"))
	if !errors.Is(err, errors.ErrCodeInsufficientSeeds) {
		t.Errorf("error = %v, want INSUFFICIENT_SEEDS", err)
	}
}

func TestCRSCommand(t *testing.T) {
	if err := runCLI(t, "crs", "--proj"); err != nil {
		t.Errorf("crs error = %v", err)
	}
}

func TestCompleteCRS(t *testing.T) {
	tests := []struct {
		name       string
		planarOnly bool
		prefix     string
		want       string
		notWant    string
	}{
		{"planar target", true, "EPSG:4", "", "EPSG:4326"},
		{"any source", false, "epsg:43", "EPSG:4326", ""},
		{"utm", true, "EPSG:258", "EPSG:25832", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, directive := completeCRS(tt.planarOnly)(nil, nil, tt.prefix)
			if directive != cobra.ShellCompDirectiveNoFileComp {
				t.Errorf("directive = %v", directive)
			}
			codes := make(map[string]bool)
			for _, c := range got {
				codes[strings.SplitN(c, "\t", 2)[0]] = true
			}
			if tt.want != "" && !codes[tt.want] {
				t.Errorf("completions %v missing %s", got, tt.want)
			}
			if tt.notWant != "" && codes[tt.notWant] {
				t.Errorf("completions %v should not contain %s", got, tt.notWant)
			}
		})
	}
}

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			var buf bytes.Buffer
			root := New(io.Discard, LogInfo).RootCommand()
			root.SetArgs([]string{"completion", shell})
			root.SetOut(&buf)
			if err := root.ExecuteContext(context.Background()); err != nil {
				t.Fatalf("completion %s error = %v", shell, err)
			}
			if !strings.Contains(buf.String(), "vallo") {
				t.Errorf("completion %s script does not mention vallo", shell)
			}
		})
	}

	root := New(io.Discard, LogInfo).RootCommand()
	root.SetArgs([]string{"completion", "tcsh"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Error("completion for an unknown shell should fail")
	}
}
