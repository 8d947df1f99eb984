package io

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/meazyme/v-allo/pkg/allocate"
	"github.com/meazyme/v-allo/pkg/plausibility"
	"github.com/meazyme/v-allo/pkg/spatial"
)

// Summary is the document written by [WriteReportJSON].
type Summary struct {
	RunID   string  `json:"run_id,omitempty"`
	Version string  `json:"version,omitempty"`
	CRS     string  `json:"crs"`
	Buffer  float64 `json:"buffer"`
	Nodes   int     `json:"nodes"`
	Regions int     `json:"regions"`
	Records int     `json:"records"`
	// Total is the allocated demand; Demand is the input demand it should
	// equal under full coverage.
	Total         float64            `json:"total"`
	Demand        float64            `json:"demand"`
	MissingDemand []string           `json:"missing_demand,omitempty"`
	Stages        map[string]float64 `json:"stage_seconds,omitempty"`
	Cached        bool               `json:"cached"`

	Report *plausibility.Report `json:"report"`
}

// WriteAllocationCSV writes node_id,value rows sorted by node ID.
func WriteAllocationCSV(w io.Writer, res *allocate.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"node_id", "value"}); err != nil {
		return err
	}
	for _, id := range res.Nodes() {
		if err := cw.Write([]string{id, formatFloat(res.Values[id])}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteProportionsCSV writes region_id,node_id,proportion rows sorted by
// region then node.
func WriteProportionsCSV(w io.Writer, records []spatial.Proportion) error {
	sorted := append([]spatial.Proportion(nil), records...)
	spatial.SortProportions(sorted)

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"region_id", "node_id", "proportion"}); err != nil {
		return err
	}
	for _, r := range sorted {
		if err := cw.Write([]string{r.RegionID, r.NodeID, formatFloat(r.Value)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCellsGeoJSON writes cells as Polygon features with node_id and area
// properties. crs is recorded in the collection's "crs" member.
func WriteCellsGeoJSON(w io.Writer, cells []spatial.Cell, crs string) error {
	fc := geojson.NewFeatureCollection()
	for _, c := range cells {
		f := geojson.NewFeature(toOrbPolygon(c.Geometry))
		f.Properties["node_id"] = c.NodeID
		f.Properties["area"] = c.Geometry.Area()
		fc.Append(f)
	}
	if crs != "" {
		fc.ExtraMembers = geojson.Properties{
			"crs": map[string]any{
				"type":       "name",
				"properties": map[string]any{"name": crsName(crs)},
			},
		}
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n"))
	return err
}

// WriteReportJSON writes s as indented JSON.
func WriteReportJSON(w io.Writer, s Summary) error {
	if s.MissingDemand != nil {
		s.MissingDemand = append([]string(nil), s.MissingDemand...)
		sort.Strings(s.MissingDemand)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ExportAllocationCSV writes the allocation to a CSV file at path.
func ExportAllocationCSV(path string, res *allocate.Result) error {
	return export(path, func(w io.Writer) error { return WriteAllocationCSV(w, res) })
}

// ExportProportionsCSV writes the proportion table to a CSV file at path.
func ExportProportionsCSV(path string, records []spatial.Proportion) error {
	return export(path, func(w io.Writer) error { return WriteProportionsCSV(w, records) })
}

// ExportCellsGeoJSON writes cells to a GeoJSON file at path.
func ExportCellsGeoJSON(path string, cells []spatial.Cell, crs string) error {
	return export(path, func(w io.Writer) error { return WriteCellsGeoJSON(w, cells, crs) })
}

// ExportReportJSON writes the run summary to a JSON file at path.
func ExportReportJSON(path string, s Summary) error {
	return export(path, func(w io.Writer) error { return WriteReportJSON(w, s) })
}

// ExportArtifacts writes each artifact to dir as <name><ext> and returns the
// written paths, sorted.
func ExportArtifacts(dir, ext string, artifacts map[string][]byte) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	paths := make([]string, 0, len(artifacts))
	for name, data := range artifacts {
		p := filepath.Join(dir, name+ext)
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func export(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// crsName turns "EPSG:3035" into the OGC URN readers expect.
func crsName(crs string) string {
	if code, ok := strings.CutPrefix(crs, "EPSG:"); ok {
		return "urn:ogc:def:crs:EPSG::" + code
	}
	return crs
}

func toOrbPolygon(p geom.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, path := range p {
		ring := make(orb.Ring, len(path))
		for j, pt := range path {
			ring[j] = orb.Point{pt.X, pt.Y}
		}
		if n := len(ring); n > 0 && ring[0] != ring[n-1] {
			ring = append(ring, ring[0])
		}
		out[i] = ring
	}
	return out
}
