package io

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/geom"

	"github.com/meazyme/v-allo/pkg/allocate"
	"github.com/meazyme/v-allo/pkg/errors"
	"github.com/meazyme/v-allo/pkg/plausibility"
	"github.com/meazyme/v-allo/pkg/spatial"
)

const nodesJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"point_id": "a"}, "geometry": {"type": "Point", "coordinates": [0, 0]}},
    {"type": "Feature", "properties": {"point_id": 7}, "geometry": {"type": "Point", "coordinates": [10, 0]}},
    {"type": "Feature", "id": "c", "properties": {}, "geometry": {"type": "Point", "coordinates": [5, 10]}}
  ]
}`

const regionsJSON = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3035"}},
  "features": [
    {"type": "Feature", "properties": {"region_id": "R1", "pop": 100},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[2,0],[2,2],[0,2],[0,0]]]}},
    {"type": "Feature", "properties": {"region_id": "R2", "pop": "50"},
     "geometry": {"type": "Polygon", "coordinates": [[[4,0],[6,0],[6,2],[4,2],[4,0]]]}},
    {"type": "Feature", "properties": {"region_id": "R2", "pop": null},
     "geometry": {"type": "Polygon", "coordinates": [[[8,0],[9,0],[9,1],[8,1],[8,0]]]}},
    {"type": "Feature", "properties": {"region_id": "R3"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[0,4],[1,4],[1,5],[0,5],[0,4]]]]}}
  ]
}`

func TestReadNodesGeoJSON(t *testing.T) {
	t.Run("id field with fallback", func(t *testing.T) {
		nodes, err := ReadNodesGeoJSON(strings.NewReader(nodesJSON), NodeOptions{IDField: "point_id"})
		if err != nil {
			t.Fatalf("ReadNodesGeoJSON() error = %v", err)
		}
		if got := spatial.NodeIDs(nodes); strings.Join(got, ",") != "a,7,c" {
			t.Errorf("ids = %v, want [a 7 c]", got)
		}
		if nodes[1].Point != (geom.Point{X: 10, Y: 0}) {
			t.Errorf("point = %v", nodes[1].Point)
		}
		if nodes[0].CRS != DefaultGeoJSONCRS {
			t.Errorf("CRS = %q, want %q", nodes[0].CRS, DefaultGeoJSONCRS)
		}
	})

	t.Run("crs override", func(t *testing.T) {
		nodes, err := ReadNodesGeoJSON(strings.NewReader(nodesJSON), NodeOptions{IDField: "point_id", CRS: "EPSG:3035"})
		if err != nil {
			t.Fatalf("ReadNodesGeoJSON() error = %v", err)
		}
		if nodes[0].CRS != "EPSG:3035" {
			t.Errorf("CRS = %q", nodes[0].CRS)
		}
	})

	tests := []struct {
		name string
		data string
		code errors.Code
	}{
		{
			name: "not a point",
			data: `{"type":"FeatureCollection","features":[{"type":"Feature","id":"a","properties":{},"geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}]}`,
			code: errors.ErrCodeInvalidFormat,
		},
		{
			name: "duplicate id",
			data: `{"type":"FeatureCollection","features":[
				{"type":"Feature","id":"a","properties":{},"geometry":{"type":"Point","coordinates":[0,0]}},
				{"type":"Feature","id":"a","properties":{},"geometry":{"type":"Point","coordinates":[1,1]}}]}`,
			code: errors.ErrCodeInvalidInput,
		},
		{
			name: "missing id",
			data: `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[0,0]}}]}`,
			code: errors.ErrCodeInvalidInput,
		},
		{
			name: "not json",
			data: `nope`,
			code: errors.ErrCodeInvalidFormat,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadNodesGeoJSON(strings.NewReader(tt.data), NodeOptions{})
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestReadRegionsGeoJSON(t *testing.T) {
	regions, err := ReadRegionsGeoJSON(strings.NewReader(regionsJSON), RegionOptions{IDField: "region_id", DemandField: "pop"})
	if err != nil {
		t.Fatalf("ReadRegionsGeoJSON() error = %v", err)
	}
	if got := spatial.RegionIDs(regions); strings.Join(got, ",") != "R1,R2,R3" {
		t.Fatalf("ids = %v, want [R1 R2 R3]", got)
	}

	byID := make(map[string]spatial.Region)
	for _, r := range regions {
		byID[r.ID] = r
		if r.CRS != "urn:ogc:def:crs:EPSG::3035" {
			t.Errorf("%s CRS = %q", r.ID, r.CRS)
		}
	}

	if d := byID["R1"].Demand; d == nil || *d != 100 {
		t.Errorf("R1 demand = %v, want 100", d)
	}
	if d := byID["R2"].Demand; d == nil || *d != 50 {
		t.Errorf("R2 demand = %v, want 50", d)
	}
	if byID["R3"].Demand != nil {
		t.Errorf("R3 demand = %v, want nil", *byID["R3"].Demand)
	}
	// R2 merges a 2x2 and a 1x1 square.
	if got := byID["R2"].Area(); got != 5 {
		t.Errorf("R2 area = %v, want 5", got)
	}
	if got := len(byID["R2"].Geometry.Polygons()); got != 2 {
		t.Errorf("R2 parts = %d, want 2", got)
	}
}

func TestReadRegionsConflictingDemand(t *testing.T) {
	data := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"id":"R","pop":1},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
		{"type":"Feature","properties":{"id":"R","pop":2},"geometry":{"type":"Polygon","coordinates":[[[2,0],[3,0],[3,1],[2,0]]]}}]}`
	_, err := ReadRegionsGeoJSON(strings.NewReader(data), RegionOptions{IDField: "id", DemandField: "pop"})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("error = %v, want INVALID_INPUT", err)
	}
}

func TestImportDispatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nodes.geojson")
	if err := os.WriteFile(path, []byte(nodesJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	nodes, err := ImportNodes(path, NodeOptions{IDField: "point_id"})
	if err != nil {
		t.Fatalf("ImportNodes() error = %v", err)
	}
	if len(nodes) != 3 {
		t.Errorf("len = %d, want 3", len(nodes))
	}

	tests := []struct {
		name string
		path string
		code errors.Code
	}{
		{"missing file", filepath.Join(dir, "absent.geojson"), errors.ErrCodeFileNotFound},
		{"unknown extension", filepath.Join(dir, "nodes.kml"), errors.ErrCodeUnsupported},
		{"empty path", "", errors.ErrCodeInvalidPath},
		{"shapefile without prj", filepath.Join(dir, "nodes.shp"), errors.ErrCodeProjection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportNodes(tt.path, NodeOptions{IDField: "id"})
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestReadValues(t *testing.T) {
	data := "\ufeffregion_id,population,other\nR1,100,x\nR2,,y\nR3, 2.5 ,z\n,9,w\n"
	values, err := ReadValues(strings.NewReader(data), "region_id", "population")
	if err != nil {
		t.Fatalf("ReadValues() error = %v", err)
	}
	want := map[string]float64{"R1": 100, "R3": 2.5}
	if len(values) != len(want) {
		t.Fatalf("values = %v, want %v", values, want)
	}
	for k, v := range want {
		if values[k] != v {
			t.Errorf("values[%s] = %v, want %v", k, values[k], v)
		}
	}
}

func TestReadValuesErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		col  string
		code errors.Code
	}{
		{"empty", "", "v", errors.ErrCodeInvalidFormat},
		{"missing column", "id,w\nR1,1\n", "v", errors.ErrCodeInvalidFormat},
		{"not a number", "id,v\nR1,abc\n", "v", errors.ErrCodeInvalidFormat},
		{"nan", "id,v\nR1,NaN\n", "v", errors.ErrCodeInvalidFormat},
		{"duplicate", "id,v\nR1,1\nR1,2\n", "v", errors.ErrCodeInvalidInput},
		{"bad column name", "id,v\n", "1v", errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadValues(strings.NewReader(tt.data), "id", tt.col)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestWriteAllocationCSV(t *testing.T) {
	res := &allocate.Result{Values: map[string]float64{"b": 2.5, "a": 10}}
	var buf bytes.Buffer
	if err := WriteAllocationCSV(&buf, res); err != nil {
		t.Fatalf("WriteAllocationCSV() error = %v", err)
	}
	want := "node_id,value\na,10\nb,2.5\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestWriteProportionsCSV(t *testing.T) {
	records := []spatial.Proportion{
		{NodeID: "b", RegionID: "R2", Value: 1},
		{NodeID: "b", RegionID: "R1", Value: 0.25},
		{NodeID: "a", RegionID: "R1", Value: 0.75},
	}
	var buf bytes.Buffer
	if err := WriteProportionsCSV(&buf, records); err != nil {
		t.Fatalf("WriteProportionsCSV() error = %v", err)
	}
	want := "region_id,node_id,proportion\nR1,a,0.75\nR1,b,0.25\nR2,b,1\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
	if records[0].RegionID != "R2" {
		t.Error("input slice was reordered")
	}
}

func TestWriteCellsGeoJSONRoundTrip(t *testing.T) {
	cells := []spatial.Cell{
		{NodeID: "a", Geometry: geom.Polygon{{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}}}},
	}
	var buf bytes.Buffer
	if err := WriteCellsGeoJSON(&buf, cells, "EPSG:3035"); err != nil {
		t.Fatalf("WriteCellsGeoJSON() error = %v", err)
	}

	regions, err := ReadRegionsGeoJSON(&buf, RegionOptions{IDField: "node_id"})
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(regions) != 1 || regions[0].ID != "a" {
		t.Fatalf("regions = %+v", regions)
	}
	if regions[0].CRS != "urn:ogc:def:crs:EPSG::3035" {
		t.Errorf("CRS = %q", regions[0].CRS)
	}
	if got := regions[0].Area(); got != 16 {
		t.Errorf("area = %v, want 16", got)
	}
}

func TestExportReportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.json")
	s := Summary{
		CRS:           "EPSG:3035",
		Nodes:         3,
		MissingDemand: []string{"R9", "R2"},
		Report: &plausibility.Report{
			Findings: []plausibility.Finding{{
				Code: errors.ErrCodeCoverage, Severity: plausibility.SeverityWarning,
				Subject: plausibility.SubjectRegion, ID: "R2", Message: "short",
			}},
			Tolerance: 1e-6,
		},
	}
	if err := ExportReportJSON(path, s); err != nil {
		t.Fatalf("ExportReportJSON() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		CRS           string   `json:"crs"`
		MissingDemand []string `json:"missing_demand"`
		Report        struct {
			Findings []struct {
				Code string `json:"code"`
				ID   string `json:"id"`
			} `json:"findings"`
		} `json:"report"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.CRS != "EPSG:3035" {
		t.Errorf("crs = %q", got.CRS)
	}
	if strings.Join(got.MissingDemand, ",") != "R2,R9" {
		t.Errorf("missing_demand = %v, want sorted", got.MissingDemand)
	}
	if len(got.Report.Findings) != 1 || got.Report.Findings[0].Code != "COVERAGE" {
		t.Errorf("findings = %+v", got.Report.Findings)
	}
	if s.MissingDemand[0] != "R9" {
		t.Error("caller's slice was sorted in place")
	}
}

func TestExportArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "diag")
	paths, err := ExportArtifacts(dir, ".svg", map[string][]byte{"overlay": []byte("<svg/>"), "cells": []byte("<svg/>")})
	if err != nil {
		t.Fatalf("ExportArtifacts() error = %v", err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "cells.svg" {
		t.Errorf("paths = %v", paths)
	}
}
