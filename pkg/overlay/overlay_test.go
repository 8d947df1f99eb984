package overlay

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/ctessum/geom"

	"github.com/meazyme/v-allo/pkg/errors"
	"github.com/meazyme/v-allo/pkg/spatial"
	"github.com/meazyme/v-allo/pkg/voronoi"
)

func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0},
	}}
}

func triangleCells(t *testing.T) []spatial.Cell {
	t.Helper()
	nodes := []spatial.Node{
		{ID: "a", Point: geom.Point{X: 0, Y: 0}},
		{ID: "b", Point: geom.Point{X: 10, Y: 0}},
		{ID: "c", Point: geom.Point{X: 5, Y: 10}},
	}
	cells, err := voronoi.Cells(nodes, 10)
	if err != nil {
		t.Fatalf("voronoi.Cells() error = %v", err)
	}
	return cells
}

func TestComputeTriangleSquare(t *testing.T) {
	cells := triangleCells(t)
	regions := []spatial.Region{{ID: "R", Geometry: square(4, 4, 6, 6)}}

	table, err := Compute(cells, regions, Options{})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	want := map[string]float64{"a": 0.015625, "b": 0.015625, "c": 0.96875}
	if len(table.Records) != len(want) {
		t.Fatalf("records = %+v, want %d", table.Records, len(want))
	}
	sum := 0.0
	for _, r := range table.Records {
		if r.RegionID != "R" {
			t.Errorf("record region = %q, want R", r.RegionID)
		}
		if math.Abs(r.Value-want[r.NodeID]) > 1e-9 {
			t.Errorf("proportion(%s) = %v, want %v", r.NodeID, r.Value, want[r.NodeID])
		}
		sum += r.Value
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("sum = %v, want 1", sum)
	}
	if got := table.RegionAreas["R"]; math.Abs(got-4) > 1e-12 {
		t.Errorf("RegionAreas[R] = %v, want 4", got)
	}
	if len(table.Pieces) != 3 {
		t.Errorf("pieces = %d, want 3", len(table.Pieces))
	}
}

func TestComputeSortedRecords(t *testing.T) {
	cells := triangleCells(t)
	regions := []spatial.Region{
		{ID: "Z", Geometry: square(-5, -5, 15, 15)},
		{ID: "A", Geometry: square(4, 4, 6, 6)},
	}
	table, err := Compute(cells, regions, Options{})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	for i := 1; i < len(table.Records); i++ {
		prev, cur := table.Records[i-1], table.Records[i]
		if prev.RegionID > cur.RegionID || (prev.RegionID == cur.RegionID && prev.NodeID >= cur.NodeID) {
			t.Errorf("records not sorted at %d: %+v then %+v", i, prev, cur)
		}
	}
}

func TestComputeFullCoverageSums(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	nodes := make([]spatial.Node, 40)
	for i := range nodes {
		nodes[i] = spatial.Node{ID: fmt.Sprintf("n%02d", i), Point: geom.Point{X: r.Float64() * 100, Y: r.Float64() * 100}}
	}
	cells, err := voronoi.Cells(nodes, 10)
	if err != nil {
		t.Fatalf("voronoi.Cells() error = %v", err)
	}

	// A 4x4 grid of regions inside the seed extent.
	var regions []spatial.Region
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			x, y := 10+float64(i)*20, 10+float64(j)*20
			regions = append(regions, spatial.Region{ID: fmt.Sprintf("R%d%d", i, j), Geometry: square(x, y, x+20, y+20)})
		}
	}

	table, err := Compute(cells, regions, Options{})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	for id, sum := range table.RegionSums() {
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("region %s sum = %v, want 1", id, sum)
		}
	}
	for _, rec := range table.Records {
		if rec.Value <= 0 || rec.Value > 1+1e-9 {
			t.Errorf("proportion out of range: %+v", rec)
		}
	}
}

func TestComputePartialCoverage(t *testing.T) {
	cells := triangleCells(t)
	// Frame is [-10, 20]^2; half of this region lies outside it.
	regions := []spatial.Region{{ID: "edge", Geometry: square(10, 0, 30, 10)}}
	table, err := Compute(cells, regions, Options{})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	sum := table.RegionSums()["edge"]
	if math.Abs(sum-0.5) > 1e-9 {
		t.Errorf("sum = %v, want 0.5", sum)
	}
}

func TestComputeMultiPolygon(t *testing.T) {
	cells := triangleCells(t)
	region := spatial.Region{ID: "M", Geometry: geom.MultiPolygon{
		square(-1, -1, 1, 1),
		square(9, -1, 11, 1),
	}}
	table, err := Compute(cells, []spatial.Region{region}, Options{})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	got := make(map[string]float64)
	for _, r := range table.Records {
		got[r.NodeID] = r.Value
	}
	if math.Abs(got["a"]-0.5) > 1e-9 || math.Abs(got["b"]-0.5) > 1e-9 {
		t.Errorf("proportions = %v, want a=0.5 b=0.5", got)
	}
}

func TestComputeHole(t *testing.T) {
	cells := triangleCells(t)
	donut := geom.Polygon{
		{{X: -2, Y: -2}, {X: 2, Y: -2}, {X: 2, Y: 2}, {X: -2, Y: 2}, {X: -2, Y: -2}},
		{{X: -1, Y: -1}, {X: -1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: -1}, {X: -1, Y: -1}},
	}
	table, err := Compute(cells, []spatial.Region{{ID: "D", Geometry: donut}}, Options{})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if math.Abs(table.RegionAreas["D"]-12) > 1e-9 {
		t.Errorf("area = %v, want 12", table.RegionAreas["D"])
	}
	if sum := table.RegionSums()["D"]; math.Abs(sum-1) > 1e-6 {
		t.Errorf("sum = %v, want 1", sum)
	}
}

func TestComputeInvalidRegions(t *testing.T) {
	cells := triangleCells(t)
	tests := []struct {
		name    string
		regions []spatial.Region
	}{
		{"duplicate id", []spatial.Region{
			{ID: "R", Geometry: square(0, 0, 1, 1)},
			{ID: "R", Geometry: square(2, 2, 3, 3)},
		}},
		{"nil geometry", []spatial.Region{{ID: "R"}}},
		{"zero area", []spatial.Region{{ID: "R", Geometry: square(1, 1, 1, 5)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(cells, tt.regions, Options{})
			if !errors.Is(err, errors.ErrCodeInvalidInput) {
				t.Errorf("Compute() error = %v, want %s", err, errors.ErrCodeInvalidInput)
			}
		})
	}
}

func TestComputeProgress(t *testing.T) {
	cells := triangleCells(t)
	var calls []int
	_, err := Compute(cells, []spatial.Region{{ID: "R", Geometry: square(4, 4, 6, 6)}}, Options{
		Progress: func(done, total int) {
			if total != len(cells) {
				t.Errorf("total = %d, want %d", total, len(cells))
			}
			calls = append(calls, done)
		},
	})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if len(calls) != len(cells) || calls[len(calls)-1] != len(cells) {
		t.Errorf("progress calls = %v", calls)
	}
}

func TestComputeIdempotent(t *testing.T) {
	cells := triangleCells(t)
	regions := []spatial.Region{{ID: "R", Geometry: square(4, 4, 6, 6)}, {ID: "S", Geometry: square(-3, -3, 3, 3)}}
	a, err := Compute(cells, regions, Options{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compute(cells, regions, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Records) != len(b.Records) {
		t.Fatalf("record counts differ: %d vs %d", len(a.Records), len(b.Records))
	}
	for i := range a.Records {
		if a.Records[i] != b.Records[i] {
			t.Errorf("record %d differs: %+v vs %+v", i, a.Records[i], b.Records[i])
		}
	}
}

func TestComputePieces(t *testing.T) {
	cells := triangleCells(t)
	regions := []spatial.Region{
		{ID: "R", Geometry: square(4, 4, 6, 6)},
		{ID: "M", Geometry: geom.MultiPolygon{square(-2, -2, 0, 0), square(10, 10, 12, 12)}},
	}

	table, err := Compute(cells, regions, Options{})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if len(table.Pieces) == 0 {
		t.Fatal("no pieces")
	}

	areas := make(map[string]float64)
	pairs := make(map[string]float64)
	for _, p := range table.Pieces {
		if len(p.Geometry) == 0 {
			t.Errorf("piece %s/%s has no rings", p.NodeID, p.RegionID)
		}
		if !(p.Area > 0) || math.Abs(p.Geometry.Area()-p.Area) > 1e-9 {
			t.Errorf("piece %s/%s area = %v, geometry area %v", p.NodeID, p.RegionID, p.Area, p.Geometry.Area())
		}
		areas[p.RegionID] += p.Area
		pairs[p.NodeID+"/"+p.RegionID] += p.Area
	}
	for id, want := range map[string]float64{"R": 4, "M": 8} {
		if math.Abs(areas[id]-want) > 1e-9 {
			t.Errorf("piece area of %s = %v, want %v", id, areas[id], want)
		}
	}
	for _, r := range table.Records {
		if got := pairs[r.NodeID+"/"+r.RegionID] / table.RegionAreas[r.RegionID]; math.Abs(got-r.Value) > 1e-12 {
			t.Errorf("record %s/%s = %v, pieces give %v", r.NodeID, r.RegionID, r.Value, got)
		}
	}
}
