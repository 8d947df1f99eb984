package svg

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ctessum/geom"

	"github.com/meazyme/v-allo/pkg/plausibility"
	"github.com/meazyme/v-allo/pkg/spatial"
)

func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0},
	}}
}

func cellsView() plausibility.View {
	return plausibility.View{
		Name:  plausibility.ViewCells,
		Title: "Polygons and corresponding nodes",
		Cells: []spatial.Cell{
			{NodeID: "a", Geometry: square(0, 0, 5, 10)},
			{NodeID: "b", Geometry: square(5, 0, 10, 10)},
		},
		Nodes: []spatial.Node{
			{ID: "a", Point: geom.Point{X: 2, Y: 5}},
			{ID: "b", Point: geom.Point{X: 8, Y: 5}},
		},
		FlaggedNodes: map[string]bool{"b": true},
	}
}

func TestSinkRender(t *testing.T) {
	s := New(WithWidth(400), WithLabels())
	if err := s.Render(cellsView()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	out := string(s.Artifacts()[plausibility.ViewCells])
	for _, want := range []string{"<svg", "</svg>", "Polygons and corresponding nodes", "<polygon", flaggedNode, ">a<"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if got := strings.Count(out, "<circle"); got != 2 {
		t.Errorf("circles = %d, want 2", got)
	}
	if names := s.Names(); len(names) != 1 || names[0] != plausibility.ViewCells {
		t.Errorf("Names() = %v", names)
	}
}

func TestSinkOverlayHoles(t *testing.T) {
	donut := geom.Polygon{
		{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 0, Y: 0}},
		{{X: 4, Y: 4}, {X: 4, Y: 6}, {X: 6, Y: 6}, {X: 6, Y: 4}, {X: 4, Y: 4}},
	}
	v := plausibility.View{
		Name:           plausibility.ViewOverlay,
		Regions:        []spatial.Region{{ID: "R", Geometry: donut}},
		Pieces:         []spatial.Piece{{NodeID: "a", RegionID: "R", Geometry: donut, Area: 96}},
		FlaggedRegions: map[string]bool{"R": true},
	}

	var buf bytes.Buffer
	if err := New().WriteTo(&buf, v); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, flaggedStyle) {
		t.Error("flagged region not highlighted")
	}
	// Two rings in one path: two closepath commands.
	if !strings.Contains(out, "Z M") {
		t.Error("hole ring not emitted as a subpath")
	}
}

func TestSinkRenderErrors(t *testing.T) {
	tests := []struct {
		name string
		sink *Sink
		view plausibility.View
	}{
		{"empty view", New(), plausibility.View{Name: "empty"}},
		{"single point", New(), plausibility.View{Name: "p", Nodes: []spatial.Node{{ID: "a"}}}},
		{"tiny width", New(WithWidth(10)), cellsView()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.sink.Render(tt.view); err == nil {
				t.Error("Render() error = nil, want error")
			}
			if len(tt.sink.Artifacts()) != 0 {
				t.Error("failed render stored an artifact")
			}
		})
	}
}

func TestSinkAsRenderer(t *testing.T) {
	var _ plausibility.Renderer = New()
}
