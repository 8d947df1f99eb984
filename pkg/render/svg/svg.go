package svg

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	svgo "github.com/ajstarks/svgo"
	"github.com/ctessum/geom"

	"github.com/meazyme/v-allo/pkg/plausibility"
)

const (
	defaultWidth = 1000
	margin       = 20
	titleHeight  = 28
)

const (
	backgroundStyle = "fill:rgb(255,255,255)"
	cellStyle       = "fill:rgb(245,245,245);stroke:rgb(170,170,170);stroke-width:1"
	regionStyle     = "fill:none;stroke:rgb(60,60,60);stroke-width:1.5;fill-rule:evenodd"
	flaggedStyle    = "fill:none;stroke:rgb(220,40,40);stroke-width:3;fill-rule:evenodd"
	nodeStyle       = "fill:rgb(40,40,40)"
	flaggedNode     = "fill:rgb(220,40,40)"
	labelStyle      = "font-family:sans-serif;font-size:10px;fill:rgb(80,80,80)"
	titleStyle      = "font-family:sans-serif;font-size:16px;fill:rgb(20,20,20)"
)

// palette holds piece fill colors, cycled by node.
var palette = []string{
	"rgb(141,211,199)", "rgb(255,255,179)", "rgb(190,186,218)", "rgb(251,128,114)",
	"rgb(128,177,211)", "rgb(253,180,98)", "rgb(179,222,105)", "rgb(252,205,229)",
	"rgb(188,128,189)", "rgb(204,235,197)", "rgb(255,237,111)",
}

// Option configures a Sink.
type Option func(*Sink)

// WithWidth sets the picture width in pixels. Height follows the data's
// aspect ratio.
func WithWidth(px int) Option { return func(s *Sink) { s.width = px } }

// WithLabels draws node and region IDs.
func WithLabels() Option { return func(s *Sink) { s.labels = true } }

// Sink renders plausibility views to SVG and keeps the results in memory.
// It implements plausibility.Renderer.
type Sink struct {
	width     int
	labels    bool
	artifacts map[string][]byte
}

// New creates a Sink.
func New(opts ...Option) *Sink {
	s := &Sink{width: defaultWidth, artifacts: make(map[string][]byte)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Render draws v and stores the SVG under v.Name.
func (s *Sink) Render(v plausibility.View) error {
	var buf bytes.Buffer
	if err := s.write(&buf, v); err != nil {
		return err
	}
	s.artifacts[v.Name] = buf.Bytes()
	return nil
}

// Artifacts returns the rendered SVGs keyed by view name.
func (s *Sink) Artifacts() map[string][]byte {
	out := make(map[string][]byte, len(s.artifacts))
	for k, v := range s.artifacts {
		out[k] = v
	}
	return out
}

// Names returns the names of rendered views, sorted.
func (s *Sink) Names() []string {
	names := make([]string, 0, len(s.artifacts))
	for k := range s.artifacts {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// WriteTo renders v straight to w.
func (s *Sink) WriteTo(w io.Writer, v plausibility.View) error {
	return s.write(w, v)
}

func (s *Sink) write(w io.Writer, v plausibility.View) error {
	if s.width <= 2*margin {
		return fmt.Errorf("width %d too small", s.width)
	}
	b := viewBounds(v)
	if b == nil {
		return fmt.Errorf("view %q has nothing to draw", v.Name)
	}
	dx, dy := b.Max.X-b.Min.X, b.Max.Y-b.Min.Y
	if !(dx > 0) || !(dy > 0) {
		return fmt.Errorf("view %q has a degenerate extent", v.Name)
	}

	scale := float64(s.width-2*margin) / dx
	height := int(math.Ceil(dy*scale)) + 2*margin + titleHeight
	t := transform{min: b.Min, maxY: b.Max.Y, scale: scale}

	canvas := svgo.New(w)
	canvas.Start(s.width, height)
	canvas.Title(v.Title)
	canvas.Rect(0, 0, s.width, height, backgroundStyle)
	canvas.Text(margin, margin, v.Title, titleStyle)

	colors := nodeColors(v)

	canvas.Gid("cells")
	for _, c := range v.Cells {
		if len(c.Geometry) == 0 {
			continue
		}
		xs, ys := t.ring(c.Geometry[0])
		canvas.Polygon(xs, ys, cellStyle)
	}
	canvas.Gend()

	canvas.Gid("pieces")
	for _, p := range v.Pieces {
		canvas.Path(t.path(p.Geometry), "stroke:none;fill-rule:evenodd;fill:"+colors[p.NodeID])
	}
	canvas.Gend()

	canvas.Gid("regions")
	for _, r := range v.Regions {
		if r.Geometry == nil {
			continue
		}
		style := regionStyle
		if v.FlaggedRegions[r.ID] {
			style = flaggedStyle
		}
		for _, poly := range r.Geometry.Polygons() {
			canvas.Path(t.path(poly), style)
		}
		if s.labels {
			rb := r.Geometry.Bounds()
			x, y := t.point(geom.Point{X: (rb.Min.X + rb.Max.X) / 2, Y: (rb.Min.Y + rb.Max.Y) / 2})
			canvas.Text(x, y, r.ID, labelStyle+";text-anchor:middle")
		}
	}
	canvas.Gend()

	canvas.Gid("nodes")
	for _, n := range v.Nodes {
		style := nodeStyle
		if v.FlaggedNodes[n.ID] {
			style = flaggedNode
		}
		x, y := t.point(n.Point)
		canvas.Circle(x, y, 3, style)
		if s.labels {
			canvas.Text(x+5, y-5, n.ID, labelStyle)
		}
	}
	canvas.Gend()

	canvas.End()
	return nil
}

// transform maps planar coordinates to pixels with y pointing down.
type transform struct {
	min   geom.Point
	maxY  float64
	scale float64
}

func (t transform) point(p geom.Point) (int, int) {
	x := margin + (p.X-t.min.X)*t.scale
	y := margin + titleHeight + (t.maxY-p.Y)*t.scale
	return int(math.Round(x)), int(math.Round(y))
}

func (t transform) ring(path geom.Path) ([]int, []int) {
	xs := make([]int, len(path))
	ys := make([]int, len(path))
	for i, p := range path {
		xs[i], ys[i] = t.point(p)
	}
	return xs, ys
}

// path builds an SVG path with one closed subpath per ring, so holes render
// under the evenodd fill rule.
func (t transform) path(poly geom.Polygon) string {
	var sb strings.Builder
	for _, ring := range poly {
		for i, p := range ring {
			x, y := t.point(p)
			if i == 0 {
				fmt.Fprintf(&sb, "M%d %d", x, y)
				continue
			}
			fmt.Fprintf(&sb, " L%d %d", x, y)
		}
		sb.WriteString(" Z ")
	}
	return strings.TrimSpace(sb.String())
}

func viewBounds(v plausibility.View) *geom.Bounds {
	b := geom.NewBounds()
	empty := true
	extend := func(x *geom.Bounds) {
		b.Extend(x)
		empty = false
	}
	for _, c := range v.Cells {
		extend(c.Geometry.Bounds())
	}
	for _, r := range v.Regions {
		if r.Geometry != nil {
			extend(r.Geometry.Bounds())
		}
	}
	for _, p := range v.Pieces {
		extend(p.Geometry.Bounds())
	}
	for _, n := range v.Nodes {
		extend(n.Point.Bounds())
	}
	if empty {
		return nil
	}
	return b
}

func nodeColors(v plausibility.View) map[string]string {
	colors := make(map[string]string, len(v.Nodes))
	for i, n := range v.Nodes {
		colors[n.ID] = palette[i%len(palette)]
	}
	for _, p := range v.Pieces {
		if _, ok := colors[p.NodeID]; !ok {
			colors[p.NodeID] = palette[len(colors)%len(palette)]
		}
	}
	return colors
}
