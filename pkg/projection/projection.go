// Package projection reprojects nodes and regions into one common planar
// coordinate reference system.
//
// Area-proportional allocation only makes sense on planar, equal-unit
// coordinates, so [Normalize] refuses geographic (longitude/latitude)
// targets. The usual choice for European data is EPSG:3035.
//
//	nodes, regions, err := projection.Normalize(nodes, regions, "EPSG:3035")
//	if errors.Is(err, errors.ErrCodeProjection) {
//	    // undeclared CRS, unknown code or geographic target
//	}
package projection

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/meazyme/v-allo/pkg/errors"
	"github.com/meazyme/v-allo/pkg/spatial"
)

// Parse resolves and parses a CRS identifier.
func Parse(crs string) (*proj.SR, error) {
	def, err := Resolve(crs)
	if err != nil {
		return nil, err
	}
	return parseDef(def, crs)
}

// parseDef parses a resolved definition and checks that coordinates can be
// transformed into and out of it.
func parseDef(def, crs string) (*proj.SR, error) {
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProjection, err, "parse CRS %q", crs)
	}
	if err := checkSupported(sr); err != nil {
		return nil, errors.Wrap(errors.ErrCodeProjection, err, "CRS %q", crs)
	}
	return sr, nil
}

// IsPlanar reports whether sr is a projected (non-geographic) system.
func IsPlanar(sr *proj.SR) bool {
	return sr != nil && sr.Name != "longlat"
}

// Normalize returns copies of nodes and regions expressed in the target CRS.
//
// Every node and region must declare a CRS and the target must be planar;
// otherwise an ErrCodeProjection error is returned and nothing is produced.
// Inputs already in the target CRS are copied without transformation. The
// CRS field of every output value is set to target.
func Normalize(nodes []spatial.Node, regions []spatial.Region, target string) ([]spatial.Node, []spatial.Region, error) {
	targetDef, err := Resolve(target)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeProjection, err, "target CRS")
	}
	targetSR, err := parseDef(targetDef, target)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeProjection, err, "target CRS")
	}
	if !IsPlanar(targetSR) {
		return nil, nil, errors.New(errors.ErrCodeProjection, "target CRS %q is geographic; a planar CRS is required for area computation", target)
	}

	tc := &transforms{target: targetSR, targetDef: targetDef, cache: make(map[string]proj.Transformer)}

	outNodes := make([]spatial.Node, len(nodes))
	for i, n := range nodes {
		t, err := tc.get(n.CRS)
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeProjection, err, "node %q", n.ID)
		}
		p := n.Point
		if t != nil {
			g, err := p.Transform(t)
			if err != nil {
				return nil, nil, errors.Wrap(errors.ErrCodeProjection, err, "transform node %q", n.ID)
			}
			p = g.(geom.Point)
		}
		if !finite(p) {
			return nil, nil, errors.New(errors.ErrCodeProjection, "node %q has non-finite coordinates after reprojection", n.ID)
		}
		outNodes[i] = spatial.Node{ID: n.ID, Point: p, CRS: target}
	}

	outRegions := make([]spatial.Region, len(regions))
	for i, r := range regions {
		t, err := tc.get(r.CRS)
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeProjection, err, "region %q", r.ID)
		}
		g, err := transformPolygonal(r.Geometry, t)
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeProjection, err, "transform region %q", r.ID)
		}
		out := spatial.Region{ID: r.ID, Geometry: g, CRS: target}
		if r.Demand != nil {
			out.Demand = spatial.Float(*r.Demand)
		}
		outRegions[i] = out
	}

	return outNodes, outRegions, nil
}

// transforms memoizes one transformer per source definition.
type transforms struct {
	target    *proj.SR
	targetDef string
	cache     map[string]proj.Transformer
}

// get returns nil when src already matches the target.
func (tc *transforms) get(src string) (proj.Transformer, error) {
	def, err := Resolve(src)
	if err != nil {
		return nil, err
	}
	if def == tc.targetDef {
		return nil, nil
	}
	if t, ok := tc.cache[def]; ok {
		return t, nil
	}
	sr, err := parseDef(def, src)
	if err != nil {
		return nil, err
	}
	t, err := newTransform(sr, tc.target)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProjection, err, "build transform from %q", src)
	}
	tc.cache[def] = t
	return t, nil
}

func transformPolygonal(g geom.Polygonal, t proj.Transformer) (geom.Polygonal, error) {
	if g == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "missing geometry")
	}
	if t == nil {
		return clonePolygonal(g), nil
	}
	out, err := g.Transform(t)
	if err != nil {
		return nil, err
	}
	p, ok := out.(geom.Polygonal)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "reprojected geometry is %T, not polygonal", out)
	}
	return p, nil
}

func clonePolygonal(g geom.Polygonal) geom.Polygonal {
	polys := g.Polygons()
	out := make(geom.MultiPolygon, len(polys))
	for i, p := range polys {
		out[i] = clonePolygon(p)
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func clonePolygon(p geom.Polygon) geom.Polygon {
	out := make(geom.Polygon, len(p))
	for i, ring := range p {
		out[i] = append(geom.Path(nil), ring...)
	}
	return out
}

func finite(p geom.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
