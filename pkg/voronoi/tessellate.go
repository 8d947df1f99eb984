package voronoi

import (
	"math"
	"sort"

	"github.com/ctessum/geom"

	"github.com/meazyme/v-allo/pkg/errors"
)

// DefaultBuffer is the frame margin used when the caller does not choose one.
// It is expressed in CRS units.
const DefaultBuffer = 10.0

// Frame returns the tessellation frame: the bounding box of seeds expanded
// by buffer on every side.
func Frame(seeds []geom.Point, buffer float64) *geom.Bounds {
	b := geom.NewBounds()
	for _, p := range seeds {
		b.Extend(p.Bounds())
	}
	b.Min.X -= buffer
	b.Min.Y -= buffer
	b.Max.X += buffer
	b.Max.Y += buffer
	return b
}

// Tessellate builds one Voronoi cell per seed, clipped to the frame returned
// by [Frame].
//
// The result has exactly len(seeds) polygons in seed order. Each polygon is a
// single closed, counter-clockwise ring. Cells are not labeled; use [Assign]
// to attach node identities.
//
// Seeds sharing a coordinate are not merged: each duplicate gets a copy of
// the same cell, which [Assign] later rejects. Fewer than three distinct
// seeds, or distinct seeds that all lie on one line, yield an
// ErrCodeInsufficientSeeds error.
func Tessellate(seeds []geom.Point, buffer float64) ([]geom.Polygon, error) {
	if err := errors.ValidateBuffer(buffer); err != nil {
		return nil, err
	}
	for i, p := range seeds {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return nil, errors.New(errors.ErrCodeInvalidInput, "seed %d has non-finite coordinates", i)
		}
	}

	unique, owner := dedupe(seeds)
	if len(unique) < 3 {
		return nil, errors.New(errors.ErrCodeInsufficientSeeds, "need at least 3 distinct seeds, got %d", len(unique))
	}
	if collinear(unique) {
		return nil, errors.New(errors.ErrCodeInsufficientSeeds, "all %d distinct seeds are collinear", len(unique))
	}

	frame := Frame(unique, buffer)
	box := []geom.Point{
		{X: frame.Min.X, Y: frame.Min.Y},
		{X: frame.Max.X, Y: frame.Min.Y},
		{X: frame.Max.X, Y: frame.Max.Y},
		{X: frame.Min.X, Y: frame.Max.Y},
	}

	cells := make([][]geom.Point, len(unique))
	order := make([]int, len(unique))
	for i, p := range unique {
		for j := range order {
			order[j] = j
		}
		sort.Slice(order, func(a, b int) bool {
			return dist2(p, unique[order[a]]) < dist2(p, unique[order[b]])
		})

		cell := append([]geom.Point(nil), box...)
		radius := maxDist2(p, cell)
		for _, j := range order {
			if j == i {
				continue
			}
			q := unique[j]
			d2 := dist2(p, q)
			// Bisectors at distance >= the cell radius cannot cut the cell,
			// and neighbors are visited nearest first.
			if d2/4 >= radius {
				break
			}
			cell = clip(cell, p, q)
			radius = maxDist2(p, cell)
		}
		cells[i] = cell
	}

	out := make([]geom.Polygon, len(seeds))
	for i := range seeds {
		out[i] = closeRing(cells[owner[i]])
	}
	return out, nil
}

// dedupe returns the distinct seeds in first-seen order and, for every input
// seed, the index of its distinct representative.
func dedupe(seeds []geom.Point) ([]geom.Point, []int) {
	seen := make(map[geom.Point]int, len(seeds))
	unique := make([]geom.Point, 0, len(seeds))
	owner := make([]int, len(seeds))
	for i, p := range seeds {
		if j, ok := seen[p]; ok {
			owner[i] = j
			continue
		}
		seen[p] = len(unique)
		owner[i] = len(unique)
		unique = append(unique, p)
	}
	return unique, owner
}

// collinear reports whether all points lie on one line, up to a tolerance
// relative to the point spread.
func collinear(pts []geom.Point) bool {
	a := pts[0]
	far, farD := 0, 0.0
	for i, p := range pts {
		if d := dist2(a, p); d > farD {
			far, farD = i, d
		}
	}
	if farD == 0 {
		return true
	}
	b := pts[far]
	length := math.Sqrt(farD)
	for _, p := range pts {
		cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
		// cross/length is the distance of p from the line through a and b.
		if math.Abs(cross)/length > 1e-9*length {
			return false
		}
	}
	return true
}

// clip intersects a convex ring with the half-plane of points closer to p
// than to q.
func clip(ring []geom.Point, p, q geom.Point) []geom.Point {
	mx, my := (p.X+q.X)/2, (p.Y+q.Y)/2
	dx, dy := q.X-p.X, q.Y-p.Y
	side := func(v geom.Point) float64 {
		return (v.X-mx)*dx + (v.Y-my)*dy
	}

	out := make([]geom.Point, 0, len(ring)+1)
	for i, a := range ring {
		b := ring[(i+1)%len(ring)]
		fa, fb := side(a), side(b)
		if fa <= 0 {
			out = append(out, a)
		}
		if (fa < 0 && fb > 0) || (fa > 0 && fb < 0) {
			t := fa / (fa - fb)
			out = append(out, geom.Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)})
		}
	}
	return out
}

func closeRing(ring []geom.Point) geom.Polygon {
	path := make(geom.Path, 0, len(ring)+1)
	path = append(path, ring...)
	if len(ring) > 0 {
		path = append(path, ring[0])
	}
	return geom.Polygon{path}
}

func dist2(a, b geom.Point) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}

func maxDist2(p geom.Point, ring []geom.Point) float64 {
	m := 0.0
	for _, v := range ring {
		if d := dist2(p, v); d > m {
			m = d
		}
	}
	return m
}
