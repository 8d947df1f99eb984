package voronoi

import (
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/meazyme/v-allo/pkg/errors"
	"github.com/meazyme/v-allo/pkg/spatial"
)

// indexedSeed is a node location stored in the seed R-tree.
type indexedSeed struct {
	geom.Point
	idx int
}

// Assign labels each polygon with the node whose seed it contains.
//
// The join must be one-to-one: every polygon contains exactly one seed and
// every node is used exactly once. Any violation (for example duplicate seed
// coordinates, whose identical cells each contain two seeds) is an
// ErrCodeUnmappedCell error. Output cells are ordered like nodes.
func Assign(polygons []geom.Polygon, nodes []spatial.Node) ([]spatial.Cell, error) {
	if len(polygons) != len(nodes) {
		return nil, errors.New(errors.ErrCodeUnmappedCell, "%d cells for %d nodes", len(polygons), len(nodes))
	}

	tree := rtree.NewTree(25, 50)
	for i, n := range nodes {
		tree.Insert(&indexedSeed{Point: n.Point, idx: i})
	}

	cells := make([]spatial.Cell, len(nodes))
	owner := make([]int, len(nodes))
	for i := range owner {
		owner[i] = -1
	}

	for i, poly := range polygons {
		shape := toOrb(poly)
		match := -1
		count := 0
		for _, c := range tree.SearchIntersect(poly.Bounds()) {
			s := c.(*indexedSeed)
			if !planar.PolygonContains(shape, orb.Point{s.X, s.Y}) {
				continue
			}
			count++
			match = s.idx
		}
		if count != 1 {
			return nil, errors.New(errors.ErrCodeUnmappedCell, "cell %d contains %d seeds, want 1", i, count)
		}
		if owner[match] >= 0 {
			return nil, errors.New(errors.ErrCodeUnmappedCell, "node %q matched by cells %d and %d", nodes[match].ID, owner[match], i)
		}
		owner[match] = i
		cells[match] = spatial.Cell{NodeID: nodes[match].ID, Geometry: poly}
	}

	for i, o := range owner {
		if o < 0 {
			return nil, errors.New(errors.ErrCodeUnmappedCell, "node %q has no cell", nodes[i].ID)
		}
	}
	return cells, nil
}

// Cells runs [Tessellate] over the node locations and labels the result with
// [Assign].
func Cells(nodes []spatial.Node, buffer float64) ([]spatial.Cell, error) {
	polys, err := Tessellate(spatial.Points(nodes), buffer)
	if err != nil {
		return nil, err
	}
	return Assign(polys, nodes)
}

func toOrb(p geom.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, path := range p {
		ring := make(orb.Ring, len(path))
		for j, pt := range path {
			ring[j] = orb.Point{pt.X, pt.Y}
		}
		out[i] = ring
	}
	return out
}
