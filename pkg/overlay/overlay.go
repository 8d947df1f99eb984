// Package overlay intersects Voronoi cells with demand regions and turns the
// intersection areas into proportion records.
//
// For every pair of a cell c and a region r that overlap,
//
//	proportion(c, r) = area(c ∩ r) / area(r)
//
// Regions are indexed in an R-tree so each cell is only intersected with the
// regions whose bounds it touches. Multipolygon regions are intersected part
// by part and the pieces of one (node, region) pair are summed.
package overlay

import (
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/meazyme/v-allo/pkg/errors"
	"github.com/meazyme/v-allo/pkg/spatial"
)

// Options configures Compute.
type Options struct {
	// Progress, if set, is called after each cell with the number of cells
	// processed so far and the total.
	Progress func(done, total int)
}

// Table is the output of Compute.
type Table struct {
	// Records holds one proportion per overlapping (node, region) pair,
	// sorted by region ID then node ID.
	Records []spatial.Proportion
	// Pieces holds the raw intersection polygons, in cell order.
	Pieces []spatial.Piece
	// RegionAreas maps region ID to its planar area.
	RegionAreas map[string]float64
}

// indexedRegion is a region part stored in the region R-tree.
type indexedRegion struct {
	geom.Polygonal
	idx int
}

type pairKey struct {
	node, region string
}

// Compute overlays cells with regions.
//
// Duplicate region IDs, regions without geometry and regions with zero area
// are ErrCodeInvalidInput errors. Pieces with non-positive area are dropped,
// so every record value is positive. Values are never rescaled: a region
// whose records sum above one is reported as is.
func Compute(cells []spatial.Cell, regions []spatial.Region, opts Options) (*Table, error) {
	areas := make(map[string]float64, len(regions))
	tree := rtree.NewTree(25, 50)
	for i, r := range regions {
		if _, dup := areas[r.ID]; dup {
			return nil, errors.New(errors.ErrCodeInvalidInput, "duplicate region id %q", r.ID)
		}
		if r.Geometry == nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, "region %q has no geometry", r.ID)
		}
		a := r.Geometry.Area()
		if !(a > 0) {
			return nil, errors.New(errors.ErrCodeInvalidInput, "region %q has zero area", r.ID)
		}
		areas[r.ID] = a
		for _, part := range r.Geometry.Polygons() {
			tree.Insert(&indexedRegion{Polygonal: part, idx: i})
		}
	}

	sums := make(map[pairKey]float64)
	var pieces []spatial.Piece
	for ci, c := range cells {
		for _, hit := range tree.SearchIntersect(c.Geometry.Bounds()) {
			part := hit.(*indexedRegion)
			isect := c.Geometry.Intersection(part.Polygonal)
			if isect == nil {
				continue
			}
			region := regions[part.idx]
			for _, poly := range isect.Polygons() {
				if len(poly) == 0 {
					continue
				}
				a := poly.Area()
				if !(a > 0) {
					continue
				}
				sums[pairKey{c.NodeID, region.ID}] += a
				pieces = append(pieces, spatial.Piece{
					NodeID:   c.NodeID,
					RegionID: region.ID,
					Geometry: poly,
					Area:     a,
				})
			}
		}
		if opts.Progress != nil {
			opts.Progress(ci+1, len(cells))
		}
	}

	records := make([]spatial.Proportion, 0, len(sums))
	for k, a := range sums {
		records = append(records, spatial.Proportion{
			NodeID:   k.node,
			RegionID: k.region,
			Value:    a / areas[k.region],
		})
	}
	spatial.SortProportions(records)

	return &Table{Records: records, Pieces: pieces, RegionAreas: areas}, nil
}

// RegionSums returns the per-region sum of proportion values.
func (t *Table) RegionSums() map[string]float64 {
	sums := make(map[string]float64, len(t.RegionAreas))
	for _, r := range t.Records {
		sums[r.RegionID] += r.Value
	}
	return sums
}

// ByRegion groups records by region ID, preserving record order.
func (t *Table) ByRegion() map[string][]spatial.Proportion {
	out := make(map[string][]spatial.Proportion)
	for _, r := range t.Records {
		out[r.RegionID] = append(out[r.RegionID], r)
	}
	return out
}
