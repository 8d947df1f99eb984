// Package spatial defines the value types that flow through the allocation
// pipeline: nodes, regions, Voronoi cells, intersection pieces and proportion
// records.
//
// All geometry uses [github.com/ctessum/geom] types. Coordinates are planar
// once the projection stage has run; nothing in this package checks that.
//
// Values are treated as immutable. Stages build fresh slices rather than
// editing the ones they receive, so a caller can keep the output of any
// stage around while later stages run.
package spatial

import (
	"sort"

	"github.com/ctessum/geom"
)

// Node is a point-like facility that receives allocated demand.
type Node struct {
	ID    string
	Point geom.Point
	CRS   string
}

// Region is an areal unit carrying demand, typically an administrative
// district. Geometry is a geom.Polygon or geom.MultiPolygon and may contain
// holes. Demand is optional; when nil the value is joined by ID at
// allocation time.
type Region struct {
	ID       string
	Geometry geom.Polygonal
	CRS      string
	Demand   *float64
}

// Area returns the planar area of the region geometry.
func (r Region) Area() float64 {
	if r.Geometry == nil {
		return 0
	}
	return r.Geometry.Area()
}

// Cell is the Voronoi cell owned by a node.
type Cell struct {
	NodeID   string
	Geometry geom.Polygon
}

// Piece is the non-empty intersection of one cell with one region part.
type Piece struct {
	NodeID   string
	RegionID string
	Geometry geom.Polygon
	Area     float64
}

// Proportion is the fraction of a region's area covered by a node's cell.
type Proportion struct {
	NodeID   string
	RegionID string
	Value    float64
}

// SortProportions orders records by region ID, then node ID.
func SortProportions(records []Proportion) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].RegionID != records[j].RegionID {
			return records[i].RegionID < records[j].RegionID
		}
		return records[i].NodeID < records[j].NodeID
	})
}

// NodeIDs returns the IDs of nodes in input order.
func NodeIDs(nodes []Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

// RegionIDs returns the IDs of regions in input order.
func RegionIDs(regions []Region) []string {
	ids := make([]string, len(regions))
	for i, r := range regions {
		ids[i] = r.ID
	}
	return ids
}

// Points returns the node locations in input order.
func Points(nodes []Node) []geom.Point {
	pts := make([]geom.Point, len(nodes))
	for i, n := range nodes {
		pts[i] = n.Point
	}
	return pts
}

// Float returns a pointer to v, for populating Region.Demand.
func Float(v float64) *float64 { return &v }
