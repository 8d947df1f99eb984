// Package voronoi builds bounded Voronoi cells around node locations and
// attaches node identities to them.
//
// # Tessellation
//
// [Tessellate] computes the cell of every seed as the intersection of a
// rectangular frame with the half-planes bounded by the perpendicular
// bisectors to the other seeds. Neighbors are visited nearest first and the
// loop stops once the next bisector lies beyond the current cell radius, so
// only the handful of seeds that actually shape a cell are clipped against.
//
// The frame is the seeds' bounding box grown by a buffer on every side
// ([Frame]). Cells therefore partition the frame exactly; regions reaching
// beyond the frame are only partially covered.
//
// # Labeling
//
// [Assign] joins polygons to nodes by containment. Seeds go into an R-tree;
// each polygon queries it with its bounds and confirms candidates with an
// exact point-in-polygon test. The join must be a bijection.
//
//	polys, err := voronoi.Tessellate(spatial.Points(nodes), 10)
//	if err != nil {
//	    return err
//	}
//	cells, err := voronoi.Assign(polys, nodes)
//
// [Cells] combines both steps.
package voronoi
