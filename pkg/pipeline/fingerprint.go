package pipeline

import (
	"github.com/ctessum/geom"

	"github.com/meazyme/v-allo/pkg/spatial"
)

// Fingerprints cover what the geometric stages read: IDs and coordinates.
// Demand is left out so new demand figures reuse cached overlays.

type nodePrint struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type regionPrint struct {
	ID    string         `json:"id"`
	Parts []geom.Polygon `json:"parts"`
}

func nodeFingerprint(nodes []spatial.Node) []nodePrint {
	out := make([]nodePrint, len(nodes))
	for i, n := range nodes {
		out[i] = nodePrint{ID: n.ID, X: n.Point.X, Y: n.Point.Y}
	}
	return out
}

func regionFingerprint(regions []spatial.Region) []regionPrint {
	out := make([]regionPrint, len(regions))
	for i, r := range regions {
		out[i] = regionPrint{ID: r.ID}
		if r.Geometry != nil {
			out[i].Parts = r.Geometry.Polygons()
		}
	}
	return out
}
