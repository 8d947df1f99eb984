// Package render groups the diagnostic renderers for allocation runs.
//
// # Overview
//
// The plausibility checker does not draw anything itself. It hands
// [plausibility.View] values to whatever [plausibility.Renderer] the caller
// injects. This package tree holds the implementations:
//
//   - [svg]: static SVG pictures built with github.com/ajstarks/svgo
//   - [nodelink]: the region/node proportion graph in Graphviz DOT format
//
// # SVG Diagnostics
//
//	sink := svg.New(svg.WithWidth(1200), svg.WithLabels())
//	report := plausibility.Check(in, plausibility.Options{Renderer: sink})
//	for name, data := range sink.Artifacts() {
//	    os.WriteFile(name+".svg", data, 0o644)
//	}
//
// The "cells" view shows every Voronoi cell with its node; nodes without any
// proportion record are drawn in red. The "overlay" view shows the demand
// regions filled by the intersection pieces, colored per node, with flagged
// regions outlined in red.
//
// [svg]: github.com/meazyme/v-allo/pkg/render/svg
// [nodelink]: github.com/meazyme/v-allo/pkg/render/nodelink
// [plausibility.View]: github.com/meazyme/v-allo/pkg/plausibility#View
// [plausibility.Renderer]: github.com/meazyme/v-allo/pkg/plausibility#Renderer
package render
