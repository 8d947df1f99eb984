// Package pkg provides the libraries behind vallo, the Voronoi areal
// allocation tool.
//
// # Overview
//
// vallo distributes demand recorded for regions to point-like nodes. Every
// node gets the Voronoi cell of the plane closer to it than to any other
// node, and receives each region's demand in proportion to the share of the
// region's area its cell covers. The pkg directory is organized as:
//
//  1. [spatial] - Node, region, cell and proportion types
//  2. [projection] - CRS resolution and reprojection into one planar CRS
//  3. [voronoi] - Tessellation and cell-to-node assignment
//  4. [overlay] - Cell/region intersection and the proportion table
//  5. [plausibility] - Consistency checks over cells and proportions
//  6. [allocate] - Demand distribution, optionally re-weighted per node
//  7. [pipeline] - Orchestration with caching (normalize → overlay → allocate)
//  8. [io] - GeoJSON, shapefile and CSV import and export
//  9. [render] - Diagnostic SVG and DOT renderers
//
// Supporting packages: [cache] for the content-addressed stage cache,
// [observability] for pipeline hooks and Prometheus metrics, [errors] for
// coded errors and input validation, and [buildinfo] for version data.
//
// # Architecture
//
// The data flow of one run:
//
//	Node layer + Region layer (+ demand table)
//	         ↓
//	   [projection.Normalize]  → one planar CRS
//	         ↓
//	   [voronoi.Tessellate] + [voronoi.Assign]  → cells
//	         ↓
//	   [overlay.Compute]  → proportion table
//	         ↓
//	   [plausibility.Check]  → report (+ SVG views)
//	         ↓
//	   [allocate.Allocate]  → value per node
//
// The geometric stages depend only on node and region geometry, so
// [pipeline.Runner] caches them and a run with new demand figures skips
// straight to allocation.
//
// # Quick Start
//
//	runner := pipeline.NewRunner(cache.NewMemoryCache(), nil, nil)
//	result, err := runner.Execute(ctx, pipeline.Input{
//	    Nodes:   nodes,
//	    Regions: regions,
//	    Demand:  map[string]float64{"R1": 1200},
//	}, pipeline.Options{CRS: "EPSG:3035"})
//
// [spatial]: github.com/meazyme/v-allo/pkg/spatial
// [projection]: github.com/meazyme/v-allo/pkg/projection
// [voronoi]: github.com/meazyme/v-allo/pkg/voronoi
// [overlay]: github.com/meazyme/v-allo/pkg/overlay
// [plausibility]: github.com/meazyme/v-allo/pkg/plausibility
// [allocate]: github.com/meazyme/v-allo/pkg/allocate
// [pipeline]: github.com/meazyme/v-allo/pkg/pipeline
// [io]: github.com/meazyme/v-allo/pkg/io
// [render]: github.com/meazyme/v-allo/pkg/render
// [cache]: github.com/meazyme/v-allo/pkg/cache
// [observability]: github.com/meazyme/v-allo/pkg/observability
// [errors]: github.com/meazyme/v-allo/pkg/errors
// [buildinfo]: github.com/meazyme/v-allo/pkg/buildinfo
// [projection.Normalize]: github.com/meazyme/v-allo/pkg/projection#Normalize
// [voronoi.Tessellate]: github.com/meazyme/v-allo/pkg/voronoi#Tessellate
// [voronoi.Assign]: github.com/meazyme/v-allo/pkg/voronoi#Assign
// [overlay.Compute]: github.com/meazyme/v-allo/pkg/overlay#Compute
// [plausibility.Check]: github.com/meazyme/v-allo/pkg/plausibility#Check
// [allocate.Allocate]: github.com/meazyme/v-allo/pkg/allocate#Allocate
// [pipeline.Runner]: github.com/meazyme/v-allo/pkg/pipeline#Runner
package pkg
