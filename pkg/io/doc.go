// Package io reads node and region layers and writes allocation outputs.
//
// # Overview
//
// The allocation core works on [spatial.Node] and [spatial.Region] values.
// This package produces them from the two vector formats administrative and
// facility data usually ship in, and writes the results back out as CSV,
// GeoJSON and JSON.
//
// # Input Formats
//
// The format is picked from the file extension:
//
//   - .geojson, .json: GeoJSON FeatureCollection (github.com/paulmach/orb)
//   - .shp: ESRI shapefile with its .dbf and .prj siblings
//     (github.com/ctessum/geom/encoding/shp)
//
// Nodes must be Point features and regions Polygon or MultiPolygon features.
//
// # Identifiers and Attributes
//
// The ID attribute is configurable, since every dataset names it differently:
//
//	nodes, err := io.ImportNodes("stations.geojson", io.NodeOptions{IDField: "node_id"})
//	regions, err := io.ImportRegions("nuts3.shp", io.RegionOptions{
//	    IDField:     "NUTS_ID",
//	    DemandField: "population",
//	})
//
// For GeoJSON an empty IDField falls back to the feature "id" member.
// Region rows sharing an ID are merged into one multipolygon; they must not
// carry conflicting demand values.
//
// # Coordinate Reference Systems
//
// A GeoJSON file declares its CRS through the legacy "crs" member; without
// one it is EPSG:4326, as RFC 7946 prescribes. A shapefile's CRS is the WKT
// text of its .prj file. The CRS option overrides both.
//
// # Demand and Weight Tables
//
// [ReadValues] loads an ID → value mapping from a CSV file with a header row.
// Empty cells are skipped, so a region without a value is simply missing.
//
// # Outputs
//
//   - [WriteAllocationCSV]: node_id,value per node
//   - [WriteProportionsCSV]: region_id,node_id,proportion per record
//   - [WriteCellsGeoJSON]: Voronoi cells as a FeatureCollection
//   - [WriteReportJSON]: run summary and plausibility findings
//
// Every Write function has an Export counterpart taking a file path.
//
// [spatial.Node]: github.com/meazyme/v-allo/pkg/spatial#Node
// [spatial.Region]: github.com/meazyme/v-allo/pkg/spatial#Region
package io
