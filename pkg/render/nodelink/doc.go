// Package nodelink renders proportion tables as node-link diagrams.
//
// # Overview
//
// The proportion table is a bipartite graph: a region links to every node
// whose cell covers part of it. This package writes that graph in Graphviz
// DOT format, which makes fragmented regions (many links) and nodes that
// serve many regions easy to spot.
//
// # Usage
//
//	dot := nodelink.ToDOT(table.Records, nodelink.Options{MinShare: 0.01})
//	os.WriteFile("proportions.dot", []byte(dot), 0o644)
//
// Render the file with any Graphviz install, for example
// "neato -Tsvg proportions.dot > proportions.svg".
package nodelink
