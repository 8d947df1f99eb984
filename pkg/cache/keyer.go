package cache

import "strconv"

// CellsKeyOpts are the options that change a tessellation result.
type CellsKeyOpts struct {
	CRS    string
	Buffer float64
}

// OverlayKeyOpts are the options that change an overlay result.
type OverlayKeyOpts struct {
	CRS    string
	Buffer float64
}

// Keyer builds cache keys for pipeline stages.
type Keyer interface {
	// CellsKey identifies the cells computed from a node set.
	CellsKey(nodesHash string, opts CellsKeyOpts) string
	// OverlayKey identifies the cells and proportion table computed from a
	// node set and a region set.
	OverlayKey(inputHash string, opts OverlayKeyOpts) string
}

// DefaultKeyer hashes stage options together with the input hash.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// CellsKey returns "cells:<sha256>".
func (DefaultKeyer) CellsKey(nodesHash string, opts CellsKeyOpts) string {
	return hashKey("cells", nodesHash, opts.CRS, strconv.FormatFloat(opts.Buffer, 'g', -1, 64))
}

// OverlayKey returns "overlay:<sha256>".
func (DefaultKeyer) OverlayKey(inputHash string, opts OverlayKeyOpts) string {
	return hashKey("overlay", inputHash, opts.CRS, strconv.FormatFloat(opts.Buffer, 'g', -1, 64))
}

var _ Keyer = DefaultKeyer{}
