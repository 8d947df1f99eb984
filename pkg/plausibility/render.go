package plausibility

import "github.com/meazyme/v-allo/pkg/spatial"

// View names passed to renderers.
const (
	ViewCells   = "cells"
	ViewOverlay = "overlay"
)

// View is one diagnostic picture. Slices are shared with the checker input
// and must not be modified.
type View struct {
	Name  string
	Title string

	Cells   []spatial.Cell
	Nodes   []spatial.Node
	Regions []spatial.Region
	Pieces  []spatial.Piece

	FlaggedNodes   map[string]bool
	FlaggedRegions map[string]bool
}

// Renderer draws diagnostic views. Implementations live outside the core
// (see pkg/render/svg).
type Renderer interface {
	Render(v View) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(View) error

// Render calls f(v).
func (f RendererFunc) Render(v View) error { return f(v) }
