// Package svg renders plausibility views as static SVG documents.
//
// A [Sink] implements plausibility.Renderer. Each call to Render draws one
// view, scaled to fit the configured width, and keeps the bytes under the
// view's name until [Sink.Artifacts] is called.
package svg
