// Package observability carries pipeline and cache events to an optional
// metrics backend. The algorithm packages never see it; only the pipeline
// runner emits events, through the hooks installed here.
//
// [Collector] is the bundled implementation. It records Prometheus metrics
// and can dump them in the node-exporter textfile format at the end of a
// batch run.
//
// # Usage
//
// Install a collector before the run:
//
//	collector, err := observability.NewCollector(prometheus.NewRegistry())
//	observability.SetPipelineHooks(collector)
//	observability.SetCacheHooks(collector)
//	// ... run pipeline
//	collector.WriteTextfile("vallo.prom")
//
// The pipeline runner calls hooks around every stage:
//
//	observability.Pipeline().OnStageStart(ctx, observability.StageOverlay, len(cells))
//	// ... overlay ...
//	observability.Pipeline().OnStageComplete(ctx, observability.StageOverlay, len(records), duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// Pipeline stage names passed to PipelineHooks.
const (
	StageNormalize  = "normalize"
	StageTessellate = "tessellate"
	StageAssign     = "assign"
	StageOverlay    = "overlay"
	StageCheck      = "check"
	StageAllocate   = "allocate"
)

// =============================================================================
// Pipeline Hooks
// =============================================================================

// PipelineHooks receives events from the allocation pipeline.
type PipelineHooks interface {
	// OnStageStart is called before a stage runs with the size of its input.
	OnStageStart(ctx context.Context, stage string, items int)
	// OnStageComplete is called after a stage with the size of its output.
	OnStageComplete(ctx context.Context, stage string, items int, duration time.Duration, err error)
	// OnCheckComplete reports plausibility finding counts.
	OnCheckComplete(ctx context.Context, warnings, errors int)
	// OnAllocationComplete reports the allocated total and node count.
	OnAllocationComplete(ctx context.Context, total float64, nodes int)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// keyType is "cells" or "overlay".
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopPipelineHooks ignores every pipeline event.
type NoopPipelineHooks struct{}

func (NoopPipelineHooks) OnStageStart(context.Context, string, int)                          {}
func (NoopPipelineHooks) OnStageComplete(context.Context, string, int, time.Duration, error) {}
func (NoopPipelineHooks) OnCheckComplete(context.Context, int, int)                          {}
func (NoopPipelineHooks) OnAllocationComplete(context.Context, float64, int)                 {}

// NoopCacheHooks ignores every cache event.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// =============================================================================
// Registry
// =============================================================================

// registry holds the process-wide hooks. A run installs a Collector before
// the pipeline starts and resets afterwards.
type registry struct {
	mu       sync.RWMutex
	pipeline PipelineHooks
	cache    CacheHooks
}

var hooks = &registry{pipeline: NoopPipelineHooks{}, cache: NoopCacheHooks{}}

// SetPipelineHooks installs h for all later pipeline events. nil is ignored.
func SetPipelineHooks(h PipelineHooks) {
	if h == nil {
		return
	}
	hooks.mu.Lock()
	hooks.pipeline = h
	hooks.mu.Unlock()
}

// SetCacheHooks installs h for all later cache events. nil is ignored.
func SetCacheHooks(h CacheHooks) {
	if h == nil {
		return
	}
	hooks.mu.Lock()
	hooks.cache = h
	hooks.mu.Unlock()
}

// Pipeline returns the installed pipeline hooks.
func Pipeline() PipelineHooks {
	hooks.mu.RLock()
	defer hooks.mu.RUnlock()
	return hooks.pipeline
}

// Cache returns the installed cache hooks.
func Cache() CacheHooks {
	hooks.mu.RLock()
	defer hooks.mu.RUnlock()
	return hooks.cache
}

// Reset reinstalls the no-op hooks.
func Reset() {
	hooks.mu.Lock()
	hooks.pipeline = NoopPipelineHooks{}
	hooks.cache = NoopCacheHooks{}
	hooks.mu.Unlock()
}
