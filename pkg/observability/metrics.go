package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records pipeline and cache events as Prometheus metrics.
// It implements both PipelineHooks and CacheHooks.
type Collector struct {
	gatherer prometheus.Gatherer

	StageRuns      *prometheus.CounterVec
	StageDurations *prometheus.HistogramVec
	StageItems     *prometheus.GaugeVec

	CacheEvents *prometheus.CounterVec
	CacheBytes  *prometheus.CounterVec

	Findings       *prometheus.GaugeVec
	AllocatedTotal prometheus.Gauge
	AllocatedNodes prometheus.Gauge
}

// NewCollector registers vallo metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vallo_stage_runs_total",
		Help: "Pipeline stage executions, labeled by stage and outcome.",
	}, []string{"stage", "outcome"}), "vallo_stage_runs_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vallo_stage_duration_seconds",
		Help:    "Pipeline stage latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"stage"}), "vallo_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	items, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vallo_stage_items",
		Help: "Number of items produced by the last run of each stage.",
	}, []string{"stage"}), "vallo_stage_items")
	if err != nil {
		return nil, err
	}

	cacheEvents, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vallo_cache_events_total",
		Help: "Cache lookups and writes, labeled by key type and event (hit, miss, set).",
	}, []string{"key_type", "event"}), "vallo_cache_events_total")
	if err != nil {
		return nil, err
	}

	cacheBytes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vallo_cache_written_bytes_total",
		Help: "Bytes written to the cache, labeled by key type.",
	}, []string{"key_type"}), "vallo_cache_written_bytes_total")
	if err != nil {
		return nil, err
	}

	findings, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vallo_findings",
		Help: "Plausibility findings of the last run, labeled by severity.",
	}, []string{"severity"}), "vallo_findings")
	if err != nil {
		return nil, err
	}

	total, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vallo_allocated_total",
		Help: "Sum of values allocated to nodes in the last run.",
	}), "vallo_allocated_total")
	if err != nil {
		return nil, err
	}

	nodes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vallo_allocated_nodes",
		Help: "Number of nodes that received an allocation in the last run.",
	}), "vallo_allocated_nodes")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		StageRuns:      runs,
		StageDurations: durations,
		StageItems:     items,
		CacheEvents:    cacheEvents,
		CacheBytes:     cacheBytes,
		Findings:       findings,
		AllocatedTotal: total,
		AllocatedNodes: nodes,
	}, nil
}

// OnStageStart does nothing; durations are recorded on completion.
func (c *Collector) OnStageStart(context.Context, string, int) {}

// OnStageComplete records the stage outcome, duration and output size.
func (c *Collector) OnStageComplete(_ context.Context, stage string, items int, d time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.StageRuns.WithLabelValues(stage, outcome).Inc()
	c.StageDurations.WithLabelValues(stage).Observe(d.Seconds())
	if err == nil {
		c.StageItems.WithLabelValues(stage).Set(float64(items))
	}
}

// OnCheckComplete records finding counts.
func (c *Collector) OnCheckComplete(_ context.Context, warnings, errors int) {
	if c == nil {
		return
	}
	c.Findings.WithLabelValues("warning").Set(float64(warnings))
	c.Findings.WithLabelValues("error").Set(float64(errors))
}

// OnAllocationComplete records the allocated total.
func (c *Collector) OnAllocationComplete(_ context.Context, total float64, nodes int) {
	if c == nil {
		return
	}
	c.AllocatedTotal.Set(total)
	c.AllocatedNodes.Set(float64(nodes))
}

// OnCacheHit counts a hit.
func (c *Collector) OnCacheHit(_ context.Context, keyType string) {
	if c == nil {
		return
	}
	c.CacheEvents.WithLabelValues(keyType, "hit").Inc()
}

// OnCacheMiss counts a miss.
func (c *Collector) OnCacheMiss(_ context.Context, keyType string) {
	if c == nil {
		return
	}
	c.CacheEvents.WithLabelValues(keyType, "miss").Inc()
}

// OnCacheSet counts a write and its size.
func (c *Collector) OnCacheSet(_ context.Context, keyType string, size int) {
	if c == nil {
		return
	}
	c.CacheEvents.WithLabelValues(keyType, "set").Inc()
	c.CacheBytes.WithLabelValues(keyType).Add(float64(size))
}

// WriteTextfile writes all gathered metrics to path in the Prometheus text
// format, for pickup by a node-exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

var (
	_ PipelineHooks = (*Collector)(nil)
	_ CacheHooks    = (*Collector)(nil)
)

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
