// Package metrics exposes engine counters for Prometheus scraping.  A single
// Collector is shared by all session pipelines, the counters are atomics so
// sessions never contend on a lock.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all engine metrics
type Collector struct {
	// Frame pipeline counters
	FramesAnalyzed atomic.Uint64
	FramesSkipped  atomic.Uint64
	FramesRejected atomic.Uint64

	// Violation counters
	ViolationsLow    atomic.Uint64
	ViolationsMedium atomic.Uint64
	ViolationsHigh   atomic.Uint64
	ReportsThrottled atomic.Uint64
	BrowserEvents    atomic.Uint64
	Lockdowns        atomic.Uint64

	// Session lifecycle
	ActiveSessions atomic.Int64

	registry *prometheus.Registry
}

// New creates a new Collector with its Prometheus registry
func New() *Collector {

	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.register()

	return c
}

// register attaches the metrics to the Prometheus registry.  The running
// totals are monotonically increasing so they register as counters, only the
// active session count registers as a gauge.
func (c *Collector) register() {

	counters := []struct {
		name string
		help string
		load func() float64
	}{
		{
			name: "proctor_frames_analyzed_total",
			help: "Total frames run through the decision pipeline",
			load: func() float64 { return float64(c.FramesAnalyzed.Load()) },
		},
		{
			name: "proctor_frames_skipped_total",
			help: "Total ticks skipped because no frame was ready",
			load: func() float64 { return float64(c.FramesSkipped.Load()) },
		},
		{
			name: "proctor_frames_rejected_total",
			help: "Total frames rejected for malformed decoder input",
			load: func() float64 { return float64(c.FramesRejected.Load()) },
		},
		{
			name: "proctor_violations_low_total",
			help: "Total low severity violations emitted",
			load: func() float64 { return float64(c.ViolationsLow.Load()) },
		},
		{
			name: "proctor_violations_medium_total",
			help: "Total medium severity violations emitted",
			load: func() float64 { return float64(c.ViolationsMedium.Load()) },
		},
		{
			name: "proctor_violations_high_total",
			help: "Total high severity violations emitted",
			load: func() float64 { return float64(c.ViolationsHigh.Load()) },
		},
		{
			name: "proctor_reports_throttled_total",
			help: "Total violation reports suppressed by the throttle window",
			load: func() float64 { return float64(c.ReportsThrottled.Load()) },
		},
		{
			name: "proctor_browser_events_total",
			help: "Total discrete browser events processed",
			load: func() float64 { return float64(c.BrowserEvents.Load()) },
		},
		{
			name: "proctor_lockdowns_total",
			help: "Total session lockdown signals raised",
			load: func() float64 { return float64(c.Lockdowns.Load()) },
		},
	}

	for _, def := range counters {
		c.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: def.name,
				Help: def.help,
			},
			def.load,
		))
	}

	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_active_sessions",
			Help: "Sessions currently being monitored",
		},
		func() float64 { return float64(c.ActiveSessions.Load()) },
	))
}

// CountViolation bumps the counter for the given severity name as produced
// by the rules package Severity String method
func (c *Collector) CountViolation(severity string) {

	switch severity {
	case "low":
		c.ViolationsLow.Add(1)
	case "medium":
		c.ViolationsMedium.Add(1)
	case "high":
		c.ViolationsHigh.Add(1)
	}
}

// Handler returns an HTTP handler serving the Prometheus scrape endpoint
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
