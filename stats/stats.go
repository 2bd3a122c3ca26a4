// Package stats registers and periodically logs the module's runtime
// counters: per-server DCSEG lookup/split/merge activity, proximity query
// addition/removal throughput, and session connect/migrate outcomes. A
// Tracker of named counter/gauge/latency metrics, periodically copied out
// and logged only when non-idle, built on github.com/prometheus/client_golang.
package stats

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sirikata/space/cmn/nlog"
)

// Registry is the per-process metrics Tracker. One Registry is constructed
// per server instance and passed explicitly to dcseg/prox/session, rather
// than relying on a package-level global.
type Registry struct {
	reg *prometheus.Registry

	DCSEGLookups       *prometheus.CounterVec // label "outcome": local|remote|failed
	DCSEGSplits        prometheus.Counter
	DCSEGMerges        prometheus.Counter
	DCSEGLookupLatency prometheus.Histogram

	ProxAdditions *prometheus.CounterVec // label "transience": permanent|transient
	ProxRemovals  *prometheus.CounterVec
	ProxQueries   prometheus.Gauge // current live query count

	SessionConnects    *prometheus.CounterVec // label "outcome": ok|failed
	SessionMigrations  *prometheus.CounterVec
	SessionTimeOffset  prometheus.Gauge // last computed clock-offset estimate, seconds
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		DCSEGLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "space", Subsystem: "dcseg", Name: "lookups_total",
		}, []string{"outcome"}),
		DCSEGSplits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "space", Subsystem: "dcseg", Name: "splits_total",
		}),
		DCSEGMerges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "space", Subsystem: "dcseg", Name: "merges_total",
		}),
		DCSEGLookupLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "space", Subsystem: "dcseg", Name: "lookup_latency_seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ProxAdditions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "space", Subsystem: "prox", Name: "additions_total",
		}, []string{"transience"}),
		ProxRemovals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "space", Subsystem: "prox", Name: "removals_total",
		}, []string{"transience"}),
		ProxQueries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "space", Subsystem: "prox", Name: "queries_active",
		}),
		SessionConnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "space", Subsystem: "session", Name: "connects_total",
		}, []string{"outcome"}),
		SessionMigrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "space", Subsystem: "session", Name: "migrations_total",
		}, []string{"outcome"}),
		SessionTimeOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "space", Subsystem: "session", Name: "time_offset_seconds",
		}),
	}
	reg.MustRegister(
		r.DCSEGLookups, r.DCSEGSplits, r.DCSEGMerges, r.DCSEGLookupLatency,
		r.ProxAdditions, r.ProxRemovals, r.ProxQueries,
		r.SessionConnects, r.SessionMigrations, r.SessionTimeOffset,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Registry for an HTTP /metrics
// handler (promhttp.HandlerFor), kept out of this package to avoid forcing
// every caller to import net/http.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// LogPeriodically runs a statsLogger loop: every interval, pull the current
// non-zero counters and log a single line iff something changed since the
// last tick, rather than spamming steady-state zeros.
func (r *Registry) LogPeriodically(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var prevLine string
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			line := r.snapshotLine()
			if line != prevLine {
				nlog.Infoln(line)
				prevLine = line
			}
		}
	}
}

func (r *Registry) snapshotLine() string {
	mfs, err := r.reg.Gather()
	if err != nil {
		return ""
	}
	var sum float64
	for _, mf := range mfs {
		for _, m := range mf.Metric {
			if c := m.GetCounter(); c != nil {
				sum += c.GetValue()
			}
		}
	}
	return fmt.Sprintf("stats: %d metric families, %.0f cumulative counter total", len(mfs), sum)
}
