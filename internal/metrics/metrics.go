// Package metrics exposes Prometheus collectors for one store instance.
//
// Collectors are created per store and registered on a caller-supplied
// registry, so several stores in one process never share counters. Every
// recording method is safe to call on a nil *Collectors, which records
// nothing.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/gridkernel/internal/diff"
)

const namespace = "gridkernel"

// Collectors holds the store's metrics.
type Collectors struct {
	commits         *prometheus.CounterVec
	actions         *prometheus.CounterVec
	diffs           *prometheus.CounterVec
	commitSize      prometheus.Histogram
	dropped         prometheus.Counter
	evictions       prometheus.Counter
	guardViolations prometheus.Counter
	listenerPanics  prometheus.Counter
	rows            prometheus.Gauge
	columns         prometheus.Gauge
}

// New creates unregistered collectors.
func New() *Collectors {
	return &Collectors{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kernel",
			Name:      "commits_total",
			Help:      "Commits delivered, by commit label",
		}, []string{"label"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kernel",
			Name:      "actions_total",
			Help:      "Actions folded into delivered commits, by commit label",
		}, []string{"label"}),
		diffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "diffbus",
			Name:      "diffs_total",
			Help:      "Field diffs committed, by kind and source",
		}, []string{"kind", "source"}),
		commitSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "kernel",
			Name:      "commit_diffs",
			Help:      "Number of diffs per commit",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "dropped_paths_total",
			Help:      "Malformed or unsafe paths dropped by the gate",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "evictions_total",
			Help:      "Columns evicted from the index by the LRU bound",
		}),
		guardViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "violations_total",
			Help:      "Index consistency violations detected",
		}),
		listenerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "diffbus",
			Name:      "listener_panics_total",
			Help:      "Diff bus listeners that panicked during delivery",
		}),
		rows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "rows",
			Help:      "Rows in the latest committed snapshot",
		}),
		columns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "columns",
			Help:      "Columns currently held by the index",
		}),
	}
}

func (c *Collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.commits, c.actions, c.diffs, c.commitSize, c.dropped,
		c.evictions, c.guardViolations, c.listenerPanics, c.rows, c.columns,
	}
}

// Register adds every collector to reg. Registering the same Collectors
// twice is a no-op; a different instance with the same metric names fails.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	for _, col := range c.all() {
		if err := reg.Register(col); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) && already.ExistingCollector == col {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCommit records one delivered commit.
func (c *Collectors) ObserveCommit(label string, actions int, diffs []diff.FieldDiff, rows int) {
	if c == nil {
		return
	}
	c.commits.WithLabelValues(label).Inc()
	c.actions.WithLabelValues(label).Add(float64(actions))
	c.commitSize.Observe(float64(len(diffs)))
	for _, d := range diffs {
		c.diffs.WithLabelValues(string(d.Kind), string(d.Source)).Inc()
	}
	c.rows.Set(float64(rows))
}

// Dropped records n dropped paths.
func (c *Collectors) Dropped(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.dropped.Add(float64(n))
}

// Evicted records one evicted column.
func (c *Collectors) Evicted() {
	if c == nil {
		return
	}
	c.evictions.Inc()
}

// GuardViolation records one failed consistency check.
func (c *Collectors) GuardViolation() {
	if c == nil {
		return
	}
	c.guardViolations.Inc()
}

// ListenerPanic records one panicking diff bus listener.
func (c *Collectors) ListenerPanic() {
	if c == nil {
		return
	}
	c.listenerPanics.Inc()
}

// SetColumns records the number of indexed columns.
func (c *Collectors) SetColumns(n int) {
	if c == nil {
		return
	}
	c.columns.Set(float64(n))
}
