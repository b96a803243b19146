// Package metrics registers the loader's Prometheus instrumentation. It
// mirrors the Statistics counters without replacing them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles the loader's Prometheus metrics for one registry.
type Collectors struct {
	Commits       prometheus.Counter
	CommittedRows prometheus.Counter
	Errors        prometheus.Counter
	CopyAttempts  prometheus.Counter
	BatchDuration prometheus.Histogram
}

// Register creates and registers a Collectors set on reg, labeled with the
// target table name.
func Register(reg prometheus.Registerer, table string) (*Collectors, error) {
	constLabels := prometheus.Labels{"table": table}

	c := &Collectors{
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "pgbulkload",
			Name:        "commits_total",
			Help:        "Number of COPY/transaction commits performed.",
			ConstLabels: constLabels,
		}),
		CommittedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "pgbulkload",
			Name:        "committed_rows_total",
			Help:        "Number of rows successfully committed.",
			ConstLabels: constLabels,
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "pgbulkload",
			Name:        "errors_total",
			Help:        "Number of rows rejected by the database.",
			ConstLabels: constLabels,
		}),
		CopyAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "pgbulkload",
			Name:        "copy_attempts_total",
			Help:        "Number of COPY statements attempted, including dichotomy sub-attempts.",
			ConstLabels: constLabels,
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "pgbulkload",
			Name:        "batch_duration_seconds",
			Help:        "Duration of each batch COPY committed without recovery.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
	}

	for _, collector := range []prometheus.Collector{
		c.Commits, c.CommittedRows, c.Errors, c.CopyAttempts, c.BatchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}
