package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the ingestion pipeline's Prometheus instrumentation.
// A nil *Metrics disables collection; every method is nil-safe so the
// hot path never branches on configuration.
type Metrics struct {
	datagramsReceived  prometheus.Counter
	datagramsDropped   prometheus.Counter
	datagramsProcessed prometheus.Counter
	linesMatched       prometheus.Counter
	commits            prometheus.Counter
	commitErrors       prometheus.Counter
	commitsDropped     prometheus.Counter
	commitLatency      prometheus.Histogram
	queueDepth         prometheus.Gauge
}

// NewMetrics creates and registers ingestion metrics. Returns nil when no
// registry is provided.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		datagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "totalizer",
			Subsystem: "ingest",
			Name:      "datagrams_received_total",
			Help:      "Total UDP datagrams received",
		}),
		datagramsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "totalizer",
			Subsystem: "ingest",
			Name:      "datagrams_dropped_total",
			Help:      "Datagrams dropped because the commit queue was full",
		}),
		datagramsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "totalizer",
			Subsystem: "ingest",
			Name:      "datagrams_processed_total",
			Help:      "Datagrams fully dispatched through the rule engine",
		}),
		linesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "totalizer",
			Subsystem: "ingest",
			Name:      "lines_matched_total",
			Help:      "Log lines that fired at least one watch rule",
		}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "totalizer",
			Subsystem: "ingest",
			Name:      "commits_total",
			Help:      "Counter increments committed to the store",
		}),
		commitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "totalizer",
			Subsystem: "ingest",
			Name:      "commit_errors_total",
			Help:      "Store commits abandoned due to errors",
		}),
		commitsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "totalizer",
			Subsystem: "ingest",
			Name:      "commits_dropped_total",
			Help:      "Commit submissions dropped because the queue was at max depth",
		}),
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "totalizer",
			Subsystem: "ingest",
			Name:      "commit_duration_seconds",
			Help:      "Store commit latency, enqueue to completion",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "totalizer",
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Current commit queue depth",
		}),
	}

	reg.MustRegister(
		m.datagramsReceived,
		m.datagramsDropped,
		m.datagramsProcessed,
		m.linesMatched,
		m.commits,
		m.commitErrors,
		m.commitsDropped,
		m.commitLatency,
		m.queueDepth,
	)
	return m
}

func (m *Metrics) incDatagramsReceived() {
	if m != nil {
		m.datagramsReceived.Inc()
	}
}

func (m *Metrics) incDatagramsDropped() {
	if m != nil {
		m.datagramsDropped.Inc()
	}
}

func (m *Metrics) incDatagramsProcessed() {
	if m != nil {
		m.datagramsProcessed.Inc()
	}
}

func (m *Metrics) incLinesMatched() {
	if m != nil {
		m.linesMatched.Inc()
	}
}

func (m *Metrics) incCommits() {
	if m != nil {
		m.commits.Inc()
	}
}

func (m *Metrics) incCommitErrors() {
	if m != nil {
		m.commitErrors.Inc()
	}
}

func (m *Metrics) incCommitsDropped() {
	if m != nil {
		m.commitsDropped.Inc()
	}
}

func (m *Metrics) observeCommitLatency(d time.Duration) {
	if m != nil {
		m.commitLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) setQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

// ReportStats periodically logs a one-line summary of committer state at the
// given interval until the context is cancelled. Interval <= 0 disables it.
func ReportStats(ctx context.Context, c *Committer, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			committed, errors, dropped := c.Stats()
			logger.Info("ingest statistics",
				"queue_depth", c.Depth(),
				"committed", committed,
				"commit_errors", errors,
				"dropped", dropped,
			)
		}
	}
}
