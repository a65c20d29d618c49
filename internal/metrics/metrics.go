// Package metrics tracks download activity with Prometheus collectors.
//
// A batch run is short-lived, so nothing is served over HTTP. The collectors
// live on a private registry which is written to a node-exporter textfile
// when the run ends.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of one run. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// AttemptsTotal counts download attempts by result
	AttemptsTotal *prometheus.CounterVec

	// TasksTotal counts tasks that reached a terminal state
	TasksTotal *prometheus.CounterVec

	// PassesTotal counts worker pool passes
	PassesTotal prometheus.Counter

	// PendingTasks is the size of the most recent pass
	PendingTasks prometheus.Gauge

	// BytesTotal counts verified bytes written to disk
	BytesTotal prometheus.Counter

	// ReceivedBytesTotal counts response bytes as they stream in, failed
	// downloads included
	ReceivedBytesTotal prometheus.Counter

	// BackoffSeconds tracks the delays slept between attempts
	BackoffSeconds prometheus.Histogram

	// AttemptDuration tracks how long single attempts take
	AttemptDuration prometheus.Histogram
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "galleryfetch_attempts_total",
				Help: "Total number of download attempts",
			},
			[]string{"result"},
		),
		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "galleryfetch_tasks_total",
				Help: "Total number of tasks by terminal state",
			},
			[]string{"state"},
		),
		PassesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "galleryfetch_passes_total",
			Help: "Total number of worker pool passes",
		}),
		PendingTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "galleryfetch_pending_tasks",
			Help: "Number of tasks submitted in the latest pass",
		}),
		BytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "galleryfetch_bytes_total",
			Help: "Total number of verified bytes written",
		}),
		ReceivedBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "galleryfetch_received_bytes_total",
			Help: "Total number of response bytes received",
		}),
		BackoffSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "galleryfetch_backoff_seconds",
			Help:    "Backoff delay between attempts in seconds",
			Buckets: []float64{0.5, 1, 2, 4, 8, 10},
		}),
		AttemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "galleryfetch_attempt_duration_seconds",
			Help:    "Duration of single download attempts in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.AttemptsTotal,
		m.TasksTotal,
		m.PassesTotal,
		m.PendingTasks,
		m.BytesTotal,
		m.ReceivedBytesTotal,
		m.BackoffSeconds,
		m.AttemptDuration,
	)
	return m
}

// ObserveAttempt records one attempt with its result label
// ("success", "retryable" or "permanent").
func (m *Metrics) ObserveAttempt(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(result).Inc()
	m.AttemptDuration.Observe(took.Seconds())
}

// ObserveBackoff records a delay slept before the next attempt.
func (m *Metrics) ObserveBackoff(d time.Duration) {
	if m == nil {
		return
	}
	m.BackoffSeconds.Observe(d.Seconds())
}

// TaskFinished records a task reaching "succeeded", "skipped" or "exhausted".
func (m *Metrics) TaskFinished(state string) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(state).Inc()
}

// PassStarted records the start of a pass over pending tasks.
func (m *Metrics) PassStarted(pending int) {
	if m == nil {
		return
	}
	m.PassesTotal.Inc()
	m.PendingTasks.Set(float64(pending))
}

// AddBytes records verified bytes written to disk.
func (m *Metrics) AddBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesTotal.Add(float64(n))
}

// AddReceived records response bytes read from the network.
func (m *Metrics) AddReceived(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ReceivedBytesTotal.Add(float64(n))
}

// WriteTextfile writes all collectors in the text exposition format,
// atomically replacing path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
