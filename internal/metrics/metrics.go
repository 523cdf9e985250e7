// Package metrics defines the Prometheus collectors of the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "basho"

var (
	// searchDuration measures fast-path latency.
	// Labels: mode (sync, async), failure_reason
	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "Fast-path search latency in seconds",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"mode", "failure_reason"})

	// searchResults tracks how many results survive ranking and grouping.
	searchResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "results",
		Help:      "Number of results returned per search",
		Buckets:   []float64{0, 1, 3, 5, 10, 20, 50, 100},
	})

	// externalCalls counts guarded collaborator calls.
	// Labels: op, outcome (ok, error, timeout)
	externalCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reliability",
		Name:      "calls_total",
		Help:      "Total guarded external calls by outcome",
	}, []string{"op", "outcome"})

	// jobDuration measures narration jobs from start to terminal status.
	// Labels: status (completed, failed)
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Streaming job duration in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
	}, []string{"status"})

	// jobsInFlight tracks running narration jobs.
	jobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "in_flight",
		Help:      "Streaming jobs currently running",
	})

	// hubConnections tracks open streaming connections.
	hubConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "connections",
		Help:      "Open streaming connections",
	})

	// hubMessages counts published frames.
	// Labels: type, outcome (sent, dropped, terminated)
	hubMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "messages_total",
		Help:      "Total frames fanned out by type and outcome",
	}, []string{"type", "outcome"})

	// storeEntries is the number of live request states seen at the last sweep.
	storeEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "entries",
		Help:      "Live request states after the last sweep",
	})

	// storeSwept counts expired request states removed by the sweeper.
	storeSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "swept_total",
		Help:      "Total expired request states removed",
	})
)

// ObserveSearch records one fast-path run.
func ObserveSearch(mode, reason string, took time.Duration, results int) {
	searchDuration.WithLabelValues(mode, reason).Observe(took.Seconds())
	searchResults.Observe(float64(results))
}

// CountCall records the outcome of a guarded call.
func CountCall(op, outcome string) {
	externalCalls.WithLabelValues(op, outcome).Inc()
}

// JobStarted increments the in-flight gauge and returns a func that records the terminal status.
func JobStarted() func(status string) {
	start := time.Now()
	jobsInFlight.Inc()
	return func(status string) {
		jobsInFlight.Dec()
		jobDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}

// ConnectionOpened and ConnectionClosed track the open connection gauge.
func ConnectionOpened() { hubConnections.Inc() }
func ConnectionClosed() { hubConnections.Dec() }

// CountFrame records the fate of one frame for one connection.
func CountFrame(msgType, outcome string) {
	hubMessages.WithLabelValues(msgType, outcome).Inc()
}

// CountSwept records removed store entries.
func CountSwept(n int) {
	if n > 0 {
		storeSwept.Add(float64(n))
	}
}

// SetStoreEntries records the live entry count.
func SetStoreEntries(n int) {
	storeEntries.Set(float64(n))
}
