// Package metrics holds the Prometheus instruments for runs, blocks, the
// block cache and provider calls. They register with the default registry
// and are served by the app's /metrics endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "llmgrid"

var (
	// runsTotal counts finished runs.
	// Labels: status (success, failed)
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "total",
		Help:      "Finished runs by status",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of runs",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	// blockExecutions counts block instance executions.
	// Labels: variant, status (success, failed, cached)
	blockExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "block",
		Name:      "executions_total",
		Help:      "Block executions by variant and status",
	}, []string{"variant", "status"})

	blockDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "block",
		Name:      "duration_seconds",
		Help:      "Block execution latency, cache hits included",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"variant"})

	blockRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "block",
		Name:      "retries_total",
		Help:      "Retried attempts of external calls made by blocks",
	}, []string{"variant"})

	// cacheLookups counts block cache reads.
	// Labels: result (hit, miss, error)
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Block cache lookups by result",
	}, []string{"result"})

	cacheWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "write_errors_total",
		Help:      "Block cache writes that failed and were skipped",
	})

	// providerCalls counts provider operations.
	// Labels: provider, operation (complete, chat, embed), outcome (ok or error kind)
	providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "Provider calls by outcome",
	}, []string{"provider", "operation", "outcome"})

	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "call_duration_seconds",
		Help:      "Provider call latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider", "operation"})

	providerTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "tokens_total",
		Help:      "Tokens reported by providers",
	}, []string{"provider", "direction"})
)

// RecordRun records a finished run.
func RecordRun(failed bool, d time.Duration) {
	status := "success"
	if failed {
		status = "failed"
	}
	runsTotal.WithLabelValues(status).Inc()
	runDuration.Observe(d.Seconds())
}

// RecordBlock records one block instance execution. status is "success",
// "failed" or "cached".
func RecordBlock(variant, status string, d time.Duration, retries int) {
	blockExecutions.WithLabelValues(variant, status).Inc()
	blockDuration.WithLabelValues(variant).Observe(d.Seconds())
	if retries > 0 {
		blockRetries.WithLabelValues(variant).Add(float64(retries))
	}
}

// RecordCacheLookup records a cache read: "hit", "miss" or "error".
func RecordCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

// RecordCacheWriteError records a failed cache write.
func RecordCacheWriteError() {
	cacheWriteErrors.Inc()
}

// RecordProviderCall records one provider call and its token usage.
func RecordProviderCall(provider, operation, outcome string, d time.Duration, promptTokens, completionTokens int) {
	providerCalls.WithLabelValues(provider, operation, outcome).Inc()
	providerLatency.WithLabelValues(provider, operation).Observe(d.Seconds())
	if promptTokens > 0 {
		providerTokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		providerTokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
