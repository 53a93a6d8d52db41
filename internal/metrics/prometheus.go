package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oriys/cachebridge/internal/circuitbreaker"
)

// PrometheusMetrics wraps prometheus collectors for cache metrics
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	operationsTotal       *prometheus.CounterVec
	lookupsTotal          *prometheus.CounterVec
	ttlOverridesTotal     *prometheus.CounterVec
	invalidArgumentsTotal *prometheus.CounterVec

	// Histograms
	operationDuration *prometheus.HistogramVec

	// Gauges
	uptime prometheus.GaugeFunc

	// Circuit breaker
	breakerState      *prometheus.GaugeVec
	breakerTripsTotal *prometheus.CounterVec
}

// Default histogram buckets for operation duration (in milliseconds)
var defaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}
	if namespace == "" {
		namespace = "cachebridge"
	}

	registry := prometheus.NewRegistry()
	// Register default Go and process collectors
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of cache operations",
			},
			[]string{"cache", "op", "result"},
		),

		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lookups_total",
				Help:      "Keys looked up, by outcome",
			},
			[]string{"cache", "outcome"},
		),

		ttlOverridesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ttl_overrides_total",
				Help:      "Writes that temporarily overrode the engine duration setting",
			},
			[]string{"cache"},
		),

		invalidArgumentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalid_arguments_total",
				Help:      "Operations rejected before reaching the engine",
			},
			[]string{"cache", "op"},
		),

		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_ms",
				Help:      "Duration of cache operations in milliseconds",
				Buckets:   buckets,
			},
			[]string{"cache", "op"},
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state per cache (0=closed, 1=open, 2=half_open)",
			},
			[]string{"cache"},
		),

		breakerTripsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_trips_total",
				Help:      "Circuit breaker transitions per cache and target state",
			},
			[]string{"cache", "state"},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the process started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.operationsTotal,
		pm.lookupsTotal,
		pm.ttlOverridesTotal,
		pm.invalidArgumentsTotal,
		pm.operationDuration,
		pm.uptime,
		pm.breakerState,
		pm.breakerTripsTotal,
	)

	promMetrics = pm
}

// RecordPrometheusOperation records an operation in Prometheus collectors
func RecordPrometheusOperation(cache, op, result string, d time.Duration) {
	if promMetrics == nil {
		return
	}
	promMetrics.operationsTotal.WithLabelValues(cache, op, result).Inc()
	if result == ResultInvalid {
		promMetrics.invalidArgumentsTotal.WithLabelValues(cache, op).Inc()
	}
	promMetrics.operationDuration.WithLabelValues(cache, op).Observe(float64(d.Microseconds()) / 1000)
}

// RecordPrometheusLookup records hits and misses
func RecordPrometheusLookup(cache string, hits, misses int) {
	if promMetrics == nil {
		return
	}
	if hits > 0 {
		promMetrics.lookupsTotal.WithLabelValues(cache, "hit").Add(float64(hits))
	}
	if misses > 0 {
		promMetrics.lookupsTotal.WithLabelValues(cache, "miss").Add(float64(misses))
	}
}

// RecordPrometheusOverride records a duration override
func RecordPrometheusOverride(cache string) {
	if promMetrics == nil {
		return
	}
	promMetrics.ttlOverridesTotal.WithLabelValues(cache).Inc()
}

// SetBreakerState sets the circuit breaker state gauge for a cache.
func SetBreakerState(cache string, state circuitbreaker.State) {
	if promMetrics == nil {
		return
	}
	promMetrics.breakerState.WithLabelValues(cache).Set(float64(state))
}

// RecordBreakerTransition records a circuit breaker state transition and
// updates the state gauge.
func RecordBreakerTransition(cache string, from, to circuitbreaker.State) {
	if promMetrics == nil {
		return
	}
	promMetrics.breakerTripsTotal.WithLabelValues(cache, to.String()).Inc()
	promMetrics.breakerState.WithLabelValues(cache).Set(float64(to))
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors)
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
