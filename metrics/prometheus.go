package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusExporter renders Collector outcomes as Prometheus metrics, for
// callers that want to scrape request counts and latency instead of
// polling Collector.Report.
type PrometheusExporter struct {
	requests   *prometheus.CounterVec
	retried    *prometheus.CounterVec
	throttled  *prometheus.CounterVec
	replayed   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewPrometheusExporter builds and registers the exporter's metrics against
// registry.
func NewPrometheusExporter(registry prometheus.Registerer, namespace string) *PrometheusExporter {
	e := &PrometheusExporter{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total requests per endpoint and outcome bucket.",
		}, []string{"method", "endpoint", "bucket"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_retried_total",
			Help:      "Requests that triggered at least one retry.",
		}, []string{"method", "endpoint"}),
		throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_throttled_total",
			Help:      "Requests that matched a throttle rule, whether or not admission had to wait.",
		}, []string{"method", "endpoint"}),
		replayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_replayed_total",
			Help:      "Requests served from the replay store.",
		}, []string{"method", "endpoint"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
	registry.MustRegister(e.requests, e.retried, e.throttled, e.replayed, e.latency)
	return e
}

func bucketOf(outcome Outcome) string {
	switch {
	case outcome.Aborted:
		return "aborted"
	case outcome.Status >= 200 && outcome.Status < 300:
		return "2xx"
	case outcome.Status >= 300 && outcome.Status < 400:
		return "3xx"
	case outcome.Status >= 400 && outcome.Status < 500:
		return "4xx"
	case outcome.Status >= 500 && outcome.Status < 600:
		return "5xx"
	default:
		return "other"
	}
}

// Observe feeds one terminal outcome into the Prometheus metrics. Call it
// alongside Collector.Record so both backends stay in sync.
func (e *PrometheusExporter) Observe(key Key, outcome Outcome) {
	e.requests.WithLabelValues(key.Method, key.Endpoint, bucketOf(outcome)).Inc()
	if outcome.Retried {
		e.retried.WithLabelValues(key.Method, key.Endpoint).Inc()
	}
	if outcome.Throttled {
		e.throttled.WithLabelValues(key.Method, key.Endpoint).Inc()
	}
	if outcome.Replay {
		e.replayed.WithLabelValues(key.Method, key.Endpoint).Inc()
	}
	e.latency.WithLabelValues(key.Method, key.Endpoint).Observe(outcome.Elapsed.Seconds())
}
