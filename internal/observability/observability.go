package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weathermap_api_requests_total",
			Help: "Weather API requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)
	apiLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weathermap_api_request_duration_seconds",
			Help:    "Weather API request latency by endpoint.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	mapEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weathermap_map_events_total",
			Help: "Weather map events by kind.",
		},
		[]string{"event"},
	)
	activeLayers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "weathermap_active_layers",
			Help: "Number of data layers currently on the map.",
		},
	)
)

func init() {
	prometheus.MustRegister(apiRequests, apiLatency, mapEvents, activeLayers)
}

// ObserveAPIRequest records one weather API call.
func ObserveAPIRequest(endpoint, outcome string, took time.Duration) {
	apiRequests.WithLabelValues(endpoint, outcome).Inc()
	apiLatency.WithLabelValues(endpoint).Observe(took.Seconds())
}

// CountMapEvent records one weather map event such as "layer_added".
func CountMapEvent(event string) {
	mapEvents.WithLabelValues(event).Inc()
}

// SetActiveLayers publishes the current layer count.
func SetActiveLayers(n int) {
	activeLayers.Set(float64(n))
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
