package images

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "listrank"
	metricsSubsystem = "images"
)

// Lookup results used as the "result" label
const (
	resultHit     = "hit"
	resultFetched = "fetched"
	resultMissing = "missing"
	resultError   = "error"
)

// Metrics holds the image service instruments
type Metrics struct {
	lookups    *prometheus.CounterVec
	latency    prometheus.Histogram
	queueDepth prometheus.Gauge
}

// NewMetrics creates the image service metrics on reg. A nil registerer
// yields working but unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		// Labels: result (hit, fetched, missing, error)
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "lookups_total",
			Help:      "Image lookups by result",
		}, []string{"result"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "request_duration_seconds",
			Help:      "Image API request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "queue_depth",
			Help:      "Image lookups waiting in the background queue",
		}),
	}
}
