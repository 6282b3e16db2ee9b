package monitoring

import (
	"time"

	"github.com/SevenTV/AiUsage/dataloader"
	"github.com/prometheus/client_golang/prometheus"
)

// LoaderMetrics records one observation per dispatched loader batch.
type LoaderMetrics struct {
	BatchSize     *prometheus.HistogramVec
	FetchDuration *prometheus.HistogramVec
	FetchFailures *prometheus.CounterVec
}

func NewLoaderMetrics(reg prometheus.Registerer) *LoaderMetrics {
	m := &LoaderMetrics{
		BatchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aiusage",
			Subsystem: "dataloader",
			Name:      "batch_size",
			Help:      "Number of keys per dispatched batch",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"entity_type"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aiusage",
			Subsystem: "dataloader",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of batched backing store fetches",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity_type"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aiusage",
			Subsystem: "dataloader",
			Name:      "fetch_failures_total",
			Help:      "Batched fetches that returned an error",
		}, []string{"entity_type"}),
	}

	reg.MustRegister(m.BatchSize, m.FetchDuration, m.FetchFailures)

	return m
}

func (m *LoaderMetrics) ObserveDispatch(entityType dataloader.EntityType, keys int, took time.Duration, err error) {
	label := string(entityType)

	m.BatchSize.WithLabelValues(label).Observe(float64(keys))
	m.FetchDuration.WithLabelValues(label).Observe(took.Seconds())
	if err != nil {
		m.FetchFailures.WithLabelValues(label).Inc()
	}
}

// RequestMetrics counts GraphQL requests by outcome.
type RequestMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewRequestMetrics(reg prometheus.Registerer) *RequestMetrics {
	m := &RequestMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aiusage",
			Subsystem: "graphql",
			Name:      "requests_total",
			Help:      "GraphQL requests by result",
		}, []string{"result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aiusage",
			Subsystem: "graphql",
			Name:      "request_duration_seconds",
			Help:      "GraphQL request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}

	reg.MustRegister(m.Requests, m.Duration)

	return m
}

func (m *RequestMetrics) Observe(result string, took time.Duration) {
	m.Requests.WithLabelValues(result).Inc()
	m.Duration.WithLabelValues(result).Observe(took.Seconds())
}
