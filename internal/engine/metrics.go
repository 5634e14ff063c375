package engine

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for client observability.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec   // requests by operation and status code
	RequestDuration *prometheus.HistogramVec // request latency by operation
	PagesTotal      prometheus.Counter       // result pages fetched by walks
	UploadedBytes   prometheus.Counter       // bytes read from upload streams
	CacheHitsTotal  prometheus.Counter       // single-bucket lookups answered from cache
}

// NewMetrics creates and registers client metrics.
// The registerer parameter allows a test registry; instanceName becomes a
// const label so several clients can share one registry.
func NewMetrics(reg prometheus.Registerer, instanceName string) *Metrics {
	labels := prometheus.Labels{"instance": instanceName}

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "engine_client_requests_total",
		Help:        "Total number of Engine API requests",
		ConstLabels: labels,
	}, []string{"operation", "code"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "engine_client_request_duration_seconds",
		Help:        "Engine API request latency",
		ConstLabels: labels,
		Buckets:     prometheus.DefBuckets,
	}, []string{"operation"})

	pagesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "engine_client_pages_total",
		Help:        "Total number of result pages fetched by walks",
		ConstLabels: labels,
	})

	uploadedBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "engine_client_uploaded_bytes_total",
		Help:        "Total number of bytes read from upload streams",
		ConstLabels: labels,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "engine_client_bucket_cache_hits_total",
		Help:        "Total number of bucket lookups served from the cache",
		ConstLabels: labels,
	})

	reg.MustRegister(requestsTotal, requestDuration, pagesTotal, uploadedBytes, cacheHits)

	return &Metrics{
		RequestsTotal:   requestsTotal,
		RequestDuration: requestDuration,
		PagesTotal:      pagesTotal,
		UploadedBytes:   uploadedBytes,
		CacheHitsTotal:  cacheHits,
	}
}

// observeRequest records one completed exchange. code 0 means the service
// was not reached.
func (m *Metrics) observeRequest(op string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.RequestsTotal.WithLabelValues(op, label).Inc()
	m.RequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) pageFetched() {
	if m != nil {
		m.PagesTotal.Inc()
	}
}

func (m *Metrics) bytesUploaded(n int64) {
	if m != nil {
		m.UploadedBytes.Add(float64(n))
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}
