package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: requests answered from the TTL store.
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_cache_hits_total",
			Help: "Total number of requests served from the response cache.",
		},
	)

	// Counter: lookups that found no fresh entry.
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_cache_misses_total",
			Help: "Total number of response cache lookups without a fresh entry.",
		},
	)

	CacheWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_cache_writes_total",
			Help: "Total number of origin bodies stored in the response cache.",
		},
	)

	// Gauge: entries held after the last sweep.
	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxy_cache_entries",
			Help: "Number of entries in the response cache after the last sweep.",
		},
	)

	CacheSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_cache_swept_total",
			Help: "Total number of expired entries removed by the sweeper.",
		},
	)

	// Counter: failed origin fetches by kind (fetch | drain).
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_upstream_errors_total",
			Help: "Total number of failed origin fetches.",
		},
		[]string{"kind"},
	)

	// Histogram: origin fetch latency, send through body drain.
	UpstreamLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "proxy_upstream_latency_seconds",
			Help:    "Origin fetch latency in seconds, including body drain.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	// Histogram: proxy HTTP latency in seconds. Proxied paths are unbounded,
	// so there is no path label.
	ProxyLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxy_http_latency_seconds",
			Help:    "HTTP request latency for the proxy in seconds.",
			Buckets: []float64{0.001, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "status_code"},
	)
)

var registerOnce sync.Once

// Register is called once in main() to register metrics. Repeated calls are
// no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CacheHitsTotal,
			CacheMissesTotal,
			CacheWritesTotal,
			CacheEntries,
			CacheSweptTotal,
			UpstreamErrorsTotal,
			UpstreamLatencySeconds,
			ProxyLatencySeconds,
		)
	})
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures proxy latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		ProxyLatencySeconds.
			WithLabelValues(r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Flush keeps chunked emission working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
