package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusProvider implements the Provider interface using Prometheus.
// Each provider owns its registry, so several can coexist (tests, embedded use).
type PrometheusProvider struct {
	registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	requestsInFlight prometheus.Gauge
	strapiDuration   *prometheus.HistogramVec
	strapiTotal      *prometheus.CounterVec
	queryLength      prometheus.Histogram
	sessionLookups   *prometheus.CounterVec
	panics           *prometheus.CounterVec
}

// NewPrometheusProvider creates a provider, nil config uses DefaultConfig
func NewPrometheusProvider(cfg *Config) *PrometheusProvider {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()

	p := &PrometheusProvider{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   cfg.HTTPRequestBuckets,
			},
			[]string{"method", "route", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		strapiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "strapi_request_duration_seconds",
				Help:      "Duration of calls to the Strapi API in seconds",
				Buckets:   cfg.StrapiRequestBuckets,
			},
			[]string{"operation"},
		),
		strapiTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "strapi_requests_total",
				Help:      "Total number of calls to the Strapi API",
			},
			[]string{"operation", "status"},
		),
		queryLength: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "compiled_query_length_bytes",
				Help:      "Length of compiled query strings",
				Buckets:   cfg.QueryLengthBuckets,
			},
		),
		sessionLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "session_lookups_total",
				Help:      "Session store lookups by result",
			},
			[]string{"provider", "result"},
		),
		panics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "panics_total",
				Help:      "Total number of recovered panics",
			},
			[]string{"method"},
		),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.requestDuration,
		p.requestTotal,
		p.requestsInFlight,
		p.strapiDuration,
		p.strapiTotal,
		p.queryLength,
		p.sessionLookups,
		p.panics,
	)

	return p
}

// ResponseWriter wraps http.ResponseWriter to capture status code
type ResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer (websocket hijacking)
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack supports connection upgrades through the wrapper
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	return h.Hijack()
}

// RecordHTTPRequest implements Provider interface
func (p *PrometheusProvider) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	p.requestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
	p.requestTotal.WithLabelValues(method, route, status).Inc()
}

// IncRequestsInFlight implements Provider interface
func (p *PrometheusProvider) IncRequestsInFlight() {
	p.requestsInFlight.Inc()
}

// DecRequestsInFlight implements Provider interface
func (p *PrometheusProvider) DecRequestsInFlight() {
	p.requestsInFlight.Dec()
}

// RecordStrapiRequest implements Provider interface
func (p *PrometheusProvider) RecordStrapiRequest(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.strapiDuration.WithLabelValues(operation).Observe(duration.Seconds())
	p.strapiTotal.WithLabelValues(operation, status).Inc()
}

// RecordQueryCompiled implements Provider interface
func (p *PrometheusProvider) RecordQueryCompiled(length int) {
	p.queryLength.Observe(float64(length))
}

// RecordSessionLookup implements Provider interface
func (p *PrometheusProvider) RecordSessionLookup(provider string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.sessionLookups.WithLabelValues(provider, result).Inc()
}

// RecordPanic implements Provider interface
func (p *PrometheusProvider) RecordPanic(methodName string) {
	p.panics.WithLabelValues(methodName).Inc()
}

// Handler implements Provider interface
func (p *PrometheusProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Middleware collects request metrics. Register it with mux.Router.Use so the
// route template (not the raw path with session ids) becomes the label.
func (p *PrometheusProvider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		p.IncRequestsInFlight()
		defer p.DecRequestsInFlight()

		rw := NewResponseWriter(w)
		next.ServeHTTP(rw, r)

		p.RecordHTTPRequest(r.Method, routeLabel(r), strconv.Itoa(rw.statusCode), time.Since(start))
	})
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
