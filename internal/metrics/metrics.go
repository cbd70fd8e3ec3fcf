package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are package-level so they register once per process.
var (
	// Delivery metrics
	EmailsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outreach_emails_sent_total",
		Help: "Total number of emails delivered",
	})
	EmailsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_emails_failed_total",
			Help: "Total number of failed send attempts",
		},
		[]string{"retryable"},
	)
	EmailsDeferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_emails_deferred_total",
			Help: "Due emails left for a later run",
		},
		[]string{"reason"},
	)
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outreach_dispatch_duration_seconds",
		Help:    "Duration of a workspace dispatch pass",
		Buckets: []float64{0.1, 0.5, 1, 5, 30, 60, 300, 900, 1800},
	})

	// Guardrail metrics
	CampaignAutoPauses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_campaign_auto_pauses_total",
			Help: "Campaigns paused by the anomaly monitor",
		},
		[]string{"reason"},
	)
	InboxMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_inbox_messages_total",
			Help: "Inbound messages processed by inbox sync",
		},
		[]string{"classification"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Middleware records request count and latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := strconv.Itoa(ww.Status())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

// Label renders a nil classification as "unclassified".
func Label(classification *string) string {
	if classification == nil {
		return "unclassified"
	}
	return *classification
}
