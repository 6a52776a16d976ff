// Package metrics provides Prometheus metrics for the Sketch server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sketch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sketch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Store metrics
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sketch_store_operations_total",
			Help: "Total store operations by outcome",
		},
		[]string{"op", "status"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sketch_store_operation_duration_seconds",
			Help:    "Store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	movedEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sketch_store_moved_entries_total",
			Help: "Entries visited by subtree moves",
		},
	)

	deleteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sketch_store_delete_failures_total",
			Help: "Entries that could not be removed during subtree deletes",
		},
	)

	searchResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sketch_store_search_results",
			Help:    "Number of documents returned by searches",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	// Tenant metrics
	tenantsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sketch_tenants_open",
			Help: "Number of tenant stores opened by the registry",
		},
	)

	// Event metrics
	eventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sketch_event_subscribers",
			Help: "Number of connected SSE subscribers",
		},
	)

	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sketch_events_published_total",
			Help: "Total change events published",
		},
		[]string{"type"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sketch_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"method", "result"},
	)

	// Journal metrics
	journalWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sketch_journal_query_duration_seconds",
			Help:    "Journal query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	journalErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sketch_journal_errors_total",
			Help: "Journal writes that failed",
		},
	)

	// Mirror metrics
	mirrorUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sketch_mirror_uploads_total",
			Help: "Documents uploaded by the S3 mirror",
		},
		[]string{"status"},
	)

	mirrorBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sketch_mirror_bytes_uploaded_total",
			Help: "Bytes uploaded by the S3 mirror",
		},
	)

	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sketch_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordStoreOperation records the outcome and duration of a store operation.
func RecordStoreOperation(op string, duration time.Duration, success bool) {
	storeOperationsTotal.WithLabelValues(op, statusLabel(success)).Inc()
	storeOperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordMovedEntries adds the number of entries a move visited.
func RecordMovedEntries(n int) {
	movedEntriesTotal.Add(float64(n))
}

// RecordDeleteFailures adds entries a subtree delete left behind.
func RecordDeleteFailures(n int) {
	deleteFailuresTotal.Add(float64(n))
}

// RecordSearchResults records the size of a search result.
func RecordSearchResults(n int) {
	searchResults.Observe(float64(n))
}

// SetTenantsOpen sets the number of open tenant stores.
func SetTenantsOpen(n int) {
	tenantsOpen.Set(float64(n))
}

// SetEventSubscribers sets the number of connected SSE clients.
func SetEventSubscribers(n int) {
	eventSubscribers.Set(float64(n))
}

// RecordEventPublished counts a published change event.
func RecordEventPublished(eventType string) {
	eventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(method string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(method, result).Inc()
}

// RecordJournalQuery records a journal query duration.
func RecordJournalQuery(query string, duration time.Duration, success bool) {
	journalWriteDuration.WithLabelValues(query).Observe(duration.Seconds())
	if !success {
		journalErrorsTotal.Inc()
	}
}

// RecordMirrorUpload records one mirrored document.
func RecordMirrorUpload(bytes int64, success bool) {
	mirrorUploadsTotal.WithLabelValues(statusLabel(success)).Inc()
	if success {
		mirrorBytesUploaded.Add(float64(bytes))
	}
}

// RecordS3Operation records an S3 operation duration.
func RecordS3Operation(operation string, duration time.Duration) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware returns HTTP middleware that records request metrics.
// Requests are labelled by their mux pattern to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
