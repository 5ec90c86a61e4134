package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Message metrics
	messagesPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_messages_posted_total",
		Help: "Total number of messages appended to room logs",
	}, []string{"author_type"})

	duplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_duplicate_messages_dropped_total",
		Help: "Total number of messages rejected as duplicates",
	})

	// Completion metrics
	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parley_completion_request_duration_seconds",
		Help:    "Duration of completion API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "status"})

	completionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_completion_requests_total",
		Help: "Total number of completion API requests",
	}, []string{"model", "status"})

	// Summarization metrics
	summariesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_summaries_total",
		Help: "Total number of oversize responses resolved, by cascade tier",
	}, []string{"tier"})

	// Scheduler metrics
	roundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_scheduler_rounds_total",
		Help: "Total number of auto-chat rounds initiated",
	})

	roundsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_scheduler_cancellations_total",
		Help: "Total number of auto-chat cancellations",
	})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	}, []string{"agent"})

	// Storage metrics
	storeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_store_operations_total",
		Help: "Total number of persistence operations",
	}, []string{"operation", "status"})

	// Active rooms gauge
	activeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parley_active_rooms",
		Help: "Number of rooms with a message log in memory",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessagePosted records an appended message by author type
// (user, agent or system).
func (m *Metrics) RecordMessagePosted(authorType string) {
	messagesPosted.WithLabelValues(authorType).Inc()
}

// RecordDuplicateDropped records a rejected duplicate message.
func (m *Metrics) RecordDuplicateDropped() {
	duplicatesDropped.Inc()
}

// RecordCompletion records a completion API request.
func (m *Metrics) RecordCompletion(model, status string, duration time.Duration) {
	completionDuration.WithLabelValues(model, status).Observe(duration.Seconds())
	completionsTotal.WithLabelValues(model, status).Inc()
}

// RecordSummary records which cascade tier resolved an oversize
// response: smart, plain or truncated.
func (m *Metrics) RecordSummary(tier string) {
	summariesTotal.WithLabelValues(tier).Inc()
}

// RecordRound records an initiated auto-chat round.
func (m *Metrics) RecordRound() {
	roundsTotal.Inc()
}

// RecordCancellation records an auto-chat cancellation.
func (m *Metrics) RecordCancellation() {
	roundsCancelled.Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded(agentID string) {
	rateLimitExceeded.WithLabelValues(agentID).Inc()
}

// RecordStoreOperation records a persistence operation
func (m *Metrics) RecordStoreOperation(operation, status string) {
	storeOperations.WithLabelValues(operation, status).Inc()
}

// SetActiveRooms sets the number of in-memory room logs
func (m *Metrics) SetActiveRooms(count float64) {
	activeRooms.Set(count)
}

// StartMetricsServer starts the metrics HTTP server. Extra handlers
// (such as the record store endpoint) may be mounted alongside.
func StartMetricsServer(port int, path string, extra map[string]http.Handler) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	for route, handler := range extra {
		router.Handle(route, handler)
	}

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
