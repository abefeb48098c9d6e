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
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_messages_received_total",
		Help: "Total number of messages received",
	}, []string{"chat_type"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_messages_processed_total",
		Help: "Total number of messages processed",
	}, []string{"status"})

	// Command metrics
	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_commands_executed_total",
		Help: "Total number of commands executed",
	}, []string{"command"})

	// Generation metrics
	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assistant_generation_duration_seconds",
		Help:    "Duration of generation requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "status"})

	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_generation_requests_total",
		Help: "Total number of generation requests",
	}, []string{"provider", "status"})

	providerFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_provider_fallback_total",
		Help: "Total number of primary-to-secondary provider fallbacks",
	}, []string{"from", "to"})

	// Tool metrics
	toolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_tool_executions_total",
		Help: "Total number of tool executions",
	}, []string{"tool", "status"})

	// Memory metrics
	memoryOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_memory_operations_total",
		Help: "Total number of memory store operations",
	}, []string{"operation", "status"})

	// Cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_cache_hits_total",
		Help: "Total number of reply cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_cache_misses_total",
		Help: "Total number of reply cache misses",
	})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	}, []string{"user_id"})

	rateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_provider_throttle_waits_total",
		Help: "Total number of provider token bucket waits",
	}, []string{"provider"})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records a received message
func (m *Metrics) RecordMessageReceived(chatType string) {
	messagesReceived.WithLabelValues(chatType).Inc()
}

// RecordMessageProcessed records a processed message
func (m *Metrics) RecordMessageProcessed(status string) {
	messagesProcessed.WithLabelValues(status).Inc()
}

// RecordCommandExecuted records an executed command
func (m *Metrics) RecordCommandExecuted(command string) {
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordGeneration records one generation request
func (m *Metrics) RecordGeneration(provider, status string, duration time.Duration) {
	generationDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	generationsTotal.WithLabelValues(provider, status).Inc()
}

// RecordProviderFallback records a reroute to the secondary provider
func (m *Metrics) RecordProviderFallback(from, to string) {
	providerFallbacks.WithLabelValues(from, to).Inc()
}

// RecordToolExecution records a tool call
func (m *Metrics) RecordToolExecution(tool, status string) {
	toolExecutions.WithLabelValues(tool, status).Inc()
}

// RecordMemoryOperation records a memory store operation
func (m *Metrics) RecordMemoryOperation(operation, status string) {
	memoryOperations.WithLabelValues(operation, status).Inc()
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded(userID string) {
	rateLimitExceeded.WithLabelValues(userID).Inc()
}

// RecordThrottleWait records a blocking wait on a provider token bucket
func (m *Metrics) RecordThrottleWait(provider string) {
	rateLimitWaits.WithLabelValues(provider).Inc()
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
