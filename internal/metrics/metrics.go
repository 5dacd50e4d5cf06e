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

var (
	// RequestsTotal tracks total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// PoolAcquisitions counts connection acquisitions by result (ok, exhausted, error)
	PoolAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_db_pool_acquisitions_total",
			Help: "Connection acquisitions by result",
		},
		[]string{"result"},
	)

	// PoolInUse tracks connections currently held by callers
	PoolInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_db_pool_in_use",
			Help: "Connections currently held by callers",
		},
	)

	// PoolResets counts pool recreations after connection-class failures
	PoolResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_db_pool_resets_total",
			Help: "Number of times the connection pool was recreated",
		},
	)

	// ExecutorAttempts counts statement attempts by outcome (success, retry, failed)
	ExecutorAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_db_executor_attempts_total",
			Help: "Statement attempts by outcome and error class",
		},
		[]string{"outcome", "class"},
	)

	// OrdersTotal tracks order creation attempts by outcome
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_orders_total",
			Help: "Order creation attempts by outcome",
		},
		[]string{"outcome"},
	)

	// StockChecksTotal tracks advisory stock checks by outcome
	StockChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_stock_checks_total",
			Help: "Advisory stock checks by outcome",
		},
		[]string{"outcome"},
	)

	// OutboxPublished tracks outbox deliveries by result
	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_outbox_published_total",
			Help: "Outbox message deliveries by result",
		},
		[]string{"result"},
	)

	// CircuitBreakerState tracks circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"circuit_name"},
	)

	// AuditLogsTotal tracks audit log entries written by the consumer
	AuditLogsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_audit_logs_total",
			Help: "Audit log entries processed by result",
		},
		[]string{"result"},
	)
)

// Middleware records request count and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
