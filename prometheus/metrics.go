package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Login counters
	LoginCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_login_total",
			Help: "Total number of login attempts by kind",
		},
		[]string{"kind"}, // kind is "user" or "admin"
	)

	// Registration counters
	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "identity_register_total",
			Help: "Total number of user registrations",
		},
	)

	// Token lifecycle counter
	TokenOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_token_operations_total",
			Help: "Total number of token operations",
		},
		[]string{"operation"}, // operation can be "issue", "refresh", "revoke"
	)

	// API key verification counter
	ApiKeyVerificationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_api_key_verifications_total",
			Help: "Total number of API key verification attempts",
		},
		[]string{"result"}, // result can be "ok", "invalid", "insufficient_scope"
	)

	// API key lifecycle counter
	ApiKeyOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_api_key_operations_total",
			Help: "Total number of API key lifecycle operations",
		},
		[]string{"operation"}, // operation can be "generate", "update", "delete"
	)

	// Blocked login counter
	BlockedLoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "identity_blocked_logins_total",
			Help: "Total number of login attempts rejected by the brute-force guard",
		},
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // type can be "invalid_credentials", "invalid_token", "db_error" etc.
	)

	// Tenant operation counter
	TenantOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_tenant_operations_total",
			Help: "Total number of tenant operations",
		},
		[]string{"operation"}, // operation can be "create", "access", "update", "delete", etc.
	)

	// Authorization check counter
	PermissionCheckCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"result"}, // result is "granted" or "denied"
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "identity_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "identity_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // operation can be "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	// Active tokens
	ActiveTokensGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "identity_active_tokens",
			Help: "Number of currently active authentication tokens",
		},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "identity_info",
			Help: "Information about the identity service",
		},
		[]string{"version"},
	)
)

func init() {
	// Register counters
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(RegisterCounter)
	prometheus.MustRegister(TokenOperationCounter)
	prometheus.MustRegister(ApiKeyVerificationCounter)
	prometheus.MustRegister(ApiKeyOperationCounter)
	prometheus.MustRegister(BlockedLoginCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(TenantOperationCounter)
	prometheus.MustRegister(PermissionCheckCounter)

	// Register histograms
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	// Register gauges
	prometheus.MustRegister(ActiveTokensGauge)
	prometheus.MustRegister(InfoGauge)

	// Set initial service info
	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Execute the request handler
			err := next(c)

			// Record request duration
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			// Record metrics
			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// IncreaseActiveTokens increments the active tokens gauge
func IncreaseActiveTokens() {
	ActiveTokensGauge.Inc()
}

// DecreaseActiveTokens decrements the active tokens gauge
func DecreaseActiveTokens() {
	ActiveTokensGauge.Dec()
}

// RecordAuthError records an authentication error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordTokenOperation records a token lifecycle operation
func RecordTokenOperation(operation string) {
	TokenOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordApiKeyVerification records the outcome of an API key verification
func RecordApiKeyVerification(result string) {
	ApiKeyVerificationCounter.With(prometheus.Labels{"result": result}).Inc()
}

// RecordApiKeyOperation records an API key lifecycle operation
func RecordApiKeyOperation(operation string) {
	ApiKeyOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordTenantOperation records a tenant operation
func RecordTenantOperation(operation string) {
	TenantOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordPermissionCheck records a permission check outcome
func RecordPermissionCheck(granted bool) {
	result := "denied"
	if granted {
		result = "granted"
	}
	PermissionCheckCounter.With(prometheus.Labels{"result": result}).Inc()
}
