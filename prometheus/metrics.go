package prometheus

import (
	"strconv"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec
	HttpStatusCategory  *prometheus.CounterVec

	// Authentication metrics
	AuthAttemptsCounter *prometheus.CounterVec
	AuthErrorsCounter   *prometheus.CounterVec

	// Database operation metrics
	DbOperationDuration *prometheus.HistogramVec

	// Domain metrics
	PropertyOperationsCounter *prometheus.CounterVec
	PropertyViewsCounter      prometheus.Counter
	ReportsCounter            *prometheus.CounterVec
	MatchesCounter            *prometheus.CounterVec
	MessagesCounter           prometheus.Counter
	AttachmentsCounter        *prometheus.CounterVec
	PaymentsCounter           *prometheus.CounterVec
	NotificationsCounter      *prometheus.CounterVec

	factory promauto.Factory
	prefix  string
)

// InitMetrics initializes Prometheus metrics with configuration
func InitMetrics(config *config.Config) {
	InitMetricsWith(prometheus.DefaultRegisterer, config.Metrics.Prefix)
}

// InitMetricsWith registers the metrics on reg. Tests pass a fresh registry.
func InitMetricsWith(reg prometheus.Registerer, metricPrefix string) {
	prefix = metricPrefix
	factory = promauto.With(reg)

	HttpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HttpStatusCategory = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_status_category_total",
			Help: "Total number of responses by status category (2xx, 4xx, 5xx)",
		},
		[]string{"category", "method", "path"},
	)

	AuthAttemptsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"kind"},
	)

	AuthErrorsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"kind"},
	)

	DbOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type"},
	)

	PropertyOperationsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_property_operations_total",
			Help: "Total number of property operations",
		},
		[]string{"operation"},
	)

	PropertyViewsCounter = factory.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_property_views_total",
			Help: "Total number of property detail views",
		},
	)

	ReportsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_property_reports_total",
			Help: "Total number of property reports",
		},
		[]string{"reason", "auto_suspended"},
	)

	MatchesCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_community_matches_total",
			Help: "Total number of community match operations",
		},
		[]string{"operation"},
	)

	MessagesCounter = factory.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_messages_sent_total",
			Help: "Total number of messages sent",
		},
	)

	AttachmentsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_attachments_total",
			Help: "Total number of attachment operations",
		},
		[]string{"operation"},
	)

	PaymentsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_payments_total",
			Help: "Total number of payment events by purpose and status",
		},
		[]string{"purpose", "status"},
	)

	NotificationsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_notification_operations_total",
			Help: "Total number of notification operations",
		},
		[]string{"operation"},
	)
}

// RegisterOnlineGauge exposes the number of users currently present
func RegisterOnlineGauge(count func() int) {
	if count == nil {
		return
	}
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: prefix + "_presence_online_users",
			Help: "Number of users with a live presence heartbeat",
		},
		func() float64 { return float64(count()) },
	)
}

// ObserveHTTPRequest records one served request
func ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if HttpRequestsTotal == nil {
		return
	}
	code := strconv.Itoa(status)
	HttpRequestsTotal.WithLabelValues(method, path, code).Inc()
	HttpRequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	HttpStatusCategory.WithLabelValues(statusCategory(status), method, path).Inc()
}

func statusCategory(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		if DbOperationDuration == nil {
			return
		}
		DbOperationDuration.WithLabelValues(operationType).Observe(time.Since(startTime).Seconds())
	}
}

// RecordAuthAttempt counts a login or register attempt and whether it failed
func RecordAuthAttempt(kind string, err error) {
	if AuthAttemptsCounter == nil {
		return
	}
	AuthAttemptsCounter.WithLabelValues(kind).Inc()
	if err != nil {
		AuthErrorsCounter.WithLabelValues(kind).Inc()
	}
}

// RecordPropertyOperation increments the counter for property operations
func RecordPropertyOperation(operation string) {
	if PropertyOperationsCounter == nil {
		return
	}
	PropertyOperationsCounter.WithLabelValues(operation).Inc()
}

// RecordPropertyView increments the counter for property views
func RecordPropertyView() {
	if PropertyViewsCounter == nil {
		return
	}
	PropertyViewsCounter.Inc()
}

// RecordReport counts a property report
func RecordReport(reason string, autoSuspended bool) {
	if ReportsCounter == nil {
		return
	}
	ReportsCounter.WithLabelValues(reason, strconv.FormatBool(autoSuspended)).Inc()
}

// RecordMatchOperation counts likes, matches and status changes
func RecordMatchOperation(operation string) {
	if MatchesCounter == nil {
		return
	}
	MatchesCounter.WithLabelValues(operation).Inc()
}

// RecordMessageSent increments the counter for sent messages
func RecordMessageSent() {
	if MessagesCounter == nil {
		return
	}
	MessagesCounter.Inc()
}

// RecordAttachmentOperation counts attachment uploads and deletions
func RecordAttachmentOperation(operation string) {
	if AttachmentsCounter == nil {
		return
	}
	AttachmentsCounter.WithLabelValues(operation).Inc()
}

// RecordPayment counts checkouts and webhook status transitions
func RecordPayment(purpose, status string) {
	if PaymentsCounter == nil {
		return
	}
	PaymentsCounter.WithLabelValues(purpose, status).Inc()
}

// RecordNotificationOperation counts reads and preference updates
func RecordNotificationOperation(operation string) {
	if NotificationsCounter == nil {
		return
	}
	NotificationsCounter.WithLabelValues(operation).Inc()
}
