package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the stakebet client
type PrometheusMetrics struct {
	// Block and balance refresh metrics
	BlocksObservedTotal  prometheus.Counter
	LatestObservedBlock  prometheus.Gauge
	BalanceReadsTotal    *prometheus.CounterVec
	ActiveSubscriptions  prometheus.Gauge
	SubscriptionsCreated prometheus.Counter

	// Transaction flow metrics
	TransactionsTotal    *prometheus.CounterVec
	TransactionDuration  *prometheus.HistogramVec
	FlowTransitionsTotal *prometheus.CounterVec

	// Betting-session loader metrics
	LoaderSliceCallsTotal prometheus.Counter
	LoaderDuration        prometheus.Histogram
	SessionsLoaded        prometheus.Gauge

	// Connection metrics
	ConnectionErrorsTotal *prometheus.CounterVec
	RPCRequestsTotal      *prometheus.CounterVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates all metrics and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		BlocksObservedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "stakebet_blocks_observed_total",
				Help: "Total number of block notifications received by the balance poller",
			},
		),

		LatestObservedBlock: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stakebet_latest_observed_block",
				Help: "Number of the most recent block seen by the balance poller",
			},
		),

		BalanceReadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stakebet_balance_reads_total",
				Help: "Balance view reads by field and status",
			},
			[]string{"field", "status"},
		),

		ActiveSubscriptions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stakebet_active_block_subscriptions",
				Help: "Number of open block subscriptions",
			},
		),

		SubscriptionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "stakebet_block_subscriptions_created_total",
				Help: "Total number of block subscriptions opened",
			},
		),

		TransactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stakebet_transactions_total",
				Help: "Settled transactions by action and outcome",
			},
			[]string{"action", "outcome"},
		),

		TransactionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stakebet_transaction_duration_seconds",
				Help:    "Time from submission to settled receipt",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"action"},
		),

		FlowTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stakebet_flow_transitions_total",
				Help: "Approve-then-act state transitions",
			},
			[]string{"flow", "from", "to"},
		),

		LoaderSliceCallsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "stakebet_loader_slice_calls_total",
				Help: "Betting-session id slice reads",
			},
		),

		LoaderDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stakebet_loader_duration_seconds",
				Help:    "Time spent loading the betting-session list",
				Buckets: prometheus.DefBuckets,
			},
		),

		SessionsLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stakebet_sessions_loaded",
				Help: "Betting sessions returned by the last list load",
			},
		),

		ConnectionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stakebet_connection_errors_total",
				Help: "Total number of connection errors to RPC endpoints",
			},
			[]string{"endpoint", "error_type"},
		),

		RPCRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stakebet_rpc_requests_total",
				Help: "Total number of contract calls by method and status",
			},
			[]string{"contract", "method", "status"},
		),

		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stakebet_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stakebet_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		NotificationsSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stakebet_notifications_sent_total",
				Help: "Total number of notifications sent",
			},
			[]string{"channel", "kind"},
		),

		NotificationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stakebet_notification_failures_total",
				Help: "Total number of notification failures",
			},
			[]string{"channel", "kind"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stakebet_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stakebet_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stakebet_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stakebet_component_health",
				Help: "Health status of application components (1 = healthy, 0 = unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stakebet_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stakebet_goroutines",
				Help: "Current number of goroutines",
			},
		),
	}
}

// RecordBlockObserved records a block notification
func (m *PrometheusMetrics) RecordBlockObserved(number uint64) {
	m.BlocksObservedTotal.Inc()
	m.LatestObservedBlock.Set(float64(number))
}

// RecordBalanceRead records one balance view read
func (m *PrometheusMetrics) RecordBalanceRead(field string, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	m.BalanceReadsTotal.WithLabelValues(field, status).Inc()
}

// SubscriptionOpened tracks a new block subscription
func (m *PrometheusMetrics) SubscriptionOpened() {
	m.SubscriptionsCreated.Inc()
	m.ActiveSubscriptions.Inc()
}

// SubscriptionClosed tracks a torn down block subscription
func (m *PrometheusMetrics) SubscriptionClosed() {
	m.ActiveSubscriptions.Dec()
}

// RecordTransaction records a settled transaction
func (m *PrometheusMetrics) RecordTransaction(action, outcome string, duration time.Duration) {
	m.TransactionsTotal.WithLabelValues(action, outcome).Inc()
	m.TransactionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordFlowTransition records an approve-then-act state change
func (m *PrometheusMetrics) RecordFlowTransition(flow, from, to string) {
	m.FlowTransitionsTotal.WithLabelValues(flow, from, to).Inc()
}

// RecordSliceCall records one id slice read
func (m *PrometheusMetrics) RecordSliceCall() {
	m.LoaderSliceCallsTotal.Inc()
}

// RecordSessionsLoaded records a completed list load
func (m *PrometheusMetrics) RecordSessionsLoaded(count int, duration time.Duration) {
	m.SessionsLoaded.Set(float64(count))
	m.LoaderDuration.Observe(duration.Seconds())
}

// RecordConnectionError records a connection error
func (m *PrometheusMetrics) RecordConnectionError(endpoint, errorType string) {
	m.ConnectionErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// RecordRPCRequest records a contract call
func (m *PrometheusMetrics) RecordRPCRequest(contract, method string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RPCRequestsTotal.WithLabelValues(contract, method, status).Inc()
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordNotificationSent records a sent notification
func (m *PrometheusMetrics) RecordNotificationSent(channel, kind string) {
	m.NotificationsSentTotal.WithLabelValues(channel, kind).Inc()
}

// RecordNotificationFailure records a failed notification
func (m *PrometheusMetrics) RecordNotificationFailure(channel, kind string) {
	m.NotificationFailuresTotal.WithLabelValues(channel, kind).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
