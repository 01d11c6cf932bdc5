// Package metrics centralizes the Prometheus collectors exposed at
// GET /metrics (spec.md §6). Grounded on
// _examples/suprachakra-Airline-Revenue-Optimization-System's
// services/api_gateway/src/circuit/circuit_breaker.go (CircuitBreakerMetrics)
// and services/pricing_service/src/PricingController.go (ControllerMetrics):
// package-level collectors registered once via promauto, passed around by
// reference to nothing — components just call the package-level vars,
// which is the idiom the teacher uses for cross-cutting metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduler
	RecheckScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recheck_scheduled_total",
		Help: "Number of times schedule_next computed and persisted a next-check timestamp.",
	})

	// Dispatcher
	DispatchLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "dispatch_latency_seconds",
		Help: "Latency of one dispatcher tick.",
	}, []string{"monitoring_type"})

	DispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatched_total",
		Help: "Number of fetch tasks enqueued by the dispatcher.",
	}, []string{"monitoring_type"})

	// Worker pool
	TaskExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "task_executions_total",
		Help: "Task executions by task name and outcome.",
	}, []string{"task", "outcome"})

	TaskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "task_duration_seconds",
		Help: "Task execution duration.",
	}, []string{"task"})

	// Throttle
	ScraperJitterSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "scraper_jitter_seconds",
		Help: "Observed jitter sleep durations applied by the throttle stack.",
	})

	ScraperBackoffFactor = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scraper_backoff_factor",
		Help: "Current token bucket refill rate after adaptive backoff.",
	})

	// Circuit breaker
	ScraperCircuitOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scraper_circuit_open",
		Help: "1 if the circuit is in the named state, else 0.",
	}, []string{"state"})

	ScraperCircuitStateChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_circuit_state_changes_total",
		Help: "Circuit breaker state transitions.",
	}, []string{"state"})

	// Block recovery
	ScraperBrowserRecoverySuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_browser_recovery_success_total",
		Help: "Successful headless-browser recoveries after a block.",
	})

	// Scrape pipeline (fetch outcome, by target host)
	ScraperURLStatusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_url_status_total",
		Help: "Fetch pipeline outcomes by target host and result.",
	}, []string{"host", "status"})

	// Cache
	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Content cache hits.",
	})
	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Content cache misses.",
	})

	// Comparison
	PriceComparisonDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "price_comparison_duration_seconds",
		Help: "Duration of one price comparison run.",
	})
	PriceComparisonsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "price_comparisons_total",
		Help: "Price comparison runs by status.",
	}, []string{"status"})
	PriceAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_alerts_total",
		Help: "Alerts generated by the comparison engine.",
	})

	// Rule matcher / notifications
	AlertRulesTriggeredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_rules_triggered_total",
		Help: "Alert rule matches by rule type.",
	}, []string{"rule_type"})
	AlertRulesSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_rules_suppressed_total",
		Help: "Alert rule matches suppressed, by reason.",
	}, []string{"reason"})
	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Notification delivery attempts by channel and success.",
	}, []string{"channel", "success"})
	NotificationsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_skipped_total",
		Help: "Notification fan-outs skipped, by reason.",
	}, []string{"reason"})
	NotificationSendDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "notification_send_duration_seconds",
		Help: "Duration of one channel send.",
	}, []string{"channel"})

	// Audit log
	AuditRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_records_total",
		Help: "Audit records written, by pipeline stage.",
	}, []string{"stage"})
	AuditHTMLLengthBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "audit_html_length_bytes",
		Help: "Length in bytes of the HTML payload recorded in an audit entry.",
	}, []string{"stage"})
	AuditRecordDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "audit_record_duration_seconds",
		Help: "Duration of writing one audit record to disk.",
	}, []string{"stage"})
	AuditErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_errors_total",
		Help: "Audit record write failures, by pipeline stage.",
	}, []string{"stage"})
)
