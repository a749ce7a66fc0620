package engine

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/estate-integrity/internal/alert"
	"github.com/xela07ax/estate-integrity/internal/domain"
)

type Metrics struct {
	// Traffic: прогоны по исходу
	RunsTotal *prometheus.CounterVec

	// Latency: весь прогон и одно хозяйство
	RunDuration        prometheus.Histogram
	TenantScanDuration *prometheus.HistogramVec

	// Что нашли и как изменился реестр
	FindingsTotal      *prometheus.CounterVec
	ExceptionChanges   *prometheus.CounterVec
	ExceptionsResolved prometheus.Counter

	// Доставка уведомлений
	NotificationsTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker канала (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Журнал: сколько строк agent_findings записано
	JournalRowsWritten prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RunsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "integrity_runs_total",
			Help: "Total number of engine runs by outcome.",
		}, []string{"status", "dry_run"}),

		RunDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "integrity_run_duration_seconds",
			Help:    "Histogram of full run latencies.",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),

		TenantScanDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "integrity_tenant_scan_duration_seconds",
			Help:    "Histogram of per-tenant scan latencies.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 120},
		}, []string{"status"}),

		FindingsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "integrity_findings_total",
			Help: "Total number of rule findings by rule and severity.",
		}, []string{"rule", "severity"}),

		ExceptionChanges: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "integrity_exception_changes_total",
			Help: "New and escalated exceptions.",
		}, []string{"change"}),

		ExceptionsResolved: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "integrity_exceptions_resolved_total",
			Help: "Exceptions resolved by the sweep.",
		}),

		NotificationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "integrity_notifications_total",
			Help: "Notification outcomes per channel.",
		}, []string{"channel", "result"}), // result: sent, suppressed, failed

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "integrity_circuit_breaker_state",
			Help: "Current state of the notification circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"channel"}),

		JournalRowsWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "integrity_journal_rows_written_total",
			Help: "AgentFinding rows persisted to the journal.",
		}),
	}
}

// ObserveBreaker подходит как GuardSettings.OnStateChange
func (m *Metrics) ObserveBreaker(name string, _, to gobreaker.State) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
}

func (m *Metrics) observeRun(status domain.RunStatus, dryRun bool, seconds float64) {
	m.RunsTotal.WithLabelValues(string(status), strconv.FormatBool(dryRun)).Inc()
	m.RunDuration.Observe(seconds)
}

func (m *Metrics) observeNotifications(report alert.Report) {
	for kind, d := range report {
		result := "sent"
		switch {
		case d.Sent:
		case d.Reason == domain.ReasonDryRun || d.Reason == domain.ReasonNothingNew || d.Reason == domain.ReasonNotConfigured:
			result = "suppressed"
		default:
			result = "failed"
		}
		m.NotificationsTotal.WithLabelValues(string(kind), result).Inc()
	}
}
