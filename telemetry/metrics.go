// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	GovernorWaits     *prometheus.CounterVec // by action
	PlatformCalls     *prometheus.CounterVec // by op, class
	DropsExecuted     *prometheus.CounterVec // by strategy
	DropsCoalesced    prometheus.Counter
	ConsoleRefreshes  prometheus.Counter
	ConsoleEditErrors *prometheus.CounterVec // by class
	ReconcileOutcomes *prometheus.CounterVec // by outcome
	ModeTransitions   *prometheus.CounterVec // by mode
	QuarantinedRows   prometheus.Counter

	// Histograms (seconds)
	GovernorWaitDuration *prometheus.HistogramVec
	ReconcileDuration    prometheus.Observer
	ConsoleDuration      prometheus.Observer

	// Gauges
	ActiveBarsGauge      prometheus.Gauge
	ConsoleSegmentsGauge prometheus.Gauge
	SystemModeGauge      *prometheus.GaugeVec // 1 for the active mode
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		GovernorWaits = promauto.NewCounterVec(prometheus.CounterOpts{Name: "statusbar_governor_waits_total", Help: "Number of calls delayed by the rate governor"}, []string{"action"})
		PlatformCalls = promauto.NewCounterVec(prometheus.CounterOpts{Name: "statusbar_platform_calls_total", Help: "Platform calls by operation and result class"}, []string{"op", "class"})
		DropsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "statusbar_drops_total", Help: "Executed bar drops by strategy"}, []string{"strategy"})
		DropsCoalesced = promauto.NewCounter(prometheus.CounterOpts{Name: "statusbar_drops_coalesced_total", Help: "Drop requests absorbed by the debouncer"})
		ConsoleRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "statusbar_console_refreshes_total", Help: "Console render passes"})
		ConsoleEditErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "statusbar_console_edit_errors_total", Help: "Console edit failures by class"}, []string{"class"})
		ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "statusbar_reconcile_outcomes_total", Help: "Per-bar reconciliation outcomes"}, []string{"outcome"})
		ModeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "statusbar_mode_transitions_total", Help: "System mode transitions by target mode"}, []string{"mode"})
		QuarantinedRows = promauto.NewCounter(prometheus.CounterOpts{Name: "statusbar_quarantined_rows_total", Help: "Malformed bar rows removed during load"})
		GovernorWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "statusbar_governor_wait_seconds", Help: "Time spent waiting for a rate slot", Buckets: prometheus.DefBuckets}, []string{"action"})
		ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "statusbar_reconcile_duration_seconds", Help: "Reconciliation run duration seconds", Buckets: prometheus.DefBuckets})
		ConsoleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "statusbar_console_duration_seconds", Help: "Console refresh duration seconds", Buckets: prometheus.DefBuckets})
		ActiveBarsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "statusbar_active_bars", Help: "Bars currently tracked in memory"})
		ConsoleSegmentsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "statusbar_console_segments", Help: "Messages used by the last console render"})
		SystemModeGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "statusbar_system_mode", Help: "Active system mode (1) by name"}, []string{"mode"})
	})
}

// ObserveGovernorWait records a delayed call.
func ObserveGovernorWait(action string, d time.Duration) {
	if GovernorWaits == nil {
		return
	}
	GovernorWaits.WithLabelValues(action).Inc()
	GovernorWaitDuration.WithLabelValues(action).Observe(d.Seconds())
}

// CountPlatformCall records one platform call outcome.
func CountPlatformCall(op, class string) {
	if PlatformCalls != nil {
		PlatformCalls.WithLabelValues(op, class).Inc()
	}
}

// CountDrop records an executed drop by strategy (noop, merge, move).
func CountDrop(strategy string) {
	if DropsExecuted != nil {
		DropsExecuted.WithLabelValues(strategy).Inc()
	}
}

// CountCoalescedDrop records a drop request that replaced a pending one.
func CountCoalescedDrop() {
	if DropsCoalesced != nil {
		DropsCoalesced.Inc()
	}
}

// CountConsoleEditError records a failed console edit.
func CountConsoleEditError(class string) {
	if ConsoleEditErrors != nil {
		ConsoleEditErrors.WithLabelValues(class).Inc()
	}
}

// CountReconcile records a per-bar reconciliation outcome.
func CountReconcile(outcome string) {
	if ReconcileOutcomes != nil {
		ReconcileOutcomes.WithLabelValues(outcome).Inc()
	}
}

// CountQuarantined records a malformed row removal.
func CountQuarantined() {
	if QuarantinedRows != nil {
		QuarantinedRows.Inc()
	}
}

// SetActiveBars records the registry size.
func SetActiveBars(n int) {
	if ActiveBarsGauge != nil {
		ActiveBarsGauge.Set(float64(n))
	}
}

// SetConsoleSegments records how many messages the console uses.
func SetConsoleSegments(n int) {
	if ConsoleSegmentsGauge != nil {
		ConsoleSegmentsGauge.Set(float64(n))
	}
}

// SetSystemMode flips the mode gauge so only the active mode reads 1.
func SetSystemMode(active string, all ...string) {
	if SystemModeGauge == nil {
		return
	}
	for _, m := range all {
		if m == active {
			SystemModeGauge.WithLabelValues(m).Set(1)
		} else {
			SystemModeGauge.WithLabelValues(m).Set(0)
		}
	}
	if ModeTransitions != nil {
		ModeTransitions.WithLabelValues(active).Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
