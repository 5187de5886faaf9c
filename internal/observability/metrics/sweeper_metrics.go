package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	SweepReasonDeadlineExceeded     = "deadline_exceeded"
	SweepReasonDBLockTimeout        = "db_lock_timeout"
	SweepReasonSerializationFailure = "serialization_failure"
	SweepReasonDB                   = "db"
	SweepReasonUnknown              = "unknown"
)

// SweeperMetrics captures inactivity sweeper health.
type SweeperMetrics struct {
	runs          prometheus.Counter
	duration      prometheus.Histogram
	expired       prometheus.Counter
	notifyFailed  prometheus.Counter
	errors        *prometheus.CounterVec
	runLoopLag    prometheus.Observer
	errorCounters map[string]prometheus.Counter
}

var (
	sweeperMetricsOnce sync.Once
	sweeperMetrics     *SweeperMetrics
)

// Sweeper returns the singleton sweeper metrics registry.
func Sweeper() *SweeperMetrics {
	return SweeperWithConfig(Config{})
}

// SweeperWithConfig returns the singleton sweeper metrics registry using config labels.
func SweeperWithConfig(cfg Config) *SweeperMetrics {
	sweeperMetricsOnce.Do(func() {
		sweeperMetrics = newSweeperMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweeperMetrics
}

// ResetSweeperMetricsForTest resets the sweeper metrics singleton for tests.
func ResetSweeperMetricsForTest() {
	sweeperMetricsOnce = sync.Once{}
	sweeperMetrics = nil
}

// NewSweeperMetricsForTest builds an instance bound to registerer.
func NewSweeperMetricsForTest(registerer prometheus.Registerer) *SweeperMetrics {
	return newSweeperMetrics(registerer, Config{ServiceName: "test", Environment: "test"})
}

func newSweeperMetrics(registerer prometheus.Registerer, cfg Config) *SweeperMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	runs := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "creavision_sweeper_runs_total",
		Help:        "Inactivity sweeps started.",
		ConstLabels: constLabels,
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "creavision_sweeper_duration_seconds",
		Help:        "Inactivity sweep latency.",
		Buckets:     []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "creavision_sweeper_expired_conversations_total",
		Help:        "Conversations deleted for inactivity.",
		ConstLabels: constLabels,
	})
	notifyFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "creavision_sweeper_notify_failures_total",
		Help:        "Expiry notifications that could not be delivered.",
		ConstLabels: constLabels,
	})
	sweepErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "creavision_sweeper_errors_total",
		Help:        "Sweep failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "creavision_sweeper_runloop_lag_seconds",
		Help:        "Sweeper loop lag beyond the configured period.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(runs, duration, expired, notifyFailed, sweepErrors, runLoopLag)

	errorCounters := map[string]prometheus.Counter{}
	for _, reason := range []string{
		SweepReasonDeadlineExceeded,
		SweepReasonDBLockTimeout,
		SweepReasonSerializationFailure,
		SweepReasonDB,
		SweepReasonUnknown,
	} {
		errorCounters[reason] = sweepErrors.WithLabelValues(reason)
	}

	return &SweeperMetrics{
		runs:          runs,
		duration:      duration,
		expired:       expired,
		notifyFailed:  notifyFailed,
		errors:        sweepErrors,
		runLoopLag:    runLoopLag,
		errorCounters: errorCounters,
	}
}

func (m *SweeperMetrics) IncRun() {
	if m == nil {
		return
	}
	m.runs.Inc()
}

func (m *SweeperMetrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

func (m *SweeperMetrics) AddExpired(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.expired.Add(float64(count))
}

func (m *SweeperMetrics) IncNotifyFailed() {
	if m == nil {
		return
	}
	m.notifyFailed.Inc()
}

func (m *SweeperMetrics) IncError(err error) {
	if m == nil || err == nil {
		return
	}
	reason := ClassifySweepError(err)
	if counter, ok := m.errorCounters[reason]; ok {
		counter.Inc()
		return
	}
	m.errors.WithLabelValues(reason).Inc()
}

// ObserveRunLoopLag records lag between the scheduled wakeup and the actual sweep start.
func (m *SweeperMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m == nil {
		return
	}
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// ClassifySweepError maps sweep errors to low-cardinality reasons.
func ClassifySweepError(err error) string {
	if err == nil {
		return SweepReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SweepReasonDeadlineExceeded
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return SweepReasonDBLockTimeout
		case "40001":
			return SweepReasonSerializationFailure
		default:
			return SweepReasonDB
		}
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) {
		return SweepReasonDB
	}
	return SweepReasonUnknown
}
