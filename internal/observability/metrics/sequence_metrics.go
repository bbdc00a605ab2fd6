package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/erpcore/internal/authorization"
	sequencedomain "github.com/smallbiznis/erpcore/internal/sequence/domain"
	"github.com/smallbiznis/erpcore/pkg/db"
)

const (
	SequenceReasonDeadlineExceeded = "deadline_exceeded"
	SequenceReasonLockTimeout      = "lock_timeout"
	SequenceReasonVersionConflict  = "version_conflict"
	SequenceReasonDuplicateNumber  = "duplicate_number"
	SequenceReasonInvalidInput     = "invalid_input"
	SequenceReasonNotFound         = "not_found"
	SequenceReasonForbidden        = "forbidden"
	SequenceReasonUnknown          = "unknown"
)

const (
	LockBackendLocal    = "local"
	LockBackendRedis    = "redis"
	LockBackendDatabase = "database"
)

// SequenceMetrics captures counter contention and failure signals.
type SequenceMetrics struct {
	lockWait         *prometheus.HistogramVec
	lockTimeouts     *prometheus.CounterVec
	generateDuration prometheus.Observer
	generateErrors   *prometheus.CounterVec
	resets           *prometheus.CounterVec
	lockWaitObserver map[string]prometheus.Observer
}

var (
	sequenceMetricsOnce sync.Once
	sequenceMetrics     *SequenceMetrics
)

// Sequence returns the singleton sequence metrics registry.
func Sequence() *SequenceMetrics {
	return SequenceWithConfig(prometheus.DefaultRegisterer, Config{})
}

// SequenceWithConfig returns the singleton sequence metrics registry using config labels.
func SequenceWithConfig(registerer prometheus.Registerer, cfg Config) *SequenceMetrics {
	sequenceMetricsOnce.Do(func() {
		sequenceMetrics = newSequenceMetrics(registerer, cfg)
	})
	return sequenceMetrics
}

// ResetSequenceMetricsForTest resets the sequence metrics singleton for tests.
func ResetSequenceMetricsForTest() {
	sequenceMetricsOnce = sync.Once{}
	sequenceMetrics = nil
}

// NewSequenceMetricsForTest builds an unshared instance on registerer.
func NewSequenceMetricsForTest(registerer prometheus.Registerer) *SequenceMetrics {
	return newSequenceMetrics(registerer, Config{ServiceName: "erpcore", Environment: "test"})
}

func newSequenceMetrics(registerer prometheus.Registerer, cfg Config) *SequenceMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "erpcore"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "erpcore_sequence_lock_wait_seconds",
		Help:        "Time spent waiting for a sequence counter lock.",
		Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"backend"})
	lockTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "erpcore_sequence_lock_timeouts_total",
		Help:        "Sequence counter lock acquisitions that timed out.",
		ConstLabels: constLabels,
	}, []string{"backend"})
	generateDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "erpcore_sequence_generate_duration_seconds",
		Help:        "End-to-end latency of number generation.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	})
	generateErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "erpcore_sequence_generate_errors_total",
		Help:        "Number generation failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"operation", "reason"})
	resets := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "erpcore_sequence_resets_total",
		Help:        "Counter resets by trigger.",
		ConstLabels: constLabels,
	}, []string{"trigger"})

	registerer.MustRegister(lockWait, lockTimeouts, generateDuration, generateErrors, resets)

	lockWaitObserver := map[string]prometheus.Observer{
		LockBackendLocal:    lockWait.WithLabelValues(LockBackendLocal),
		LockBackendRedis:    lockWait.WithLabelValues(LockBackendRedis),
		LockBackendDatabase: lockWait.WithLabelValues(LockBackendDatabase),
	}

	return &SequenceMetrics{
		lockWait:         lockWait,
		lockTimeouts:     lockTimeouts,
		generateDuration: generateDuration,
		generateErrors:   generateErrors,
		resets:           resets,
		lockWaitObserver: lockWaitObserver,
	}
}

// ObserveLockWait records how long a caller waited for the counter lock.
func (m *SequenceMetrics) ObserveLockWait(backend string, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[backend]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	m.lockWait.WithLabelValues(backend).Observe(duration.Seconds())
}

// IncLockTimeout increments the lock timeout counter for backend.
func (m *SequenceMetrics) IncLockTimeout(backend string) {
	if m == nil || m.lockTimeouts == nil {
		return
	}
	m.lockTimeouts.WithLabelValues(backend).Inc()
}

// ObserveGenerate records generation latency.
func (m *SequenceMetrics) ObserveGenerate(duration time.Duration) {
	if m == nil || m.generateDuration == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.generateDuration.Observe(duration.Seconds())
}

// IncError increments the error counter for operation with a classified reason.
func (m *SequenceMetrics) IncError(operation string, err error) {
	if m == nil || err == nil || m.generateErrors == nil {
		return
	}
	m.generateErrors.WithLabelValues(operation, ClassifySequenceReason(err)).Inc()
}

// IncReset increments the reset counter for trigger.
func (m *SequenceMetrics) IncReset(trigger string) {
	if m == nil || m.resets == nil {
		return
	}
	m.resets.WithLabelValues(trigger).Inc()
}

// ClassifySequenceReason maps sequence errors to low-cardinality reasons.
func ClassifySequenceReason(err error) string {
	switch {
	case err == nil:
		return SequenceReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SequenceReasonDeadlineExceeded
	case errors.Is(err, authorization.ErrForbidden), errors.Is(err, authorization.ErrInvalidActor):
		return SequenceReasonForbidden
	case errors.Is(err, sequencedomain.ErrLockTimeout), db.IsLockTimeoutErr(err):
		return SequenceReasonLockTimeout
	case errors.Is(err, sequencedomain.ErrVersionConflict):
		return SequenceReasonVersionConflict
	case errors.Is(err, sequencedomain.ErrDuplicateNumber), db.IsDuplicateKeyErr(err):
		return SequenceReasonDuplicateNumber
	case errors.Is(err, sequencedomain.ErrSequenceNotFound):
		return SequenceReasonNotFound
	case isSequenceInputError(err):
		return SequenceReasonInvalidInput
	default:
		return SequenceReasonUnknown
	}
}

func isSequenceInputError(err error) bool {
	return errors.Is(err, sequencedomain.ErrInvalidPattern) ||
		errors.Is(err, sequencedomain.ErrInvalidContext) ||
		errors.Is(err, sequencedomain.ErrInvalidTenant) ||
		errors.Is(err, sequencedomain.ErrInvalidName) ||
		errors.Is(err, sequencedomain.ErrInvalidPadding) ||
		errors.Is(err, sequencedomain.ErrInvalidStepSize) ||
		errors.Is(err, sequencedomain.ErrInvalidResetLimit) ||
		errors.Is(err, sequencedomain.ErrInvalidResetPeriod) ||
		errors.Is(err, sequencedomain.ErrInvalidNumber) ||
		errors.Is(err, sequencedomain.ErrInvalidOverride) ||
		errors.Is(err, sequencedomain.ErrInvalidResetValue)
}
