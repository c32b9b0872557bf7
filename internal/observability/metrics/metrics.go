package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels stamped onto every metric.
type Config struct {
	ServiceName string
	Environment string
}

const (
	JobReasonDeadlineExceeded = "deadline_exceeded"
	JobReasonUnknown          = "unknown"
)

// RedeemMetrics captures redemption saga health signals.
type RedeemMetrics struct {
	attempts      *prometheus.CounterVec
	compensations prometheus.Counter
	inviteErrors  *prometheus.CounterVec
	duration      prometheus.Observer
}

// SchedulerMetrics captures reminder sweep health signals.
type SchedulerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	jobTimeouts *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

var (
	metricsOnce      sync.Once
	redeemMetrics    *RedeemMetrics
	schedulerMetrics *SchedulerMetrics
)

// Redeem returns the singleton saga metrics registry.
func Redeem() *RedeemMetrics {
	initWithConfig(Config{})
	return redeemMetrics
}

// Scheduler returns the singleton sweep metrics registry.
func Scheduler() *SchedulerMetrics {
	initWithConfig(Config{})
	return schedulerMetrics
}

// WithConfig initializes the singletons using config labels. First caller wins.
func WithConfig(cfg Config) {
	initWithConfig(cfg)
}

// ResetForTest resets the metric singletons for tests.
func ResetForTest() {
	metricsOnce = sync.Once{}
	redeemMetrics = nil
	schedulerMetrics = nil
}

func initWithConfig(cfg Config) {
	metricsOnce.Do(func() {
		redeemMetrics, schedulerMetrics = newMetrics(prometheus.DefaultRegisterer, cfg)
	})
}

func newMetrics(registerer prometheus.Registerer, cfg Config) (*RedeemMetrics, *SchedulerMetrics) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "seatwise"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "seatwise_redeem_attempts_total",
		Help:        "Redemption saga attempts by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	compensations := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "seatwise_redeem_compensations_total",
		Help:        "Reservations rolled back after a failed remote invite.",
		ConstLabels: constLabels,
	})
	inviteErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "seatwise_directory_invite_errors_total",
		Help:        "Remote directory invite failures by error kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})
	redeemDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "seatwise_redeem_duration_seconds",
		Help:        "End-to-end redemption saga duration.",
		ConstLabels: constLabels,
		Buckets:     prometheus.DefBuckets,
	})

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "seatwise_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "seatwise_scheduler_job_errors_total",
		Help:        "Scheduler job errors by name and reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "seatwise_scheduler_job_timeouts_total",
		Help:        "Scheduler jobs that hit their soft timeout.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "seatwise_scheduler_job_duration_seconds",
		Help:        "Scheduler job duration by name.",
		ConstLabels: constLabels,
		Buckets:     prometheus.DefBuckets,
	}, []string{"job"})

	for _, collector := range []prometheus.Collector{
		attempts, compensations, inviteErrors, redeemDuration,
		jobRuns, jobErrors, jobTimeouts, jobDuration,
	} {
		if err := registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}

	return &RedeemMetrics{
			attempts:      attempts,
			compensations: compensations,
			inviteErrors:  inviteErrors,
			duration:      redeemDuration,
		}, &SchedulerMetrics{
			jobRuns:     jobRuns,
			jobErrors:   jobErrors,
			jobTimeouts: jobTimeouts,
			jobDuration: jobDuration,
		}
}

func (m *RedeemMetrics) IncAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *RedeemMetrics) IncCompensation() {
	if m == nil {
		return
	}
	m.compensations.Inc()
}

func (m *RedeemMetrics) IncInviteError(kind string) {
	if m == nil {
		return
	}
	m.inviteErrors.WithLabelValues(kind).Inc()
}

func (m *RedeemMetrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, jobErrorReason(err)).Inc()
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func jobErrorReason(err error) string {
	switch {
	case err == nil:
		return JobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return JobReasonDeadlineExceeded
	default:
		return JobReasonUnknown
	}
}
