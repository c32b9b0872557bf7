package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, registry *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, family := range families {
		byName[family.GetName()] = family
	}
	return byName
}

func counterValue(family *dto.MetricFamily, labels map[string]string) float64 {
	for _, metric := range family.GetMetric() {
		match := true
		for _, pair := range metric.GetLabel() {
			if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
				match = false
				break
			}
		}
		if match {
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRedeemMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	redeem, _ := newMetrics(registry, Config{ServiceName: "seatwise", Environment: "test"})

	redeem.IncAttempt("success")
	redeem.IncAttempt("success")
	redeem.IncAttempt("refused")
	redeem.IncCompensation()
	redeem.IncInviteError("permission")
	redeem.ObserveDuration(120 * time.Millisecond)

	families := gather(t, registry)
	attempts := families["seatwise_redeem_attempts_total"]
	require.NotNil(t, attempts)
	assert.Equal(t, float64(2), counterValue(attempts, map[string]string{"outcome": "success"}))
	assert.Equal(t, float64(1), counterValue(attempts, map[string]string{"outcome": "refused"}))

	compensations := families["seatwise_redeem_compensations_total"]
	require.NotNil(t, compensations)
	assert.Equal(t, float64(1), compensations.GetMetric()[0].GetCounter().GetValue())

	inviteErrors := families["seatwise_directory_invite_errors_total"]
	require.NotNil(t, inviteErrors)
	assert.Equal(t, float64(1), counterValue(inviteErrors, map[string]string{"kind": "permission"}))

	duration := families["seatwise_redeem_duration_seconds"]
	require.NotNil(t, duration)
	assert.EqualValues(t, 1, duration.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestSchedulerMetrics_TimeoutReason(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, sched := newMetrics(registry, Config{})

	sched.IncJobRun("collect_reminders")
	sched.IncJobError("collect_reminders", context.DeadlineExceeded)
	sched.IncJobError("collect_reminders", errors.New("db gone"))
	sched.IncJobTimeout("collect_reminders")
	sched.ObserveJobDuration("collect_reminders", time.Second)

	families := gather(t, registry)
	jobErrors := families["seatwise_scheduler_job_errors_total"]
	require.NotNil(t, jobErrors)
	assert.Equal(t, float64(1), counterValue(jobErrors, map[string]string{
		"job": "collect_reminders", "reason": JobReasonDeadlineExceeded,
	}))
	assert.Equal(t, float64(1), counterValue(jobErrors, map[string]string{
		"job": "collect_reminders", "reason": JobReasonUnknown,
	}))
}

func TestNilSafety(t *testing.T) {
	var redeem *RedeemMetrics
	var sched *SchedulerMetrics

	// Metrics must never panic when the singleton was not initialized.
	redeem.IncAttempt("success")
	redeem.IncCompensation()
	redeem.IncInviteError("server")
	redeem.ObserveDuration(time.Second)
	sched.IncJobRun("x")
	sched.IncJobError("x", nil)
	sched.IncJobTimeout("x")
	sched.ObserveJobDuration("x", time.Second)
}
