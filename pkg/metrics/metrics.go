// Package metrics exposes Prometheus instrumentation for the engine. A nil
// *Recorder is valid and records nothing, so callers never need to guard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder struct {
	registry prometheus.Registerer

	executionsStarted  *prometheus.CounterVec
	executionsFinished *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	stepsExecuted      *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec
	approvalsDecided   *prometheus.CounterVec
	triggersFired      *prometheus.CounterVec
	unhandledActions   *prometheus.CounterVec
}

// Config holds configuration for metrics recording.
type Config struct {
	Namespace string
	Subsystem string
	Registry  prometheus.Registerer
}

// NewRecorder creates a recorder and registers its collectors.
func NewRecorder(config *Config) *Recorder {
	if config == nil {
		config = &Config{}
	}

	if config.Namespace == "" {
		config.Namespace = "flowkit"
	}

	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}

	r := &Recorder{registry: config.Registry}
	r.initMetrics(config.Namespace, config.Subsystem)

	return r
}

func (r *Recorder) initMetrics(namespace, subsystem string) {
	r.executionsStarted = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "executions_started_total",
			Help:      "Total number of workflow executions started",
		},
		[]string{"trigger_type"},
	)

	r.executionsFinished = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "executions_finished_total",
			Help:      "Total number of workflow executions reaching a terminal status",
		},
		[]string{"status"},
	)

	r.executionDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock time from execution start to terminal status",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10), // 0.1s to ~7h, delays included
		},
		[]string{"status"},
	)

	r.stepsExecuted = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "steps_executed_total",
			Help:      "Total number of step attempts by type and outcome",
		},
		[]string{"step_type", "status"},
	)

	r.stepDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "step_duration_seconds",
			Help:      "Time spent running a single step attempt",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"step_type"},
	)

	r.approvalsDecided = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "approvals_decided_total",
			Help:      "Total number of approval requests reaching a decision",
		},
		[]string{"status"},
	)

	r.triggersFired = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "triggers_fired_total",
			Help:      "Total number of trigger firings that started an execution",
		},
		[]string{"trigger_type"},
	)

	r.unhandledActions = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unhandled_actions_total",
			Help:      "Total number of action dispatches that fell back to the no-op handler",
		},
		[]string{"action_type"},
	)
}

func (r *Recorder) RecordExecutionStarted(triggerType string) {
	if r == nil {
		return
	}

	r.executionsStarted.WithLabelValues(triggerType).Inc()
}

func (r *Recorder) RecordExecutionFinished(status string, duration time.Duration) {
	if r == nil {
		return
	}

	r.executionsFinished.WithLabelValues(status).Inc()
	r.executionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (r *Recorder) RecordStep(stepType, status string, duration time.Duration) {
	if r == nil {
		return
	}

	r.stepsExecuted.WithLabelValues(stepType, status).Inc()
	r.stepDuration.WithLabelValues(stepType).Observe(duration.Seconds())
}

func (r *Recorder) RecordApprovalDecision(status string) {
	if r == nil {
		return
	}

	r.approvalsDecided.WithLabelValues(status).Inc()
}

func (r *Recorder) RecordTriggerFired(triggerType string) {
	if r == nil {
		return
	}

	r.triggersFired.WithLabelValues(triggerType).Inc()
}

func (r *Recorder) RecordUnhandledAction(actionType string) {
	if r == nil {
		return
	}

	r.unhandledActions.WithLabelValues(actionType).Inc()
}
