package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tavolohq/flowkit/pkg/approval"
	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/otelhelper"
	"github.com/tavolohq/flowkit/pkg/persistence"
	"github.com/tavolohq/flowkit/pkg/workflow"
)

const defaultSweepInterval = 30 * time.Second

// Scheduler is the time half of the engine's drivers. It runs the trigger
// sources of active workflows and periodically sweeps wait state the engine
// itself never polls: waiting executions whose delay elapsed are resumed,
// overdue approval requests are escalated or expired.
type Scheduler struct {
	id          string
	persistence persistence.Persistence
	executor    *workflow.Executor
	approvals   *approval.Service
	sources     *workflow.SourceManager
	interval    time.Duration
	tracer      trace.Tracer
	logger      *slog.Logger
}

func NewScheduler(
	id string,
	persistence persistence.Persistence,
	executor *workflow.Executor,
	approvals *approval.Service,
	sources *workflow.SourceManager,
	interval time.Duration,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Scheduler {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	return &Scheduler{
		id:          id,
		persistence: persistence,
		executor:    executor,
		approvals:   approvals,
		sources:     sources,
		interval:    interval,
		tracer:      tracer,
		logger:      logger.With("module", "scheduler", "scheduler_id", id),
	}
}

// Start brings up the trigger sources and the sweep loop, then blocks on
// signals. SIGHUP reloads the sources against the current workflow set,
// SIGINT and SIGTERM shut down.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := s.sources.Start(ctx)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Scheduler started",
		"sources", s.sources.RunningCount(), "sweep_interval", s.interval)

	go s.sweepLoop(ctx)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for sig := range signals {
		switch sig {
		case syscall.SIGHUP:
			s.logger.InfoContext(ctx, "Reloading trigger sources")

			err := s.sources.Restart(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to reload trigger sources", "error", err)

				continue
			}

			s.logger.InfoContext(ctx, "Trigger sources reloaded", "sources", s.sources.RunningCount())
		default:
			s.logger.InfoContext(ctx, "Shutting down scheduler...", "signal", sig)
			s.sources.Stop(ctx)

			return nil
		}
	}

	return nil
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep wakes everything whose wait ran out as of now.
func (s *Scheduler) sweep(ctx context.Context) {
	now := time.Now().UTC()

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "scheduler.sweep")
	defer span.End()

	resumed := s.resumeDueDelays(ctx, now)
	escalated, expired := s.sweepOverdueApprovals(ctx, now)

	span.SetAttributes(
		attribute.Int("flowkit.sweep.resumed", resumed),
		attribute.Int("flowkit.sweep.escalated", escalated),
		attribute.Int("flowkit.sweep.expired", expired),
	)

	if resumed+escalated+expired > 0 {
		s.logger.InfoContext(ctx, "Sweep finished",
			"resumed", resumed, "escalated", escalated, "expired", expired)
	}
}

// resumeDueDelays re-enters waiting executions whose wait deadline passed.
// Approval waits carry no deadline on the execution and are not matched.
func (s *Scheduler) resumeDueDelays(ctx context.Context, now time.Time) int {
	due, err := s.persistence.Executions().List(ctx, persistence.ExecutionFilter{
		Status:        models.ExecutionStatusWaiting,
		WaitingBefore: &now,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list due executions", "error", err)

		return 0
	}

	resumed := 0

	for _, execution := range due {
		logger := s.logger.With("execution_id", execution.ID, "workflow_id", execution.WorkflowID)
		logger.InfoContext(ctx, "Delay elapsed, resuming execution")

		_, err := s.executor.Resume(ctx, execution.ID, s.id)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to resume execution", "error", err)

			continue
		}

		resumed++
	}

	return resumed
}

// sweepOverdueApprovals escalates overdue requests that have an escalation
// path and expires the rest. Expiry publishes the terminal decision; the
// worker applies it to the parked execution.
func (s *Scheduler) sweepOverdueApprovals(ctx context.Context, now time.Time) (int, int) {
	overdue, err := s.approvals.ListOverdue(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list overdue approvals", "error", err)

		return 0, 0
	}

	escalated, expired := 0, 0

	for _, request := range overdue {
		logger := s.logger.With("request_id", request.ID, "execution_id", request.ExecutionID)

		if request.EscalationUser != "" {
			logger.InfoContext(ctx, "Approval overdue, escalating", "escalation_user", request.EscalationUser)

			_, changed, err := s.approvals.Escalate(ctx, request.ID)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to escalate approval request", "error", err)

				continue
			}

			if changed {
				escalated++
			}

			continue
		}

		logger.InfoContext(ctx, "Approval overdue, expiring")

		_, changed, err := s.approvals.Expire(ctx, request.ID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to expire approval request", "error", err)

			continue
		}

		if changed {
			expired++
		}
	}

	return escalated, expired
}
