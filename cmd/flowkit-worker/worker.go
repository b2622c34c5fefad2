package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tavolohq/flowkit/pkg/eventbus"
	"github.com/tavolohq/flowkit/pkg/events"
	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/otelhelper"
	"github.com/tavolohq/flowkit/pkg/persistence"
	"github.com/tavolohq/flowkit/pkg/workflow"
)

// Worker consumes step.available events and drives executions forward one
// step at a time, and applies approval decisions to their parked executions.
//
// The engine core records step attempts but takes no routing decision on
// failure; the on-error policy of a step is enforced here. Every retry
// attempt goes back through the engine so it lands in the step history.
type Worker struct {
	id          string
	persistence persistence.Persistence
	executor    *workflow.Executor
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	logger      *slog.Logger
}

func NewWorker(
	id string,
	persistence persistence.Persistence,
	executor *workflow.Executor,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:          id,
		persistence: persistence,
		executor:    executor,
		eventBus:    eventBus,
		tracer:      tracer,
		logger:      logger.With("module", "worker", "worker_id", id),
	}
}

// Start registers the event handlers, subscribes to the bus and blocks until
// SIGINT or SIGTERM.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	err := w.eventBus.Handle(events.StepAvailableEvent, w.handleStepAvailable)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.ApprovalDecidedEvent, w.handleApprovalDecided)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

// handleStepAvailable runs one step of one execution. Returning an error
// nacks the message for redelivery, so only transient failures (storage,
// engine errors) propagate; anything stale or unknown is dropped with a log.
func (w *Worker) handleStepAvailable(ctx context.Context, event any) error {
	stepEvent, ok := event.(*events.StepAvailable)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for StepAvailable")

		return nil
	}

	logger := w.logger.With(
		"workflow_id", stepEvent.WorkflowID,
		"execution_id", stepEvent.ExecutionID,
		"step_id", stepEvent.StepID,
	)
	logger.InfoContext(ctx, "Processing available step")

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.run_step",
		attribute.String(otelhelper.WorkflowIDKey, stepEvent.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, stepEvent.ExecutionID),
		attribute.String(otelhelper.StepIDKey, stepEvent.StepID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	execution, err := w.persistence.Executions().GetByID(ctx, stepEvent.ExecutionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	if execution == nil {
		logger.WarnContext(ctx, "Execution not found, dropping step")

		return nil
	}

	if execution.Status != models.ExecutionStatusRunning {
		logger.InfoContext(ctx, "Execution is not running, dropping step", "status", execution.Status)

		return nil
	}

	workflowItem, err := w.persistence.Workflows().GetByID(ctx, execution.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	if workflowItem == nil {
		logger.WarnContext(ctx, "Workflow for execution not found, dropping step")

		return nil
	}

	step := workflowItem.StepByID(stepEvent.StepID)
	if step == nil {
		logger.WarnContext(ctx, "Step not found in workflow, dropping step")

		return nil
	}

	if !step.Enabled {
		logger.InfoContext(ctx, "Step is disabled, advancing past it")

		_, err = w.executor.Advance(ctx, execution.ID, step.ID, false)
		if err != nil {
			otelhelper.SetError(span, err)
		}

		return err
	}

	return w.runStep(ctx, logger, span, execution, step)
}

// runStep executes the step and routes its outcome. A step with the retry
// policy is re-run up to RetryCount extra attempts before the failure
// routing applies.
func (w *Worker) runStep(ctx context.Context, logger *slog.Logger, span trace.Span, execution *models.WorkflowExecution, step *models.WorkflowStep) error {
	attempts := 1
	if step.Type == models.StepTypeAction && step.Action != nil && step.Action.OnError == models.OnErrorRetry {
		attempts += step.Action.RetryCount
	}

	var (
		stepExec *models.StepExecution
		err      error
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		stepExec, err = w.runAttempt(ctx, execution.ID, step)
		if err != nil {
			otelhelper.SetError(span, err)

			return err
		}

		if stepExec == nil || stepExec.Status != models.ExecutionStatusFailed {
			break
		}

		if attempt < attempts {
			logger.WarnContext(ctx, "Step attempt failed, retrying",
				"attempt", attempt, "max_attempts", attempts, "error", stepExec.ErrorMessage)
		}
	}

	if stepExec == nil {
		logger.InfoContext(ctx, "Engine found nothing to run, dropping step")

		return nil
	}

	if stepExec.Status == models.ExecutionStatusFailed {
		return w.routeFailedStep(ctx, logger, span, execution, step, stepExec)
	}

	// Delay and approval steps park the execution as waiting; the scheduler
	// sweep or an approval decision re-enters it later.
	if step.Type == models.StepTypeDelay || step.Type == models.StepTypeApproval {
		logger.InfoContext(ctx, "Execution parked, waiting for external resume")

		return nil
	}

	conditionResult := false
	if result, ok := stepExec.Output["condition_result"].(bool); ok {
		conditionResult = result
	}

	_, err = w.executor.Advance(ctx, execution.ID, step.ID, conditionResult)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

// runAttempt wraps one engine call in the action timeout when one is
// declared.
func (w *Worker) runAttempt(ctx context.Context, executionID string, step *models.WorkflowStep) (*models.StepExecution, error) {
	if step.Type == models.StepTypeAction && step.Action != nil && step.Action.TimeoutSeconds > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, time.Duration(step.Action.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	return w.executor.RunStep(ctx, executionID, step.ID)
}

// routeFailedStep applies the step's on-error policy after all attempts
// failed: continue advances along the failure branch, everything else fails
// the execution.
func (w *Worker) routeFailedStep(ctx context.Context, logger *slog.Logger, span trace.Span, execution *models.WorkflowExecution, step *models.WorkflowStep, stepExec *models.StepExecution) error {
	policy := models.OnErrorStop
	if step.Type == models.StepTypeAction && step.Action != nil && step.Action.OnError != "" {
		policy = step.Action.OnError
	}

	if policy == models.OnErrorContinue {
		logger.WarnContext(ctx, "Step failed, continuing per on-error policy", "error", stepExec.ErrorMessage)

		_, err := w.executor.Advance(ctx, execution.ID, step.ID, false)
		if err != nil {
			otelhelper.SetError(span, err)
		}

		return err
	}

	logger.WarnContext(ctx, "Step failed, failing execution", "error", stepExec.ErrorMessage)

	message := stepExec.ErrorMessage
	if message == "" {
		message = fmt.Sprintf("step %s failed", step.ID)
	}

	_, err := w.executor.FailExecution(ctx, execution.ID, message)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

// handleApprovalDecided applies a terminal approval decision to the parked
// execution: approved resumes it, rejected fails it, expired times it out.
// Decisions for a request the execution is no longer parked on are dropped.
func (w *Worker) handleApprovalDecided(ctx context.Context, event any) error {
	decided, ok := event.(*events.ApprovalDecided)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ApprovalDecided")

		return nil
	}

	logger := w.logger.With(
		"request_id", decided.RequestID,
		"execution_id", decided.ExecutionID,
		"status", decided.Status,
	)
	logger.InfoContext(ctx, "Processing approval decision")

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.apply_approval_decision",
		attribute.String(otelhelper.ApprovalIDKey, decided.RequestID),
		attribute.String(otelhelper.ExecutionIDKey, decided.ExecutionID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	execution, err := w.persistence.Executions().GetByID(ctx, decided.ExecutionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	if execution == nil {
		logger.WarnContext(ctx, "Execution for approval decision not found, dropping")

		return nil
	}

	if execution.ApprovalRequestID != decided.RequestID {
		logger.InfoContext(ctx, "Execution is not parked on this request, dropping decision",
			"parked_request_id", execution.ApprovalRequestID)

		return nil
	}

	switch decided.Status {
	case models.ApprovalStatusApproved:
		_, err = w.executor.Resume(ctx, decided.ExecutionID, decided.DecidedBy)
	case models.ApprovalStatusRejected:
		_, err = w.executor.FailExecution(ctx, decided.ExecutionID, rejectionMessage(decided))
	case models.ApprovalStatusExpired:
		_, err = w.executor.TimeoutExecution(ctx, decided.ExecutionID)
	default:
		logger.WarnContext(ctx, "Ignoring non-terminal approval status")

		return nil
	}

	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

func rejectionMessage(decided *events.ApprovalDecided) string {
	message := fmt.Sprintf("approval request %s rejected", decided.RequestID)
	if decided.DecidedBy != "" {
		message += " by " + decided.DecidedBy
	}

	if decided.Comment != "" {
		message += ": " + decided.Comment
	}

	return message
}
