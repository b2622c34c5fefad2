package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/tavolohq/flowkit/pkg/events"
	"github.com/tavolohq/flowkit/pkg/models"
)

// CompleteExecution marks an execution completed. Like all terminal
// transitions it is explicit and caller-driven; the engine never polls.
func (e *Executor) CompleteExecution(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	return e.transition(ctx, executionID, models.ExecutionStatusCompleted, "", "")
}

// FailExecution marks an execution failed with a caller-supplied message.
// There is no automatic retry or backoff; that responsibility lives in the
// drivers.
func (e *Executor) FailExecution(ctx context.Context, executionID, message string) (*models.WorkflowExecution, error) {
	return e.transition(ctx, executionID, models.ExecutionStatusFailed, "", message)
}

// CancelExecution stops an execution cooperatively: only the status changes,
// an action handler already running is not interrupted.
func (e *Executor) CancelExecution(ctx context.Context, executionID, cancelledBy, reason string) (*models.WorkflowExecution, error) {
	return e.transition(ctx, executionID, models.ExecutionStatusCancelled, cancelledBy, reason)
}

// TimeoutExecution closes an execution whose approval deadline passed
// without a decision and without an escalation path.
func (e *Executor) TimeoutExecution(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	return e.transition(ctx, executionID, models.ExecutionStatusTimedOut, "", "")
}

func (e *Executor) transition(ctx context.Context, executionID string, status models.ExecutionStatus, actor, message string) (*models.WorkflowExecution, error) {
	lock := e.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	execution, err := e.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch execution %s: %w", executionID, err)
	}

	if execution == nil {
		e.logger.WarnContext(ctx, "Execution not found", "execution_id", executionID)

		return nil, nil
	}

	if execution.IsTerminal() {
		e.logger.WarnContext(ctx, "Execution already finished",
			"execution_id", executionID, "status", execution.Status)

		return execution, nil
	}

	return e.finishWith(ctx, execution, status, actor, message)
}

// finish requires the caller to hold the execution lock.
func (e *Executor) finish(ctx context.Context, execution *models.WorkflowExecution, status models.ExecutionStatus, message string) (*models.WorkflowExecution, error) {
	return e.finishWith(ctx, execution, status, "", message)
}

func (e *Executor) finishWith(ctx context.Context, execution *models.WorkflowExecution, status models.ExecutionStatus, actor, message string) (*models.WorkflowExecution, error) {
	now := time.Now().UTC()
	execution.Status = status
	execution.CompletedAt = &now

	if message != "" && status == models.ExecutionStatusFailed {
		execution.ErrorMessage = message
	}

	err := e.persistence.Executions().Save(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	duration := execution.DurationMs()

	e.logger.InfoContext(ctx, "Execution finished",
		"execution_id", execution.ID, "status", status, "duration_ms", duration)
	e.metrics.RecordExecutionFinished(string(status), time.Duration(duration)*time.Millisecond)
	e.publishFinished(ctx, execution, actor, message)

	return execution, nil
}

func (e *Executor) publishFinished(ctx context.Context, execution *models.WorkflowExecution, actor, message string) {
	duration := execution.DurationMs()

	switch execution.Status {
	case models.ExecutionStatusCompleted:
		steps, err := e.persistence.Executions().StepsByExecution(ctx, execution.ID)
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to count executed steps",
				"execution_id", execution.ID, "error", err)
		}

		event := events.ExecutionCompleted{
			BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, execution.WorkflowID),
			ExecutionID:   execution.ID,
			DurationMs:    duration,
			StepsExecuted: len(steps),
		}
		e.publish(ctx, execution.ID, event)
	case models.ExecutionStatusFailed:
		event := events.ExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			Error:       message,
			DurationMs:  duration,
		}
		e.publish(ctx, execution.ID, event)
	case models.ExecutionStatusCancelled:
		event := events.ExecutionCancelled{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			CancelledBy: actor,
			Reason:      message,
			DurationMs:  duration,
		}
		e.publish(ctx, execution.ID, event)
	case models.ExecutionStatusTimedOut:
		event := events.ExecutionTimedOut{
			BaseEvent:         events.NewBaseEvent(events.ExecutionTimedOutEvent, execution.WorkflowID),
			ExecutionID:       execution.ID,
			ApprovalRequestID: execution.ApprovalRequestID,
			DurationMs:        duration,
		}
		e.publish(ctx, execution.ID, event)
	}
}
