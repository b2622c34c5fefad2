package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/tavolohq/flowkit/pkg/events"
	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence"
)

// Trigger delivers an event to one workflow. The first matching event
// trigger fires and starts an execution with the event payload as context;
// no match returns nil without error.
func (e *Executor) Trigger(ctx context.Context, workflowID, eventType string, eventData map[string]any, triggeredBy string) (*models.WorkflowExecution, error) {
	workflow, err := e.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	if workflow == nil {
		e.logger.WarnContext(ctx, "Cannot trigger, workflow not found", "workflow_id", workflowID)

		return nil, nil
	}

	trigger := e.matcher.MatchWorkflow(workflow, eventType, eventData)
	if trigger == nil {
		e.logger.DebugContext(ctx, "No trigger matched event",
			"workflow_id", workflowID, "event_type", eventType)

		return nil, nil
	}

	return e.fire(ctx, workflow, trigger, eventType, eventData, triggeredBy)
}

// TriggerEvent broadcasts an event across all active workflows and starts an
// execution for every workflow with a matching trigger.
func (e *Executor) TriggerEvent(ctx context.Context, eventType string, eventData map[string]any, triggeredBy string) ([]*models.WorkflowExecution, error) {
	workflows, err := e.persistence.Workflows().List(ctx, persistence.WorkflowFilter{
		Status: models.WorkflowStatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list active workflows: %w", err)
	}

	matches := e.matcher.Match(workflows, eventType, eventData)

	executions := make([]*models.WorkflowExecution, 0, len(matches))

	for _, match := range matches {
		execution, err := e.fire(ctx, match.Workflow, match.Trigger, eventType, eventData, triggeredBy)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to fire trigger",
				"workflow_id", match.Workflow.ID, "trigger_id", match.Trigger.ID, "error", err)

			continue
		}

		if execution != nil {
			executions = append(executions, execution)
		}
	}

	return executions, nil
}

// FireTrigger fires one specific trigger without condition matching. The
// scheduler uses it for due cron triggers and the API for webhook arrivals.
func (e *Executor) FireTrigger(ctx context.Context, workflowID, triggerID string, eventData map[string]any, triggeredBy string) (*models.WorkflowExecution, error) {
	workflow, err := e.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	if workflow == nil {
		e.logger.WarnContext(ctx, "Cannot fire trigger, workflow not found", "workflow_id", workflowID)

		return nil, nil
	}

	trigger := workflow.TriggerByID(triggerID)
	if trigger == nil {
		e.logger.WarnContext(ctx, "Trigger not found in workflow",
			"workflow_id", workflowID, "trigger_id", triggerID)

		return nil, nil
	}

	if !trigger.Enabled {
		e.logger.InfoContext(ctx, "Trigger is disabled, not firing",
			"workflow_id", workflowID, "trigger_id", triggerID)

		return nil, nil
	}

	return e.fire(ctx, workflow, trigger, trigger.EventType, eventData, triggeredBy)
}

func (e *Executor) fire(ctx context.Context, workflow *models.Workflow, trigger *models.WorkflowTrigger, eventType string, eventData map[string]any, triggeredBy string) (*models.WorkflowExecution, error) {
	now := time.Now().UTC()
	trigger.LastFiredAt = &now

	err := e.persistence.Workflows().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to record trigger firing: %w", err)
	}

	e.logger.InfoContext(ctx, "Trigger fired",
		"workflow_id", workflow.ID, "trigger_id", trigger.ID,
		"trigger_type", trigger.Type, "event_type", eventType)
	e.metrics.RecordTriggerFired(string(trigger.Type))

	firedEvent := events.TriggerFired{
		BaseEvent:   events.NewBaseEvent(events.TriggerFiredEvent, workflow.ID),
		TriggerID:   trigger.ID,
		TriggerType: trigger.Type,
		Event:       eventType,
		EventData:   eventData,
	}
	e.publish(ctx, workflow.ID, firedEvent)

	return e.StartExecution(ctx, workflow.ID, trigger.Type, triggeredBy, eventData)
}
