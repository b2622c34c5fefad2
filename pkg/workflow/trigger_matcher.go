package workflow

import (
	"log/slog"

	"github.com/tavolohq/flowkit/pkg/models"
)

// TriggerMatcher decides which event triggers fire for an incoming event.
type TriggerMatcher struct {
	logger *slog.Logger
}

// TriggerMatch pairs a workflow with the trigger that fired for it.
type TriggerMatch struct {
	Workflow *models.Workflow
	Trigger  *models.WorkflowTrigger
}

func NewTriggerMatcher(logger *slog.Logger) *TriggerMatcher {
	return &TriggerMatcher{
		logger: logger.With("module", "trigger_matcher"),
	}
}

// Match returns at most one match per workflow: the first event trigger, in
// definition order, that fires for the event type and payload. Inactive
// workflows never match.
func (tm *TriggerMatcher) Match(workflows []*models.Workflow, eventType string, eventData map[string]any) []TriggerMatch {
	var matches []TriggerMatch

	for _, workflow := range workflows {
		if !workflow.IsExecutable() {
			continue
		}

		trigger := tm.MatchWorkflow(workflow, eventType, eventData)
		if trigger == nil {
			continue
		}

		matches = append(matches, TriggerMatch{Workflow: workflow, Trigger: trigger})

		tm.logger.Debug("Found matching workflow",
			"workflow_id", workflow.ID, "workflow_name", workflow.Name,
			"trigger_id", trigger.ID, "event_type", eventType)
	}

	tm.logger.Info("Completed trigger matching",
		"event_type", eventType, "workflows_checked", len(workflows), "matches_found", len(matches))

	return matches
}

// MatchWorkflow finds the first trigger of one workflow that fires for the
// event. Trigger conditions use the condition operator vocabulary with an
// implicit AND, no grouping.
func (tm *TriggerMatcher) MatchWorkflow(workflow *models.Workflow, eventType string, eventData map[string]any) *models.WorkflowTrigger {
	for _, trigger := range workflow.Triggers {
		if trigger.Type != models.TriggerTypeEvent {
			continue
		}

		if trigger.EventType != eventType {
			continue
		}

		if !trigger.ShouldFire(eventData) {
			continue
		}

		return trigger
	}

	return nil
}
