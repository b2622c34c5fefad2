package workflow

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavolohq/flowkit/pkg/events"
	"github.com/tavolohq/flowkit/pkg/models"
)

// eventWorkflow fires on task.completed events with amount > 100.
func eventWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:     id,
		Name:   "On task completed",
		Status: models.WorkflowStatusActive,
		Triggers: []*models.WorkflowTrigger{
			{
				ID:         id + "-trigger",
				WorkflowID: id,
				Type:       models.TriggerTypeEvent,
				EventType:  "task.completed",
				Enabled:    true,
				Conditions: []*models.WorkflowCondition{
					{Field: "amount", Operator: models.OperatorGreaterThan, Value: 100},
				},
			},
		},
		Steps: []*models.WorkflowStep{
			{
				ID: "step-notify", Type: models.StepTypeAction, Position: 0, Enabled: true,
				Action: &models.WorkflowAction{Type: models.ActionTypeNotification},
			},
		},
	}
}

func TestTriggerMatcherMatch(t *testing.T) {
	matcher := NewTriggerMatcher(slog.Default())

	active := eventWorkflow("wf-active")

	paused := eventWorkflow("wf-paused")
	paused.Status = models.WorkflowStatusPaused

	otherEvent := eventWorkflow("wf-other")
	otherEvent.Triggers[0].EventType = "task.created"

	workflows := []*models.Workflow{active, paused, otherEvent}

	matches := matcher.Match(workflows, "task.completed", map[string]any{"amount": 150})
	require.Len(t, matches, 1)
	assert.Equal(t, "wf-active", matches[0].Workflow.ID)
	assert.Equal(t, "wf-active-trigger", matches[0].Trigger.ID)

	// Below the threshold nothing fires.
	assert.Empty(t, matcher.Match(workflows, "task.completed", map[string]any{"amount": 50}))

	// A missing field fails the condition closed.
	assert.Empty(t, matcher.Match(workflows, "task.completed", map[string]any{"other": 1}))
}

func TestTriggerMatcherSkipsDisabledTrigger(t *testing.T) {
	matcher := NewTriggerMatcher(slog.Default())

	workflow := eventWorkflow("wf-1")
	workflow.Triggers[0].Enabled = false

	assert.Nil(t, matcher.MatchWorkflow(workflow, "task.completed", map[string]any{"amount": 150}))
}

func TestExecutorTrigger(t *testing.T) {
	env := newTestEnv(t)
	env.saveWorkflow(t, eventWorkflow("wf-1"))

	execution, err := env.executor.Trigger(context.Background(), "wf-1", "task.completed", map[string]any{"amount": 150}, "system")
	require.NoError(t, err)
	require.NotNil(t, execution)

	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Equal(t, models.TriggerTypeEvent, execution.TriggerType)
	assert.Equal(t, float64(150), mustNumber(t, execution.Context["amount"]))

	// Firing stamps the trigger.
	updated, err := env.persistence.Workflows().GetByID(context.Background(), "wf-1")
	require.NoError(t, err)
	require.NotNil(t, updated.Triggers[0].LastFiredAt)

	assert.Contains(t, env.bus.typesSeen(), events.TriggerFiredEvent)
	assert.Contains(t, env.bus.typesSeen(), events.ExecutionStartedEvent)
}

func TestExecutorTriggerNoMatch(t *testing.T) {
	env := newTestEnv(t)
	env.saveWorkflow(t, eventWorkflow("wf-1"))

	execution, err := env.executor.Trigger(context.Background(), "wf-1", "task.completed", map[string]any{"amount": 50}, "system")
	require.NoError(t, err)
	assert.Nil(t, execution)

	execution, err = env.executor.Trigger(context.Background(), "missing", "task.completed", map[string]any{"amount": 150}, "system")
	require.NoError(t, err)
	assert.Nil(t, execution)
}

func TestExecutorTriggerEventBroadcast(t *testing.T) {
	env := newTestEnv(t)
	env.saveWorkflow(t, eventWorkflow("wf-1"))
	env.saveWorkflow(t, eventWorkflow("wf-2"))

	silent := eventWorkflow("wf-3")
	silent.Triggers[0].EventType = "task.created"
	env.saveWorkflow(t, silent)

	executions, err := env.executor.TriggerEvent(context.Background(), "task.completed", map[string]any{"amount": 150}, "system")
	require.NoError(t, err)
	require.Len(t, executions, 2)

	started := map[string]bool{}
	for _, execution := range executions {
		started[execution.WorkflowID] = true
	}

	assert.True(t, started["wf-1"])
	assert.True(t, started["wf-2"])
}

func TestFireTrigger(t *testing.T) {
	env := newTestEnv(t)
	env.saveWorkflow(t, eventWorkflow("wf-1"))

	execution, err := env.executor.FireTrigger(context.Background(), "wf-1", "wf-1-trigger", map[string]any{"fired_by": "cron"}, "scheduler")
	require.NoError(t, err)
	require.NotNil(t, execution)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
}

func TestFireTriggerDisabled(t *testing.T) {
	env := newTestEnv(t)

	workflow := eventWorkflow("wf-1")
	workflow.Triggers[0].Enabled = false
	env.saveWorkflow(t, workflow)

	execution, err := env.executor.FireTrigger(context.Background(), "wf-1", "wf-1-trigger", nil, "scheduler")
	require.NoError(t, err)
	assert.Nil(t, execution)

	execution, err = env.executor.FireTrigger(context.Background(), "wf-1", "missing-trigger", nil, "scheduler")
	require.NoError(t, err)
	assert.Nil(t, execution)
}

func mustNumber(t *testing.T, value any) float64 {
	t.Helper()

	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		t.Fatalf("expected numeric value, got %T", value)

		return 0
	}
}
