package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence/memory"
)

func TestStats_Collect(t *testing.T) {
	store := memory.NewPersistence()
	service := NewStats(store)

	ctx := t.Context()

	workflows := []*models.Workflow{
		{ID: "wf-1", Name: "One", WorkspaceID: "ws-1", Type: models.WorkflowTypeAutomation, Status: models.WorkflowStatusActive},
		{ID: "wf-2", Name: "Two", WorkspaceID: "ws-1", Type: models.WorkflowTypeAutomation, Status: models.WorkflowStatusActive},
		{ID: "wf-3", Name: "Three", WorkspaceID: "ws-1", Type: models.WorkflowTypeApproval, Status: models.WorkflowStatusDraft},
	}
	for _, workflow := range workflows {
		require.NoError(t, store.Workflows().Save(ctx, workflow))
	}

	started := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Second)
	finishedSlow := started.Add(4 * time.Second)

	executions := []*models.WorkflowExecution{
		{ID: "exec-1", WorkflowID: "wf-1", Status: models.ExecutionStatusCompleted, StartedAt: started, CompletedAt: &finished},
		{ID: "exec-2", WorkflowID: "wf-1", Status: models.ExecutionStatusCompleted, StartedAt: started, CompletedAt: &finishedSlow},
		{ID: "exec-3", WorkflowID: "wf-2", Status: models.ExecutionStatusRunning, StartedAt: started},
		{ID: "exec-4", WorkflowID: "wf-2", Status: models.ExecutionStatusFailed, StartedAt: started, CompletedAt: &finished},
	}
	for _, execution := range executions {
		require.NoError(t, store.Executions().Save(ctx, execution))
	}

	require.NoError(t, store.Approvals().Save(ctx, &models.ApprovalRequest{
		ID: "req-1", ExecutionID: "exec-1", Status: models.ApprovalStatusPending,
	}))
	require.NoError(t, store.Approvals().Save(ctx, &models.ApprovalRequest{
		ID: "req-2", ExecutionID: "exec-2", Status: models.ApprovalStatusApproved,
	}))

	summary, err := service.Collect(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Workflows.Total)
	assert.Equal(t, 2, summary.Workflows.ByStatus[models.WorkflowStatusActive])
	assert.Equal(t, 1, summary.Workflows.ByStatus[models.WorkflowStatusDraft])

	assert.Equal(t, 4, summary.Executions.Total)
	assert.Equal(t, 2, summary.Executions.ByStatus[models.ExecutionStatusCompleted])
	assert.Equal(t, 1, summary.Executions.ByStatus[models.ExecutionStatusRunning])
	assert.Equal(t, 1, summary.Executions.ByStatus[models.ExecutionStatusFailed])

	// (2s + 4s + 2s) over the three finished runs.
	assert.Equal(t, int64(2666), summary.Executions.AverageDurationMs)

	assert.Equal(t, 2, summary.Approvals.Total)
	assert.Equal(t, 1, summary.Approvals.Pending)
	assert.Equal(t, 1, summary.Approvals.ByStatus[models.ApprovalStatusApproved])
}

func TestStats_CollectWorkflow(t *testing.T) {
	store := memory.NewPersistence()
	service := NewStats(store)

	ctx := t.Context()

	require.NoError(t, store.Workflows().Save(ctx, &models.Workflow{
		ID: "wf-1", Name: "One", WorkspaceID: "ws-1", Type: models.WorkflowTypeAutomation, Status: models.WorkflowStatusActive,
	}))

	earlier := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)
	finished := later.Add(3 * time.Second)

	require.NoError(t, store.Executions().Save(ctx, &models.WorkflowExecution{
		ID: "exec-1", WorkflowID: "wf-1", Status: models.ExecutionStatusCompleted, StartedAt: earlier, CompletedAt: &later,
	}))
	require.NoError(t, store.Executions().Save(ctx, &models.WorkflowExecution{
		ID: "exec-2", WorkflowID: "wf-1", Status: models.ExecutionStatusCompleted, StartedAt: later, CompletedAt: &finished,
	}))
	require.NoError(t, store.Executions().Save(ctx, &models.WorkflowExecution{
		ID: "exec-other", WorkflowID: "wf-2", Status: models.ExecutionStatusRunning, StartedAt: earlier,
	}))

	summary, err := service.CollectWorkflow(ctx, "wf-1")
	require.NoError(t, err)

	assert.Equal(t, "wf-1", summary.WorkflowID)
	assert.Equal(t, 2, summary.Executions.Total)
	require.NotNil(t, summary.LastRunAt)
	assert.Equal(t, later, summary.LastRunAt.UTC())
}

func TestStats_CollectWorkflow_NotFound(t *testing.T) {
	service := NewStats(memory.NewPersistence())

	summary, err := service.CollectWorkflow(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
	assert.Nil(t, summary)
}