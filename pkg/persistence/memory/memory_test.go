package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence"
)

func TestWorkflowRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()
	repo := store.Workflows()

	workflow := &models.Workflow{
		ID:          "wf-1",
		Name:        "Invoice approvals",
		WorkspaceID: "ws-1",
		Type:        models.WorkflowTypeApproval,
		Status:      models.WorkflowStatusActive,
		Tags:        []string{"finance"},
		CreatedAt:   time.Now(),
	}

	require.NoError(t, repo.Save(ctx, workflow))

	loaded, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Invoice approvals", loaded.Name)

	// The store keeps its own copy.
	loaded.Name = "tampered"
	reloaded, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Invoice approvals", reloaded.Name)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Delete(ctx, "wf-1"))

	err = repo.Delete(ctx, "wf-1")
	require.Error(t, err)
	assert.True(t, persistence.IsNotFound(err))
}

func TestWorkflowRepository_ListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence().Workflows()

	base := time.Now()
	seed := []*models.Workflow{
		{ID: "wf-1", WorkspaceID: "ws-1", Type: models.WorkflowTypeApproval, Status: models.WorkflowStatusActive, Tags: []string{"finance"}, CreatedAt: base},
		{ID: "wf-2", WorkspaceID: "ws-1", Type: models.WorkflowTypeAutomation, Status: models.WorkflowStatusDraft, CreatedAt: base.Add(time.Second)},
		{ID: "wf-3", WorkspaceID: "ws-2", Type: models.WorkflowTypeApproval, Status: models.WorkflowStatusActive, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, workflow := range seed {
		require.NoError(t, repo.Save(ctx, workflow))
	}

	all, err := repo.List(ctx, persistence.WorkflowFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "wf-3", all[0].ID)

	byWorkspace, err := repo.List(ctx, persistence.WorkflowFilter{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	assert.Len(t, byWorkspace, 2)

	active, err := repo.List(ctx, persistence.WorkflowFilter{Status: models.WorkflowStatusActive})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	tagged, err := repo.List(ctx, persistence.WorkflowFilter{Tag: "finance"})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, "wf-1", tagged[0].ID)
}

func TestExecutionRepository_SaveAndFilter(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence().Executions()

	now := time.Now()
	waitDeadline := now.Add(-time.Minute)

	executions := []*models.WorkflowExecution{
		{ID: "ex-1", WorkflowID: "wf-1", Status: models.ExecutionStatusRunning, StartedAt: now},
		{ID: "ex-2", WorkflowID: "wf-1", Status: models.ExecutionStatusWaiting, WaitUntil: &waitDeadline, StartedAt: now.Add(time.Second)},
		{ID: "ex-3", WorkflowID: "wf-2", Status: models.ExecutionStatusCompleted, StartedAt: now.Add(2 * time.Second)},
	}
	for _, execution := range executions {
		require.NoError(t, repo.Save(ctx, execution))
	}

	byWorkflow, err := repo.List(ctx, persistence.ExecutionFilter{WorkflowID: "wf-1"})
	require.NoError(t, err)
	assert.Len(t, byWorkflow, 2)

	// Only ex-2 waits on an elapsed deadline.
	due, err := repo.List(ctx, persistence.ExecutionFilter{WaitingBefore: &now})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "ex-2", due[0].ID)

	limited, err := repo.List(ctx, persistence.ExecutionFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "ex-3", limited[0].ID)
}

func TestExecutionRepository_StepHistoryUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence().Executions()

	started := time.Now()
	first := &models.StepExecution{ID: "se-1", ExecutionID: "ex-1", StepID: "s1", Status: models.ExecutionStatusRunning, StartedAt: started}
	require.NoError(t, repo.SaveStep(ctx, first))

	second := &models.StepExecution{ID: "se-2", ExecutionID: "ex-1", StepID: "s1", Status: models.ExecutionStatusRunning, StartedAt: started.Add(time.Second)}
	require.NoError(t, repo.SaveStep(ctx, second))

	// Completing the first attempt updates it in place.
	first.Complete(map[string]any{"success": true}, started.Add(2*time.Second))
	require.NoError(t, repo.SaveStep(ctx, first))

	history, err := repo.StepsByExecution(ctx, "ex-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "se-1", history[0].ID)
	assert.Equal(t, models.ExecutionStatusCompleted, history[0].Status)
	assert.Equal(t, "se-2", history[1].ID)

	empty, err := repo.StepsByExecution(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestApprovalRepository_Filters(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence().Approvals()

	now := time.Now()
	requests := []*models.ApprovalRequest{
		{ID: "ar-1", ExecutionID: "ex-1", Approvers: []string{"u1", "u2"}, Status: models.ApprovalStatusPending, DueAt: now.Add(-time.Hour), CreatedAt: now},
		{ID: "ar-2", ExecutionID: "ex-2", Approvers: []string{"u2"}, Status: models.ApprovalStatusApproved, DueAt: now.Add(time.Hour), CreatedAt: now.Add(time.Second)},
		{ID: "ar-3", ExecutionID: "ex-3", Approvers: []string{"u3"}, Status: models.ApprovalStatusPending, DueAt: now.Add(time.Hour), CreatedAt: now.Add(2 * time.Second)},
	}
	for _, request := range requests {
		require.NoError(t, repo.Save(ctx, request))
	}

	forApprover, err := repo.List(ctx, persistence.ApprovalFilter{Approver: "u2"})
	require.NoError(t, err)
	assert.Len(t, forApprover, 2)

	// Overdue = pending and past due.
	overdue, err := repo.List(ctx, persistence.ApprovalFilter{Status: models.ApprovalStatusPending, DueBefore: &now})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "ar-1", overdue[0].ID)

	byExecution, err := repo.List(ctx, persistence.ApprovalFilter{ExecutionID: "ex-2"})
	require.NoError(t, err)
	require.Len(t, byExecution, 1)
	assert.Equal(t, "ar-2", byExecution[0].ID)
}

func TestTemplateRepository_CategoryFilter(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence().Templates()

	require.NoError(t, repo.Save(ctx, &models.WorkflowTemplate{ID: "tp-1", Name: "Expenses", Category: "finance", CreatedAt: time.Now()}))
	require.NoError(t, repo.Save(ctx, &models.WorkflowTemplate{ID: "tp-2", Name: "Onboarding", Category: "hr", CreatedAt: time.Now()}))

	finance, err := repo.List(ctx, "finance")
	require.NoError(t, err)
	require.Len(t, finance, 1)
	assert.Equal(t, "tp-1", finance[0].ID)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repo.Delete(ctx, "tp-1"))
	assert.True(t, persistence.IsNotFound(repo.Delete(ctx, "tp-1")))
}

func TestRepositories_RejectEmptyIDs(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()

	assert.ErrorIs(t, store.Workflows().Save(ctx, &models.Workflow{}), persistence.ErrInvalidID)
	assert.ErrorIs(t, store.Executions().Save(ctx, &models.WorkflowExecution{}), persistence.ErrInvalidID)
	assert.ErrorIs(t, store.Approvals().Save(ctx, &models.ApprovalRequest{}), persistence.ErrInvalidID)
	assert.ErrorIs(t, store.Templates().Save(ctx, &models.WorkflowTemplate{}), persistence.ErrInvalidID)
}
