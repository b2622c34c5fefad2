package services

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence/memory"
	"github.com/tavolohq/flowkit/pkg/registry"
)

func newTemplateService(t *testing.T) (*Template, *Workflow) {
	t.Helper()

	store := memory.NewPersistence()
	workflows := NewWorkflow(store, registry.NewRegistry(slog.Default()))

	return NewTemplate(store, workflows), workflows
}

func templateFixture() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		Name:        "Expense approval blueprint",
		Description: "Standard finance approval chain",
		Category:    "finance",
		Type:        models.WorkflowTypeApproval,
		Tags:        []string{"finance", "approval"},
		CreatedBy:   "platform",
		Steps: []*models.WorkflowStep{
			{
				ID: "tpl-log", Name: "Log submission", Type: models.StepTypeAction, Position: 0, Enabled: true,
				Action: &models.WorkflowAction{
					Type:          models.ActionTypeLogMessage,
					Configuration: map[string]any{"message": "expense submitted"},
				},
				NextStepID: "tpl-check",
			},
			{
				ID: "tpl-check", Name: "Check amount", Type: models.StepTypeCondition, Position: 1, Enabled: true,
				Conditions: []*models.WorkflowCondition{
					{Field: "amount", Operator: models.OperatorGreaterThan, Value: 100},
				},
				OnTrueStepID: "tpl-approve",
			},
			{
				ID: "tpl-approve", Name: "Finance approval", Type: models.StepTypeApproval, Position: 2, Enabled: true,
				Approval: &models.ApprovalPolicy{
					Approvers: []string{"finance-lead"},
					Type:      models.ApprovalTypeSingle,
				},
			},
		},
		Triggers: []*models.WorkflowTrigger{
			{
				ID: "tpl-trigger", Name: "On expense submitted", Type: models.TriggerTypeEvent,
				EventType: "expense.submitted", Enabled: true,
			},
		},
	}
}

func TestTemplate_CreateAndList(t *testing.T) {
	service, _ := newTemplateService(t)

	created, err := service.Create(t.Context(), templateFixture())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	other := templateFixture()
	other.Name = "Onboarding blueprint"
	other.Category = "hr"

	_, err = service.Create(t.Context(), other)
	require.NoError(t, err)

	all, err := service.List(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	finance, err := service.List(t.Context(), "finance")
	require.NoError(t, err)
	require.Len(t, finance, 1)
	assert.Equal(t, created.ID, finance[0].ID)
}

func TestTemplate_Create_Invalid(t *testing.T) {
	service, _ := newTemplateService(t)

	template := templateFixture()
	template.Name = "ab"

	created, err := service.Create(t.Context(), template)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Nil(t, created)

	created, err = service.Create(t.Context(), nil)
	assert.ErrorIs(t, err, ErrTemplateNil)
	assert.Nil(t, created)
}

func TestTemplate_Delete(t *testing.T) {
	service, _ := newTemplateService(t)

	created, err := service.Create(t.Context(), templateFixture())
	require.NoError(t, err)

	err = service.Delete(t.Context(), created.ID)
	require.NoError(t, err)

	err = service.Delete(t.Context(), created.ID)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestTemplate_Instantiate(t *testing.T) {
	service, workflows := newTemplateService(t)

	created, err := service.Create(t.Context(), templateFixture())
	require.NoError(t, err)

	workflow, err := service.Instantiate(t.Context(), created.ID, InstantiateRequest{
		WorkspaceID: "ws-1",
		ProjectID:   "proj-9",
		Name:        "Q3 expense approvals",
		CreatedBy:   "alice",
	})
	require.NoError(t, err)
	require.NotNil(t, workflow)

	assert.Equal(t, "Q3 expense approvals", workflow.Name)
	assert.Equal(t, "ws-1", workflow.WorkspaceID)
	assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
	assert.Equal(t, models.WorkflowTypeApproval, workflow.Type)
	assert.Equal(t, "alice", workflow.CreatedBy)

	// Step order and types are preserved, ids are fresh.
	require.Len(t, workflow.Steps, 3)
	assert.Equal(t, models.StepTypeAction, workflow.Steps[0].Type)
	assert.Equal(t, models.StepTypeCondition, workflow.Steps[1].Type)
	assert.Equal(t, models.StepTypeApproval, workflow.Steps[2].Type)

	for _, step := range workflow.Steps {
		assert.NotEmpty(t, step.ID)
		assert.NotContains(t, []string{"tpl-log", "tpl-check", "tpl-approve"}, step.ID)
		assert.Equal(t, workflow.ID, step.WorkflowID)
	}

	// Links follow the fresh ids.
	assert.Equal(t, workflow.Steps[1].ID, workflow.Steps[0].NextStepID)
	assert.Equal(t, workflow.Steps[2].ID, workflow.Steps[1].OnTrueStepID)
	assert.Equal(t, "", workflow.Steps[1].OnFalseStepID)

	require.Len(t, workflow.Triggers, 1)
	assert.NotEqual(t, "tpl-trigger", workflow.Triggers[0].ID)
	assert.Equal(t, models.TriggerTypeEvent, workflow.Triggers[0].Type)
	assert.Equal(t, "expense.submitted", workflow.Triggers[0].EventType)

	// The instance is a real stored workflow.
	stored, err := workflows.FetchByID(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, stored.Name)
}

func TestTemplate_Instantiate_DoesNotShareState(t *testing.T) {
	service, _ := newTemplateService(t)

	created, err := service.Create(t.Context(), templateFixture())
	require.NoError(t, err)

	workflow, err := service.Instantiate(t.Context(), created.ID, InstantiateRequest{
		WorkspaceID: "ws-1",
	})
	require.NoError(t, err)

	// Instance name falls back to the template name.
	assert.Equal(t, created.Name, workflow.Name)

	workflow.Steps[0].Action.Configuration["message"] = "mutated"

	reloaded, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "expense submitted", reloaded.Steps[0].Action.Configuration["message"])
}

func TestTemplate_Instantiate_Invalid(t *testing.T) {
	service, _ := newTemplateService(t)

	created, err := service.Create(t.Context(), templateFixture())
	require.NoError(t, err)

	workflow, err := service.Instantiate(t.Context(), created.ID, InstantiateRequest{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Nil(t, workflow)

	workflow, err = service.Instantiate(t.Context(), "missing", InstantiateRequest{WorkspaceID: "ws-1"})
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Nil(t, workflow)
}
