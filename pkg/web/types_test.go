package web_test

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/web"
)

func TestCreateWorkflowRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name    string
		request web.CreateWorkflowRequest
		wantErr bool
	}{
		{
			name: "valid request",
			request: web.CreateWorkflowRequest{
				Name:        "Expense alerts",
				WorkspaceID: "ws-1",
				Type:        "automation",
			},
			wantErr: false,
		},
		{
			name: "missing name",
			request: web.CreateWorkflowRequest{
				WorkspaceID: "ws-1",
				Type:        "automation",
			},
			wantErr: true,
		},
		{
			name: "name too short",
			request: web.CreateWorkflowRequest{
				Name:        "Ab",
				WorkspaceID: "ws-1",
				Type:        "automation",
			},
			wantErr: true,
		},
		{
			name: "missing workspace",
			request: web.CreateWorkflowRequest{
				Name: "Expense alerts",
				Type: "automation",
			},
			wantErr: true,
		},
		{
			name: "type outside the enum",
			request: web.CreateWorkflowRequest{
				Name:        "Expense alerts",
				WorkspaceID: "ws-1",
				Type:        "pipeline",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateWorkflowRequest_ToModel(t *testing.T) {
	t.Parallel()

	request := web.CreateWorkflowRequest{
		Name:        "Expense alerts",
		Description: "Notify finance",
		WorkspaceID: "ws-1",
		ProjectID:   "proj-9",
		Type:        "automation",
		Tags:        []string{"finance"},
		CreatedBy:   "user-1",
		Steps: []web.StepRequest{
			{
				Name:     "Log it",
				Type:     "action",
				Position: 1,
				Action: &models.WorkflowAction{
					Type:          models.ActionTypeLogMessage,
					Configuration: map[string]any{"message": "hi"},
				},
			},
		},
		Triggers: []web.TriggerRequest{
			{Name: "On expense", Type: "event", EventType: "expense.submitted"},
		},
	}

	workflow := request.ToModel()

	assert.Equal(t, "Expense alerts", workflow.Name)
	assert.Equal(t, "ws-1", workflow.WorkspaceID)
	assert.Equal(t, models.WorkflowTypeAutomation, workflow.Type)
	assert.Equal(t, "user-1", workflow.CreatedBy)

	require.Len(t, workflow.Steps, 1)
	assert.Equal(t, models.StepTypeAction, workflow.Steps[0].Type)

	require.Len(t, workflow.Triggers, 1)
	assert.Equal(t, models.TriggerTypeEvent, workflow.Triggers[0].Type)
	assert.Equal(t, "expense.submitted", workflow.Triggers[0].EventType)
}

func TestStepRequest_ToModel_EnabledDefault(t *testing.T) {
	t.Parallel()

	t.Run("omitted means enabled", func(t *testing.T) {
		t.Parallel()

		step := web.StepRequest{Name: "Cool down", Type: "delay", DelaySeconds: 30}

		assert.True(t, step.ToModel().Enabled)
	})

	t.Run("explicit false survives", func(t *testing.T) {
		t.Parallel()

		enabled := false
		step := web.StepRequest{Name: "Cool down", Type: "delay", DelaySeconds: 30, Enabled: &enabled}

		assert.False(t, step.ToModel().Enabled)
	})

	t.Run("explicit true survives", func(t *testing.T) {
		t.Parallel()

		enabled := true
		step := web.StepRequest{Name: "Cool down", Type: "delay", DelaySeconds: 30, Enabled: &enabled}

		assert.True(t, step.ToModel().Enabled)
	})
}

func TestTriggerRequest_ToModel_EnabledDefault(t *testing.T) {
	t.Parallel()

	t.Run("omitted means enabled", func(t *testing.T) {
		t.Parallel()

		trigger := web.TriggerRequest{Name: "Nightly", Type: "schedule"}

		assert.True(t, trigger.ToModel().Enabled)
	})

	t.Run("explicit false survives", func(t *testing.T) {
		t.Parallel()

		enabled := false
		trigger := web.TriggerRequest{Name: "Nightly", Type: "schedule", Enabled: &enabled}

		assert.False(t, trigger.ToModel().Enabled)
	})

	t.Run("configuration is carried over", func(t *testing.T) {
		t.Parallel()

		trigger := web.TriggerRequest{
			Name:          "Nightly",
			Type:          "schedule",
			Configuration: map[string]any{"cron": "0 2 * * *"},
		}

		model := trigger.ToModel()
		assert.Equal(t, "0 2 * * *", model.Configuration["cron"])
	})
}

func TestCreateTemplateRequest_ToModel(t *testing.T) {
	t.Parallel()

	request := web.CreateTemplateRequest{
		Name:     "Expense approval blueprint",
		Category: "finance",
		Type:     "approval",
		Steps: []web.StepRequest{
			{
				Name: "Manager sign-off", Type: "approval", Position: 1,
				Approval: &models.ApprovalPolicy{Approvers: []string{"manager"}},
			},
		},
	}

	template := request.ToModel()

	assert.Equal(t, "finance", template.Category)
	assert.Equal(t, models.WorkflowTypeApproval, template.Type)
	require.Len(t, template.Steps, 1)
	assert.Equal(t, models.StepTypeApproval, template.Steps[0].Type)
	assert.True(t, template.Steps[0].Enabled)
}
