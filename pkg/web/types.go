// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/tavolohq/flowkit/pkg/models"

// CreateWorkflowRequest is the request body for creating a workflow
// definition. Steps and triggers may be supplied inline or added later
// through the step and trigger endpoints.
type CreateWorkflowRequest struct {
	Name        string           `json:"name"                 validate:"required,min=3,max=255"`
	Description string           `json:"description"`
	WorkspaceID string           `json:"workspace_id"         validate:"required"`
	ProjectID   string           `json:"project_id,omitempty"`
	Type        string           `json:"type"                 validate:"required,oneof=automation approval notification integration custom"`
	Tags        []string         `json:"tags,omitempty"`
	Steps       []StepRequest    `json:"steps,omitempty"`
	Triggers    []TriggerRequest `json:"triggers,omitempty"`
	CreatedBy   string           `json:"created_by,omitempty"`
}

// ToModel converts the request into a workflow definition. IDs, status and
// version are left for the service layer to assign.
func (r CreateWorkflowRequest) ToModel() *models.Workflow {
	workflow := &models.Workflow{
		Name:        r.Name,
		Description: r.Description,
		WorkspaceID: r.WorkspaceID,
		ProjectID:   r.ProjectID,
		Type:        models.WorkflowType(r.Type),
		Tags:        r.Tags,
		Steps:       make([]*models.WorkflowStep, 0, len(r.Steps)),
		Triggers:    make([]*models.WorkflowTrigger, 0, len(r.Triggers)),
		CreatedBy:   r.CreatedBy,
	}

	for _, step := range r.Steps {
		workflow.Steps = append(workflow.Steps, step.ToModel())
	}

	for _, trigger := range r.Triggers {
		workflow.Triggers = append(workflow.Triggers, trigger.ToModel())
	}

	return workflow
}

// UpdateWorkflowRequest is the request body for updating a workflow
// definition. All fields are optional to support partial updates; a non-nil
// steps or triggers list replaces the stored one wholesale.
type UpdateWorkflowRequest struct {
	Name        *string          `json:"name,omitempty"        validate:"omitempty,min=3,max=255"`
	Description *string          `json:"description,omitempty"`
	Type        *string          `json:"type,omitempty"        validate:"omitempty,oneof=automation approval notification integration custom"`
	Tags        []string         `json:"tags,omitempty"`
	Steps       []StepRequest    `json:"steps,omitempty"`
	Triggers    []TriggerRequest `json:"triggers,omitempty"`
}

// StepRequest is the request body for a workflow step, used both inline on
// workflow creation and on the step endpoints. An omitted enabled flag
// defaults to true.
type StepRequest struct {
	ID            string                      `json:"id,omitempty"`
	Name          string                      `json:"name"     validate:"required,max=255"`
	Type          string                      `json:"type"     validate:"required,oneof=action condition delay loop parallel approval sub_workflow"`
	Position      int                         `json:"position"`
	Action        *models.WorkflowAction      `json:"action,omitempty"`
	Conditions    []*models.WorkflowCondition `json:"conditions,omitempty"`
	Approval      *models.ApprovalPolicy      `json:"approval,omitempty"`
	DelaySeconds  int                         `json:"delay_seconds,omitempty"`
	SubWorkflowID string                      `json:"sub_workflow_id,omitempty"`
	NextStepID    string                      `json:"next_step_id,omitempty"`
	OnTrueStepID  string                      `json:"on_true_step_id,omitempty"`
	OnFalseStepID string                      `json:"on_false_step_id,omitempty"`
	Enabled       *bool                       `json:"enabled,omitempty"`
}

func (r StepRequest) ToModel() *models.WorkflowStep {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	return &models.WorkflowStep{
		ID:            r.ID,
		Name:          r.Name,
		Type:          models.StepType(r.Type),
		Position:      r.Position,
		Action:        r.Action,
		Conditions:    r.Conditions,
		Approval:      r.Approval,
		DelaySeconds:  r.DelaySeconds,
		SubWorkflowID: r.SubWorkflowID,
		NextStepID:    r.NextStepID,
		OnTrueStepID:  r.OnTrueStepID,
		OnFalseStepID: r.OnFalseStepID,
		Enabled:       enabled,
	}
}

// TriggerRequest is the request body for a workflow trigger. An omitted
// enabled flag defaults to true.
type TriggerRequest struct {
	ID            string                      `json:"id,omitempty"`
	Name          string                      `json:"name,omitempty"`
	Type          string                      `json:"type" validate:"required,oneof=manual schedule event webhook condition"`
	EventType     string                      `json:"event_type,omitempty"`
	Conditions    []*models.WorkflowCondition `json:"conditions,omitempty"`
	Configuration map[string]any              `json:"configuration,omitempty"`
	Enabled       *bool                       `json:"enabled,omitempty"`
}

func (r TriggerRequest) ToModel() *models.WorkflowTrigger {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	return &models.WorkflowTrigger{
		ID:            r.ID,
		Name:          r.Name,
		Type:          models.TriggerType(r.Type),
		EventType:     r.EventType,
		Conditions:    r.Conditions,
		Configuration: r.Configuration,
		Enabled:       enabled,
	}
}

// FireTriggerRequest is the request body for firing a workflow's trigger.
// With a trigger ID the named trigger fires directly; without one the event
// type and data are matched against the workflow's event triggers.
type FireTriggerRequest struct {
	TriggerID   string         `json:"trigger_id,omitempty"`
	EventType   string         `json:"event_type,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	TriggeredBy string         `json:"triggered_by,omitempty"`
}

// BroadcastEventRequest is the request body for delivering an event to every
// active workflow with a matching trigger.
type BroadcastEventRequest struct {
	EventType   string         `json:"event_type" validate:"required"`
	Data        map[string]any `json:"data,omitempty"`
	TriggeredBy string         `json:"triggered_by,omitempty"`
}

// CancelExecutionRequest is the optional request body for cancelling an
// execution.
type CancelExecutionRequest struct {
	CancelledBy string `json:"cancelled_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// ApprovalVoteRequest is the request body for approve and reject callbacks.
type ApprovalVoteRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Comment string `json:"comment,omitempty"`
}

// DelegateApprovalRequest is the request body for delegating an approval to
// another user.
type DelegateApprovalRequest struct {
	FromUserID string `json:"from_user_id" validate:"required"`
	ToUserID   string `json:"to_user_id"   validate:"required"`
	Comment    string `json:"comment,omitempty"`
}

// CreateTemplateRequest is the request body for storing a workflow template.
type CreateTemplateRequest struct {
	Name        string           `json:"name"     validate:"required,min=3,max=255"`
	Description string           `json:"description"`
	Category    string           `json:"category,omitempty"`
	Type        string           `json:"type"     validate:"required,oneof=automation approval notification integration custom"`
	Tags        []string         `json:"tags,omitempty"`
	Steps       []StepRequest    `json:"steps,omitempty"`
	Triggers    []TriggerRequest `json:"triggers,omitempty"`
	CreatedBy   string           `json:"created_by,omitempty"`
}

func (r CreateTemplateRequest) ToModel() *models.WorkflowTemplate {
	template := &models.WorkflowTemplate{
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Type:        models.WorkflowType(r.Type),
		Tags:        r.Tags,
		Steps:       make([]*models.WorkflowStep, 0, len(r.Steps)),
		Triggers:    make([]*models.WorkflowTrigger, 0, len(r.Triggers)),
		CreatedBy:   r.CreatedBy,
	}

	for _, step := range r.Steps {
		template.Steps = append(template.Steps, step.ToModel())
	}

	for _, trigger := range r.Triggers {
		template.Triggers = append(template.Triggers, trigger.ToModel())
	}

	return template
}

// InstantiateTemplateRequest is the request body for creating a workflow
// from a stored template.
type InstantiateTemplateRequest struct {
	WorkspaceID string `json:"workspace_id" validate:"required"`
	ProjectID   string `json:"project_id,omitempty"`
	Name        string `json:"name,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}
