package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence"
)

// Template manages the template catalog and turns stored blueprints into
// live workflow definitions.
type Template struct {
	persistence persistence.Persistence
	workflows   *Workflow
	validator   *validator.Validate
}

// NewTemplate creates a new template service. Instantiated workflows are
// created through the workflow service so they get the same normalization
// and validation as hand-built definitions.
func NewTemplate(persistence persistence.Persistence, workflows *Workflow) *Template {
	return &Template{
		persistence: persistence,
		workflows:   workflows,
		validator:   validator.New(),
	}
}

// Create stores a new template.
func (t *Template) Create(ctx context.Context, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	if template == nil {
		return nil, ErrTemplateNil
	}

	err := t.validator.Struct(template)
	if err != nil {
		return nil, NewValidationError("Create", "INVALID_TEMPLATE", err.Error(), ErrInvalidRequest)
	}

	now := time.Now().UTC()
	template.ID = uuid.New().String()
	template.CreatedAt = now
	template.UpdatedAt = now

	err = t.persistence.Templates().Save(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	return template, nil
}

// FetchByID retrieves a template by its ID.
func (t *Template) FetchByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	template, err := t.persistence.Templates().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if template == nil {
		return nil, ErrTemplateNotFound
	}

	return template, nil
}

// List retrieves templates, optionally narrowed to one category.
func (t *Template) List(ctx context.Context, category string) ([]*models.WorkflowTemplate, error) {
	templates, err := t.persistence.Templates().List(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return templates, nil
}

// Delete removes a template from the catalog. Workflows already instantiated
// from it are not affected.
func (t *Template) Delete(ctx context.Context, id string) error {
	existing, err := t.FetchByID(ctx, id)
	if err != nil {
		return err
	}

	err = t.persistence.Templates().Delete(ctx, existing.ID)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	return nil
}

// InstantiateRequest carries the per-instance fields of a template
// instantiation. Name falls back to the template name when empty.
type InstantiateRequest struct {
	WorkspaceID string `validate:"required"`
	ProjectID   string
	Name        string
	CreatedBy   string
}

// Instantiate builds a draft workflow from a template. Steps and triggers
// get fresh IDs; successor links are remapped onto the new step IDs so the
// instantiated graph routes exactly like the blueprint. Step order and the
// action and trigger type strings are preserved as stored.
func (t *Template) Instantiate(ctx context.Context, templateID string, req InstantiateRequest) (*models.Workflow, error) {
	err := t.validator.Struct(req)
	if err != nil {
		return nil, NewValidationError("Instantiate", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	template, err := t.FetchByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = template.Name
	}

	workflow := &models.Workflow{
		Name:        name,
		Description: template.Description,
		WorkspaceID: req.WorkspaceID,
		ProjectID:   req.ProjectID,
		Type:        template.Type,
		Status:      models.WorkflowStatusDraft,
		Tags:        append([]string(nil), template.Tags...),
		CreatedBy:   req.CreatedBy,
	}

	// First pass assigns fresh IDs, second pass remaps links through them.
	idMap := make(map[string]string, len(template.Steps))

	for _, step := range template.Steps {
		idMap[step.ID] = uuid.New().String()
	}

	workflow.Steps = make([]*models.WorkflowStep, 0, len(template.Steps))

	for _, step := range template.Steps {
		copied := copyStep(step)
		copied.ID = idMap[step.ID]
		copied.NextStepID = idMap[step.NextStepID]
		copied.OnTrueStepID = idMap[step.OnTrueStepID]
		copied.OnFalseStepID = idMap[step.OnFalseStepID]

		workflow.Steps = append(workflow.Steps, copied)
	}

	workflow.Triggers = make([]*models.WorkflowTrigger, 0, len(template.Triggers))

	for _, trigger := range template.Triggers {
		copied := copyTrigger(trigger)
		copied.ID = uuid.New().String()

		workflow.Triggers = append(workflow.Triggers, copied)
	}

	created, err := t.workflows.Create(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate template %s: %w", templateID, err)
	}

	return created, nil
}

// copyStep deep-copies a step so instantiated workflows never share payload
// maps or slices with the template.
func copyStep(step *models.WorkflowStep) *models.WorkflowStep {
	copied := &models.WorkflowStep{
		Name:          step.Name,
		Type:          step.Type,
		Position:      step.Position,
		DelaySeconds:  step.DelaySeconds,
		SubWorkflowID: step.SubWorkflowID,
		Enabled:       step.Enabled,
	}

	if step.Action != nil {
		copied.Action = &models.WorkflowAction{
			ID:             uuid.New().String(),
			Type:           step.Action.Type,
			Name:           step.Action.Name,
			Description:    step.Action.Description,
			Configuration:  copyMap(step.Action.Configuration),
			RetryCount:     step.Action.RetryCount,
			TimeoutSeconds: step.Action.TimeoutSeconds,
			OnError:        step.Action.OnError,
		}
	}

	if step.Approval != nil {
		copied.Approval = &models.ApprovalPolicy{
			Approvers:         append([]string(nil), step.Approval.Approvers...),
			Type:              step.Approval.Type,
			RequiredApprovals: step.Approval.RequiredApprovals,
			TimeoutHours:      step.Approval.TimeoutHours,
			EscalationUser:    step.Approval.EscalationUser,
			AllowDelegation:   step.Approval.AllowDelegation,
		}
	}

	if len(step.Conditions) > 0 {
		copied.Conditions = make([]*models.WorkflowCondition, 0, len(step.Conditions))
		for _, condition := range step.Conditions {
			copiedCondition := *condition
			copied.Conditions = append(copied.Conditions, &copiedCondition)
		}
	}

	return copied
}

func copyTrigger(trigger *models.WorkflowTrigger) *models.WorkflowTrigger {
	copied := &models.WorkflowTrigger{
		Name:          trigger.Name,
		Type:          trigger.Type,
		EventType:     trigger.EventType,
		Configuration: copyMap(trigger.Configuration),
		Enabled:       trigger.Enabled,
	}

	if len(trigger.Conditions) > 0 {
		copied.Conditions = make([]*models.WorkflowCondition, 0, len(trigger.Conditions))
		for _, condition := range trigger.Conditions {
			copiedCondition := *condition
			copied.Conditions = append(copied.Conditions, &copiedCondition)
		}
	}

	return copied
}

func copyMap(original map[string]any) map[string]any {
	if original == nil {
		return nil
	}

	result := make(map[string]any, len(original))
	for key, value := range original {
		result[key] = value
	}

	return result
}
