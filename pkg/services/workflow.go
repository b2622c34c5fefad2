package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence"
	"github.com/tavolohq/flowkit/pkg/registry"
)

// Workflow manages workflow definitions: CRUD, step and trigger edits, and
// the draft/active/paused/archived lifecycle. Every definition edit bumps the
// version; lifecycle transitions do not. Archived definitions reject every
// mutation with a conflict error.
type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
}

// NewWorkflow creates a new workflow service. The registry is used to check
// action configurations against their handler schemas at definition time; a
// nil registry skips those checks.
func NewWorkflow(persistence persistence.Persistence, registry *registry.Registry) *Workflow {
	return &Workflow{
		persistence: persistence,
		registry:    registry,
		validator:   validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest filters a workflow listing. Zero fields match
// everything.
type ListWorkflowsRequest struct {
	WorkspaceID string
	Status      models.WorkflowStatus
	Type        models.WorkflowType
	Tag         string
}

// List retrieves the workflows matching the request.
func (w *Workflow) List(ctx context.Context, req ListWorkflowsRequest) ([]*models.Workflow, error) {
	workflows, err := w.persistence.Workflows().List(ctx, persistence.WorkflowFilter{
		WorkspaceID: req.WorkspaceID,
		Status:      req.Status,
		Type:        req.Type,
		Tag:         req.Tag,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// Create adds a new workflow definition. Missing step, trigger and action IDs
// are assigned; the definition starts as a draft at version 1 unless a status
// was provided.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	if workflow.Version <= 0 {
		workflow.Version = 1
	}

	w.normalizeDefinition(workflow)

	err := w.validateDefinition(workflow)
	if err != nil {
		return nil, err
	}

	err = w.persistence.Workflows().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update replaces the definition of an existing workflow and bumps its
// version. Identity, creation metadata and status are preserved from the
// stored definition; status changes go through Activate, Pause and Archive.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if existing.IsArchived() {
		return nil, ErrWorkflowArchived
	}

	workflow.ID = workflowID
	workflow.Status = existing.Status
	workflow.Version = existing.Version + 1
	workflow.CreatedBy = existing.CreatedBy
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	if workflow.WorkspaceID == "" {
		workflow.WorkspaceID = existing.WorkspaceID
	}

	w.normalizeDefinition(workflow)

	err = w.validateDefinition(workflow)
	if err != nil {
		return nil, err
	}

	err = w.persistence.Workflows().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow definition. Archived workflows cannot be deleted;
// archiving is the terminal state that keeps execution history resolvable.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return err
	}

	if existing.IsArchived() {
		return ErrWorkflowArchived
	}

	err = w.persistence.Workflows().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// Activate makes a draft or paused workflow executable. The definition is
// revalidated first so a workflow cannot go live with a broken step graph.
func (w *Workflow) Activate(ctx context.Context, workflowID string) (*models.Workflow, error) {
	return w.transition(ctx, workflowID, models.WorkflowStatusActive)
}

// Pause makes an active workflow temporarily non-executable. Running
// executions are not touched.
func (w *Workflow) Pause(ctx context.Context, workflowID string) (*models.Workflow, error) {
	return w.transition(ctx, workflowID, models.WorkflowStatusPaused)
}

// Archive freezes a workflow definition. Execution history remains
// queryable; the definition itself accepts no further edits.
func (w *Workflow) Archive(ctx context.Context, workflowID string) (*models.Workflow, error) {
	return w.transition(ctx, workflowID, models.WorkflowStatusArchived)
}

func (w *Workflow) transition(ctx context.Context, workflowID string, target models.WorkflowStatus) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	// Transitions are idempotent.
	if workflow.Status == target {
		return workflow, nil
	}

	if workflow.IsArchived() {
		return nil, ErrWorkflowArchived
	}

	switch target {
	case models.WorkflowStatusActive:
		if len(workflow.Steps) == 0 {
			return nil, ErrNoSteps
		}

		err = w.validateDefinition(workflow)
		if err != nil {
			return nil, err
		}
	case models.WorkflowStatusPaused:
		if workflow.Status != models.WorkflowStatusActive {
			return nil, NewValidationError(
				"transition",
				"INVALID_TRANSITION",
				fmt.Sprintf("cannot pause a %s workflow", workflow.Status),
				ErrInvalidTransition,
			)
		}
	case models.WorkflowStatusArchived:
		// Any non-archived workflow may be archived.
	default:
		return nil, NewValidationError(
			"transition",
			"INVALID_TRANSITION",
			fmt.Sprintf("unsupported target status %q", target),
			ErrInvalidTransition,
		)
	}

	workflow.Status = target
	workflow.UpdatedAt = time.Now().UTC()

	err = w.persistence.Workflows().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// AddStep appends a step to the workflow definition. The step gets an ID when
// it has none; the workflow version is bumped.
func (w *Workflow) AddStep(ctx context.Context, workflowID string, step *models.WorkflowStep) (*models.WorkflowStep, error) {
	workflow, err := w.editableWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.Steps = append(workflow.Steps, step)

	err = w.saveEdit(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return step, nil
}

// UpdateStep replaces a step of the workflow definition in place.
func (w *Workflow) UpdateStep(ctx context.Context, workflowID, stepID string, step *models.WorkflowStep) (*models.WorkflowStep, error) {
	workflow, err := w.editableWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	replaced := false

	for i, existing := range workflow.Steps {
		if existing.ID == stepID {
			step.ID = stepID
			workflow.Steps[i] = step
			replaced = true

			break
		}
	}

	if !replaced {
		return nil, ErrStepNotFound
	}

	err = w.saveEdit(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return step, nil
}

// RemoveStep deletes a step from the workflow definition. Links on other
// steps that pointed at the removed step are cleared, so routing falls back
// to positional order instead of dangling.
func (w *Workflow) RemoveStep(ctx context.Context, workflowID, stepID string) error {
	workflow, err := w.editableWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}

	steps := make([]*models.WorkflowStep, 0, len(workflow.Steps))
	removed := false

	for _, step := range workflow.Steps {
		if step.ID == stepID {
			removed = true

			continue
		}

		steps = append(steps, step)
	}

	if !removed {
		return ErrStepNotFound
	}

	for _, step := range steps {
		if step.NextStepID == stepID {
			step.NextStepID = ""
		}

		if step.OnTrueStepID == stepID {
			step.OnTrueStepID = ""
		}

		if step.OnFalseStepID == stepID {
			step.OnFalseStepID = ""
		}
	}

	workflow.Steps = steps

	return w.saveEdit(ctx, workflow)
}

// AddTrigger appends a trigger to the workflow definition.
func (w *Workflow) AddTrigger(ctx context.Context, workflowID string, trigger *models.WorkflowTrigger) (*models.WorkflowTrigger, error) {
	workflow, err := w.editableWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.Triggers = append(workflow.Triggers, trigger)

	err = w.saveEdit(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return trigger, nil
}

// UpdateTrigger replaces a trigger of the workflow definition in place.
func (w *Workflow) UpdateTrigger(ctx context.Context, workflowID, triggerID string, trigger *models.WorkflowTrigger) (*models.WorkflowTrigger, error) {
	workflow, err := w.editableWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	replaced := false

	for i, existing := range workflow.Triggers {
		if existing.ID == triggerID {
			trigger.ID = triggerID
			workflow.Triggers[i] = trigger
			replaced = true

			break
		}
	}

	if !replaced {
		return nil, ErrTriggerNotFound
	}

	err = w.saveEdit(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return trigger, nil
}

// RemoveTrigger deletes a trigger from the workflow definition.
func (w *Workflow) RemoveTrigger(ctx context.Context, workflowID, triggerID string) error {
	workflow, err := w.editableWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}

	triggers := make([]*models.WorkflowTrigger, 0, len(workflow.Triggers))
	removed := false

	for _, trigger := range workflow.Triggers {
		if trigger.ID == triggerID {
			removed = true

			continue
		}

		triggers = append(triggers, trigger)
	}

	if !removed {
		return ErrTriggerNotFound
	}

	workflow.Triggers = triggers

	return w.saveEdit(ctx, workflow)
}

func (w *Workflow) editableWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.IsArchived() {
		return nil, ErrWorkflowArchived
	}

	return workflow, nil
}

// saveEdit finishes a definition edit: normalize, validate, bump the
// version, persist.
func (w *Workflow) saveEdit(ctx context.Context, workflow *models.Workflow) error {
	w.normalizeDefinition(workflow)

	err := w.validateDefinition(workflow)
	if err != nil {
		return err
	}

	workflow.Version++
	workflow.UpdatedAt = time.Now().UTC()

	err = w.persistence.Workflows().Save(ctx, workflow)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// normalizeDefinition assigns missing IDs and rebinds ownership references.
func (w *Workflow) normalizeDefinition(workflow *models.Workflow) {
	for _, step := range workflow.Steps {
		if step.ID == "" {
			step.ID = uuid.New().String()
		}

		step.WorkflowID = workflow.ID

		if step.Action != nil && step.Action.ID == "" {
			step.Action.ID = uuid.New().String()
		}
	}

	for _, trigger := range workflow.Triggers {
		if trigger.ID == "" {
			trigger.ID = uuid.New().String()
		}

		trigger.WorkflowID = workflow.ID
	}
}

// validateDefinition checks the workflow and each of its steps and triggers:
// struct tags, unique IDs, link integrity, per-type payload presence and
// action configuration schemas.
func (w *Workflow) validateDefinition(workflow *models.Workflow) error {
	err := w.validator.Struct(workflow)
	if err != nil {
		return NewValidationError("validateDefinition", "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	stepIDs := make(map[string]bool, len(workflow.Steps))

	for _, step := range workflow.Steps {
		if stepIDs[step.ID] {
			return NewValidationError(
				"validateDefinition",
				"DUPLICATE_STEP_ID",
				fmt.Sprintf("step id %q appears more than once", step.ID),
				ErrDuplicateStepID,
			)
		}

		stepIDs[step.ID] = true
	}

	triggerIDs := make(map[string]bool, len(workflow.Triggers))

	for _, trigger := range workflow.Triggers {
		if triggerIDs[trigger.ID] {
			return NewValidationError(
				"validateDefinition",
				"DUPLICATE_TRIGGER_ID",
				fmt.Sprintf("trigger id %q appears more than once", trigger.ID),
				ErrDuplicateTriggerID,
			)
		}

		triggerIDs[trigger.ID] = true

		err = w.validator.Struct(trigger)
		if err != nil {
			return NewValidationError("validateDefinition", "INVALID_TRIGGER", err.Error(), ErrInvalidRequest)
		}
	}

	for _, step := range workflow.Steps {
		err = w.validator.Struct(step)
		if err != nil {
			return NewValidationError("validateDefinition", "INVALID_STEP", err.Error(), ErrInvalidRequest)
		}

		for _, link := range []string{step.NextStepID, step.OnTrueStepID, step.OnFalseStepID} {
			if link != "" && !stepIDs[link] {
				return NewValidationError(
					"validateDefinition",
					"UNKNOWN_STEP_LINK",
					fmt.Sprintf("step %q links to unknown step %q", step.ID, link),
					ErrUnknownStepLink,
				)
			}
		}

		switch step.Type {
		case models.StepTypeAction:
			if step.Action == nil {
				return NewValidationError(
					"validateDefinition",
					"MISSING_ACTION",
					fmt.Sprintf("action step %q has no action", step.ID),
					ErrMissingStepPayload,
				)
			}
		case models.StepTypeApproval:
			if step.Approval == nil {
				return NewValidationError(
					"validateDefinition",
					"MISSING_APPROVAL_POLICY",
					fmt.Sprintf("approval step %q has no approval policy", step.ID),
					ErrMissingStepPayload,
				)
			}
		case models.StepTypeSubWorkflow:
			if step.SubWorkflowID == "" {
				return NewValidationError(
					"validateDefinition",
					"MISSING_SUB_WORKFLOW",
					fmt.Sprintf("sub-workflow step %q names no workflow", step.ID),
					ErrMissingStepPayload,
				)
			}
		}

		if step.Action != nil && w.registry != nil {
			err = w.registry.ValidateActionConfig(step.Action)
			if err != nil {
				return NewValidationError("validateDefinition", "INVALID_ACTION_CONFIG", err.Error(), ErrInvalidActionConfig)
			}
		}
	}

	return nil
}
