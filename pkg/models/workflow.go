// Package models defines the core domain entities for workflow automation:
// workflow definitions, steps, triggers, executions and approval requests.
package models

import (
	"sort"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not executable
	WorkflowStatusActive   WorkflowStatus = "active"   // Executable
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Temporarily not executable
	WorkflowStatusArchived WorkflowStatus = "archived" // Frozen, history remains queryable
)

// WorkflowType categorizes what a workflow automates.
type WorkflowType string

const (
	WorkflowTypeAutomation   WorkflowType = "automation"
	WorkflowTypeApproval     WorkflowType = "approval"
	WorkflowTypeNotification WorkflowType = "notification"
	WorkflowTypeIntegration  WorkflowType = "integration"
	WorkflowTypeCustom       WorkflowType = "custom"
)

// Workflow is a named, versioned automation definition owned by a workspace.
// Only active workflows are eligible for execution.
type Workflow struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"         validate:"required,min=3,max=255"`
	Description string             `json:"description"`
	WorkspaceID string             `json:"workspace_id" validate:"required"`
	ProjectID   string             `json:"project_id,omitempty"`
	Type        WorkflowType       `json:"type"         validate:"required,oneof=automation approval notification integration custom"`
	Status      WorkflowStatus     `json:"status"`
	Version     int                `json:"version"`
	Tags        []string           `json:"tags,omitempty"`
	Steps       []*WorkflowStep    `json:"steps"`
	Triggers    []*WorkflowTrigger `json:"triggers"`
	CreatedBy   string             `json:"created_by"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// IsExecutable reports whether executions may be started for this workflow.
func (w *Workflow) IsExecutable() bool {
	return w.Status == WorkflowStatusActive
}

// IsArchived reports whether the definition is frozen.
func (w *Workflow) IsArchived() bool {
	return w.Status == WorkflowStatusArchived
}

// StepByID returns the step with the given ID, or nil when absent.
func (w *Workflow) StepByID(stepID string) *WorkflowStep {
	for _, step := range w.Steps {
		if step.ID == stepID {
			return step
		}
	}

	return nil
}

// TriggerByID returns the trigger with the given ID, or nil when absent.
func (w *Workflow) TriggerByID(triggerID string) *WorkflowTrigger {
	for _, trigger := range w.Triggers {
		if trigger.ID == triggerID {
			return trigger
		}
	}

	return nil
}

// OrderedSteps returns the steps sorted by position. The sort is stable so
// steps sharing a position keep their definition order.
func (w *Workflow) OrderedSteps() []*WorkflowStep {
	ordered := make([]*WorkflowStep, len(w.Steps))
	copy(ordered, w.Steps)

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	return ordered
}

// FirstStep returns the step with the lowest position, or nil when the
// workflow has no steps.
func (w *Workflow) FirstStep() *WorkflowStep {
	ordered := w.OrderedSteps()
	if len(ordered) == 0 {
		return nil
	}

	return ordered[0]
}

// StepAfter returns the positional successor of the given step, or nil when
// the step is last or unknown. Explicit successor links on the step itself
// take precedence over this fallback.
func (w *Workflow) StepAfter(stepID string) *WorkflowStep {
	ordered := w.OrderedSteps()

	for i, step := range ordered {
		if step.ID == stepID {
			if i+1 < len(ordered) {
				return ordered[i+1]
			}

			return nil
		}
	}

	return nil
}
