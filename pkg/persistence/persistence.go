// Package persistence abstracts storage for workflow definitions, execution
// state, approval requests and templates.
package persistence

import (
	"context"
	"time"

	"github.com/tavolohq/flowkit/pkg/models"
)

// Persistence bundles the repositories of one storage backend. Lookups
// return (nil, nil) when an entity does not exist; absence is a result, not
// an error.
type Persistence interface {
	Workflows() WorkflowRepository
	Executions() ExecutionRepository
	Approvals() ApprovalRepository
	Templates() TemplateRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowFilter narrows workflow listings. Zero fields match everything.
type WorkflowFilter struct {
	WorkspaceID string
	Status      models.WorkflowStatus
	Type        models.WorkflowType
	Tag         string
}

// ExecutionFilter narrows execution listings. WaitingBefore selects waiting
// executions whose wait deadline elapsed; the scheduler uses it to resume
// delays.
type ExecutionFilter struct {
	WorkflowID    string
	Status        models.ExecutionStatus
	WaitingBefore *time.Time
	Limit         int
}

// ApprovalFilter narrows approval request listings. DueBefore selects
// requests whose due time passed; combined with a pending status it yields
// the overdue set.
type ApprovalFilter struct {
	ExecutionID string
	Approver    string
	Status      models.ApprovalStatus
	DueBefore   *time.Time
}

type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context, filter WorkflowFilter) ([]*models.Workflow, error)
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores executions and their step attempt history.
// Executions are never deleted, only transitioned to terminal states.
type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	List(ctx context.Context, filter ExecutionFilter) ([]*models.WorkflowExecution, error)

	SaveStep(ctx context.Context, step *models.StepExecution) error
	StepsByExecution(ctx context.Context, executionID string) ([]*models.StepExecution, error)
}

type ApprovalRepository interface {
	Save(ctx context.Context, request *models.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error)
	List(ctx context.Context, filter ApprovalFilter) ([]*models.ApprovalRequest, error)
}

type TemplateRepository interface {
	Save(ctx context.Context, template *models.WorkflowTemplate) error
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	List(ctx context.Context, category string) ([]*models.WorkflowTemplate, error)
	Delete(ctx context.Context, id string) error
}
