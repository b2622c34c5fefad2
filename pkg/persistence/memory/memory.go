// Package memory provides an in-memory persistence implementation backed by
// plain maps. It is the development and test backend; everything stored is
// deep-copied on the way in and out so callers never share mutable state
// with the store.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence"
)

// Persistence implements persistence.Persistence with in-memory maps.
type Persistence struct {
	workflows  *WorkflowRepository
	executions *ExecutionRepository
	approvals  *ApprovalRepository
	templates  *TemplateRepository
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  &WorkflowRepository{items: make(map[string]*models.Workflow)},
		executions: NewExecutionRepository(),
		approvals:  &ApprovalRepository{items: make(map[string]*models.ApprovalRequest)},
		templates:  &TemplateRepository{items: make(map[string]*models.WorkflowTemplate)},
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository   { return p.workflows }
func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executions }
func (p *Persistence) Approvals() persistence.ApprovalRepository   { return p.approvals }
func (p *Persistence) Templates() persistence.TemplateRepository   { return p.templates }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }

func (p *Persistence) Close(_ context.Context) error { return nil }

// clone deep-copies a model through a JSON round trip. The models carry only
// JSON-safe types, so a marshal failure cannot happen with well-formed input;
// on the impossible path the original is returned rather than panicking.
func clone[T any](src *T) *T {
	if src == nil {
		return nil
	}

	data, err := json.Marshal(src)
	if err != nil {
		return src
	}

	out := new(T)

	err = json.Unmarshal(data, out)
	if err != nil {
		return src
	}

	return out
}

// WorkflowRepository stores workflow definitions keyed by id.
type WorkflowRepository struct {
	mu    sync.RWMutex
	items map[string]*models.Workflow
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return persistence.NewStorageError("Save", "workflow", "", persistence.ErrInvalidID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[workflow.ID] = clone(workflow)

	return nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflow, ok := r.items[id]
	if !ok {
		return nil, nil
	}

	return clone(workflow), nil
}

func (r *WorkflowRepository) List(_ context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(r.items))

	for _, workflow := range r.items {
		if !matchWorkflow(workflow, filter) {
			continue
		}

		workflows = append(workflows, clone(workflow))
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return persistence.NewStorageError("Delete", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	delete(r.items, id)

	return nil
}

func matchWorkflow(workflow *models.Workflow, filter persistence.WorkflowFilter) bool {
	if filter.WorkspaceID != "" && workflow.WorkspaceID != filter.WorkspaceID {
		return false
	}

	if filter.Status != "" && workflow.Status != filter.Status {
		return false
	}

	if filter.Type != "" && workflow.Type != filter.Type {
		return false
	}

	if filter.Tag != "" {
		found := false

		for _, tag := range workflow.Tags {
			if tag == filter.Tag {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}

// ExecutionRepository stores executions plus their append-only step history.
type ExecutionRepository struct {
	mu    sync.RWMutex
	items map[string]*models.WorkflowExecution
	steps map[string][]*models.StepExecution
}

func NewExecutionRepository() *ExecutionRepository {
	return &ExecutionRepository{
		items: make(map[string]*models.WorkflowExecution),
		steps: make(map[string][]*models.StepExecution),
	}
}

func (r *ExecutionRepository) Save(_ context.Context, execution *models.WorkflowExecution) error {
	if execution == nil || execution.ID == "" {
		return persistence.NewStorageError("Save", "execution", "", persistence.ErrInvalidID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[execution.ID] = clone(execution)

	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, ok := r.items[id]
	if !ok {
		return nil, nil
	}

	return clone(execution), nil
}

func (r *ExecutionRepository) List(_ context.Context, filter persistence.ExecutionFilter) ([]*models.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executions := make([]*models.WorkflowExecution, 0)

	for _, execution := range r.items {
		if !matchExecution(execution, filter) {
			continue
		}

		executions = append(executions, clone(execution))
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if filter.Limit > 0 && len(executions) > filter.Limit {
		executions = executions[:filter.Limit]
	}

	return executions, nil
}

// SaveStep upserts one step attempt by id, keeping first-write order. The
// same record is saved once when the attempt starts and again when it
// finishes.
func (r *ExecutionRepository) SaveStep(_ context.Context, step *models.StepExecution) error {
	if step == nil || step.ID == "" || step.ExecutionID == "" {
		return persistence.NewStorageError("SaveStep", "step execution", "", persistence.ErrInvalidID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.steps[step.ExecutionID]

	for i, existing := range history {
		if existing.ID == step.ID {
			history[i] = clone(step)

			return nil
		}
	}

	r.steps[step.ExecutionID] = append(history, clone(step))

	return nil
}

func (r *ExecutionRepository) StepsByExecution(_ context.Context, executionID string) ([]*models.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.steps[executionID]
	steps := make([]*models.StepExecution, 0, len(history))

	for _, step := range history {
		steps = append(steps, clone(step))
	}

	return steps, nil
}

func matchExecution(execution *models.WorkflowExecution, filter persistence.ExecutionFilter) bool {
	if filter.WorkflowID != "" && execution.WorkflowID != filter.WorkflowID {
		return false
	}

	if filter.Status != "" && execution.Status != filter.Status {
		return false
	}

	if filter.WaitingBefore != nil {
		if execution.Status != models.ExecutionStatusWaiting || execution.WaitUntil == nil {
			return false
		}

		if execution.WaitUntil.After(*filter.WaitingBefore) {
			return false
		}
	}

	return true
}

// ApprovalRepository stores approval requests keyed by id.
type ApprovalRepository struct {
	mu    sync.RWMutex
	items map[string]*models.ApprovalRequest
}

func (r *ApprovalRepository) Save(_ context.Context, request *models.ApprovalRequest) error {
	if request == nil || request.ID == "" {
		return persistence.NewStorageError("Save", "approval request", "", persistence.ErrInvalidID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[request.ID] = clone(request)

	return nil
}

func (r *ApprovalRepository) GetByID(_ context.Context, id string) (*models.ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	request, ok := r.items[id]
	if !ok {
		return nil, nil
	}

	return clone(request), nil
}

func (r *ApprovalRepository) List(_ context.Context, filter persistence.ApprovalFilter) ([]*models.ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requests := make([]*models.ApprovalRequest, 0)

	for _, request := range r.items {
		if !matchApproval(request, filter) {
			continue
		}

		requests = append(requests, clone(request))
	}

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})

	return requests, nil
}

func matchApproval(request *models.ApprovalRequest, filter persistence.ApprovalFilter) bool {
	if filter.ExecutionID != "" && request.ExecutionID != filter.ExecutionID {
		return false
	}

	if filter.Status != "" && request.Status != filter.Status {
		return false
	}

	if filter.Approver != "" && !request.HasApprover(filter.Approver) {
		return false
	}

	if filter.DueBefore != nil && !request.DueAt.Before(*filter.DueBefore) {
		return false
	}

	return true
}

// TemplateRepository stores workflow templates keyed by id.
type TemplateRepository struct {
	mu    sync.RWMutex
	items map[string]*models.WorkflowTemplate
}

func (r *TemplateRepository) Save(_ context.Context, template *models.WorkflowTemplate) error {
	if template == nil || template.ID == "" {
		return persistence.NewStorageError("Save", "template", "", persistence.ErrInvalidID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[template.ID] = clone(template)

	return nil
}

func (r *TemplateRepository) GetByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	template, ok := r.items[id]
	if !ok {
		return nil, nil
	}

	return clone(template), nil
}

func (r *TemplateRepository) List(_ context.Context, category string) ([]*models.WorkflowTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	templates := make([]*models.WorkflowTemplate, 0, len(r.items))

	for _, template := range r.items {
		if category != "" && template.Category != category {
			continue
		}

		templates = append(templates, clone(template))
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})

	return templates, nil
}

func (r *TemplateRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return persistence.NewStorageError("Delete", "template", id, persistence.ErrTemplateNotFound)
	}

	delete(r.items, id)

	return nil
}
