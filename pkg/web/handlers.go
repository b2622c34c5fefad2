// Package web provides HTTP handlers and REST API endpoints for workflow management.
package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/tavolohq/flowkit/pkg/approval"
	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence"
	"github.com/tavolohq/flowkit/pkg/registry"
	"github.com/tavolohq/flowkit/pkg/services"
	"github.com/tavolohq/flowkit/pkg/workflow"
)

// APIHandlers bundles the HTTP endpoints of the facade. Definition
// management goes through the services, runtime operations through the
// executor and the approval coordinator.
type APIHandlers struct {
	workflowService *services.Workflow
	templateService *services.Template
	statsService    *services.Stats
	approvalService *approval.Service
	executor        *workflow.Executor
	persistence     persistence.Persistence
	validator       *validator.Validate
	registry        *registry.Registry
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	templateService *services.Template,
	statsService *services.Stats,
	approvalService *approval.Service,
	executor *workflow.Executor,
	persistence persistence.Persistence,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		templateService: templateService,
		statsService:    statsService,
		approvalService: approvalService,
		executor:        executor,
		persistence:     persistence,
		validator:       validator,
		registry:        registry,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flowkit API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Flowkit API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// GetRegistry lists the action types and trigger sources known to this
// process, so clients can discover what a definition may reference.
func (h *APIHandlers) GetRegistry(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"action_types":    h.registry.ActionTypes(),
		"trigger_sources": h.registry.TriggerSources(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req := services.ListWorkflowsRequest{
		WorkspaceID: c.Query("workspace_id"),
		Status:      models.WorkflowStatus(c.Query("status")),
		Type:        models.WorkflowType(c.Query("type")),
		Tag:         c.Query("tag"),
	}

	workflows, err := h.workflowService.List(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	found, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Type != nil {
		existing.Type = models.WorkflowType(*req.Type)
	}

	if req.Tags != nil {
		existing.Tags = req.Tags
	}

	if req.Steps != nil {
		steps := make([]*models.WorkflowStep, 0, len(req.Steps))
		for _, step := range req.Steps {
			steps = append(steps, step.ToModel())
		}

		existing.Steps = steps
	}

	if req.Triggers != nil {
		triggers := make([]*models.WorkflowTrigger, 0, len(req.Triggers))
		for _, trigger := range req.Triggers {
			triggers = append(triggers, trigger.ToModel())
		}

		existing.Triggers = triggers
	}

	updated, err := h.workflowService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	err := h.workflowService.Delete(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	return h.transitionWorkflow(c, h.workflowService.Activate)
}

func (h *APIHandlers) PauseWorkflow(c fiber.Ctx) error {
	return h.transitionWorkflow(c, h.workflowService.Pause)
}

func (h *APIHandlers) ArchiveWorkflow(c fiber.Ctx) error {
	return h.transitionWorkflow(c, h.workflowService.Archive)
}

func (h *APIHandlers) transitionWorkflow(c fiber.Ctx, transition func(ctx context.Context, id string) (*models.Workflow, error)) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	updated, err := transition(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) CreateStep(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req StepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.workflowService.AddStep(c.Context(), id, req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(step)
}

func (h *APIHandlers) UpdateStep(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Workflow ID and step ID are required")
	}

	var req StepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.workflowService.UpdateStep(c.Context(), id, stepID, req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) DeleteStep(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Workflow ID and step ID are required")
	}

	err := h.workflowService.RemoveStep(c.Context(), id, stepID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateTrigger(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	trigger, err := h.workflowService.AddTrigger(c.Context(), id, req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(trigger)
}

func (h *APIHandlers) UpdateTrigger(c fiber.Ctx) error {
	id := c.Params("id")
	triggerID := c.Params("triggerId")

	if id == "" || triggerID == "" {
		return badRequest(c, "Workflow ID and trigger ID are required")
	}

	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	trigger, err := h.workflowService.UpdateTrigger(c.Context(), id, triggerID, req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(trigger)
}

func (h *APIHandlers) DeleteTrigger(c fiber.Ctx) error {
	id := c.Params("id")
	triggerID := c.Params("triggerId")

	if id == "" || triggerID == "" {
		return badRequest(c, "Workflow ID and trigger ID are required")
	}

	err := h.workflowService.RemoveTrigger(c.Context(), id, triggerID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// TriggerWorkflow fires a trigger of one workflow. The request either names
// a trigger directly or carries an event to match against the workflow's
// event triggers. A firing the engine declines is reported as 422, not as an
// error.
func (h *APIHandlers) TriggerWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	// The body is optional: a bare POST fires with event matching over an
	// empty payload.
	var req FireTriggerRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	// Resolve the workflow through the service first so unknown IDs map to
	// 404 instead of a declined firing.
	_, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	var execution *models.WorkflowExecution

	if req.TriggerID != "" {
		execution, err = h.executor.FireTrigger(c.Context(), id, req.TriggerID, req.Data, req.TriggeredBy)
	} else {
		execution, err = h.executor.Trigger(c.Context(), id, req.EventType, req.Data, req.TriggeredBy)
	}

	if err != nil {
		return internalError(c, err)
	}

	if execution == nil {
		return notTriggered(c)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

// BroadcastEvent delivers an event to every active workflow and starts an
// execution per matching trigger.
func (h *APIHandlers) BroadcastEvent(c fiber.Ctx) error {
	var req BroadcastEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	executions, err := h.executor.TriggerEvent(c.Context(), req.EventType, req.Data, req.TriggeredBy)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"executions": executions,
		"count":      len(executions),
	})
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	filter := persistence.ExecutionFilter{
		WorkflowID: c.Query("workflow_id"),
		Status:     models.ExecutionStatus(c.Query("status")),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit parameter")
		}

		filter.Limit = limit
	}

	executions, err := h.persistence.Executions().List(c.Context(), filter)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": executions,
		"count":      len(executions),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.persistence.Executions().GetByID(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if execution == nil {
		return notFound(c, "Execution not found")
	}

	return c.JSON(execution)
}

// GetExecutionSteps returns the append-only step attempt history of an
// execution.
func (h *APIHandlers) GetExecutionSteps(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.persistence.Executions().GetByID(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if execution == nil {
		return notFound(c, "Execution not found")
	}

	steps, err := h.persistence.Executions().StepsByExecution(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"execution_id": id,
		"steps":        steps,
		"count":        len(steps),
	})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	var req CancelExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	execution, err := h.executor.CancelExecution(c.Context(), id, req.CancelledBy, req.Reason)
	if err != nil {
		return internalError(c, err)
	}

	if execution == nil {
		return notFound(c, "Execution not found")
	}

	return c.JSON(execution)
}

// GetApprovals lists the pending approval requests a user can vote on.
func (h *APIHandlers) GetApprovals(c fiber.Ctx) error {
	approver := c.Query("approver")
	if approver == "" {
		return badRequest(c, "Approver query parameter is required")
	}

	requests, err := h.approvalService.ListPendingForApprover(c.Context(), approver)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"approvals": requests,
		"count":     len(requests),
	})
}

func (h *APIHandlers) GetApproval(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Approval request ID is required")
	}

	request, err := h.approvalService.GetRequest(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if request == nil {
		return notFound(c, "Approval request not found")
	}

	return c.JSON(request)
}

func (h *APIHandlers) ApproveRequest(c fiber.Ctx) error {
	return h.voteRequest(c, h.approvalService.Approve)
}

func (h *APIHandlers) RejectRequest(c fiber.Ctx) error {
	return h.voteRequest(c, h.approvalService.Reject)
}

// voteRequest handles approve and reject callbacks. A vote the coordinator
// ignored, because the request is already decided or the user is not an
// approver, maps to 409.
func (h *APIHandlers) voteRequest(c fiber.Ctx, vote func(ctx context.Context, requestID, userID, comment string) (*models.ApprovalRequest, bool, error)) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Approval request ID is required")
	}

	var req ApprovalVoteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	request, accepted, err := vote(c.Context(), id, req.UserID, req.Comment)
	if err != nil {
		return internalError(c, err)
	}

	if request == nil {
		return notFound(c, "Approval request not found")
	}

	if !accepted {
		return conflict(c, "vote was not accepted: request already decided or user is not an approver")
	}

	return c.JSON(request)
}

func (h *APIHandlers) DelegateRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Approval request ID is required")
	}

	var req DelegateApprovalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	request, accepted, err := h.approvalService.Delegate(c.Context(), id, req.FromUserID, req.ToUserID, req.Comment)
	if err != nil {
		return internalError(c, err)
	}

	if request == nil {
		return notFound(c, "Approval request not found")
	}

	if !accepted {
		return conflict(c, "delegation was not accepted")
	}

	return c.JSON(request)
}

func (h *APIHandlers) EscalateRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Approval request ID is required")
	}

	request, accepted, err := h.approvalService.Escalate(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if request == nil {
		return notFound(c, "Approval request not found")
	}

	if !accepted {
		return conflict(c, "escalation was not accepted: request not pending or no escalation user configured")
	}

	return c.JSON(request)
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	templates, err := h.templateService.List(c.Context(), c.Query("category"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"templates": templates,
		"count":     len(templates),
	})
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templateService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var req CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.templateService.Create(c.Context(), req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	err := h.templateService.Delete(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// InstantiateTemplate creates a draft workflow from a stored template.
func (h *APIHandlers) InstantiateTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	var req InstantiateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.templateService.Instantiate(c.Context(), id, services.InstantiateRequest{
		WorkspaceID: req.WorkspaceID,
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetStats(c fiber.Ctx) error {
	summary, err := h.statsService.Collect(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(summary)
}

func (h *APIHandlers) GetWorkflowStats(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	summary, err := h.statsService.CollectWorkflow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(summary)
}
