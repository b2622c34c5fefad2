// Package workflow implements the execution engine: starting executions,
// running single steps, resolving successors and driving executions to a
// terminal status. The engine exposes primitives only. It holds no timers
// and no background loops; delays and approvals park the execution as
// waiting and an external driver re-enters through Resume.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tavolohq/flowkit/pkg/approval"
	"github.com/tavolohq/flowkit/pkg/dispatch"
	"github.com/tavolohq/flowkit/pkg/eventbus"
	"github.com/tavolohq/flowkit/pkg/events"
	"github.com/tavolohq/flowkit/pkg/metrics"
	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence"
)

// Executor runs workflow executions. All state mutations for one execution
// are serialized behind a per-execution lock; steps of different executions
// run in parallel freely.
type Executor struct {
	persistence persistence.Persistence
	dispatcher  *dispatch.Dispatcher
	approvals   *approval.Service
	eventBus    eventbus.EventPublisher
	matcher     *TriggerMatcher
	logger      *slog.Logger
	metrics     *metrics.Recorder
	locks       sync.Map
}

func NewExecutor(
	p persistence.Persistence,
	dispatcher *dispatch.Dispatcher,
	approvals *approval.Service,
	bus eventbus.EventPublisher,
	logger *slog.Logger,
	recorder *metrics.Recorder,
) *Executor {
	return &Executor{
		persistence: p,
		dispatcher:  dispatcher,
		approvals:   approvals,
		eventBus:    bus,
		matcher:     NewTriggerMatcher(logger),
		logger:      logger.With("module", "executor"),
		metrics:     recorder,
	}
}

// StartExecution begins a run of an active workflow, seeded at its first
// step by position. Unknown, inactive and empty workflows yield nil without
// error; callers check for absence.
func (e *Executor) StartExecution(ctx context.Context, workflowID string, triggerType models.TriggerType, triggeredBy string, input map[string]any) (*models.WorkflowExecution, error) {
	workflow, err := e.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	if workflow == nil {
		e.logger.WarnContext(ctx, "Cannot start execution, workflow not found", "workflow_id", workflowID)

		return nil, nil
	}

	if !workflow.IsExecutable() {
		e.logger.WarnContext(ctx, "Cannot start execution, workflow is not active",
			"workflow_id", workflowID, "status", workflow.Status)

		return nil, nil
	}

	first := workflow.FirstStep()
	if first == nil {
		e.logger.WarnContext(ctx, "Workflow has no steps to execute", "workflow_id", workflowID)

		return nil, nil
	}

	if input == nil {
		input = make(map[string]any)
	}

	execution := &models.WorkflowExecution{
		ID:            uuid.New().String(),
		WorkflowID:    workflow.ID,
		Status:        models.ExecutionStatusRunning,
		TriggerType:   triggerType,
		TriggeredBy:   triggeredBy,
		CurrentStepID: first.ID,
		Context:       input,
		Variables:     make(map[string]any),
		StartedAt:     time.Now().UTC(),
	}

	err = e.persistence.Executions().Save(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	e.logger.InfoContext(ctx, "Started workflow execution",
		"workflow_id", workflow.ID, "execution_id", execution.ID,
		"trigger_type", triggerType, "first_step_id", first.ID)
	e.metrics.RecordExecutionStarted(string(triggerType))

	startedEvent := events.ExecutionStarted{
		BaseEvent:    events.NewBaseEvent(events.ExecutionStartedEvent, workflow.ID),
		ExecutionID:  execution.ID,
		WorkflowName: workflow.Name,
		TriggerType:  triggerType,
		TriggeredBy:  triggeredBy,
		Context:      input,
	}
	e.publish(ctx, execution.ID, startedEvent)
	e.publishStepAvailable(ctx, execution, first)

	return execution, nil
}

// RunStep executes one step of an execution and records the attempt. The
// returned StepExecution is nil when there was nothing to run: unknown ids,
// disabled steps or an execution already in a terminal status.
//
// A failed attempt does not fail the owning execution; that transition
// belongs to the caller.
func (e *Executor) RunStep(ctx context.Context, executionID, stepID string) (*models.StepExecution, error) {
	lock := e.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	execution, workflow, err := e.loadExecution(ctx, executionID)
	if err != nil || execution == nil || workflow == nil {
		return nil, err
	}

	if execution.IsTerminal() {
		e.logger.WarnContext(ctx, "Ignoring step run on finished execution",
			"execution_id", executionID, "status", execution.Status)

		return nil, nil
	}

	step := workflow.StepByID(stepID)
	if step == nil {
		e.logger.WarnContext(ctx, "Step not found in workflow",
			"workflow_id", workflow.ID, "step_id", stepID)

		return nil, nil
	}

	if !step.Enabled {
		e.logger.InfoContext(ctx, "Step is disabled, nothing to run",
			"execution_id", executionID, "step_id", stepID)

		return nil, nil
	}

	data := execution.EvaluationContext()
	stepExec := &models.StepExecution{
		ID:          uuid.New().String(),
		ExecutionID: execution.ID,
		StepID:      step.ID,
		StepType:    step.Type,
		Status:      models.ExecutionStatusRunning,
		Input:       data,
		StartedAt:   time.Now().UTC(),
	}

	switch step.Type {
	case models.StepTypeAction:
		e.runActionStep(ctx, execution, step, stepExec, data)
	case models.StepTypeCondition:
		result := models.EvaluateConditions(step.Conditions, data)
		stepExec.Complete(map[string]any{"condition_result": result}, time.Now().UTC())
	case models.StepTypeDelay:
		e.runDelayStep(ctx, execution, step, stepExec)
	case models.StepTypeApproval:
		e.runApprovalStep(ctx, workflow, execution, step, stepExec)
	default:
		// loop, parallel and sub_workflow are link-routing extension points.
		stepExec.Complete(nil, time.Now().UTC())
	}

	err = e.persistence.Executions().SaveStep(ctx, stepExec)
	if err != nil {
		return nil, fmt.Errorf("failed to save step execution: %w", err)
	}

	err = e.persistence.Executions().Save(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	e.metrics.RecordStep(string(step.Type), string(stepExec.Status), time.Duration(stepExec.DurationMs)*time.Millisecond)
	e.publishStepResult(ctx, execution, stepExec)

	return stepExec, nil
}

func (e *Executor) runActionStep(ctx context.Context, execution *models.WorkflowExecution, step *models.WorkflowStep, stepExec *models.StepExecution, data map[string]any) {
	result := e.dispatcher.Execute(ctx, step.Action, data)

	if success, ok := result["success"].(bool); ok && !success {
		message, _ := result["error"].(string)
		stepExec.Output = result
		stepExec.Fail(message, time.Now().UTC())

		return
	}

	// A handler may hand back a variable assignment for the execution.
	if name, ok := result["variable"].(string); ok && name != "" {
		execution.SetVariable(name, result["value"])
	}

	stepExec.Complete(result, time.Now().UTC())
}

func (e *Executor) runDelayStep(ctx context.Context, execution *models.WorkflowExecution, step *models.WorkflowStep, stepExec *models.StepExecution) {
	now := time.Now().UTC()
	resumeAt := now.Add(time.Duration(step.DelaySeconds) * time.Second)

	execution.Status = models.ExecutionStatusWaiting
	execution.WaitUntil = &resumeAt

	stepExec.Complete(map[string]any{
		"delay_seconds": step.DelaySeconds,
		"resume_at":     resumeAt.Format(time.RFC3339),
	}, now)

	e.logger.InfoContext(ctx, "Execution waiting on delay",
		"execution_id", execution.ID, "step_id", step.ID, "resume_at", resumeAt)

	waitingEvent := events.ExecutionWaiting{
		BaseEvent:   events.NewBaseEvent(events.ExecutionWaitingEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		StepID:      step.ID,
		Reason:      "delay",
		ResumeAt:    &resumeAt,
	}
	e.publish(ctx, execution.ID, waitingEvent)
}

func (e *Executor) runApprovalStep(ctx context.Context, workflow *models.Workflow, execution *models.WorkflowExecution, step *models.WorkflowStep, stepExec *models.StepExecution) {
	request, err := e.approvals.CreateRequest(ctx, workflow, execution, step)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to create approval request",
			"execution_id", execution.ID, "step_id", step.ID, "error", err)
		stepExec.Fail(err.Error(), time.Now().UTC())

		return
	}

	execution.Status = models.ExecutionStatusWaiting
	execution.ApprovalRequestID = request.ID

	stepExec.Complete(map[string]any{"approval_request_id": request.ID}, time.Now().UTC())

	e.logger.InfoContext(ctx, "Execution waiting on approval",
		"execution_id", execution.ID, "step_id", step.ID, "request_id", request.ID)

	waitingEvent := events.ExecutionWaiting{
		BaseEvent:         events.NewBaseEvent(events.ExecutionWaitingEvent, execution.WorkflowID),
		ExecutionID:       execution.ID,
		StepID:            step.ID,
		Reason:            "approval",
		ApprovalRequestID: request.ID,
	}
	e.publish(ctx, execution.ID, waitingEvent)
}

// NextStep resolves the successor of a step. The explicit link wins; a
// condition step picks its true or false branch from conditionResult. Only
// an empty link falls back to the next step in position order, so a dangling
// link id ends the path rather than jumping to an unrelated step.
func (e *Executor) NextStep(workflow *models.Workflow, step *models.WorkflowStep, conditionResult bool) *models.WorkflowStep {
	if step == nil {
		return nil
	}

	successorID := step.SuccessorID(conditionResult)
	if successorID != "" {
		return workflow.StepByID(successorID)
	}

	return workflow.StepAfter(step.ID)
}

// Advance moves a running execution past fromStep: either onto the next
// step, published as available for a worker, or to completion when no
// successor resolves.
func (e *Executor) Advance(ctx context.Context, executionID, fromStepID string, conditionResult bool) (*models.WorkflowExecution, error) {
	lock := e.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	execution, workflow, err := e.loadExecution(ctx, executionID)
	if err != nil || execution == nil || workflow == nil {
		return nil, err
	}

	if execution.Status != models.ExecutionStatusRunning {
		e.logger.WarnContext(ctx, "Ignoring advance on execution that is not running",
			"execution_id", executionID, "status", execution.Status)

		return execution, nil
	}

	step := workflow.StepByID(fromStepID)
	if step == nil {
		e.logger.WarnContext(ctx, "Cannot advance from unknown step",
			"workflow_id", workflow.ID, "step_id", fromStepID)

		return execution, nil
	}

	return e.advanceFrom(ctx, execution, workflow, step, conditionResult)
}

// Resume re-enters a waiting execution after its delay elapsed or its
// approval was granted, then advances past the step it parked on.
func (e *Executor) Resume(ctx context.Context, executionID, resumedBy string) (*models.WorkflowExecution, error) {
	lock := e.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	execution, workflow, err := e.loadExecution(ctx, executionID)
	if err != nil || execution == nil || workflow == nil {
		return nil, err
	}

	if execution.Status != models.ExecutionStatusWaiting {
		e.logger.WarnContext(ctx, "Ignoring resume on execution that is not waiting",
			"execution_id", executionID, "status", execution.Status)

		return execution, nil
	}

	step := workflow.StepByID(execution.CurrentStepID)
	if step == nil {
		e.logger.WarnContext(ctx, "Waiting execution points at unknown step",
			"execution_id", executionID, "step_id", execution.CurrentStepID)

		return execution, nil
	}

	execution.Status = models.ExecutionStatusRunning
	execution.WaitUntil = nil
	execution.ApprovalRequestID = ""

	err = e.persistence.Executions().Save(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	e.logger.InfoContext(ctx, "Resumed execution",
		"execution_id", executionID, "step_id", step.ID, "resumed_by", resumedBy)

	resumedEvent := events.ExecutionResumed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionResumedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		ResumedBy:   resumedBy,
	}
	e.publish(ctx, execution.ID, resumedEvent)

	// Delay and approval steps are never condition steps, so the branch
	// flag is irrelevant here.
	return e.advanceFrom(ctx, execution, workflow, step, false)
}

// advanceFrom requires the caller to hold the execution lock.
func (e *Executor) advanceFrom(ctx context.Context, execution *models.WorkflowExecution, workflow *models.Workflow, step *models.WorkflowStep, conditionResult bool) (*models.WorkflowExecution, error) {
	next := e.NextStep(workflow, step, conditionResult)
	if next == nil {
		return e.finish(ctx, execution, models.ExecutionStatusCompleted, "")
	}

	execution.CurrentStepID = next.ID

	err := e.persistence.Executions().Save(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	e.publishStepAvailable(ctx, execution, next)

	return execution, nil
}

func (e *Executor) lockFor(executionID string) *sync.Mutex {
	lock, _ := e.locks.LoadOrStore(executionID, &sync.Mutex{})

	return lock.(*sync.Mutex)
}

// loadExecution fetches an execution and its workflow, logging absence
// instead of treating it as an error.
func (e *Executor) loadExecution(ctx context.Context, executionID string) (*models.WorkflowExecution, *models.Workflow, error) {
	execution, err := e.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch execution %s: %w", executionID, err)
	}

	if execution == nil {
		e.logger.WarnContext(ctx, "Execution not found", "execution_id", executionID)

		return nil, nil, nil
	}

	workflow, err := e.persistence.Workflows().GetByID(ctx, execution.WorkflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch workflow %s: %w", execution.WorkflowID, err)
	}

	if workflow == nil {
		e.logger.WarnContext(ctx, "Workflow for execution not found",
			"execution_id", executionID, "workflow_id", execution.WorkflowID)

		return execution, nil, nil
	}

	return execution, workflow, nil
}

func (e *Executor) publishStepAvailable(ctx context.Context, execution *models.WorkflowExecution, step *models.WorkflowStep) {
	event := events.StepAvailable{
		BaseEvent:   events.NewBaseEvent(events.StepAvailableEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		StepID:      step.ID,
		StepType:    step.Type,
	}
	e.publish(ctx, execution.ID, event)
}

func (e *Executor) publishStepResult(ctx context.Context, execution *models.WorkflowExecution, stepExec *models.StepExecution) {
	if stepExec.Status == models.ExecutionStatusFailed {
		event := events.StepFailed{
			BaseEvent:   events.NewBaseEvent(events.StepFailedEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			StepID:      stepExec.StepID,
			Error:       stepExec.ErrorMessage,
			DurationMs:  stepExec.DurationMs,
		}
		e.publish(ctx, execution.ID, event)

		return
	}

	event := events.StepFinished{
		BaseEvent:   events.NewBaseEvent(events.StepFinishedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		StepID:      stepExec.StepID,
		StepType:    stepExec.StepType,
		Output:      stepExec.Output,
		DurationMs:  stepExec.DurationMs,
	}
	e.publish(ctx, execution.ID, event)
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	err := e.eventBus.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
