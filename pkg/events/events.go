// Package events defines the event types published on the bus for workflow
// execution and approval lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/tavolohq/flowkit/pkg/models"
)

type EventType string

// Topic is the bus topic all engine events are published on.
const Topic = "flowkit.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Trigger events.
	TriggerFiredEvent EventType = "trigger.fired"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "workflow.execution.started"
	ExecutionWaitingEvent   EventType = "workflow.execution.waiting"
	ExecutionResumedEvent   EventType = "workflow.execution.resumed"
	ExecutionCompletedEvent EventType = "workflow.execution.completed"
	ExecutionFailedEvent    EventType = "workflow.execution.failed"
	ExecutionCancelledEvent EventType = "workflow.execution.cancelled"
	ExecutionTimedOutEvent  EventType = "workflow.execution.timed_out"

	// Step events.
	StepAvailableEvent EventType = "workflow.step.available"
	StepFinishedEvent  EventType = "workflow.step.finished"
	StepFailedEvent    EventType = "workflow.step.failed"

	// Approval events.
	ApprovalRequestedEvent EventType = "approval.requested"
	ApprovalDecidedEvent   EventType = "approval.decided"
	ApprovalDelegatedEvent EventType = "approval.delegated"
	ApprovalEscalatedEvent EventType = "approval.escalated"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

type TriggerFired struct {
	BaseEvent

	TriggerID   string             `json:"trigger_id"`
	TriggerType models.TriggerType `json:"trigger_type"`
	Event       string             `json:"event_type,omitempty"`
	EventData   map[string]any     `json:"event_data,omitempty"`
}

func (t TriggerFired) GetType() EventType {
	return TriggerFiredEvent
}

// Execution lifecycle events

type ExecutionStarted struct {
	BaseEvent

	ExecutionID  string             `json:"execution_id"`
	WorkflowName string             `json:"workflow_name"`
	TriggerType  models.TriggerType `json:"trigger_type"`
	TriggeredBy  string             `json:"triggered_by"`
	Context      map[string]any     `json:"context,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// ExecutionWaiting is published when an execution parks on a delay or an
// approval. ResumeAt is set for delays, ApprovalRequestID for approvals.
type ExecutionWaiting struct {
	BaseEvent

	ExecutionID       string     `json:"execution_id"`
	StepID            string     `json:"step_id"`
	Reason            string     `json:"reason"`
	ResumeAt          *time.Time `json:"resume_at,omitempty"`
	ApprovalRequestID string     `json:"approval_request_id,omitempty"`
}

func (e ExecutionWaiting) GetType() EventType {
	return ExecutionWaitingEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	ResumedBy   string `json:"resumed_by,omitempty"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	DurationMs    int64  `json:"duration_ms"`
	StepsExecuted int    `json:"steps_executed"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Error       string `json:"error"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	CancelledBy string `json:"cancelled_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ExecutionTimedOut struct {
	BaseEvent

	ExecutionID       string `json:"execution_id"`
	ApprovalRequestID string `json:"approval_request_id,omitempty"`
	DurationMs        int64  `json:"duration_ms"`
}

func (e ExecutionTimedOut) GetType() EventType {
	return ExecutionTimedOutEvent
}

// Step events

type StepAvailable struct {
	BaseEvent

	ExecutionID string          `json:"execution_id"`
	StepID      string          `json:"step_id"`
	StepType    models.StepType `json:"step_type,omitempty"`
}

func (s StepAvailable) GetType() EventType {
	return StepAvailableEvent
}

type StepFinished struct {
	BaseEvent

	ExecutionID string          `json:"execution_id"`
	StepID      string          `json:"step_id"`
	StepType    models.StepType `json:"step_type"`
	Output      map[string]any  `json:"output,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

func (s StepFinished) GetType() EventType {
	return StepFinishedEvent
}

type StepFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
	Error       string `json:"error"`
	DurationMs  int64  `json:"duration_ms"`
}

func (s StepFailed) GetType() EventType {
	return StepFailedEvent
}

// Approval events

type ApprovalRequested struct {
	BaseEvent

	RequestID   string    `json:"request_id"`
	ExecutionID string    `json:"execution_id"`
	StepID      string    `json:"step_id"`
	Approvers   []string  `json:"approvers"`
	DueAt       time.Time `json:"due_at"`
}

func (a ApprovalRequested) GetType() EventType {
	return ApprovalRequestedEvent
}

// ApprovalDecided is published when a request reaches a terminal status:
// approved, rejected or expired.
type ApprovalDecided struct {
	BaseEvent

	RequestID   string                `json:"request_id"`
	ExecutionID string                `json:"execution_id"`
	Status      models.ApprovalStatus `json:"status"`
	DecidedBy   string                `json:"decided_by,omitempty"`
	Comment     string                `json:"comment,omitempty"`
}

func (a ApprovalDecided) GetType() EventType {
	return ApprovalDecidedEvent
}

type ApprovalDelegated struct {
	BaseEvent

	RequestID   string `json:"request_id"`
	ExecutionID string `json:"execution_id"`
	FromUserID  string `json:"from_user_id"`
	ToUserID    string `json:"to_user_id"`
}

func (a ApprovalDelegated) GetType() EventType {
	return ApprovalDelegatedEvent
}

type ApprovalEscalated struct {
	BaseEvent

	RequestID   string `json:"request_id"`
	ExecutionID string `json:"execution_id"`
	EscalatedTo string `json:"escalated_to"`
}

func (a ApprovalEscalated) GetType() EventType {
	return ApprovalEscalatedEvent
}
