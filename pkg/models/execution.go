package models

import "time"

// ExecutionStatus is the lifecycle state of a workflow execution or of a
// single step attempt.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusTimedOut  ExecutionStatus = "timed_out"
)

// WorkflowExecution is one run of a workflow. Context is the read-only input
// the run was started with; Variables accumulate state as steps execute.
// While waiting on a delay or an approval no goroutine is parked: WaitUntil
// and ApprovalRequestID record what the execution waits for so an external
// driver can resume it.
type WorkflowExecution struct {
	ID                string          `json:"id"`
	WorkflowID        string          `json:"workflow_id"`
	Status            ExecutionStatus `json:"status"`
	TriggerType       TriggerType     `json:"trigger_type"`
	TriggeredBy       string          `json:"triggered_by"`
	CurrentStepID     string          `json:"current_step_id,omitempty"`
	Context           map[string]any  `json:"context,omitempty"`
	Variables         map[string]any  `json:"variables,omitempty"`
	ParentExecutionID string          `json:"parent_execution_id,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	WaitUntil         *time.Time      `json:"wait_until,omitempty"`
	ApprovalRequestID string          `json:"approval_request_id,omitempty"`
	StartedAt         time.Time       `json:"started_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the execution reached a final state.
func (e *WorkflowExecution) IsTerminal() bool {
	switch e.Status {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusTimedOut:
		return true
	default:
		return false
	}
}

// SetVariable stores a mutable variable on the execution.
func (e *WorkflowExecution) SetVariable(name string, value any) {
	if e.Variables == nil {
		e.Variables = make(map[string]any)
	}

	e.Variables[name] = value
}

// DurationMs returns the wall time of a finished execution in milliseconds,
// or zero while it is still in flight.
func (e *WorkflowExecution) DurationMs() int64 {
	if e.CompletedAt == nil {
		return 0
	}

	return e.CompletedAt.Sub(e.StartedAt).Milliseconds()
}

// EvaluationContext builds the data visible to conditions and action
// handlers: the input context at the top level plus the current variables
// and execution coordinates under reserved keys.
func (e *WorkflowExecution) EvaluationContext() map[string]any {
	data := make(map[string]any, len(e.Context)+2)

	for key, value := range e.Context {
		data[key] = value
	}

	variables := make(map[string]any, len(e.Variables))
	for key, value := range e.Variables {
		variables[key] = value
	}

	data["variables"] = variables
	data["execution"] = map[string]any{
		"id":          e.ID,
		"workflow_id": e.WorkflowID,
	}

	return data
}

// StepExecution records one attempt at running one step. Attempts are
// append-only: a retried step produces a new record instead of mutating the
// failed one.
type StepExecution struct {
	ID           string          `json:"id"`
	ExecutionID  string          `json:"execution_id"`
	StepID       string          `json:"step_id"`
	StepType     StepType        `json:"step_type"`
	Status       ExecutionStatus `json:"status"`
	Input        map[string]any  `json:"input,omitempty"`
	Output       map[string]any  `json:"output,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
}

// Complete finishes the attempt successfully with the given output.
func (s *StepExecution) Complete(output map[string]any, now time.Time) {
	s.Status = ExecutionStatusCompleted
	s.Output = output
	s.CompletedAt = &now
	s.DurationMs = now.Sub(s.StartedAt).Milliseconds()
}

// Fail finishes the attempt with an error message. A failed attempt does not
// by itself fail the owning execution.
func (s *StepExecution) Fail(message string, now time.Time) {
	s.Status = ExecutionStatusFailed
	s.ErrorMessage = message
	s.CompletedAt = &now
	s.DurationMs = now.Sub(s.StartedAt).Milliseconds()
}
