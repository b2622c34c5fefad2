package models

// ActionType identifies which handler runs an action. Handlers are looked up
// by this value at dispatch time; types without a registered handler fall
// back to built-in behavior.
type ActionType string

const (
	ActionTypeNotification ActionType = "notification"
	ActionTypeEmail        ActionType = "email"
	ActionTypeFieldUpdate  ActionType = "field_update"
	ActionTypeTaskCreation ActionType = "task_creation"
	ActionTypeComment      ActionType = "comment"
	ActionTypeAssignment   ActionType = "assignment"
	ActionTypeStatusChange ActionType = "status_change"
	ActionTypeWebhookCall  ActionType = "webhook_call"
	ActionTypeScript       ActionType = "script"
	ActionTypeSetVariable  ActionType = "set_variable"
	ActionTypeLogMessage   ActionType = "log_message"
)

// OnErrorPolicy declares how a failed action should be treated by the layer
// driving the execution.
type OnErrorPolicy string

const (
	OnErrorStop     OnErrorPolicy = "stop"
	OnErrorContinue OnErrorPolicy = "continue"
	OnErrorRetry    OnErrorPolicy = "retry"
)

// WorkflowAction is the payload of an action step. RetryCount and
// TimeoutSeconds are declared on the definition but enforced by the caller
// driving the execution, not by the dispatcher itself.
type WorkflowAction struct {
	ID             string         `json:"id"`
	Type           ActionType     `json:"type" validate:"required"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Configuration  map[string]any `json:"configuration"`
	RetryCount     int            `json:"retry_count,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
	OnError        OnErrorPolicy  `json:"on_error,omitempty"`
}
