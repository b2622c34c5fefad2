// Package services implements the definition-management facade: workflow and
// template CRUD, lifecycle transitions and statistics. The engine consumes
// definitions; this package is where they are created, validated and edited.
package services

import (
	"errors"
	"fmt"

	"github.com/tavolohq/flowkit/pkg/persistence"
)

// Validation errors (400 Bad Request).
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrWorkflowNil         = errors.New("workflow cannot be nil")
	ErrTemplateNil         = errors.New("template cannot be nil")
	ErrDuplicateStepID     = errors.New("duplicate step id")
	ErrDuplicateTriggerID  = errors.New("duplicate trigger id")
	ErrUnknownStepLink     = errors.New("step link references an unknown step")
	ErrMissingStepPayload  = errors.New("step is missing its payload")
	ErrInvalidActionConfig = errors.New("invalid action configuration")
	ErrNoSteps             = errors.New("workflow must have at least one step")
)

// Not-found errors (404), aliased from the storage layer so callers need only
// one package.
var (
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
	ErrTemplateNotFound = persistence.ErrTemplateNotFound
	ErrStepNotFound     = errors.New("step not found")
	ErrTriggerNotFound  = errors.New("trigger not found")
)

// Conflict errors (409).
var (
	ErrWorkflowArchived  = errors.New("archived workflows are immutable")
	ErrInvalidTransition = errors.New("invalid workflow status transition")
)

// ServiceError wraps a service-level failure with the operation and an API
// error code.
type ServiceError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidationError reports whether an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrTemplateNil) ||
		errors.Is(err, ErrDuplicateStepID) ||
		errors.Is(err, ErrDuplicateTriggerID) ||
		errors.Is(err, ErrUnknownStepLink) ||
		errors.Is(err, ErrMissingStepPayload) ||
		errors.Is(err, ErrInvalidActionConfig) ||
		errors.Is(err, ErrNoSteps)
}

// IsNotFoundError reports whether an error should map to HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err) ||
		errors.Is(err, ErrStepNotFound) ||
		errors.Is(err, ErrTriggerNotFound)
}

// IsConflictError reports whether an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowArchived) ||
		errors.Is(err, ErrInvalidTransition)
}
