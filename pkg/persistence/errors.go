package persistence

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by all storage backends.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrApprovalRequestNotFound indicates an approval request was not found.
	ErrApprovalRequestNotFound = errors.New("approval request not found")

	// ErrTemplateNotFound indicates a workflow template was not found.
	ErrTemplateNotFound = errors.New("workflow template not found")

	// ErrInvalidID indicates an empty or malformed identifier was provided.
	ErrInvalidID = errors.New("invalid identifier")
)

// StorageError wraps a storage failure with the operation and entity that
// produced it.
type StorageError struct {
	Op     string // Operation being performed (e.g., "Save", "GetByID")
	Entity string // Entity kind (e.g., "workflow", "execution")
	ID     string // Entity ID if applicable
	Err    error  // Underlying error
}

func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}

	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStorageError creates a storage error with context.
func NewStorageError(op, entity, id string, err error) *StorageError {
	return &StorageError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsNotFound checks whether an error stands for any missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrApprovalRequestNotFound) ||
		errors.Is(err, ErrTemplateNotFound)
}
