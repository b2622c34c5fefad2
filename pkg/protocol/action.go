// Package protocol defines the interfaces between the engine core and the
// pluggable pieces around it: action handlers and trigger sources.
package protocol

import (
	"context"

	"github.com/tavolohq/flowkit/pkg/models"
)

// ActionHandler executes one action type. Handlers are the seam to the rest
// of the suite: anything with a real side effect (mail, webhooks, mutating
// another subsystem) registers a handler for its action type.
//
// The data map is the execution's evaluation context. The returned map is
// the step output; returning an error marks the step attempt failed without
// aborting the execution.
type ActionHandler interface {
	Execute(ctx context.Context, action *models.WorkflowAction, data map[string]any) (map[string]any, error)
}

// ActionHandlerFunc adapts a plain function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, action *models.WorkflowAction, data map[string]any) (map[string]any, error)

func (f ActionHandlerFunc) Execute(ctx context.Context, action *models.WorkflowAction, data map[string]any) (map[string]any, error) {
	return f(ctx, action, data)
}

// ConfigSchemaProvider is optionally implemented by handlers that publish a
// JSON schema for their configuration map. The registry validates action
// configs against it when definitions are saved.
type ConfigSchemaProvider interface {
	ConfigSchema() map[string]any
}
