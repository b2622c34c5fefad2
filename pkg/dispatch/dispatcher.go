// Package dispatch routes workflow actions to their registered handlers and
// normalizes every outcome into a result map.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tavolohq/flowkit/pkg/metrics"
	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/protocol"
	"github.com/tavolohq/flowkit/pkg/registry"
)

// Dispatcher executes actions. It never returns an error: handler failures
// become {success:false, error:...} results, and action types without a
// handler fall back to a builtin behavior so an unconfigured integration
// cannot break an execution.
type Dispatcher struct {
	registry *registry.Registry
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

func NewDispatcher(reg *registry.Registry, logger *slog.Logger, recorder *metrics.Recorder) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		logger:   logger.With("module", "dispatch"),
		metrics:  recorder,
	}
}

// Execute runs a single action against the evaluation context and returns
// the step output map. The success flag is always present.
func (d *Dispatcher) Execute(ctx context.Context, action *models.WorkflowAction, data map[string]any) map[string]any {
	if action == nil {
		return map[string]any{
			"success": false,
			"error":   "no action configured for step",
		}
	}

	handler, ok := d.registry.Handler(action.Type)
	if ok {
		result, err := d.runHandler(ctx, handler, action, data)
		if err != nil {
			d.logger.ErrorContext(ctx, "Action handler failed",
				"action_id", action.ID, "action_type", action.Type, "error", err)

			return map[string]any{
				"success": false,
				"error":   err.Error(),
			}
		}

		if result == nil {
			result = map[string]any{}
		}

		if _, ok := result["success"]; !ok {
			result["success"] = true
		}

		return result
	}

	return d.executeBuiltin(ctx, action)
}

// runHandler invokes the handler with a panic guard. Handlers come from
// external integrations; a broken one surfaces as a failed step, not a
// crashed process.
func (d *Dispatcher) runHandler(ctx context.Context, handler protocol.ActionHandler, action *models.WorkflowAction, data map[string]any) (result map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("action handler panicked: %v", rec)
		}
	}()

	return handler.Execute(ctx, action, data)
}

// executeBuiltin covers the action types that work without a registered
// handler. Everything else is a silent no-op success, counted so missing
// integrations stay observable.
func (d *Dispatcher) executeBuiltin(ctx context.Context, action *models.WorkflowAction) map[string]any {
	switch action.Type {
	case models.ActionTypeSetVariable:
		return map[string]any{
			"success":  true,
			"variable": action.Configuration["variable"],
			"value":    action.Configuration["value"],
		}
	case models.ActionTypeLogMessage:
		message := action.Configuration["message"]
		d.logger.InfoContext(ctx, "Workflow log message", "action_id", action.ID, "message", message)

		return map[string]any{
			"success": true,
			"message": message,
		}
	default:
		d.logger.WarnContext(ctx, "No handler registered for action type, skipping",
			"action_id", action.ID, "action_type", action.Type)
		d.metrics.RecordUnhandledAction(string(action.Type))

		return map[string]any{
			"success":     true,
			"action_type": string(action.Type),
		}
	}
}
