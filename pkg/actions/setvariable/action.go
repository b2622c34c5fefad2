// Package setvariable implements the set_variable action for workflow steps.
package setvariable

import (
	"context"
	"errors"
	"fmt"

	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/template"
)

// ErrVariableNameMissing is returned when the configuration names no variable.
var ErrVariableNameMissing = errors.New("set_variable requires a 'variable' in configuration")

// Handler computes a value and hands it back under the variable/value output
// keys the execution engine folds into the execution's variables. Unlike the
// dispatcher's builtin fallback it renders the configured value against the
// evaluation context first.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Execute renders the configured value and returns the assignment.
func (h *Handler) Execute(ctx context.Context, action *models.WorkflowAction, data map[string]any) (map[string]any, error) {
	name, _ := action.Configuration["variable"].(string)
	if name == "" {
		return nil, ErrVariableNameMissing
	}

	value, err := template.RenderAny(action.Configuration["value"], data)
	if err != nil {
		return nil, fmt.Errorf("failed to render value for variable '%s': %w", name, err)
	}

	return map[string]any{
		"variable": name,
		"value":    value,
	}, nil
}

// ConfigSchema describes the configuration accepted by this handler.
func (h *Handler) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"variable": map[string]any{
				"type":        "string",
				"description": "Name of the execution variable to set.",
				"minLength":   1,
			},
			"value": map[string]any{
				"description": "Value to assign. Strings support templating; maps and lists are rendered recursively.",
				"examples": []any{
					"{{ .amount }}",
					map[string]any{"approved_by": "{{ .variables.approver }}"},
					42,
				},
			},
		},
		"required":             []string{"variable"},
		"additionalProperties": false,
	}
}
