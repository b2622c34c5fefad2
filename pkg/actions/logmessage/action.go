// Package logmessage implements the log_message action for workflow steps.
package logmessage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/template"
)

// Handler writes a rendered message to the process log. It is registered for
// the log_message action type and replaces the dispatcher's plainer builtin
// fallback with template rendering and level selection.
type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger.With("module", "log_message_action"),
	}
}

// Execute renders the configured message against the evaluation context and
// logs it at the configured level.
func (h *Handler) Execute(ctx context.Context, action *models.WorkflowAction, data map[string]any) (map[string]any, error) {
	message, _ := action.Configuration["message"].(string)

	rendered, err := template.RenderAny(message, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}

	level, _ := action.Configuration["level"].(string)
	if level == "" {
		level = "info"
	}

	text := fmt.Sprintf("%v", rendered)

	h.logger.Log(ctx, logLevel(level), "Workflow log message",
		"action_id", action.ID, "message", text)

	return map[string]any{
		"message": text,
		"level":   level,
	}, nil
}

// ConfigSchema describes the configuration accepted by this handler.
func (h *Handler) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating against the execution context.",
				"examples": []string{
					"Expense {{ .expense_id }} submitted by {{ .requester }}",
					"Reached step with total {{ .variables.total }}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level to emit the message at.",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
