package logmessage_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavolohq/flowkit/pkg/actions/logmessage"
	"github.com/tavolohq/flowkit/pkg/models"
)

func TestHandler_Execute_RendersMessage(t *testing.T) {
	t.Parallel()

	handler := logmessage.NewHandler(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	action := &models.WorkflowAction{
		ID:   "action-log",
		Type: models.ActionTypeLogMessage,
		Configuration: map[string]any{
			"message": "Expense {{ .expense_id }} submitted by {{ .requester }}",
		},
	}

	data := map[string]any{
		"expense_id": "exp-1",
		"requester":  "dana@example.com",
	}

	result, err := handler.Execute(context.Background(), action, data)

	require.NoError(t, err)
	assert.Equal(t, "Expense exp-1 submitted by dana@example.com", result["message"])
	assert.Equal(t, "info", result["level"])
}

func TestHandler_Execute_CustomLevel(t *testing.T) {
	t.Parallel()

	handler := logmessage.NewHandler(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	action := &models.WorkflowAction{
		ID:   "action-log",
		Type: models.ActionTypeLogMessage,
		Configuration: map[string]any{
			"message": "budget exceeded",
			"level":   "warn",
		},
	}

	result, err := handler.Execute(context.Background(), action, map[string]any{})

	require.NoError(t, err)
	assert.Equal(t, "budget exceeded", result["message"])
	assert.Equal(t, "warn", result["level"])
}

func TestHandler_Execute_InvalidTemplate(t *testing.T) {
	t.Parallel()

	handler := logmessage.NewHandler(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	action := &models.WorkflowAction{
		ID:   "action-log",
		Type: models.ActionTypeLogMessage,
		Configuration: map[string]any{
			"message": "{{ nonexistent.call }}",
		},
	}

	_, err := handler.Execute(context.Background(), action, map[string]any{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to render message")
}
