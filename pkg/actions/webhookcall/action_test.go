package webhookcall_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavolohq/flowkit/pkg/actions/webhookcall"
	"github.com/tavolohq/flowkit/pkg/models"
)

func newHandler() *webhookcall.Handler {
	return webhookcall.NewHandler(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func TestHandler_Execute_PostsRenderedPayload(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "POST", request.Method)
		assert.Equal(t, "application/json", request.Header.Get("Content-Type"))

		var body map[string]any

		err := json.NewDecoder(request.Body).Decode(&body)
		assert.NoError(t, err)
		assert.Equal(t, "Expense exp-1 needs review", body["text"])

		writer.Header().Set("Content-Type", "application/json")

		err = json.NewEncoder(writer).Encode(map[string]any{"ok": true})
		if err != nil {
			http.Error(writer, err.Error(), http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	action := &models.WorkflowAction{
		ID:   "action-webhook",
		Type: models.ActionTypeWebhookCall,
		Configuration: map[string]any{
			"url": server.URL,
			"payload": map[string]any{
				"text": "Expense {{ .expense_id }} needs review",
			},
		},
	}

	data := map[string]any{"expense_id": "exp-1"}

	result, err := newHandler().Execute(context.Background(), action, data)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result["status_code"])

	body, ok := result["body"].(map[string]any)
	require.True(t, ok, "body should be a map[string]any")
	assert.Equal(t, true, body["ok"])
	assert.NotNil(t, result["headers"])
}

func TestHandler_Execute_TemplatedURLAndHeaders(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "GET", request.Method)
		assert.Equal(t, "/projects/proj-1/events", request.URL.Path)
		assert.Equal(t, "dana@example.com", request.Header.Get("X-Requester"))

		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusOK)

		err := json.NewEncoder(writer).Encode(map[string]any{"received": true})
		if err != nil {
			http.Error(writer, err.Error(), http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	action := &models.WorkflowAction{
		ID:   "action-webhook",
		Type: models.ActionTypeWebhookCall,
		Configuration: map[string]any{
			"url":    server.URL + "/projects/{{ .project_id }}/events",
			"method": "GET",
			"headers": map[string]any{
				"X-Requester": "{{ .requester }}",
			},
		},
	}

	data := map[string]any{
		"project_id": "proj-1",
		"requester":  "dana@example.com",
	}

	result, err := newHandler().Execute(context.Background(), action, data)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result["status_code"])
}

func TestHandler_Execute_StringPayloadSentAsIs(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		raw, err := io.ReadAll(request.Body)
		assert.NoError(t, err)
		assert.Equal(t, `{"raw": "body"}`, string(raw))
		assert.Equal(t, "text/plain", request.Header.Get("Content-Type"))

		writer.Header().Set("Content-Type", "application/json")

		err = json.NewEncoder(writer).Encode(map[string]any{"ok": true})
		if err != nil {
			http.Error(writer, err.Error(), http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	action := &models.WorkflowAction{
		ID:   "action-webhook",
		Type: models.ActionTypeWebhookCall,
		Configuration: map[string]any{
			"url":     server.URL,
			"payload": `{"raw": "body"}`,
			"headers": map[string]any{
				"Content-Type": "text/plain",
			},
		},
	}

	result, err := newHandler().Execute(context.Background(), action, map[string]any{})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result["status_code"])
}

func TestHandler_Execute_NonJSONResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "text/plain")
		writer.WriteHeader(http.StatusOK)

		_, err := writer.Write([]byte("accepted"))
		if err != nil {
			http.Error(writer, err.Error(), http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	action := &models.WorkflowAction{
		ID:   "action-webhook",
		Type: models.ActionTypeWebhookCall,
		Configuration: map[string]any{
			"url": server.URL,
		},
	}

	result, err := newHandler().Execute(context.Background(), action, map[string]any{})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result["status_code"])
	assert.Equal(t, "accepted", result["body"])
}

func TestHandler_Execute_ErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		http.Error(writer, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	action := &models.WorkflowAction{
		ID:   "action-webhook",
		Type: models.ActionTypeWebhookCall,
		Configuration: map[string]any{
			"url": server.URL,
		},
	}

	_, err := newHandler().Execute(context.Background(), action, map[string]any{})

	require.Error(t, err)
	assert.ErrorIs(t, err, webhookcall.ErrWebhookFailed)
	assert.Contains(t, err.Error(), "status 500")
}

func TestHandler_Execute_MissingURL(t *testing.T) {
	t.Parallel()

	action := &models.WorkflowAction{
		ID:            "action-webhook",
		Type:          models.ActionTypeWebhookCall,
		Configuration: map[string]any{},
	}

	_, err := newHandler().Execute(context.Background(), action, map[string]any{})

	assert.ErrorIs(t, err, webhookcall.ErrURLMissing)
}

func TestHandler_Execute_Timeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		// Simulate slow response
		time.Sleep(2 * time.Second)
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	action := &models.WorkflowAction{
		ID:   "action-webhook",
		Type: models.ActionTypeWebhookCall,
		Configuration: map[string]any{
			"url": server.URL,
		},
		TimeoutSeconds: 1,
	}

	_, err := newHandler().Execute(context.Background(), action, map[string]any{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook request failed")
}
