// Package webhookcall implements the webhook_call action for workflow steps.
package webhookcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/template"
)

const defaultTimeoutSeconds = 30

var (
	// ErrURLMissing is returned when the configuration carries no url.
	ErrURLMissing = errors.New("webhook_call requires a 'url' in configuration")
	// ErrWebhookFailed is returned when the endpoint answers with an error status.
	ErrWebhookFailed = errors.New("webhook endpoint returned an error status")
)

// Handler delivers a step's payload to an external HTTP endpoint. URL,
// headers and payload are rendered against the evaluation context before the
// request goes out. The handler makes a single attempt; whether a failure is
// retried is decided by the step's on_error policy, not here.
type Handler struct {
	client *http.Client
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		client: &http.Client{},
		logger: logger.With("module", "webhook_call_action"),
	}
}

// Execute builds the request from the action configuration, sends it and
// returns the response status, parsed body and headers.
func (h *Handler) Execute(ctx context.Context, action *models.WorkflowAction, data map[string]any) (map[string]any, error) {
	timeout := defaultTimeoutSeconds * time.Second
	if action.TimeoutSeconds > 0 {
		timeout = time.Duration(action.TimeoutSeconds) * time.Second
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := h.buildRequest(reqCtx, action, data)
	if err != nil {
		return nil, err
	}

	h.logger.DebugContext(ctx, "Calling webhook",
		"action_id", action.ID, "method", req.Method, "url", req.URL.String())

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	return h.processResponse(ctx, resp)
}

func (h *Handler) buildRequest(ctx context.Context, action *models.WorkflowAction, data map[string]any) (*http.Request, error) {
	config := action.Configuration

	rawURL, _ := config["url"].(string)
	if rawURL == "" {
		return nil, ErrURLMissing
	}

	urlResult, err := template.RenderAny(rawURL, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	bodyReader, contentType, err := buildBody(config["payload"], data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), fmt.Sprintf("%v", urlResult), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	// Configured headers go last so an explicit Content-Type wins.
	err = setHeaders(req, config["headers"], data)
	if err != nil {
		return nil, err
	}

	return req, nil
}

// buildBody renders the payload and serializes it. A payload that renders to
// a string is sent as-is; anything else is marshalled as JSON with a matching
// Content-Type.
func buildBody(payload any, data map[string]any) (io.Reader, string, error) {
	if payload == nil {
		return strings.NewReader(""), "", nil
	}

	rendered, err := template.RenderAny(payload, data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render payload template: %w", err)
	}

	if str, ok := rendered.(string); ok {
		return strings.NewReader(str), "", nil
	}

	bodyBytes, err := json.Marshal(rendered)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	return strings.NewReader(string(bodyBytes)), "application/json", nil
}

func setHeaders(req *http.Request, headersConfig any, data map[string]any) error {
	headersMap, ok := headersConfig.(map[string]any)
	if !ok {
		return nil
	}

	for key, value := range headersMap {
		strVal, ok := value.(string)
		if !ok {
			continue
		}

		headerResult, err := template.RenderAny(strVal, data)
		if err != nil {
			return fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		req.Header.Set(key, fmt.Sprintf("%v", headerResult))
	}

	return nil
}

func (h *Handler) processResponse(ctx context.Context, resp *http.Response) (map[string]any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("webhook returned status %d: %w", resp.StatusCode, ErrWebhookFailed)
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)

		h.logger.WarnContext(ctx, "Failed to parse response as JSON, returning as string", "error", err)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     resp.Header,
	}

	h.logger.InfoContext(ctx, fmt.Sprintf("Webhook call completed with status %d, body length: %d",
		resp.StatusCode, len(bodyBytes)))

	return result, nil
}

// ConfigSchema describes the configuration accepted by this handler.
func (h *Handler) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to deliver the webhook to. Supports templating.",
				"examples": []string{
					"https://hooks.example.com/services/T000/B000",
					"https://api.example.com/projects/{{ .project_id }}/events",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use.",
				"default":     "POST",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"payload": map[string]any{
				"type":        []string{"string", "object"},
				"description": "Request body. Objects are rendered recursively and sent as JSON.",
				"examples": []any{
					map[string]any{"text": "Expense {{ .expense_id }} needs review"},
					`{"raw": "body"}`,
				},
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
