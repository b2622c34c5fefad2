package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SimpleExpression(t *testing.T) {
	data := map[string]any{
		"name":  "John",
		"age":   30,
		"isNew": true,
	}

	// Test simple field access
	result, err := Render("{{ .name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "John", result)

	// Test boolean expression
	result, err = Render("{{ .isNew }}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	// Test number field - always map to float
	result, err = Render("{{ .age }}", data)
	require.NoError(t, err)
	assert.Equal(t, 30.0, result)
}

func TestRender_ComplexExpression(t *testing.T) {
	data := map[string]any{
		"user": map[string]any{
			"name":  "Alice",
			"email": "alice@example.com",
		},
		"orders": []any{
			map[string]any{"id": 1, "total": 100.50},
			map[string]any{"id": 2, "total": 75.25},
		},
	}

	// Test nested field access
	result, err := Render("{{ .user.name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "Alice", result)

	// Test object construction
	result, err = Render(`{
		"user_name": "{{ .user.name }}",
		"total_orders": {{ len .orders }}
	}`, data)
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)

	require.True(t, ok)
	assert.Equal(t, "Alice", resultMap["user_name"])
	assert.Equal(t, 2.0, resultMap["total_orders"])
}

func TestRender_StringInterpolation(t *testing.T) {
	data := map[string]any{
		"user": map[string]any{
			"name": "John",
			"id":   123,
		},
		"action": "login",
	}

	// Test string construction
	result, err := Render("User {{.user.name}} performed {{.action}}", data)
	require.NoError(t, err)
	assert.Equal(t, "User John performed login", result)

	// Test URL construction
	result, err = Render("https://api.example.com/users/{{.user.id}}", data)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/users/123", result)
}

func TestRender_ConditionalExpression(t *testing.T) {
	data := map[string]any{
		"request": map[string]any{
			"status": 200,
		},
	}

	result, err := Render("{{ if eq .request.status 200 }}success{{ else }}failed{{ end }}", data)
	require.NoError(t, err)
	assert.Equal(t, "success", result)
}

func TestRender_ErrorHandling(t *testing.T) {
	data := map[string]any{
		"test": "value",
	}

	// Test invalid template expression
	_, err := Render("{ invalid..expression }}", data)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse json")

	// Test reference to non-existent field (actually errors in template)
	_, err = Render("{{ nonexistent.field }}", data)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "function \"nonexistent\" not defined")
}

func TestRenderWithData_EnvironmentVariables(t *testing.T) {
	t.Setenv("FLOWKIT_TEST_VAR", "test_value")

	data := map[string]any{
		"amount": 42,
	}

	result, err := RenderWithData("{{ .env.FLOWKIT_TEST_VAR }}", data)
	require.NoError(t, err)
	assert.Equal(t, "test_value", result)

	// Evaluation context keys stay visible next to env
	result, err = RenderWithData("{{ .amount }}", data)
	require.NoError(t, err)
	assert.Equal(t, 42.0, result)
}

func TestRenderAny_NestedConfiguration(t *testing.T) {
	data := map[string]any{
		"requester": "dana@example.com",
		"variables": map[string]any{
			"channel": "#finance",
		},
	}

	config := map[string]any{
		"url": "https://hooks.example.com/{{ .variables.channel }}",
		"headers": map[string]any{
			"X-Requester": "{{ .requester }}",
		},
		"tags":    []any{"expense", "{{ .variables.channel }}"},
		"enabled": true,
	}

	rendered, err := RenderAny(config, data)
	require.NoError(t, err)

	renderedMap, ok := rendered.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://hooks.example.com/#finance", renderedMap["url"])

	headers, ok := renderedMap["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dana@example.com", headers["X-Requester"])

	tags, ok := renderedMap["tags"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"expense", "#finance"}, tags)

	// Non-string values pass through untouched
	assert.Equal(t, true, renderedMap["enabled"])
}

func TestRenderAny_LiteralStringsKeepTheirType(t *testing.T) {
	data := map[string]any{}

	// Without template markers no coercion happens, so a literal "123"
	// stays a string instead of becoming a float
	result, err := RenderAny("123", data)
	require.NoError(t, err)
	assert.Equal(t, "123", result)

	result, err = RenderAny("true", data)
	require.NoError(t, err)
	assert.Equal(t, "true", result)
}
