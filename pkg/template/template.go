// Package template renders workflow configuration values against execution
// data using text/template expressions.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Render parses and executes a template expression against data. Output that
// reads as a JSON object or array, a number or a boolean is decoded into its
// typed form; everything else comes back as a string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("config").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderWithData renders input against an execution's evaluation context,
// with the process environment additionally exposed under "env".
func RenderWithData(input string, data map[string]any) (any, error) {
	enhanced := make(map[string]any, len(data)+1)

	for key, value := range data {
		enhanced[key] = value
	}

	enhanced["env"] = getEnvVars()

	return Render(input, enhanced)
}

// RenderAny renders every string found in value, recursing through maps and
// slices, so whole configuration blocks can carry template expressions.
// Strings without template markers pass through untouched and keep their
// string type.
func RenderAny(value any, data map[string]any) (any, error) {
	switch typed := value.(type) {
	case string:
		if !strings.Contains(typed, "{{") {
			return typed, nil
		}

		return RenderWithData(typed, data)
	case map[string]any:
		rendered := make(map[string]any, len(typed))

		for key, item := range typed {
			result, err := RenderAny(item, data)
			if err != nil {
				return nil, err
			}

			rendered[key] = result
		}

		return rendered, nil
	case []any:
		rendered := make([]any, len(typed))

		for i, item := range typed {
			result, err := RenderAny(item, data)
			if err != nil {
				return nil, err
			}

			rendered[i] = result
		}

		return rendered, nil
	default:
		return value, nil
	}
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
