package queue

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSource(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	tests := []struct {
		name        string
		config      map[string]any
		expectError bool
	}{
		{
			name: "valid config",
			config: map[string]any{
				"queue": "flowkit:events",
				"connection": map[string]any{
					"addr":     "localhost:6379",
					"password": "",
					"db":       "0",
				},
			},
			expectError: false,
		},
		{
			name: "defaults without connection",
			config: map[string]any{
				"queue": "flowkit:events",
			},
			expectError: false,
		},
		{
			name: "missing queue",
			config: map[string]any{
				"connection": map[string]any{
					"addr": "localhost:6379",
				},
			},
			expectError: true,
		},
		{
			name:        "empty config",
			config:      map[string]any{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, err := NewSource(tt.config, logger)

			if tt.expectError {
				assert.ErrorIs(t, err, ErrQueueNameMissing)
				assert.Nil(t, source)
			} else {
				require.NoError(t, err)
				require.NotNil(t, source)
				assert.Equal(t, tt.config["queue"], source.Queue)
				assert.NotNil(t, source.logger)
			}
		})
	}
}

func TestNewSource_ConnectionStringsOnly(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	source, err := NewSource(map[string]any{
		"queue": "flowkit:events",
		"connection": map[string]any{
			"addr": "redis.internal:6379",
			"db":   7, // non-string values are ignored
		},
	}, logger)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6379", source.Connection["addr"])
	assert.NotContains(t, source.Connection, "db")
}

func TestParseEnvelope(t *testing.T) {
	t.Run("json envelope passes through", func(t *testing.T) {
		data := parseEnvelope(`{"event_type": "expense.submitted", "amount": 750}`)

		assert.Equal(t, "expense.submitted", data["event_type"])
		assert.Equal(t, 750.0, data["amount"])
		assert.Contains(t, data, "timestamp")
	})

	t.Run("existing timestamp kept", func(t *testing.T) {
		data := parseEnvelope(`{"event_type": "form.completed", "timestamp": "2025-06-01T10:00:00Z"}`)

		assert.Equal(t, "2025-06-01T10:00:00Z", data["timestamp"])
	})

	t.Run("non-json wrapped under message", func(t *testing.T) {
		data := parseEnvelope("not json at all")

		assert.Equal(t, "not json at all", data["message"])

		timestamp, ok := data["timestamp"].(string)
		require.True(t, ok)

		_, err := time.Parse(time.RFC3339, timestamp)
		assert.NoError(t, err)
	})

	t.Run("json null wrapped under message", func(t *testing.T) {
		data := parseEnvelope("null")

		assert.Equal(t, "null", data["message"])
	})
}

func TestFactory_Create(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	factory := NewFactory()

	assert.Equal(t, "queue", factory.ID())

	_, err := factory.Create(nil, logger)
	assert.ErrorIs(t, err, ErrConfigNil)

	source, err := factory.Create(map[string]any{"queue": "flowkit:events"}, logger)
	require.NoError(t, err)
	assert.NotNil(t, source)
}
