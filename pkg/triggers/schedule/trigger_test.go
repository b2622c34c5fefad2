package schedule

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavolohq/flowkit/pkg/protocol"
)

func TestNewSource(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	tests := []struct {
		name        string
		config      map[string]any
		expectError bool
	}{
		{
			name: "valid cron expression",
			config: map[string]any{
				"trigger_id":  "trigger-nightly",
				"workflow_id": "workflow-123",
				"cron":        "0 2 * * *",
			},
			expectError: false,
		},
		{
			name: "every five minutes",
			config: map[string]any{
				"trigger_id": "trigger-sweep",
				"cron":       "*/5 * * * *",
			},
			expectError: false,
		},
		{
			name: "invalid cron expression",
			config: map[string]any{
				"trigger_id": "trigger-bad",
				"cron":       "invalid cron",
			},
			expectError: true,
		},
		{
			name: "missing cron",
			config: map[string]any{
				"trigger_id": "trigger-no-cron",
			},
			expectError: true,
		},
		{
			name: "missing trigger id",
			config: map[string]any{
				"cron": "0 2 * * *",
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
				assert.Error(t, err)
				assert.Nil(t, source)
			} else {
				require.NoError(t, err)
				require.NotNil(t, source)
				assert.Equal(t, tt.config["cron"], source.CronExpr)
				assert.NotNil(t, source.logger)
			}
		})
	}
}

func TestSource_Validate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	source := &Source{TriggerID: "trigger-1", CronExpr: "30 14 * * 1-5", logger: logger}
	assert.NoError(t, source.Validate())

	source = &Source{TriggerID: "", CronExpr: "* * * * *", logger: logger}
	assert.ErrorIs(t, source.Validate(), ErrTriggerIDMissing)

	source = &Source{TriggerID: "trigger-1", CronExpr: "", logger: logger}
	assert.ErrorIs(t, source.Validate(), ErrCronMissing)

	source = &Source{TriggerID: "trigger-1", CronExpr: "not * a * cron", logger: logger}
	err := source.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")
}

func TestSource_StartStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	source, err := NewSource(map[string]any{
		"trigger_id":  "trigger-start-stop",
		"workflow_id": "workflow-1",
		"cron":        "* * * * *",
	}, logger)
	require.NoError(t, err)

	ctx := context.Background()

	var (
		mu            sync.Mutex
		callbackCount int
	)

	callback := func(_ context.Context, _ map[string]any) error {
		mu.Lock()

		callbackCount++

		mu.Unlock()

		return nil
	}

	err = source.Start(ctx, callback)
	require.NoError(t, err)

	// The minute-granularity schedule will usually not tick in this window
	time.Sleep(100 * time.Millisecond)

	err = source.Stop(ctx)
	require.NoError(t, err)

	mu.Lock()

	finalCount := callbackCount

	mu.Unlock()

	assert.GreaterOrEqual(t, finalCount, 0)

	// No further firings after Stop
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, finalCount, callbackCount)
}

func TestFactory_Create(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	factory := NewFactory()

	assert.Equal(t, "schedule", factory.ID())

	_, err := factory.Create(nil, logger)
	assert.ErrorIs(t, err, ErrConfigNil)

	source, err := factory.Create(map[string]any{
		"trigger_id":  "trigger-1",
		"workflow_id": "workflow-1",
		"cron":        "0 2 * * *",
	}, logger)
	require.NoError(t, err)

	// The factory product satisfies the source contract
	var _ protocol.TriggerSource = source

	assert.NotNil(t, source)
}
