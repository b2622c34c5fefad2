package protocol

import (
	"context"
	"log/slog"
)

// TriggerCallback is invoked by a trigger source every time it fires. The
// data map becomes the execution's input context.
type TriggerCallback func(ctx context.Context, data map[string]any) error

// TriggerSource produces trigger firings from an external signal: a cron
// schedule, a queue, a webhook endpoint. Sources run inside the scheduler
// process, not inside the engine core.
type TriggerSource interface {
	Start(ctx context.Context, callback TriggerCallback) error
	Stop(ctx context.Context) error
	Validate() error
}

// TriggerSourceFactory builds a source from a trigger's configuration map.
type TriggerSourceFactory interface {
	Create(config map[string]any, logger *slog.Logger) (TriggerSource, error)
	ID() string
}
