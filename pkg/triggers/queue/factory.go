package queue

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tavolohq/flowkit/pkg/protocol"
)

var ErrConfigNil = errors.New("config cannot be nil")

func NewFactory() *Factory {
	return &Factory{}
}

type Factory struct{}

func (f *Factory) ID() string {
	return "queue"
}

func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.TriggerSource, error) {
	if config == nil {
		return nil, ErrConfigNil
	}

	source, err := NewSource(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue trigger source: %w", err)
	}

	return source, nil
}
