package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tavolohq/flowkit/pkg/channels/gochannel"
	"github.com/tavolohq/flowkit/pkg/channels/kafka"
	"github.com/tavolohq/flowkit/pkg/eventbus"
)

// NewEventBus creates the event bus for a driver process. Kafka connects the
// API, worker and scheduler across processes; gochannel keeps everything
// in-process for development and single-binary runs.
func NewEventBus(provider, serviceName string, brokers []string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName, brokers)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create gochannel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
