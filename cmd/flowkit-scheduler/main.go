package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/tavolohq/flowkit/pkg/approval"
	"github.com/tavolohq/flowkit/pkg/cmd"
	"github.com/tavolohq/flowkit/pkg/dispatch"
	"github.com/tavolohq/flowkit/pkg/log"
	"github.com/tavolohq/flowkit/pkg/metrics"
	"github.com/tavolohq/flowkit/pkg/otelhelper"
	"github.com/tavolohq/flowkit/pkg/workflow"
)

func main() {
	cmd := &cli.Command{
		Name:                  "flowkit-scheduler",
		Usage:                 "Fire schedule triggers and sweep waiting executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "scheduler-id",
				Aliases: []string{"id"},
				Usage:   "Custom scheduler ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("SCHEDULER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated list of Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "How often to sweep for elapsed delays and overdue approvals",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			schedulerID := command.String("scheduler-id")
			if schedulerID == "" {
				schedulerID = "scheduler-" + uuid.New().String()[:8]
			}

			logger := log.WithModule(log.Setup(command.String("log-level")), "flowkit-scheduler").
				With("scheduler_id", schedulerID)

			logger.InfoContext(ctx, "Initializing Flowkit Scheduler")

			tracer, err := otelhelper.NewTracer(ctx, "flowkit-scheduler")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			registry := cmd.NewRegistry(logger)

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(
				command.String("event-bus"),
				"flowkit-scheduler",
				strings.Split(command.String("kafka-brokers"), ","),
				logger,
			)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			recorder := metrics.NewRecorder(nil)
			approvals := approval.NewService(persistence, eventBus, logger, recorder)
			dispatcher := dispatch.NewDispatcher(registry, logger, recorder)
			executor := workflow.NewExecutor(persistence, dispatcher, approvals, eventBus, logger, recorder)
			sources := workflow.NewSourceManager(schedulerID, persistence, registry, executor, logger)

			scheduler := NewScheduler(
				schedulerID,
				persistence,
				executor,
				approvals,
				sources,
				command.Duration("sweep-interval"),
				tracer,
				logger,
			)

			err = scheduler.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start scheduler", "error", err)
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
