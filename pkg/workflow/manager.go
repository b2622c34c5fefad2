package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence"
	"github.com/tavolohq/flowkit/pkg/protocol"
	"github.com/tavolohq/flowkit/pkg/registry"
)

// SourceManager runs the trigger sources behind the active workflows: cron
// schedules, queue consumers. It belongs to the scheduler process; the engine
// core never starts sources on its own.
type SourceManager struct {
	managerID   string
	persistence persistence.Persistence
	registry    *registry.Registry
	executor    *Executor
	logger      *slog.Logger

	mu      sync.Mutex
	running map[string]protocol.TriggerSource
}

func NewSourceManager(
	managerID string,
	persistence persistence.Persistence,
	registry *registry.Registry,
	executor *Executor,
	logger *slog.Logger,
) *SourceManager {
	return &SourceManager{
		managerID:   managerID,
		persistence: persistence,
		registry:    registry,
		executor:    executor,
		running:     make(map[string]protocol.TriggerSource),
		logger: logger.With(
			"module", "source_manager",
			"manager_id", managerID,
		),
	}
}

// Start creates and starts a source for every enabled source-backed trigger
// of every active workflow. Triggers whose source fails to build or start are
// logged and skipped; one bad trigger must not block the rest.
func (m *SourceManager) Start(ctx context.Context) error {
	workflows, err := m.persistence.Workflows().List(ctx, persistence.WorkflowFilter{Status: models.WorkflowStatusActive})
	if err != nil {
		return fmt.Errorf("failed to list active workflows: %w", err)
	}

	if len(workflows) == 0 {
		m.logger.InfoContext(ctx, "No active workflows with trigger sources")

		return nil
	}

	m.logger.InfoContext(ctx, "Starting trigger sources", "workflows", len(workflows))

	for _, workflow := range workflows {
		m.startWorkflowSources(ctx, workflow)
	}

	return nil
}

func (m *SourceManager) startWorkflowSources(ctx context.Context, workflow *models.Workflow) {
	logger := m.logger.With("workflow_id", workflow.ID)

	for _, trigger := range workflow.Triggers {
		if !trigger.Enabled {
			continue
		}

		sourceID := sourceIDFor(trigger)
		if sourceID == "" {
			continue
		}

		config := make(map[string]any, len(trigger.Configuration)+2)
		for key, value := range trigger.Configuration {
			config[key] = value
		}

		config["workflow_id"] = workflow.ID
		config["trigger_id"] = trigger.ID

		source, err := m.registry.CreateTriggerSource(sourceID, config)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to create trigger source",
				"trigger_id", trigger.ID, "source", sourceID, "error", err)

			continue
		}

		err = source.Start(ctx, m.fireCallback(workflow.ID, trigger.ID))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to start trigger source",
				"trigger_id", trigger.ID, "source", sourceID, "error", err)

			continue
		}

		m.mu.Lock()
		m.running[trigger.ID] = source
		m.mu.Unlock()

		logger.InfoContext(ctx, "Started trigger source", "trigger_id", trigger.ID, "source", sourceID)
	}
}

// fireCallback routes a source firing into the engine. Firing failures are
// logged, never returned: a broken workflow must not stop its source.
func (m *SourceManager) fireCallback(workflowID, triggerID string) protocol.TriggerCallback {
	return func(ctx context.Context, data map[string]any) error {
		_, err := m.executor.FireTrigger(ctx, workflowID, triggerID, data, m.managerID)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to fire trigger",
				"workflow_id", workflowID, "trigger_id", triggerID, "error", err)
		}

		return nil
	}
}

// Stop stops every running source and clears the running set.
func (m *SourceManager) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for triggerID, source := range m.running {
		err := source.Stop(ctx)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to stop trigger source", "trigger_id", triggerID, "error", err)
		}
	}

	m.running = make(map[string]protocol.TriggerSource)
}

// Restart reloads the active workflows and rebuilds all sources. The
// scheduler calls this on SIGHUP so edited schedules take effect without a
// process restart.
func (m *SourceManager) Restart(ctx context.Context) error {
	m.Stop(ctx)

	return m.Start(ctx)
}

// RunningCount reports how many sources are currently started.
func (m *SourceManager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.running)
}

// sourceIDFor maps a trigger to the source that feeds it. Schedule triggers
// always run on the cron source. Event triggers normally arrive through the
// bus, but can opt into a polling source via configuration. Manual, webhook
// and condition triggers are fired by the API and the worker, not by a
// source.
func sourceIDFor(trigger *models.WorkflowTrigger) string {
	switch trigger.Type {
	case models.TriggerTypeSchedule:
		return "schedule"
	case models.TriggerTypeEvent:
		if source, ok := trigger.Configuration["source"].(string); ok {
			return source
		}

		return ""
	default:
		return ""
	}
}
