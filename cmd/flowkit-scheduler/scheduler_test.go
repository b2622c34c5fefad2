package main

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tavolohq/flowkit/pkg/approval"
	"github.com/tavolohq/flowkit/pkg/dispatch"
	"github.com/tavolohq/flowkit/pkg/eventbus"
	"github.com/tavolohq/flowkit/pkg/events"
	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence"
	"github.com/tavolohq/flowkit/pkg/persistence/memory"
	"github.com/tavolohq/flowkit/pkg/registry"
	"github.com/tavolohq/flowkit/pkg/workflow"
)

type stubBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *stubBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)

	return nil
}

func (b *stubBus) Handle(events.EventType, eventbus.EventHandler) error { return nil }

func (b *stubBus) Subscribe(context.Context) error { return nil }

func (b *stubBus) Close() error { return nil }

func (b *stubBus) GenerateID() string { return uuid.New().String() }

func (b *stubBus) typesSeen() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	types := make([]events.EventType, 0, len(b.events))
	for _, event := range b.events {
		types = append(types, event.GetType())
	}

	return types
}

func (b *stubBus) decidedEvents() []events.ApprovalDecided {
	b.mu.Lock()
	defer b.mu.Unlock()

	var decided []events.ApprovalDecided

	for _, event := range b.events {
		if d, ok := event.(events.ApprovalDecided); ok {
			decided = append(decided, d)
		}
	}

	return decided
}

type schedulerEnv struct {
	scheduler   *Scheduler
	executor    *workflow.Executor
	approvals   *approval.Service
	persistence persistence.Persistence
	bus         *stubBus
}

func newSchedulerEnv(t *testing.T) *schedulerEnv {
	t.Helper()

	store := memory.NewPersistence()
	bus := &stubBus{}
	logger := slog.Default()
	reg := registry.NewRegistry(logger)
	dispatcher := dispatch.NewDispatcher(reg, logger, nil)
	approvals := approval.NewService(store, bus, logger, nil)
	executor := workflow.NewExecutor(store, dispatcher, approvals, bus, logger, nil)
	sources := workflow.NewSourceManager("scheduler-test", store, reg, executor, logger)
	tracer := noop.NewTracerProvider().Tracer("test")

	return &schedulerEnv{
		scheduler:   NewScheduler("scheduler-test", store, executor, approvals, sources, time.Minute, tracer, logger),
		executor:    executor,
		approvals:   approvals,
		persistence: store,
		bus:         bus,
	}
}

func (env *schedulerEnv) saveWorkflow(t *testing.T, workflow *models.Workflow) {
	t.Helper()

	require.NoError(t, env.persistence.Workflows().Save(context.Background(), workflow))
}

func (env *schedulerEnv) fetchExecution(t *testing.T, id string) *models.WorkflowExecution {
	t.Helper()

	execution, err := env.persistence.Executions().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, execution)

	return execution
}

func delayWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:     "wf-delayed",
		Name:   "Delayed notify",
		Status: models.WorkflowStatusActive,
		Steps: []*models.WorkflowStep{
			{
				ID: "step-wait", Name: "Wait an hour", Type: models.StepTypeDelay, Position: 0, Enabled: true,
				DelaySeconds: 3600, NextStepID: "step-after",
			},
			{
				ID: "step-after", Name: "Notify", Type: models.StepTypeAction, Position: 1, Enabled: true,
				Action: &models.WorkflowAction{
					ID:            "action-notify",
					Type:          models.ActionTypeLogMessage,
					Configuration: map[string]any{"message": "delay over"},
				},
			},
		},
	}
}

func approvalWorkflow(escalationUser string) *models.Workflow {
	return &models.Workflow{
		ID:     "wf-signoff",
		Name:   "Purchase signoff",
		Status: models.WorkflowStatusActive,
		Steps: []*models.WorkflowStep{
			{
				ID: "step-signoff", Name: "Manager signoff", Type: models.StepTypeApproval, Position: 0, Enabled: true,
				Approval: &models.ApprovalPolicy{
					Approvers:      []string{"dana", "erin"},
					TimeoutHours:   1,
					EscalationUser: escalationUser,
				},
				NextStepID: "step-after",
			},
			{
				ID: "step-after", Name: "Notify", Type: models.StepTypeAction, Position: 1, Enabled: true,
				Action: &models.WorkflowAction{
					ID:            "action-notify",
					Type:          models.ActionTypeLogMessage,
					Configuration: map[string]any{"message": "purchase decided"},
				},
			},
		},
	}
}

// parkOnDelay runs an execution onto its delay step so it waits with a
// deadline.
func (env *schedulerEnv) parkOnDelay(t *testing.T) *models.WorkflowExecution {
	t.Helper()

	env.saveWorkflow(t, delayWorkflow())

	execution, err := env.executor.StartExecution(context.Background(), "wf-delayed", models.TriggerTypeManual, "alice", nil)
	require.NoError(t, err)
	require.NotNil(t, execution)

	stepExec, err := env.executor.RunStep(context.Background(), execution.ID, "step-wait")
	require.NoError(t, err)
	require.NotNil(t, stepExec)

	parked := env.fetchExecution(t, execution.ID)
	require.Equal(t, models.ExecutionStatusWaiting, parked.Status)
	require.NotNil(t, parked.WaitUntil)

	return parked
}

// parkOnApproval runs an execution onto its approval step and returns the
// parked execution together with its request.
func (env *schedulerEnv) parkOnApproval(t *testing.T, escalationUser string) (*models.WorkflowExecution, *models.ApprovalRequest) {
	t.Helper()

	env.saveWorkflow(t, approvalWorkflow(escalationUser))

	execution, err := env.executor.StartExecution(context.Background(), "wf-signoff", models.TriggerTypeManual, "alice", nil)
	require.NoError(t, err)
	require.NotNil(t, execution)

	stepExec, err := env.executor.RunStep(context.Background(), execution.ID, "step-signoff")
	require.NoError(t, err)
	require.NotNil(t, stepExec)

	parked := env.fetchExecution(t, execution.ID)
	require.Equal(t, models.ExecutionStatusWaiting, parked.Status)
	require.NotEmpty(t, parked.ApprovalRequestID)

	request, err := env.persistence.Approvals().GetByID(context.Background(), parked.ApprovalRequestID)
	require.NoError(t, err)
	require.NotNil(t, request)

	return parked, request
}

// backdate moves a wait deadline or due time into the past.
func backdate() time.Time {
	return time.Now().UTC().Add(-time.Minute)
}

func TestNewSchedulerDefaultsInterval(t *testing.T) {
	env := newSchedulerEnv(t)
	assert.Equal(t, time.Minute, env.scheduler.interval)

	fallback := NewScheduler("scheduler-test", env.persistence, env.executor, env.approvals, nil, 0,
		noop.NewTracerProvider().Tracer("test"), slog.Default())
	assert.Equal(t, defaultSweepInterval, fallback.interval)
}

func TestSweepResumesDueDelay(t *testing.T) {
	env := newSchedulerEnv(t)
	parked := env.parkOnDelay(t)

	due := backdate()
	parked.WaitUntil = &due
	require.NoError(t, env.persistence.Executions().Save(context.Background(), parked))

	env.scheduler.sweep(context.Background())

	updated := env.fetchExecution(t, parked.ID)
	assert.Equal(t, models.ExecutionStatusRunning, updated.Status)
	assert.Equal(t, "step-after", updated.CurrentStepID)
	assert.Nil(t, updated.WaitUntil)

	assert.Contains(t, env.bus.typesSeen(), events.ExecutionResumedEvent)
}

func TestSweepIgnoresFutureDelay(t *testing.T) {
	env := newSchedulerEnv(t)
	parked := env.parkOnDelay(t)

	env.scheduler.sweep(context.Background())

	updated := env.fetchExecution(t, parked.ID)
	assert.Equal(t, models.ExecutionStatusWaiting, updated.Status)
	assert.Equal(t, "step-wait", updated.CurrentStepID)
}

func TestSweepIgnoresApprovalWaits(t *testing.T) {
	env := newSchedulerEnv(t)
	parked, _ := env.parkOnApproval(t, "")

	// The request is not yet due and the execution carries no wait deadline,
	// so the sweep must leave both alone.
	env.scheduler.sweep(context.Background())

	updated := env.fetchExecution(t, parked.ID)
	assert.Equal(t, models.ExecutionStatusWaiting, updated.Status)
	assert.Equal(t, parked.ApprovalRequestID, updated.ApprovalRequestID)
}

func TestSweepEscalatesOverdueApproval(t *testing.T) {
	env := newSchedulerEnv(t)
	parked, request := env.parkOnApproval(t, "frank")

	request.DueAt = backdate()
	require.NoError(t, env.persistence.Approvals().Save(context.Background(), request))

	env.scheduler.sweep(context.Background())

	updated, err := env.persistence.Approvals().GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusEscalated, updated.Status)
	assert.Contains(t, updated.Approvers, "frank")

	// Escalation keeps the execution parked; the vote is still open.
	assert.Equal(t, models.ExecutionStatusWaiting, env.fetchExecution(t, parked.ID).Status)
	assert.Contains(t, env.bus.typesSeen(), events.ApprovalEscalatedEvent)

	// An escalated request is no longer overdue, so the next sweep leaves it
	// alone instead of escalating again.
	env.scheduler.sweep(context.Background())

	again, err := env.persistence.Approvals().GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Len(t, again.Decisions, 1)
}

func TestSweepExpiresOverdueApproval(t *testing.T) {
	env := newSchedulerEnv(t)
	parked, request := env.parkOnApproval(t, "")

	request.DueAt = backdate()
	require.NoError(t, env.persistence.Approvals().Save(context.Background(), request))

	env.scheduler.sweep(context.Background())

	updated, err := env.persistence.Approvals().GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusExpired, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	// The scheduler only closes the request; the decision event carries the
	// outcome to whoever finishes the execution.
	decided := env.bus.decidedEvents()
	require.Len(t, decided, 1)
	assert.Equal(t, request.ID, decided[0].RequestID)
	assert.Equal(t, parked.ID, decided[0].ExecutionID)
	assert.Equal(t, models.ApprovalStatusExpired, decided[0].Status)
}

func TestSweepEmptyStore(t *testing.T) {
	env := newSchedulerEnv(t)

	env.scheduler.sweep(context.Background())

	assert.Empty(t, env.bus.typesSeen())
}
