// Package approval coordinates approval requests: creation from approval
// steps, vote handling from outside callers and the overdue sweep.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tavolohq/flowkit/pkg/eventbus"
	"github.com/tavolohq/flowkit/pkg/events"
	"github.com/tavolohq/flowkit/pkg/metrics"
	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence"
)

// Service serializes all vote handling per request. Approvers act from
// notification surfaces at the same time, so every mutation takes the
// request's lock before loading state.
type Service struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger
	metrics     *metrics.Recorder
	locks       sync.Map
}

func NewService(p persistence.Persistence, bus eventbus.EventPublisher, logger *slog.Logger, recorder *metrics.Recorder) *Service {
	return &Service{
		persistence: p,
		eventBus:    bus,
		logger:      logger.With("module", "approval"),
		metrics:     recorder,
	}
}

// CreateRequest opens a pending request for an approval step. The caller
// flips the owning execution to waiting.
func (s *Service) CreateRequest(ctx context.Context, workflow *models.Workflow, execution *models.WorkflowExecution, step *models.WorkflowStep) (*models.ApprovalRequest, error) {
	if step.Approval == nil {
		return nil, fmt.Errorf("step %s has no approval policy", step.ID)
	}

	request := models.NewApprovalRequest(
		uuid.New().String(),
		execution.ID,
		workflow.ID,
		step.ID,
		execution.TriggeredBy,
		step.Approval,
		time.Now().UTC(),
	)

	err := s.persistence.Approvals().Save(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to save approval request: %w", err)
	}

	s.logger.InfoContext(ctx, "Created approval request",
		"request_id", request.ID, "execution_id", execution.ID, "step_id", step.ID,
		"approval_type", request.Type, "approvers", len(request.Approvers))

	event := events.ApprovalRequested{
		BaseEvent:   events.NewBaseEvent(events.ApprovalRequestedEvent, workflow.ID),
		RequestID:   request.ID,
		ExecutionID: execution.ID,
		StepID:      step.ID,
		Approvers:   request.Approvers,
		DueAt:       request.DueAt,
	}
	s.publish(ctx, execution.ID, event)

	return request, nil
}

// GetRequest returns nil without error when the id is unknown.
func (s *Service) GetRequest(ctx context.Context, requestID string) (*models.ApprovalRequest, error) {
	return s.persistence.Approvals().GetByID(ctx, requestID)
}

// Approve records one vote. The bool reports whether the vote was accepted:
// unknown approvers and terminal requests are ignored, not errors.
func (s *Service) Approve(ctx context.Context, requestID, userID, comment string) (*models.ApprovalRequest, bool, error) {
	lock := s.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	request, err := s.persistence.Approvals().GetByID(ctx, requestID)
	if err != nil || request == nil {
		return nil, false, err
	}

	if !request.Approve(userID, comment, time.Now().UTC()) {
		s.logger.WarnContext(ctx, "Ignored approve call",
			"request_id", requestID, "user_id", userID, "status", request.Status)

		return request, false, nil
	}

	err = s.persistence.Approvals().Save(ctx, request)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save approval request: %w", err)
	}

	s.logger.InfoContext(ctx, "Recorded approval vote",
		"request_id", requestID, "user_id", userID,
		"received", request.ReceivedApprovals, "status", request.Status)

	if request.IsTerminal() {
		s.publishDecided(ctx, request, userID, comment)
	}

	return request, true, nil
}

// Reject is a veto: one accepted rejection closes the request regardless of
// approval type or prior votes.
func (s *Service) Reject(ctx context.Context, requestID, userID, comment string) (*models.ApprovalRequest, bool, error) {
	lock := s.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	request, err := s.persistence.Approvals().GetByID(ctx, requestID)
	if err != nil || request == nil {
		return nil, false, err
	}

	if !request.Reject(userID, comment, time.Now().UTC()) {
		s.logger.WarnContext(ctx, "Ignored reject call",
			"request_id", requestID, "user_id", userID, "status", request.Status)

		return request, false, nil
	}

	err = s.persistence.Approvals().Save(ctx, request)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save approval request: %w", err)
	}

	s.logger.InfoContext(ctx, "Recorded rejection", "request_id", requestID, "user_id", userID)
	s.publishDecided(ctx, request, userID, comment)

	return request, true, nil
}

// Delegate swaps one approver for another without touching the vote count.
func (s *Service) Delegate(ctx context.Context, requestID, fromUserID, toUserID, comment string) (*models.ApprovalRequest, bool, error) {
	lock := s.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	request, err := s.persistence.Approvals().GetByID(ctx, requestID)
	if err != nil || request == nil {
		return nil, false, err
	}

	if !request.Delegate(fromUserID, toUserID, comment, time.Now().UTC()) {
		s.logger.WarnContext(ctx, "Ignored delegate call",
			"request_id", requestID, "from", fromUserID, "to", toUserID)

		return request, false, nil
	}

	err = s.persistence.Approvals().Save(ctx, request)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save approval request: %w", err)
	}

	s.logger.InfoContext(ctx, "Delegated approval",
		"request_id", requestID, "from", fromUserID, "to", toUserID)

	event := events.ApprovalDelegated{
		BaseEvent:   events.NewBaseEvent(events.ApprovalDelegatedEvent, request.WorkflowID),
		RequestID:   request.ID,
		ExecutionID: request.ExecutionID,
		FromUserID:  fromUserID,
		ToUserID:    toUserID,
	}
	s.publish(ctx, request.ExecutionID, event)

	return request, true, nil
}

// Escalate routes an overdue request to its policy's escalation user. Voting
// stays open afterward.
func (s *Service) Escalate(ctx context.Context, requestID string) (*models.ApprovalRequest, bool, error) {
	lock := s.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	request, err := s.persistence.Approvals().GetByID(ctx, requestID)
	if err != nil || request == nil {
		return nil, false, err
	}

	if request.EscalationUser == "" {
		return request, false, nil
	}

	if !request.Escalate(request.EscalationUser, time.Now().UTC()) {
		return request, false, nil
	}

	err = s.persistence.Approvals().Save(ctx, request)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save approval request: %w", err)
	}

	s.logger.InfoContext(ctx, "Escalated approval request",
		"request_id", requestID, "escalated_to", request.EscalationUser)

	event := events.ApprovalEscalated{
		BaseEvent:   events.NewBaseEvent(events.ApprovalEscalatedEvent, request.WorkflowID),
		RequestID:   request.ID,
		ExecutionID: request.ExecutionID,
		EscalatedTo: request.EscalationUser,
	}
	s.publish(ctx, request.ExecutionID, event)

	return request, true, nil
}

// Expire closes a pending request whose deadline passed without a decision.
func (s *Service) Expire(ctx context.Context, requestID string) (*models.ApprovalRequest, bool, error) {
	lock := s.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	request, err := s.persistence.Approvals().GetByID(ctx, requestID)
	if err != nil || request == nil {
		return nil, false, err
	}

	if !request.Expire(time.Now().UTC()) {
		return request, false, nil
	}

	err = s.persistence.Approvals().Save(ctx, request)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save approval request: %w", err)
	}

	s.logger.InfoContext(ctx, "Expired approval request", "request_id", requestID)
	s.publishDecided(ctx, request, "", "")

	return request, true, nil
}

// ListOverdue returns pending requests whose due time has passed. The
// scheduler sweeps these into escalation or expiry.
func (s *Service) ListOverdue(ctx context.Context, now time.Time) ([]*models.ApprovalRequest, error) {
	return s.persistence.Approvals().List(ctx, persistence.ApprovalFilter{
		Status:    models.ApprovalStatusPending,
		DueBefore: &now,
	})
}

// ListPendingForApprover returns the open requests a user can vote on.
func (s *Service) ListPendingForApprover(ctx context.Context, userID string) ([]*models.ApprovalRequest, error) {
	return s.persistence.Approvals().List(ctx, persistence.ApprovalFilter{
		Status:   models.ApprovalStatusPending,
		Approver: userID,
	})
}

func (s *Service) lockFor(requestID string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(requestID, &sync.Mutex{})

	return lock.(*sync.Mutex)
}

func (s *Service) publishDecided(ctx context.Context, request *models.ApprovalRequest, decidedBy, comment string) {
	s.metrics.RecordApprovalDecision(string(request.Status))

	event := events.ApprovalDecided{
		BaseEvent:   events.NewBaseEvent(events.ApprovalDecidedEvent, request.WorkflowID),
		RequestID:   request.ID,
		ExecutionID: request.ExecutionID,
		Status:      request.Status,
		DecidedBy:   decidedBy,
		Comment:     comment,
	}
	s.publish(ctx, request.ExecutionID, event)
}

func (s *Service) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.eventBus == nil {
		return
	}

	err := s.eventBus.Publish(ctx, key, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
