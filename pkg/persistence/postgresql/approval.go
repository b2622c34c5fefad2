package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence"
)

// ApprovalRepository persists approval requests. The approver list and the
// decision trail are JSONB columns; the scheduler finds overdue requests
// through the due_at index.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewApprovalRepository creates a new approval request repository.
func NewApprovalRepository(db *sql.DB, logger *slog.Logger) *ApprovalRepository {
	return &ApprovalRepository{db: db, logger: logger}
}

func (r *ApprovalRepository) Save(ctx context.Context, request *models.ApprovalRequest) error {
	if request == nil || request.ID == "" {
		return persistence.NewStorageError("Save", "approval request", "", persistence.ErrInvalidID)
	}

	approversJSON, err := json.Marshal(request.Approvers)
	if err != nil {
		return fmt.Errorf("failed to marshal approvers: %w", err)
	}

	decisionsJSON, err := json.Marshal(request.Decisions)
	if err != nil {
		return fmt.Errorf("failed to marshal decisions: %w", err)
	}

	query := `
		INSERT INTO approval_requests (id, execution_id, workflow_id, step_id,
			requested_by, approvers, type, required_approvals,
			received_approvals, allow_delegation, escalation_user, status,
			due_at, decisions, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			approvers = EXCLUDED.approvers,
			received_approvals = EXCLUDED.received_approvals,
			status = EXCLUDED.status,
			due_at = EXCLUDED.due_at,
			decisions = EXCLUDED.decisions,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		request.ID,
		request.ExecutionID,
		request.WorkflowID,
		request.StepID,
		request.RequestedBy,
		approversJSON,
		request.Type,
		request.RequiredApprovals,
		request.ReceivedApprovals,
		request.AllowDelegation,
		request.EscalationUser,
		request.Status,
		request.DueAt,
		decisionsJSON,
		request.CreatedAt,
		request.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save approval request: %w", err)
	}

	return nil
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	query := `
		SELECT
			id
		  , execution_id
		  , workflow_id
		  , step_id
		  , requested_by
		  , approvers
		  , type
		  , required_approvals
		  , received_approvals
		  , allow_delegation
		  , escalation_user
		  , status
		  , due_at
		  , decisions
		  , created_at
		  , completed_at
		FROM approval_requests
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	request, err := r.scanApprovalRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan approval request: %w", err)
	}

	return request, nil
}

func (r *ApprovalRepository) List(ctx context.Context, filter persistence.ApprovalFilter) ([]*models.ApprovalRequest, error) {
	query := `
		SELECT
			id
		  , execution_id
		  , workflow_id
		  , step_id
		  , requested_by
		  , approvers
		  , type
		  , required_approvals
		  , received_approvals
		  , allow_delegation
		  , escalation_user
		  , status
		  , due_at
		  , decisions
		  , created_at
		  , completed_at
		FROM approval_requests
	`

	conditions := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if filter.ExecutionID != "" {
		args = append(args, filter.ExecutionID)
		conditions = append(conditions, fmt.Sprintf("execution_id = $%d", len(args)))
	}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	if filter.Approver != "" {
		// jsonb ? matches string elements of the approvers array
		args = append(args, filter.Approver)
		conditions = append(conditions, fmt.Sprintf("approvers ? $%d", len(args)))
	}

	if filter.DueBefore != nil {
		args = append(args, *filter.DueBefore)
		conditions = append(conditions, fmt.Sprintf("due_at < $%d", len(args)))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval requests: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	requests := make([]*models.ApprovalRequest, 0)

	for rows.Next() {
		request, err := r.scanApprovalRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}

		requests = append(requests, request)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating approval requests: %w", err)
	}

	return requests, nil
}

func (r *ApprovalRepository) scanApprovalRequest(scanner interface {
	Scan(dest ...any) error
}) (*models.ApprovalRequest, error) {
	var (
		request                      models.ApprovalRequest
		approversJSON, decisionsJSON []byte
	)

	err := scanner.Scan(
		&request.ID,
		&request.ExecutionID,
		&request.WorkflowID,
		&request.StepID,
		&request.RequestedBy,
		&approversJSON,
		&request.Type,
		&request.RequiredApprovals,
		&request.ReceivedApprovals,
		&request.AllowDelegation,
		&request.EscalationUser,
		&request.Status,
		&request.DueAt,
		&decisionsJSON,
		&request.CreatedAt,
		&request.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if approversJSON != nil {
		err := json.Unmarshal(approversJSON, &request.Approvers)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal approvers: %w", err)
		}
	}

	request.Decisions = make([]models.ApprovalDecision, 0)

	if decisionsJSON != nil {
		err := json.Unmarshal(decisionsJSON, &request.Decisions)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal decisions: %w", err)
		}
	}

	return &request, nil
}
