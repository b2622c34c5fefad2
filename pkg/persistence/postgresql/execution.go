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

// ExecutionRepository persists executions and their append-only step attempt
// history.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution == nil || execution.ID == "" {
		return persistence.NewStorageError("Save", "execution", "", persistence.ErrInvalidID)
	}

	contextJSON, err := marshalNullable(execution.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal execution context: %w", err)
	}

	variablesJSON, err := marshalNullable(execution.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal execution variables: %w", err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, status, trigger_type,
			triggered_by, current_step_id, context, variables,
			parent_execution_id, error_message, wait_until,
			approval_request_id, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_step_id = EXCLUDED.current_step_id,
			context = EXCLUDED.context,
			variables = EXCLUDED.variables,
			error_message = EXCLUDED.error_message,
			wait_until = EXCLUDED.wait_until,
			approval_request_id = EXCLUDED.approval_request_id,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.Status,
		execution.TriggerType,
		execution.TriggeredBy,
		execution.CurrentStepID,
		contextJSON,
		variablesJSON,
		execution.ParentExecutionID,
		execution.ErrorMessage,
		execution.WaitUntil,
		execution.ApprovalRequestID,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , status
		  , trigger_type
		  , triggered_by
		  , current_step_id
		  , context
		  , variables
		  , parent_execution_id
		  , error_message
		  , wait_until
		  , approval_request_id
		  , started_at
		  , completed_at
		FROM executions
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	execution, err := r.scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) List(ctx context.Context, filter persistence.ExecutionFilter) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , status
		  , trigger_type
		  , triggered_by
		  , current_step_id
		  , context
		  , variables
		  , parent_execution_id
		  , error_message
		  , wait_until
		  , approval_request_id
		  , started_at
		  , completed_at
		FROM executions
	`

	conditions := make([]string, 0, 3)
	args := make([]any, 0, 4)

	if filter.WorkflowID != "" {
		args = append(args, filter.WorkflowID)
		conditions = append(conditions, fmt.Sprintf("workflow_id = $%d", len(args)))
	}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	if filter.WaitingBefore != nil {
		args = append(args, models.ExecutionStatusWaiting)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))

		args = append(args, *filter.WaitingBefore)
		conditions = append(conditions, fmt.Sprintf("wait_until IS NOT NULL AND wait_until <= $%d", len(args)))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY started_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// SaveStep upserts one step attempt by id. The same record is saved once when
// the attempt starts and again when it finishes; the insert order is kept so
// histories read back in first-write order.
func (r *ExecutionRepository) SaveStep(ctx context.Context, step *models.StepExecution) error {
	if step == nil || step.ID == "" || step.ExecutionID == "" {
		return persistence.NewStorageError("SaveStep", "step execution", "", persistence.ErrInvalidID)
	}

	inputJSON, err := marshalNullable(step.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal step input: %w", err)
	}

	outputJSON, err := marshalNullable(step.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}

	query := `
		INSERT INTO step_executions (id, execution_id, step_id, step_type,
			status, input, output, error_message, started_at, completed_at,
			duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			input = EXCLUDED.input,
			output = EXCLUDED.output,
			error_message = EXCLUDED.error_message,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID,
		step.ExecutionID,
		step.StepID,
		step.StepType,
		step.Status,
		inputJSON,
		outputJSON,
		step.ErrorMessage,
		step.StartedAt,
		step.CompletedAt,
		step.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to save step execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) StepsByExecution(ctx context.Context, executionID string) ([]*models.StepExecution, error) {
	query := `
		SELECT
			id
		  , execution_id
		  , step_id
		  , step_type
		  , status
		  , input
		  , output
		  , error_message
		  , started_at
		  , completed_at
		  , duration_ms
		FROM step_executions
		WHERE execution_id = $1
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.StepExecution, 0)

	for rows.Next() {
		var (
			step                  models.StepExecution
			inputJSON, outputJSON []byte
		)

		err := rows.Scan(
			&step.ID,
			&step.ExecutionID,
			&step.StepID,
			&step.StepType,
			&step.Status,
			&inputJSON,
			&outputJSON,
			&step.ErrorMessage,
			&step.StartedAt,
			&step.CompletedAt,
			&step.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step execution: %w", err)
		}

		if inputJSON != nil {
			err := json.Unmarshal(inputJSON, &step.Input)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal step input: %w", err)
			}
		}

		if outputJSON != nil {
			err := json.Unmarshal(outputJSON, &step.Output)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal step output: %w", err)
			}
		}

		steps = append(steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating step executions: %w", err)
	}

	return steps, nil
}

func (r *ExecutionRepository) scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowExecution, error) {
	var (
		execution                  models.WorkflowExecution
		contextJSON, variablesJSON []byte
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.Status,
		&execution.TriggerType,
		&execution.TriggeredBy,
		&execution.CurrentStepID,
		&contextJSON,
		&variablesJSON,
		&execution.ParentExecutionID,
		&execution.ErrorMessage,
		&execution.WaitUntil,
		&execution.ApprovalRequestID,
		&execution.StartedAt,
		&execution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if contextJSON != nil {
		err := json.Unmarshal(contextJSON, &execution.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution context: %w", err)
		}
	}

	if variablesJSON != nil {
		err := json.Unmarshal(variablesJSON, &execution.Variables)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution variables: %w", err)
		}
	}

	return &execution, nil
}
