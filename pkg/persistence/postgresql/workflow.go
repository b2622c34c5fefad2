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

// WorkflowRepository persists workflow definitions. Scalar fields live on the
// workflows table, steps and triggers as child rows; saving replaces the
// child rows wholesale inside one transaction.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return persistence.NewStorageError("Save", "workflow", "", persistence.ErrInvalidID)
	}

	tagsJSON, err := json.Marshal(workflow.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	workflowQuery := `
		INSERT INTO workflows (id, name, description, workspace_id, project_id,
			type, status, version, tags, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			workspace_id = EXCLUDED.workspace_id,
			project_id = EXCLUDED.project_id,
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			version = EXCLUDED.version,
			tags = EXCLUDED.tags,
			created_by = EXCLUDED.created_by,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, workflowQuery,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.WorkspaceID,
		workflow.ProjectID,
		workflow.Type,
		workflow.Status,
		workflow.Version,
		tagsJSON,
		workflow.CreatedBy,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow base: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_triggers WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing triggers: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_steps WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing steps: %w", err)
	}

	err = r.saveWorkflowSteps(ctx, tx, workflow)
	if err != nil {
		return fmt.Errorf("failed to save workflow steps: %w", err)
	}

	err = r.saveWorkflowTriggers(ctx, tx, workflow)
	if err != nil {
		return fmt.Errorf("failed to save workflow triggers: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , workspace_id
		  , project_id
		  , type
		  , status
		  , version
		  , tags
		  , created_by
		  , created_at
		  , updated_at
		FROM workflows
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	workflow, err := r.scanWorkflowBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadWorkflowChildren(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow steps and triggers: %w", err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) List(ctx context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , workspace_id
		  , project_id
		  , type
		  , status
		  , version
		  , tags
		  , created_by
		  , created_at
		  , updated_at
		FROM workflows
	`

	conditions := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if filter.WorkspaceID != "" {
		args = append(args, filter.WorkspaceID)
		conditions = append(conditions, fmt.Sprintf("workspace_id = $%d", len(args)))
	}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}

	if filter.Tag != "" {
		// jsonb ? matches string elements of the tags array
		args = append(args, filter.Tag)
		conditions = append(conditions, fmt.Sprintf("tags ? $%d", len(args)))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflowBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		err = r.loadWorkflowChildren(ctx, workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow steps and triggers: %w", err)
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStorageError("Delete", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) saveWorkflowSteps(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	query := `
		INSERT INTO workflow_steps (workflow_id, id, name, type, position,
			action, conditions, approval, delay_seconds, sub_workflow_id,
			next_step_id, on_true_step_id, on_false_step_id, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	for _, step := range workflow.Steps {
		actionJSON, err := marshalNullable(step.Action)
		if err != nil {
			return fmt.Errorf("failed to marshal step action: %w", err)
		}

		conditionsJSON, err := marshalNullable(step.Conditions)
		if err != nil {
			return fmt.Errorf("failed to marshal step conditions: %w", err)
		}

		approvalJSON, err := marshalNullable(step.Approval)
		if err != nil {
			return fmt.Errorf("failed to marshal step approval policy: %w", err)
		}

		_, err = tx.ExecContext(ctx, query,
			workflow.ID,
			step.ID,
			step.Name,
			step.Type,
			step.Position,
			actionJSON,
			conditionsJSON,
			approvalJSON,
			step.DelaySeconds,
			step.SubWorkflowID,
			step.NextStepID,
			step.OnTrueStepID,
			step.OnFalseStepID,
			step.Enabled,
		)
		if err != nil {
			return fmt.Errorf("failed to save step %s: %w", step.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) saveWorkflowTriggers(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	query := `
		INSERT INTO workflow_triggers (workflow_id, id, name, type, event_type,
			conditions, configuration, enabled, last_fired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for _, trigger := range workflow.Triggers {
		conditionsJSON, err := marshalNullable(trigger.Conditions)
		if err != nil {
			return fmt.Errorf("failed to marshal trigger conditions: %w", err)
		}

		configurationJSON, err := marshalNullable(trigger.Configuration)
		if err != nil {
			return fmt.Errorf("failed to marshal trigger configuration: %w", err)
		}

		_, err = tx.ExecContext(ctx, query,
			workflow.ID,
			trigger.ID,
			trigger.Name,
			trigger.Type,
			trigger.EventType,
			conditionsJSON,
			configurationJSON,
			trigger.Enabled,
			trigger.LastFiredAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save trigger %s: %w", trigger.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) loadWorkflowChildren(ctx context.Context, workflow *models.Workflow) error {
	steps, err := r.loadSteps(ctx, workflow.ID)
	if err != nil {
		return err
	}

	workflow.Steps = steps

	triggers, err := r.loadTriggers(ctx, workflow.ID)
	if err != nil {
		return err
	}

	workflow.Triggers = triggers

	return nil
}

func (r *WorkflowRepository) loadSteps(ctx context.Context, workflowID string) ([]*models.WorkflowStep, error) {
	query := `
		SELECT
			id
		  , name
		  , type
		  , position
		  , action
		  , conditions
		  , approval
		  , delay_seconds
		  , sub_workflow_id
		  , next_step_id
		  , on_true_step_id
		  , on_false_step_id
		  , enabled
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.WorkflowStep, 0)

	for rows.Next() {
		var (
			step                                     models.WorkflowStep
			actionJSON, conditionsJSON, approvalJSON []byte
		)

		err := rows.Scan(
			&step.ID,
			&step.Name,
			&step.Type,
			&step.Position,
			&actionJSON,
			&conditionsJSON,
			&approvalJSON,
			&step.DelaySeconds,
			&step.SubWorkflowID,
			&step.NextStepID,
			&step.OnTrueStepID,
			&step.OnFalseStepID,
			&step.Enabled,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		if actionJSON != nil {
			err := json.Unmarshal(actionJSON, &step.Action)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal step action: %w", err)
			}
		}

		if conditionsJSON != nil {
			err := json.Unmarshal(conditionsJSON, &step.Conditions)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal step conditions: %w", err)
			}
		}

		if approvalJSON != nil {
			err := json.Unmarshal(approvalJSON, &step.Approval)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal step approval policy: %w", err)
			}
		}

		step.WorkflowID = workflowID

		steps = append(steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

func (r *WorkflowRepository) loadTriggers(ctx context.Context, workflowID string) ([]*models.WorkflowTrigger, error) {
	query := `
		SELECT
			id
		  , name
		  , type
		  , event_type
		  , conditions
		  , configuration
		  , enabled
		  , last_fired_at
		FROM workflow_triggers
		WHERE workflow_id = $1
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow triggers: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	triggers := make([]*models.WorkflowTrigger, 0)

	for rows.Next() {
		var (
			trigger                    models.WorkflowTrigger
			conditionsJSON, configJSON []byte
		)

		err := rows.Scan(
			&trigger.ID,
			&trigger.Name,
			&trigger.Type,
			&trigger.EventType,
			&conditionsJSON,
			&configJSON,
			&trigger.Enabled,
			&trigger.LastFiredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		if conditionsJSON != nil {
			err := json.Unmarshal(conditionsJSON, &trigger.Conditions)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal trigger conditions: %w", err)
			}
		}

		if configJSON != nil {
			err := json.Unmarshal(configJSON, &trigger.Configuration)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal trigger configuration: %w", err)
			}
		}

		trigger.WorkflowID = workflowID

		triggers = append(triggers, &trigger)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return triggers, nil
}

func (r *WorkflowRepository) scanWorkflowBase(scanner interface {
	Scan(dest ...any) error
}) (*models.Workflow, error) {
	var (
		workflow models.Workflow
		tagsJSON []byte
	)

	err := scanner.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.WorkspaceID,
		&workflow.ProjectID,
		&workflow.Type,
		&workflow.Status,
		&workflow.Version,
		&tagsJSON,
		&workflow.CreatedBy,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tagsJSON != nil {
		err := json.Unmarshal(tagsJSON, &workflow.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	return &workflow, nil
}

// marshalNullable marshals a step or trigger payload, keeping SQL NULL for
// absent values instead of the JSON literal null.
func marshalNullable(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	if string(data) == "null" {
		return nil, nil
	}

	return data, nil
}
