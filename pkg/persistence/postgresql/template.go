package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence"
)

// TemplateRepository persists workflow templates. Steps and triggers are
// stored as JSON blobs since templates are read back whole, never queried by
// their parts.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	if template == nil || template.ID == "" {
		return persistence.NewStorageError("Save", "template", "", persistence.ErrInvalidID)
	}

	tagsJSON, err := json.Marshal(template.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	stepsJSON, err := json.Marshal(template.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal template steps: %w", err)
	}

	triggersJSON, err := json.Marshal(template.Triggers)
	if err != nil {
		return fmt.Errorf("failed to marshal template triggers: %w", err)
	}

	query := `
		INSERT INTO workflow_templates (id, name, description, category, type,
			tags, steps, triggers, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			type = EXCLUDED.type,
			tags = EXCLUDED.tags,
			steps = EXCLUDED.steps,
			triggers = EXCLUDED.triggers,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		template.ID,
		template.Name,
		template.Description,
		template.Category,
		template.Type,
		tagsJSON,
		stepsJSON,
		triggersJSON,
		template.CreatedBy,
		template.CreatedAt,
		template.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , category
		  , type
		  , tags
		  , steps
		  , triggers
		  , created_by
		  , created_at
		  , updated_at
		FROM workflow_templates
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	template, err := r.scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	return template, nil
}

func (r *TemplateRepository) List(ctx context.Context, category string) ([]*models.WorkflowTemplate, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , category
		  , type
		  , tags
		  , steps
		  , triggers
		  , created_by
		  , created_at
		  , updated_at
		FROM workflow_templates
	`

	args := make([]any, 0, 1)

	if category != "" {
		args = append(args, category)
		query += " WHERE category = $1"
	}

	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := r.scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflow_templates WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStorageError("Delete", "template", id, persistence.ErrTemplateNotFound)
	}

	return nil
}

func (r *TemplateRepository) scanTemplate(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowTemplate, error) {
	var (
		template                          models.WorkflowTemplate
		tagsJSON, stepsJSON, triggersJSON []byte
	)

	err := scanner.Scan(
		&template.ID,
		&template.Name,
		&template.Description,
		&template.Category,
		&template.Type,
		&tagsJSON,
		&stepsJSON,
		&triggersJSON,
		&template.CreatedBy,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tagsJSON != nil {
		err := json.Unmarshal(tagsJSON, &template.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	if stepsJSON != nil {
		err := json.Unmarshal(stepsJSON, &template.Steps)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal template steps: %w", err)
		}
	}

	if triggersJSON != nil {
		err := json.Unmarshal(triggersJSON, &template.Triggers)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal template triggers: %w", err)
		}
	}

	return &template, nil
}
