package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tavolohq/flowkit/pkg/models"
	"github.com/tavolohq/flowkit/pkg/persistence"
)

// Stats aggregates counts over workflows, executions and approval requests.
// The numbers come straight from the repositories on every call; prometheus
// counters in pkg/metrics cover the time-series view.
type Stats struct {
	persistence persistence.Persistence
}

// NewStats creates a new statistics service.
func NewStats(persistence persistence.Persistence) *Stats {
	return &Stats{
		persistence: persistence,
	}
}

// Summary is the global statistics snapshot.
type Summary struct {
	Workflows  WorkflowStats  `json:"workflows"`
	Executions ExecutionStats `json:"executions"`
	Approvals  ApprovalStats  `json:"approvals"`
}

type WorkflowStats struct {
	Total    int                           `json:"total"`
	ByStatus map[models.WorkflowStatus]int `json:"by_status"`
}

type ExecutionStats struct {
	Total             int                            `json:"total"`
	ByStatus          map[models.ExecutionStatus]int `json:"by_status"`
	AverageDurationMs int64                          `json:"average_duration_ms"`
}

type ApprovalStats struct {
	Total    int                           `json:"total"`
	ByStatus map[models.ApprovalStatus]int `json:"by_status"`
	Pending  int                           `json:"pending"`
}

// Collect builds the global summary.
func (s *Stats) Collect(ctx context.Context) (*Summary, error) {
	workflows, err := s.persistence.Workflows().List(ctx, persistence.WorkflowFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	executions, err := s.persistence.Executions().List(ctx, persistence.ExecutionFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	approvals, err := s.persistence.Approvals().List(ctx, persistence.ApprovalFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list approval requests: %w", err)
	}

	summary := &Summary{
		Workflows: WorkflowStats{
			Total:    len(workflows),
			ByStatus: make(map[models.WorkflowStatus]int),
		},
		Executions: executionStats(executions),
		Approvals: ApprovalStats{
			Total:    len(approvals),
			ByStatus: make(map[models.ApprovalStatus]int),
		},
	}

	for _, workflow := range workflows {
		summary.Workflows.ByStatus[workflow.Status]++
	}

	for _, request := range approvals {
		summary.Approvals.ByStatus[request.Status]++
	}

	summary.Approvals.Pending = summary.Approvals.ByStatus[models.ApprovalStatusPending]

	return summary, nil
}

// WorkflowSummary is the per-workflow statistics snapshot.
type WorkflowSummary struct {
	WorkflowID string         `json:"workflow_id"`
	Executions ExecutionStats `json:"executions"`
	LastRunAt  *time.Time     `json:"last_run_at,omitempty"`
}

// CollectWorkflow builds the summary for one workflow.
func (s *Stats) CollectWorkflow(ctx context.Context, workflowID string) (*WorkflowSummary, error) {
	workflow, err := s.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	executions, err := s.persistence.Executions().List(ctx, persistence.ExecutionFilter{WorkflowID: workflowID})
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	summary := &WorkflowSummary{
		WorkflowID: workflowID,
		Executions: executionStats(executions),
	}

	for _, execution := range executions {
		if summary.LastRunAt == nil || execution.StartedAt.After(*summary.LastRunAt) {
			startedAt := execution.StartedAt
			summary.LastRunAt = &startedAt
		}
	}

	return summary, nil
}

func executionStats(executions []*models.WorkflowExecution) ExecutionStats {
	stats := ExecutionStats{
		Total:    len(executions),
		ByStatus: make(map[models.ExecutionStatus]int),
	}

	var totalMs int64

	finished := 0

	for _, execution := range executions {
		stats.ByStatus[execution.Status]++

		if execution.CompletedAt != nil {
			totalMs += execution.DurationMs()
			finished++
		}
	}

	if finished > 0 {
		stats.AverageDurationMs = totalMs / int64(finished)
	}

	return stats
}
