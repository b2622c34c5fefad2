// Package schedule provides the cron trigger source for schedule triggers.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tavolohq/flowkit/pkg/protocol"
)

var (
	// ErrCronMissing is returned when the configuration carries no cron expression.
	ErrCronMissing = errors.New("schedule trigger cron expression is required")
	// ErrTriggerIDMissing is returned when the configuration names no trigger.
	ErrTriggerIDMissing = errors.New("schedule trigger id is required")
)

// Source fires a callback on a cron schedule. The scheduler builds one Source
// per schedule trigger of every active workflow; the callback closes over the
// workflow and trigger ids, so the firing data only carries the tick.
type Source struct {
	TriggerID  string
	WorkflowID string
	CronExpr   string

	cron     *cron.Cron
	callback protocol.TriggerCallback
	logger   *slog.Logger
}

func NewSource(config map[string]any, logger *slog.Logger) (*Source, error) {
	triggerID, _ := config["trigger_id"].(string)
	workflowID, _ := config["workflow_id"].(string)
	cronExpr, _ := config["cron"].(string)

	source := &Source{
		TriggerID:  triggerID,
		WorkflowID: workflowID,
		CronExpr:   cronExpr,
		logger: logger.With(
			"module", "schedule_trigger",
			"trigger_id", triggerID,
			"workflow_id", workflowID,
			"cron", cronExpr,
		),
	}

	err := source.Validate()
	if err != nil {
		return nil, err
	}

	return source, nil
}

func (s *Source) Validate() error {
	if s.TriggerID == "" {
		return ErrTriggerIDMissing
	}

	if s.CronExpr == "" {
		return ErrCronMissing
	}

	_, err := cron.ParseStandard(s.CronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression '%s': %w", s.CronExpr, err)
	}

	return nil
}

func (s *Source) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	s.logger.InfoContext(ctx, "Starting schedule trigger source")
	s.callback = callback

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.CronExpr, s.run)
	if err != nil {
		return fmt.Errorf("failed to add cron job for trigger %s: %w", s.TriggerID, err)
	}

	s.cron.Start()

	return nil
}

func (s *Source) run() {
	ctx := context.Background()

	s.logger.InfoContext(ctx, "Cron tick fired")

	data := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	go func() {
		err := s.callback(ctx, data)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error firing schedule trigger", "error", err)
		}
	}()
}

func (s *Source) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping schedule trigger source")

	if s.cron != nil {
		s.cron.Stop()
	}

	return nil
}
