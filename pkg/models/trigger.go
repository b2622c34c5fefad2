package models

import "time"

// TriggerType identifies what causes a workflow to start.
type TriggerType string

const (
	TriggerTypeManual    TriggerType = "manual"
	TriggerTypeSchedule  TriggerType = "schedule"
	TriggerTypeEvent     TriggerType = "event"
	TriggerTypeWebhook   TriggerType = "webhook"
	TriggerTypeCondition TriggerType = "condition"
)

// WorkflowTrigger describes one way a workflow starts. Event triggers carry
// an event type plus optional conditions evaluated against the event payload;
// schedule and webhook triggers keep their provider settings in Configuration
// (cron expression, webhook path, queue name).
type WorkflowTrigger struct {
	ID            string               `json:"id"`
	WorkflowID    string               `json:"workflow_id"`
	Name          string               `json:"name"`
	Type          TriggerType          `json:"type" validate:"required,oneof=manual schedule event webhook condition"`
	EventType     string               `json:"event_type,omitempty"`
	Conditions    []*WorkflowCondition `json:"conditions,omitempty"`
	Configuration map[string]any       `json:"configuration,omitempty"`
	Enabled       bool                 `json:"enabled"`
	LastFiredAt   *time.Time           `json:"last_fired_at,omitempty"`
}

// ShouldFire decides whether an incoming event payload satisfies this
// trigger. Disabled triggers never fire. A trigger without conditions fires
// on every matching event; with conditions, all of them must hold.
func (t *WorkflowTrigger) ShouldFire(eventData map[string]any) bool {
	if !t.Enabled {
		return false
	}

	if len(t.Conditions) == 0 {
		return true
	}

	for _, condition := range t.Conditions {
		if !condition.Evaluate(eventData) {
			return false
		}
	}

	return true
}
