package models

import "time"

// WorkflowTemplate is a reusable workflow blueprint. Step and trigger IDs in
// a template are local to it; instantiation assigns fresh IDs and remaps the
// successor links accordingly.
type WorkflowTemplate struct {
	ID          string             `json:"id"`
	Name        string             `json:"name" validate:"required,min=3,max=255"`
	Description string             `json:"description"`
	Category    string             `json:"category,omitempty"`
	Type        WorkflowType       `json:"type" validate:"required,oneof=automation approval notification integration custom"`
	Tags        []string           `json:"tags,omitempty"`
	Steps       []*WorkflowStep    `json:"steps"`
	Triggers    []*WorkflowTrigger `json:"triggers"`
	CreatedBy   string             `json:"created_by"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}
