package models

// StepType determines how the executor treats a step.
type StepType string

const (
	StepTypeAction      StepType = "action"
	StepTypeCondition   StepType = "condition"
	StepTypeDelay       StepType = "delay"
	StepTypeLoop        StepType = "loop"
	StepTypeParallel    StepType = "parallel"
	StepTypeApproval    StepType = "approval"
	StepTypeSubWorkflow StepType = "sub_workflow"
)

// WorkflowStep is a single unit of work inside a workflow. Steps are ordered
// by Position and chained through explicit successor links; when no link is
// set the executor falls back to positional order.
//
// Condition steps route through OnTrueStepID/OnFalseStepID, every other type
// routes through NextStepID. A disabled step stays in the definition but is
// skipped at execution time.
type WorkflowStep struct {
	ID            string               `json:"id"`
	WorkflowID    string               `json:"workflow_id"`
	Name          string               `json:"name" validate:"required,max=255"`
	Type          StepType             `json:"type" validate:"required,oneof=action condition delay loop parallel approval sub_workflow"`
	Position      int                  `json:"position"`
	Action        *WorkflowAction      `json:"action,omitempty"`
	Conditions    []*WorkflowCondition `json:"conditions,omitempty"`
	Approval      *ApprovalPolicy      `json:"approval,omitempty"`
	DelaySeconds  int                  `json:"delay_seconds,omitempty"`
	SubWorkflowID string               `json:"sub_workflow_id,omitempty"`
	NextStepID    string               `json:"next_step_id,omitempty"`
	OnTrueStepID  string               `json:"on_true_step_id,omitempty"`
	OnFalseStepID string               `json:"on_false_step_id,omitempty"`
	Enabled       bool                 `json:"enabled"`
}

// SuccessorID resolves the explicit successor link for this step. Condition
// steps pick between the true and false branches, all other types follow
// NextStepID. An empty result means no explicit link is configured.
func (s *WorkflowStep) SuccessorID(conditionResult bool) string {
	if s.Type == StepTypeCondition {
		if conditionResult {
			return s.OnTrueStepID
		}

		return s.OnFalseStepID
	}

	return s.NextStepID
}
