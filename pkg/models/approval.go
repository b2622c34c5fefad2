package models

import "time"

// ApprovalType selects the voting rule that completes an approval request.
type ApprovalType string

const (
	// ApprovalTypeSingle completes on the first approval.
	ApprovalTypeSingle ApprovalType = "single"
	// ApprovalTypeAll requires an approval per current approver.
	ApprovalTypeAll ApprovalType = "all"
	// ApprovalTypeMajority requires more than half of the current approvers.
	ApprovalTypeMajority ApprovalType = "majority"
	// ApprovalTypeAny requires a configured number of approvals.
	ApprovalTypeAny ApprovalType = "any"
)

// ApprovalStatus is the lifecycle state of an approval request. Approved,
// rejected and expired are terminal; escalated requests still accept votes.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "pending"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
	ApprovalStatusDelegated ApprovalStatus = "delegated"
	ApprovalStatusEscalated ApprovalStatus = "escalated"
	ApprovalStatusExpired   ApprovalStatus = "expired"
)

// ApprovalPolicy configures an approval step: who may vote, the voting rule,
// how long the request stays open and where it escalates when overdue.
type ApprovalPolicy struct {
	Approvers         []string     `json:"approvers" validate:"required,min=1"`
	Type              ApprovalType `json:"type,omitempty"`
	RequiredApprovals int          `json:"required_approvals,omitempty"`
	TimeoutHours      int          `json:"timeout_hours,omitempty"`
	EscalationUser    string       `json:"escalation_user,omitempty"`
	AllowDelegation   bool         `json:"allow_delegation,omitempty"`
}

// ApprovalDecision is one entry of the request's audit trail. Entries are
// append-only and never rewritten.
type ApprovalDecision struct {
	UserID      string    `json:"user_id"`
	Action      string    `json:"action"`
	Comment     string    `json:"comment,omitempty"`
	DelegatedTo string    `json:"delegated_to,omitempty"`
	DecidedAt   time.Time `json:"decided_at"`
}

const defaultApprovalTimeoutHours = 24

// ApprovalRequest tracks the votes for one approval step of one execution.
// The approver list is the current electorate: delegation swaps members and
// escalation may add one, and thresholds are always evaluated against the
// list as it stands at vote time.
type ApprovalRequest struct {
	ID                string             `json:"id"`
	ExecutionID       string             `json:"execution_id"`
	WorkflowID        string             `json:"workflow_id"`
	StepID            string             `json:"step_id"`
	RequestedBy       string             `json:"requested_by"`
	Approvers         []string           `json:"approvers"`
	Type              ApprovalType       `json:"type"`
	RequiredApprovals int                `json:"required_approvals"`
	ReceivedApprovals int                `json:"received_approvals"`
	AllowDelegation   bool               `json:"allow_delegation"`
	EscalationUser    string             `json:"escalation_user,omitempty"`
	Status            ApprovalStatus     `json:"status"`
	DueAt             time.Time          `json:"due_at"`
	Decisions         []ApprovalDecision `json:"decisions"`
	CreatedAt         time.Time          `json:"created_at"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
}

// NewApprovalRequest builds a pending request from a step's approval policy.
// Unset policy fields get defaults: single voting, one required approval and
// a 24 hour timeout.
func NewApprovalRequest(id, executionID, workflowID, stepID, requestedBy string, policy *ApprovalPolicy, now time.Time) *ApprovalRequest {
	approvalType := policy.Type
	if approvalType == "" {
		approvalType = ApprovalTypeSingle
	}

	required := policy.RequiredApprovals
	if required <= 0 {
		required = 1
	}

	timeoutHours := policy.TimeoutHours
	if timeoutHours <= 0 {
		timeoutHours = defaultApprovalTimeoutHours
	}

	approvers := make([]string, len(policy.Approvers))
	copy(approvers, policy.Approvers)

	return &ApprovalRequest{
		ID:                id,
		ExecutionID:       executionID,
		WorkflowID:        workflowID,
		StepID:            stepID,
		RequestedBy:       requestedBy,
		Approvers:         approvers,
		Type:              approvalType,
		RequiredApprovals: required,
		AllowDelegation:   policy.AllowDelegation,
		EscalationUser:    policy.EscalationUser,
		Status:            ApprovalStatusPending,
		DueAt:             now.Add(time.Duration(timeoutHours) * time.Hour),
		Decisions:         make([]ApprovalDecision, 0),
		CreatedAt:         now,
	}
}

// IsTerminal reports whether the request accepts no further votes.
func (r *ApprovalRequest) IsTerminal() bool {
	return r.Status == ApprovalStatusApproved ||
		r.Status == ApprovalStatusRejected ||
		r.Status == ApprovalStatusExpired
}

// IsOverdue reports whether the request passed its due time while still
// pending. Escalated and terminal requests are never overdue.
func (r *ApprovalRequest) IsOverdue(now time.Time) bool {
	return r.Status == ApprovalStatusPending && now.After(r.DueAt)
}

// HasApprover reports whether the given user is a current approver.
func (r *ApprovalRequest) HasApprover(userID string) bool {
	for _, approver := range r.Approvers {
		if approver == userID {
			return true
		}
	}

	return false
}

// Approve records one approval vote. The call is ignored when the request is
// terminal or the user is not a current approver. When the received count
// satisfies the voting rule the request completes as approved.
func (r *ApprovalRequest) Approve(userID, comment string, now time.Time) bool {
	if r.IsTerminal() || !r.HasApprover(userID) {
		return false
	}

	r.ReceivedApprovals++
	r.Decisions = append(r.Decisions, ApprovalDecision{
		UserID:    userID,
		Action:    "approved",
		Comment:   comment,
		DecidedAt: now,
	})

	if r.approvalsSatisfied() {
		r.Status = ApprovalStatusApproved
		r.CompletedAt = &now
	}

	return true
}

// Reject vetoes the request. A single rejection completes the request as
// rejected regardless of the voting rule.
func (r *ApprovalRequest) Reject(userID, comment string, now time.Time) bool {
	if r.IsTerminal() || !r.HasApprover(userID) {
		return false
	}

	r.Status = ApprovalStatusRejected
	r.CompletedAt = &now
	r.Decisions = append(r.Decisions, ApprovalDecision{
		UserID:    userID,
		Action:    "rejected",
		Comment:   comment,
		DecidedAt: now,
	})

	return true
}

// Delegate swaps one current approver for another user, keeping the list
// length and the request status unchanged. It is refused when the policy
// forbids delegation or the delegating user is not a current approver.
func (r *ApprovalRequest) Delegate(fromUserID, toUserID, comment string, now time.Time) bool {
	if r.IsTerminal() || !r.AllowDelegation || toUserID == "" {
		return false
	}

	for i, approver := range r.Approvers {
		if approver == fromUserID {
			r.Approvers = append(r.Approvers[:i], r.Approvers[i+1:]...)
			r.Approvers = append(r.Approvers, toUserID)
			r.Decisions = append(r.Decisions, ApprovalDecision{
				UserID:      fromUserID,
				Action:      "delegated",
				Comment:     comment,
				DelegatedTo: toUserID,
				DecidedAt:   now,
			})

			return true
		}
	}

	return false
}

// Escalate marks the request escalated and adds the escalation user to the
// approver list when absent. Votes remain possible afterwards.
func (r *ApprovalRequest) Escalate(userID string, now time.Time) bool {
	if r.IsTerminal() || userID == "" {
		return false
	}

	if !r.HasApprover(userID) {
		r.Approvers = append(r.Approvers, userID)
	}

	r.Status = ApprovalStatusEscalated
	r.Decisions = append(r.Decisions, ApprovalDecision{
		UserID:    userID,
		Action:    "escalated",
		DecidedAt: now,
	})

	return true
}

// Expire completes an overdue pending request as expired.
func (r *ApprovalRequest) Expire(now time.Time) bool {
	if r.Status != ApprovalStatusPending {
		return false
	}

	r.Status = ApprovalStatusExpired
	r.CompletedAt = &now

	return true
}

func (r *ApprovalRequest) approvalsSatisfied() bool {
	switch r.Type {
	case ApprovalTypeSingle:
		return r.ReceivedApprovals >= 1
	case ApprovalTypeAll:
		return r.ReceivedApprovals >= len(r.Approvers)
	case ApprovalTypeMajority:
		return float64(r.ReceivedApprovals) > float64(len(r.Approvers))/2
	case ApprovalTypeAny:
		return r.ReceivedApprovals >= r.RequiredApprovals
	default:
		return false
	}
}
