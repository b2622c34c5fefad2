package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest(approvalType ApprovalType, approvers []string, required int) *ApprovalRequest {
	policy := &ApprovalPolicy{
		Approvers:         approvers,
		Type:              approvalType,
		RequiredApprovals: required,
		TimeoutHours:      48,
		AllowDelegation:   true,
	}

	return NewApprovalRequest("req-1", "exec-1", "wf-1", "step-1", "requester", policy, time.Now())
}

func TestApprovalRequest_VotingThresholds(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name         string
		approvalType ApprovalType
		approvers    []string
		required     int
		votes        []string
		expectStatus ApprovalStatus
	}{
		{
			name:         "single approves after one vote",
			approvalType: ApprovalTypeSingle,
			approvers:    []string{"u1", "u2", "u3"},
			votes:        []string{"u1"},
			expectStatus: ApprovalStatusApproved,
		},
		{
			name:         "all stays pending until every approver voted",
			approvalType: ApprovalTypeAll,
			approvers:    []string{"u1", "u2", "u3"},
			votes:        []string{"u1", "u2"},
			expectStatus: ApprovalStatusPending,
		},
		{
			name:         "all approves at full count",
			approvalType: ApprovalTypeAll,
			approvers:    []string{"u1", "u2", "u3"},
			votes:        []string{"u1", "u2", "u3"},
			expectStatus: ApprovalStatusApproved,
		},
		{
			name:         "majority of one",
			approvalType: ApprovalTypeMajority,
			approvers:    []string{"u1"},
			votes:        []string{"u1"},
			expectStatus: ApprovalStatusApproved,
		},
		{
			name:         "majority of two needs both",
			approvalType: ApprovalTypeMajority,
			approvers:    []string{"u1", "u2"},
			votes:        []string{"u1"},
			expectStatus: ApprovalStatusPending,
		},
		{
			name:         "majority of three reached at two",
			approvalType: ApprovalTypeMajority,
			approvers:    []string{"u1", "u2", "u3"},
			votes:        []string{"u1", "u2"},
			expectStatus: ApprovalStatusApproved,
		},
		{
			name:         "majority of four pending at two",
			approvalType: ApprovalTypeMajority,
			approvers:    []string{"u1", "u2", "u3", "u4"},
			votes:        []string{"u1", "u2"},
			expectStatus: ApprovalStatusPending,
		},
		{
			name:         "majority of four reached at three",
			approvalType: ApprovalTypeMajority,
			approvers:    []string{"u1", "u2", "u3", "u4"},
			votes:        []string{"u1", "u2", "u3"},
			expectStatus: ApprovalStatusApproved,
		},
		{
			name:         "any with required two",
			approvalType: ApprovalTypeAny,
			approvers:    []string{"u1", "u2", "u3", "u4"},
			required:     2,
			votes:        []string{"u1", "u4"},
			expectStatus: ApprovalStatusApproved,
		},
		{
			name:         "any pending below required count",
			approvalType: ApprovalTypeAny,
			approvers:    []string{"u1", "u2", "u3"},
			required:     2,
			votes:        []string{"u3"},
			expectStatus: ApprovalStatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := newTestRequest(tt.approvalType, tt.approvers, tt.required)

			for _, voter := range tt.votes {
				assert.True(t, request.Approve(voter, "", now))
			}

			assert.Equal(t, tt.expectStatus, request.Status)
			assert.Equal(t, len(tt.votes), request.ReceivedApprovals)

			if tt.expectStatus == ApprovalStatusApproved {
				assert.NotNil(t, request.CompletedAt)
			} else {
				assert.Nil(t, request.CompletedAt)
			}
		})
	}
}

func TestApprovalRequest_RejectVetoes(t *testing.T) {
	now := time.Now()
	request := newTestRequest(ApprovalTypeAll, []string{"u1", "u2", "u3"}, 0)

	require.True(t, request.Approve("u1", "looks fine", now))
	require.True(t, request.Reject("u2", "missing budget line", now))

	assert.Equal(t, ApprovalStatusRejected, request.Status)
	assert.NotNil(t, request.CompletedAt)

	// Terminal request accepts no further votes.
	assert.False(t, request.Approve("u3", "", now))
	assert.Equal(t, 1, request.ReceivedApprovals)
}

func TestApprovalRequest_UnauthorizedActorIsIgnored(t *testing.T) {
	now := time.Now()
	request := newTestRequest(ApprovalTypeSingle, []string{"u1"}, 0)

	assert.False(t, request.Approve("intruder", "", now))
	assert.False(t, request.Reject("intruder", "", now))
	assert.False(t, request.Delegate("intruder", "someone", "", now))

	assert.Equal(t, ApprovalStatusPending, request.Status)
	assert.Zero(t, request.ReceivedApprovals)
	assert.Empty(t, request.Decisions)
}

func TestApprovalRequest_DelegationSwapsApprover(t *testing.T) {
	now := time.Now()
	request := newTestRequest(ApprovalTypeAll, []string{"u1", "u2"}, 0)

	require.True(t, request.Approve("u1", "", now))
	require.True(t, request.Delegate("u2", "u9", "on vacation", now))

	// Swap semantics: same electorate size, received count untouched.
	assert.Len(t, request.Approvers, 2)
	assert.Equal(t, 1, request.ReceivedApprovals)
	assert.False(t, request.HasApprover("u2"))
	assert.True(t, request.HasApprover("u9"))
	assert.Equal(t, ApprovalStatusPending, request.Status)

	// The delegate can complete the vote.
	require.True(t, request.Approve("u9", "", now))
	assert.Equal(t, ApprovalStatusApproved, request.Status)
}

func TestApprovalRequest_DelegationDisallowedByPolicy(t *testing.T) {
	now := time.Now()
	policy := &ApprovalPolicy{
		Approvers:       []string{"u1", "u2"},
		Type:            ApprovalTypeAll,
		AllowDelegation: false,
	}
	request := NewApprovalRequest("req-2", "exec-1", "wf-1", "step-1", "requester", policy, now)

	assert.False(t, request.Delegate("u1", "u9", "", now))
	assert.True(t, request.HasApprover("u1"))
	assert.False(t, request.HasApprover("u9"))
}

func TestApprovalRequest_Escalation(t *testing.T) {
	now := time.Now()
	request := newTestRequest(ApprovalTypeSingle, []string{"u1"}, 0)

	require.True(t, request.Escalate("boss", now))

	assert.Equal(t, ApprovalStatusEscalated, request.Status)
	assert.True(t, request.HasApprover("boss"))
	assert.Len(t, request.Approvers, 2)

	// Voting is still open after escalation.
	require.True(t, request.Approve("boss", "", now))
	assert.Equal(t, ApprovalStatusApproved, request.Status)
}

func TestApprovalRequest_EscalateExistingApproverDoesNotDuplicate(t *testing.T) {
	now := time.Now()
	request := newTestRequest(ApprovalTypeAll, []string{"u1", "u2"}, 0)

	require.True(t, request.Escalate("u2", now))
	assert.Len(t, request.Approvers, 2)
}

func TestApprovalRequest_OverdueAndExpiry(t *testing.T) {
	created := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	policy := &ApprovalPolicy{Approvers: []string{"u1"}, TimeoutHours: 2}
	request := NewApprovalRequest("req-3", "exec-1", "wf-1", "step-1", "requester", policy, created)

	assert.Equal(t, created.Add(2*time.Hour), request.DueAt)
	assert.False(t, request.IsOverdue(created.Add(time.Hour)))
	assert.True(t, request.IsOverdue(created.Add(3*time.Hour)))

	// Escalated requests are no longer overdue, only pending ones are.
	require.True(t, request.Escalate("boss", created.Add(3*time.Hour)))
	assert.False(t, request.IsOverdue(created.Add(4*time.Hour)))

	// Expire acts on pending requests only.
	assert.False(t, request.Expire(created.Add(4*time.Hour)))

	pending := NewApprovalRequest("req-4", "exec-1", "wf-1", "step-1", "requester", policy, created)
	assert.True(t, pending.Expire(created.Add(3*time.Hour)))
	assert.Equal(t, ApprovalStatusExpired, pending.Status)
	assert.False(t, pending.Approve("u1", "", created.Add(4*time.Hour)))
}

func TestNewApprovalRequest_Defaults(t *testing.T) {
	now := time.Now()
	policy := &ApprovalPolicy{Approvers: []string{"u1"}}
	request := NewApprovalRequest("req-5", "exec-1", "wf-1", "step-1", "requester", policy, now)

	assert.Equal(t, ApprovalTypeSingle, request.Type)
	assert.Equal(t, 1, request.RequiredApprovals)
	assert.Equal(t, now.Add(24*time.Hour), request.DueAt)
	assert.Equal(t, ApprovalStatusPending, request.Status)
	assert.NotSame(t, &policy.Approvers[0], &request.Approvers[0])
}
