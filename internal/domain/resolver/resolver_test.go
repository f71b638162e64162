package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/garyjia/approvalflow/internal/domain/entity"
)

func step(approverType entity.ApproverType, ids ...string) *entity.Step {
	return &entity.Step{
		ID:                  1,
		StepType:            entity.StepTypeSequential,
		Purpose:             entity.StepPurposeApproval,
		ApproverType:        approverType,
		ApproverIdentifiers: ids,
	}
}

func TestResolver_IsEligible(t *testing.T) {
	r := New()
	manager := entity.Actor{ID: "u-2", Roles: []string{"finance_manager", "staff"}, Permissions: []string{"approve_payments"}}

	tests := []struct {
		name  string
		step  *entity.Step
		actor entity.Actor
		want  bool
	}{
		{"user listed", step(entity.ApproverTypeUser, "u-1", "u-2"), manager, true},
		{"user not listed", step(entity.ApproverTypeUser, "u-1"), manager, false},
		{"role held", step(entity.ApproverTypeRole, "cfo", "finance_manager"), manager, true},
		{"role missing", step(entity.ApproverTypeRole, "cfo"), manager, false},
		{"role does not match user id", step(entity.ApproverTypeRole, "u-2"), manager, false},
		{"permission held", step(entity.ApproverTypePermission, "approve_payments"), manager, true},
		{"permission missing", step(entity.ApproverTypePermission, "approve_settlements"), manager, false},
		{"unknown approver type", step(entity.ApproverType("GROUP"), "u-2"), manager, false},
		{"empty identifiers", step(entity.ApproverTypeUser), manager, false},
		{"nil step", nil, manager, false},
		{"anonymous actor", step(entity.ApproverTypeUser, ""), entity.Actor{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.IsEligible(tt.step, tt.actor))
		})
	}
}

func TestResolver_IsRequesterEligible(t *testing.T) {
	r := New()
	s := step(entity.ApproverTypeRole, "branch_manager")

	assert.True(t, r.IsRequesterEligible(s, entity.Actor{ID: "u-5", Roles: []string{"branch_manager"}}))
	assert.False(t, r.IsRequesterEligible(s, entity.Actor{ID: "u-6"}))
}
