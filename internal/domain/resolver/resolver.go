// Package resolver decides whether an actor may act on a workflow step.
// It is pure: role and permission membership arrive on the actor snapshot.
package resolver

import "github.com/garyjia/approvalflow/internal/domain/entity"

// Resolver matches actors against a step's approver set
type Resolver struct{}

// New creates a Resolver
func New() *Resolver {
	return &Resolver{}
}

// IsEligible reports whether actor may record an action on step.
// Unknown approver types and nil steps are never eligible.
func (r *Resolver) IsEligible(step *entity.Step, actor entity.Actor) bool {
	if step == nil || actor.ID == "" {
		return false
	}

	switch step.ApproverType {
	case entity.ApproverTypeUser:
		return containsAny(step.ApproverIdentifiers, []string{actor.ID})
	case entity.ApproverTypeRole:
		return containsAny(step.ApproverIdentifiers, actor.Roles)
	case entity.ApproverTypePermission:
		return containsAny(step.ApproverIdentifiers, actor.Permissions)
	default:
		return false
	}
}

// IsRequesterEligible applies the same check to the submitter snapshot,
// used to decide whether a step can be auto-skipped.
func (r *Resolver) IsRequesterEligible(step *entity.Step, requester entity.Actor) bool {
	return r.IsEligible(step, requester)
}

func containsAny(identifiers, values []string) bool {
	if len(identifiers) == 0 || len(values) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		set[id] = struct{}{}
	}
	for _, v := range values {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
