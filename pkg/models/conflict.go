package models

import "fmt"

// ConflictPolicy is the caller's explicit decision for an identity collision.
// The zero value cancels.
type ConflictPolicy string

const (
	ConflictPolicyCancel                          ConflictPolicy = "Cancel"
	ConflictPolicyMoveIdentifierToRequestedTarget ConflictPolicy = "MoveIdentifierToRequestedTarget"
	ConflictPolicyUseExistingTarget               ConflictPolicy = "UseExistingTarget"
)

// Effective maps the zero value to Cancel.
func (p ConflictPolicy) Effective() ConflictPolicy {
	if p == "" {
		return ConflictPolicyCancel
	}
	return p
}

func (p ConflictPolicy) Validate() error {
	switch p.Effective() {
	case ConflictPolicyCancel, ConflictPolicyMoveIdentifierToRequestedTarget, ConflictPolicyUseExistingTarget:
		return nil
	default:
		return fmt.Errorf("unknown conflict policy %q", string(p))
	}
}
