package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation                     = errors.New("validation failed")
	ErrNotFound                       = errors.New("not found")
	ErrIdentifierConflict             = errors.New("identifier conflict")
	ErrGlobalPersonIdentifierConflict = errors.New("global person identifier conflict")
	ErrIndexInconsistency             = errors.New("presence index inconsistency")
)

// ValidationError rejects a request before anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NotFoundError struct {
	Entity string
	ID     string
	CaseID string
}

func NotFound(entity, id, caseID string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id, CaseID: caseID}
}

func (e *NotFoundError) Error() string {
	if e.CaseID == "" {
		return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s %s not found in case %s", e.Entity, e.ID, e.CaseID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IdentifierConflictError reports that an identifier already belongs to another
// target in the case. Retrying with an explicit conflict policy resolves it.
type IdentifierConflictError struct {
	CaseID                    string `json:"case_id"`
	IdentifierID              string `json:"identifier_id"`
	IdentifierType            string `json:"identifier_type"`
	Value                     string `json:"value"`
	RequestedTargetID         string `json:"requested_target_id"`
	ExistingTargetID          string `json:"existing_target_id"`
	ExistingTargetDisplayName string `json:"existing_target_display_name"`
}

func (e *IdentifierConflictError) Error() string {
	return fmt.Sprintf("identifier %s %q in case %s is already linked to target %q (%s)",
		e.IdentifierType, e.Value, e.CaseID, e.ExistingTargetDisplayName, e.ExistingTargetID)
}

func (e *IdentifierConflictError) Is(target error) bool { return target == ErrIdentifierConflict }

// GlobalPersonIdentifierConflictError reports that a target identifier is already
// registered to a different global person.
type GlobalPersonIdentifierConflictError struct {
	TargetID                  string   `json:"target_id"`
	RequestedGlobalEntityID   string   `json:"requested_global_entity_id,omitempty"`
	ExistingGlobalEntityID    string   `json:"existing_global_entity_id"`
	ExistingDisplayName       string   `json:"existing_display_name"`
	IdentifierType            string   `json:"identifier_type"`
	Value                     string   `json:"value"`
	AdditionalGlobalEntityIDs []string `json:"additional_global_entity_ids,omitempty"`
}

func (e *GlobalPersonIdentifierConflictError) Error() string {
	msg := fmt.Sprintf("identifier %s %q of target %s is already registered to global person %q (%s)",
		e.IdentifierType, e.Value, e.TargetID, e.ExistingDisplayName, e.ExistingGlobalEntityID)
	if len(e.AdditionalGlobalEntityIDs) > 0 {
		msg += fmt.Sprintf("; identifiers also collide with %s", strings.Join(e.AdditionalGlobalEntityIDs, ", "))
	}
	return msg
}

func (e *GlobalPersonIdentifierConflictError) Is(target error) bool {
	return target == ErrGlobalPersonIdentifierConflict
}

// IndexMismatch is one presence discrepancy.
type IndexMismatch struct {
	Kind             string `json:"kind"`
	TargetID         string `json:"target_id"`
	IdentifierID     string `json:"identifier_id"`
	MessageEventID   string `json:"message_event_id"`
	Role             string `json:"role"`
	PresenceRecordID string `json:"presence_record_id,omitempty"`
}

const (
	MismatchStaleRow   = "stale_row"
	MismatchMissingRow = "missing_row"
)

type IndexInconsistencyError struct {
	CaseID     string          `json:"case_id"`
	Mismatches []IndexMismatch `json:"mismatches"`
}

func (e *IndexInconsistencyError) Error() string {
	stale, missing := 0, 0
	for _, m := range e.Mismatches {
		if m.Kind == MismatchStaleRow {
			stale++
		} else {
			missing++
		}
	}
	return fmt.Sprintf("presence index for case %s is inconsistent: %d stale rows, %d missing rows", e.CaseID, stale, missing)
}

func (e *IndexInconsistencyError) Is(target error) bool { return target == ErrIndexInconsistency }
