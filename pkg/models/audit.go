package models

import "github.com/Ramsey-B/thistle/pkg/database"

// AuditEntry is one provenance record handed to the audit sink.
type AuditEntry struct {
	ID             string             `json:"id" db:"id"`
	Timestamp      database.Timestamp `json:"timestamp_utc" db:"timestamp_ms"`
	Operator       string             `json:"operator" db:"operator"`
	ActionType     string             `json:"action_type" db:"action_type"`
	CaseID         *string            `json:"case_id,omitempty" db:"case_id"`
	EvidenceItemID *string            `json:"evidence_item_id,omitempty" db:"evidence_item_id"`
	Summary        string             `json:"summary" db:"summary"`
	JSONPayload    database.JSONText  `json:"json_payload,omitempty" db:"json_payload"`
}

// Audit action types.
const (
	ActionCaseCreated              = "CaseCreated"
	ActionEvidenceItemCreated      = "EvidenceItemCreated"
	ActionEvidenceMessagesDeleted  = "EvidenceMessagesDeleted"
	ActionMessageEventRecorded     = "MessageEventRecorded"
	ActionIdentifierAdded          = "IdentifierAdded"
	ActionIdentifierUpdated        = "IdentifierUpdated"
	ActionIdentifierRemoved        = "IdentifierRemoved"
	ActionTargetCreated            = "TargetCreated"
	ActionTargetUpdated            = "TargetUpdated"
	ActionTargetDeleted            = "TargetDeleted"
	ActionAliasAdded               = "TargetAliasAdded"
	ActionAliasRemoved             = "TargetAliasRemoved"
	ActionTargetLinkedToGlobal     = "TargetLinkedToGlobalPerson"
	ActionGlobalPersonCreated      = "GlobalPersonCreated"
	ActionTargetUnlinkedFromGlobal = "TargetUnlinkedFromGlobalPerson"
	ActionParticipantLinked        = "MessageParticipantLinked"
	ActionPresenceRebuilt          = "PresenceIndexRebuilt"
	ActionPresenceRefreshed        = "PresenceIndexRefreshed"
	ActionTimelineSearched         = "TimelineSearched"
)
