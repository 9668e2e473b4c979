package models

import "github.com/Ramsey-B/thistle/pkg/database"

type ParticipantRole string

const (
	ParticipantRoleSender    ParticipantRole = "sender"
	ParticipantRoleRecipient ParticipantRole = "recipient"
)

func (r ParticipantRole) Valid() bool {
	return r == ParticipantRoleSender || r == ParticipantRoleRecipient
}

// MessageParticipantLink resolves one raw participant string on a message event.
type MessageParticipantLink struct {
	ID             string             `json:"id" db:"id"`
	CaseID         string             `json:"case_id" db:"case_id"`
	MessageEventID string             `json:"message_event_id" db:"message_event_id"`
	Role           ParticipantRole    `json:"role" db:"role"`
	ParticipantRaw string             `json:"participant_raw" db:"participant_raw"`
	IdentifierID   string             `json:"identifier_id" db:"identifier_id"`
	TargetID       *string            `json:"target_id,omitempty" db:"target_id"`
	CreatedAt      database.Timestamp `json:"created_at" db:"created_at"`
	Provenance     `json:"provenance"`
}

// PresenceRecord is a derived row of the presence index. Only the presence
// indexer writes these.
type PresenceRecord struct {
	ID                  string              `json:"id" db:"id"`
	CaseID              string              `json:"case_id" db:"case_id"`
	TargetID            string              `json:"target_id" db:"target_id"`
	MessageEventID      string              `json:"message_event_id" db:"message_event_id"`
	MatchedIdentifierID string              `json:"matched_identifier_id" db:"matched_identifier_id"`
	Role                ParticipantRole     `json:"role" db:"role"`
	EvidenceItemID      string              `json:"evidence_item_id" db:"evidence_item_id"`
	SourceLocator       string              `json:"source_locator" db:"source_locator"`
	MessageTimestamp    *database.Timestamp `json:"message_timestamp,omitempty" db:"message_timestamp_ms"`
	FirstSeenAt         database.Timestamp  `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt          database.Timestamp  `json:"last_seen_at" db:"last_seen_at"`
}

// LinkMessageParticipantRequest resolves a raw participant on a message event.
// With no TargetID, an identifier already linked to a target reuses it, and
// NewTargetDisplayName creates a target when there is none.
type LinkMessageParticipantRequest struct {
	CaseID               string          `json:"-"`
	MessageEventID       string          `json:"-"`
	Role                 ParticipantRole `json:"role" validate:"required,oneof=sender recipient"`
	ParticipantRaw       string          `json:"participant_raw" validate:"required"`
	RequestedType        *IdentifierType `json:"requested_type,omitempty"`
	TargetID             *string         `json:"target_id,omitempty"`
	NewTargetDisplayName *string         `json:"new_target_display_name,omitempty"`
	ConflictPolicy       ConflictPolicy  `json:"conflict_policy"`
	GlobalConflictPolicy ConflictPolicy  `json:"global_conflict_policy"`
	Provenance           *Provenance     `json:"provenance,omitempty"`
}

type MessageParticipantLinkResult struct {
	Link               MessageParticipantLink `json:"link"`
	Identifier         Identifier             `json:"identifier"`
	TargetID           *string                `json:"target_id,omitempty"`
	CreatedTarget      bool                   `json:"created_target"`
	CreatedIdentifier  bool                   `json:"created_identifier"`
	MovedIdentifier    bool                   `json:"moved_identifier"`
	UsedExistingTarget bool                   `json:"used_existing_target"`
}
