package models

import "github.com/Ramsey-B/thistle/pkg/database"

// Case is the top-level investigative workspace.
type Case struct {
	ID        string             `json:"id" db:"id"`
	Name      string             `json:"name" db:"name"`
	CreatedAt database.Timestamp `json:"created_at" db:"created_at"`
}

// EvidenceItem is one ingested source (a device extraction, an export file).
type EvidenceItem struct {
	ID          string             `json:"id" db:"id"`
	CaseID      string             `json:"case_id" db:"case_id"`
	DisplayName string             `json:"display_name" db:"display_name"`
	SourcePath  string             `json:"source_path" db:"source_path"`
	CreatedAt   database.Timestamp `json:"created_at" db:"created_at"`
}

// Message directions as stored by ingest modules. Anything else, including an
// empty value, is treated as unknown.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
	DirectionUnknown  = "unknown"
)

// MessageEvent is a single parsed message. Parsing source formats happens upstream;
// this is the shape ingest hands over.
type MessageEvent struct {
	ID                  string              `json:"id" db:"id"`
	CaseID              string              `json:"case_id" db:"case_id"`
	EvidenceItemID      string              `json:"evidence_item_id" db:"evidence_item_id"`
	ThreadID            *string             `json:"thread_id,omitempty" db:"thread_id"`
	Timestamp           *database.Timestamp `json:"timestamp,omitempty" db:"timestamp_ms"`
	Direction           *string             `json:"direction,omitempty" db:"direction"`
	SenderRaw           string              `json:"sender_raw" db:"sender_raw"`
	RecipientsRaw       string              `json:"recipients_raw" db:"recipients_raw"`
	Body                string              `json:"body" db:"body"`
	SourceLocator       string              `json:"source_locator" db:"source_locator"`
	IngestModuleVersion string              `json:"ingest_module_version" db:"ingest_module_version"`
	CreatedAt           database.Timestamp  `json:"created_at" db:"created_at"`
}

type CreateCaseRequest struct {
	ID   string `json:"id,omitempty" validate:"omitempty,uuid"`
	Name string `json:"name" validate:"required"`
}

type CreateEvidenceItemRequest struct {
	CaseID      string `json:"-"`
	ID          string `json:"id,omitempty" validate:"omitempty,uuid"`
	DisplayName string `json:"display_name" validate:"required"`
	SourcePath  string `json:"source_path"`
}

// RecordMessageEventRequest carries one message from ingest. Participants listed here
// are resolved through the registry after the event is stored.
type RecordMessageEventRequest struct {
	CaseID              string                 `json:"-"`
	EvidenceItemID      string                 `json:"-"`
	ID                  string                 `json:"id,omitempty" validate:"omitempty,uuid"`
	ThreadID            *string                `json:"thread_id,omitempty"`
	Timestamp           *database.Timestamp    `json:"timestamp,omitempty"`
	Direction           *string                `json:"direction,omitempty"`
	SenderRaw           string                 `json:"sender_raw"`
	RecipientsRaw       string                 `json:"recipients_raw"`
	Body                string                 `json:"body"`
	SourceLocator       string                 `json:"source_locator"`
	IngestModuleVersion string                 `json:"ingest_module_version"`
	Participants        []ParticipantReference `json:"participants,omitempty" validate:"dive"`
}

// ParticipantReference is a raw participant string observed on a message.
type ParticipantReference struct {
	Role          ParticipantRole `json:"role" validate:"required,oneof=sender recipient"`
	Raw           string          `json:"raw" validate:"required"`
	RequestedType IdentifierType  `json:"type,omitempty"`
}

// RecordMessageEventResult is the stored event and how each listed participant resolved.
type RecordMessageEventResult struct {
	Event        *MessageEvent                  `json:"event"`
	Participants []MessageParticipantLinkResult `json:"participants"`
}
