package models

import "github.com/Ramsey-B/thistle/pkg/database"

// IdentifierType is the kind of contact or device value an identifier holds.
type IdentifierType string

const (
	IdentifierTypePhone        IdentifierType = "Phone"
	IdentifierTypeEmail        IdentifierType = "Email"
	IdentifierTypeSocialHandle IdentifierType = "SocialHandle"
	IdentifierTypeVehiclePlate IdentifierType = "VehiclePlate"
	IdentifierTypeVIN          IdentifierType = "VIN"
	IdentifierTypeIMEI         IdentifierType = "IMEI"
	IdentifierTypeIMSI         IdentifierType = "IMSI"
	IdentifierTypeDeviceID     IdentifierType = "DeviceId"
	IdentifierTypeUsername     IdentifierType = "Username"
	IdentifierTypeOther        IdentifierType = "Other"
)

// IdentifierTypes lists every supported type in display order.
var IdentifierTypes = []IdentifierType{
	IdentifierTypePhone,
	IdentifierTypeEmail,
	IdentifierTypeSocialHandle,
	IdentifierTypeVehiclePlate,
	IdentifierTypeVIN,
	IdentifierTypeIMEI,
	IdentifierTypeIMSI,
	IdentifierTypeDeviceID,
	IdentifierTypeUsername,
	IdentifierTypeOther,
}

// Provenance attributes a record to the evidence and ingest step that produced it.
type Provenance struct {
	SourceType           string  `json:"source_type" db:"source_type"`
	SourceEvidenceItemID *string `json:"source_evidence_item_id,omitempty" db:"source_evidence_item_id"`
	SourceLocator        string  `json:"source_locator" db:"source_locator"`
	IngestModuleVersion  string  `json:"ingest_module_version" db:"ingest_module_version"`
}

// Provenance source types written by this service.
const (
	SourceTypeManual  = "manual"
	SourceTypeMessage = "message"
	SourceTypeImport  = "import"
)

// Identifier is a single normalized value per case; observing it again reuses the row.
type Identifier struct {
	ID              string             `json:"id" db:"id"`
	CaseID          string             `json:"case_id" db:"case_id"`
	Type            IdentifierType     `json:"type" db:"type"`
	ValueRaw        string             `json:"value_raw" db:"value_raw"`
	ValueNormalized string             `json:"value_normalized" db:"value_normalized"`
	Notes           string             `json:"notes" db:"notes"`
	CreatedAt       database.Timestamp `json:"created_at" db:"created_at"`
	Provenance      `json:"provenance"`
}

// AddIdentifierRequest attaches a value to a target. Provenance defaults to a
// manual entry when nil.
type AddIdentifierRequest struct {
	CaseID               string         `json:"-"`
	TargetID             string         `json:"-"`
	Type                 IdentifierType `json:"type" validate:"required"`
	Value                string         `json:"value" validate:"required"`
	Notes                string         `json:"notes"`
	IsPrimary            bool           `json:"is_primary"`
	ConflictPolicy       ConflictPolicy `json:"conflict_policy"`
	GlobalConflictPolicy ConflictPolicy `json:"global_conflict_policy"`
	Provenance           *Provenance    `json:"provenance,omitempty"`
}

// UpdateIdentifierRequest edits the value, and optionally the type, of an
// identifier linked to TargetID.
type UpdateIdentifierRequest struct {
	CaseID               string          `json:"-"`
	TargetID             string          `json:"-"`
	IdentifierID         string          `json:"-"`
	Type                 *IdentifierType `json:"type,omitempty"`
	Value                string          `json:"value" validate:"required"`
	ConflictPolicy       ConflictPolicy  `json:"conflict_policy"`
	GlobalConflictPolicy ConflictPolicy  `json:"global_conflict_policy"`
	Provenance           *Provenance     `json:"provenance,omitempty"`
}

type RemoveIdentifierRequest struct {
	CaseID       string `json:"-"`
	TargetID     string `json:"-"`
	IdentifierID string `json:"-"`
}

// Outcomes of promoting an identifier into the global registry.
const (
	GlobalResolutionPromoted          = "promoted"
	GlobalResolutionAlreadyRegistered = "already_registered"
	GlobalResolutionMoved             = "moved"
	GlobalResolutionKeptExistingOwner = "kept_existing_owner"
)

// IdentifierResult reports how an add or update resolved.
type IdentifierResult struct {
	Identifier         Identifier `json:"identifier"`
	EffectiveTargetID  string     `json:"effective_target_id"`
	PreviousTargetID   *string    `json:"previous_target_id,omitempty"`
	CreatedIdentifier  bool       `json:"created_identifier"`
	MovedIdentifier    bool       `json:"moved_identifier"`
	UsedExistingTarget bool       `json:"used_existing_target"`
	GlobalEntityID     *string    `json:"global_entity_id,omitempty"`
	GlobalResolution   string     `json:"global_resolution,omitempty"`
}
