package models

import "github.com/Ramsey-B/thistle/pkg/database"

// GlobalPerson links targets across cases. Its identifiers are unique globally.
type GlobalPerson struct {
	ID          string             `json:"global_entity_id" db:"id"`
	DisplayName string             `json:"display_name" db:"display_name"`
	CreatedAt   database.Timestamp `json:"created_at" db:"created_at"`
	UpdatedAt   database.Timestamp `json:"updated_at" db:"updated_at"`
}

type GlobalPersonAlias struct {
	ID              string             `json:"id" db:"id"`
	GlobalEntityID  string             `json:"global_entity_id" db:"global_entity_id"`
	Alias           string             `json:"alias" db:"alias"`
	AliasNormalized string             `json:"alias_normalized" db:"alias_normalized"`
	CreatedAt       database.Timestamp `json:"created_at" db:"created_at"`
}

type GlobalPersonIdentifier struct {
	ID              string             `json:"id" db:"id"`
	GlobalEntityID  string             `json:"global_entity_id" db:"global_entity_id"`
	Type            IdentifierType     `json:"type" db:"type"`
	ValueRaw        string             `json:"value_raw" db:"value_raw"`
	ValueNormalized string             `json:"value_normalized" db:"value_normalized"`
	CreatedAt       database.Timestamp `json:"created_at" db:"created_at"`
}

// GlobalPersonDetail is a global person with everything attached to it.
type GlobalPersonDetail struct {
	GlobalPerson
	Aliases             []GlobalPersonAlias      `json:"aliases"`
	Identifiers         []GlobalPersonIdentifier `json:"identifiers"`
	ContributingTargets []Target                 `json:"contributing_targets"`
}

type LinkTargetToGlobalPersonRequest struct {
	CaseID               string         `json:"-"`
	TargetID             string         `json:"-"`
	GlobalEntityID       string         `json:"global_entity_id" validate:"required"`
	GlobalConflictPolicy ConflictPolicy `json:"global_conflict_policy"`
}

type CreateGlobalPersonForTargetRequest struct {
	CaseID               string         `json:"-"`
	TargetID             string         `json:"-"`
	DisplayName          *string        `json:"display_name,omitempty"`
	GlobalConflictPolicy ConflictPolicy `json:"global_conflict_policy"`
}

// GlobalLinkResult reports how a promotion into the global registry resolved.
type GlobalLinkResult struct {
	Target                Target   `json:"target"`
	GlobalEntityID        string   `json:"global_entity_id"`
	CreatedGlobalPerson   bool     `json:"created_global_person"`
	UsedExistingGlobal    bool     `json:"used_existing_global"`
	MovedIdentifierIDs    []string `json:"moved_identifier_ids,omitempty"`
	PromotedIdentifierIDs []string `json:"promoted_identifier_ids,omitempty"`
	SkippedIdentifierIDs  []string `json:"skipped_identifier_ids,omitempty"`
}
