package models

import "github.com/Ramsey-B/thistle/pkg/database"

// Target is a case-scoped person of interest.
type Target struct {
	ID             string             `json:"id" db:"id"`
	CaseID         string             `json:"case_id" db:"case_id"`
	DisplayName    string             `json:"display_name" db:"display_name"`
	PrimaryAlias   *string            `json:"primary_alias,omitempty" db:"primary_alias"`
	Notes          string             `json:"notes" db:"notes"`
	GlobalEntityID *string            `json:"global_entity_id,omitempty" db:"global_entity_id"`
	CreatedAt      database.Timestamp `json:"created_at" db:"created_at"`
	UpdatedAt      database.Timestamp `json:"updated_at" db:"updated_at"`
}

// TargetAlias is a display hint; aliases never participate in identity matching.
type TargetAlias struct {
	ID              string             `json:"id" db:"id"`
	CaseID          string             `json:"case_id" db:"case_id"`
	TargetID        string             `json:"target_id" db:"target_id"`
	Alias           string             `json:"alias" db:"alias"`
	AliasNormalized string             `json:"alias_normalized" db:"alias_normalized"`
	CreatedAt       database.Timestamp `json:"created_at" db:"created_at"`
}

// TargetIdentifierLink attaches an identifier to the target that owns it.
type TargetIdentifierLink struct {
	ID           string             `json:"id" db:"id"`
	CaseID       string             `json:"case_id" db:"case_id"`
	TargetID     string             `json:"target_id" db:"target_id"`
	IdentifierID string             `json:"identifier_id" db:"identifier_id"`
	IsPrimary    bool               `json:"is_primary" db:"is_primary"`
	CreatedAt    database.Timestamp `json:"created_at" db:"created_at"`
	UpdatedAt    database.Timestamp `json:"updated_at" db:"updated_at"`
	Provenance   `json:"provenance"`
}

// TargetDetail is a target with its aliases and linked identifiers.
type TargetDetail struct {
	Target
	Aliases     []TargetAlias      `json:"aliases"`
	Identifiers []LinkedIdentifier `json:"identifiers"`
}

// LinkedIdentifier is an identifier as seen through a target link.
type LinkedIdentifier struct {
	Identifier
	LinkID    string `json:"link_id" db:"link_id"`
	IsPrimary bool   `json:"is_primary" db:"is_primary"`
}

type CreateTargetRequest struct {
	CaseID       string  `json:"-"`
	DisplayName  string  `json:"display_name" validate:"required"`
	PrimaryAlias *string `json:"primary_alias,omitempty"`
	Notes        string  `json:"notes"`
}

type UpdateTargetRequest struct {
	CaseID       string  `json:"-"`
	TargetID     string  `json:"-"`
	DisplayName  *string `json:"display_name,omitempty" validate:"omitempty,min=1"`
	PrimaryAlias *string `json:"primary_alias,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

type ListTargetsRequest struct {
	CaseID string
	Search string
	Take   int
	Skip   int
}

type AliasRequest struct {
	CaseID   string `json:"-"`
	TargetID string `json:"-"`
	Alias    string `json:"alias" validate:"required"`
}
