// Package registry resolves raw identifiers into case targets and cross-case
// global persons. Nothing here merges two identities unless the caller passes a
// conflict policy that says to.
package registry

import (
	"context"
	"strings"

	"github.com/Ramsey-B/thistle/internal/repositories/cases"
	"github.com/Ramsey-B/thistle/internal/repositories/globalperson"
	"github.com/Ramsey-B/thistle/internal/repositories/identifier"
	"github.com/Ramsey-B/thistle/internal/repositories/messageevent"
	"github.com/Ramsey-B/thistle/internal/repositories/participantlink"
	"github.com/Ramsey-B/thistle/internal/repositories/target"
	"github.com/Ramsey-B/thistle/internal/repositories/targetalias"
	"github.com/Ramsey-B/thistle/internal/repositories/targetidentifier"
	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/normalizers"
	"github.com/Ramsey-B/thistle/pkg/presence"
	"github.com/Ramsey-B/thistle/pkg/workspace"
	"go.uber.org/zap"
)

// Service is the identity registry. Every mutation runs as a single workspace
// write: the rows it touches, the presence refresh and the audit entry commit
// together or not at all.
type Service struct {
	ws      *workspace.Workspace
	logger  *zap.Logger
	indexer *presence.Indexer

	caseRepo        *cases.Repository
	identifierRepo  *identifier.Repository
	targetRepo      *target.Repository
	aliasRepo       *targetalias.Repository
	linkRepo        *targetidentifier.Repository
	globalRepo      *globalperson.Repository
	messageRepo     *messageevent.Repository
	participantRepo *participantlink.Repository
}

func NewService(ws *workspace.Workspace, indexer *presence.Indexer) *Service {
	conn, logger := ws.DB(), ws.Logger()
	return &Service{
		ws:              ws,
		logger:          logger,
		indexer:         indexer,
		caseRepo:        cases.NewRepository(conn, logger),
		identifierRepo:  identifier.NewRepository(conn, logger),
		targetRepo:      target.NewRepository(conn, logger),
		aliasRepo:       targetalias.NewRepository(conn, logger),
		linkRepo:        targetidentifier.NewRepository(conn, logger),
		globalRepo:      globalperson.NewRepository(conn, logger),
		messageRepo:     messageevent.NewRepository(conn, logger),
		participantRepo: participantlink.NewRepository(conn, logger),
	}
}

func manualProvenance() models.Provenance {
	return models.Provenance{
		SourceType:    models.SourceTypeManual,
		SourceLocator: "manual",
	}
}

func provenanceOrManual(p *models.Provenance) models.Provenance {
	if p == nil {
		return manualProvenance()
	}
	return *p
}

func validatePolicies(policies ...models.ConflictPolicy) error {
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return apperrors.Validation("conflict_policy", "%s", err.Error())
		}
	}
	return nil
}

// normalizedValue canonicalises the type name and normalizes raw under it.
func normalizedValue(idType models.IdentifierType, raw string) (models.IdentifierType, string, error) {
	t, err := normalizers.ParseIdentifierType(string(idType))
	if err != nil {
		return "", "", apperrors.Validation("type", "%s", err.Error())
	}
	normalized := normalizers.Normalize(t, raw)
	if normalized == "" {
		return "", "", apperrors.Validation("value", "identifier value %q is empty after normalization", raw)
	}
	return t, normalized, nil
}

// identifierConflict builds the conflict error for an identifier already linked
// to existingTargetID.
func (s *Service) identifierConflict(ctx context.Context, caseID string, ident *models.Identifier, requestedTargetID, existingTargetID string) error {
	existing, err := s.targetRepo.Get(ctx, caseID, existingTargetID)
	if err != nil {
		return err
	}
	metrics.RecordConflict("identifier")
	return &apperrors.IdentifierConflictError{
		CaseID:                    caseID,
		IdentifierID:              ident.ID,
		IdentifierType:            string(ident.Type),
		Value:                     ident.ValueNormalized,
		RequestedTargetID:         requestedTargetID,
		ExistingTargetID:          existing.ID,
		ExistingTargetDisplayName: existing.DisplayName,
	}
}

// violationAsConflict turns a unique violation on identifiers or links into the
// typed conflict for whatever row now holds the value. Other errors pass through.
func (s *Service) violationAsConflict(ctx context.Context, err error, caseID string, idType models.IdentifierType, normalized, requestedTargetID string) error {
	if !database.IsUniqueViolation(err) {
		return err
	}
	ident, findErr := s.identifierRepo.FindByValue(ctx, caseID, idType, normalized)
	if findErr != nil || ident == nil {
		return err
	}
	link, findErr := s.linkRepo.GetByIdentifier(ctx, caseID, ident.ID)
	if findErr != nil || link == nil {
		return err
	}
	return s.identifierConflict(ctx, caseID, ident, requestedTargetID, link.TargetID)
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
