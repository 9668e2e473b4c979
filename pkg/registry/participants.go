package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/normalizers"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// LinkMessageParticipant resolves a raw participant string on a message event to
// an identifier, and to a target when one is given, already linked or requested
// by name, then records the participant link and refreshes presence for the
// identifier.
func (s *Service) LinkMessageParticipant(ctx context.Context, req models.LinkMessageParticipantRequest) (*models.MessageParticipantLinkResult, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.LinkMessageParticipant")
	defer span.End()

	if !req.Role.Valid() {
		return nil, apperrors.Validation("role", "role must be sender or recipient, got %q", req.Role)
	}
	if err := validatePolicies(req.ConflictPolicy, req.GlobalConflictPolicy); err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(req.ParticipantRaw)
	if raw == "" {
		return nil, apperrors.Validation("participant_raw", "participant is required")
	}

	idType := normalizers.InferType(raw)
	if req.RequestedType != nil && *req.RequestedType != "" {
		idType = *req.RequestedType
	}
	idType, normalized, err := normalizedValue(idType, raw)
	if err != nil {
		return nil, err
	}

	var result *models.MessageParticipantLinkResult
	err = s.ws.Write(ctx, "link message participant", func(ctx context.Context) error {
		var err error
		result, err = s.linkParticipant(ctx, req, raw, idType, normalized)
		return err
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

func (s *Service) linkParticipant(ctx context.Context, req models.LinkMessageParticipantRequest, raw string, idType models.IdentifierType, normalized string) (*models.MessageParticipantLinkResult, error) {
	message, err := s.messageRepo.Get(ctx, req.CaseID, req.MessageEventID)
	if err != nil {
		return nil, err
	}

	provenance := models.Provenance{
		SourceType:           models.SourceTypeMessage,
		SourceEvidenceItemID: &message.EvidenceItemID,
		SourceLocator:        message.SourceLocator,
		IngestModuleVersion:  message.IngestModuleVersion,
	}
	if req.Provenance != nil {
		provenance = *req.Provenance
	}

	result := &models.MessageParticipantLinkResult{}
	targetID := trimmedPtr(req.TargetID)

	ident, err := s.identifierRepo.FindByValue(ctx, req.CaseID, idType, normalized)
	if err != nil {
		return nil, err
	}

	newTargetName := trimmedPtr(req.NewTargetDisplayName)

	var existingTargetID string
	if targetID == nil && ident != nil {
		link, err := s.linkRepo.GetByIdentifier(ctx, req.CaseID, ident.ID)
		if err != nil {
			return nil, err
		}
		if link != nil {
			existingTargetID = link.TargetID
		}
	}

	// The current owner is reused unless a new target was requested under a
	// policy other than UseExistingTarget.
	switch {
	case existingTargetID != "" && (newTargetName == nil || req.ConflictPolicy.Effective() == models.ConflictPolicyUseExistingTarget):
		targetID = &existingTargetID
		result.UsedExistingTarget = true
	case targetID == nil && newTargetName != nil:
		created, err := s.createTarget(ctx, models.CreateTargetRequest{CaseID: req.CaseID, DisplayName: *newTargetName})
		if err != nil {
			return nil, err
		}
		targetID = &created.ID
		result.CreatedTarget = true
	}

	switch {
	case targetID != nil && !result.UsedExistingTarget:
		added, err := s.addIdentifier(ctx, models.AddIdentifierRequest{
			CaseID:               req.CaseID,
			TargetID:             *targetID,
			Type:                 idType,
			Value:                raw,
			ConflictPolicy:       req.ConflictPolicy,
			GlobalConflictPolicy: req.GlobalConflictPolicy,
			Provenance:           &provenance,
		}, idType, normalized)
		if err != nil {
			return nil, err
		}
		ident = &added.Identifier
		effective := added.EffectiveTargetID
		targetID = &effective
		result.CreatedIdentifier = added.CreatedIdentifier
		result.MovedIdentifier = added.MovedIdentifier
		result.UsedExistingTarget = added.UsedExistingTarget

	case ident == nil:
		ident, err = s.identifierRepo.Create(ctx, &models.Identifier{
			CaseID:          req.CaseID,
			Type:            idType,
			ValueRaw:        raw,
			ValueNormalized: normalized,
			Provenance:      provenance,
		})
		if err != nil {
			return nil, err
		}
		result.CreatedIdentifier = true
	}

	link, err := s.participantRepo.Upsert(ctx, &models.MessageParticipantLink{
		CaseID:         req.CaseID,
		MessageEventID: message.ID,
		Role:           req.Role,
		ParticipantRaw: raw,
		IdentifierID:   ident.ID,
		TargetID:       targetID,
		Provenance:     provenance,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.indexer.RefreshForIdentifier(ctx, req.CaseID, ident.ID); err != nil {
		return nil, err
	}

	result.Link = *link
	result.Identifier = *ident
	result.TargetID = targetID

	if err := s.ws.Audit(ctx, models.ActionParticipantLinked, req.CaseID,
		fmt.Sprintf("Linked %s %s on message %s", req.Role, normalized, message.ID), result); err != nil {
		return nil, err
	}
	return result, nil
}
