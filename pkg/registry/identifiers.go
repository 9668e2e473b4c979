package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"go.uber.org/zap"
)

// AddIdentifier attaches a value to a target. An identifier already linked to a
// different target is resolved by req.ConflictPolicy:
//   - Cancel fails with *apperrors.IdentifierConflictError
//   - MoveIdentifierToRequestedTarget re-links it and refreshes its presence rows
//   - UseExistingTarget leaves the link alone and reports the existing target
//
// When the effective target belongs to a global person the identifier is promoted
// into the global registry under req.GlobalConflictPolicy.
func (s *Service) AddIdentifier(ctx context.Context, req models.AddIdentifierRequest) (*models.IdentifierResult, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.AddIdentifier")
	defer span.End()

	if err := validatePolicies(req.ConflictPolicy, req.GlobalConflictPolicy); err != nil {
		return nil, err
	}
	idType, normalized, err := normalizedValue(req.Type, req.Value)
	if err != nil {
		return nil, err
	}

	var result *models.IdentifierResult
	err = s.ws.Write(ctx, "add identifier", func(ctx context.Context) error {
		var err error
		result, err = s.addIdentifier(ctx, req, idType, normalized)
		if err != nil {
			return err
		}
		return s.ws.Audit(ctx, models.ActionIdentifierAdded, req.CaseID,
			fmt.Sprintf("Added %s identifier %s to target %s", idType, normalized, req.TargetID), result)
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// addIdentifier runs inside a write.
func (s *Service) addIdentifier(ctx context.Context, req models.AddIdentifierRequest, idType models.IdentifierType, normalized string) (*models.IdentifierResult, error) {
	log := logging.WithContext(ctx, s.logger).With(zap.String("target_id", req.TargetID), zap.String("identifier_type", string(idType)))
	provenance := provenanceOrManual(req.Provenance)

	if _, err := s.targetRepo.Get(ctx, req.CaseID, req.TargetID); err != nil {
		return nil, err
	}

	result := &models.IdentifierResult{EffectiveTargetID: req.TargetID}

	ident, err := s.identifierRepo.FindByValue(ctx, req.CaseID, idType, normalized)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		ident, err = s.identifierRepo.Create(ctx, &models.Identifier{
			CaseID:          req.CaseID,
			Type:            idType,
			ValueRaw:        strings.TrimSpace(req.Value),
			ValueNormalized: normalized,
			Notes:           req.Notes,
			Provenance:      provenance,
		})
		if err != nil {
			return nil, s.violationAsConflict(ctx, err, req.CaseID, idType, normalized, req.TargetID)
		}
		result.CreatedIdentifier = true
	}
	result.Identifier = *ident

	link, err := s.linkRepo.GetByIdentifier(ctx, req.CaseID, ident.ID)
	if err != nil {
		return nil, err
	}

	switch {
	case link == nil:
		if _, err := s.linkRepo.Create(ctx, &models.TargetIdentifierLink{
			CaseID:       req.CaseID,
			TargetID:     req.TargetID,
			IdentifierID: ident.ID,
			IsPrimary:    req.IsPrimary,
			Provenance:   provenance,
		}); err != nil {
			return nil, s.violationAsConflict(ctx, err, req.CaseID, idType, normalized, req.TargetID)
		}

	case link.TargetID == req.TargetID:
		if req.IsPrimary && !link.IsPrimary {
			if err := s.linkRepo.SetPrimary(ctx, req.CaseID, link.ID, true); err != nil {
				return nil, err
			}
		}

	default:
		switch req.ConflictPolicy.Effective() {
		case models.ConflictPolicyMoveIdentifierToRequestedTarget:
			if err := s.linkRepo.MoveToTarget(ctx, req.CaseID, link.ID, req.TargetID, req.IsPrimary, provenance); err != nil {
				return nil, err
			}
			previous := link.TargetID
			result.PreviousTargetID = &previous
			result.MovedIdentifier = true
			log.Info("Moved identifier to requested target", zap.String("previous_target_id", previous))

		case models.ConflictPolicyUseExistingTarget:
			result.EffectiveTargetID = link.TargetID
			result.UsedExistingTarget = true

		default:
			return nil, s.identifierConflict(ctx, req.CaseID, ident, req.TargetID, link.TargetID)
		}
	}

	if _, err := s.indexer.RefreshForIdentifier(ctx, req.CaseID, ident.ID); err != nil {
		return nil, err
	}

	if err := s.promoteForTarget(ctx, req.CaseID, result, req.GlobalConflictPolicy); err != nil {
		return nil, err
	}
	return result, nil
}

// promoteForTarget registers result.Identifier globally when the effective
// target belongs to a global person.
func (s *Service) promoteForTarget(ctx context.Context, caseID string, result *models.IdentifierResult, policy models.ConflictPolicy) error {
	effective, err := s.targetRepo.Get(ctx, caseID, result.EffectiveTargetID)
	if err != nil {
		return err
	}
	if effective.GlobalEntityID == nil {
		return nil
	}

	resolution, err := s.promoteIdentifier(ctx, effective.ID, result.Identifier, *effective.GlobalEntityID, policy)
	if err != nil {
		return err
	}
	result.GlobalEntityID = effective.GlobalEntityID
	result.GlobalResolution = resolution
	return nil
}

// UpdateIdentifier changes the value or type of an identifier linked to
// req.TargetID. If another row already holds the new value it is reused when it
// is unlinked or already on this target; when it belongs to a different target
// req.ConflictPolicy decides. The edited row is detached rather than deleted so
// its message history stays.
func (s *Service) UpdateIdentifier(ctx context.Context, req models.UpdateIdentifierRequest) (*models.IdentifierResult, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.UpdateIdentifier")
	defer span.End()

	if err := validatePolicies(req.ConflictPolicy, req.GlobalConflictPolicy); err != nil {
		return nil, err
	}

	var result *models.IdentifierResult
	err := s.ws.Write(ctx, "update identifier", func(ctx context.Context) error {
		var err error
		result, err = s.updateIdentifier(ctx, req)
		if err != nil {
			return err
		}
		return s.ws.Audit(ctx, models.ActionIdentifierUpdated, req.CaseID,
			fmt.Sprintf("Updated identifier %s on target %s", req.IdentifierID, req.TargetID), result)
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

func (s *Service) updateIdentifier(ctx context.Context, req models.UpdateIdentifierRequest) (*models.IdentifierResult, error) {
	current, err := s.identifierRepo.Get(ctx, req.CaseID, req.IdentifierID)
	if err != nil {
		return nil, err
	}
	link, err := s.linkRepo.GetByIdentifier(ctx, req.CaseID, current.ID)
	if err != nil {
		return nil, err
	}
	if link == nil || link.TargetID != req.TargetID {
		return nil, apperrors.NotFound("target identifier link", req.IdentifierID, req.CaseID)
	}

	idType := current.Type
	if req.Type != nil {
		idType = *req.Type
	}
	idType, normalized, err := normalizedValue(idType, req.Value)
	if err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(req.Value)

	result := &models.IdentifierResult{EffectiveTargetID: req.TargetID}
	affected := []string{current.ID}

	existing, err := s.identifierRepo.FindByValue(ctx, req.CaseID, idType, normalized)
	if err != nil {
		return nil, err
	}

	switch {
	case existing == nil || existing.ID == current.ID:
		if err := s.identifierRepo.UpdateValue(ctx, req.CaseID, current.ID, idType, raw, normalized); err != nil {
			return nil, s.violationAsConflict(ctx, err, req.CaseID, idType, normalized, req.TargetID)
		}
		current.Type, current.ValueRaw, current.ValueNormalized = idType, raw, normalized
		result.Identifier = *current

	default:
		result.Identifier = *existing
		affected = append(affected, existing.ID)

		existingLink, err := s.linkRepo.GetByIdentifier(ctx, req.CaseID, existing.ID)
		if err != nil {
			return nil, err
		}

		switch {
		case existingLink == nil:
			if err := s.linkRepo.RelinkIdentifier(ctx, req.CaseID, link.ID, existing.ID); err != nil {
				return nil, err
			}

		case existingLink.TargetID == req.TargetID:
			if _, err := s.linkRepo.DeleteByIdentifier(ctx, req.CaseID, current.ID); err != nil {
				return nil, err
			}

		default:
			switch req.ConflictPolicy.Effective() {
			case models.ConflictPolicyMoveIdentifierToRequestedTarget:
				if _, err := s.linkRepo.DeleteByIdentifier(ctx, req.CaseID, current.ID); err != nil {
					return nil, err
				}
				if err := s.linkRepo.MoveToTarget(ctx, req.CaseID, existingLink.ID, req.TargetID, link.IsPrimary, provenanceOrManual(req.Provenance)); err != nil {
					return nil, err
				}
				previous := existingLink.TargetID
				result.PreviousTargetID = &previous
				result.MovedIdentifier = true

			case models.ConflictPolicyUseExistingTarget:
				result.EffectiveTargetID = existingLink.TargetID
				result.UsedExistingTarget = true
				affected = nil

			default:
				return nil, s.identifierConflict(ctx, req.CaseID, existing, req.TargetID, existingLink.TargetID)
			}
		}
	}

	for _, id := range affected {
		if _, err := s.indexer.RefreshForIdentifier(ctx, req.CaseID, id); err != nil {
			return nil, err
		}
	}

	if err := s.promoteForTarget(ctx, req.CaseID, result, req.GlobalConflictPolicy); err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveIdentifier detaches an identifier from its target. The identifier row and
// the messages it appears on are kept.
func (s *Service) RemoveIdentifier(ctx context.Context, req models.RemoveIdentifierRequest) error {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.RemoveIdentifier")
	defer span.End()

	err := s.ws.Write(ctx, "remove identifier", func(ctx context.Context) error {
		link, err := s.linkRepo.GetByIdentifier(ctx, req.CaseID, req.IdentifierID)
		if err != nil {
			return err
		}
		if link == nil || link.TargetID != req.TargetID {
			return apperrors.NotFound("target identifier link", req.IdentifierID, req.CaseID)
		}

		if _, err := s.linkRepo.DeleteByIdentifier(ctx, req.CaseID, req.IdentifierID); err != nil {
			return err
		}
		if _, err := s.indexer.RefreshForIdentifier(ctx, req.CaseID, req.IdentifierID); err != nil {
			return err
		}

		return s.ws.Audit(ctx, models.ActionIdentifierRemoved, req.CaseID,
			fmt.Sprintf("Removed identifier %s from target %s", req.IdentifierID, req.TargetID),
			map[string]string{"target_id": req.TargetID, "identifier_id": req.IdentifierID})
	})
	if err != nil {
		tracing.RecordError(span, err)
	}
	return err
}
