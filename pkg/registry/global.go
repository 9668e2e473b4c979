package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"go.uber.org/zap"
)

// globalCollision is a target identifier already registered to another global person.
type globalCollision struct {
	identifier models.LinkedIdentifier
	owner      models.GlobalPersonIdentifier
}

// LinkTargetToGlobalPerson attaches a target to an existing global person and
// registers the target's identifiers and aliases with it. Identifiers registered
// to a different global person are resolved by req.GlobalConflictPolicy; the
// whole link is rolled back on a conflict.
func (s *Service) LinkTargetToGlobalPerson(ctx context.Context, req models.LinkTargetToGlobalPersonRequest) (*models.GlobalLinkResult, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.LinkTargetToGlobalPerson")
	defer span.End()

	if err := validatePolicies(req.GlobalConflictPolicy); err != nil {
		return nil, err
	}

	var result *models.GlobalLinkResult
	err := s.ws.Write(ctx, "link target to global person", func(ctx context.Context) error {
		if _, err := s.globalRepo.Get(ctx, req.GlobalEntityID); err != nil {
			return err
		}

		var err error
		result, err = s.linkGlobal(ctx, req.CaseID, req.TargetID, req.GlobalEntityID, nil, req.GlobalConflictPolicy)
		return err
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// CreateGlobalPersonForTarget creates a global person from a target. The display
// name defaults to the target's. Under UseExistingTarget a target whose
// identifiers already belong to one global person is linked to it instead.
func (s *Service) CreateGlobalPersonForTarget(ctx context.Context, req models.CreateGlobalPersonForTargetRequest) (*models.GlobalLinkResult, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.CreateGlobalPersonForTarget")
	defer span.End()

	if err := validatePolicies(req.GlobalConflictPolicy); err != nil {
		return nil, err
	}

	var result *models.GlobalLinkResult
	err := s.ws.Write(ctx, "create global person", func(ctx context.Context) error {
		name := trimmedPtr(req.DisplayName)
		if name == nil {
			t, err := s.targetRepo.Get(ctx, req.CaseID, req.TargetID)
			if err != nil {
				return err
			}
			name = &t.DisplayName
		}

		var err error
		result, err = s.linkGlobal(ctx, req.CaseID, req.TargetID, "", name, req.GlobalConflictPolicy)
		return err
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// linkGlobal runs inside a write. An empty globalEntityID creates a global
// person named newName unless UseExistingTarget redirects to an existing one.
func (s *Service) linkGlobal(ctx context.Context, caseID, targetID, globalEntityID string, newName *string, policy models.ConflictPolicy) (*models.GlobalLinkResult, error) {
	log := logging.WithContext(ctx, s.logger).With(zap.String("target_id", targetID))

	t, err := s.targetRepo.Get(ctx, caseID, targetID)
	if err != nil {
		return nil, err
	}
	idents, err := s.linkRepo.ListIdentifiersForTarget(ctx, caseID, targetID)
	if err != nil {
		return nil, err
	}

	var collisions []globalCollision
	owners := map[string]bool{}
	var ownerOrder []string
	for _, ident := range idents {
		owner, err := s.globalRepo.FindIdentifier(ctx, ident.Type, ident.ValueNormalized)
		if err != nil {
			return nil, err
		}
		if owner == nil || owner.GlobalEntityID == globalEntityID {
			continue
		}
		collisions = append(collisions, globalCollision{identifier: ident, owner: *owner})
		if !owners[owner.GlobalEntityID] {
			owners[owner.GlobalEntityID] = true
			ownerOrder = append(ownerOrder, owner.GlobalEntityID)
		}
	}

	result := &models.GlobalLinkResult{}

	if len(collisions) > 0 {
		switch policy.Effective() {
		case models.ConflictPolicyMoveIdentifierToRequestedTarget:
		case models.ConflictPolicyUseExistingTarget:
			if len(ownerOrder) > 1 {
				return nil, s.globalConflict(ctx, targetID, globalEntityID, collisions[0], ownerOrder[1:])
			}
			globalEntityID = ownerOrder[0]
			result.UsedExistingGlobal = true
			collisions = nil
		default:
			return nil, s.globalConflict(ctx, targetID, globalEntityID, collisions[0], ownerOrder[1:])
		}
	}

	if globalEntityID == "" {
		person, err := s.globalRepo.Create(ctx, &models.GlobalPerson{DisplayName: *newName})
		if err != nil {
			return nil, err
		}
		globalEntityID = person.ID
		result.CreatedGlobalPerson = true
		if err := s.ws.Audit(ctx, models.ActionGlobalPersonCreated, caseID, fmt.Sprintf("Created global person %s", person.DisplayName), person); err != nil {
			return nil, err
		}
	}
	result.GlobalEntityID = globalEntityID

	moving := map[string]string{}
	for _, c := range collisions {
		moving[c.identifier.ID] = c.owner.ID
	}

	for _, ident := range idents {
		if ownerRowID, ok := moving[ident.ID]; ok {
			if err := s.globalRepo.MoveIdentifier(ctx, ownerRowID, globalEntityID); err != nil {
				return nil, err
			}
			result.MovedIdentifierIDs = append(result.MovedIdentifierIDs, ident.ID)
			continue
		}

		owner, err := s.globalRepo.FindIdentifier(ctx, ident.Type, ident.ValueNormalized)
		if err != nil {
			return nil, err
		}
		if owner != nil {
			result.SkippedIdentifierIDs = append(result.SkippedIdentifierIDs, ident.ID)
			continue
		}
		if err := s.globalRepo.AddIdentifier(ctx, &models.GlobalPersonIdentifier{
			GlobalEntityID:  globalEntityID,
			Type:            ident.Type,
			ValueRaw:        ident.ValueRaw,
			ValueNormalized: ident.ValueNormalized,
		}); err != nil {
			return nil, err
		}
		result.PromotedIdentifierIDs = append(result.PromotedIdentifierIDs, ident.ID)
	}

	aliases, err := s.aliasRepo.ListByTarget(ctx, caseID, targetID)
	if err != nil {
		return nil, err
	}
	for _, alias := range aliases {
		if err := s.globalRepo.AddAlias(ctx, &models.GlobalPersonAlias{
			GlobalEntityID:  globalEntityID,
			Alias:           alias.Alias,
			AliasNormalized: alias.AliasNormalized,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.targetRepo.SetGlobalEntity(ctx, caseID, targetID, &globalEntityID); err != nil {
		return nil, err
	}
	if err := s.globalRepo.Touch(ctx, globalEntityID); err != nil {
		return nil, err
	}

	t, err = s.targetRepo.Get(ctx, caseID, targetID)
	if err != nil {
		return nil, err
	}
	result.Target = *t

	log.Info("Linked target to global person",
		zap.String("global_entity_id", globalEntityID),
		zap.Int("promoted", len(result.PromotedIdentifierIDs)),
		zap.Int("moved", len(result.MovedIdentifierIDs)))

	if err := s.ws.Audit(ctx, models.ActionTargetLinkedToGlobal, caseID,
		fmt.Sprintf("Linked target %s to global person %s", t.DisplayName, globalEntityID), result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) globalConflict(ctx context.Context, targetID, requestedGlobalID string, c globalCollision, additional []string) error {
	existing, err := s.globalRepo.Get(ctx, c.owner.GlobalEntityID)
	if err != nil {
		return err
	}
	metrics.RecordConflict("global_person")
	return &apperrors.GlobalPersonIdentifierConflictError{
		TargetID:                  targetID,
		RequestedGlobalEntityID:   requestedGlobalID,
		ExistingGlobalEntityID:    existing.ID,
		ExistingDisplayName:       existing.DisplayName,
		IdentifierType:            string(c.identifier.Type),
		Value:                     c.identifier.ValueNormalized,
		AdditionalGlobalEntityIDs: additional,
	}
}

// promoteIdentifier registers one identifier with globalEntityID. When another
// global person already owns the value, Move takes it over and UseExistingTarget
// leaves it with its owner.
func (s *Service) promoteIdentifier(ctx context.Context, targetID string, ident models.Identifier, globalEntityID string, policy models.ConflictPolicy) (string, error) {
	owner, err := s.globalRepo.FindIdentifier(ctx, ident.Type, ident.ValueNormalized)
	if err != nil {
		return "", err
	}

	switch {
	case owner == nil:
		if err := s.globalRepo.AddIdentifier(ctx, &models.GlobalPersonIdentifier{
			GlobalEntityID:  globalEntityID,
			Type:            ident.Type,
			ValueRaw:        ident.ValueRaw,
			ValueNormalized: ident.ValueNormalized,
		}); err != nil {
			return "", err
		}
		return models.GlobalResolutionPromoted, s.globalRepo.Touch(ctx, globalEntityID)

	case owner.GlobalEntityID == globalEntityID:
		return models.GlobalResolutionAlreadyRegistered, nil
	}

	switch policy.Effective() {
	case models.ConflictPolicyMoveIdentifierToRequestedTarget:
		if err := s.globalRepo.MoveIdentifier(ctx, owner.ID, globalEntityID); err != nil {
			return "", err
		}
		return models.GlobalResolutionMoved, s.globalRepo.Touch(ctx, globalEntityID)
	case models.ConflictPolicyUseExistingTarget:
		return models.GlobalResolutionKeptExistingOwner, nil
	default:
		return "", s.globalConflict(ctx, targetID, globalEntityID, globalCollision{
			identifier: models.LinkedIdentifier{Identifier: ident},
			owner:      *owner,
		}, nil)
	}
}

// UnlinkTargetFromGlobalPerson detaches a target from its global person. The
// global person keeps the identifiers and aliases it collected.
func (s *Service) UnlinkTargetFromGlobalPerson(ctx context.Context, caseID, targetID string) (*models.Target, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.UnlinkTargetFromGlobalPerson")
	defer span.End()

	var updated *models.Target
	err := s.ws.Write(ctx, "unlink target from global person", func(ctx context.Context) error {
		t, err := s.targetRepo.Get(ctx, caseID, targetID)
		if err != nil {
			return err
		}
		if t.GlobalEntityID == nil {
			updated = t
			return nil
		}
		previous := *t.GlobalEntityID

		if err := s.targetRepo.SetGlobalEntity(ctx, caseID, targetID, nil); err != nil {
			return err
		}
		if updated, err = s.targetRepo.Get(ctx, caseID, targetID); err != nil {
			return err
		}
		return s.ws.Audit(ctx, models.ActionTargetUnlinkedFromGlobal, caseID,
			fmt.Sprintf("Unlinked target %s from global person %s", t.DisplayName, previous),
			map[string]string{"target_id": targetID, "global_entity_id": previous})
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return updated, nil
}

// GetGlobalPerson returns a global person with its aliases, identifiers and the
// targets in any case that point at it.
func (s *Service) GetGlobalPerson(ctx context.Context, globalEntityID string) (*models.GlobalPersonDetail, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.GetGlobalPerson")
	defer span.End()

	globalEntityID = strings.TrimSpace(globalEntityID)
	person, err := s.globalRepo.Get(ctx, globalEntityID)
	if err != nil {
		return nil, err
	}
	aliases, err := s.globalRepo.ListAliases(ctx, globalEntityID)
	if err != nil {
		return nil, err
	}
	idents, err := s.globalRepo.ListIdentifiers(ctx, globalEntityID)
	if err != nil {
		return nil, err
	}
	targets, err := s.targetRepo.ListByGlobalEntity(ctx, globalEntityID)
	if err != nil {
		return nil, err
	}

	return &models.GlobalPersonDetail{
		GlobalPerson:        *person,
		Aliases:             aliases,
		Identifiers:         idents,
		ContributingTargets: targets,
	}, nil
}
