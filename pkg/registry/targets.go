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

const (
	defaultListTake = 100
	maxListTake     = 1000
)

func (s *Service) CreateTarget(ctx context.Context, req models.CreateTargetRequest) (*models.Target, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.CreateTarget")
	defer span.End()

	var created *models.Target
	err := s.ws.Write(ctx, "create target", func(ctx context.Context) error {
		var err error
		created, err = s.createTarget(ctx, req)
		return err
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return created, nil
}

// createTarget runs inside a write. A primary alias is also stored as an alias row.
func (s *Service) createTarget(ctx context.Context, req models.CreateTargetRequest) (*models.Target, error) {
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, apperrors.Validation("display_name", "display name is required")
	}
	if _, err := s.caseRepo.Get(ctx, req.CaseID); err != nil {
		return nil, err
	}

	created, err := s.targetRepo.Create(ctx, &models.Target{
		CaseID:       req.CaseID,
		DisplayName:  name,
		PrimaryAlias: trimmedPtr(req.PrimaryAlias),
		Notes:        req.Notes,
	})
	if err != nil {
		return nil, err
	}

	if created.PrimaryAlias != nil {
		if _, err := s.addAlias(ctx, created, *created.PrimaryAlias); err != nil {
			return nil, err
		}
	}

	if err := s.ws.Audit(ctx, models.ActionTargetCreated, req.CaseID, fmt.Sprintf("Created target %s", name), created); err != nil {
		return nil, err
	}
	return created, nil
}

// GetTarget returns a target with its aliases and identifiers.
func (s *Service) GetTarget(ctx context.Context, caseID, targetID string) (*models.TargetDetail, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.GetTarget")
	defer span.End()

	t, err := s.targetRepo.Get(ctx, caseID, targetID)
	if err != nil {
		return nil, err
	}
	aliases, err := s.aliasRepo.ListByTarget(ctx, caseID, targetID)
	if err != nil {
		return nil, err
	}
	idents, err := s.linkRepo.ListIdentifiersForTarget(ctx, caseID, targetID)
	if err != nil {
		return nil, err
	}

	return &models.TargetDetail{Target: *t, Aliases: aliases, Identifiers: idents}, nil
}

// ListTargets returns a page of targets and the total matching count.
func (s *Service) ListTargets(ctx context.Context, req models.ListTargetsRequest) ([]models.Target, int, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.ListTargets")
	defer span.End()

	switch {
	case req.Take <= 0:
		req.Take = defaultListTake
	case req.Take > maxListTake:
		req.Take = maxListTake
	}
	if req.Skip < 0 {
		req.Skip = 0
	}
	return s.targetRepo.List(ctx, req)
}

func (s *Service) UpdateTarget(ctx context.Context, req models.UpdateTargetRequest) (*models.Target, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.UpdateTarget")
	defer span.End()

	var updated *models.Target
	err := s.ws.Write(ctx, "update target", func(ctx context.Context) error {
		t, err := s.targetRepo.Get(ctx, req.CaseID, req.TargetID)
		if err != nil {
			return err
		}

		if req.DisplayName != nil {
			name := strings.TrimSpace(*req.DisplayName)
			if name == "" {
				return apperrors.Validation("display_name", "display name cannot be empty")
			}
			t.DisplayName = name
		}
		if req.PrimaryAlias != nil {
			t.PrimaryAlias = trimmedPtr(req.PrimaryAlias)
			if t.PrimaryAlias != nil {
				if _, err := s.addAlias(ctx, t, *t.PrimaryAlias); err != nil {
					return err
				}
			}
		}
		if req.Notes != nil {
			t.Notes = *req.Notes
		}

		if err := s.targetRepo.Update(ctx, t); err != nil {
			return err
		}
		updated = t
		return s.ws.Audit(ctx, models.ActionTargetUpdated, req.CaseID, fmt.Sprintf("Updated target %s", t.DisplayName), t)
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return updated, nil
}

// DeleteTarget removes a target with its links and aliases. Identifier rows and
// participant links stay; the freed identifiers lose their presence rows.
func (s *Service) DeleteTarget(ctx context.Context, caseID, targetID string) error {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.DeleteTarget")
	defer span.End()

	err := s.ws.Write(ctx, "delete target", func(ctx context.Context) error {
		t, err := s.targetRepo.Get(ctx, caseID, targetID)
		if err != nil {
			return err
		}
		idents, err := s.linkRepo.ListIdentifiersForTarget(ctx, caseID, targetID)
		if err != nil {
			return err
		}

		if err := s.targetRepo.Delete(ctx, caseID, targetID); err != nil {
			return err
		}
		for _, ident := range idents {
			if _, err := s.indexer.RefreshForIdentifier(ctx, caseID, ident.ID); err != nil {
				return err
			}
		}

		return s.ws.Audit(ctx, models.ActionTargetDeleted, caseID, fmt.Sprintf("Deleted target %s", t.DisplayName),
			map[string]any{"target_id": targetID, "detached_identifiers": len(idents)})
	})
	if err != nil {
		tracing.RecordError(span, err)
	}
	return err
}

// AddAlias adds a display alias. Aliases are never checked against other targets.
func (s *Service) AddAlias(ctx context.Context, req models.AliasRequest) (*models.TargetAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.AddAlias")
	defer span.End()

	var alias *models.TargetAlias
	err := s.ws.Write(ctx, "add alias", func(ctx context.Context) error {
		t, err := s.targetRepo.Get(ctx, req.CaseID, req.TargetID)
		if err != nil {
			return err
		}
		alias, err = s.addAlias(ctx, t, req.Alias)
		return err
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return alias, nil
}

// addAlias runs inside a write. Aliases of a target linked to a global person are
// copied to the global person too.
func (s *Service) addAlias(ctx context.Context, t *models.Target, raw string) (*models.TargetAlias, error) {
	alias := normalizers.CollapseWhitespace(raw)
	normalized := normalizers.NormalizeAlias(raw)
	if normalized == "" {
		return nil, apperrors.Validation("alias", "alias is required")
	}

	stored, created, err := s.aliasRepo.Create(ctx, &models.TargetAlias{
		CaseID:          t.CaseID,
		TargetID:        t.ID,
		Alias:           alias,
		AliasNormalized: normalized,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return stored, nil
	}

	if t.GlobalEntityID != nil {
		if err := s.globalRepo.AddAlias(ctx, &models.GlobalPersonAlias{
			GlobalEntityID:  *t.GlobalEntityID,
			Alias:           alias,
			AliasNormalized: normalized,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.ws.Audit(ctx, models.ActionAliasAdded, t.CaseID, fmt.Sprintf("Added alias %q to target %s", alias, t.DisplayName), stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Service) RemoveAlias(ctx context.Context, req models.AliasRequest) error {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.RemoveAlias")
	defer span.End()

	normalized := normalizers.NormalizeAlias(req.Alias)
	if normalized == "" {
		return apperrors.Validation("alias", "alias is required")
	}

	err := s.ws.Write(ctx, "remove alias", func(ctx context.Context) error {
		deleted, err := s.aliasRepo.Delete(ctx, req.CaseID, req.TargetID, normalized)
		if err != nil {
			return err
		}
		if !deleted {
			return apperrors.NotFound("target alias", req.Alias, req.CaseID)
		}
		return s.ws.Audit(ctx, models.ActionAliasRemoved, req.CaseID, fmt.Sprintf("Removed alias %q from target %s", req.Alias, req.TargetID),
			map[string]string{"target_id": req.TargetID, "alias": req.Alias})
	})
	if err != nil {
		tracing.RecordError(span, err)
	}
	return err
}
