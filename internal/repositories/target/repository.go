package target

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"go.uber.org/zap"
)

var columns = []string{
	"id", "case_id", "display_name", "primary_alias", "notes", "global_entity_id", "created_at", "updated_at",
}

// Repository handles target persistence
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new target repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Create(ctx context.Context, t *models.Target) (*models.Target, error) {
	ctx, span := tracing.StartSpan(ctx, "target.Repository.Create")
	defer span.End()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = database.Now()
	t.UpdatedAt = t.CreatedAt

	sb := database.NewInsertBuilder()
	sb.InsertInto("targets")
	sb.Cols(columns...)
	sb.Values(t.ID, t.CaseID, t.DisplayName, t.PrimaryAlias, t.Notes, t.GlobalEntityID, t.CreatedAt, t.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to create target", zap.Error(err))
		return nil, fmt.Errorf("failed to create target: %w", err)
	}

	logging.WithContext(ctx, r.logger).Debug("Created target", zap.String("target_id", t.ID))
	return t, nil
}

func (r *Repository) Get(ctx context.Context, caseID, id string) (*models.Target, error) {
	ctx, span := tracing.StartSpan(ctx, "target.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("targets")
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("id", id))

	query, args := sb.Build()
	var t models.Target
	if err := database.Conn(ctx, r.db).GetContext(ctx, &t, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("target", id, caseID)
		}
		logging.WithContext(ctx, r.logger).Error("Failed to get target", zap.String("target_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get target: %w", err)
	}

	return &t, nil
}

// List returns a page of a case's targets ordered by display name. Search
// matches display name or primary alias.
func (r *Repository) List(ctx context.Context, req models.ListTargetsRequest) ([]models.Target, int, error) {
	ctx, span := tracing.StartSpan(ctx, "target.Repository.List")
	defer span.End()

	filter := func(sb *sqlbuilder.SelectBuilder) {
		sb.From("targets")
		sb.Where(sb.Equal("case_id", req.CaseID))
		if req.Search != "" {
			pattern := database.LikePattern(req.Search)
			sb.Where(fmt.Sprintf(`(lower(display_name) LIKE %s ESCAPE '\' OR lower(coalesce(primary_alias, '')) LIKE %s ESCAPE '\')`,
				sb.Var(pattern), sb.Var(pattern)))
		}
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	filter(sb)

	countSb := database.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	filter(countSb)

	sb.OrderBy("display_name COLLATE NOCASE", "id")
	if req.Take > 0 {
		sb.Limit(req.Take)
		sb.Offset(req.Skip)
	}

	query, args := sb.Build()
	targets := []models.Target{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &targets, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list targets", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list targets: %w", err)
	}

	countQuery, countArgs := countSb.Build()
	var total int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to count targets", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count targets: %w", err)
	}

	return targets, total, nil
}

// Update writes display name, primary alias and notes.
func (r *Repository) Update(ctx context.Context, t *models.Target) error {
	ctx, span := tracing.StartSpan(ctx, "target.Repository.Update")
	defer span.End()

	t.UpdatedAt = database.Now()
	sb := database.NewUpdateBuilder()
	sb.Update("targets")
	sb.Set(
		sb.Assign("display_name", t.DisplayName),
		sb.Assign("primary_alias", t.PrimaryAlias),
		sb.Assign("notes", t.Notes),
		sb.Assign("updated_at", t.UpdatedAt),
	)
	sb.Where(sb.Equal("case_id", t.CaseID), sb.Equal("id", t.ID))

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to update target", zap.String("target_id", t.ID), zap.Error(err))
		return fmt.Errorf("failed to update target: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("target", t.ID, t.CaseID)
	}
	return nil
}

// SetGlobalEntity points the target at a global person, or clears it when
// globalEntityID is nil.
func (r *Repository) SetGlobalEntity(ctx context.Context, caseID, id string, globalEntityID *string) error {
	ctx, span := tracing.StartSpan(ctx, "target.Repository.SetGlobalEntity")
	defer span.End()

	sb := database.NewUpdateBuilder()
	sb.Update("targets")
	sb.Set(
		sb.Assign("global_entity_id", globalEntityID),
		sb.Assign("updated_at", database.Now()),
	)
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("id", id))

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to set target global entity", zap.String("target_id", id), zap.Error(err))
		return fmt.Errorf("failed to set target global entity: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("target", id, caseID)
	}
	return nil
}

// ListByGlobalEntity returns targets in any case that point at the global person.
func (r *Repository) ListByGlobalEntity(ctx context.Context, globalEntityID string) ([]models.Target, error) {
	ctx, span := tracing.StartSpan(ctx, "target.Repository.ListByGlobalEntity")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("targets")
	sb.Where(sb.Equal("global_entity_id", globalEntityID))
	sb.OrderBy("case_id", "display_name", "id")

	query, args := sb.Build()
	targets := []models.Target{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &targets, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list targets by global entity", zap.Error(err))
		return nil, fmt.Errorf("failed to list targets by global entity: %w", err)
	}

	return targets, nil
}

// ListByCase returns every target in a case.
func (r *Repository) ListByCase(ctx context.Context, caseID string) ([]models.Target, error) {
	targets, _, err := r.List(ctx, models.ListTargetsRequest{CaseID: caseID})
	return targets, err
}

// Delete removes a target. Links, aliases and presence rows cascade; participant
// links keep their identifier and lose the target reference.
func (r *Repository) Delete(ctx context.Context, caseID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "target.Repository.Delete")
	defer span.End()

	sb := database.NewDeleteBuilder()
	sb.DeleteFrom("targets")
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("id", id))

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to delete target", zap.String("target_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete target: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("target", id, caseID)
	}
	return nil
}
