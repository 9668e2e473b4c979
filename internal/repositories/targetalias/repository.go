package targetalias

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var columns = []string{"id", "case_id", "target_id", "alias", "alias_normalized", "created_at"}

// Repository handles target alias persistence
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new target alias repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create adds an alias. Re-adding the same normalized alias to the same target
// returns the stored row; created is false in that case.
func (r *Repository) Create(ctx context.Context, alias *models.TargetAlias) (*models.TargetAlias, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "targetalias.Repository.Create")
	defer span.End()

	if alias.ID == "" {
		alias.ID = uuid.New().String()
	}
	alias.CreatedAt = database.Now()

	sb := database.NewInsertBuilder()
	sb.InsertInto("target_aliases")
	sb.Cols(columns...)
	sb.Values(alias.ID, alias.CaseID, alias.TargetID, alias.Alias, alias.AliasNormalized, alias.CreatedAt)

	query, args := sb.Build()
	query += database.OnConflictDoNothing()

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to create target alias", zap.String("target_id", alias.TargetID), zap.Error(err))
		return nil, false, fmt.Errorf("failed to create target alias: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		return alias, true, nil
	}

	existing, err := r.find(ctx, alias.CaseID, alias.TargetID, alias.AliasNormalized)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *Repository) find(ctx context.Context, caseID, targetID, aliasNormalized string) (*models.TargetAlias, error) {
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("target_aliases")
	sb.Where(
		sb.Equal("case_id", caseID),
		sb.Equal("target_id", targetID),
		sb.Equal("alias_normalized", aliasNormalized),
	)

	query, args := sb.Build()
	var alias models.TargetAlias
	if err := database.Conn(ctx, r.db).GetContext(ctx, &alias, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get target alias: %w", err)
	}
	return &alias, nil
}

// Delete removes an alias by its normalized form. Returns false when nothing matched.
func (r *Repository) Delete(ctx context.Context, caseID, targetID, aliasNormalized string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "targetalias.Repository.Delete")
	defer span.End()

	sb := database.NewDeleteBuilder()
	sb.DeleteFrom("target_aliases")
	sb.Where(
		sb.Equal("case_id", caseID),
		sb.Equal("target_id", targetID),
		sb.Equal("alias_normalized", aliasNormalized),
	)

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to delete target alias", zap.String("target_id", targetID), zap.Error(err))
		return false, fmt.Errorf("failed to delete target alias: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *Repository) ListByTarget(ctx context.Context, caseID, targetID string) ([]models.TargetAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "targetalias.Repository.ListByTarget")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("target_aliases")
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("target_id", targetID))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	aliases := []models.TargetAlias{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &aliases, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list target aliases", zap.Error(err))
		return nil, fmt.Errorf("failed to list target aliases: %w", err)
	}

	return aliases, nil
}
