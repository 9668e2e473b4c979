package identifier

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
	"id", "case_id", "type", "value_raw", "value_normalized", "notes", "created_at",
	"source_type", "source_evidence_item_id", "source_locator", "ingest_module_version",
}

// Repository handles identifier persistence
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new identifier repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an identifier. A unique violation on (case, type, value) is
// returned wrapped so callers can detect it with database.IsUniqueViolation.
func (r *Repository) Create(ctx context.Context, ident *models.Identifier) (*models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.Create")
	defer span.End()

	if ident.ID == "" {
		ident.ID = uuid.New().String()
	}
	ident.CreatedAt = database.Now()

	sb := database.NewInsertBuilder()
	sb.InsertInto("identifiers")
	sb.Cols(columns...)
	sb.Values(ident.ID, ident.CaseID, ident.Type, ident.ValueRaw, ident.ValueNormalized, ident.Notes, ident.CreatedAt,
		ident.SourceType, ident.SourceEvidenceItemID, ident.SourceLocator, ident.IngestModuleVersion)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to create identifier",
			zap.String("type", string(ident.Type)), zap.String("value", ident.ValueNormalized), zap.Error(err))
		return nil, fmt.Errorf("failed to create identifier: %w", err)
	}

	return ident, nil
}

func (r *Repository) Get(ctx context.Context, caseID, id string) (*models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("identifiers")
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("id", id))

	query, args := sb.Build()
	var ident models.Identifier
	if err := database.Conn(ctx, r.db).GetContext(ctx, &ident, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("identifier", id, caseID)
		}
		logging.WithContext(ctx, r.logger).Error("Failed to get identifier", zap.String("identifier_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get identifier: %w", err)
	}

	return &ident, nil
}

// FindByValue looks up the single row for (case, type, normalized value).
// Returns nil when there is none.
func (r *Repository) FindByValue(ctx context.Context, caseID string, idType models.IdentifierType, normalized string) (*models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.FindByValue")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("identifiers")
	sb.Where(
		sb.Equal("case_id", caseID),
		sb.Equal("type", idType),
		sb.Equal("value_normalized", normalized),
	)

	query, args := sb.Build()
	var ident models.Identifier
	if err := database.Conn(ctx, r.db).GetContext(ctx, &ident, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		logging.WithContext(ctx, r.logger).Error("Failed to find identifier", zap.String("type", string(idType)), zap.Error(err))
		return nil, fmt.Errorf("failed to find identifier: %w", err)
	}

	return &ident, nil
}

// UpdateValue rewrites type and value in place.
func (r *Repository) UpdateValue(ctx context.Context, caseID, id string, idType models.IdentifierType, raw, normalized string) error {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.UpdateValue")
	defer span.End()

	sb := database.NewUpdateBuilder()
	sb.Update("identifiers")
	sb.Set(
		sb.Assign("type", idType),
		sb.Assign("value_raw", raw),
		sb.Assign("value_normalized", normalized),
	)
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("id", id))

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to update identifier", zap.String("identifier_id", id), zap.Error(err))
		return fmt.Errorf("failed to update identifier: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("identifier", id, caseID)
	}
	return nil
}

// ListByCase returns a case's identifiers, optionally restricted to ids.
func (r *Repository) ListByCase(ctx context.Context, caseID string, ids ...string) ([]models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.ListByCase")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("identifiers")
	sb.Where(sb.Equal("case_id", caseID))
	if len(ids) > 0 {
		sb.Where(sb.In("id", sqlbuilder.Flatten(ids)...))
	}
	sb.OrderBy("type", "value_normalized")

	query, args := sb.Build()
	idents := []models.Identifier{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &idents, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list identifiers", zap.Error(err))
		return nil, fmt.Errorf("failed to list identifiers: %w", err)
	}

	return idents, nil
}
