package targetidentifier

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

var columns = []string{
	"id", "case_id", "target_id", "identifier_id", "is_primary", "created_at", "updated_at",
	"source_type", "source_evidence_item_id", "source_locator", "ingest_module_version",
}

// Repository handles target ↔ identifier links. The store allows at most one
// link per identifier.
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new target identifier link repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Create(ctx context.Context, link *models.TargetIdentifierLink) (*models.TargetIdentifierLink, error) {
	ctx, span := tracing.StartSpan(ctx, "targetidentifier.Repository.Create")
	defer span.End()

	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	link.CreatedAt = database.Now()
	link.UpdatedAt = link.CreatedAt

	sb := database.NewInsertBuilder()
	sb.InsertInto("target_identifier_links")
	sb.Cols(columns...)
	sb.Values(link.ID, link.CaseID, link.TargetID, link.IdentifierID, link.IsPrimary, link.CreatedAt, link.UpdatedAt,
		link.SourceType, link.SourceEvidenceItemID, link.SourceLocator, link.IngestModuleVersion)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to create target identifier link",
			zap.String("target_id", link.TargetID), zap.String("identifier_id", link.IdentifierID), zap.Error(err))
		return nil, fmt.Errorf("failed to create target identifier link: %w", err)
	}

	return link, nil
}

// GetByIdentifier returns the identifier's current link, or nil when unlinked.
func (r *Repository) GetByIdentifier(ctx context.Context, caseID, identifierID string) (*models.TargetIdentifierLink, error) {
	ctx, span := tracing.StartSpan(ctx, "targetidentifier.Repository.GetByIdentifier")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("target_identifier_links")
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("identifier_id", identifierID))

	query, args := sb.Build()
	var link models.TargetIdentifierLink
	if err := database.Conn(ctx, r.db).GetContext(ctx, &link, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		logging.WithContext(ctx, r.logger).Error("Failed to get target identifier link", zap.String("identifier_id", identifierID), zap.Error(err))
		return nil, fmt.Errorf("failed to get target identifier link: %w", err)
	}

	return &link, nil
}

// MoveToTarget re-points a link at another target and stamps the new provenance.
func (r *Repository) MoveToTarget(ctx context.Context, caseID, linkID, targetID string, isPrimary bool, provenance models.Provenance) error {
	ctx, span := tracing.StartSpan(ctx, "targetidentifier.Repository.MoveToTarget")
	defer span.End()

	sb := database.NewUpdateBuilder()
	sb.Update("target_identifier_links")
	sb.Set(
		sb.Assign("target_id", targetID),
		sb.Assign("is_primary", isPrimary),
		sb.Assign("source_type", provenance.SourceType),
		sb.Assign("source_evidence_item_id", provenance.SourceEvidenceItemID),
		sb.Assign("source_locator", provenance.SourceLocator),
		sb.Assign("ingest_module_version", provenance.IngestModuleVersion),
		sb.Assign("updated_at", database.Now()),
	)
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("id", linkID))

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to move target identifier link", zap.String("link_id", linkID), zap.Error(err))
		return fmt.Errorf("failed to move target identifier link: %w", err)
	}
	return nil
}

// SetPrimary marks a link primary or not.
func (r *Repository) SetPrimary(ctx context.Context, caseID, linkID string, isPrimary bool) error {
	ctx, span := tracing.StartSpan(ctx, "targetidentifier.Repository.SetPrimary")
	defer span.End()

	sb := database.NewUpdateBuilder()
	sb.Update("target_identifier_links")
	sb.Set(sb.Assign("is_primary", isPrimary), sb.Assign("updated_at", database.Now()))
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("id", linkID))

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to set primary flag", zap.String("link_id", linkID), zap.Error(err))
		return fmt.Errorf("failed to set primary flag: %w", err)
	}
	return nil
}

// RelinkIdentifier points an existing link at a different identifier, keeping
// the link id, target and primary flag.
func (r *Repository) RelinkIdentifier(ctx context.Context, caseID, linkID, newIdentifierID string) error {
	ctx, span := tracing.StartSpan(ctx, "targetidentifier.Repository.RelinkIdentifier")
	defer span.End()

	sb := database.NewUpdateBuilder()
	sb.Update("target_identifier_links")
	sb.Set(sb.Assign("identifier_id", newIdentifierID), sb.Assign("updated_at", database.Now()))
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("id", linkID))

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to relink identifier", zap.String("link_id", linkID), zap.Error(err))
		return fmt.Errorf("failed to relink identifier: %w", err)
	}
	return nil
}

// DeleteByIdentifier detaches an identifier from its target. Returns the number
// of links removed (0 or 1).
func (r *Repository) DeleteByIdentifier(ctx context.Context, caseID, identifierID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "targetidentifier.Repository.DeleteByIdentifier")
	defer span.End()

	sb := database.NewDeleteBuilder()
	sb.DeleteFrom("target_identifier_links")
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("identifier_id", identifierID))

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to delete target identifier link", zap.String("identifier_id", identifierID), zap.Error(err))
		return 0, fmt.Errorf("failed to delete target identifier link: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// ListIdentifiersForTarget returns the target's identifiers with link metadata.
func (r *Repository) ListIdentifiersForTarget(ctx context.Context, caseID, targetID string) ([]models.LinkedIdentifier, error) {
	ctx, span := tracing.StartSpan(ctx, "targetidentifier.Repository.ListIdentifiersForTarget")
	defer span.End()

	query := `
		SELECT
			i.id, i.case_id, i.type, i.value_raw, i.value_normalized, i.notes, i.created_at,
			i.source_type, i.source_evidence_item_id, i.source_locator, i.ingest_module_version,
			l.id AS link_id, l.is_primary
		FROM target_identifier_links l
		JOIN identifiers i ON i.id = l.identifier_id
		WHERE l.case_id = ? AND l.target_id = ?
		ORDER BY l.is_primary DESC, i.type, i.value_normalized
	`

	idents := []models.LinkedIdentifier{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &idents, query, caseID, targetID); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list target identifiers", zap.String("target_id", targetID), zap.Error(err))
		return nil, fmt.Errorf("failed to list target identifiers: %w", err)
	}

	return idents, nil
}

// ListByCase returns every link in a case.
func (r *Repository) ListByCase(ctx context.Context, caseID string) ([]models.TargetIdentifierLink, error) {
	ctx, span := tracing.StartSpan(ctx, "targetidentifier.Repository.ListByCase")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("target_identifier_links")
	sb.Where(sb.Equal("case_id", caseID))
	sb.OrderBy("target_id", "identifier_id")

	query, args := sb.Build()
	links := []models.TargetIdentifierLink{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &links, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list target identifier links", zap.Error(err))
		return nil, fmt.Errorf("failed to list target identifier links: %w", err)
	}

	return links, nil
}
