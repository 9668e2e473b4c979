package evidenceitem

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var columns = []string{"id", "case_id", "display_name", "source_path", "created_at"}

// Repository handles evidence item persistence
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new evidence item repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Create(ctx context.Context, item *models.EvidenceItem) (*models.EvidenceItem, error) {
	ctx, span := tracing.StartSpan(ctx, "evidenceitem.Repository.Create")
	defer span.End()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.CreatedAt = database.Now()

	sb := database.NewInsertBuilder()
	sb.InsertInto("evidence_items")
	sb.Cols(columns...)
	sb.Values(item.ID, item.CaseID, item.DisplayName, item.SourcePath, item.CreatedAt)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to create evidence item", zap.Error(err))
		return nil, fmt.Errorf("failed to create evidence item: %w", err)
	}

	return item, nil
}

func (r *Repository) Get(ctx context.Context, caseID, id string) (*models.EvidenceItem, error) {
	ctx, span := tracing.StartSpan(ctx, "evidenceitem.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("evidence_items")
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("id", id))

	query, args := sb.Build()
	var item models.EvidenceItem
	if err := database.Conn(ctx, r.db).GetContext(ctx, &item, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("evidence item", id, caseID)
		}
		logging.WithContext(ctx, r.logger).Error("Failed to get evidence item", zap.String("evidence_item_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get evidence item: %w", err)
	}

	return &item, nil
}

func (r *Repository) ListByCase(ctx context.Context, caseID string) ([]models.EvidenceItem, error) {
	ctx, span := tracing.StartSpan(ctx, "evidenceitem.Repository.ListByCase")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("evidence_items")
	sb.Where(sb.Equal("case_id", caseID))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	items := []models.EvidenceItem{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &items, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list evidence items", zap.Error(err))
		return nil, fmt.Errorf("failed to list evidence items: %w", err)
	}

	return items, nil
}

// ListIDsByCase returns evidence item ids in creation order. The presence
// rebuild walks these in batches.
func (r *Repository) ListIDsByCase(ctx context.Context, caseID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "evidenceitem.Repository.ListIDsByCase")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id")
	sb.From("evidence_items")
	sb.Where(sb.Equal("case_id", caseID))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	ids := []string{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &ids, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list evidence item ids", zap.Error(err))
		return nil, fmt.Errorf("failed to list evidence item ids: %w", err)
	}

	return ids, nil
}
