package auditlog

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"go.uber.org/zap"
)

var columns = []string{"id", "timestamp_ms", "operator", "action_type", "case_id", "evidence_item_id", "summary", "json_payload"}

// Repository persists audit entries
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new audit log repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create writes an entry, joining the caller's transaction when there is one.
func (r *Repository) Create(ctx context.Context, entry models.AuditEntry) error {
	ctx, span := tracing.StartSpan(ctx, "auditlog.Repository.Create")
	defer span.End()

	sb := database.NewInsertBuilder()
	sb.InsertInto("audit_log")
	sb.Cols(columns...)
	sb.Values(entry.ID, entry.Timestamp, entry.Operator, entry.ActionType, entry.CaseID, entry.EvidenceItemID, entry.Summary, entry.JSONPayload)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// ListByCase returns a case's entries, newest first. actionType filters when set.
func (r *Repository) ListByCase(ctx context.Context, caseID, actionType string, limit int) ([]models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "auditlog.Repository.ListByCase")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("audit_log")
	sb.Where(sb.Equal("case_id", caseID))
	if actionType != "" {
		sb.Where(sb.Equal("action_type", actionType))
	}
	sb.OrderBy("timestamp_ms DESC", "rowid DESC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	entries := []models.AuditEntry{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.Error("Failed to list audit entries", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
