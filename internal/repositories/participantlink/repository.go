package participantlink

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
	"id", "case_id", "message_event_id", "role", "participant_raw", "identifier_id", "target_id", "created_at",
	"source_type", "source_evidence_item_id", "source_locator", "ingest_module_version",
}

// Repository handles message participant links
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new participant link repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert records a participant link. Linking the same identifier in the same
// role on the same message again updates the raw text, target and provenance and
// keeps the original id.
func (r *Repository) Upsert(ctx context.Context, link *models.MessageParticipantLink) (*models.MessageParticipantLink, error) {
	ctx, span := tracing.StartSpan(ctx, "participantlink.Repository.Upsert")
	defer span.End()

	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	link.CreatedAt = database.Now()

	sb := database.NewInsertBuilder()
	sb.InsertInto("message_participant_links")
	sb.Cols(columns...)
	sb.Values(link.ID, link.CaseID, link.MessageEventID, link.Role, link.ParticipantRaw, link.IdentifierID, link.TargetID, link.CreatedAt,
		link.SourceType, link.SourceEvidenceItemID, link.SourceLocator, link.IngestModuleVersion)

	query, args := sb.Build()
	query += database.OnConflictDoUpdate(
		[]string{"message_event_id", "role", "identifier_id"},
		"participant_raw", "target_id", "source_type", "source_evidence_item_id", "source_locator", "ingest_module_version",
	)

	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to upsert participant link",
			zap.String("message_event_id", link.MessageEventID), zap.String("identifier_id", link.IdentifierID), zap.Error(err))
		return nil, fmt.Errorf("failed to upsert participant link: %w", err)
	}

	return r.get(ctx, link.MessageEventID, link.Role, link.IdentifierID)
}

func (r *Repository) get(ctx context.Context, messageEventID string, role models.ParticipantRole, identifierID string) (*models.MessageParticipantLink, error) {
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("message_participant_links")
	sb.Where(
		sb.Equal("message_event_id", messageEventID),
		sb.Equal("role", role),
		sb.Equal("identifier_id", identifierID),
	)

	query, args := sb.Build()
	var link models.MessageParticipantLink
	if err := database.Conn(ctx, r.db).GetContext(ctx, &link, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get participant link: %w", err)
	}
	return &link, nil
}

func (r *Repository) ListByMessage(ctx context.Context, caseID, messageEventID string) ([]models.MessageParticipantLink, error) {
	ctx, span := tracing.StartSpan(ctx, "participantlink.Repository.ListByMessage")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("message_participant_links")
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("message_event_id", messageEventID))
	sb.OrderBy("role DESC", "created_at", "id")

	query, args := sb.Build()
	links := []models.MessageParticipantLink{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &links, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list participant links", zap.String("message_event_id", messageEventID), zap.Error(err))
		return nil, fmt.Errorf("failed to list participant links: %w", err)
	}
	return links, nil
}

func (r *Repository) ListByCase(ctx context.Context, caseID string) ([]models.MessageParticipantLink, error) {
	ctx, span := tracing.StartSpan(ctx, "participantlink.Repository.ListByCase")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("message_participant_links")
	sb.Where(sb.Equal("case_id", caseID))
	sb.OrderBy("message_event_id", "role DESC", "identifier_id")

	query, args := sb.Build()
	links := []models.MessageParticipantLink{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &links, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list participant links", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("failed to list participant links: %w", err)
	}
	return links, nil
}
