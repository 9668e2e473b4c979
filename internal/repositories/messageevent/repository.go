package messageevent

import (
	"context"
	"fmt"
	"strings"

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
	"id", "case_id", "evidence_item_id", "thread_id", "timestamp_ms", "direction",
	"sender_raw", "recipients_raw", "body", "source_locator", "ingest_module_version", "created_at",
}

// qualified returns columns prefixed with the m alias, keeping the bare name as the result column.
func qualified() []string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = fmt.Sprintf("m.%s AS %s", c, c)
	}
	return cols
}

// Repository handles message event persistence and timeline queries
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new message event repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Create(ctx context.Context, event *models.MessageEvent) (*models.MessageEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "messageevent.Repository.Create")
	defer span.End()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.CreatedAt = database.Now()

	sb := database.NewInsertBuilder()
	sb.InsertInto("message_events")
	sb.Cols(columns...)
	sb.Values(event.ID, event.CaseID, event.EvidenceItemID, event.ThreadID, event.Timestamp, event.Direction,
		event.SenderRaw, event.RecipientsRaw, event.Body, event.SourceLocator, event.IngestModuleVersion, event.CreatedAt)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to create message event", zap.Error(err))
		return nil, fmt.Errorf("failed to create message event: %w", err)
	}

	return event, nil
}

func (r *Repository) Get(ctx context.Context, caseID, id string) (*models.MessageEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "messageevent.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("message_events")
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("id", id))

	query, args := sb.Build()
	var event models.MessageEvent
	if err := database.Conn(ctx, r.db).GetContext(ctx, &event, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("message event", id, caseID)
		}
		logging.WithContext(ctx, r.logger).Error("Failed to get message event", zap.String("message_event_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get message event: %w", err)
	}

	return &event, nil
}

// DeleteByEvidence removes every message of an evidence item. Participant links
// and presence rows go with them through foreign key cascades.
func (r *Repository) DeleteByEvidence(ctx context.Context, caseID, evidenceItemID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "messageevent.Repository.DeleteByEvidence")
	defer span.End()

	sb := database.NewDeleteBuilder()
	sb.DeleteFrom("message_events")
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("evidence_item_id", evidenceItemID))

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to delete message events", zap.String("evidence_item_id", evidenceItemID), zap.Error(err))
		return 0, fmt.Errorf("failed to delete message events: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// MatchMode selects how SearchFilter.QueryText is applied.
type MatchMode int

const (
	MatchFullText MatchMode = iota
	MatchSubstring
)

// SearchFilter narrows a case's messages. Zero values mean "no filter".
type SearchFilter struct {
	CaseID         string
	QueryText      string
	TargetID       string
	GlobalEntityID string
	// Direction is one of the models.Direction* values, or empty for any.
	Direction string
	FromMs    *int64
	ToMs      *int64
}

func (r *Repository) buildWhere(sb *sqlbuilder.SelectBuilder, f SearchFilter, mode MatchMode) {
	sb.Where(sb.Equal("m.case_id", f.CaseID))

	if text := strings.TrimSpace(f.QueryText); text != "" {
		switch mode {
		case MatchFullText:
			sb.Where(fmt.Sprintf("m.seq IN (SELECT rowid FROM message_events_fts WHERE message_events_fts MATCH %s)", sb.Var(text)))
		case MatchSubstring:
			pattern := database.LikePattern(text)
			sb.Where(fmt.Sprintf(
				`(lower(m.body) LIKE %s ESCAPE '\' OR lower(m.sender_raw) LIKE %s ESCAPE '\' OR lower(m.recipients_raw) LIKE %s ESCAPE '\')`,
				sb.Var(pattern), sb.Var(pattern), sb.Var(pattern)))
		}
	}

	if f.FromMs != nil {
		sb.Where(sb.GreaterEqualThan("m.timestamp_ms", *f.FromMs))
	}
	if f.ToMs != nil {
		sb.Where(sb.LessEqualThan("m.timestamp_ms", *f.ToMs))
	}

	switch f.Direction {
	case models.DirectionIncoming, models.DirectionOutgoing:
		sb.Where(sb.Equal("lower(trim(m.direction))", f.Direction))
	case models.DirectionUnknown:
		sb.Where("(m.direction IS NULL OR trim(m.direction) = '' OR lower(trim(m.direction)) = 'unknown')")
	}

	if f.TargetID != "" {
		sb.Where(fmt.Sprintf(
			"EXISTS (SELECT 1 FROM target_message_presence p WHERE p.message_event_id = m.id AND p.case_id = m.case_id AND p.target_id = %s)",
			sb.Var(f.TargetID)))
	}
	if f.GlobalEntityID != "" {
		sb.Where(fmt.Sprintf(
			"EXISTS (SELECT 1 FROM target_message_presence p JOIN targets t ON t.id = p.target_id WHERE p.message_event_id = m.id AND p.case_id = m.case_id AND t.global_entity_id = %s)",
			sb.Var(f.GlobalEntityID)))
	}
}

// Count returns how many messages match the filter.
func (r *Repository) Count(ctx context.Context, f SearchFilter, mode MatchMode) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "messageevent.Repository.Count")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("message_events AS m")
	r.buildWhere(sb, f, mode)

	query, args := sb.Build()
	var count int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count message events: %w", err)
	}
	return count, nil
}

// Search returns one page of matching messages ordered by timestamp with
// untimestamped messages last.
func (r *Repository) Search(ctx context.Context, f SearchFilter, mode MatchMode, take, skip int) ([]models.MessageEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "messageevent.Repository.Search")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(qualified()...)
	sb.From("message_events AS m")
	r.buildWhere(sb, f, mode)
	sb.OrderBy("m.timestamp_ms IS NULL", "m.timestamp_ms", "m.seq")
	sb.Limit(take)
	sb.Offset(skip)

	query, args := sb.Build()
	events := []models.MessageEvent{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search message events: %w", err)
	}
	return events, nil
}
