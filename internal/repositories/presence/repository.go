package presence

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/huandu/go-sqlbuilder"
	"go.uber.org/zap"
)

var columns = []string{
	"id", "case_id", "target_id", "message_event_id", "matched_identifier_id", "role",
	"evidence_item_id", "source_locator", "message_timestamp_ms", "first_seen_at", "last_seen_at",
}

// uuidV4 renders a random version 4 UUID in SQLite so presence rows can be
// derived with a single INSERT ... SELECT.
const uuidV4 = `lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-4' ||
	substr(lower(hex(randomblob(2))), 2) || '-' || substr('89ab', 1 + (abs(random()) % 4), 1) ||
	substr(lower(hex(randomblob(2))), 2) || '-' || lower(hex(randomblob(6)))`

// Scope narrows a derivation to part of a case. Empty fields do not filter.
type Scope struct {
	CaseID          string
	EvidenceItemIDs []string
	IdentifierID    string
}

// Repository owns target_message_presence. Nothing else writes that table.
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new presence repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// scopeClause renders the scope filter for alias-qualified columns.
func scopeClause(scope Scope, caseCol, evidenceCol, identifierCol string) (string, []any) {
	clauses := []string{caseCol + " = ?"}
	args := []any{scope.CaseID}
	if len(scope.EvidenceItemIDs) > 0 {
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", evidenceCol, placeholders(len(scope.EvidenceItemIDs))))
		for _, id := range scope.EvidenceItemIDs {
			args = append(args, id)
		}
	}
	if scope.IdentifierID != "" {
		clauses = append(clauses, identifierCol+" = ?")
		args = append(args, scope.IdentifierID)
	}
	return strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Derive upserts the desired presence rows for the scope: every participant link
// whose identifier is currently linked to a target. first_seen_at is kept for
// rows that already exist.
func (r *Repository) Derive(ctx context.Context, scope Scope) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "presence.Repository.Derive")
	defer span.End()

	where, args := scopeClause(scope, "l.case_id", "m.evidence_item_id", "l.identifier_id")
	now := database.Now()

	query := `
		INSERT INTO target_message_presence (` + strings.Join(columns, ", ") + `)
		SELECT ` + uuidV4 + `, l.case_id, til.target_id, l.message_event_id, l.identifier_id, l.role,
			m.evidence_item_id, m.source_locator, m.timestamp_ms, ?, ?
		FROM message_participant_links l
		JOIN target_identifier_links til ON til.identifier_id = l.identifier_id AND til.case_id = l.case_id
		JOIN message_events m ON m.id = l.message_event_id
		WHERE ` + where + `
		ON CONFLICT (case_id, target_id, message_event_id, matched_identifier_id, role) DO UPDATE SET
			evidence_item_id = excluded.evidence_item_id,
			source_locator = excluded.source_locator,
			message_timestamp_ms = excluded.message_timestamp_ms,
			last_seen_at = excluded.last_seen_at`

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, append([]any{now, now}, args...)...)
	if err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to derive presence rows", zap.String("case_id", scope.CaseID), zap.Error(err))
		return 0, fmt.Errorf("failed to derive presence rows: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// staleCondition matches presence rows p whose participant/link pair no longer exists.
const staleCondition = `NOT EXISTS (
	SELECT 1 FROM message_participant_links l
	JOIN target_identifier_links til ON til.identifier_id = l.identifier_id AND til.case_id = l.case_id
	WHERE l.message_event_id = p.message_event_id
		AND l.role = p.role
		AND l.identifier_id = p.matched_identifier_id
		AND til.target_id = p.target_id)`

// DeleteStale removes rows in the scope that are no longer backed by a current
// participant link and target link.
func (r *Repository) DeleteStale(ctx context.Context, scope Scope) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "presence.Repository.DeleteStale")
	defer span.End()

	where, args := scopeClause(scope, "p.case_id", "p.evidence_item_id", "p.matched_identifier_id")
	query := `DELETE FROM target_message_presence WHERE id IN (
		SELECT p.id FROM target_message_presence p WHERE ` + where + ` AND ` + staleCondition + `)`

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to delete stale presence rows", zap.String("case_id", scope.CaseID), zap.Error(err))
		return 0, fmt.Errorf("failed to delete stale presence rows: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// SyncParticipantTargets sets message_participant_links.target_id to the
// identifier's current target (or NULL) for the scope.
func (r *Repository) SyncParticipantTargets(ctx context.Context, scope Scope) error {
	ctx, span := tracing.StartSpan(ctx, "presence.Repository.SyncParticipantTargets")
	defer span.End()

	where, args := scopeClause(scope, "l.case_id", "m.evidence_item_id", "l.identifier_id")
	query := `
		UPDATE message_participant_links
		SET target_id = (
			SELECT til.target_id FROM target_identifier_links til
			WHERE til.identifier_id = message_participant_links.identifier_id)
		WHERE id IN (
			SELECT l.id FROM message_participant_links l
			JOIN message_events m ON m.id = l.message_event_id
			WHERE ` + where + `)`

	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to sync participant targets", zap.String("case_id", scope.CaseID), zap.Error(err))
		return fmt.Errorf("failed to sync participant targets: %w", err)
	}
	return nil
}

// FindMismatches compares the presence table with what the current links imply.
func (r *Repository) FindMismatches(ctx context.Context, caseID string) ([]apperrors.IndexMismatch, error) {
	ctx, span := tracing.StartSpan(ctx, "presence.Repository.FindMismatches")
	defer span.End()

	query := `
		SELECT 'stale_row' AS kind, p.target_id, p.matched_identifier_id AS identifier_id, p.message_event_id, p.role, p.id AS presence_record_id
		FROM target_message_presence p
		WHERE p.case_id = ? AND ` + staleCondition + `
		UNION ALL
		SELECT 'missing_row' AS kind, til.target_id, l.identifier_id, l.message_event_id, l.role, '' AS presence_record_id
		FROM message_participant_links l
		JOIN target_identifier_links til ON til.identifier_id = l.identifier_id AND til.case_id = l.case_id
		WHERE l.case_id = ? AND NOT EXISTS (
			SELECT 1 FROM target_message_presence p
			WHERE p.case_id = l.case_id
				AND p.target_id = til.target_id
				AND p.message_event_id = l.message_event_id
				AND p.matched_identifier_id = l.identifier_id
				AND p.role = l.role)
		ORDER BY kind, message_event_id, identifier_id`

	var rows []struct {
		Kind             string `db:"kind"`
		TargetID         string `db:"target_id"`
		IdentifierID     string `db:"identifier_id"`
		MessageEventID   string `db:"message_event_id"`
		Role             string `db:"role"`
		PresenceRecordID string `db:"presence_record_id"`
	}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, caseID, caseID); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to verify presence index", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("failed to verify presence index: %w", err)
	}

	mismatches := make([]apperrors.IndexMismatch, 0, len(rows))
	for _, row := range rows {
		mismatches = append(mismatches, apperrors.IndexMismatch{
			Kind:             row.Kind,
			TargetID:         row.TargetID,
			IdentifierID:     row.IdentifierID,
			MessageEventID:   row.MessageEventID,
			Role:             row.Role,
			PresenceRecordID: row.PresenceRecordID,
		})
	}
	return mismatches, nil
}

func (r *Repository) ListForMessage(ctx context.Context, caseID, messageEventID string) ([]models.PresenceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "presence.Repository.ListForMessage")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("target_message_presence")
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("message_event_id", messageEventID))
	sb.OrderBy("role DESC", "target_id", "matched_identifier_id")

	query, args := sb.Build()
	records := []models.PresenceRecord{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &records, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list presence for message", zap.String("message_event_id", messageEventID), zap.Error(err))
		return nil, fmt.Errorf("failed to list presence for message: %w", err)
	}
	return records, nil
}

func (r *Repository) ListByCase(ctx context.Context, caseID string) ([]models.PresenceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "presence.Repository.ListByCase")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("target_message_presence")
	sb.Where(sb.Equal("case_id", caseID))
	sb.OrderBy("message_event_id", "role DESC", "target_id", "matched_identifier_id")

	query, args := sb.Build()
	records := []models.PresenceRecord{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &records, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list presence rows", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("failed to list presence rows: %w", err)
	}
	return records, nil
}

// ResolvedParticipant is a presence row with the names needed to display it.
type ResolvedParticipant struct {
	MessageEventID    string                 `db:"message_event_id"`
	Role              models.ParticipantRole `db:"role"`
	TargetID          string                 `db:"target_id"`
	TargetDisplayName string                 `db:"target_display_name"`
	GlobalEntityID    *string                `db:"global_entity_id"`
	GlobalDisplayName *string                `db:"global_display_name"`
}

// DisplayName prefers the global person's name over the target's.
func (p ResolvedParticipant) DisplayName() string {
	if p.GlobalDisplayName != nil && *p.GlobalDisplayName != "" {
		return *p.GlobalDisplayName
	}
	return p.TargetDisplayName
}

// ListResolvedParticipants returns resolved participants of the given messages.
func (r *Repository) ListResolvedParticipants(ctx context.Context, caseID string, messageEventIDs []string) ([]ResolvedParticipant, error) {
	ctx, span := tracing.StartSpan(ctx, "presence.Repository.ListResolvedParticipants")
	defer span.End()

	if len(messageEventIDs) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(
		"DISTINCT p.message_event_id AS message_event_id",
		"p.role AS role",
		"p.target_id AS target_id",
		"t.display_name AS target_display_name",
		"t.global_entity_id AS global_entity_id",
		"g.display_name AS global_display_name",
	)
	sb.From("target_message_presence AS p")
	sb.Join("targets AS t", "t.id = p.target_id")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "global_persons AS g", "g.id = t.global_entity_id")
	sb.Where(
		sb.Equal("p.case_id", caseID),
		sb.In("p.message_event_id", sqlbuilder.Flatten(messageEventIDs)...),
	)
	sb.OrderBy("p.message_event_id", "p.role DESC", "t.display_name", "p.target_id")

	query, args := sb.Build()
	var participants []ResolvedParticipant
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &participants, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list resolved participants", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("failed to list resolved participants: %w", err)
	}
	return participants, nil
}

// GraphParticipant is one participant of one message as the graph builder sees
// it: either a resolved target (from presence) or an identifier with no target.
type GraphParticipant struct {
	MessageEventID    string                 `db:"message_event_id"`
	ThreadID          *string                `db:"thread_id"`
	Timestamp         *database.Timestamp    `db:"timestamp_ms"`
	Role              models.ParticipantRole `db:"role"`
	IdentifierID      string                 `db:"identifier_id"`
	IdentifierType    models.IdentifierType  `db:"identifier_type"`
	IdentifierValue   string                 `db:"identifier_value"`
	TargetID          *string                `db:"target_id"`
	TargetDisplayName *string                `db:"target_display_name"`
	GlobalEntityID    *string                `db:"global_entity_id"`
	GlobalDisplayName *string                `db:"global_display_name"`
}

// ListGraphParticipants returns every participant of every message in the case,
// ordered by message.
func (r *Repository) ListGraphParticipants(ctx context.Context, caseID string) ([]GraphParticipant, error) {
	ctx, span := tracing.StartSpan(ctx, "presence.Repository.ListGraphParticipants")
	defer span.End()

	query := `
		SELECT p.message_event_id, m.thread_id, m.timestamp_ms, p.role,
			i.id AS identifier_id, i.type AS identifier_type, i.value_normalized AS identifier_value,
			t.id AS target_id, t.display_name AS target_display_name,
			t.global_entity_id, g.display_name AS global_display_name
		FROM target_message_presence p
		JOIN message_events m ON m.id = p.message_event_id
		JOIN identifiers i ON i.id = p.matched_identifier_id
		JOIN targets t ON t.id = p.target_id
		LEFT JOIN global_persons g ON g.id = t.global_entity_id
		WHERE p.case_id = ?
		UNION ALL
		SELECT l.message_event_id, m.thread_id, m.timestamp_ms, l.role,
			i.id AS identifier_id, i.type AS identifier_type, i.value_normalized AS identifier_value,
			NULL AS target_id, NULL AS target_display_name,
			NULL AS global_entity_id, NULL AS global_display_name
		FROM message_participant_links l
		JOIN message_events m ON m.id = l.message_event_id
		JOIN identifiers i ON i.id = l.identifier_id
		WHERE l.case_id = ?
			AND NOT EXISTS (SELECT 1 FROM target_identifier_links til WHERE til.identifier_id = l.identifier_id)
		ORDER BY 1, 4, 5`

	var participants []GraphParticipant
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &participants, query, caseID, caseID); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list graph participants", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("failed to list graph participants: %w", err)
	}
	return participants, nil
}
