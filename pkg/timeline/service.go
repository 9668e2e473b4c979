// Package timeline serves the chronological message view of a case.
package timeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Ramsey-B/thistle/internal/repositories/cases"
	"github.com/Ramsey-B/thistle/internal/repositories/messageevent"
	"github.com/Ramsey-B/thistle/internal/repositories/presence"
	"github.com/Ramsey-B/thistle/pkg/apperrors"
	appctx "github.com/Ramsey-B/thistle/pkg/context"
	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/Ramsey-B/thistle/pkg/workspace"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTake = 50
	MaxTake     = 500
)

// Direction filters messages by their recorded direction.
type Direction string

const (
	DirectionAny      Direction = "Any"
	DirectionIncoming Direction = "Incoming"
	DirectionOutgoing Direction = "Outgoing"
	// DirectionUnknown matches a missing, blank or "unknown" direction.
	DirectionUnknown Direction = "Unknown"
)

// ParseDirection accepts the filter name in any case; empty means Any.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return DirectionAny, nil
	case "incoming":
		return DirectionIncoming, nil
	case "outgoing":
		return DirectionOutgoing, nil
	case "unknown":
		return DirectionUnknown, nil
	default:
		return "", apperrors.Validation("direction", "unknown direction %q", s)
	}
}

func (d Direction) storedValue() string {
	switch d {
	case DirectionIncoming:
		return models.DirectionIncoming
	case DirectionOutgoing:
		return models.DirectionOutgoing
	case DirectionUnknown:
		return models.DirectionUnknown
	default:
		return ""
	}
}

// Query selects a page of a case's messages. FromUTC and ToUTC are inclusive.
type Query struct {
	CaseID         string     `json:"case_id"`
	QueryText      string     `json:"query_text,omitempty"`
	TargetID       string     `json:"target_id,omitempty"`
	GlobalEntityID string     `json:"global_entity_id,omitempty"`
	Direction      Direction  `json:"direction"`
	FromUTC        *time.Time `json:"from_utc,omitempty"`
	ToUTC          *time.Time `json:"to_utc,omitempty"`
	Take           int        `json:"take"`
	Skip           int        `json:"skip"`
}

// Row is a message with its participants' display names.
type Row struct {
	models.MessageEvent
	SenderDisplay      string   `json:"sender_display"`
	RecipientsDisplay  string   `json:"recipients_display"`
	SenderTargetIDs    []string `json:"sender_target_ids,omitempty"`
	RecipientTargetIDs []string `json:"recipient_target_ids,omitempty"`
}

type Result struct {
	Rows          []Row  `json:"rows"`
	TotalCount    int    `json:"total_count"`
	UsedFallback  bool   `json:"used_fallback"`
	CorrelationID string `json:"correlation_id"`
}

type Service struct {
	ws           *workspace.Workspace
	logger       *zap.Logger
	messageRepo  *messageevent.Repository
	presenceRepo *presence.Repository
	caseRepo     *cases.Repository
}

func NewService(ws *workspace.Workspace) *Service {
	return &Service{
		ws:           ws,
		logger:       ws.Logger(),
		messageRepo:  messageevent.NewRepository(ws.DB(), ws.Logger()),
		presenceRepo: presence.NewRepository(ws.DB(), ws.Logger()),
		caseRepo:     cases.NewRepository(ws.DB(), ws.Logger()),
	}
}

// Search runs the query with full-text matching, retrying with a substring match
// when the search engine rejects the expression. Every call is audited; a failed
// audit fails the search.
func (s *Service) Search(ctx context.Context, q Query) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "timeline.Service.Search")
	defer span.End()

	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}
	if _, err := s.caseRepo.Get(ctx, q.CaseID); err != nil {
		return nil, err
	}

	correlationID := appctx.GetRequestID(ctx)
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	log := logging.WithContext(ctx, s.logger).With(zap.String("correlation_id", correlationID))

	filter := messageevent.SearchFilter{
		CaseID:         q.CaseID,
		QueryText:      q.QueryText,
		TargetID:       q.TargetID,
		GlobalEntityID: q.GlobalEntityID,
		Direction:      q.Direction.storedValue(),
	}
	if q.FromUTC != nil {
		ms := q.FromUTC.UnixMilli()
		filter.FromMs = &ms
	}
	if q.ToUTC != nil {
		ms := q.ToUTC.UnixMilli()
		filter.ToMs = &ms
	}

	started := time.Now()
	result := &Result{CorrelationID: correlationID}
	events, total, err := s.run(ctx, filter, messageevent.MatchFullText, q.Take, q.Skip)
	if err != nil && q.QueryText != "" && database.IsFTSQueryError(err, q.QueryText) {
		log.Debug("Full-text query rejected, retrying as substring match", zap.Error(err))
		result.UsedFallback = true
		events, total, err = s.run(ctx, filter, messageevent.MatchSubstring, q.Take, q.Skip)
	}
	if err != nil {
		tracing.RecordError(span, err)
		log.Error("Timeline search failed", zap.Error(err))
		return nil, err
	}

	rows, err := s.resolveRows(ctx, q.CaseID, events)
	if err != nil {
		return nil, err
	}
	result.Rows = rows
	result.TotalCount = total
	metrics.RecordTimelineSearch(result.UsedFallback, time.Since(started).Seconds())

	payload := map[string]any{
		"correlation_id": correlationID,
		"filters":        q,
		"result_count":   len(rows),
		"total_count":    total,
		"used_fallback":  result.UsedFallback,
	}
	if err := s.ws.Audit(ctx, models.ActionTimelineSearched, q.CaseID,
		fmt.Sprintf("Timeline search returned %d of %d messages", len(rows), total), payload); err != nil {
		return nil, err
	}

	return result, nil
}

func normalizeQuery(q Query) (Query, error) {
	q.CaseID = strings.TrimSpace(q.CaseID)
	q.QueryText = strings.TrimSpace(q.QueryText)
	if q.CaseID == "" {
		return q, apperrors.Validation("case_id", "case id is required")
	}

	direction, err := ParseDirection(string(q.Direction))
	if err != nil {
		return q, err
	}
	q.Direction = direction

	if q.FromUTC != nil && q.ToUTC != nil && q.FromUTC.After(*q.ToUTC) {
		return q, apperrors.Validation("from_utc", "from must not be after to")
	}

	switch {
	case q.Take <= 0:
		q.Take = DefaultTake
	case q.Take > MaxTake:
		q.Take = MaxTake
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	return q, nil
}

// run counts and pages concurrently.
func (s *Service) run(ctx context.Context, filter messageevent.SearchFilter, mode messageevent.MatchMode, take, skip int) ([]models.MessageEvent, int, error) {
	var (
		events []models.MessageEvent
		total  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.messageRepo.Count(gctx, filter, mode)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = s.messageRepo.Search(gctx, filter, mode, take, skip)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// resolveRows attaches display names from the presence index, preferring the
// global person's name, and falls back to the raw participant strings.
func (s *Service) resolveRows(ctx context.Context, caseID string, events []models.MessageEvent) ([]Row, error) {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}

	participants, err := s.presenceRepo.ListResolvedParticipants(ctx, caseID, ids)
	if err != nil {
		return nil, err
	}

	type resolved struct {
		names     []string
		targetIDs []string
		seen      map[string]bool
	}
	byKey := map[string]*resolved{}
	for _, p := range participants {
		key := p.MessageEventID + "|" + string(p.Role)
		r, ok := byKey[key]
		if !ok {
			r = &resolved{seen: map[string]bool{}}
			byKey[key] = r
		}
		if r.seen[p.TargetID] {
			continue
		}
		r.seen[p.TargetID] = true
		r.targetIDs = append(r.targetIDs, p.TargetID)
		if name := p.DisplayName(); !contains(r.names, name) {
			r.names = append(r.names, name)
		}
	}

	rows := make([]Row, 0, len(events))
	for _, e := range events {
		row := Row{MessageEvent: e, SenderDisplay: e.SenderRaw, RecipientsDisplay: e.RecipientsRaw}
		if r, ok := byKey[e.ID+"|"+string(models.ParticipantRoleSender)]; ok {
			row.SenderDisplay = strings.Join(r.names, ", ")
			row.SenderTargetIDs = r.targetIDs
		}
		if r, ok := byKey[e.ID+"|"+string(models.ParticipantRoleRecipient)]; ok {
			row.RecipientsDisplay = strings.Join(r.names, ", ")
			row.RecipientTargetIDs = r.targetIDs
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
