// Package evidence is the ingest boundary: cases, evidence items and the message
// events parsed from them.
package evidence

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ramsey-B/thistle/internal/repositories/cases"
	"github.com/Ramsey-B/thistle/internal/repositories/evidenceitem"
	"github.com/Ramsey-B/thistle/internal/repositories/messageevent"
	"github.com/Ramsey-B/thistle/internal/repositories/participantlink"
	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/Ramsey-B/thistle/pkg/audit"
	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/presence"
	"github.com/Ramsey-B/thistle/pkg/registry"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/Ramsey-B/thistle/pkg/workspace"
	"go.uber.org/zap"
)

type Service struct {
	ws       *workspace.Workspace
	logger   *zap.Logger
	registry *registry.Service
	indexer  *presence.Indexer

	caseRepo        *cases.Repository
	evidenceRepo    *evidenceitem.Repository
	messageRepo     *messageevent.Repository
	participantRepo *participantlink.Repository
}

func NewService(ws *workspace.Workspace, reg *registry.Service, indexer *presence.Indexer) *Service {
	conn, logger := ws.DB(), ws.Logger()
	return &Service{
		ws:              ws,
		logger:          logger,
		registry:        reg,
		indexer:         indexer,
		caseRepo:        cases.NewRepository(conn, logger),
		evidenceRepo:    evidenceitem.NewRepository(conn, logger),
		messageRepo:     messageevent.NewRepository(conn, logger),
		participantRepo: participantlink.NewRepository(conn, logger),
	}
}

func (s *Service) CreateCase(ctx context.Context, req models.CreateCaseRequest) (*models.Case, error) {
	ctx, span := tracing.StartSpan(ctx, "evidence.Service.CreateCase")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.Validation("name", "case name is required")
	}

	var created *models.Case
	err := s.ws.Write(ctx, models.ActionCaseCreated, func(ctx context.Context) error {
		c, err := s.caseRepo.Create(ctx, &models.Case{ID: req.ID, Name: name})
		if err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.Validation("id", "case %s already exists", req.ID)
			}
			return err
		}
		created = c
		return s.ws.Audit(ctx, models.ActionCaseCreated, c.ID, fmt.Sprintf("Created case %q", c.Name), c)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) GetCase(ctx context.Context, id string) (*models.Case, error) {
	ctx, span := tracing.StartSpan(ctx, "evidence.Service.GetCase")
	defer span.End()
	return s.caseRepo.Get(ctx, id)
}

func (s *Service) ListCases(ctx context.Context) ([]models.Case, error) {
	ctx, span := tracing.StartSpan(ctx, "evidence.Service.ListCases")
	defer span.End()
	return s.caseRepo.List(ctx)
}

func (s *Service) CreateEvidenceItem(ctx context.Context, req models.CreateEvidenceItemRequest) (*models.EvidenceItem, error) {
	ctx, span := tracing.StartSpan(ctx, "evidence.Service.CreateEvidenceItem")
	defer span.End()

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, apperrors.Validation("display_name", "evidence item name is required")
	}

	var created *models.EvidenceItem
	err := s.ws.Write(ctx, models.ActionEvidenceItemCreated, func(ctx context.Context) error {
		if _, err := s.caseRepo.Get(ctx, req.CaseID); err != nil {
			return err
		}

		item, err := s.evidenceRepo.Create(ctx, &models.EvidenceItem{
			ID:          req.ID,
			CaseID:      req.CaseID,
			DisplayName: name,
			SourcePath:  strings.TrimSpace(req.SourcePath),
		})
		if err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.Validation("id", "evidence item %s already exists", req.ID)
			}
			return err
		}
		created = item

		entry, err := s.entry(ctx, models.ActionEvidenceItemCreated, item.CaseID, item.ID,
			fmt.Sprintf("Registered evidence item %q", item.DisplayName), item)
		if err != nil {
			return err
		}
		return s.ws.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) GetEvidenceItem(ctx context.Context, caseID, id string) (*models.EvidenceItem, error) {
	ctx, span := tracing.StartSpan(ctx, "evidence.Service.GetEvidenceItem")
	defer span.End()
	return s.evidenceRepo.Get(ctx, caseID, id)
}

func (s *Service) ListEvidenceItems(ctx context.Context, caseID string) ([]models.EvidenceItem, error) {
	ctx, span := tracing.StartSpan(ctx, "evidence.Service.ListEvidenceItems")
	defer span.End()

	if _, err := s.caseRepo.Get(ctx, caseID); err != nil {
		return nil, err
	}
	return s.evidenceRepo.ListByCase(ctx, caseID)
}

// RecordMessageEvent stores a parsed message and resolves its listed participants
// through the registry in the same write, so a participant conflict discards the
// message too.
func (s *Service) RecordMessageEvent(ctx context.Context, req models.RecordMessageEventRequest) (*models.RecordMessageEventResult, error) {
	ctx, span := tracing.StartSpan(ctx, "evidence.Service.RecordMessageEvent")
	defer span.End()

	if strings.TrimSpace(req.SourceLocator) == "" {
		return nil, apperrors.Validation("source_locator", "source locator is required")
	}
	for i, p := range req.Participants {
		if !p.Role.Valid() {
			return nil, apperrors.Validation("participants", "participant %d has unknown role %q", i, p.Role)
		}
		if strings.TrimSpace(p.Raw) == "" {
			return nil, apperrors.Validation("participants", "participant %d has an empty value", i)
		}
	}

	result := &models.RecordMessageEventResult{Participants: []models.MessageParticipantLinkResult{}}
	err := s.ws.Write(ctx, models.ActionMessageEventRecorded, func(ctx context.Context) error {
		if _, err := s.evidenceRepo.Get(ctx, req.CaseID, req.EvidenceItemID); err != nil {
			return err
		}

		event, err := s.messageRepo.Create(ctx, &models.MessageEvent{
			ID:                  req.ID,
			CaseID:              req.CaseID,
			EvidenceItemID:      req.EvidenceItemID,
			ThreadID:            req.ThreadID,
			Timestamp:           req.Timestamp,
			Direction:           req.Direction,
			SenderRaw:           req.SenderRaw,
			RecipientsRaw:       req.RecipientsRaw,
			Body:                req.Body,
			SourceLocator:       strings.TrimSpace(req.SourceLocator),
			IngestModuleVersion: req.IngestModuleVersion,
		})
		if err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.Validation("id", "message event %s already exists", req.ID)
			}
			return err
		}
		result.Event = event

		for _, p := range req.Participants {
			link := models.LinkMessageParticipantRequest{
				CaseID:         req.CaseID,
				MessageEventID: event.ID,
				Role:           p.Role,
				ParticipantRaw: p.Raw,
			}
			if p.RequestedType != "" {
				requested := p.RequestedType
				link.RequestedType = &requested
			}
			linked, err := s.registry.LinkMessageParticipant(ctx, link)
			if err != nil {
				return err
			}
			result.Participants = append(result.Participants, *linked)
		}

		entry, err := s.entry(ctx, models.ActionMessageEventRecorded, req.CaseID, req.EvidenceItemID,
			fmt.Sprintf("Recorded message %s with %d participants", event.ID, len(result.Participants)),
			map[string]any{"message_event_id": event.ID, "source_locator": event.SourceLocator})
		if err != nil {
			return err
		}
		return s.ws.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) GetMessageEvent(ctx context.Context, caseID, id string) (*models.MessageEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "evidence.Service.GetMessageEvent")
	defer span.End()
	return s.messageRepo.Get(ctx, caseID, id)
}

func (s *Service) ListMessageParticipants(ctx context.Context, caseID, messageEventID string) ([]models.MessageParticipantLink, error) {
	ctx, span := tracing.StartSpan(ctx, "evidence.Service.ListMessageParticipants")
	defer span.End()

	if _, err := s.messageRepo.Get(ctx, caseID, messageEventID); err != nil {
		return nil, err
	}
	return s.participantRepo.ListByMessage(ctx, caseID, messageEventID)
}

// DeleteEvidenceMessages removes every message of an evidence item, for re-ingest,
// and refreshes the presence rows scoped to it.
func (s *Service) DeleteEvidenceMessages(ctx context.Context, caseID, evidenceItemID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "evidence.Service.DeleteEvidenceMessages")
	defer span.End()

	var deleted int64
	err := s.ws.Write(ctx, models.ActionEvidenceMessagesDeleted, func(ctx context.Context) error {
		if _, err := s.evidenceRepo.Get(ctx, caseID, evidenceItemID); err != nil {
			return err
		}

		n, err := s.messageRepo.DeleteByEvidence(ctx, caseID, evidenceItemID)
		if err != nil {
			return err
		}
		deleted = n

		if _, err := s.indexer.RefreshForEvidence(ctx, caseID, evidenceItemID); err != nil {
			return err
		}

		entry, err := s.entry(ctx, models.ActionEvidenceMessagesDeleted, caseID, evidenceItemID,
			fmt.Sprintf("Deleted %d messages from evidence item", n), map[string]any{"deleted": n})
		if err != nil {
			return err
		}
		return s.ws.Record(ctx, entry)
	})
	if err != nil {
		tracing.RecordError(span, err)
		return 0, err
	}

	logging.WithContext(ctx, s.logger).Info("Deleted evidence messages",
		zap.String("case_id", caseID),
		zap.String("evidence_item_id", evidenceItemID),
		zap.Int64("deleted", deleted))
	return deleted, nil
}

func (s *Service) entry(ctx context.Context, action, caseID, evidenceItemID, summary string, payload any) (models.AuditEntry, error) {
	entry, err := audit.NewEntry(ctx, action, caseID, summary, payload)
	if err != nil {
		return entry, err
	}
	entry.EvidenceItemID = &evidenceItemID
	return entry, nil
}
