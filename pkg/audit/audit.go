// Package audit defines the audit sink contract and its implementations.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Ramsey-B/thistle/internal/repositories/auditlog"
	appctx "github.com/Ramsey-B/thistle/pkg/context"
	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink accepts audit entries. A sink error fails the operation being audited.
type Sink interface {
	Record(ctx context.Context, entry models.AuditEntry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, entry models.AuditEntry) error

func (f SinkFunc) Record(ctx context.Context, entry models.AuditEntry) error {
	return f(ctx, entry)
}

// NewEntry builds an entry attributed to the operator on ctx. payload is
// marshalled to JSON when not nil.
func NewEntry(ctx context.Context, actionType, caseID, summary string, payload any) (models.AuditEntry, error) {
	entry := models.AuditEntry{
		ID:         uuid.New().String(),
		Timestamp:  database.Now(),
		Operator:   appctx.GetOperator(ctx),
		ActionType: actionType,
		Summary:    summary,
	}
	if caseID != "" {
		entry.CaseID = &caseID
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return models.AuditEntry{}, fmt.Errorf("failed to marshal audit payload: %w", err)
		}
		entry.JSONPayload = data
	}
	return entry, nil
}

// StoreSink writes entries to the audit_log table. Inside a workspace write it
// joins the mutation's transaction, so a rolled back mutation leaves no entry.
type StoreSink struct {
	repo *auditlog.Repository
}

func NewStoreSink(db database.DB, logger *zap.Logger) *StoreSink {
	return &StoreSink{repo: auditlog.NewRepository(db, logger)}
}

func (s *StoreSink) Record(ctx context.Context, entry models.AuditEntry) error {
	return s.repo.Create(ctx, entry)
}

// List returns stored entries for a case, newest first.
func (s *StoreSink) List(ctx context.Context, caseID, actionType string, limit int) ([]models.AuditEntry, error) {
	return s.repo.ListByCase(ctx, caseID, actionType, limit)
}

// LogSink writes entries to the structured log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

func (s *LogSink) Record(ctx context.Context, entry models.AuditEntry) error {
	fields := []zap.Field{
		zap.String("audit_id", entry.ID),
		zap.String("action_type", entry.ActionType),
		zap.String("summary", entry.Summary),
		zap.Time("timestamp_utc", entry.Timestamp.Time),
	}
	if entry.CaseID != nil {
		fields = append(fields, zap.String("audit_case_id", *entry.CaseID))
	}
	if entry.EvidenceItemID != nil {
		fields = append(fields, zap.String("evidence_item_id", *entry.EvidenceItemID))
	}
	if len(entry.JSONPayload) > 0 {
		fields = append(fields, zap.String("payload", string(entry.JSONPayload)))
	}
	logging.WithContext(ctx, s.logger).Info("audit", fields...)
	return nil
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishAuditEntries(ctx context.Context, entries ...models.AuditEntry) error
}

// KafkaSink forwards entries to a Kafka topic.
type KafkaSink struct {
	publisher Publisher
}

func NewKafkaSink(publisher Publisher) *KafkaSink {
	return &KafkaSink{publisher: publisher}
}

func (s *KafkaSink) Record(ctx context.Context, entry models.AuditEntry) error {
	return s.publisher.PublishAuditEntries(ctx, entry)
}

// MultiSink records to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, entry models.AuditEntry) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
