package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// SchemaVersion is the current audit event schema version
const SchemaVersion = "1.0"

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes audit events to Kafka
type Producer struct {
	writer MessageWriter
	logger *zap.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger *zap.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return NewProducerWithWriter(writer, cfg.Topic, logger)
}

// NewProducerWithWriter wraps an existing writer.
func NewProducerWithWriter(writer MessageWriter, topic string, logger *zap.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// auditMessage builds the Kafka message for an entry. Entries are keyed by case
// so one case's history stays ordered on a single partition.
func (p *Producer) auditMessage(entry models.AuditEntry) (kafka.Message, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return kafka.Message{}, err
	}

	key := entry.ID
	caseID := ""
	if entry.CaseID != nil {
		caseID = *entry.CaseID
		key = caseID
	}

	return kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "action_type", Value: []byte(entry.ActionType)},
			{Key: "case_id", Value: []byte(caseID)},
			{Key: "operator", Value: []byte(entry.Operator)},
			{Key: "schema_version", Value: []byte(SchemaVersion)},
		},
	}, nil
}

// PublishAuditEntries publishes audit entries in one batch
func (p *Producer) PublishAuditEntries(ctx context.Context, entries ...models.AuditEntry) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishAuditEntries")
	defer span.End()

	if len(entries) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(entries))
	for i, entry := range entries {
		msg, err := p.auditMessage(entry)
		if err != nil {
			return err
		}
		messages[i] = msg
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		logging.WithContext(ctx, p.logger).Error("Failed to publish audit entries", zap.Int("batch_size", len(entries)), zap.Error(err))
		return err
	}

	logging.WithContext(ctx, p.logger).Debug("Published audit entries", zap.Int("batch_size", len(entries)))
	return nil
}

// Ping succeeds once any broker accepts a connection.
func Ping(ctx context.Context, brokers []string) error {
	var lastErr error
	for _, broker := range brokers {
		if broker == "" {
			continue
		}
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		return fmt.Errorf("no kafka brokers configured")
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}
