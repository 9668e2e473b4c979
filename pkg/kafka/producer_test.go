package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishAuditEntries(t *testing.T) {
	writer := &fakeWriter{}
	producer := NewProducerWithWriter(writer, "thistle.audit", zap.NewNop())

	caseID := "case-1"
	entries := []models.AuditEntry{
		{ID: "a1", Timestamp: database.Now(), Operator: "analyst", ActionType: models.ActionIdentifierAdded, CaseID: &caseID, Summary: "added"},
		{ID: "a2", Timestamp: database.Now(), Operator: "system", ActionType: models.ActionCaseCreated, Summary: "created"},
	}

	require.NoError(t, producer.PublishAuditEntries(context.Background(), entries...))
	require.Len(t, writer.messages, 2)

	first := writer.messages[0]
	assert.Equal(t, "thistle.audit", first.Topic)
	assert.Equal(t, "case-1", string(first.Key))
	assert.Contains(t, first.Headers, kafka.Header{Key: "action_type", Value: []byte(models.ActionIdentifierAdded)})

	var decoded models.AuditEntry
	require.NoError(t, json.Unmarshal(first.Value, &decoded))
	assert.Equal(t, "a1", decoded.ID)
	assert.Equal(t, "analyst", decoded.Operator)

	assert.Equal(t, "a2", string(writer.messages[1].Key), "entries without a case are keyed by id")

	require.NoError(t, producer.Close())
	assert.True(t, writer.closed)
}

func TestPublishAuditEntries_Empty(t *testing.T) {
	writer := &fakeWriter{err: errors.New("should not be called")}
	producer := NewProducerWithWriter(writer, "t", zap.NewNop())
	assert.NoError(t, producer.PublishAuditEntries(context.Background()))
}

func TestPublishAuditEntries_WriterError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	producer := NewProducerWithWriter(writer, "t", zap.NewNop())

	err := producer.PublishAuditEntries(context.Background(), models.AuditEntry{ID: "a1"})
	assert.EqualError(t, err, "broker down")
}
