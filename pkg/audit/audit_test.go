package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	appctx "github.com/Ramsey-B/thistle/pkg/context"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakePublisher struct {
	published []models.AuditEntry
	err       error
}

func (p *fakePublisher) PublishAuditEntries(ctx context.Context, entries ...models.AuditEntry) error {
	p.published = append(p.published, entries...)
	return p.err
}

func TestNewEntry(t *testing.T) {
	ctx := appctx.SetOperator(context.Background(), "det.smith")

	entry, err := NewEntry(ctx, models.ActionTargetCreated, "case-1", "created target", map[string]string{"target_id": "t-1"})
	require.NoError(t, err)

	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
	assert.Equal(t, "det.smith", entry.Operator)
	assert.Equal(t, models.ActionTargetCreated, entry.ActionType)
	require.NotNil(t, entry.CaseID)
	assert.Equal(t, "case-1", *entry.CaseID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(entry.JSONPayload, &payload))
	assert.Equal(t, "t-1", payload["target_id"])
}

func TestNewEntry_DefaultsToSystemOperator(t *testing.T) {
	entry, err := NewEntry(context.Background(), models.ActionCaseCreated, "", "created", nil)
	require.NoError(t, err)

	assert.Equal(t, appctx.SystemOperator, entry.Operator)
	assert.Nil(t, entry.CaseID)
	assert.Empty(t, entry.JSONPayload)
}

func TestNewEntry_UnmarshallablePayload(t *testing.T) {
	_, err := NewEntry(context.Background(), models.ActionCaseCreated, "", "bad", map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestStoreSink_RecordAndList(t *testing.T) {
	conn := testhelpers.OpenDB(t)
	sink := NewStoreSink(conn, zap.NewNop())
	ctx := context.Background()

	for _, action := range []string{models.ActionTargetCreated, models.ActionAliasAdded, models.ActionTargetCreated} {
		entry, err := NewEntry(ctx, action, "case-1", action, nil)
		require.NoError(t, err)
		require.NoError(t, sink.Record(ctx, entry))
	}
	other, err := NewEntry(ctx, models.ActionTargetCreated, "case-2", "other case", nil)
	require.NoError(t, err)
	require.NoError(t, sink.Record(ctx, other))

	all, err := sink.List(ctx, "case-1", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	created, err := sink.List(ctx, "case-1", models.ActionTargetCreated, 0)
	require.NoError(t, err)
	assert.Len(t, created, 2)

	limited, err := sink.List(ctx, "case-1", "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	entry, err := NewEntry(context.Background(), models.ActionAliasAdded, "case-1", "added alias", map[string]string{"alias": "Bones"})
	require.NoError(t, err)
	require.NoError(t, sink.Record(context.Background(), entry))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, models.ActionAliasAdded, fields["action_type"])
	assert.Equal(t, "case-1", fields["audit_case_id"])
	assert.Contains(t, fields["payload"], "Bones")
}

func TestKafkaSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewKafkaSink(pub)

	entry, err := NewEntry(context.Background(), models.ActionCaseCreated, "case-1", "created", nil)
	require.NoError(t, err)
	require.NoError(t, sink.Record(context.Background(), entry))

	require.Len(t, pub.published, 1)
	assert.Equal(t, entry.ID, pub.published[0].ID)
}

func TestMultiSink_JoinsErrors(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	var calls int
	count := SinkFunc(func(ctx context.Context, entry models.AuditEntry) error {
		calls++
		return nil
	})

	sink := MultiSink{
		NewKafkaSink(&fakePublisher{err: first}),
		nil,
		count,
		NewKafkaSink(&fakePublisher{err: second}),
	}

	err := sink.Record(context.Background(), models.AuditEntry{ID: "a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Equal(t, 1, calls)
}
