package presence

import (
	"context"
	"testing"
	"time"

	"github.com/Ramsey-B/thistle/internal/repositories/auditlog"
	"github.com/Ramsey-B/thistle/internal/repositories/identifier"
	"github.com/Ramsey-B/thistle/internal/repositories/participantlink"
	"github.com/Ramsey-B/thistle/internal/repositories/target"
	"github.com/Ramsey-B/thistle/internal/repositories/targetidentifier"
	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/testhelpers"
	"github.com/Ramsey-B/thistle/pkg/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	ws         *workspace.Workspace
	caseID     string
	evidenceID string
	messageID  string
	phoneID    string
	emailID    string
	aliceID    string
	bobID      string
}

var manual = models.Provenance{SourceType: models.SourceTypeManual, SourceLocator: "test", IngestModuleVersion: "test-1"}

// newFixture builds one message from a phone to an email, with the phone linked
// to Alice and the email linked to Bob. Presence is not derived.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	conn := testhelpers.OpenDB(t)
	ws := workspace.New(conn, zap.NewNop())

	c := testhelpers.CreateCase(t, conn, "presence")
	ev := testhelpers.CreateEvidenceItem(t, conn, c.ID, "phone-1")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := testhelpers.CreateMessage(t, conn, c.ID, ev.ID, testhelpers.Message{
		ThreadID:      "thread-1",
		At:            &at,
		SenderRaw:     "+1 555 123 0001",
		RecipientsRaw: "bob@example.com",
		Body:          "meet at the dock",
	})

	f := &fixture{ws: ws, caseID: c.ID, evidenceID: ev.ID, messageID: msg.ID}
	f.phoneID = f.identifier(t, models.IdentifierTypePhone, "+15551230001")
	f.emailID = f.identifier(t, models.IdentifierTypeEmail, "bob@example.com")
	f.aliceID = f.target(t, "Alice")
	f.bobID = f.target(t, "Bob")
	f.link(t, f.aliceID, f.phoneID)
	f.link(t, f.bobID, f.emailID)

	links := participantlink.NewRepository(conn, zap.NewNop())
	for _, l := range []models.MessageParticipantLink{
		{CaseID: c.ID, MessageEventID: msg.ID, Role: models.ParticipantRoleSender, ParticipantRaw: "+1 555 123 0001", IdentifierID: f.phoneID, Provenance: manual},
		{CaseID: c.ID, MessageEventID: msg.ID, Role: models.ParticipantRoleRecipient, ParticipantRaw: "bob@example.com", IdentifierID: f.emailID, Provenance: manual},
	} {
		_, err := links.Upsert(ctx, &l)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) identifier(t *testing.T, idType models.IdentifierType, value string) string {
	t.Helper()
	ident, err := identifier.NewRepository(f.ws.DB(), zap.NewNop()).Create(context.Background(), &models.Identifier{
		CaseID: f.caseID, Type: idType, ValueRaw: value, ValueNormalized: value, Provenance: manual,
	})
	require.NoError(t, err)
	return ident.ID
}

func (f *fixture) target(t *testing.T, name string) string {
	t.Helper()
	tgt, err := target.NewRepository(f.ws.DB(), zap.NewNop()).Create(context.Background(), &models.Target{CaseID: f.caseID, DisplayName: name})
	require.NoError(t, err)
	return tgt.ID
}

func (f *fixture) link(t *testing.T, targetID, identifierID string) {
	t.Helper()
	_, err := targetidentifier.NewRepository(f.ws.DB(), zap.NewNop()).Create(context.Background(), &models.TargetIdentifierLink{
		CaseID: f.caseID, TargetID: targetID, IdentifierID: identifierID, Provenance: manual,
	})
	require.NoError(t, err)
}

func TestRebuildCase_DerivesPresence(t *testing.T) {
	f := newFixture(t)
	indexer := NewIndexer(f.ws)
	ctx := context.Background()

	require.ErrorIs(t, indexer.Verify(ctx, f.caseID), apperrors.ErrIndexInconsistency)

	result, err := indexer.RebuildCase(ctx, f.caseID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EvidenceItems)

	rows, err := indexer.ListForMessage(ctx, f.caseID, f.messageID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byRole := map[models.ParticipantRole]models.PresenceRecord{}
	for _, row := range rows {
		byRole[row.Role] = row
	}
	assert.Equal(t, f.aliceID, byRole[models.ParticipantRoleSender].TargetID)
	assert.Equal(t, f.phoneID, byRole[models.ParticipantRoleSender].MatchedIdentifierID)
	assert.Equal(t, f.bobID, byRole[models.ParticipantRoleRecipient].TargetID)
	assert.Equal(t, f.evidenceID, byRole[models.ParticipantRoleRecipient].EvidenceItemID)
	require.NotNil(t, byRole[models.ParticipantRoleSender].MessageTimestamp)

	assert.NoError(t, indexer.Verify(ctx, f.caseID))

	participants, err := participantlink.NewRepository(f.ws.DB(), zap.NewNop()).ListByMessage(ctx, f.caseID, f.messageID)
	require.NoError(t, err)
	for _, p := range participants {
		require.NotNil(t, p.TargetID)
	}

	entries, err := auditlog.NewRepository(f.ws.DB(), zap.NewNop()).ListByCase(ctx, f.caseID, models.ActionPresenceRebuilt, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRebuildCase_IsIdempotentAndKeepsFirstSeen(t *testing.T) {
	f := newFixture(t)
	indexer := NewIndexer(f.ws)
	ctx := context.Background()

	_, err := indexer.RebuildCase(ctx, f.caseID)
	require.NoError(t, err)
	before, err := indexer.ListByCase(ctx, f.caseID)
	require.NoError(t, err)

	_, err = indexer.RebuildCase(ctx, f.caseID)
	require.NoError(t, err)
	after, err := indexer.ListByCase(ctx, f.caseID)
	require.NoError(t, err)

	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.True(t, before[i].FirstSeenAt.Equal(after[i].FirstSeenAt.Time))
	}
}

func TestRefreshForIdentifier_RemovesStaleRows(t *testing.T) {
	f := newFixture(t)
	indexer := NewIndexer(f.ws)
	ctx := context.Background()

	_, err := indexer.RebuildCase(ctx, f.caseID)
	require.NoError(t, err)

	_, err = targetidentifier.NewRepository(f.ws.DB(), zap.NewNop()).DeleteByIdentifier(ctx, f.caseID, f.emailID)
	require.NoError(t, err)

	err = indexer.Verify(ctx, f.caseID)
	var inconsistency *apperrors.IndexInconsistencyError
	require.ErrorAs(t, err, &inconsistency)
	require.Len(t, inconsistency.Mismatches, 1)
	assert.Equal(t, apperrors.MismatchStaleRow, inconsistency.Mismatches[0].Kind)
	assert.Equal(t, f.bobID, inconsistency.Mismatches[0].TargetID)

	result, err := indexer.RefreshForIdentifier(ctx, f.caseID, f.emailID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Removed)
	assert.NoError(t, indexer.Verify(ctx, f.caseID))

	rows, err := indexer.ListForMessage(ctx, f.caseID, f.messageID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, f.aliceID, rows[0].TargetID)

	participants, err := participantlink.NewRepository(f.ws.DB(), zap.NewNop()).ListByMessage(ctx, f.caseID, f.messageID)
	require.NoError(t, err)
	for _, p := range participants {
		if p.IdentifierID == f.emailID {
			assert.Nil(t, p.TargetID)
		}
	}
}

func TestRefreshForEvidence(t *testing.T) {
	f := newFixture(t)
	indexer := NewIndexer(f.ws)
	ctx := context.Background()

	result, err := indexer.RefreshForEvidence(ctx, f.caseID, f.evidenceID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EvidenceItems)
	assert.NoError(t, indexer.Verify(ctx, f.caseID))

	_, err = indexer.RefreshForEvidence(ctx, f.caseID, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRebuildCase_CancelledLeavesIndexUntouched(t *testing.T) {
	f := newFixture(t)
	indexer := NewIndexer(f.ws).WithBatchSize(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := indexer.RebuildCase(ctx, f.caseID)
	require.ErrorIs(t, err, context.Canceled)

	rows, err := indexer.ListByCase(context.Background(), f.caseID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRebuildCase_UnknownCase(t *testing.T) {
	f := newFixture(t)
	_, err := NewIndexer(f.ws).RebuildCase(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
