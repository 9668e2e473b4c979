package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/Ramsey-B/thistle/internal/repositories/auditlog"
	"github.com/Ramsey-B/thistle/internal/repositories/messageevent"
	"github.com/Ramsey-B/thistle/pkg/apperrors"
	appctx "github.com/Ramsey-B/thistle/pkg/context"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/presence"
	"github.com/Ramsey-B/thistle/pkg/registry"
	"github.com/Ramsey-B/thistle/pkg/testhelpers"
	"github.com/Ramsey-B/thistle/pkg/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ws       *workspace.Workspace
	svc      *Service
	registry *registry.Service
	caseID   string
	evID     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testhelpers.OpenDB(t)
	ws := workspace.New(conn, zap.NewNop())
	c := testhelpers.CreateCase(t, conn, "timeline")
	ev := testhelpers.CreateEvidenceItem(t, conn, c.ID, "handset")
	return &fixture{
		ws:       ws,
		svc:      NewService(ws),
		registry: registry.NewService(ws, presence.NewIndexer(ws)),
		caseID:   c.ID,
		evID:     ev.ID,
	}
}

func (f *fixture) message(t *testing.T, at *time.Time, direction *string, sender, body string) *models.MessageEvent {
	t.Helper()
	return testhelpers.CreateMessage(t, f.ws.DB(), f.caseID, f.evID, testhelpers.Message{
		At:            at,
		Direction:     direction,
		SenderRaw:     sender,
		RecipientsRaw: "+15550000000",
		Body:          body,
	})
}

func ids(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestSearch_OrdersByTimeWithUntimedLast(t *testing.T) {
	f := newFixture(t)
	untimed := f.message(t, nil, nil, "a", "no clock")
	later := f.message(t, testhelpers.Ptr(base.Add(time.Hour)), nil, "b", "later")
	earlier := f.message(t, testhelpers.Ptr(base), nil, "c", "earlier")

	res, err := f.svc.Search(context.Background(), Query{CaseID: f.caseID})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalCount)
	assert.Equal(t, []string{earlier.ID, later.ID, untimed.ID}, ids(res.Rows))
	assert.False(t, res.UsedFallback)
	assert.NotEmpty(t, res.CorrelationID)
}

func TestSearch_TimeBoundsAreInclusive(t *testing.T) {
	f := newFixture(t)
	f.message(t, testhelpers.Ptr(base.Add(-time.Minute)), nil, "a", "before")
	atFrom := f.message(t, testhelpers.Ptr(base), nil, "a", "at from")
	atTo := f.message(t, testhelpers.Ptr(base.Add(time.Hour)), nil, "a", "at to")
	f.message(t, nil, nil, "a", "untimed")

	from, to := base, base.Add(time.Hour)
	res, err := f.svc.Search(context.Background(), Query{CaseID: f.caseID, FromUTC: &from, ToUTC: &to})
	require.NoError(t, err)
	assert.Equal(t, []string{atFrom.ID, atTo.ID}, ids(res.Rows))
	assert.Equal(t, 2, res.TotalCount)
}

func TestSearch_Paging(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.message(t, testhelpers.Ptr(base.Add(time.Duration(i)*time.Minute)), nil, "a", "page")
	}

	res, err := f.svc.Search(context.Background(), Query{CaseID: f.caseID, Take: 2, Skip: 4})
	require.NoError(t, err)
	assert.Equal(t, 5, res.TotalCount)
	assert.Len(t, res.Rows, 1)
}

func TestSearch_Direction(t *testing.T) {
	f := newFixture(t)
	in := f.message(t, testhelpers.Ptr(base), testhelpers.Ptr("Incoming"), "a", "one")
	out := f.message(t, testhelpers.Ptr(base.Add(time.Minute)), testhelpers.Ptr("outgoing"), "a", "two")
	blank := f.message(t, testhelpers.Ptr(base.Add(2*time.Minute)), testhelpers.Ptr(" "), "a", "three")
	missing := f.message(t, testhelpers.Ptr(base.Add(3*time.Minute)), nil, "a", "four")

	ctx := context.Background()
	res, err := f.svc.Search(ctx, Query{CaseID: f.caseID, Direction: "incoming"})
	require.NoError(t, err)
	assert.Equal(t, []string{in.ID}, ids(res.Rows))

	res, err = f.svc.Search(ctx, Query{CaseID: f.caseID, Direction: DirectionOutgoing})
	require.NoError(t, err)
	assert.Equal(t, []string{out.ID}, ids(res.Rows))

	res, err = f.svc.Search(ctx, Query{CaseID: f.caseID, Direction: DirectionUnknown})
	require.NoError(t, err)
	assert.Equal(t, []string{blank.ID, missing.ID}, ids(res.Rows))

	_, err = f.svc.Search(ctx, Query{CaseID: f.caseID, Direction: "sideways"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSearch_FullTextAndFallback(t *testing.T) {
	f := newFixture(t)
	quoted := f.message(t, testhelpers.Ptr(base), nil, "a", `she said "meet at the dock`)
	f.message(t, testhelpers.Ptr(base.Add(time.Minute)), nil, "a", "nothing here")

	ctx := context.Background()
	res, err := f.svc.Search(ctx, Query{CaseID: f.caseID, QueryText: "dock"})
	require.NoError(t, err)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, []string{quoted.ID}, ids(res.Rows))

	res, err = f.svc.Search(ctx, Query{CaseID: f.caseID, QueryText: `"meet`})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)

	manual, err := messageevent.NewRepository(f.ws.DB(), zap.NewNop()).Search(ctx,
		messageevent.SearchFilter{CaseID: f.caseID, QueryText: `"meet`}, messageevent.MatchSubstring, 50, 0)
	require.NoError(t, err)
	require.Len(t, manual, 1)
	assert.Equal(t, []string{manual[0].ID}, ids(res.Rows))
	assert.Equal(t, 1, res.TotalCount)
}

func TestSearch_ResolvesDisplayNamesAndTargetFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.message(t, testhelpers.Ptr(base), nil, "+1 555 123 0001", "hi")
	other := f.message(t, testhelpers.Ptr(base.Add(time.Minute)), nil, "stranger", "yo")

	alice, err := f.registry.CreateTarget(ctx, models.CreateTargetRequest{CaseID: f.caseID, DisplayName: "Alice"})
	require.NoError(t, err)
	_, err = f.registry.LinkMessageParticipant(ctx, models.LinkMessageParticipantRequest{
		CaseID:         f.caseID,
		MessageEventID: msg.ID,
		Role:           models.ParticipantRoleSender,
		ParticipantRaw: msg.SenderRaw,
		TargetID:       &alice.ID,
	})
	require.NoError(t, err)

	res, err := f.svc.Search(ctx, Query{CaseID: f.caseID})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Alice", res.Rows[0].SenderDisplay)
	assert.Equal(t, []string{alice.ID}, res.Rows[0].SenderTargetIDs)
	assert.Equal(t, "+15550000000", res.Rows[0].RecipientsDisplay)
	assert.Equal(t, other.SenderRaw, res.Rows[1].SenderDisplay)

	res, err = f.svc.Search(ctx, Query{CaseID: f.caseID, TargetID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{msg.ID}, ids(res.Rows))
}

func TestSearch_AuditsWithCorrelationID(t *testing.T) {
	f := newFixture(t)
	f.message(t, testhelpers.Ptr(base), nil, "a", "hello")

	ctx := appctx.SetRequestID(context.Background(), "req-42")
	res, err := f.svc.Search(ctx, Query{CaseID: f.caseID})
	require.NoError(t, err)
	assert.Equal(t, "req-42", res.CorrelationID)

	entries, err := auditlog.NewRepository(f.ws.DB(), zap.NewNop()).ListByCase(ctx, f.caseID, models.ActionTimelineSearched, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, string(entries[0].JSONPayload), `"correlation_id":"req-42"`)
	assert.Contains(t, string(entries[0].JSONPayload), `"result_count":1`)
}

func TestSearch_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Search(ctx, Query{})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	from, to := base.Add(time.Hour), base
	_, err = f.svc.Search(ctx, Query{CaseID: f.caseID, FromUTC: &from, ToUTC: &to})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.svc.Search(ctx, Query{CaseID: "missing"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestNormalizeQuery_ClampsTake(t *testing.T) {
	q, err := normalizeQuery(Query{CaseID: "c", Take: 0, Skip: -3})
	require.NoError(t, err)
	assert.Equal(t, DefaultTake, q.Take)
	assert.Equal(t, 0, q.Skip)
	assert.Equal(t, DirectionAny, q.Direction)

	q, err = normalizeQuery(Query{CaseID: "c", Take: 10000})
	require.NoError(t, err)
	assert.Equal(t, MaxTake, q.Take)
}
