package graph

import (
	"context"
	"testing"
	"time"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/presence"
	"github.com/Ramsey-B/thistle/pkg/registry"
	"github.com/Ramsey-B/thistle/pkg/testhelpers"
	"github.com/Ramsey-B/thistle/pkg/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	ws      *workspace.Workspace
	reg     *registry.Service
	builder *Builder
	caseID  string
	evID    string
	n       int
}

func newEnv(t *testing.T) *env {
	t.Helper()
	conn := testhelpers.OpenDB(t)
	ws := workspace.New(conn, zap.NewNop())
	c := testhelpers.CreateCase(t, conn, "graph")
	ev := testhelpers.CreateEvidenceItem(t, conn, c.ID, "handset")
	return &env{
		ws:      ws,
		reg:     registry.NewService(ws, presence.NewIndexer(ws)),
		builder: NewBuilder(ws),
		caseID:  c.ID,
		evID:    ev.ID,
	}
}

// person creates a target owning one email.
func (e *env) person(t *testing.T, name, email string) *models.Target {
	t.Helper()
	ctx := context.Background()
	tgt, err := e.reg.CreateTarget(ctx, models.CreateTargetRequest{CaseID: e.caseID, DisplayName: name})
	require.NoError(t, err)
	_, err = e.reg.AddIdentifier(ctx, models.AddIdentifierRequest{
		CaseID: e.caseID, TargetID: tgt.ID, Type: models.IdentifierTypeEmail, Value: email,
	})
	require.NoError(t, err)
	return tgt
}

// send records a message from one raw participant to another in thread.
func (e *env) send(t *testing.T, thread, from, to string) {
	t.Helper()
	ctx := context.Background()
	e.n++
	at := time.Date(2024, 1, 1, 10, e.n, 0, 0, time.UTC)
	msg := testhelpers.CreateMessage(t, e.ws.DB(), e.caseID, e.evID, testhelpers.Message{
		ThreadID: thread, At: &at, SenderRaw: from, RecipientsRaw: to, Body: "hi",
	})
	for role, raw := range map[models.ParticipantRole]string{
		models.ParticipantRoleSender:    from,
		models.ParticipantRoleRecipient: to,
	} {
		_, err := e.reg.LinkMessageParticipant(ctx, models.LinkMessageParticipantRequest{
			CaseID: e.caseID, MessageEventID: msg.ID, Role: role, ParticipantRaw: raw,
		})
		require.NoError(t, err)
	}
}

func TestBuild_EdgeWeightAndThreshold(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.person(t, "Alice", "alice@example.com")
	bob := e.person(t, "Bob", "bob@example.com")

	e.send(t, "t1", "alice@example.com", "bob@example.com")
	e.send(t, "t1", "bob@example.com", "alice@example.com")

	g, err := e.builder.Build(ctx, e.caseID, Options{})
	require.NoError(t, err)
	require.Len(t, g.Edges, 1)
	edge := g.Edges[0]
	assert.Equal(t, 2, edge.Weight)
	assert.Equal(t, 2, edge.DistinctEventCount)
	assert.Equal(t, 1, edge.DistinctThreadCount)
	require.NotNil(t, edge.LastSeenUTC)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 2, 0, 0, time.UTC), *edge.LastSeenUTC)

	keys := []string{edge.SourceKey, edge.TargetKey}
	assert.ElementsMatch(t, []string{"target:" + alice.ID, "target:" + bob.ID}, keys)

	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "Alice", g.Nodes[0].Label)
	assert.Equal(t, NodeKindTarget, g.Nodes[0].Kind)

	g, err = e.builder.Build(ctx, e.caseID, Options{MinEdgeWeight: 3})
	require.NoError(t, err)
	assert.Empty(t, g.Edges)
	assert.Empty(t, g.Nodes, "isolated nodes are dropped without include_identifiers")

	g, err = e.builder.Build(ctx, e.caseID, Options{MinEdgeWeight: 3, IncludeIdentifiers: true})
	require.NoError(t, err)
	assert.Empty(t, g.Edges)
	assert.Len(t, g.Nodes, 2)
}

func TestBuild_GroupByGlobalPerson(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	work := e.person(t, "Alice (work)", "alice@work.example")
	home := e.person(t, "Alice (home)", "alice@home.example")
	e.person(t, "Bob", "bob@example.com")

	created, err := e.reg.CreateGlobalPersonForTarget(ctx, models.CreateGlobalPersonForTargetRequest{CaseID: e.caseID, TargetID: work.ID})
	require.NoError(t, err)
	_, err = e.reg.LinkTargetToGlobalPerson(ctx, models.LinkTargetToGlobalPersonRequest{
		CaseID: e.caseID, TargetID: home.ID, GlobalEntityID: created.GlobalEntityID,
	})
	require.NoError(t, err)

	e.send(t, "t1", "alice@work.example", "bob@example.com")
	e.send(t, "t2", "alice@home.example", "bob@example.com")

	ungrouped, err := e.builder.Build(ctx, e.caseID, Options{})
	require.NoError(t, err)
	assert.Empty(t, ungrouped.Edges)

	grouped, err := e.builder.Build(ctx, e.caseID, Options{GroupByGlobalPerson: true})
	require.NoError(t, err)
	require.Len(t, grouped.Edges, 1)
	assert.Equal(t, 2, grouped.Edges[0].Weight)
	assert.Equal(t, 2, grouped.Edges[0].DistinctThreadCount)

	require.Len(t, grouped.Nodes, 2)
	global := grouped.Nodes[0]
	assert.Equal(t, NodeKindGlobalPerson, global.Kind)
	assert.Equal(t, created.GlobalEntityID, global.ID)
	assert.ElementsMatch(t, []string{work.ID, home.ID}, global.ContributingTargetIDs)
	assert.Len(t, global.ContributingIdentifierIDs, 2)
}

func TestBuild_IdentifierNodes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.person(t, "Alice", "alice@example.com")

	e.send(t, "t1", "alice@example.com", "stranger@example.com")
	e.send(t, "t1", "alice@example.com", "stranger@example.com")

	without, err := e.builder.Build(ctx, e.caseID, Options{})
	require.NoError(t, err)
	assert.Empty(t, without.Edges)

	with, err := e.builder.Build(ctx, e.caseID, Options{IncludeIdentifiers: true})
	require.NoError(t, err)
	require.Len(t, with.Edges, 1)
	require.Len(t, with.Nodes, 2)
	assert.Equal(t, NodeKindIdentifier, with.Nodes[1].Kind)
	assert.Equal(t, "stranger@example.com", with.Nodes[1].Label)
	assert.Equal(t, models.IdentifierTypeEmail, with.Nodes[1].IdentifierType)
}

func TestBuild_Cancelled(t *testing.T) {
	e := newEnv(t)
	e.person(t, "Alice", "alice@example.com")
	e.send(t, "t1", "alice@example.com", "bob@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.builder.Build(ctx, e.caseID, Options{IncludeIdentifiers: true})
	assert.Error(t, err)
}
