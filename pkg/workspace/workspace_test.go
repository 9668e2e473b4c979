package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Ramsey-B/thistle/internal/repositories/auditlog"
	"github.com/Ramsey-B/thistle/internal/repositories/cases"
	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/Ramsey-B/thistle/pkg/audit"
	appctx "github.com/Ramsey-B/thistle/pkg/context"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []models.AuditEntry
	err     error
}

func (s *recordingSink) Record(ctx context.Context, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func newWorkspace(t *testing.T, opts ...Option) *Workspace {
	t.Helper()
	return New(testhelpers.OpenDB(t), zap.NewNop(), opts...)
}

func TestWrite_CommitsAndForwardsAudit(t *testing.T) {
	forward := &recordingSink{}
	ws := newWorkspace(t, WithForwardSink(forward))
	ctx := appctx.SetOperator(context.Background(), "analyst")

	var caseID string
	err := ws.Write(ctx, "create case", func(ctx context.Context) error {
		c, err := cases.NewRepository(ws.DB(), zap.NewNop()).Create(ctx, &models.Case{Name: "Op Thistle"})
		if err != nil {
			return err
		}
		caseID = c.ID
		if err := ws.Audit(ctx, models.ActionCaseCreated, c.ID, "created", nil); err != nil {
			return err
		}
		assert.Equal(t, 0, forward.count(), "forwarding waits for commit")
		return nil
	})
	require.NoError(t, err)

	_, err = cases.NewRepository(ws.DB(), zap.NewNop()).Get(ctx, caseID)
	require.NoError(t, err)

	entries, err := auditlog.NewRepository(ws.DB(), zap.NewNop()).ListByCase(ctx, caseID, "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "analyst", entries[0].Operator)
	assert.Equal(t, 1, forward.count())
}

func TestWrite_RollsBackOnError(t *testing.T) {
	forward := &recordingSink{}
	ws := newWorkspace(t, WithForwardSink(forward))
	ctx := context.Background()
	boom := errors.New("boom")

	var caseID string
	err := ws.Write(ctx, "create case", func(ctx context.Context) error {
		c, err := cases.NewRepository(ws.DB(), zap.NewNop()).Create(ctx, &models.Case{Name: "rolled back"})
		require.NoError(t, err)
		caseID = c.ID
		require.NoError(t, ws.Audit(ctx, models.ActionCaseCreated, c.ID, "created", nil))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = cases.NewRepository(ws.DB(), zap.NewNop()).Get(ctx, caseID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	entries, err := auditlog.NewRepository(ws.DB(), zap.NewNop()).ListByCase(ctx, caseID, "", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, forward.count())
}

func TestWrite_NestedJoinsOuter(t *testing.T) {
	ws := newWorkspace(t)
	ctx := context.Background()
	repo := cases.NewRepository(ws.DB(), zap.NewNop())

	var innerID string
	err := ws.Write(ctx, "outer", func(ctx context.Context) error {
		return ws.Write(ctx, "inner", func(ctx context.Context) error {
			c, err := repo.Create(ctx, &models.Case{Name: "inner"})
			if err != nil {
				return err
			}
			innerID = c.ID
			return nil
		})
	})
	require.NoError(t, err)

	_, err = repo.Get(ctx, innerID)
	assert.NoError(t, err)

	err = ws.Write(ctx, "outer", func(ctx context.Context) error {
		if err := ws.Write(ctx, "inner", func(ctx context.Context) error {
			c, err := repo.Create(ctx, &models.Case{Name: "discarded"})
			if err != nil {
				return err
			}
			innerID = c.ID
			return nil
		}); err != nil {
			return err
		}
		return errors.New("outer fails after inner succeeded")
	})
	require.Error(t, err)

	_, err = repo.Get(ctx, innerID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "inner work is rolled back with the outer write")
}

func TestWrite_SerializesWriters(t *testing.T) {
	ws := newWorkspace(t)
	ctx := context.Background()

	var mu sync.Mutex
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ws.Write(ctx, "concurrent", func(ctx context.Context) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestWrite_CancelledWhileWaiting(t *testing.T) {
	ws := newWorkspace(t)

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = ws.Write(context.Background(), "holder", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := ws.Write(ctx, "waiter", func(ctx context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

func TestRecord_OutsideWriteFailsOnStoreError(t *testing.T) {
	store := &recordingSink{err: errors.New("disk full")}
	forward := &recordingSink{}
	ws := newWorkspace(t, WithStoreSink(store), WithForwardSink(forward))

	err := ws.Audit(context.Background(), models.ActionTimelineSearched, "case-1", "search", map[string]any{"q": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, forward.count())
}

func TestRecord_ForwardFailureDoesNotFailWrite(t *testing.T) {
	forward := &recordingSink{err: errors.New("broker down")}
	ws := newWorkspace(t, WithForwardSink(audit.MultiSink{forward}))

	err := ws.Write(context.Background(), "audit only", func(ctx context.Context) error {
		return ws.Audit(ctx, models.ActionCaseCreated, "", "created", nil)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, forward.count())
}
