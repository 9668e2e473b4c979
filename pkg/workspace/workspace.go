// Package workspace is the handle every service is built from: the database,
// the logger, the audit sinks and the single-writer gate for one workspace.
package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/Ramsey-B/thistle/db"
	"github.com/Ramsey-B/thistle/pkg/audit"
	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type gateKey struct{}

// writeState travels on the context of a running Write so nested writes join it
// and audit entries can be forwarded once it commits.
type writeState struct {
	ws      *Workspace
	pending []models.AuditEntry
}

type Workspace struct {
	db     database.DB
	logger *zap.Logger
	// store receives entries inside the write transaction.
	store audit.Sink
	// forward receives entries after the transaction commits.
	forward audit.Sink
	gate    *semaphore.Weighted
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithForwardSink adds a sink that receives audit entries after commit, such as
// Kafka or the log.
func WithForwardSink(sink audit.Sink) Option {
	return func(w *Workspace) {
		w.forward = sink
	}
}

// WithStoreSink replaces the transactional audit sink.
func WithStoreSink(sink audit.Sink) Option {
	return func(w *Workspace) {
		w.store = sink
	}
}

// New wraps an open database. The default transactional sink is the audit_log table.
func New(conn database.DB, logger *zap.Logger, opts ...Option) *Workspace {
	w := &Workspace{
		db:     conn,
		logger: logger,
		store:  audit.NewStoreSink(conn, logger),
		gate:   semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open migrates the database at cfg.Path and returns a workspace on it.
func Open(ctx context.Context, cfg database.Config, logger *zap.Logger, opts ...Option) (*Workspace, error) {
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		Source: db.SQLite,
		Dir:    db.SQLiteDir,
	})
	if err := migrations.Migrate(cfg); err != nil {
		return nil, fmt.Errorf("failed to migrate workspace: %w", err)
	}

	conn, err := database.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(conn, logger, opts...), nil
}

func (w *Workspace) DB() database.DB {
	return w.db
}

func (w *Workspace) Logger() *zap.Logger {
	return w.logger
}

func (w *Workspace) Close() error {
	return w.db.Close()
}

func (w *Workspace) state(ctx context.Context) *writeState {
	state, ok := ctx.Value(gateKey{}).(*writeState)
	if !ok || state.ws != w {
		return nil
	}
	return state
}

// Write runs fn as the workspace's single writer: it waits for the gate (giving
// up when ctx is cancelled), opens a transaction carried on the context and
// commits when fn succeeds. Any error, including cancellation seen by fn, rolls
// everything back. A Write started inside another Write on the same workspace
// joins the outer one.
func (w *Workspace) Write(ctx context.Context, action string, fn func(ctx context.Context) error) error {
	if w.state(ctx) != nil && database.InTx(ctx) {
		return fn(ctx)
	}

	ctx, span := tracing.StartSpan(ctx, "workspace.Workspace.Write")
	defer span.End()

	waitStart := time.Now()
	if err := w.gate.Acquire(ctx, 1); err != nil {
		metrics.RecordWorkspaceWrite(action, "gate_cancelled", time.Since(waitStart).Seconds())
		return fmt.Errorf("waiting for workspace write gate (%s): %w", action, err)
	}
	defer w.gate.Release(1)
	waited := time.Since(waitStart).Seconds()

	state := &writeState{ws: w}
	ctx = context.WithValue(ctx, gateKey{}, state)

	txCtx, tx, err := w.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(txCtx)

	if err := fn(txCtx); err != nil {
		tracing.RecordError(span, err)
		logging.WithContext(ctx, w.logger).Debug("Workspace write rolled back", zap.String("action", action), zap.Error(err))
		metrics.RecordWorkspaceWrite(action, "rolled_back", waited)
		return err
	}

	if err := ctx.Err(); err != nil {
		metrics.RecordWorkspaceWrite(action, "rolled_back", waited)
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		metrics.RecordWorkspaceWrite(action, "commit_failed", waited)
		return fmt.Errorf("failed to commit %s: %w", action, err)
	}
	metrics.RecordWorkspaceWrite(action, "committed", waited)

	w.forwardEntries(ctx, state.pending)
	return nil
}

// Record writes an audit entry. Inside Write it joins the transaction and is
// forwarded after commit; outside it is stored and forwarded immediately.
func (w *Workspace) Record(ctx context.Context, entry models.AuditEntry) error {
	if err := w.store.Record(ctx, entry); err != nil {
		return fmt.Errorf("failed to record audit entry %s: %w", entry.ActionType, err)
	}

	if state := w.state(ctx); state != nil {
		state.pending = append(state.pending, entry)
		return nil
	}

	w.forwardEntries(ctx, []models.AuditEntry{entry})
	return nil
}

// Audit builds an entry with audit.NewEntry and records it.
func (w *Workspace) Audit(ctx context.Context, actionType, caseID, summary string, payload any) error {
	entry, err := audit.NewEntry(ctx, actionType, caseID, summary, payload)
	if err != nil {
		return err
	}
	return w.Record(ctx, entry)
}

// forwardEntries hands committed entries to the forward sink. The durable copy
// is already in audit_log, so a forwarding failure is logged rather than returned.
func (w *Workspace) forwardEntries(ctx context.Context, entries []models.AuditEntry) {
	if w.forward == nil {
		return
	}
	for _, entry := range entries {
		if err := w.forward.Record(ctx, entry); err != nil {
			metrics.RecordAuditForward("failed")
			logging.WithContext(ctx, w.logger).Warn("Failed to forward audit entry",
				zap.String("audit_id", entry.ID), zap.String("action_type", entry.ActionType), zap.Error(err))
			continue
		}
		metrics.RecordAuditForward("forwarded")
	}
}
