// Package presence maintains target_message_presence, the derived index that maps
// message events to the targets whose identifiers took part in them.
package presence

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/thistle/internal/repositories/cases"
	"github.com/Ramsey-B/thistle/internal/repositories/evidenceitem"
	"github.com/Ramsey-B/thistle/internal/repositories/presence"
	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/Ramsey-B/thistle/pkg/audit"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/Ramsey-B/thistle/pkg/workspace"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of evidence items derived per step of a rebuild.
const DefaultBatchSize = 25

// RebuildResult summarises a rebuild or refresh.
type RebuildResult struct {
	CaseID        string `json:"case_id"`
	EvidenceItems int    `json:"evidence_items"`
	Upserted      int64  `json:"upserted"`
	Removed       int64  `json:"removed"`
}

type Indexer struct {
	ws           *workspace.Workspace
	logger       *zap.Logger
	presenceRepo *presence.Repository
	caseRepo     *cases.Repository
	evidenceRepo *evidenceitem.Repository
	batchSize    int
}

func NewIndexer(ws *workspace.Workspace) *Indexer {
	return &Indexer{
		ws:           ws,
		logger:       ws.Logger(),
		presenceRepo: presence.NewRepository(ws.DB(), ws.Logger()),
		caseRepo:     cases.NewRepository(ws.DB(), ws.Logger()),
		evidenceRepo: evidenceitem.NewRepository(ws.DB(), ws.Logger()),
		batchSize:    DefaultBatchSize,
	}
}

// WithBatchSize sets how many evidence items a rebuild derives between
// cancellation checks.
func (i *Indexer) WithBatchSize(n int) *Indexer {
	if n > 0 {
		i.batchSize = n
	}
	return i
}

// RebuildCase recomputes every presence row of a case in one transaction. A
// cancelled context between batches rolls the whole rebuild back.
func (i *Indexer) RebuildCase(ctx context.Context, caseID string) (*RebuildResult, error) {
	ctx, span := tracing.StartSpan(ctx, "presence.Indexer.RebuildCase")
	defer span.End()

	result := &RebuildResult{CaseID: caseID}
	err := i.ws.Write(ctx, "rebuild presence", func(ctx context.Context) error {
		if _, err := i.caseRepo.Get(ctx, caseID); err != nil {
			return err
		}

		removed, err := i.presenceRepo.DeleteStale(ctx, presence.Scope{CaseID: caseID})
		if err != nil {
			return err
		}
		result.Removed = removed

		evidenceIDs, err := i.evidenceRepo.ListIDsByCase(ctx, caseID)
		if err != nil {
			return err
		}
		result.EvidenceItems = len(evidenceIDs)

		for start := 0; start < len(evidenceIDs); start += i.batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+i.batchSize, len(evidenceIDs))
			upserted, err := i.presenceRepo.Derive(ctx, presence.Scope{CaseID: caseID, EvidenceItemIDs: evidenceIDs[start:end]})
			if err != nil {
				return err
			}
			result.Upserted += upserted
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := i.presenceRepo.SyncParticipantTargets(ctx, presence.Scope{CaseID: caseID}); err != nil {
			return err
		}

		return i.ws.Audit(ctx, models.ActionPresenceRebuilt, caseID,
			fmt.Sprintf("Rebuilt presence index over %d evidence items", result.EvidenceItems), result)
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	metrics.RecordPresenceRebuild("case", int(result.Upserted))
	logging.WithContext(ctx, i.logger).Info("Rebuilt presence index",
		zap.Int("evidence_items", result.EvidenceItems),
		zap.Int64("upserted", result.Upserted),
		zap.Int64("removed", result.Removed))
	return result, nil
}

// RefreshForEvidence re-derives the rows of one evidence item.
func (i *Indexer) RefreshForEvidence(ctx context.Context, caseID, evidenceItemID string) (*RebuildResult, error) {
	ctx, span := tracing.StartSpan(ctx, "presence.Indexer.RefreshForEvidence")
	defer span.End()

	var result *RebuildResult
	err := i.ws.Write(ctx, "refresh presence for evidence", func(ctx context.Context) error {
		if _, err := i.evidenceRepo.Get(ctx, caseID, evidenceItemID); err != nil {
			return err
		}

		var err error
		result, err = i.refresh(ctx, presence.Scope{CaseID: caseID, EvidenceItemIDs: []string{evidenceItemID}})
		if err != nil {
			return err
		}
		result.EvidenceItems = 1

		entry, err := audit.NewEntry(ctx, models.ActionPresenceRefreshed, caseID, "Refreshed presence index for evidence item", result)
		if err != nil {
			return err
		}
		entry.EvidenceItemID = &evidenceItemID
		return i.ws.Record(ctx, entry)
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	metrics.RecordPresenceRebuild("evidence", int(result.Upserted))
	return result, nil
}

// RefreshForIdentifier re-derives the rows matched through one identifier. Registry
// mutations call it inside their own write, so it joins that transaction. An
// identifier that is no longer linked is not rejected: its rows are cleared. Use
// Verify to detect a refresh that was missed.
func (i *Indexer) RefreshForIdentifier(ctx context.Context, caseID, identifierID string) (*RebuildResult, error) {
	ctx, span := tracing.StartSpan(ctx, "presence.Indexer.RefreshForIdentifier")
	defer span.End()

	var result *RebuildResult
	err := i.ws.Write(ctx, "refresh presence for identifier", func(ctx context.Context) error {
		var err error
		result, err = i.refresh(ctx, presence.Scope{CaseID: caseID, IdentifierID: identifierID})
		return err
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	metrics.RecordPresenceRebuild("identifier", int(result.Upserted))
	return result, nil
}

func (i *Indexer) refresh(ctx context.Context, scope presence.Scope) (*RebuildResult, error) {
	removed, err := i.presenceRepo.DeleteStale(ctx, scope)
	if err != nil {
		return nil, err
	}
	upserted, err := i.presenceRepo.Derive(ctx, scope)
	if err != nil {
		return nil, err
	}
	if err := i.presenceRepo.SyncParticipantTargets(ctx, scope); err != nil {
		return nil, err
	}
	return &RebuildResult{CaseID: scope.CaseID, Upserted: upserted, Removed: removed}, nil
}

// Verify compares the index with the current links and returns an
// *apperrors.IndexInconsistencyError listing every difference.
func (i *Indexer) Verify(ctx context.Context, caseID string) error {
	ctx, span := tracing.StartSpan(ctx, "presence.Indexer.Verify")
	defer span.End()

	mismatches, err := i.presenceRepo.FindMismatches(ctx, caseID)
	if err != nil {
		return err
	}
	if len(mismatches) == 0 {
		return nil
	}

	logging.WithContext(ctx, i.logger).Warn("Presence index is inconsistent", zap.Int("mismatches", len(mismatches)))
	return &apperrors.IndexInconsistencyError{CaseID: caseID, Mismatches: mismatches}
}

// ListForMessage returns the presence rows of one message event.
func (i *Indexer) ListForMessage(ctx context.Context, caseID, messageEventID string) ([]models.PresenceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "presence.Indexer.ListForMessage")
	defer span.End()

	return i.presenceRepo.ListForMessage(ctx, caseID, messageEventID)
}

// ListByCase returns every presence row of a case.
func (i *Indexer) ListByCase(ctx context.Context, caseID string) ([]models.PresenceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "presence.Indexer.ListByCase")
	defer span.End()

	return i.presenceRepo.ListByCase(ctx, caseID)
}
