package testhelpers

import (
	"context"
	"testing"
	"time"

	"github.com/Ramsey-B/thistle/internal/repositories/cases"
	"github.com/Ramsey-B/thistle/internal/repositories/evidenceitem"
	"github.com/Ramsey-B/thistle/internal/repositories/messageevent"
	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// CreateCase inserts a case named name.
func CreateCase(t *testing.T, conn database.DB, name string) *models.Case {
	t.Helper()
	c, err := cases.NewRepository(conn, zap.NewNop()).Create(context.Background(), &models.Case{Name: name})
	require.NoError(t, err)
	return c
}

// CreateEvidenceItem inserts an evidence item in caseID.
func CreateEvidenceItem(t *testing.T, conn database.DB, caseID, name string) *models.EvidenceItem {
	t.Helper()
	item, err := evidenceitem.NewRepository(conn, zap.NewNop()).Create(context.Background(), &models.EvidenceItem{
		CaseID:      caseID,
		DisplayName: name,
		SourcePath:  "/evidence/" + name,
	})
	require.NoError(t, err)
	return item
}

// Message describes a message fixture.
type Message struct {
	ThreadID      string
	At            *time.Time
	Direction     *string
	SenderRaw     string
	RecipientsRaw string
	Body          string
}

// CreateMessage inserts a message event.
func CreateMessage(t *testing.T, conn database.DB, caseID, evidenceItemID string, m Message) *models.MessageEvent {
	t.Helper()
	event := &models.MessageEvent{
		CaseID:              caseID,
		EvidenceItemID:      evidenceItemID,
		Timestamp:           database.TimestampPtr(m.At),
		Direction:           m.Direction,
		SenderRaw:           m.SenderRaw,
		RecipientsRaw:       m.RecipientsRaw,
		Body:                m.Body,
		SourceLocator:       "sms.db#1",
		IngestModuleVersion: "test-1",
	}
	if m.ThreadID != "" {
		thread := m.ThreadID
		event.ThreadID = &thread
	}
	created, err := messageevent.NewRepository(conn, zap.NewNop()).Create(context.Background(), event)
	require.NoError(t, err)
	return created
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
