package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTimelineSearch(t *testing.T) {
	before := testutil.ToFloat64(TimelineSearchesTotal.WithLabelValues("true"))
	RecordTimelineSearch(true, 0.01)
	assert.Equal(t, before+1, testutil.ToFloat64(TimelineSearchesTotal.WithLabelValues("true")))
}

func TestRecordPresenceRebuild(t *testing.T) {
	rebuilds := testutil.ToFloat64(PresenceRebuildsTotal.WithLabelValues("case"))
	rows := testutil.ToFloat64(PresenceRowsWritten)
	RecordPresenceRebuild("case", 7)
	assert.Equal(t, rebuilds+1, testutil.ToFloat64(PresenceRebuildsTotal.WithLabelValues("case")))
	assert.Equal(t, rows+7, testutil.ToFloat64(PresenceRowsWritten))
}

func TestRecordWorkspaceWrite(t *testing.T) {
	before := testutil.ToFloat64(WorkspaceWritesTotal.WithLabelValues("create case", "committed"))
	RecordWorkspaceWrite("create case", "committed", 0)
	assert.Equal(t, before+1, testutil.ToFloat64(WorkspaceWritesTotal.WithLabelValues("create case", "committed")))
}
