// Package metrics provides Prometheus metrics for the Thistle service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorkspaceWritesTotal tracks gated workspace writes by action and outcome
	WorkspaceWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "workspace",
			Name:      "writes_total",
			Help:      "Total number of workspace writes by action and status",
		},
		[]string{"action", "status"},
	)

	// WorkspaceGateWait tracks time spent waiting for the write gate
	WorkspaceGateWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "thistle",
			Subsystem: "workspace",
			Name:      "gate_wait_seconds",
			Help:      "Time spent waiting for the workspace write gate in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// IdentifierConflictsTotal tracks identifier conflicts surfaced to callers
	IdentifierConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "registry",
			Name:      "conflicts_total",
			Help:      "Total number of identifier conflicts returned to callers",
		},
		[]string{"kind"},
	)

	// PresenceRebuildsTotal tracks presence index rebuilds and refreshes
	PresenceRebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "presence",
			Name:      "rebuilds_total",
			Help:      "Total number of presence index rebuilds by scope",
		},
		[]string{"scope"},
	)

	// PresenceRowsWritten tracks presence rows written by rebuilds
	PresenceRowsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "presence",
			Name:      "rows_written_total",
			Help:      "Total number of presence rows written",
		},
	)

	// TimelineSearchesTotal tracks timeline searches, split by whether the substring fallback ran
	TimelineSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "timeline",
			Name:      "searches_total",
			Help:      "Total number of timeline searches",
		},
		[]string{"fallback"},
	)

	// TimelineSearchDuration tracks timeline search duration
	TimelineSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "thistle",
			Subsystem: "timeline",
			Name:      "search_duration_seconds",
			Help:      "Duration of timeline searches in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// AuditForwardedTotal tracks audit entries handed to the forward sink
	AuditForwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "audit",
			Name:      "forwarded_total",
			Help:      "Total number of audit entries forwarded after commit",
		},
		[]string{"status"},
	)
)

// RecordWorkspaceWrite records a finished workspace write
func RecordWorkspaceWrite(action, status string, gateWaitSeconds float64) {
	WorkspaceWritesTotal.WithLabelValues(action, status).Inc()
	WorkspaceGateWait.Observe(gateWaitSeconds)
}

// RecordConflict records an identifier conflict returned to a caller
func RecordConflict(kind string) {
	IdentifierConflictsTotal.WithLabelValues(kind).Inc()
}

// RecordPresenceRebuild records a presence rebuild and the rows it wrote
func RecordPresenceRebuild(scope string, rows int) {
	PresenceRebuildsTotal.WithLabelValues(scope).Inc()
	PresenceRowsWritten.Add(float64(rows))
}

// RecordTimelineSearch records a timeline search
func RecordTimelineSearch(usedFallback bool, durationSeconds float64) {
	fallback := "false"
	if usedFallback {
		fallback = "true"
	}
	TimelineSearchesTotal.WithLabelValues(fallback).Inc()
	TimelineSearchDuration.Observe(durationSeconds)
}

// RecordAuditForward records the outcome of forwarding one audit entry
func RecordAuditForward(status string) {
	AuditForwardedTotal.WithLabelValues(status).Inc()
}
