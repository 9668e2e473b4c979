// Package graph builds the association graph of a case: who communicated with
// whom, weighted by the number of message events they share. The graph is
// computed from the presence index on every call and never stored.
package graph

import (
	"context"
	"sort"
	"time"

	"github.com/Ramsey-B/thistle/internal/repositories/cases"
	"github.com/Ramsey-B/thistle/internal/repositories/presence"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/Ramsey-B/thistle/pkg/workspace"
	"go.uber.org/zap"
)

// DefaultMinEdgeWeight drops pairs seen in a single message.
const DefaultMinEdgeWeight = 2

type NodeKind string

const (
	NodeKindTarget       NodeKind = "Target"
	NodeKindIdentifier   NodeKind = "Identifier"
	NodeKindGlobalPerson NodeKind = "GlobalPerson"
)

// kindOrder sorts persons before bare identifiers.
var kindOrder = map[NodeKind]int{
	NodeKindGlobalPerson: 0,
	NodeKindTarget:       1,
	NodeKindIdentifier:   2,
}

type Options struct {
	IncludeIdentifiers  bool `json:"include_identifiers" query:"include_identifiers"`
	GroupByGlobalPerson bool `json:"group_by_global_person" query:"group_by_global_person"`
	MinEdgeWeight       int  `json:"min_edge_weight" query:"min_edge_weight"`
}

type Node struct {
	Key                       string                `json:"key"`
	Kind                      NodeKind              `json:"kind"`
	ID                        string                `json:"id"`
	Label                     string                `json:"label"`
	IdentifierType            models.IdentifierType `json:"identifier_type,omitempty"`
	ContributingTargetIDs     []string              `json:"contributing_target_ids,omitempty"`
	ContributingIdentifierIDs []string              `json:"contributing_identifier_ids"`
	EventCount                int                   `json:"event_count"`
}

// Edge is an unordered pair; SourceKey sorts before TargetKey.
type Edge struct {
	SourceKey           string     `json:"source_key"`
	TargetKey           string     `json:"target_key"`
	Weight              int        `json:"weight"`
	DistinctThreadCount int        `json:"distinct_thread_count"`
	DistinctEventCount  int        `json:"distinct_event_count"`
	LastSeenUTC         *time.Time `json:"last_seen_utc,omitempty"`
}

type Graph struct {
	CaseID string `json:"case_id"`
	Nodes  []Node `json:"nodes"`
	Edges  []Edge `json:"edges"`
}

type Builder struct {
	logger       *zap.Logger
	presenceRepo *presence.Repository
	caseRepo     *cases.Repository
}

func NewBuilder(ws *workspace.Workspace) *Builder {
	return &Builder{
		logger:       ws.Logger(),
		presenceRepo: presence.NewRepository(ws.DB(), ws.Logger()),
		caseRepo:     cases.NewRepository(ws.DB(), ws.Logger()),
	}
}

// nodeState accumulates one node while participants are scanned.
type nodeState struct {
	node        Node
	targets     map[string]bool
	identifiers map[string]bool
	events      map[string]bool
}

type edgeState struct {
	weight   int
	threads  map[string]bool
	events   map[string]bool
	lastSeen *time.Time
}

type pairKey struct {
	a, b string
}

// Build aggregates the case's presence index into a graph. It reads only, takes
// no write gate and stops when ctx is cancelled.
func (b *Builder) Build(ctx context.Context, caseID string, opts Options) (*Graph, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Builder.Build")
	defer span.End()

	if opts.MinEdgeWeight <= 0 {
		opts.MinEdgeWeight = DefaultMinEdgeWeight
	}

	if _, err := b.caseRepo.Get(ctx, caseID); err != nil {
		return nil, err
	}

	participants, err := b.presenceRepo.ListGraphParticipants(ctx, caseID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	nodes := map[string]*nodeState{}
	edges := map[pairKey]*edgeState{}

	// Participants arrive ordered by message, so each message is aggregated as
	// soon as the next one starts.
	var (
		currentEvent string
		thread       *string
		at           *time.Time
		senders      = map[string]bool{}
		recipients   = map[string]bool{}
	)
	flush := func() {
		for s := range senders {
			for r := range recipients {
				if s == r {
					continue
				}
				key := pairKey{a: s, b: r}
				if r < s {
					key = pairKey{a: r, b: s}
				}
				edge, ok := edges[key]
				if !ok {
					edge = &edgeState{threads: map[string]bool{}, events: map[string]bool{}}
					edges[key] = edge
				}
				if edge.events[currentEvent] {
					continue
				}
				edge.weight++
				edge.events[currentEvent] = true
				if thread != nil && *thread != "" {
					edge.threads[*thread] = true
				}
				if at != nil && (edge.lastSeen == nil || at.After(*edge.lastSeen)) {
					seen := *at
					edge.lastSeen = &seen
				}
			}
		}
		senders = map[string]bool{}
		recipients = map[string]bool{}
	}

	for _, p := range participants {
		if p.MessageEventID != currentEvent {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			flush()
			currentEvent = p.MessageEventID
			thread = p.ThreadID
			at = nil
			if p.Timestamp != nil {
				t := p.Timestamp.UTC()
				at = &t
			}
		}

		state := b.nodeFor(nodes, p, opts)
		if state == nil {
			continue
		}
		state.events[p.MessageEventID] = true

		switch p.Role {
		case models.ParticipantRoleSender:
			senders[state.node.Key] = true
		case models.ParticipantRoleRecipient:
			recipients[state.node.Key] = true
		}
	}
	flush()

	graph := &Graph{CaseID: caseID, Nodes: []Node{}, Edges: []Edge{}}
	connected := map[string]bool{}
	for key, e := range edges {
		if e.weight < opts.MinEdgeWeight {
			continue
		}
		connected[key.a] = true
		connected[key.b] = true
		graph.Edges = append(graph.Edges, Edge{
			SourceKey:           key.a,
			TargetKey:           key.b,
			Weight:              e.weight,
			DistinctThreadCount: len(e.threads),
			DistinctEventCount:  len(e.events),
			LastSeenUTC:         e.lastSeen,
		})
	}

	for key, state := range nodes {
		if !connected[key] && !opts.IncludeIdentifiers {
			continue
		}
		node := state.node
		node.ContributingIdentifierIDs = sortedKeys(state.identifiers)
		if node.Kind != NodeKindIdentifier {
			node.ContributingTargetIDs = sortedKeys(state.targets)
		}
		node.EventCount = len(state.events)
		graph.Nodes = append(graph.Nodes, node)
	}

	sort.Slice(graph.Nodes, func(i, j int) bool {
		a, b := graph.Nodes[i], graph.Nodes[j]
		if a.Kind != b.Kind {
			return kindOrder[a.Kind] < kindOrder[b.Kind]
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.Key < b.Key
	})
	sort.Slice(graph.Edges, func(i, j int) bool {
		a, b := graph.Edges[i], graph.Edges[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.SourceKey != b.SourceKey {
			return a.SourceKey < b.SourceKey
		}
		return a.TargetKey < b.TargetKey
	})

	logging.WithContext(ctx, b.logger).Debug("Built association graph",
		zap.Int("participants", len(participants)),
		zap.Int("nodes", len(graph.Nodes)),
		zap.Int("edges", len(graph.Edges)))
	return graph, nil
}

// nodeFor returns the node a participant resolves to, creating it on first
// sight. Identifier-only participants are skipped unless opts.IncludeIdentifiers.
func (b *Builder) nodeFor(nodes map[string]*nodeState, p presence.GraphParticipant, opts Options) *nodeState {
	var node Node
	switch {
	case p.TargetID == nil:
		if !opts.IncludeIdentifiers {
			return nil
		}
		node = Node{
			Key:            "identifier:" + p.IdentifierID,
			Kind:           NodeKindIdentifier,
			ID:             p.IdentifierID,
			Label:          p.IdentifierValue,
			IdentifierType: p.IdentifierType,
		}
	case opts.GroupByGlobalPerson && p.GlobalEntityID != nil:
		label := *p.GlobalEntityID
		if p.GlobalDisplayName != nil {
			label = *p.GlobalDisplayName
		}
		node = Node{
			Key:   "global:" + *p.GlobalEntityID,
			Kind:  NodeKindGlobalPerson,
			ID:    *p.GlobalEntityID,
			Label: label,
		}
	default:
		label := *p.TargetID
		if p.TargetDisplayName != nil {
			label = *p.TargetDisplayName
		}
		node = Node{
			Key:   "target:" + *p.TargetID,
			Kind:  NodeKindTarget,
			ID:    *p.TargetID,
			Label: label,
		}
	}

	state, ok := nodes[node.Key]
	if !ok {
		state = &nodeState{
			node:        node,
			targets:     map[string]bool{},
			identifiers: map[string]bool{},
			events:      map[string]bool{},
		}
		nodes[node.Key] = state
	}
	if p.TargetID != nil {
		state.targets[*p.TargetID] = true
	}
	state.identifiers[p.IdentifierID] = true
	return state
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
