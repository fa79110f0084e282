package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"social-graph-crawler/internal/models"
)

// MemoryStore is an in-process Store with the same merge semantics as the
// Neo4j implementation. Used in tests and single-node development.
type MemoryStore struct {
	mu         sync.RWMutex
	nodesByID  map[string]models.Node
	nodesByKey map[string]string // identity key -> node ID
	edgesByID  map[string]models.Edge
	edgesByKey map[string]string // identity key -> edge ID
	outEdgeIDs map[string][]string
	inEdgeIDs  map[string][]string
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodesByID:  make(map[string]models.Node),
		nodesByKey: make(map[string]string),
		edgesByID:  make(map[string]models.Edge),
		edgesByKey: make(map[string]string),
		outEdgeIDs: make(map[string][]string),
		inEdgeIDs:  make(map[string][]string),
	}
}

// UpsertNode inserts or merges on the (source, entity_type, entity_id) key.
func (s *MemoryStore) UpsertNode(_ context.Context, node models.Node) (models.Node, bool, error) {
	if node.Source == "" || node.EntityType == "" || node.EntityID == "" {
		return models.Node{}, false, fmt.Errorf("upsert node: incomplete identity key %q", node.IdentityKey())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := node.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if id, ok := s.nodesByKey[node.IdentityKey()]; ok {
		existing := s.nodesByID[id]
		if node.DisplayName != "" {
			existing.DisplayName = node.DisplayName
		}
		existing.Metadata = models.MergeMetadata(existing.Metadata, node.Metadata)
		existing.UpdatedAt = now
		s.nodesByID[id] = existing
		return existing, false, nil
	}

	stored := node
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.Metadata = models.MergeMetadata(nil, node.Metadata)
	s.nodesByID[stored.ID] = stored
	s.nodesByKey[stored.IdentityKey()] = stored.ID
	return stored, true, nil
}

// UpsertEdge inserts or merges on (source_node_id, target_node_id, type);
// re-discovery averages the weight with the stored one and merges metadata.
func (s *MemoryStore) UpsertEdge(_ context.Context, edge models.Edge) (models.Edge, bool, error) {
	if edge.Weight < 0 {
		return models.Edge{}, false, fmt.Errorf("upsert edge: negative weight %f", edge.Weight)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodesByID[edge.SourceNodeID]; !ok {
		return models.Edge{}, false, fmt.Errorf("upsert edge: source node %s: %w", edge.SourceNodeID, ErrNotFound)
	}
	if _, ok := s.nodesByID[edge.TargetNodeID]; !ok {
		return models.Edge{}, false, fmt.Errorf("upsert edge: target node %s: %w", edge.TargetNodeID, ErrNotFound)
	}

	if id, ok := s.edgesByKey[edge.IdentityKey()]; ok {
		existing := s.edgesByID[id]
		existing.Weight = (existing.Weight + edge.Weight) / 2
		existing.Metadata = models.MergeMetadata(existing.Metadata, edge.Metadata)
		s.edgesByID[id] = existing
		return existing, false, nil
	}

	stored := edge
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.Metadata = models.MergeMetadata(nil, edge.Metadata)
	s.edgesByID[stored.ID] = stored
	s.edgesByKey[stored.IdentityKey()] = stored.ID
	s.outEdgeIDs[stored.SourceNodeID] = append(s.outEdgeIDs[stored.SourceNodeID], stored.ID)
	s.inEdgeIDs[stored.TargetNodeID] = append(s.inEdgeIDs[stored.TargetNodeID], stored.ID)
	return stored, true, nil
}

// GetNode fetches a node by generated ID.
func (s *MemoryStore) GetNode(_ context.Context, id string) (models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodesByID[id]
	if !ok {
		return models.Node{}, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return node, nil
}

// GetNodeByIdentity fetches a node by its identity key.
func (s *MemoryStore) GetNodeByIdentity(_ context.Context, source models.Source, entityType, entityID string) (models.Node, error) {
	key := models.Node{Source: source, EntityType: entityType, EntityID: entityID}.IdentityKey()
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nodesByKey[key]
	if !ok {
		return models.Node{}, fmt.Errorf("node %s: %w", key, ErrNotFound)
	}
	return s.nodesByID[id], nil
}

// GetEdges returns edges touching nodeID in the given direction, in
// insertion order.
func (s *MemoryStore) GetEdges(_ context.Context, nodeID string, direction models.Direction) ([]models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodesByID[nodeID]; !ok {
		return nil, fmt.Errorf("node %s: %w", nodeID, ErrNotFound)
	}

	var ids []string
	switch direction {
	case models.DirectionOut:
		ids = s.outEdgeIDs[nodeID]
	case models.DirectionIn:
		ids = s.inEdgeIDs[nodeID]
	default:
		ids = append(append([]string{}, s.outEdgeIDs[nodeID]...), s.inEdgeIDs[nodeID]...)
	}

	edges := make([]models.Edge, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue // self-loops appear in both lists
		}
		seen[id] = true
		edges = append(edges, s.edgesByID[id])
	}
	return edges, nil
}

// Stats aggregates totals and per-source/type breakdowns.
func (s *MemoryStore) Stats(_ context.Context) (models.GraphStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.GraphStats{
		TotalNodes:    int64(len(s.nodesByID)),
		TotalEdges:    int64(len(s.edgesByID)),
		NodesByType:   make(map[string]int64),
		NodesBySource: make(map[string]int64),
		EdgesByType:   make(map[string]int64),
	}
	for _, node := range s.nodesByID {
		stats.NodesByType[node.EntityType]++
		stats.NodesBySource[string(node.Source)]++
	}
	for _, edge := range s.edgesByID {
		stats.EdgesByType[edge.RelationshipType]++
	}
	if stats.TotalNodes > 0 {
		stats.AverageDegree = 2 * float64(stats.TotalEdges) / float64(stats.TotalNodes)
	}
	if stats.TotalNodes > 1 {
		maxEdges := float64(stats.TotalNodes) * float64(stats.TotalNodes-1) / 2
		stats.Density = float64(stats.TotalEdges) / maxEdges
	}
	return stats, nil
}
