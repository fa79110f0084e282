// Package graph defines the store contract the crawl engine and query
// service rely on, plus the Neo4j-backed and in-memory implementations.
package graph

import (
	"context"
	"errors"

	"social-graph-crawler/internal/models"
)

// ErrNotFound is returned when a node, edge endpoint, or path does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when concurrent upserts on the same identity key
// failed to converge. Should not surface given merge-on-upsert semantics;
// when it does the caller treats it as fatal.
var ErrConflict = errors.New("graph store conflict")

// Store persists the entity-relationship graph. Upserts deduplicate on the
// identity keys: (source, entity_type, entity_id) for nodes and
// (source_node_id, target_node_id, relationship_type) for edges. Metadata
// merges by shallow overwrite; concurrent upserts racing on one key must
// converge to a single stored record.
type Store interface {
	// UpsertNode inserts or merges a node, returning the stored record and
	// whether it was newly created.
	UpsertNode(ctx context.Context, node models.Node) (models.Node, bool, error)
	// UpsertEdge inserts or merges an edge. Both endpoints must already be
	// stored nodes; re-discovery averages the weight and merges metadata.
	UpsertEdge(ctx context.Context, edge models.Edge) (models.Edge, bool, error)
	// GetNode fetches a node by its generated ID.
	GetNode(ctx context.Context, id string) (models.Node, error)
	// GetNodeByIdentity fetches a node by its identity key.
	GetNodeByIdentity(ctx context.Context, source models.Source, entityType, entityID string) (models.Node, error)
	// GetEdges returns the edges touching a node, filtered by direction.
	GetEdges(ctx context.Context, nodeID string, direction models.Direction) ([]models.Edge, error)
	// Stats aggregates totals, per-source/type breakdowns, and degree summary.
	Stats(ctx context.Context) (models.GraphStats, error)
}
