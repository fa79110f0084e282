package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"social-graph-crawler/internal/models"
)

// SessionRunner abstracts neo4j.SessionWithContext.
type SessionRunner interface {
	ExecuteRead(ctx context.Context, work neo4j.ManagedTransactionWork, configurers ...func(*neo4j.TransactionConfig)) (any, error)
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork, configurers ...func(*neo4j.TransactionConfig)) (any, error)
	Close(ctx context.Context) error
}

// DriverSessioner abstracts neo4j.DriverWithContext.
type DriverSessioner interface {
	NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner
	Close(ctx context.Context) error
}

type neo4jDriver struct {
	driver neo4j.DriverWithContext
}

func (d *neo4jDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner {
	return d.driver.NewSession(ctx, config)
}

func (d *neo4jDriver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

// Neo4jStore persists the graph in Neo4j. Node and edge identity keys map
// to MERGE clauses so concurrent upserts on the same key converge to one
// stored record (last-writer-merges, not overwrite).
type Neo4jStore struct {
	driver DriverSessioner
}

// NewNeo4jStore connects a store to the given Neo4j instance.
func NewNeo4jStore(uri, user, password string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	return &Neo4jStore{driver: &neo4jDriver{driver: driver}}, nil
}

// NewNeo4jStoreWithDriver builds a store over a custom driver (tests).
func NewNeo4jStoreWithDriver(driver DriverSessioner) *Neo4jStore {
	return &Neo4jStore{driver: driver}
}

// Close shuts down the underlying driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

const upsertNodeQuery = `
MERGE (n:Entity {source: $source, entity_type: $entity_type, entity_id: $entity_id})
ON CREATE SET n.id = $id, n.created_at = $now, n.metadata = '{}', n.display_name = '', n.was_created = true
ON MATCH SET n.was_created = false
RETURN n.id AS id, n.display_name AS display_name, n.metadata AS metadata,
       n.created_at AS created_at, n.was_created AS created`

const finishNodeQuery = `
MATCH (n:Entity {id: $id})
SET n.display_name = $display_name, n.metadata = $metadata, n.updated_at = $now
REMOVE n.was_created`

// UpsertNode inserts or merges a node on its identity key.
func (s *Neo4jStore) UpsertNode(ctx context.Context, node models.Node) (models.Node, bool, error) {
	if node.Source == "" || node.EntityType == "" || node.EntityID == "" {
		return models.Node{}, false, fmt.Errorf("upsert node: incomplete identity key %q", node.IdentityKey())
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer s.closeSession(ctx, session)

	now := time.Now().UTC()
	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, upsertNodeQuery, map[string]any{
			"source":      string(node.Source),
			"entity_type": node.EntityType,
			"entity_id":   node.EntityID,
			"id":          uuid.NewString(),
			"now":         now.Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}

		stored := node
		stored.ID = recordString(rec, "id")
		stored.CreatedAt = recordTime(rec, "created_at", now)
		stored.UpdatedAt = now
		created := recordBool(rec, "created")

		if !created && node.DisplayName == "" {
			stored.DisplayName = recordString(rec, "display_name")
		}
		stored.Metadata = models.MergeMetadata(decodeMetadata(recordString(rec, "metadata")), node.Metadata)

		metadata, err := encodeMetadata(stored.Metadata)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx, finishNodeQuery, map[string]any{
			"id":           stored.ID,
			"display_name": stored.DisplayName,
			"metadata":     metadata,
			"now":          now.Format(time.RFC3339Nano),
		}); err != nil {
			return nil, err
		}
		return upsertResult[models.Node]{record: stored, created: created}, nil
	})
	if err != nil {
		return models.Node{}, false, fmt.Errorf("upsert node %s: %w", node.IdentityKey(), err)
	}
	outcome := result.(upsertResult[models.Node])
	return outcome.record, outcome.created, nil
}

const upsertEdgeQueryFmt = `
MATCH (from:Entity {id: $from_id}), (to:Entity {id: $to_id})
MERGE (from)-[r:%s {relationship_type: $rel_type}]->(to)
ON CREATE SET r.id = $id, r.created_at = $now, r.weight = $weight, r.metadata = '{}', r.was_created = true
ON MATCH SET r.weight = (r.weight + $weight) / 2.0, r.was_created = false
RETURN r.id AS id, r.weight AS weight, r.metadata AS metadata,
       r.created_at AS created_at, r.was_created AS created`

const finishEdgeQuery = `
MATCH ()-[r {id: $id}]->()
SET r.metadata = $metadata
REMOVE r.was_created`

// UpsertEdge inserts or merges an edge on (from, to, relationship_type).
// Re-discovery averages the weight with the stored one.
func (s *Neo4jStore) UpsertEdge(ctx context.Context, edge models.Edge) (models.Edge, bool, error) {
	if edge.Weight < 0 {
		return models.Edge{}, false, fmt.Errorf("upsert edge: negative weight %f", edge.Weight)
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer s.closeSession(ctx, session)

	now := time.Now().UTC()
	query := fmt.Sprintf(upsertEdgeQueryFmt, relationTypeLabel(edge.RelationshipType))
	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"from_id":  edge.SourceNodeID,
			"to_id":    edge.TargetNodeID,
			"rel_type": edge.RelationshipType,
			"id":       uuid.NewString(),
			"weight":   edge.Weight,
			"now":      now.Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("edge endpoints %s -> %s: %w", edge.SourceNodeID, edge.TargetNodeID, ErrNotFound)
		}
		rec := records[0]

		stored := edge
		stored.ID = recordString(rec, "id")
		stored.Weight = recordFloat(rec, "weight")
		stored.CreatedAt = recordTime(rec, "created_at", now)
		created := recordBool(rec, "created")
		stored.Metadata = models.MergeMetadata(decodeMetadata(recordString(rec, "metadata")), edge.Metadata)

		metadata, err := encodeMetadata(stored.Metadata)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx, finishEdgeQuery, map[string]any{
			"id":       stored.ID,
			"metadata": metadata,
		}); err != nil {
			return nil, err
		}
		return upsertResult[models.Edge]{record: stored, created: created}, nil
	})
	if err != nil {
		return models.Edge{}, false, fmt.Errorf("upsert edge %s: %w", edge.IdentityKey(), err)
	}
	outcome := result.(upsertResult[models.Edge])
	return outcome.record, outcome.created, nil
}

const nodeFields = `n.id AS id, n.source AS source, n.entity_type AS entity_type,
       n.entity_id AS entity_id, n.display_name AS display_name, n.metadata AS metadata,
       n.created_at AS created_at, n.updated_at AS updated_at`

// GetNode fetches a node by generated ID.
func (s *Neo4jStore) GetNode(ctx context.Context, id string) (models.Node, error) {
	return s.readNode(ctx, "MATCH (n:Entity {id: $id}) RETURN "+nodeFields, map[string]any{"id": id})
}

// GetNodeByIdentity fetches a node by its identity key.
func (s *Neo4jStore) GetNodeByIdentity(ctx context.Context, source models.Source, entityType, entityID string) (models.Node, error) {
	query := "MATCH (n:Entity {source: $source, entity_type: $entity_type, entity_id: $entity_id}) RETURN " + nodeFields
	return s.readNode(ctx, query, map[string]any{
		"source":      string(source),
		"entity_type": entityType,
		"entity_id":   entityID,
	})
}

func (s *Neo4jStore) readNode(ctx context.Context, query string, params map[string]any) (models.Node, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer s.closeSession(ctx, session)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, ErrNotFound
		}
		return nodeFromRecord(records[0]), nil
	})
	if err != nil {
		return models.Node{}, fmt.Errorf("read node: %w", err)
	}
	return result.(models.Node), nil
}

const edgeFields = `r.id AS id, r.relationship_type AS relationship_type, r.weight AS weight,
       r.metadata AS metadata, r.created_at AS created_at, src.id AS source_node_id, dst.id AS target_node_id`

// GetEdges returns edges touching nodeID in the given direction.
func (s *Neo4jStore) GetEdges(ctx context.Context, nodeID string, direction models.Direction) ([]models.Edge, error) {
	if _, err := s.GetNode(ctx, nodeID); err != nil {
		return nil, err
	}

	var queries []string
	if direction == models.DirectionOut || direction == models.DirectionBoth {
		queries = append(queries, "MATCH (src:Entity {id: $id})-[r]->(dst:Entity) RETURN "+edgeFields)
	}
	if direction == models.DirectionIn || direction == models.DirectionBoth {
		queries = append(queries, "MATCH (dst:Entity {id: $id})<-[r]-(src:Entity) RETURN "+edgeFields)
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer s.closeSession(ctx, session)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var edges []models.Edge
		seen := make(map[string]bool)
		for _, query := range queries {
			res, err := tx.Run(ctx, query, map[string]any{"id": nodeID})
			if err != nil {
				return nil, err
			}
			records, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}
			for _, rec := range records {
				edge := edgeFromRecord(rec)
				if seen[edge.ID] {
					continue // self-loops match both patterns
				}
				seen[edge.ID] = true
				edges = append(edges, edge)
			}
		}
		return edges, nil
	})
	if err != nil {
		return nil, fmt.Errorf("read edges for node %s: %w", nodeID, err)
	}
	return result.([]models.Edge), nil
}

// Stats aggregates totals and breakdowns with streaming count queries.
func (s *Neo4jStore) Stats(ctx context.Context) (models.GraphStats, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer s.closeSession(ctx, session)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		stats := models.GraphStats{
			NodesByType:   make(map[string]int64),
			NodesBySource: make(map[string]int64),
			EdgesByType:   make(map[string]int64),
		}

		nodesByType, err := countBy(ctx, tx, "MATCH (n:Entity) RETURN n.entity_type AS key, count(n) AS total")
		if err != nil {
			return nil, err
		}
		for key, total := range nodesByType {
			stats.NodesByType[key] = total
			stats.TotalNodes += total
		}

		stats.NodesBySource, err = countBy(ctx, tx, "MATCH (n:Entity) RETURN n.source AS key, count(n) AS total")
		if err != nil {
			return nil, err
		}

		edgesByType, err := countBy(ctx, tx, "MATCH (:Entity)-[r]->(:Entity) RETURN r.relationship_type AS key, count(r) AS total")
		if err != nil {
			return nil, err
		}
		for key, total := range edgesByType {
			stats.EdgesByType[key] = total
			stats.TotalEdges += total
		}
		return stats, nil
	})
	if err != nil {
		return models.GraphStats{}, fmt.Errorf("graph stats: %w", err)
	}

	stats := result.(models.GraphStats)
	if stats.TotalNodes > 0 {
		stats.AverageDegree = 2 * float64(stats.TotalEdges) / float64(stats.TotalNodes)
	}
	if stats.TotalNodes > 1 {
		maxEdges := float64(stats.TotalNodes) * float64(stats.TotalNodes-1) / 2
		stats.Density = float64(stats.TotalEdges) / maxEdges
	}
	return stats, nil
}

func countBy(ctx context.Context, tx neo4j.ManagedTransaction, query string) (map[string]int64, error) {
	res, err := tx.Run(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(records))
	for _, rec := range records {
		key := recordString(rec, "key")
		if value, ok := rec.Get("total"); ok {
			if total, ok := value.(int64); ok {
				counts[key] = total
			}
		}
	}
	return counts, nil
}

func (s *Neo4jStore) closeSession(ctx context.Context, session SessionRunner) {
	if err := session.Close(ctx); err != nil {
		log.Printf("neo4j session close error: %v", err)
	}
}

type upsertResult[T any] struct {
	record  T
	created bool
}

// relationTypeLabel converts a relationship type into a Neo4j label;
// relationship types cannot be parameterized in Cypher.
func relationTypeLabel(input string) string {
	label := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(input, "-", "_"), " ", "_"))
	var b strings.Builder
	for _, r := range label {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "RELATED_TO"
	}
	return b.String()
}

func nodeFromRecord(rec *neo4j.Record) models.Node {
	now := time.Now().UTC()
	return models.Node{
		ID:          recordString(rec, "id"),
		Source:      models.Source(recordString(rec, "source")),
		EntityType:  recordString(rec, "entity_type"),
		EntityID:    recordString(rec, "entity_id"),
		DisplayName: recordString(rec, "display_name"),
		Metadata:    decodeMetadata(recordString(rec, "metadata")),
		CreatedAt:   recordTime(rec, "created_at", now),
		UpdatedAt:   recordTime(rec, "updated_at", now),
	}
}

func edgeFromRecord(rec *neo4j.Record) models.Edge {
	return models.Edge{
		ID:               recordString(rec, "id"),
		SourceNodeID:     recordString(rec, "source_node_id"),
		TargetNodeID:     recordString(rec, "target_node_id"),
		RelationshipType: recordString(rec, "relationship_type"),
		Weight:           recordFloat(rec, "weight"),
		Metadata:         decodeMetadata(recordString(rec, "metadata")),
		CreatedAt:        recordTime(rec, "created_at", time.Now().UTC()),
	}
}

func recordString(rec *neo4j.Record, key string) string {
	if value, ok := rec.Get(key); ok {
		if s, ok := value.(string); ok {
			return s
		}
	}
	return ""
}

func recordFloat(rec *neo4j.Record, key string) float64 {
	if value, ok := rec.Get(key); ok {
		switch v := value.(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		}
	}
	return 0
}

func recordBool(rec *neo4j.Record, key string) bool {
	if value, ok := rec.Get(key); ok {
		if b, ok := value.(bool); ok {
			return b
		}
	}
	return false
}

func recordTime(rec *neo4j.Record, key string, fallback time.Time) time.Time {
	raw := recordString(rec, key)
	if raw == "" {
		return fallback
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func encodeMetadata(metadata models.Metadata) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(raw), nil
}

func decodeMetadata(raw string) models.Metadata {
	if raw == "" || raw == "{}" {
		return nil
	}
	var metadata models.Metadata
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		log.Printf("decode metadata error: %v", err)
		return nil
	}
	return metadata
}
