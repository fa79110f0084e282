package models

import "time"

// Edge represents a directed relationship between two stored nodes.
// (SourceNodeID, TargetNodeID, RelationshipType) is unique; re-discovery
// updates weight and metadata instead of duplicating.
type Edge struct {
	ID               string    `json:"id"`
	SourceNodeID     string    `json:"source_node_id"`
	TargetNodeID     string    `json:"target_node_id"`
	RelationshipType string    `json:"relationship_type"`
	Weight           float64   `json:"weight"`
	Metadata         Metadata  `json:"metadata,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// IdentityKey returns the unique identity tuple as a single string.
func (e Edge) IdentityKey() string {
	return e.SourceNodeID + ">" + e.TargetNodeID + ":" + e.RelationshipType
}
