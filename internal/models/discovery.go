package models

// Discovery is one (neighbor, relationship) pair returned by a source
// adapter before anything is persisted. The engine upserts the neighbor,
// then builds the edge from the stored node IDs.
type Discovery struct {
	Neighbor         Node
	RelationshipType string
	Weight           float64
	Metadata         Metadata
	// NeighborIsSource flips edge direction: true means neighbor->entity
	// (e.g. a user posting into the subreddit being expanded).
	NeighborIsSource bool
}
