package models

// Subgraph is the node/edge set actually visited by a bounded traversal.
type Subgraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Path is an ordered node sequence with the edges connecting it.
// Length is the hop count; TotalWeight the summed edge weights.
type Path struct {
	Nodes       []Node  `json:"nodes"`
	Edges       []Edge  `json:"edges"`
	Length      int     `json:"length"`
	TotalWeight float64 `json:"total_weight"`
}

// GraphStats is an aggregate summary of the persisted graph.
type GraphStats struct {
	TotalNodes    int64            `json:"total_nodes"`
	TotalEdges    int64            `json:"total_edges"`
	NodesByType   map[string]int64 `json:"nodes_by_type"`
	NodesBySource map[string]int64 `json:"nodes_by_source"`
	EdgesByType   map[string]int64 `json:"edges_by_type"`
	AverageDegree float64          `json:"average_degree"`
	Density       float64          `json:"density"`
}
