// Package query answers read-only graph questions: neighborhoods, bounded
// subgraph expansion, weighted shortest paths, and aggregate stats.
package query

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sort"

	"social-graph-crawler/internal/graph"
	"social-graph-crawler/internal/models"
)

// ErrInvalidArgument is returned for out-of-range query parameters.
var ErrInvalidArgument = errors.New("invalid query argument")

const (
	defaultNeighborLimit = 50
	maxNeighborLimit     = 500
	defaultSubgraphNodes = 100
	maxSubgraphNodes     = 1000

	// Upper bound on nodes settled during a shortest-path search; beyond
	// it the nodes are treated as unconnected.
	pathExplorationBudget = 10000
)

// Neighbor pairs an adjacent node with the edge reaching it.
type Neighbor struct {
	Node models.Node `json:"node"`
	Edge models.Edge `json:"edge"`
}

// Service executes graph reads against a Store.
type Service struct {
	store graph.Store
}

// NewService builds a query service over the given store.
func NewService(store graph.Store) *Service {
	return &Service{store: store}
}

// Neighbors returns nodes adjacent to nodeID, strongest edges first,
// ties broken by edge age (oldest first).
func (s *Service) Neighbors(ctx context.Context, nodeID string, direction models.Direction, limit int) ([]Neighbor, error) {
	if limit <= 0 {
		limit = defaultNeighborLimit
	}
	if limit > maxNeighborLimit {
		limit = maxNeighborLimit
	}

	if _, err := s.store.GetNode(ctx, nodeID); err != nil {
		return nil, err
	}

	edges, err := s.store.GetEdges(ctx, nodeID, direction)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		return edges[i].CreatedAt.Before(edges[j].CreatedAt)
	})
	if len(edges) > limit {
		edges = edges[:limit]
	}

	neighbors := make([]Neighbor, 0, len(edges))
	for _, edge := range edges {
		otherID := edge.TargetNodeID
		if otherID == nodeID {
			otherID = edge.SourceNodeID
		}
		node, err := s.store.GetNode(ctx, otherID)
		if err != nil {
			return nil, fmt.Errorf("loading neighbor %s: %w", otherID, err)
		}
		neighbors = append(neighbors, Neighbor{Node: node, Edge: edge})
	}
	return neighbors, nil
}

// Subgraph expands breadth-first from startID up to depth hops, visiting
// at most maxNodes nodes. The cap is checked before each expansion; the
// expansion underway runs to completion, so edges between visited nodes
// are never half-reported.
func (s *Service) Subgraph(ctx context.Context, startID string, depth, maxNodes int, direction models.Direction) (models.Subgraph, error) {
	if depth < 1 {
		return models.Subgraph{}, fmt.Errorf("%w: depth must be at least 1", ErrInvalidArgument)
	}
	if maxNodes <= 0 {
		maxNodes = defaultSubgraphNodes
	}
	if maxNodes > maxSubgraphNodes {
		maxNodes = maxSubgraphNodes
	}

	start, err := s.store.GetNode(ctx, startID)
	if err != nil {
		return models.Subgraph{}, err
	}

	visited := map[string]models.Node{start.ID: start}
	seenEdges := make(map[string]models.Edge)
	queue := []struct {
		id    string
		depth int
	}{{start.ID, 0}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= depth {
			continue
		}
		if len(visited) >= maxNodes {
			break
		}

		edges, err := s.store.GetEdges(ctx, current.id, direction)
		if err != nil {
			return models.Subgraph{}, fmt.Errorf("expanding %s: %w", current.id, err)
		}
		for _, edge := range edges {
			otherID := edge.TargetNodeID
			if otherID == current.id {
				otherID = edge.SourceNodeID
			}
			if _, ok := visited[otherID]; !ok {
				node, err := s.store.GetNode(ctx, otherID)
				if err != nil {
					return models.Subgraph{}, fmt.Errorf("loading node %s: %w", otherID, err)
				}
				visited[otherID] = node
				queue = append(queue, struct {
					id    string
					depth int
				}{otherID, current.depth + 1})
			}
			seenEdges[edge.ID] = edge
		}
	}

	result := models.Subgraph{
		Nodes: make([]models.Node, 0, len(visited)),
		Edges: make([]models.Edge, 0, len(seenEdges)),
	}
	for _, node := range visited {
		result.Nodes = append(result.Nodes, node)
	}
	for _, edge := range seenEdges {
		// Edges reaching outside the visited set are dropped so every
		// reported endpoint resolves within the subgraph.
		if _, ok := visited[edge.SourceNodeID]; !ok {
			continue
		}
		if _, ok := visited[edge.TargetNodeID]; !ok {
			continue
		}
		result.Edges = append(result.Edges, edge)
	}

	sort.Slice(result.Nodes, func(i, j int) bool { return result.Nodes[i].ID < result.Nodes[j].ID })
	sort.Slice(result.Edges, func(i, j int) bool { return result.Edges[i].ID < result.Edges[j].ID })
	return result, nil
}

// ShortestPath runs Dijkstra over outgoing edges from fromID to toID,
// minimizing summed edge weight. Exploration is bounded; exceeding the
// budget reports no path.
func (s *Service) ShortestPath(ctx context.Context, fromID, toID string) (models.Path, error) {
	from, err := s.store.GetNode(ctx, fromID)
	if err != nil {
		return models.Path{}, err
	}
	to, err := s.store.GetNode(ctx, toID)
	if err != nil {
		return models.Path{}, err
	}

	if from.ID == to.ID {
		return models.Path{Nodes: []models.Node{from}, Edges: []models.Edge{}, Length: 0}, nil
	}

	dist := map[string]float64{from.ID: 0}
	prevEdge := make(map[string]models.Edge)
	settled := make(map[string]struct{})

	pq := &pathQueue{{id: from.ID, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pathItem)
		if _, done := settled[item.id]; done {
			continue
		}
		settled[item.id] = struct{}{}
		if item.id == to.ID {
			return s.buildPath(ctx, from, to, prevEdge, item.dist)
		}
		if len(settled) > pathExplorationBudget {
			break
		}

		edges, err := s.store.GetEdges(ctx, item.id, models.DirectionOut)
		if err != nil {
			return models.Path{}, fmt.Errorf("expanding %s: %w", item.id, err)
		}
		for _, edge := range edges {
			next := edge.TargetNodeID
			if next == item.id {
				continue
			}
			alt := item.dist + edge.Weight
			if best, seen := dist[next]; !seen || alt < best {
				dist[next] = alt
				prevEdge[next] = edge
				heap.Push(pq, pathItem{id: next, dist: alt})
			}
		}
	}

	return models.Path{}, fmt.Errorf("%w: no path from %s to %s", graph.ErrNotFound, fromID, toID)
}

// buildPath walks predecessor edges back from the target.
func (s *Service) buildPath(ctx context.Context, from, to models.Node, prevEdge map[string]models.Edge, total float64) (models.Path, error) {
	var edges []models.Edge
	current := to.ID
	for current != from.ID {
		edge, ok := prevEdge[current]
		if !ok {
			return models.Path{}, fmt.Errorf("%w: broken predecessor chain at %s", graph.ErrNotFound, current)
		}
		edges = append(edges, edge)
		current = edge.SourceNodeID
	}
	// Reverse into from -> to order.
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}

	nodes := []models.Node{from}
	for _, edge := range edges {
		node, err := s.store.GetNode(ctx, edge.TargetNodeID)
		if err != nil {
			return models.Path{}, fmt.Errorf("loading path node %s: %w", edge.TargetNodeID, err)
		}
		nodes = append(nodes, node)
	}

	return models.Path{
		Nodes:       nodes,
		Edges:       edges,
		Length:      len(edges),
		TotalWeight: total,
	}, nil
}

// Stats reports aggregate graph statistics.
func (s *Service) Stats(ctx context.Context) (models.GraphStats, error) {
	return s.store.Stats(ctx)
}

type pathItem struct {
	id   string
	dist float64
}

type pathQueue []pathItem

func (q pathQueue) Len() int           { return len(q) }
func (q pathQueue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q pathQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)        { *q = append(*q, x.(pathItem)) }
func (q *pathQueue) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}
