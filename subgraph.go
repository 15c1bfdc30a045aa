package neomodel

import (
	"context"
	"fmt"
)

// GraphNode is a generic, JSON-ready vertex.
type GraphNode struct {
	ID         ID             `json:"id"`
	Type       string         `json:"type,omitempty"`
	Properties map[string]any `json:"properties"`
}

// GraphEdge is a generic, JSON-ready edge between two GraphNodes.
type GraphEdge struct {
	ID         ID             `json:"id"`
	Source     ID             `json:"source"`
	Target     ID             `json:"target"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

// GraphResult is a de-duplicated set of nodes and edges, the format consumed
// by most graph visualization libraries.
type GraphResult struct {
	Nodes []*GraphNode `json:"nodes"`
	Edges []*GraphEdge `json:"edges"`
}

// Subgraph runs a backend query and collects every vertex and edge it
// returns. An element returned in several rows appears once. It returns
// ErrNotFound when the query yields no elements.
//
// The query decides the shape of the graph, so it must return every element
// to be included, e.g. "RETURN u, r, p".
func (g *Graph) Subgraph(ctx context.Context, query string, params map[string]any) (*GraphResult, error) {
	resp, err := g.resource.Query(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("subgraph query: %w", err)
	}

	graph := &GraphResult{
		Nodes: make([]*GraphNode, 0),
		Edges: make([]*GraphEdge, 0),
	}
	seenNodeIDs := make(map[ID]bool)
	seenEdgeIDs := make(map[ID]bool)

	for r := range resp.Results() {
		switch r.Kind() {
		case VertexKind:
			if seenNodeIDs[r.ID()] {
				continue
			}
			props := r.Data()
			typ, _ := props[g.config.TypeVar].(string)
			graph.Nodes = append(graph.Nodes, &GraphNode{ID: r.ID(), Type: typ, Properties: props})
			seenNodeIDs[r.ID()] = true

		case EdgeKind:
			if seenEdgeIDs[r.ID()] {
				continue
			}
			graph.Edges = append(graph.Edges, &GraphEdge{
				ID:         r.ID(),
				Source:     r.OutV(),
				Target:     r.InV(),
				Label:      r.Label(),
				Properties: r.Data(),
			})
			seenEdgeIDs[r.ID()] = true
		}
	}

	if len(graph.Nodes) == 0 && len(graph.Edges) == 0 {
		return nil, ErrNotFound
	}
	return graph, nil
}
