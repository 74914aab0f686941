package causal

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeConflict is returned when a node id is re-added with a
	// different payload. Re-adding an identical node is a no-op.
	ErrNodeConflict = errors.New("causal: node payload conflict")
	// ErrUnknownNode is returned for edges or queries naming an id that was
	// never added.
	ErrUnknownNode = errors.New("causal: unknown node")
)

// Graph is an append-only DAG of causal nodes. Nodes and edges are never
// removed; a counterfactual replay builds a whole new graph instead of
// mutating this one. Traversals track visited ids so they terminate even on
// a malformed cyclic input.
type Graph struct {
	nodes    map[string]Node
	order    []string
	parents  map[string][]string
	children map[string][]string
	edges    []Edge
	edgeSeen map[Edge]struct{}
}

func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]Node),
		parents:  make(map[string][]string),
		children: make(map[string][]string),
		edgeSeen: make(map[Edge]struct{}),
	}
}

// AddNode inserts a node. Duplicate ids are idempotent when the payload is
// identical and an error otherwise.
func (g *Graph) AddNode(n Node) error {
	if existing, ok := g.nodes[n.ID]; ok {
		n.Order = existing.Order
		if samePayload(existing, n) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrNodeConflict, n.ID)
	}
	n.Order = len(g.order)
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return nil
}

// AddEdge inserts a directed edge. Both endpoints must exist; duplicate
// edges are a no-op.
func (g *Graph) AddEdge(from, to string, kind EdgeKind) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, to)
	}
	e := Edge{From: from, To: to, Kind: kind}
	if _, ok := g.edgeSeen[e]; ok {
		return nil
	}
	g.edgeSeen[e] = struct{}{}
	g.edges = append(g.edges, e)
	g.children[from] = append(g.children[from], to)
	g.parents[to] = append(g.parents[to], from)
	return nil
}

// Node looks up one node by id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Parents returns the direct predecessors of id in edge insertion order.
func (g *Graph) Parents(id string) []Node {
	return g.resolve(g.parents[id])
}

// Children returns the direct successors of id in edge insertion order.
func (g *Graph) Children(id string) []Node {
	return g.resolve(g.children[id])
}

// Ancestors returns the transitive predecessors of id in breadth-first
// discovery order, nearest first. The start node is excluded.
func (g *Graph) Ancestors(id string) ([]Node, error) {
	return g.closure(id, g.parents)
}

// Descendants returns the transitive successors of id in breadth-first
// discovery order.
func (g *Graph) Descendants(id string) ([]Node, error) {
	return g.closure(id, g.children)
}

func (g *Graph) closure(id string, adjacency map[string][]string) ([]Node, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	visited := map[string]struct{}{id: {}}
	queue := append([]string(nil), adjacency[id]...)
	var out []Node
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, seen := visited[next]; seen {
			continue
		}
		visited[next] = struct{}{}
		out = append(out, g.nodes[next])
		queue = append(queue, adjacency[next]...)
	}
	return out, nil
}

func (g *Graph) resolve(ids []string) []Node {
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id])
	}
	return out
}
