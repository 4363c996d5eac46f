// Package provenance records why each requirement entered a mirror run.
//
// A [Graph] has one node per requirement string and an edge from every
// requirer to each dependency it declared. A node's row is the wave in which
// the requirement was first queued: top-level requirements sit in row 0,
// their dependencies in row 1, and so on. Edges may point back to earlier
// rows when a dependency was already known, so the graph can contain cycles.
//
//	g := provenance.New()
//	g.AddNode(provenance.Node{ID: "requests", Row: 0})
//	g.AddNode(provenance.Node{ID: "urllib3<3,>=1.21.1", Row: 1})
//	g.AddEdge("requests", "urllib3<3,>=1.21.1")
//	dot := provenance.ToDOT(g, provenance.Options{})
//
// Graph is not safe for concurrent use; the mirror engine builds it while
// merging wave results on one goroutine.
package provenance

import (
	"errors"
	"slices"
)

var (
	// ErrInvalidNodeID is returned by [Graph.AddNode] when the node ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [Graph.AddNode] when a node with the
	// same ID already exists.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownNode is returned by [Graph.AddEdge] when an endpoint is missing.
	ErrUnknownNode = errors.New("unknown node")
)

// Status is the resolution outcome of a requirement.
type Status string

const (
	StatusPending  Status = ""
	StatusResolved Status = "resolved"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Node is one requirement.
type Node struct {
	ID     string // Requirement string
	Row    int    // Wave in which it was first queued
	Status Status
	Files  int // Files selected for it
}

// Edge points from a requirer to a dependency.
type Edge struct {
	From string
	To   string
}

// Graph is the required-by graph of one run.
type Graph struct {
	nodes    map[string]*Node
	order    []string
	edges    []Edge
	seen     map[Edge]bool
	incoming map[string][]string
	outgoing map[string][]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		seen:     make(map[Edge]bool),
		incoming: make(map[string][]string),
		outgoing: make(map[string][]string),
	}
}

// AddNode adds a node. IDs must be non-empty and unique.
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, exists := g.nodes[n.ID]; exists {
		return ErrDuplicateNodeID
	}
	g.nodes[n.ID] = &n
	g.order = append(g.order, n.ID)
	return nil
}

// AddEdge records that from requires to. Duplicate edges are ignored.
func (g *Graph) AddEdge(from, to string) error {
	if _, ok := g.nodes[from]; !ok {
		return ErrUnknownNode
	}
	if _, ok := g.nodes[to]; !ok {
		return ErrUnknownNode
	}
	e := Edge{From: from, To: to}
	if g.seen[e] {
		return nil
	}
	g.seen[e] = true
	g.edges = append(g.edges, e)
	g.outgoing[from] = append(g.outgoing[from], to)
	g.incoming[to] = append(g.incoming[to], from)
	return nil
}

// SetStatus records the outcome for id. Unknown IDs are ignored.
func (g *Graph) SetStatus(id string, status Status, files int) {
	if n, ok := g.nodes[id]; ok {
		n.Status, n.Files = status, files
	}
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns all nodes ordered by row, then insertion.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.nodes[id])
	}
	slices.SortStableFunc(out, func(a, b Node) int { return a.Row - b.Row })
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// RequiredBy returns the requirers of id in discovery order.
func (g *Graph) RequiredBy(id string) []string { return slices.Clone(g.incoming[id]) }

// Requires returns the dependencies declared by id in discovery order.
func (g *Graph) Requires(id string) []string { return slices.Clone(g.outgoing[id]) }

// Roots returns the nodes nothing requires, in insertion order.
func (g *Graph) Roots() []Node {
	var out []Node
	for _, id := range g.order {
		if len(g.incoming[id]) == 0 {
			out = append(out, *g.nodes[id])
		}
	}
	return out
}

// Chain returns one path of requirers from a root down to id, root first.
// The first recorded requirer is followed at each step.
func (g *Graph) Chain(id string) []string {
	chain := []string{id}
	visited := map[string]bool{id: true}
	for cur := id; ; {
		parents := g.incoming[cur]
		if len(parents) == 0 || visited[parents[0]] {
			break
		}
		cur = parents[0]
		visited[cur] = true
		chain = append(chain, cur)
	}
	slices.Reverse(chain)
	return chain
}
