package provenance

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func sample(t *testing.T) *Graph {
	t.Helper()
	g := New()
	for _, n := range []Node{
		{ID: "requests", Row: 0},
		{ID: "flask", Row: 0},
		{ID: "urllib3<3", Row: 1},
		{ID: "click>=8", Row: 1},
		{ID: "colorama; platform_system == \"Windows\"", Row: 2},
	} {
		if err := g.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	g.AddEdge("requests", "urllib3<3")
	g.AddEdge("flask", "click>=8")
	g.AddEdge("click>=8", "colorama; platform_system == \"Windows\"")
	g.AddEdge("flask", "click>=8")
	return g
}

func TestGraph(t *testing.T) {
	g := sample(t)
	if g.NodeCount() != 5 || g.EdgeCount() != 3 {
		t.Errorf("counts = %d nodes, %d edges", g.NodeCount(), g.EdgeCount())
	}
	if got := g.RequiredBy("click>=8"); !reflect.DeepEqual(got, []string{"flask"}) {
		t.Errorf("RequiredBy = %v", got)
	}
	if got := g.Requires("flask"); !reflect.DeepEqual(got, []string{"click>=8"}) {
		t.Errorf("Requires = %v", got)
	}
	var roots []string
	for _, n := range g.Roots() {
		roots = append(roots, n.ID)
	}
	if !reflect.DeepEqual(roots, []string{"requests", "flask"}) {
		t.Errorf("Roots = %v", roots)
	}
	want := []string{"flask", "click>=8", "colorama; platform_system == \"Windows\""}
	if got := g.Chain("colorama; platform_system == \"Windows\""); !reflect.DeepEqual(got, want) {
		t.Errorf("Chain = %v", got)
	}
}

func TestGraphErrors(t *testing.T) {
	g := New()
	if err := g.AddNode(Node{}); !errors.Is(err, ErrInvalidNodeID) {
		t.Errorf("empty ID err = %v", err)
	}
	g.AddNode(Node{ID: "a"})
	if err := g.AddNode(Node{ID: "a"}); !errors.Is(err, ErrDuplicateNodeID) {
		t.Errorf("duplicate err = %v", err)
	}
	if err := g.AddEdge("a", "b"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("unknown err = %v", err)
	}
}

func TestChainWithCycle(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "a"})
	g.AddNode(Node{ID: "b", Row: 1})
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")
	if got := g.Chain("b"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Chain = %v", got)
	}
}

func TestNodesOrderedByRow(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "late", Row: 2})
	g.AddNode(Node{ID: "root", Row: 0})
	g.AddNode(Node{ID: "mid", Row: 1})
	var ids []string
	for _, n := range g.Nodes() {
		ids = append(ids, n.ID)
	}
	if !reflect.DeepEqual(ids, []string{"root", "mid", "late"}) {
		t.Errorf("Nodes = %v", ids)
	}
}

func TestToDOT(t *testing.T) {
	g := sample(t)
	g.SetStatus("requests", StatusResolved, 2)
	g.SetStatus("urllib3<3", StatusSkipped, 0)

	dot := ToDOT(g, Options{Detailed: true})
	for _, want := range []string{
		"digraph provenance {",
		`"requests" -> "urllib3<3";`,
		`{ rank=same; "requests"; "flask"; }`,
		`label="requests\nwave: 0\nresolved, 2 files"`,
		`"urllib3<3" [label="urllib3<3\nwave: 1\nskipped, 0 files", fillcolor=lightgrey`,
		`\"Windows\"`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}

	plain := ToDOT(g, Options{})
	if strings.Contains(plain, "wave:") {
		t.Error("plain DOT should not include details")
	}
}
