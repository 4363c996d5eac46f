package provenance

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
)

// Options configures DOT output.
type Options struct {
	// Detailed adds the wave, status and file count to node labels.
	Detailed bool
}

var statusColors = map[Status]string{
	StatusResolved: "white",
	StatusSkipped:  "lightgrey",
	StatusFailed:   "mistyrose",
}

// ToDOT converts the graph to Graphviz DOT. Nodes in the same wave share a
// rank.
func ToDOT(g *Graph, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph provenance {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	nodes := g.Nodes()
	for _, n := range nodes {
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(fmtAttrs(n, opts.Detailed), ", "))
	}

	buf.WriteString("\n")
	var row []string
	flush := func() {
		if len(row) > 1 {
			fmt.Fprintf(&buf, "  { rank=same; %s; }\n", strings.Join(row, "; "))
		}
		row = row[:0]
	}
	for i, n := range nodes {
		if i > 0 && n.Row != nodes[i-1].Row {
			flush()
		}
		row = append(row, fmt.Sprintf("%q", n.ID))
	}
	flush()

	buf.WriteString("\n")
	for _, e := range g.Edges() {
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtAttrs(n Node, detailed bool) []string {
	label := n.ID
	if detailed {
		label = fmt.Sprintf("%s\nwave: %d", n.ID, n.Row)
		if n.Status != StatusPending {
			label += fmt.Sprintf("\n%s, %d files", n.Status, n.Files)
		}
	}
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if color, ok := statusColors[n.Status]; ok && n.Status != StatusResolved {
		attrs = append(attrs, "fillcolor="+color)
	}
	if n.Status == StatusSkipped {
		attrs = append(attrs, "style=\"rounded,filled,dashed\"")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
