package causal

import (
	"fmt"
	"strings"
)

// GraphExport is the JSON shape of a graph dump, nodes and edges in
// insertion order.
type GraphExport struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// ExportJSON snapshots the graph for JSON serialization.
func ExportJSON(g *Graph) GraphExport {
	return GraphExport{Nodes: g.Nodes(), Edges: g.Edges()}
}

// ExportText renders the graph as a plain-text listing, nodes first then
// edges, both in insertion order.
func ExportText(g *Graph) string {
	var b strings.Builder
	b.WriteString("causal graph\n")
	for _, n := range g.Nodes() {
		fmt.Fprintf(&b, "node %s kind=%s", n.ID, n.Kind)
		if n.Status != "" {
			fmt.Fprintf(&b, " status=%s", n.Status)
		}
		if n.Label != "" {
			fmt.Fprintf(&b, " label=%q", n.Label)
		}
		b.WriteByte('\n')
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(&b, "edge %s -> %s (%s)\n", e.From, e.To, e.Kind)
	}
	return b.String()
}

// ExportDOT renders the graph in Graphviz DOT form. Error nodes are drawn
// as red octagons, rule nodes as boxes.
func ExportDOT(g *Graph) string {
	var b strings.Builder
	b.WriteString("digraph causal {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, n := range g.Nodes() {
		attrs := []string{fmt.Sprintf("label=%q", dotLabel(n))}
		switch n.Kind {
		case NodeError:
			attrs = append(attrs, "shape=octagon", "color=red")
		case NodeRule:
			attrs = append(attrs, "shape=box")
		default:
			attrs = append(attrs, "shape=ellipse")
		}
		fmt.Fprintf(&b, "  %q [%s];\n", n.ID, strings.Join(attrs, ", "))
	}
	for _, e := range g.Edges() {
		style := ""
		if e.Kind == EdgeExplainLink {
			style = ", style=dashed"
		}
		fmt.Fprintf(&b, "  %q -> %q [label=%q%s];\n", e.From, e.To, string(e.Kind), style)
	}
	b.WriteString("}\n")
	return b.String()
}

func dotLabel(n Node) string {
	if n.Label == "" {
		return n.ID
	}
	return fmt.Sprintf("%s\n%s", n.ID, n.Label)
}
