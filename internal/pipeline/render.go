package pipeline

import (
	"fmt"
	"io"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// Render draws the graph in the given graphviz format ("png", "svg", "dot").
// Mapped nodes are drawn dashed.
func Render(g *Graph, format string, w io.Writer) error {
	gv := graphviz.New()
	defer gv.Close()

	graph, err := gv.Graph()
	if err != nil {
		return fmt.Errorf("render %s: %w", g.name, err)
	}
	defer graph.Close()

	nodes := make(map[string]*cgraph.Node, len(g.nodes))
	for _, n := range g.nodes {
		gn, err := graph.CreateNode(n.Name)
		if err != nil {
			return fmt.Errorf("render %s: node %s: %w", g.name, n.Name, err)
		}
		gn.SetShape(cgraph.BoxShape)
		if n.Mapped {
			gn.SetStyle(cgraph.DashedNodeStyle)
			gn.SetLabel(n.Name + " <map>")
		}
		nodes[n.Name] = gn
	}
	for i, e := range g.Edges() {
		if _, err := graph.CreateEdge(fmt.Sprintf("e%d", i), nodes[e[0]], nodes[e[1]]); err != nil {
			return fmt.Errorf("render %s: edge %s->%s: %w", g.name, e[0], e[1], err)
		}
	}

	if err := gv.Render(graph, graphviz.Format(format), w); err != nil {
		return fmt.Errorf("render %s: %w", g.name, err)
	}
	return nil
}
