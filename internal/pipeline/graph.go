// Package pipeline holds the in-process task graph: named nodes with explicit
// dependencies, a runner that executes them as soon as their inputs are
// ready, a bounded fan-out helper for per-item work and a graph renderer.
package pipeline

import (
	"context"
	"fmt"
)

// Inputs maps dependency names to the values those nodes produced.
type Inputs map[string]any

// Task computes a node's value from its dependencies.
type Task func(ctx context.Context, in Inputs) (any, error)

type Node struct {
	Name string
	Deps []string
	Run  Task
	// Mapped marks nodes that fan out over a collection; only used when
	// rendering.
	Mapped bool
}

// Graph is an immutable-once-built DAG. Nodes can only depend on nodes added
// before them, so insertion order is a valid topological order.
type Graph struct {
	name  string
	nodes []*Node
	index map[string]*Node
}

func New(name string) *Graph {
	return &Graph{name: name, index: make(map[string]*Node)}
}

func (g *Graph) Name() string { return g.name }

func (g *Graph) Add(n Node) error {
	if n.Name == "" {
		return fmt.Errorf("pipeline %s: node without a name", g.name)
	}
	if _, dup := g.index[n.Name]; dup {
		return fmt.Errorf("pipeline %s: duplicate node %q", g.name, n.Name)
	}
	if n.Run == nil {
		return fmt.Errorf("pipeline %s: node %q has no task", g.name, n.Name)
	}
	for _, d := range n.Deps {
		if _, ok := g.index[d]; !ok {
			return fmt.Errorf("pipeline %s: node %q depends on unknown node %q", g.name, n.Name, d)
		}
	}
	node := n
	node.Deps = append([]string(nil), n.Deps...)
	g.nodes = append(g.nodes, &node)
	g.index[n.Name] = &node
	return nil
}

// MustAdd is Add for graphs wired in code.
func (g *Graph) MustAdd(n Node) {
	if err := g.Add(n); err != nil {
		panic(err)
	}
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = *n
	}
	return out
}

// Edges lists dependency edges as (from, to) pairs.
func (g *Graph) Edges() [][2]string {
	var out [][2]string
	for _, n := range g.nodes {
		for _, d := range n.Deps {
			out = append(out, [2]string{d, n.Name})
		}
	}
	return out
}
