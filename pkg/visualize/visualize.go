// Package visualize renders dataflow graphs as diagrams.
package visualize

import (
	"fmt"

	"github.com/emicklei/dot"

	"github.com/l7mp/dflow/pkg/api/graph/v1alpha1"
	"github.com/l7mp/dflow/pkg/dataflow"
)

// Graph is the visualization model of a dataflow graph.
type Graph struct {
	Name  string
	Nodes []Node
	Edges []Edge
	Paths []Path
}

// Node is an operator of the graph.
type Node struct {
	ID    dataflow.NodeID
	Kind  dataflow.Kind
	Label string
	// Width is the inferred width of the rows the node emits, or zero if unknown.
	Width int
	// View is the name of a leaf.
	View string
}

// Edge connects two operators. Side is set on the edges feeding a join.
type Edge struct {
	Parent, Child dataflow.NodeID
	Side          string
}

// Path is a transport path serving a view.
type Path struct {
	Path       string
	View       string
	Permission v1alpha1.Permission
}

// BuildGraph constructs a visualization graph from a dataflow graph and the paths exposing its
// views.
func BuildGraph(name string, g *dataflow.Graph, paths []v1alpha1.PathSpec) *Graph {
	ops := g.Nodes()
	ret := &Graph{
		Name:  name,
		Nodes: make([]Node, 0, len(ops)),
		Edges: make([]Edge, 0, g.EdgeCount()),
		Paths: make([]Path, 0, len(paths)),
	}

	for i, op := range ops {
		n := Node{ID: dataflow.NodeID(i), Kind: op.Kind(), Label: op.String()}
		if w, ok := g.Width(dataflow.NodeID(i)); ok {
			n.Width = w
		}
		if l, ok := op.(*dataflow.LeafOp); ok {
			n.View = l.ViewName()
		}
		ret.Nodes = append(ret.Nodes, n)
	}

	for _, e := range g.Edges() {
		edge := Edge{Parent: e.Parent, Child: e.Child}
		if j, ok := ops[e.Child].(*dataflow.InnerJoinOp); ok {
			if side, ok := j.SideOf(e.Parent); ok {
				edge.Side = side.String()
			}
		}
		ret.Edges = append(ret.Edges, edge)
	}

	for _, p := range paths {
		ret.Paths = append(ret.Paths, Path{Path: p.Path, View: p.View, Permission: p.Permission})
	}

	return ret
}

func nodeKey(id dataflow.NodeID) string { return fmt.Sprintf("n%d", id) }

// BuildDotGraph creates a dot.Graph from the visualization graph.
// This unified graph can then be rendered in different formats (DOT, Mermaid, etc.).
func BuildDotGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR")   // Left to right layout.
	graph.Attr("newrank", "true") // Better ranking algorithm.
	if g.Name != "" {
		graph.Attr("label", g.Name)
		graph.Attr("labelloc", "t") // Label at top.
		graph.Attr("fontsize", "16")
	}

	nodes := make(map[dataflow.NodeID]dot.Node)
	views := make(map[string]dot.Node)
	for _, n := range g.Nodes {
		node := graph.Node(nodeKey(n.ID)).
			Attr("label", fmt.Sprintf("%d: %s", n.ID, n.Label)).
			Attr("fontname", "helvetica")

		switch n.Kind {
		case dataflow.RootKind:
			node.Attr("shape", "ellipse").
				Attr("style", "filled").
				Attr("fillcolor", "lightgreen")
		case dataflow.LeafKind:
			node.Attr("shape", "box").
				Attr("style", "filled,rounded").
				Attr("fillcolor", "lightcyan")
		default:
			node.Attr("shape", "box").
				Attr("style", "filled,rounded").
				Attr("fillcolor", "lightblue").
				Attr("color", "darkblue").
				Attr("penwidth", "2")
		}

		nodes[n.ID] = node
	}

	for _, n := range g.Nodes {
		if n.View != "" {
			views[n.View] = nodes[n.ID]
		}
	}

	for _, e := range g.Edges {
		from, fromExists := nodes[e.Parent]
		to, toExists := nodes[e.Child]
		if !fromExists || !toExists {
			continue
		}

		label := e.Side
		if w := widthOf(g, e.Parent); w > 0 {
			if label != "" {
				label += " "
			}
			label += fmt.Sprintf("[%d]", w)
		}

		edge := graph.Edge(from, to).
			Attr("fontname", "helvetica").
			Attr("fontsize", "10")
		if label != "" {
			edge.Attr("label", label)
		}
	}

	for _, p := range g.Paths {
		view, exists := views[p.View]
		if !exists {
			continue
		}
		node := graph.Node("path:"+p.Path).
			Attr("label", p.Path).
			Attr("shape", "note").
			Attr("style", "filled").
			Attr("fillcolor", "lightyellow")
		graph.Edge(view, node).
			Attr("label", string(p.Permission)).
			Attr("style", "dashed").
			Attr("color", "blue").
			Attr("fontname", "helvetica").
			Attr("fontsize", "10")
	}

	return graph
}

func widthOf(g *Graph, id dataflow.NodeID) int {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n.Width
		}
	}
	return 0
}
