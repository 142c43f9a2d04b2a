package dataflow

import (
	"fmt"
)

const unknownWidth = -1

// Validate checks the structure of the graph: every non-root node has a parent, joins are
// connected to both of their parents, and, as far as the row widths can be inferred from the root
// schemas, every column index is within the width of the rows arriving at the node.
func (g *Graph) Validate() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, op := range g.nodes {
		parents := g.dag.Parents(i)
		if op.Kind() != RootKind && len(parents) == 0 {
			return NewMalformedSpecError("node %d (%s) has no parents", i, op)
		}
		if j, ok := op.(*InnerJoinOp); ok {
			l, r := j.Parents()
			if l == r {
				return NewMalformedSpecError("join %d (%s) must have two distinct parents", i, j)
			}
			if !g.dag.HasEdge(int(l), i) || !g.dag.HasEdge(int(r), i) {
				return NewMalformedSpecError("join %d (%s) must be connected to both parents", i, j)
			}
		}
	}

	// widths are inferred in topological order
	for _, i := range g.dag.TopoSort() {
		w, err := g.inferWidth(NodeID(i))
		if err != nil {
			return NewMalformedSpecError("node %d (%s): %s", i, g.nodes[i], err)
		}
		g.widths[i] = w
	}

	g.log.V(1).Info("graph validated", "nodes", len(g.nodes), "edges", len(g.edges),
		"roots", len(g.roots), "leaves", len(g.leaves))

	return nil
}

// Width returns the inferred width of the rows emitted by a node, if known. Widths are available
// after a successful Validate.
func (g *Graph) Width(id NodeID) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id < 0 || int(id) >= len(g.widths) || g.widths[id] == unknownWidth {
		return 0, false
	}
	return g.widths[id], true
}

// inputWidth returns the common width of the rows coming from the parents of a node.
func (g *Graph) inputWidth(id NodeID) (int, error) {
	w := unknownWidth
	for _, p := range g.dag.Parents(int(id)) {
		pw := g.widths[p]
		if pw == unknownWidth {
			continue
		}
		if w != unknownWidth && w != pw {
			return unknownWidth, fmt.Errorf("parents emit rows of different widths %d and %d", w, pw)
		}
		w = pw
	}
	return w, nil
}

func checkIndex(what string, idx, width int) error {
	if width != unknownWidth && idx >= width {
		return fmt.Errorf("%s %d out of range for rows of width %d", what, idx, width)
	}
	return nil
}

func (g *Graph) inferWidth(id NodeID) (int, error) {
	switch op := g.nodes[id].(type) {
	case *RootOp:
		if len(op.Schema()) == 0 {
			return unknownWidth, nil
		}
		w := op.Schema().Width()
		return w, checkIndex("key column", op.KeyIndex(), w)

	case *SelectionOp:
		w, err := g.inputWidth(id)
		if err != nil {
			return unknownWidth, err
		}
		return w, checkIndex("column", op.Column(), w)

	case *ProjectionOp:
		w, err := g.inputWidth(id)
		if err != nil {
			return unknownWidth, err
		}
		for _, c := range op.Columns() {
			if err := checkIndex("column", c, w); err != nil {
				return unknownWidth, err
			}
		}
		return len(op.Columns()), nil

	case *AggregationOp:
		w, err := g.inputWidth(id)
		if err != nil {
			return unknownWidth, err
		}
		for _, c := range op.GroupBy() {
			if err := checkIndex("group-by column", c, w); err != nil {
				return unknownWidth, err
			}
		}
		return len(op.GroupBy()) + 1, nil

	case *InnerJoinOp:
		l, r := op.Parents()
		lc, rc := op.JoinColumns()
		lw, rw := g.widths[l], g.widths[r]
		if err := checkIndex("left join column", lc, lw); err != nil {
			return unknownWidth, err
		}
		if err := checkIndex("right join column", rc, rw); err != nil {
			return unknownWidth, err
		}
		if lw == unknownWidth || rw == unknownWidth {
			return unknownWidth, nil
		}
		return lw - 1 + rw, nil

	case *LeafOp:
		w, err := g.inputWidth(id)
		if err != nil {
			return unknownWidth, err
		}
		if err := checkIndex("key column", op.KeyIndex(), w); err != nil {
			return unknownWidth, err
		}
		if len(op.Schema()) > 0 {
			if w != unknownWidth && w != op.Schema().Width() {
				return unknownWidth, fmt.Errorf("view schema has %d columns, rows have %d",
					op.Schema().Width(), w)
			}
			if err := checkIndex("key column", op.KeyIndex(), op.Schema().Width()); err != nil {
				return unknownWidth, err
			}
			w = op.Schema().Width()
		}
		if n := len(op.ColumnNames()); n > 0 && w != unknownWidth && n != w {
			return unknownWidth, fmt.Errorf("%d column names given for rows of width %d", n, w)
		}
		return w, nil

	default:
		return unknownWidth, nil
	}
}
