package dataflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/l7mp/dflow/internal/dag"
	"github.com/l7mp/dflow/pkg/delta"
)

// NodeID is the handle of an operator in the graph. Nodes are numbered from zero in the order they
// are added; a graph built from a spec uses the position of the operator in the spec.
type NodeID int

// Edge connects a parent node to a child node.
type Edge struct {
	Parent, Child NodeID
}

// Options configure a graph.
type Options struct {
	Logger logr.Logger
}

// Graph is a DAG of operators. All external operations run in one critical section for their
// whole duration, including the recursive fan-out and the leaf deliveries.
//
// The lock makes concurrent calls safe but does not order them: callers blocked on the lock are
// admitted in no particular order. Use an Executor when concurrent callers must be served in the
// order they arrive.
type Graph struct {
	mu     sync.Mutex
	dag    *dag.Graph
	nodes  []Operator
	edges  []Edge
	roots  map[string]NodeID
	leaves map[string]NodeID
	widths []int
	log    logr.Logger
}

// New creates an empty graph.
func New(opts Options) *Graph {
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	return &Graph{
		dag:    dag.New(),
		roots:  map[string]NodeID{},
		leaves: map[string]NodeID{},
		log:    log.WithName("graph"),
	}
}

// AddNode adds an operator and returns its node. Root ids and leaf names must be unique.
func (g *Graph) AddNode(op Operator) (NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch o := op.(type) {
	case *RootOp:
		if _, ok := g.roots[o.ID()]; ok {
			return -1, NewMalformedSpecError("duplicate root %q", o.ID())
		}
	case *LeafOp:
		if _, ok := g.leaves[o.ViewName()]; ok {
			return -1, NewMalformedSpecError("duplicate leaf %q", o.ViewName())
		}
	}

	id := NodeID(g.dag.AddNode())
	g.nodes = append(g.nodes, op)
	g.widths = append(g.widths, unknownWidth)

	switch o := op.(type) {
	case *RootOp:
		g.roots[o.ID()] = id
	case *LeafOp:
		g.leaves[o.ViewName()] = id
	}

	if l, ok := op.(interface{ SetLogger(logr.Logger) }); ok {
		l.SetLogger(g.log.WithName(strings.ToLower(op.Kind().String())).WithValues("node", int(id)))
	}

	g.log.V(4).Info("node added", "node", int(id), "operator", op.String())

	return id, nil
}

// AddEdge connects parent to child. Edges into roots, out of leaves, from a node that is not a
// configured parent of a join and edges closing a cycle are rejected.
func (g *Graph) AddEdge(parent, child NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.node(parent)
	if err != nil {
		return NewMalformedSpecError("edge %d -> %d: %s", parent, child, err)
	}
	c, err := g.node(child)
	if err != nil {
		return NewMalformedSpecError("edge %d -> %d: %s", parent, child, err)
	}

	if c.Kind() == RootKind {
		return NewMalformedSpecError("edge %d -> %d: root %s cannot have parents", parent, child, c)
	}
	if p.Kind() == LeafKind {
		return NewMalformedSpecError("edge %d -> %d: leaf %s cannot have children", parent, child, p)
	}
	if j, ok := c.(*InnerJoinOp); ok {
		if _, ok := j.SideOf(parent); !ok {
			return NewMalformedSpecError("edge %d -> %d: node %d is not a parent of join %s",
				parent, child, parent, j)
		}
		if g.dag.HasEdge(int(parent), int(child)) {
			return NewMalformedSpecError("edge %d -> %d: duplicate join edge", parent, child)
		}
	}

	if err := g.dag.AddEdge(int(parent), int(child)); err != nil {
		return NewMalformedSpecError("edge %d -> %d: %s", parent, child, err)
	}
	g.edges = append(g.edges, Edge{Parent: parent, Child: child})

	return nil
}

// Submit sends a single change to a root and propagates it to every reachable leaf.
func (g *Graph) Submit(rootID string, ch delta.Change) error {
	return g.SubmitBatch(rootID, []delta.Change{ch})
}

// SubmitBatch sends a sequence of changes to a root as one unit. An error aborts the propagation
// at the failing node; the state updates made before the failure are kept.
func (g *Graph) SubmitBatch(rootID string, batch []delta.Change) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.roots[rootID]
	if !ok {
		submitTotal.WithLabelValues(rootID, resultError).Inc()
		return NewUnknownRootError(rootID)
	}

	start := time.Now()
	err := g.process(id, id, batch)
	propagationDuration.WithLabelValues(rootID).Observe(time.Since(start).Seconds())

	if err != nil {
		submitTotal.WithLabelValues(rootID, resultError).Inc()
		g.log.V(1).Info("propagation failed", "root", rootID, "error", err.Error())
		return err
	}

	submitTotal.WithLabelValues(rootID, resultOK).Inc()
	g.log.V(2).Info("change propagated", "root", rootID, "changes", len(batch),
		"duration", time.Since(start).String())

	return nil
}

// Forward delivers a batch to every child of a node, in edge insertion order. It must only be
// called from ProcessChange.
func (g *Graph) Forward(self NodeID, batch []delta.Change) error {
	for _, child := range g.dag.Edges(int(self)) {
		if err := g.process(self, NodeID(child), batch); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) process(from, id NodeID, batch []delta.Change) error {
	op := g.nodes[id]
	g.log.V(4).Info("processing", "node", int(id), "operator", op.String(), "from", int(from),
		"changes", len(batch))

	if p, ok := op.(Processor); ok {
		if err := p.ProcessChange(g, id, from, batch); err != nil {
			return wrapOperatorError(id, op, err)
		}
		return nil
	}

	out, err := op.Apply(batch)
	if err != nil {
		return wrapOperatorError(id, op, err)
	}

	return g.Forward(id, out)
}

// only the innermost failing node is reported
func wrapOperatorError(id NodeID, op Operator, err error) error {
	var opErr *operatorError
	if errors.As(err, &opErr) {
		return err
	}
	return &operatorError{err: NewOperatorError(id, op, err)}
}

type operatorError struct{ err error }

func (e *operatorError) Error() string { return e.err.Error() }
func (e *operatorError) Unwrap() error { return e.err }

// Attach delivers the current content of a leaf to the sink and subscribes the sink to the
// subsequent deltas of the leaf. No delta is lost or delivered twice between the two.
func (g *Graph) Attach(leaf string, sink Sink) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, err := g.leaf(leaf)
	if err != nil {
		return err
	}
	return l.Attach(sink)
}

// Detach unsubscribes a sink from a leaf. Detaching a sink that is not attached is a no-op.
func (g *Graph) Detach(leaf string, sink Sink) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, err := g.leaf(leaf)
	if err != nil {
		return err
	}
	l.Detach(sink)
	return nil
}

// SinkCount returns the number of sinks attached to a leaf.
func (g *Graph) SinkCount(leaf string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, err := g.leaf(leaf)
	if err != nil {
		return 0, err
	}
	return l.SinkCount(), nil
}

// Snapshot returns the content of a leaf as a single Insertion, ordered by key.
func (g *Graph) Snapshot(leaf string) (delta.Change, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, err := g.leaf(leaf)
	if err != nil {
		return delta.Change{}, err
	}
	return l.Snapshot(), nil
}

// Read returns the row stored under a key in a leaf.
func (g *Graph) Read(leaf string, key delta.Value) (delta.Row, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, err := g.leaf(leaf)
	if err != nil {
		return nil, false, err
	}
	r, ok := l.Read(key)
	return r, ok, nil
}

// NodeCount returns the number of operators.
func (g *Graph) NodeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.edges)
}

// Nodes returns the operators indexed by their node.
func (g *Graph) Nodes() []Operator {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Operator(nil), g.nodes...)
}

// Edges returns the edges in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Edge(nil), g.edges...)
}

// Roots returns the sorted root ids.
func (g *Graph) Roots() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return sortedKeys(g.roots)
}

// Leaves returns the sorted leaf names.
func (g *Graph) Leaves() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return sortedKeys(g.leaves)
}

// LeafCounts returns the number of rows in each leaf.
func (g *Graph) LeafCounts() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()

	ret := make(map[string]int, len(g.leaves))
	for name, id := range g.leaves {
		ret[name] = g.nodes[id].(*LeafOp).Len()
	}
	return ret
}

// RootsOf returns the sorted ids of the roots a leaf is computed from.
func (g *Graph) RootsOf(leaf string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.leaves[leaf]
	if !ok {
		return nil, NewUnknownLeafError(leaf)
	}

	ret := []string{}
	for _, a := range g.dag.Ancestors(int(id)) {
		if r, ok := g.nodes[a].(*RootOp); ok {
			ret = append(ret, r.ID())
		}
	}
	sort.Strings(ret)
	return ret, nil
}

// String renders the content of every leaf.
func (g *Graph) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	for _, name := range sortedKeys(g.leaves) {
		l := g.nodes[g.leaves[name]].(*LeafOp)
		fmt.Fprintf(&b, "view %s", name)
		if len(l.ColumnNames()) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(l.ColumnNames(), ", "))
		}
		b.WriteString(":\n")
		for _, r := range l.Snapshot().Batch {
			fmt.Fprintf(&b, "  %s\n", r)
		}
	}
	return b.String()
}

func (g *Graph) node(id NodeID) (Operator, error) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, fmt.Errorf("unknown node %d", id)
	}
	return g.nodes[id], nil
}

func (g *Graph) leaf(name string) (*LeafOp, error) {
	id, ok := g.leaves[name]
	if !ok {
		return nil, NewUnknownLeafError(name)
	}
	return g.nodes[id].(*LeafOp), nil
}

func sortedKeys(m map[string]NodeID) []string {
	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
