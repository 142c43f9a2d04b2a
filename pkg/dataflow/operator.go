package dataflow

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/l7mp/dflow/pkg/delta"
)

// Kind is the closed set of operator kinds.
type Kind int

const (
	RootKind Kind = iota
	SelectionKind
	ProjectionKind
	AggregationKind
	InnerJoinKind
	LeafKind
)

func (k Kind) String() string {
	switch k {
	case RootKind:
		return "Root"
	case SelectionKind:
		return "Selection"
	case ProjectionKind:
		return "Projection"
	case AggregationKind:
		return "Aggregation"
	case InnerJoinKind:
		return "InnerJoin"
	case LeafKind:
		return "Leaf"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Operator is a computation node of the graph.
type Operator interface {
	// Kind returns the operator kind.
	Kind() Kind
	// Name returns the short operator symbol used for debugging and rendering.
	Name() string
	// Apply transforms a batch of changes, updating the internal state of the operator, and
	// returns the delta to forward to the children. A batch that is rejected leaves the state of
	// the operator untouched.
	Apply(batch []delta.Change) ([]delta.Change, error)

	fmt.Stringer
}

// Processor is implemented by operators that override the default fan-out, i.e., call Apply and
// forward the result to every child. self is the node of the operator, from is the node that
// delivered the batch (roots receive their own node).
type Processor interface {
	ProcessChange(g *Graph, self, from NodeID, batch []delta.Change) error
}

// BaseOp holds the common fields of operators.
type BaseOp struct {
	kind Kind
	name string
	log  logr.Logger
}

func NewBaseOp(kind Kind, name string) BaseOp {
	return BaseOp{kind: kind, name: name, log: logr.Discard()}
}

func (n *BaseOp) Kind() Kind   { return n.kind }
func (n *BaseOp) Name() string { return n.name }

// SetLogger sets the logger of the operator. The graph calls this when the operator is added.
func (n *BaseOp) SetLogger(log logr.Logger) { n.log = log }

func (n *BaseOp) unmatchedDeletion(row delta.Row) {
	n.log.V(4).Info("ignoring deletion of a missing row", "row", row.String())
	unmatchedDeletions.WithLabelValues(n.kind.String()).Inc()
}

// checkColumns verifies that every row in the batch is wide enough to access the given columns.
func checkColumns(op string, batch []delta.Change, columns ...int) error {
	for _, ch := range batch {
		for _, r := range ch.Batch {
			for _, c := range columns {
				if _, err := r.At(c); err != nil {
					return NewRowShapeMismatchError(op, r, err)
				}
			}
		}
	}
	return nil
}

// checkSchema verifies every row in the batch against a schema.
func checkSchema(op string, schema delta.Schema, batch []delta.Change) error {
	for _, ch := range batch {
		for _, r := range ch.Batch {
			if err := schema.Check(r); err != nil {
				return NewRowShapeMismatchError(op, r, err)
			}
		}
	}
	return nil
}
