package dataflow

import (
	"github.com/l7mp/dflow/pkg/api/graph/v1alpha1"
)

// Build constructs and validates a graph from a specification. The node of each operator is its
// position in the operator list. Every problem is reported as an error wrapping ErrMalformedSpec.
func Build(spec *v1alpha1.GraphSpec, opts Options) (*Graph, error) {
	if spec == nil {
		return nil, NewMalformedSpecError("empty graph spec")
	}
	if err := spec.Validate(); err != nil {
		return nil, NewMalformedSpecError("%s", err)
	}

	g := New(opts)
	for i, o := range spec.Operators {
		op, err := newOperator(i, len(spec.Operators), o)
		if err != nil {
			return nil, err
		}
		if _, err := g.AddNode(op); err != nil {
			return nil, err
		}
	}

	for _, e := range spec.Edges {
		if err := g.AddEdge(NodeID(e.Parent), NodeID(e.Child)); err != nil {
			return nil, err
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	paths := map[string]bool{}
	for _, p := range spec.Paths {
		if paths[p.Path] {
			return nil, NewMalformedSpecError("duplicate path %q", p.Path)
		}
		paths[p.Path] = true
		if _, ok := g.leaves[p.View]; !ok {
			return nil, NewMalformedSpecError("path %q refers to unknown view %q", p.Path, p.View)
		}
	}

	g.log.Info("graph built", "nodes", g.NodeCount(), "edges", g.EdgeCount(),
		"roots", g.Roots(), "views", g.Leaves())

	return g, nil
}

func newOperator(i, n int, o v1alpha1.OperatorSpec) (Operator, error) {
	switch o.Kind {
	case v1alpha1.RootKind:
		if o.Root == nil {
			return nil, NewMalformedSpecError("operator %d: missing root config", i)
		}
		return NewRoot(o.Root.ID, o.Root.KeyIndex, o.Root.Schema), nil

	case v1alpha1.SelectionKind:
		if o.Selection == nil {
			return nil, NewMalformedSpecError("operator %d: missing selection config", i)
		}
		return NewSelection(o.Selection.Column, o.Selection.Value), nil

	case v1alpha1.ProjectionKind:
		if o.Projection == nil {
			return nil, NewMalformedSpecError("operator %d: missing projection config", i)
		}
		return NewProjection(o.Projection.Columns), nil

	case v1alpha1.AggregationKind:
		if o.Aggregation == nil {
			return nil, NewMalformedSpecError("operator %d: missing aggregation config", i)
		}
		return NewAggregation(o.Aggregation.GroupBy), nil

	case v1alpha1.InnerJoinKind:
		j := o.InnerJoin
		if j == nil || len(j.Parents) != 2 || len(j.JoinColumns) != 2 {
			return nil, NewMalformedSpecError("operator %d: join needs two parents and two join columns", i)
		}
		l, r := j.Parents[0], j.Parents[1]
		if l == r {
			return nil, NewMalformedSpecError("operator %d: join parents must be distinct", i)
		}
		for _, p := range j.Parents {
			if p < 0 || p >= n || p == i {
				return nil, NewMalformedSpecError("operator %d: invalid join parent %d", i, p)
			}
		}
		return NewInnerJoin(NodeID(l), NodeID(r), j.JoinColumns[0], j.JoinColumns[1]), nil

	case v1alpha1.LeafKind:
		if o.Leaf == nil {
			return nil, NewMalformedSpecError("operator %d: missing leaf config", i)
		}
		return NewLeaf(o.Leaf.Name, o.Leaf.KeyIndex, o.Leaf.ColumnNames, o.Leaf.Schema), nil

	default:
		return nil, NewMalformedSpecError("operator %d: unknown kind %q", i, o.Kind)
	}
}
