// Package v1alpha1 contains the declarative specification of a dataflow graph: the operator list,
// the edges between operators and the transport paths that expose the views.
package v1alpha1

import (
	"github.com/l7mp/dflow/pkg/delta"
)

// GraphSpec is a declarative description of an operator graph. Operators are referred to by their
// position in the Operators list.
type GraphSpec struct {
	// Operators is the list of operators, each tagged by its kind.
	Operators []OperatorSpec `json:"operators" validate:"required,min=1,dive"`
	// Edges connect a parent operator to a child operator.
	Edges []EdgeSpec `json:"edges,omitempty" validate:"dive"`
	// Paths expose views on the transport.
	Paths []PathSpec `json:"paths,omitempty" validate:"dive"`
}

// OperatorKind is the discriminant of an operator spec.
type OperatorKind string

const (
	RootKind        OperatorKind = "Root"
	SelectionKind   OperatorKind = "Selection"
	ProjectionKind  OperatorKind = "Projection"
	AggregationKind OperatorKind = "Aggregation"
	InnerJoinKind   OperatorKind = "InnerJoin"
	LeafKind        OperatorKind = "Leaf"
)

// OperatorSpec is a tagged union: Kind selects which one of the kind-specific fields is used.
type OperatorSpec struct {
	// Kind is the operator kind.
	Kind OperatorKind `json:"kind" validate:"required,oneof=Root Selection Projection Aggregation InnerJoin Leaf"`

	Root        *RootSpec        `json:"root,omitempty" validate:"required_if=Kind Root"`
	Selection   *SelectionSpec   `json:"selection,omitempty" validate:"required_if=Kind Selection"`
	Projection  *ProjectionSpec  `json:"projection,omitempty" validate:"required_if=Kind Projection"`
	Aggregation *AggregationSpec `json:"aggregation,omitempty" validate:"required_if=Kind Aggregation"`
	InnerJoin   *InnerJoinSpec   `json:"innerJoin,omitempty" validate:"required_if=Kind InnerJoin"`
	Leaf        *LeafSpec        `json:"leaf,omitempty" validate:"required_if=Kind Leaf"`
}

// RootSpec configures a named entry point for base-table mutations.
type RootSpec struct {
	// ID is the root identifier mutations are addressed to. Must be unique.
	ID string `json:"id" validate:"required"`
	// KeyIndex is the column the root's mirror table is keyed on.
	KeyIndex int `json:"keyIndex" validate:"min=0"`
	// Schema optionally declares the columns of the base relation. When present, incoming rows
	// are type checked and row widths are inferred through the graph.
	Schema delta.Schema `json:"schema,omitempty"`
}

// SelectionSpec keeps the rows whose Column equals Value.
type SelectionSpec struct {
	Column int         `json:"column" validate:"min=0"`
	Value  delta.Value `json:"value"`
}

// ProjectionSpec rebuilds every row from the listed columns. Columns may repeat or be reordered.
type ProjectionSpec struct {
	Columns []int `json:"columns" validate:"required,min=1,dive,min=0"`
}

// AggregationSpec counts rows per group. An empty GroupBy counts all rows in a single group.
type AggregationSpec struct {
	GroupBy []int `json:"groupBy" validate:"dive,min=0"`
}

// InnerJoinSpec joins the rows of two parents on one column per side.
type InnerJoinSpec struct {
	// Parents are the operator indices of the left and the right parent.
	Parents []int `json:"parents" validate:"len=2,dive,min=0"`
	// JoinColumns are the join column of the left and the right side.
	JoinColumns []int `json:"joinColumns" validate:"len=2,dive,min=0"`
}

// LeafSpec configures a materialized view.
type LeafSpec struct {
	// Name labels the envelopes the view broadcasts. Must be unique.
	Name string `json:"name" validate:"required"`
	// KeyIndex is the column the view's table is keyed on.
	KeyIndex int `json:"keyIndex" validate:"min=0"`
	// ColumnNames are informational column names.
	ColumnNames []string `json:"columnNames,omitempty"`
	// Schema optionally declares the columns of the view.
	Schema delta.Schema `json:"schema,omitempty"`
}

// EdgeSpec connects two operators by their index in the operator list.
type EdgeSpec struct {
	Parent int `json:"parent" validate:"min=0"`
	Child  int `json:"child" validate:"min=0"`
}

// PathSpec routes a transport path to a view.
type PathSpec struct {
	// Path is the URL path clients connect to, e.g., "/votes".
	Path string `json:"path" validate:"required,startswith=/"`
	// View is the name of the Leaf served on this path.
	View string `json:"view" validate:"required"`
	// Permission is what clients may do on this path.
	Permission Permission `json:"permission" validate:"required,oneof=Read Write ReadWrite"`
}
