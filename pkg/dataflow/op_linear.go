package dataflow

import (
	"fmt"

	"github.com/l7mp/dflow/pkg/delta"
	"github.com/l7mp/dflow/pkg/util"
)

var _ Operator = &SelectionOp{}
var _ Operator = &ProjectionOp{}

// Selection node.
type SelectionOp struct {
	BaseOp
	column int
	value  delta.Value
}

// NewSelection creates a selection op that keeps the rows whose column equals value.
func NewSelection(column int, value delta.Value) *SelectionOp {
	return &SelectionOp{
		BaseOp: NewBaseOp(SelectionKind, "σ"),
		column: column,
		value:  value,
	}
}

func (n *SelectionOp) Column() int        { return n.column }
func (n *SelectionOp) Value() delta.Value { return n.value }

func (n *SelectionOp) String() string {
	return fmt.Sprintf("%s[$%d=%s]", n.name, n.column, n.value)
}

// Apply emits one change per input change, of the same kind, with the matching rows. A change
// with no matching rows yields an empty batch.
func (n *SelectionOp) Apply(batch []delta.Change) ([]delta.Change, error) {
	if err := checkColumns(n.String(), batch, n.column); err != nil {
		return nil, err
	}

	ret := make([]delta.Change, 0, len(batch))
	for _, ch := range batch {
		out := delta.Change{Kind: ch.Kind, Batch: []delta.Row{}}
		for _, r := range ch.Batch {
			if r[n.column] == n.value {
				out.Batch = append(out.Batch, r)
			}
		}
		ret = append(ret, out)
	}

	return ret, nil
}

// Projection node.
type ProjectionOp struct {
	BaseOp
	columns []int
}

// NewProjection creates a projection op. Columns may repeat and appear in any order.
func NewProjection(columns []int) *ProjectionOp {
	return &ProjectionOp{
		BaseOp:  NewBaseOp(ProjectionKind, "π"),
		columns: append([]int(nil), columns...),
	}
}

func (n *ProjectionOp) Columns() []int { return append([]int(nil), n.columns...) }

func (n *ProjectionOp) String() string {
	return fmt.Sprintf("%s[%s]", n.name, util.JoinInts(n.columns, ","))
}

// Apply rebuilds every row from the configured columns. Rows are not deduplicated.
func (n *ProjectionOp) Apply(batch []delta.Change) ([]delta.Change, error) {
	if err := checkColumns(n.String(), batch, n.columns...); err != nil {
		return nil, err
	}

	ret := make([]delta.Change, 0, len(batch))
	for _, ch := range batch {
		out := delta.Change{Kind: ch.Kind, Batch: make([]delta.Row, 0, len(ch.Batch))}
		for _, r := range ch.Batch {
			out.Batch = append(out.Batch, r.Select(n.columns))
		}
		ret = append(ret, out)
	}

	return ret, nil
}
