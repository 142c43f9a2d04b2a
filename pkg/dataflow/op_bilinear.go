package dataflow

import (
	"fmt"
	"slices"

	"github.com/l7mp/dflow/pkg/delta"
)

var _ Operator = &InnerJoinOp{}
var _ Processor = &InnerJoinOp{}

// Side tells which parent of a join delivered a batch.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// InnerJoinOp is a symmetric incremental hash join. Each side keeps an index from the join value
// to the live rows received from that side, in arrival order. A merged row is always the left row
// without its join column followed by the full right row.
type InnerJoinOp struct {
	BaseOp
	parents [2]NodeID
	columns [2]int
	index   [2]map[delta.Value][]delta.Row
}

// NewInnerJoin creates a join of the left and the right parent on the given columns.
func NewInnerJoin(left, right NodeID, leftColumn, rightColumn int) *InnerJoinOp {
	return &InnerJoinOp{
		BaseOp:  NewBaseOp(InnerJoinKind, "⋈"),
		parents: [2]NodeID{left, right},
		columns: [2]int{leftColumn, rightColumn},
		index:   [2]map[delta.Value][]delta.Row{{}, {}},
	}
}

func (n *InnerJoinOp) Parents() (NodeID, NodeID) { return n.parents[Left], n.parents[Right] }
func (n *InnerJoinOp) JoinColumns() (int, int)   { return n.columns[Left], n.columns[Right] }

func (n *InnerJoinOp) String() string {
	return fmt.Sprintf("%s[%d.$%d=%d.$%d]", n.name, n.parents[Left], n.columns[Left],
		n.parents[Right], n.columns[Right])
}

// SideOf returns the side a parent node feeds.
func (n *InnerJoinOp) SideOf(parent NodeID) (Side, bool) {
	switch parent {
	case n.parents[Left]:
		return Left, true
	case n.parents[Right]:
		return Right, true
	}
	return Left, false
}

// ProcessChange applies the batch on the side of the delivering parent and forwards the merged
// rows to the children.
func (n *InnerJoinOp) ProcessChange(g *Graph, self, from NodeID, batch []delta.Change) error {
	side, ok := n.SideOf(from)
	if !ok {
		return fmt.Errorf("%s: change delivered by non-parent node %d", n, from)
	}

	out, err := n.ApplySide(side, batch)
	if err != nil {
		return err
	}

	return g.Forward(self, out)
}

// Apply handles the batch as if it was delivered by the left parent.
func (n *InnerJoinOp) Apply(batch []delta.Change) ([]delta.Change, error) {
	return n.ApplySide(Left, batch)
}

// ApplySide updates the index of the given side and emits one change per input change, of the
// same kind, holding the merged rows against the current matches on the other side. A deletion
// of a row that is not in the index is ignored.
func (n *InnerJoinOp) ApplySide(side Side, batch []delta.Change) ([]delta.Change, error) {
	col := n.columns[side]
	if err := checkColumns(n.String(), batch, col); err != nil {
		return nil, err
	}

	own, other := n.index[side], n.index[1-side]
	ret := make([]delta.Change, 0, len(batch))
	for _, ch := range batch {
		out := delta.Change{Kind: ch.Kind, Batch: []delta.Row{}}
		for _, r := range ch.Batch {
			v := r[col]

			switch ch.Kind {
			case delta.Insertion:
				own[v] = append(own[v], r)
			case delta.Deletion:
				if !removeFirst(own, v, r) {
					n.unmatchedDeletion(r)
					continue
				}
			}

			for _, s := range other[v] {
				if side == Left {
					out.Batch = append(out.Batch, n.merge(r, s))
				} else {
					out.Batch = append(out.Batch, n.merge(s, r))
				}
			}
		}
		ret = append(ret, out)
	}

	return ret, nil
}

// Index returns the live rows of a side for a join value.
func (n *InnerJoinOp) Index(side Side, v delta.Value) []delta.Row {
	return slices.Clone(n.index[side][v])
}

func (n *InnerJoinOp) merge(left, right delta.Row) delta.Row {
	ret := make(delta.Row, 0, len(left)-1+len(right))
	ret = append(ret, left[:n.columns[Left]]...)
	ret = append(ret, left[n.columns[Left]+1:]...)
	return append(ret, right...)
}

func removeFirst(index map[delta.Value][]delta.Row, v delta.Value, r delta.Row) bool {
	rows := index[v]
	i := slices.IndexFunc(rows, r.Equal)
	if i < 0 {
		return false
	}
	rows = slices.Delete(rows, i, i+1)
	if len(rows) == 0 {
		delete(index, v)
		return true
	}
	index[v] = rows
	return true
}
