package dataflow

import (
	"fmt"
	"sort"

	"github.com/l7mp/dflow/pkg/delta"
	"github.com/l7mp/dflow/pkg/util"
)

var _ Operator = &AggregationOp{}

// AggregationOp counts the live rows per group. The state maps each group key to an accumulator
// row holding the group-by values followed by the count. Groups whose count drops to zero are
// removed.
type AggregationOp struct {
	BaseOp
	groupBy []int
	groups  map[string]delta.Row
}

// NewAggregation creates a grouped count op. An empty groupBy counts all rows in a single group.
func NewAggregation(groupBy []int) *AggregationOp {
	return &AggregationOp{
		BaseOp:  NewBaseOp(AggregationKind, "γ"),
		groupBy: append([]int(nil), groupBy...),
		groups:  map[string]delta.Row{},
	}
}

func (n *AggregationOp) GroupBy() []int { return append([]int(nil), n.groupBy...) }

func (n *AggregationOp) String() string {
	return fmt.Sprintf("%s[%s]", n.name, util.JoinInts(n.groupBy, ","))
}

// Apply updates the counts and emits one change per emitted row: an Insertion for a new group, a
// Deletion of the old accumulator followed by an Insertion of the new one for an existing group,
// and a lone Deletion when the last row of a group is removed. Deletions for unknown groups are
// ignored.
func (n *AggregationOp) Apply(batch []delta.Change) ([]delta.Change, error) {
	if err := checkColumns(n.String(), batch, n.groupBy...); err != nil {
		return nil, err
	}

	ret := []delta.Change{}
	for _, ch := range batch {
		for _, r := range ch.Batch {
			key := r.Key(n.groupBy)
			acc, ok := n.groups[key]

			switch ch.Kind {
			case delta.Insertion:
				if !ok {
					acc = append(r.Select(n.groupBy), delta.Int(1))
					n.groups[key] = acc
					ret = append(ret, delta.NewInsertion(acc))
					continue
				}
				next := withCount(acc, count(acc)+1)
				n.groups[key] = next
				ret = append(ret, delta.NewDeletion(acc), delta.NewInsertion(next))

			case delta.Deletion:
				if !ok {
					n.unmatchedDeletion(r)
					continue
				}
				ret = append(ret, delta.NewDeletion(acc))
				c := count(acc) - 1
				if c == 0 {
					delete(n.groups, key)
					continue
				}
				next := withCount(acc, c)
				n.groups[key] = next
				ret = append(ret, delta.NewInsertion(next))
			}
		}
	}

	return ret, nil
}

// Count returns the count of the group with the given group-by values, or zero.
func (n *AggregationOp) Count(group ...delta.Value) int64 {
	acc, ok := n.groups[delta.Key(group...)]
	if !ok {
		return 0
	}
	return count(acc)
}

// Groups returns the accumulator rows ordered by their group-by values.
func (n *AggregationOp) Groups() []delta.Row {
	ret := make([]delta.Row, 0, len(n.groups))
	for _, acc := range n.groups {
		ret = append(ret, acc)
	}
	sort.Slice(ret, func(i, j int) bool { return delta.CompareRows(ret[i], ret[j]) < 0 })
	return ret
}

// accumulators are never mutated once emitted, a count update replaces the row
func withCount(acc delta.Row, c int64) delta.Row {
	next := acc.Clone()
	next[len(next)-1] = delta.Int(c)
	return next
}

func count(acc delta.Row) int64 {
	c, _ := acc[len(acc)-1].AsInt()
	return c
}

