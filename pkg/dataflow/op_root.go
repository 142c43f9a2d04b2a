package dataflow

import (
	"fmt"

	"github.com/l7mp/dflow/pkg/delta"
)

var _ Operator = &RootOp{}
var _ Processor = &RootOp{}

// RootOp is the named entry point of a base relation. It keeps a keyed mirror of the rows
// inserted and forwards every incoming batch unmodified.
type RootOp struct {
	BaseOp
	id       string
	keyIndex int
	schema   delta.Schema
	table    map[delta.Value]delta.Row
}

// NewRoot creates a root op. The schema is optional: when given, incoming rows are checked
// against it.
func NewRoot(id string, keyIndex int, schema delta.Schema) *RootOp {
	return &RootOp{
		BaseOp:   NewBaseOp(RootKind, "root"),
		id:       id,
		keyIndex: keyIndex,
		schema:   schema,
		table:    map[delta.Value]delta.Row{},
	}
}

func (n *RootOp) ID() string           { return n.id }
func (n *RootOp) KeyIndex() int        { return n.keyIndex }
func (n *RootOp) Schema() delta.Schema { return n.schema }
func (n *RootOp) Len() int             { return len(n.table) }

func (n *RootOp) String() string { return fmt.Sprintf("%s(%s)", n.name, n.id) }

// Apply updates the mirror table and returns nothing.
func (n *RootOp) Apply(batch []delta.Change) ([]delta.Change, error) {
	if len(n.schema) > 0 {
		if err := checkSchema(n.String(), n.schema, batch); err != nil {
			return nil, err
		}
	}
	if err := checkColumns(n.String(), batch, n.keyIndex); err != nil {
		return nil, err
	}

	for _, ch := range batch {
		for _, r := range ch.Batch {
			k := r[n.keyIndex]
			switch ch.Kind {
			case delta.Insertion:
				n.table[k] = r
			case delta.Deletion:
				if _, ok := n.table[k]; !ok {
					n.unmatchedDeletion(r)
					continue
				}
				delete(n.table, k)
			}
		}
	}

	return nil, nil
}

// ProcessChange applies the batch to the mirror and forwards the original batch.
func (n *RootOp) ProcessChange(g *Graph, self, _ NodeID, batch []delta.Change) error {
	if _, err := n.Apply(batch); err != nil {
		return err
	}
	return g.Forward(self, batch)
}

// Read returns the mirrored row stored under a key.
func (n *RootOp) Read(key delta.Value) (delta.Row, bool) {
	r, ok := n.table[key]
	return r, ok
}
