package dataflow

import (
	"fmt"
	"sort"

	"github.com/l7mp/dflow/pkg/delta"
)

var _ Operator = &LeafOp{}
var _ Processor = &LeafOp{}

// LeafOp is a materialized view: a table keyed on one column plus the list of sinks the deltas
// arriving at the leaf are broadcast to.
type LeafOp struct {
	BaseOp
	viewName    string
	keyIndex    int
	columnNames []string
	schema      delta.Schema
	table       map[delta.Value]delta.Row
	sinks       []Sink
}

// NewLeaf creates a leaf op. Column names and the schema are optional.
func NewLeaf(name string, keyIndex int, columnNames []string, schema delta.Schema) *LeafOp {
	return &LeafOp{
		BaseOp:      NewBaseOp(LeafKind, "leaf"),
		viewName:    name,
		keyIndex:    keyIndex,
		columnNames: columnNames,
		schema:      schema,
		table:       map[delta.Value]delta.Row{},
	}
}

// ViewName returns the name the leaf labels its envelopes with.
func (n *LeafOp) ViewName() string      { return n.viewName }
func (n *LeafOp) KeyIndex() int         { return n.keyIndex }
func (n *LeafOp) ColumnNames() []string { return n.columnNames }
func (n *LeafOp) Schema() delta.Schema  { return n.schema }
func (n *LeafOp) Len() int              { return len(n.table) }
func (n *LeafOp) SinkCount() int        { return len(n.sinks) }
func (n *LeafOp) String() string        { return fmt.Sprintf("%s(%s)", n.name, n.viewName) }

// Read returns the row stored under a key.
func (n *LeafOp) Read(key delta.Value) (delta.Row, bool) {
	r, ok := n.table[key]
	return r, ok
}

// Apply upserts inserted rows and removes deleted rows by key. It returns nothing. Rows are
// checked against the schema of the view, if any.
func (n *LeafOp) Apply(batch []delta.Change) ([]delta.Change, error) {
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

// ProcessChange applies the batch and broadcasts the original batch to the attached sinks.
func (n *LeafOp) ProcessChange(_ *Graph, _, _ NodeID, batch []delta.Change) error {
	if _, err := n.Apply(batch); err != nil {
		return err
	}
	n.broadcast(delta.NewEnvelope(n.viewName, batch...))
	return nil
}

// Snapshot returns the content of the table as a single Insertion, ordered by key.
func (n *LeafOp) Snapshot() delta.Change {
	keys := make([]delta.Value, 0, len(n.table))
	for k := range n.table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return delta.Compare(keys[i], keys[j]) < 0 })

	rows := make([]delta.Row, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, n.table[k])
	}
	return delta.NewInsertion(rows...)
}

// Attach sends the snapshot to the sink and adds the sink to the broadcast list. The sink is not
// added if the snapshot cannot be delivered.
func (n *LeafOp) Attach(sink Sink) error {
	if err := sink.Send(delta.NewEnvelope(n.viewName, n.Snapshot())); err != nil {
		sinkDeliveries.WithLabelValues(n.viewName, resultError).Inc()
		return fmt.Errorf("failed to send snapshot of view %q: %w", n.viewName, err)
	}
	sinkDeliveries.WithLabelValues(n.viewName, resultOK).Inc()

	n.sinks = append(n.sinks, sink)
	attachedSinks.WithLabelValues(n.viewName).Set(float64(len(n.sinks)))
	n.log.V(2).Info("sink attached", "sinks", len(n.sinks))

	return nil
}

// Detach removes the sink from the broadcast list. It returns false if the sink was not attached.
func (n *LeafOp) Detach(sink Sink) bool {
	for i, s := range n.sinks {
		if s == sink {
			n.sinks = append(n.sinks[:i:i], n.sinks[i+1:]...)
			attachedSinks.WithLabelValues(n.viewName).Set(float64(len(n.sinks)))
			n.log.V(2).Info("sink detached", "sinks", len(n.sinks))
			return true
		}
	}
	return false
}

// broadcast delivers the envelope to every sink in attachment order. Sinks that fail are
// detached and stopped.
func (n *LeafOp) broadcast(env delta.Envelope) {
	kept := make([]Sink, 0, len(n.sinks))
	for _, s := range n.sinks {
		if err := s.Send(env); err != nil {
			n.log.Info("detaching failed sink", "error", err.Error())
			sinkDeliveries.WithLabelValues(n.viewName, resultError).Inc()
			if st, ok := s.(stopper); ok {
				st.Stop()
			}
			continue
		}
		sinkDeliveries.WithLabelValues(n.viewName, resultOK).Inc()
		kept = append(kept, s)
	}

	if len(kept) != len(n.sinks) {
		attachedSinks.WithLabelValues(n.viewName).Set(float64(len(kept)))
	}
	n.sinks = kept
}
