// Package dataflow implements an incremental view-maintenance engine over a directed acyclic graph
// of relational operators.
//
// Base-table mutations enter the graph at named Root operators as Changes, i.e., typed
// (Insertion or Deletion) multiset batches of rows. Every operator applies the incoming batch to
// its own state and forwards the resulting delta to its children, until the delta reaches the
// Leaf operators. Leaves hold the materialized views and broadcast the deltas to attached sinks.
//
// Operators:
//   - Root: named entry point, mirrors the base relation and forwards the original batch.
//   - Selection (σ): keeps the rows whose column equals a constant.
//   - Projection (π): rebuilds rows from a list of columns.
//   - Aggregation (γ): grouped count, emitted as retract-then-insert pairs.
//   - InnerJoin (⋈): symmetric incremental hash join of two parents.
//   - Leaf: keyed materialized view with a list of live sinks.
//
// Every external operation on a Graph (Submit, Attach, Detach, Snapshot, Read) runs in a single
// critical section, from the root through the complete recursive fan-out. The Executor provides
// the same operations through a single worker goroutine, in strict FIFO order.
//
// Example usage:
//
//	spec, _ := v1alpha1.Load("votes.yaml")
//	g, err := dataflow.Build(spec, dataflow.Options{Logger: logger})
//	sink := dataflow.NewChannelSink(dataflow.DefaultSinkBuffer)
//	_ = g.Attach("votes", sink)
//	_ = g.Submit("StoryVoter", delta.NewInsertion(delta.NewRow(delta.Int(1), delta.Int(7))))
package dataflow
