package dataflow

import (
	"context"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/l7mp/dflow/pkg/delta"
)

const requestQueueLength = 128

type request struct {
	run  func() error
	done chan error
}

// Executor runs the operations on a graph in a single worker goroutine, in the order they were
// enqueued. Contexts bound only the time a caller waits: a request that has been enqueued runs to
// completion even if its caller gives up.
type Executor struct {
	graph    *Graph
	requests chan request
	stopped  chan struct{}
	started  atomic.Bool
	log      logr.Logger
}

// NewExecutor creates an executor for a graph. Call Start to run it.
func NewExecutor(g *Graph, log logr.Logger) *Executor {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Executor{
		graph:    g,
		requests: make(chan request, requestQueueLength),
		stopped:  make(chan struct{}),
		log:      log.WithName("executor"),
	}
}

// Graph returns the graph the executor runs on.
func (e *Executor) Graph() *Graph { return e.graph }

// Start runs the worker until the context is canceled. Requests still in the queue are dropped
// and their callers receive ErrExecutorStopped. An executor can be started only once.
func (e *Executor) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrExecutorStarted
	}
	e.log.V(1).Info("starting")
	defer close(e.stopped)

	for {
		select {
		case <-ctx.Done():
			e.log.V(1).Info("stopping")
			return nil
		case req := <-e.requests:
			req.done <- req.run()
		}
	}
}

func (e *Executor) do(ctx context.Context, run func() error) error {
	req := request{run: run, done: make(chan error, 1)}

	select {
	case e.requests <- req:
	case <-e.stopped:
		return ErrExecutorStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-e.stopped:
		// the worker may have picked up the request right before stopping
		select {
		case err := <-req.done:
			return err
		default:
			return ErrExecutorStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues a batch of changes for a root and waits until it has been propagated.
func (e *Executor) Submit(ctx context.Context, rootID string, batch ...delta.Change) error {
	return e.do(ctx, func() error { return e.graph.SubmitBatch(rootID, batch) })
}

// Attach enqueues attaching a sink to a leaf.
func (e *Executor) Attach(ctx context.Context, leaf string, sink Sink) error {
	return e.do(ctx, func() error { return e.graph.Attach(leaf, sink) })
}

// Detach enqueues detaching a sink from a leaf.
func (e *Executor) Detach(ctx context.Context, leaf string, sink Sink) error {
	return e.do(ctx, func() error { return e.graph.Detach(leaf, sink) })
}

// Snapshot enqueues taking the snapshot of a leaf.
func (e *Executor) Snapshot(ctx context.Context, leaf string) (delta.Change, error) {
	var ret delta.Change
	if err := e.do(ctx, func() error {
		var err error
		ret, err = e.graph.Snapshot(leaf)
		return err
	}); err != nil {
		return delta.Change{}, err
	}
	return ret, nil
}
