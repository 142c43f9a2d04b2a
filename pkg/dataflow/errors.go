package dataflow

import (
	"errors"
	"fmt"

	"github.com/l7mp/dflow/pkg/delta"
)

var (
	// ErrMalformedSpec is returned when a graph cannot be constructed from its specification.
	ErrMalformedSpec = errors.New("malformed graph specification")
	// ErrUnknownRoot is returned when a change is submitted to an unregistered root.
	ErrUnknownRoot = errors.New("unknown root")
	// ErrUnknownLeaf is returned when a view name does not refer to a leaf.
	ErrUnknownLeaf = errors.New("unknown leaf")
	// ErrRowShapeMismatch is returned when an operator accesses a column beyond the width of a
	// row, or a row does not conform to the declared schema.
	ErrRowShapeMismatch = errors.New("row shape mismatch")
	// ErrSinkClosed is returned when sending to a stopped sink.
	ErrSinkClosed = errors.New("sink closed")
	// ErrSinkOverflow is returned when a sink cannot accept more envelopes.
	ErrSinkOverflow = errors.New("sink overflow")
	// ErrExecutorStopped is returned for requests sent to an executor that is not running.
	ErrExecutorStopped = errors.New("executor stopped")
	// ErrExecutorStarted is returned when starting an executor that has already been started.
	ErrExecutorStarted = errors.New("executor already started")
)

type ErrMalformed = error

func NewMalformedSpecError(format string, args ...any) ErrMalformed {
	return fmt.Errorf("%w: %s", ErrMalformedSpec, fmt.Sprintf(format, args...))
}

type ErrRoot = error

func NewUnknownRootError(id string) ErrRoot {
	return fmt.Errorf("%w %q", ErrUnknownRoot, id)
}

type ErrLeaf = error

func NewUnknownLeafError(name string) ErrLeaf {
	return fmt.Errorf("%w %q", ErrUnknownLeaf, name)
}

type ErrRowShape = error

func NewRowShapeMismatchError(op string, row delta.Row, err error) ErrRowShape {
	return fmt.Errorf("%w in %s: row %s: %w", ErrRowShapeMismatch, op, row, err)
}

type ErrOperator = error

// NewOperatorError adds the identity of the failing node to an error.
func NewOperatorError(id NodeID, op Operator, err error) ErrOperator {
	return fmt.Errorf("node %d (%s): %w", id, op, err)
}
