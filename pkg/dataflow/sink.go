package dataflow

import (
	"sync"

	"github.com/l7mp/dflow/pkg/delta"
)

// DefaultSinkBuffer is the default capacity of a ChannelSink.
const DefaultSinkBuffer = 64

// Sink receives the envelopes broadcast by a leaf. Send is called inside the critical section of
// the graph and must not block. A sink whose Send fails is detached, and stopped if it implements
// Stop(). Implementations must be comparable, e.g., pointers, since Detach looks sinks up by
// identity.
type Sink interface {
	Send(env delta.Envelope) error
}

type stopper interface {
	Stop()
}

var _ Sink = &ChannelSink{}

// ChannelSink queues envelopes on a buffered channel. When the channel is full the sink fails
// with ErrSinkOverflow, which causes the leaf to detach and stop it.
type ChannelSink struct {
	result  chan delta.Envelope
	stopped bool
	sync.Mutex
}

// NewChannelSink creates a sink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = DefaultSinkBuffer
	}
	return &ChannelSink{result: make(chan delta.Envelope, buffer)}
}

// ResultChan returns the channel the envelopes are delivered on. The channel is closed when the
// sink is stopped.
func (s *ChannelSink) ResultChan() <-chan delta.Envelope {
	return s.result
}

// Send queues a copy of the envelope.
func (s *ChannelSink) Send(env delta.Envelope) error {
	s.Lock()
	defer s.Unlock()
	if s.stopped {
		return ErrSinkClosed
	}

	select {
	case s.result <- env.DeepCopy():
		return nil
	default:
		return ErrSinkOverflow
	}
}

// Stop closes the result channel. Stop is idempotent.
func (s *ChannelSink) Stop() {
	s.Lock()
	defer s.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.result)
	}
}

// Stopped reports whether the sink has been stopped.
func (s *ChannelSink) Stopped() bool {
	s.Lock()
	defer s.Unlock()
	return s.stopped
}
