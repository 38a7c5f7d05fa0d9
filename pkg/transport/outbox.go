// ABOUTME: Bounded non-blocking outbound queue
// ABOUTME: Lets audio callbacks hand frames to a network writer without waiting
package transport

import (
	"sync"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// DefaultOutboxSize holds roughly 16s of 4096-sample frames at 16kHz
const DefaultOutboxSize = 64

// Outbox queues frames for a single writer goroutine
type Outbox struct {
	mu     sync.Mutex
	ch     chan audio.Frame
	done   chan struct{}
	closed bool
}

// NewOutbox creates a queue holding up to size frames
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		ch:   make(chan audio.Frame, size),
		done: make(chan struct{}),
	}
}

// Push enqueues a frame, returning ErrBackpressure when full and ErrClosed after Close
func (o *Outbox) Push(frame audio.Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	select {
	case o.ch <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

// Frames is read by the writer goroutine
func (o *Outbox) Frames() <-chan audio.Frame {
	return o.ch
}

// Done is closed when the outbox is closed
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Len returns the number of queued frames
func (o *Outbox) Len() int {
	return len(o.ch)
}

// Close stops accepting frames. Queued frames are abandoned.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.done)
	}
}
