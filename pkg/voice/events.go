// ABOUTME: Tagged session events and their ordered delivery
// ABOUTME: A notifier goroutine invokes callbacks so audio threads never block on them
package voice

import "sync"

// EventKind tags a session event
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventError
	EventTranscript
	EventAudioLevel
	EventInterrupted
	EventTurnComplete
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventTranscript:
		return "transcript"
	case EventAudioLevel:
		return "audio_level"
	case EventInterrupted:
		return "interrupted"
	case EventTurnComplete:
		return "turn_complete"
	default:
		return "unknown"
	}
}

// Event is one caller-visible occurrence
type Event struct {
	Kind EventKind

	// EventError
	Message string

	// EventTranscript
	Text   string
	IsUser bool

	// EventAudioLevel
	Level float64
}

// dispatch invokes the matching callback
func (cb Callbacks) dispatch(ev Event) {
	switch ev.Kind {
	case EventConnected:
		if cb.OnConnect != nil {
			cb.OnConnect()
		}
	case EventDisconnected:
		if cb.OnDisconnect != nil {
			cb.OnDisconnect()
		}
	case EventError:
		if cb.OnError != nil {
			cb.OnError(ev.Message)
		}
	case EventTranscript:
		if cb.OnTranscript != nil {
			cb.OnTranscript(ev.Text, ev.IsUser)
		}
	case EventAudioLevel:
		if cb.OnAudioLevel != nil {
			cb.OnAudioLevel(ev.Level)
		}
	case EventInterrupted:
		if cb.OnInterrupted != nil {
			cb.OnInterrupted()
		}
	case EventTurnComplete:
		if cb.OnTurnComplete != nil {
			cb.OnTurnComplete()
		}
	}
}

type queued struct {
	cb Callbacks
	ev Event
}

// notifier is an unbounded FIFO drained by one goroutine
type notifier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []queued
	closed  bool
	drained chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{drained: make(chan struct{})}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

// post enqueues without blocking. Events posted after close are dropped.
func (n *notifier) post(cb Callbacks, ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.queue = append(n.queue, queued{cb: cb, ev: ev})
	n.cond.Signal()
}

func (n *notifier) run() {
	defer close(n.drained)

	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}
		batch := n.queue
		n.queue = nil
		n.mu.Unlock()

		for _, q := range batch {
			q.cb.dispatch(q.ev)
		}
	}
}

// close stops accepting events and waits until queued ones are delivered.
// It must not be called from a callback.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.cond.Signal()
	n.mu.Unlock()
	<-n.drained
}
