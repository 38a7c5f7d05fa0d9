// ABOUTME: Transport channel interface between the engine and a remote agent
// ABOUTME: Defines the Channel/Conn contract and the tagged inbound Message
package transport

import (
	"context"
	"errors"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

var (
	// ErrClosed is returned when sending on a closed connection
	ErrClosed = errors.New("transport closed")

	// ErrBackpressure is returned when the outbound queue is full
	ErrBackpressure = errors.New("outbound queue full")

	// ErrUnauthorized is returned when the remote rejects the credentials
	ErrUnauthorized = errors.New("unauthorized")
)

// Kind tags an inbound message
type Kind int

const (
	KindAudio Kind = iota
	KindTranscript
	KindInterrupted
	KindTurnComplete
	KindClosed
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindTranscript:
		return "transcript"
	case KindInterrupted:
		return "interrupted"
	case KindTurnComplete:
		return "turn_complete"
	case KindClosed:
		return "closed"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Speaker identifies who a transcript line belongs to
type Speaker int

const (
	SpeakerAgent Speaker = iota
	SpeakerUser
)

func (s Speaker) String() string {
	if s == SpeakerUser {
		return "user"
	}
	return "agent"
}

// Message is one inbound event from the remote agent
type Message struct {
	Kind Kind

	// KindAudio
	Audio      []byte
	MIMEType   string
	SampleRate int

	// KindTranscript
	Text    string
	Speaker Speaker
	Final   bool

	// KindClosed carries Reason; KindError carries Err
	Reason string
	Err    error
}

// OpenConfig is what the engine tells the remote about the session
type OpenConfig struct {
	SessionID         string
	Voice             string
	SystemInstruction string
	Context           string
	PersonaLabel      string
}

// Instruction returns the system instruction with the context payload appended
func (c OpenConfig) Instruction() string {
	switch {
	case c.Context == "":
		return c.SystemInstruction
	case c.SystemInstruction == "":
		return c.Context
	default:
		return c.SystemInstruction + "\n\n" + c.Context
	}
}

// Channel opens connections to a remote agent
type Channel interface {
	// Open connects and completes any handshake. It blocks until the
	// connection is usable, fails, or ctx is done.
	Open(ctx context.Context, cfg OpenConfig) (Conn, error)
}

// Conn is one open duplex session
type Conn interface {
	// Send queues a capture frame and returns without waiting for the network.
	// Frames are written in the order they were sent.
	Send(frame audio.Frame) error

	// Messages delivers inbound messages in arrival order. The channel is
	// closed after a KindClosed or KindError message, or after Close.
	Messages() <-chan Message

	// Close releases the connection. Safe to call more than once.
	Close() error
}
