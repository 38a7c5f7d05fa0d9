// ABOUTME: In-memory transport for tests
// ABOUTME: Records opens and sent frames and lets tests inject inbound messages
package mock

import (
	"context"
	"sync"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/transport"
)

// Channel is a transport.Channel whose connections are in-memory
type Channel struct {
	// OpenErr makes every Open fail
	OpenErr error
	// Block makes Open wait until ctx is done or Release is called
	Block bool
	// SendErr makes every Send on new connections fail
	SendErr error

	mu      sync.Mutex
	configs []transport.OpenConfig
	conns   []*Conn
	release chan struct{}
}

// NewChannel creates a mock channel
func NewChannel() *Channel {
	return &Channel{release: make(chan struct{})}
}

// Open records the config and returns a new connection
func (c *Channel) Open(ctx context.Context, cfg transport.OpenConfig) (transport.Conn, error) {
	c.mu.Lock()
	c.configs = append(c.configs, cfg)
	block := c.Block
	release := c.release
	openErr := c.OpenErr
	c.mu.Unlock()

	if block {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
		}
	}
	if openErr != nil {
		return nil, openErr
	}

	conn := &Conn{
		messages: make(chan transport.Message, 64),
		sendErr:  c.SendErr,
	}
	c.mu.Lock()
	c.conns = append(c.conns, conn)
	c.mu.Unlock()
	return conn, nil
}

// Release unblocks pending Opens
func (c *Channel) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.release:
	default:
		close(c.release)
	}
}

// Configs returns every OpenConfig seen
func (c *Channel) Configs() []transport.OpenConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transport.OpenConfig, len(c.configs))
	copy(out, c.configs)
	return out
}

// Conns returns every connection opened
func (c *Channel) Conns() []*Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Conn, len(c.conns))
	copy(out, c.conns)
	return out
}

// Last returns the most recent connection, or nil
func (c *Channel) Last() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.conns) == 0 {
		return nil
	}
	return c.conns[len(c.conns)-1]
}

// Conn is an in-memory transport.Conn
type Conn struct {
	mu       sync.Mutex
	sent     []audio.Frame
	messages chan transport.Message
	sendErr  error
	closed   bool
	closes   int
}

// Send records the frame
func (c *Conn) Send(frame audio.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, frame)
	return nil
}

// Messages returns the inbound stream
func (c *Conn) Messages() <-chan transport.Message {
	return c.messages
}

// Inject delivers an inbound message. It reports false once the stream is closed.
func (c *Conn) Inject(msg transport.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.messages <- msg
	if msg.Kind == transport.KindClosed || msg.Kind == transport.KindError {
		c.closed = true
		close(c.messages)
	}
	return true
}

// SetSendErr changes the result of later Sends
func (c *Conn) SetSendErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Close ends the inbound stream
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	if !c.closed {
		c.closed = true
		close(c.messages)
	}
	return nil
}

// Sent returns every frame sent so far
func (c *Conn) Sent() []audio.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audio.Frame, len(c.sent))
	copy(out, c.sent)
	return out
}

// Closes returns how many times Close was called
func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// IsClosed reports whether the inbound stream has ended
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
