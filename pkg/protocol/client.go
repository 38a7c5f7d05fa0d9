// ABOUTME: WebSocket client for the Resonate voice gateway protocol
// ABOUTME: Handles connection, handshake, audio upload and ordered event routing
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultPath is the gateway websocket endpoint
	DefaultPath = "/resonate-voice"

	defaultHandshakeTimeout = 5 * time.Second
)

// Config holds client configuration
type Config struct {
	ServerAddr       string
	Path             string
	ClientID         string
	Name             string
	Version          int
	DeviceInfo       DeviceInfo
	VoiceV1Support   VoiceV1Support
	Persona          *Persona
	HandshakeTimeout time.Duration
}

// HandshakeError is a websocket upgrade rejected with an HTTP status
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake rejected with HTTP %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// Error implements error so a server/error can be returned from Connect
func (e ServerError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// AudioChunk is one binary audio frame from the server
type AudioChunk struct {
	Type byte
	Seq  uint64
	Data []byte
}

// Event is one inbound message. Exactly one of the pointer fields is set.
type Event struct {
	Type         string
	Audio        *AudioChunk
	Transcript   *Transcript
	Interrupted  *Interrupted
	TurnComplete *TurnComplete
	Error        *ServerError
	Goodbye      *ServerGoodbye
}

// Client represents a WebSocket client
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex

	// writeMu serializes writers; gorilla allows one concurrent writer
	writeMu sync.Mutex

	// Events carries every inbound message in arrival order. It is closed
	// when the connection ends.
	Events chan Event

	// State
	connected   bool
	serverHello ServerHello
	seq         uint64
	readErr     error
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = defaultHandshakeTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config: config,
		Events: make(chan Event, 100),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect establishes WebSocket connection and performs handshake
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	log.Printf("Connecting to %s", u.String())

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
			return &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	// Unblock the handshake read if ctx ends first
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	err = c.handshake()
	if !stop() {
		if err == nil {
			err = ctx.Err()
		} else {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
	}
	if err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake performs the protocol handshake
func (c *Client) handshake() error {
	hello := ClientHello{
		ClientID:       c.config.ClientID,
		Name:           c.config.Name,
		Version:        c.config.Version,
		SupportedRoles: []string{RoleVoice},
		DeviceInfo:     &c.config.DeviceInfo,
		VoiceV1Support: &c.config.VoiceV1Support,
		Persona:        c.config.Persona,
	}

	if err := c.sendJSON(Message{Type: TypeClientHello, Payload: hello}); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.config.HandshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var raw struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	switch raw.Type {
	case TypeServerHello:
	case TypeServerError:
		var serverErr ServerError
		if err := json.Unmarshal(raw.Payload, &serverErr); err != nil {
			return fmt.Errorf("failed to parse server/error: %w", err)
		}
		return serverErr
	default:
		return fmt.Errorf("expected server/hello, got %s", raw.Type)
	}

	var serverHello ServerHello
	if err := json.Unmarshal(raw.Payload, &serverHello); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	c.mu.Lock()
	c.serverHello = serverHello
	c.mu.Unlock()

	log.Printf("Handshake complete with server %s (session %s)", serverHello.Name, serverHello.SessionID)
	return nil
}

// ServerHello returns the handshake reply
func (c *Client) ServerHello() ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverHello
}

// sendJSON sends a JSON message
func (c *Client) sendJSON(msg Message) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()

	if !connected {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// SendAudio uploads one block of PCM16 microphone audio
func (c *Client) SendAudio(pcm []byte) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()

	if !connected {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.seq++
	return conn.WriteMessage(websocket.BinaryMessage, EncodeBinary(AudioInputMessageType, c.seq, pcm))
}

// SendGoodbye sends a client/goodbye message before disconnecting
func (c *Client) SendGoodbye(reason string) error {
	return c.sendJSON(Message{Type: TypeClientGoodbye, Payload: ClientGoodbye{Reason: reason}})
}

// SendInterrupt asks the server to stop the current agent turn
func (c *Client) SendInterrupt() error {
	return c.sendJSON(Message{Type: TypeClientInterrupt, Payload: struct{}{}})
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer close(c.Events)
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				log.Printf("Read error: %v", err)
				c.mu.Lock()
				c.readErr = err
				c.mu.Unlock()
			}
			return
		}

		var ev *Event
		switch messageType {
		case websocket.BinaryMessage:
			ev = c.handleBinaryMessage(data)
		case websocket.TextMessage:
			ev = c.handleJSONMessage(data)
		default:
			log.Printf("Unknown WebSocket message type: %d", messageType)
		}

		if ev == nil {
			continue
		}
		select {
		case c.Events <- *ev:
		case <-c.ctx.Done():
			return
		}
	}
}

// handleBinaryMessage handles audio frames
func (c *Client) handleBinaryMessage(data []byte) *Event {
	msgType, seq, payload, err := DecodeBinary(data)
	if err != nil {
		log.Printf("%v", err)
		return nil
	}

	switch msgType {
	case AudioOutputMessageType, OpusOutputMessageType:
	default:
		log.Printf("Unknown binary message type: %d", msgType)
		return nil
	}

	return &Event{
		Type:  "audio",
		Audio: &AudioChunk{Type: msgType, Seq: seq, Data: payload},
	}
}

// handleJSONMessage parses JSON control messages
func (c *Client) handleJSONMessage(data []byte) *Event {
	var raw struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Printf("Failed to parse JSON message: %v", err)
		return nil
	}

	ev := &Event{Type: raw.Type}
	var target interface{}

	switch raw.Type {
	case TypeTranscript:
		ev.Transcript = &Transcript{}
		target = ev.Transcript
	case TypeInterrupted:
		ev.Interrupted = &Interrupted{}
		target = ev.Interrupted
	case TypeTurnComplete:
		ev.TurnComplete = &TurnComplete{}
		target = ev.TurnComplete
	case TypeServerError:
		ev.Error = &ServerError{}
		target = ev.Error
	case TypeServerGoodbye:
		ev.Goodbye = &ServerGoodbye{}
		target = ev.Goodbye
	default:
		log.Printf("Unknown message type: %s", raw.Type)
		return nil
	}

	if len(raw.Payload) > 0 && string(raw.Payload) != "null" {
		if err := json.Unmarshal(raw.Payload, target); err != nil {
			log.Printf("Failed to parse %s: %v", raw.Type, err)
			return nil
		}
	}
	return ev
}

// Err returns the error that ended the read loop, nil after a local Close
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readErr
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		log.Printf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
