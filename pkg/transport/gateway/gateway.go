// ABOUTME: Resonate voice gateway transport
// ABOUTME: Adapts the protocol client to the transport Channel/Conn contract
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/Resonate-Protocol/resonate-voice/internal/version"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/encode"
	"github.com/Resonate-Protocol/resonate-voice/pkg/protocol"
	"github.com/Resonate-Protocol/resonate-voice/pkg/transport"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var _ transport.Channel = (*Channel)(nil)
var _ transport.Conn = (*conn)(nil)

// OpusMIMEType labels opus packets from the gateway
const OpusMIMEType = "audio/opus;rate=48000;channels=1"

// Option configures a Channel
type Option func(*Channel)

// WithPath overrides the websocket endpoint path
func WithPath(path string) Option {
	return func(c *Channel) { c.path = path }
}

// WithClientID fixes the client id instead of generating one per session
func WithClientID(id string) Option {
	return func(c *Channel) { c.clientID = id }
}

// WithName sets the client name announced in client/hello
func WithName(name string) Option {
	return func(c *Channel) { c.name = name }
}

// WithOutboxSize sets how many capture frames may queue before Send fails
func WithOutboxSize(n int) Option {
	return func(c *Channel) { c.outboxSize = n }
}

// WithOutputFormats sets the formats offered to the gateway, best first
func WithOutputFormats(formats ...protocol.AudioFormat) Option {
	return func(c *Channel) { c.outputFormats = formats }
}

// DefaultOutputFormats lists what the playback path can decode
var DefaultOutputFormats = []protocol.AudioFormat{
	{Codec: "opus", Channels: 1, SampleRate: 48000, BitDepth: 16},
	{Codec: "wav", Channels: 1, SampleRate: audio.PlaybackSampleRate, BitDepth: 16},
	{Codec: "pcm", Channels: 1, SampleRate: audio.PlaybackSampleRate, BitDepth: 16},
}

// Channel opens sessions on a voice gateway
type Channel struct {
	addr          string
	path          string
	clientID      string
	name          string
	outboxSize    int
	outputFormats []protocol.AudioFormat
}

// New creates a gateway channel for host:port
func New(addr string, opts ...Option) *Channel {
	c := &Channel{
		addr:          addr,
		path:          protocol.DefaultPath,
		name:          version.Product,
		outboxSize:    transport.DefaultOutboxSize,
		outputFormats: DefaultOutputFormats,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open connects, sends client/hello with the persona and waits for server/hello
func (c *Channel) Open(ctx context.Context, cfg transport.OpenConfig) (transport.Conn, error) {
	clientID := c.clientID
	if clientID == "" {
		clientID = uuid.New().String()
	}

	client := protocol.NewClient(protocol.Config{
		ServerAddr: c.addr,
		Path:       c.path,
		ClientID:   clientID,
		Name:       c.name,
		Version:    1,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		VoiceV1Support: protocol.VoiceV1Support{
			InputFormat: protocol.AudioFormat{
				Codec:      "pcm",
				Channels:   1,
				SampleRate: audio.CaptureSampleRate,
				BitDepth:   16,
			},
			OutputFormats: c.outputFormats,
		},
		Persona: &protocol.Persona{
			Label:             cfg.PersonaLabel,
			Voice:             cfg.Voice,
			SystemInstruction: cfg.SystemInstruction,
			Context:           cfg.Context,
		},
	})

	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("gateway: %w", convertError(err))
	}

	hello := client.ServerHello()
	connCtx, cancel := context.WithCancel(context.Background())
	cn := &conn{
		client:     client,
		outbox:     transport.NewOutbox(c.outboxSize),
		messages:   make(chan transport.Message, 64),
		outputMIME: MIMEType(hello.OutputFormat),
		ctx:        connCtx,
		cancel:     cancel,
	}

	log.Printf("Gateway session %s open (output=%s)", hello.SessionID, cn.outputMIME)

	cn.wg.Add(2)
	go cn.writeLoop()
	go cn.pump()

	return cn, nil
}

// MIMEType describes a negotiated output format for the decoder
func MIMEType(f protocol.AudioFormat) string {
	rate := f.SampleRate
	if rate == 0 {
		rate = audio.PlaybackSampleRate
	}
	channels := f.Channels
	if channels == 0 {
		channels = 1
	}

	switch f.Codec {
	case "wav":
		return "audio/wav"
	case "flac":
		return "audio/flac"
	case "mp3":
		return "audio/mpeg"
	case "opus":
		return fmt.Sprintf("audio/opus;rate=%d;channels=%d", rate, channels)
	default:
		return fmt.Sprintf("audio/pcm;rate=%d;channels=%d", rate, channels)
	}
}

// convertError maps protocol failures onto the transport error types
func convertError(err error) error {
	var hsErr *protocol.HandshakeError
	if errors.As(err, &hsErr) {
		return &transport.StatusError{StatusCode: hsErr.StatusCode, Err: err}
	}
	var serverErr protocol.ServerError
	if errors.As(err, &serverErr) {
		return &transport.RemoteError{Status: serverErr.Code, Message: serverErr.Message}
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return &transport.RemoteError{Code: closeErr.Code, Message: closeErr.Text}
	}
	return err
}

type conn struct {
	client     *protocol.Client
	outbox     *transport.Outbox
	messages   chan transport.Message
	outputMIME string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	writeErr error

	closeOnce sync.Once
}

// Send queues a capture frame for the writer
func (c *conn) Send(frame audio.Frame) error {
	return c.outbox.Push(frame)
}

// Messages returns the inbound stream
func (c *conn) Messages() <-chan transport.Message {
	return c.messages
}

// writeLoop drains the outbox in order
func (c *conn) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.outbox.Done():
			return
		case frame := <-c.outbox.Frames():
			if err := c.client.SendAudio(encode.Pack(frame.Samples)); err != nil {
				if c.ctx.Err() == nil {
					log.Printf("Gateway: write failed: %v", err)
					c.mu.Lock()
					c.writeErr = err
					c.mu.Unlock()
					// Ends the pump, which reports writeErr
					c.client.Close()
				}
				return
			}
		}
	}
}

// pump maps protocol events onto transport messages and owns the messages channel
func (c *conn) pump() {
	defer c.wg.Done()
	defer close(c.messages)

	for ev := range c.client.Events {
		msg, terminal := c.translate(ev)
		if msg == nil {
			continue
		}
		if !c.deliver(*msg) || terminal {
			c.client.Close()
			return
		}
	}

	if c.ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	writeErr := c.writeErr
	c.mu.Unlock()
	if writeErr != nil {
		c.deliver(transport.Message{Kind: transport.KindError, Err: fmt.Errorf("gateway: write: %w", writeErr)})
		return
	}
	if err := c.client.Err(); err != nil && !isNormalClose(err) {
		c.deliver(transport.Message{Kind: transport.KindError, Err: fmt.Errorf("gateway: read: %w", convertError(err))})
		return
	}
	c.deliver(transport.Message{Kind: transport.KindClosed, Reason: "closed by server"})
}

// translate reports the message for ev and whether it ends the session
func (c *conn) translate(ev protocol.Event) (*transport.Message, bool) {
	switch {
	case ev.Audio != nil:
		mimeType := c.outputMIME
		if ev.Audio.Type == protocol.OpusOutputMessageType && !strings.HasPrefix(mimeType, "audio/opus") {
			mimeType = OpusMIMEType
		}
		return &transport.Message{Kind: transport.KindAudio, Audio: ev.Audio.Data, MIMEType: mimeType}, false
	case ev.Transcript != nil:
		speaker := transport.SpeakerAgent
		if ev.Transcript.Speaker == "user" {
			speaker = transport.SpeakerUser
		}
		return &transport.Message{
			Kind:    transport.KindTranscript,
			Speaker: speaker,
			Text:    ev.Transcript.Text,
			Final:   ev.Transcript.Final,
		}, false
	case ev.Interrupted != nil:
		return &transport.Message{Kind: transport.KindInterrupted}, false
	case ev.TurnComplete != nil:
		return &transport.Message{Kind: transport.KindTurnComplete}, false
	case ev.Error != nil:
		return &transport.Message{
			Kind: transport.KindError,
			Err:  fmt.Errorf("gateway: %w", &transport.RemoteError{Status: ev.Error.Code, Message: ev.Error.Message}),
		}, true
	case ev.Goodbye != nil:
		reason := ev.Goodbye.Reason
		if reason == "" {
			reason = "closed by server"
		}
		return &transport.Message{Kind: transport.KindClosed, Reason: reason}, true
	}
	return nil, false
}

// deliver blocks until the consumer takes msg or the conn is closed locally
func (c *conn) deliver(msg transport.Message) bool {
	select {
	case c.messages <- msg:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// Close sends a goodbye and releases the connection. Safe to call more than once.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.outbox.Close()
		if c.client.IsConnected() {
			if err := c.client.SendGoodbye("user_request"); err != nil {
				log.Printf("Gateway: goodbye not sent: %v", err)
			}
		}
		c.cancel()
		c.client.Close()
		c.wg.Wait()
	})
	return nil
}
