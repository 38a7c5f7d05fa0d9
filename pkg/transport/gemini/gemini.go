// ABOUTME: Gemini Live transport over a bidirectional websocket
// ABOUTME: Sends base64 PCM realtime input and maps server content onto transport messages
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/encode"
	"github.com/Resonate-Protocol/resonate-voice/pkg/transport"
	"github.com/coder/websocket"
)

var _ transport.Channel = (*Channel)(nil)
var _ transport.Conn = (*conn)(nil)

const (
	DefaultModel   = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	servicePath = "/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second

	// Inbound audio is 16-bit PCM at 24kHz unless the part says otherwise
	outputMIMEType = "audio/pcm;rate=24000"
)

// Option configures a Channel
type Option func(*Channel)

// WithModel sets the model used for sessions
func WithModel(model string) Option {
	return func(c *Channel) { c.model = model }
}

// WithBaseURL overrides the websocket endpoint, mostly for tests
func WithBaseURL(url string) Option {
	return func(c *Channel) { c.baseURL = url }
}

// WithOutboxSize sets how many capture frames may queue before Send fails
func WithOutboxSize(n int) Option {
	return func(c *Channel) { c.outboxSize = n }
}

// WithTranscription toggles input and output transcription
func WithTranscription(enabled bool) Option {
	return func(c *Channel) { c.transcription = enabled }
}

// Channel opens Gemini Live sessions
type Channel struct {
	apiKey        string
	model         string
	baseURL       string
	outboxSize    int
	transcription bool
}

// New creates a Gemini Live channel
func New(apiKey string, opts ...Option) *Channel {
	c := &Channel{
		apiKey:        apiKey,
		model:         DefaultModel,
		baseURL:       DefaultBaseURL,
		outboxSize:    transport.DefaultOutboxSize,
		transcription: true,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open dials the endpoint, sends setup and waits for setupComplete
func (c *Channel) Open(ctx context.Context, cfg transport.OpenConfig) (transport.Conn, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini: %w: missing API key", transport.ErrUnauthorized)
	}

	wsURL := fmt.Sprintf("%s%s?key=%s", c.baseURL, servicePath, c.apiKey)
	ws, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, fmt.Errorf("gemini: dial: %w", &transport.StatusError{StatusCode: resp.StatusCode, Err: err})
		}
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	// Audio responses can be large
	ws.SetReadLimit(16 << 20)

	connCtx, cancel := context.WithCancel(context.Background())
	cn := &conn{
		ws:       ws,
		outbox:   transport.NewOutbox(c.outboxSize),
		messages: make(chan transport.Message, 64),
		ctx:      connCtx,
		cancel:   cancel,
	}

	if err := cn.writeJSON(ctx, c.setup(cfg)); err != nil {
		cn.abort("setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	if err := cn.awaitSetupComplete(ctx); err != nil {
		cn.abort("setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	log.Printf("Gemini session open (model=%s, voice=%s)", c.model, cfg.Voice)

	cn.wg.Add(3)
	go cn.receiveLoop()
	go cn.writeLoop()
	go cn.keepaliveLoop()

	return cn, nil
}

func (c *Channel) setup(cfg transport.OpenConfig) setupMessage {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", c.model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
		},
	}

	if text := cfg.Instruction(); text != "" {
		msg.Setup.SystemInstruction = &content{
			Parts: []part{{Text: text}},
		}
	}

	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	if c.transcription {
		msg.Setup.InputAudioTranscription = &struct{}{}
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}

	return msg
}

// ── session ────────────────────────────────────────────────────────────────────

type conn struct {
	ws       *websocket.Conn
	outbox   *transport.Outbox
	messages chan transport.Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	msgClosed bool
	closeOnce sync.Once
}

func (c *conn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// awaitSetupComplete reads until the server acknowledges setup
func (c *conn) awaitSetupComplete(ctx context.Context) error {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return closeError(err)
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Gemini: skipping malformed frame during setup: %v", err)
			continue
		}
		if msg.Error != nil {
			return msg.Error.remote()
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
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
			msg := realtimeInputMessage{
				RealtimeInput: realtimeInput{
					MediaChunks: []blob{{
						MIMEType: fmt.Sprintf("audio/pcm;rate=%d", frame.SampleRate),
						Data:     encode.FrameBase64(frame),
					}},
				},
			}
			if err := c.writeJSON(c.ctx, msg); err != nil {
				if c.ctx.Err() == nil {
					c.fail(fmt.Errorf("gemini: write: %w", err))
				}
				return
			}
		}
	}
}

// receiveLoop reads server messages and owns the messages channel
func (c *conn) receiveLoop() {
	defer c.wg.Done()
	defer c.closeMessages()

	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.emitTerminal(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Gemini: skipping malformed frame: %v", err)
			continue
		}

		if !c.handleServerMessage(&msg) {
			return
		}
	}
}

// handleServerMessage reports false once the session is over
func (c *conn) handleServerMessage(msg *serverMessage) bool {
	if msg.Error != nil {
		c.emit(transport.Message{Kind: transport.KindError, Err: msg.Error.remote()})
		c.cancel()
		return false
	}

	if msg.GoAway != nil {
		log.Printf("Gemini: server going away in %s", msg.GoAway.TimeLeft)
	}

	sc := msg.ServerContent
	if sc == nil {
		return true
	}

	if sc.Interrupted {
		if !c.emit(transport.Message{Kind: transport.KindInterrupted}) {
			return false
		}
	}

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		if !c.emit(transport.Message{
			Kind:    transport.KindTranscript,
			Speaker: transport.SpeakerUser,
			Text:    sc.InputTranscription.Text,
			Final:   sc.InputTranscription.Finished,
		}) {
			return false
		}
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil {
				continue
			}
			data, err := decodeBase64(p.InlineData.Data)
			if err != nil || len(data) == 0 {
				log.Printf("Gemini: dropping undecodable audio part: %v", err)
				continue
			}
			mimeType := p.InlineData.MIMEType
			if mimeType == "" {
				mimeType = outputMIMEType
			}
			if !c.emit(transport.Message{Kind: transport.KindAudio, Audio: data, MIMEType: mimeType}) {
				return false
			}
		}
	}

	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		if !c.emit(transport.Message{
			Kind:    transport.KindTranscript,
			Speaker: transport.SpeakerAgent,
			Text:    sc.OutputTranscription.Text,
			Final:   sc.OutputTranscription.Finished,
		}) {
			return false
		}
	}

	if sc.TurnComplete {
		if !c.emit(transport.Message{Kind: transport.KindTurnComplete}) {
			return false
		}
	}

	return true
}

// emit delivers a message unless the connection is shutting down
func (c *conn) emit(msg transport.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.msgClosed {
		return false
	}
	select {
	case c.messages <- msg:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// closeMessages ends the inbound stream. Callers cancel ctx first so a
// blocked emit gives up the lock.
func (c *conn) closeMessages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.msgClosed {
		c.msgClosed = true
		close(c.messages)
	}
}

// emitTerminal turns a read error into the final message of the stream
func (c *conn) emitTerminal(err error) {
	if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		var ce websocket.CloseError
		reason := "closed by server"
		if errors.As(err, &ce) && ce.Reason != "" {
			reason = ce.Reason
		}
		c.emit(transport.Message{Kind: transport.KindClosed, Reason: reason})
	} else {
		c.emit(transport.Message{Kind: transport.KindError, Err: fmt.Errorf("gemini: read: %w", closeError(err))})
	}
	c.cancel()
}

// fail reports a local write failure as the terminal message
func (c *conn) fail(err error) {
	c.emit(transport.Message{Kind: transport.KindError, Err: err})
	c.cancel()
}

// keepaliveLoop sends websocket pings to keep the connection alive
func (c *conn) keepaliveLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, keepaliveTimeout)
			if err := c.ws.Ping(pingCtx); err != nil && c.ctx.Err() == nil {
				log.Printf("Gemini: keepalive ping failed: %v", err)
			}
			cancel()
		}
	}
}

// abort tears down a connection that never finished opening
func (c *conn) abort(reason string) {
	c.cancel()
	c.outbox.Close()
	c.ws.Close(websocket.StatusInternalError, reason)
}

// Close terminates the session. Idempotent.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.outbox.Close()
		c.cancel()
		c.ws.Close(websocket.StatusNormalClosure, "session closed")
		c.wg.Wait()
		c.closeMessages()
	})
	return nil
}

// closeError converts abnormal websocket closes into remote errors
func closeError(err error) error {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return &transport.RemoteError{Code: int(ce.Code), Message: ce.Reason}
	}
	return err
}
