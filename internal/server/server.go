// ABOUTME: Voice gateway server for the Resonate voice protocol
// ABOUTME: Manages WebSocket connections, handshakes, client state and reply streaming
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/discovery"
	"github.com/Resonate-Protocol/resonate-voice/internal/metrics"
	"github.com/Resonate-Protocol/resonate-voice/internal/version"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// ProtocolVersion is the gateway protocol version spoken by this server
	ProtocolVersion = 1

	// DefaultBufferAhead is how far reply audio runs ahead of real time
	DefaultBufferAhead = 300 * time.Millisecond

	sendBufferSize   = 256
	handshakeTimeout = 10 * time.Second
	writeDeadline    = 10 * time.Second
	closeGrace       = 2 * time.Second
)

// Error codes sent in server/error
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeDuplicate  = "duplicate_client_id"
)

// Config holds server configuration
type Config struct {
	Port         int
	Name         string
	EnableMDNS   bool
	Debug        bool
	UseTUI       bool
	OutputCodec  string        // preferred reply codec: wav, pcm or opus
	VADThreshold float64       // RMS energy that counts as speech
	ReplyFile    string        // WAV, MP3 or FLAC clip played as every reply. Empty = tone
	BufferAhead  time.Duration // reply audio sent ahead of real time
	MetricsPath  string        // Prometheus endpoint. Empty disables it
	Metrics      *metrics.Metrics
}

// Server represents the voice gateway
type Server struct {
	config   Config
	serverID string
	metrics  *metrics.Metrics

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// HTTP server
	httpServer *http.Server
	mux        *http.ServeMux

	// Client management
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// Reply clip loaded from ReplyFile
	clip *Clip

	// mDNS discovery
	mdnsManager *discovery.Manager

	// TUI
	tui        *ServerTUI
	startTime  time.Time
	activity   []string
	activityMu sync.Mutex

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client represents a connected voice client
type Client struct {
	ID      string
	Name    string
	Conn    *websocket.Conn
	Persona protocol.Persona
	Output  protocol.AudioFormat

	// State
	state    string
	turns    int
	bargeIns int

	// Output channel for messages
	sendChan chan interface{}

	mu sync.RWMutex
}

func (c *Client) setState(state string) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Client) bargedIn() {
	c.mu.Lock()
	c.bargeIns++
	c.mu.Unlock()
}

func (c *Client) nextTurn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns++
	return c.turns
}

// closeFrame asks the writer to close the connection
type closeFrame struct {
	reason string
}

// New creates a new server instance
func New(config Config) *Server {
	if config.Name == "" {
		config.Name = version.Product + " Gateway"
	}
	if config.OutputCodec == "" {
		config.OutputCodec = "wav"
	}
	if config.VADThreshold <= 0 {
		config.VADThreshold = DefaultVADThreshold
	}
	if config.BufferAhead == 0 {
		config.BufferAhead = DefaultBufferAhead
	}
	m := config.Metrics
	if m == nil {
		m = metrics.New("")
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		metrics:  m,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin != "" && origin != "http://localhost" && origin != "http://127.0.0.1" {
					log.Printf("Warning: accepting WebSocket from origin: %s", origin)
				}
				return true
			},
		},
		clients:   make(map[string]*Client),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}

	s.mux.HandleFunc(protocol.DefaultPath, s.handleWebSocket)
	if config.MetricsPath != "" {
		s.mux.Handle(config.MetricsPath, m.Handler())
	}
	return s
}

// Handler returns the HTTP handler serving the gateway and metrics endpoints
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the server until Stop is called, the TUI quits or the listener fails
func (s *Server) Start() error {
	if s.config.ReplyFile != "" {
		clip, err := LoadClip(s.config.ReplyFile, 48000)
		if err != nil {
			return fmt.Errorf("failed to load reply clip: %w", err)
		}
		s.clip = clip
		log.Printf("Reply clip loaded: %s (%v)", s.config.ReplyFile, clip.Duration().Round(time.Millisecond))
	}

	tuiDone := make(chan struct{})
	if s.config.UseTUI {
		s.tui = NewServerTUI()

		go func() {
			defer close(tuiDone)
			if err := s.tui.Start(s.status()); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
	} else {
		close(tuiDone)
	}

	log.Printf("Server starting: %s (ID: %s)", s.config.Name, s.serverID)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        protocol.DefaultPath,
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("WebSocket server listening on %s%s", addr, protocol.DefaultPath)
	if s.config.MetricsPath != "" {
		log.Printf("Metrics available on %s%s", addr, s.config.MetricsPath)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		log.Printf("Server shutting down...")
	case <-tuiQuitChan:
		log.Printf("TUI quit requested, shutting down...")
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		serverErr = err
	}

	s.shutdown()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Connections push TUI updates until they finish
	s.wg.Wait()
	if s.tui != nil {
		s.tui.Stop()
	}
	<-tuiDone
	log.Printf("Server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// shutdown rejects new connections and says goodbye to every client
func (s *Server) shutdown() {
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, client := range s.clients {
		if err := s.sendMessage(client, protocol.TypeServerGoodbye, protocol.ServerGoodbye{Reason: "shutdown"}); err != nil {
			log.Printf("Error sending goodbye to %s: %v", client.Name, err)
		}
		select {
		case client.sendChan <- closeFrame{reason: "server shutdown"}:
		default:
		}
		client.Conn.SetReadDeadline(time.Now().Add(closeGrace))
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New WebSocket connection from %s", r.RemoteAddr)

	s.wg.Add(1)
	defer s.wg.Done()
	s.handleConnection(conn)
}

// readHello waits for and validates client/hello
func (s *Server) readHello(conn *websocket.Conn) (*protocol.ClientHello, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("error reading hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var raw struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshaling message: %w", err)
	}

	if raw.Type != protocol.TypeClientHello {
		return nil, fmt.Errorf("expected client/hello, got %s", raw.Type)
	}

	var hello protocol.ClientHello
	if err := json.Unmarshal(raw.Payload, &hello); err != nil {
		return nil, fmt.Errorf("error unmarshaling client hello: %w", err)
	}

	if hello.ClientID == "" {
		return nil, fmt.Errorf("client hello missing client_id")
	}
	if hello.Name == "" {
		return nil, fmt.Errorf("client hello missing name")
	}
	if !slices.Contains(hello.SupportedRoles, protocol.RoleVoice) {
		return nil, fmt.Errorf("client does not support %s", protocol.RoleVoice)
	}
	if hello.VoiceV1Support == nil {
		return nil, fmt.Errorf("client hello missing voice@v1_support")
	}

	in := hello.VoiceV1Support.InputFormat
	if in.Codec != "pcm" || in.SampleRate != audio.CaptureSampleRate || in.Channels != 1 {
		return nil, fmt.Errorf("unsupported input format %s/%d/%d", in.Codec, in.SampleRate, in.Channels)
	}

	return &hello, nil
}

// rejectHandshake sends server/error on a connection that has no writer yet
func rejectHandshake(conn *websocket.Conn, code, message string) {
	msg := protocol.Message{
		Type:    protocol.TypeServerError,
		Payload: protocol.ServerError{Code: code, Message: message},
	}
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending handshake rejection: %v", err)
	}
}

// handleConnection manages a client connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		log.Printf("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	if s.config.Debug {
		log.Printf("[DEBUG] New connection, waiting for handshake")
	}

	hello, err := s.readHello(conn)
	if err != nil {
		log.Printf("Handshake failed: %v", err)
		rejectHandshake(conn, ErrCodeBadRequest, err.Error())
		return
	}

	output, err := negotiateOutput(hello.VoiceV1Support.OutputFormats, s.config.OutputCodec)
	if err != nil {
		log.Printf("Handshake failed for %s: %v", hello.Name, err)
		rejectHandshake(conn, ErrCodeBadRequest, err.Error())
		return
	}

	client := &Client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		Output:   output,
		state:    StateListening,
		sendChan: make(chan interface{}, sendBufferSize),
	}
	if hello.Persona != nil {
		client.Persona = *hello.Persona
	}

	log.Printf("Client hello: %s (ID: %s, persona: %q, voice: %q, output: %s/%d)",
		client.Name, client.ID, client.Persona.Label, client.Persona.Voice, output.Codec, output.SampleRate)

	conv, err := newConversation(s, client)
	if err != nil {
		log.Printf("Failed to prepare reply encoder for %s: %v", client.Name, err)
		rejectHandshake(conn, ErrCodeBadRequest, err.Error())
		return
	}

	// Check for duplicate client ID and register atomically
	s.clientsMu.Lock()
	if existing, exists := s.clients[client.ID]; exists {
		s.clientsMu.Unlock()
		conv.close()
		log.Printf("Client ID %s already connected (name: %s), rejecting duplicate", client.ID, existing.Name)
		rejectHandshake(conn, ErrCodeDuplicate, "client ID already connected")
		return
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	s.metrics.GatewayClients.Inc()
	s.note("%s connected (%s)", client.Name, client.Output.Codec)

	writerDone := make(chan struct{})
	defer func() {
		conv.close()
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()
		close(client.sendChan)
		<-writerDone
		s.metrics.GatewayClients.Dec()
		log.Printf("Client disconnected: %s", client.Name)
		s.note("%s disconnected", client.Name)
	}()

	serverHello := protocol.ServerHello{
		ServerID:     s.serverID,
		Name:         s.config.Name,
		Version:      ProtocolVersion,
		ActiveRoles:  []string{protocol.RoleVoice},
		SessionID:    uuid.New().String(),
		OutputFormat: output,
	}

	if err := s.sendMessage(client, protocol.TypeServerHello, serverHello); err != nil {
		log.Printf("Error sending server hello: %v", err)
		close(writerDone)
		return
	}

	go func() {
		defer close(writerDone)
		s.clientWriter(client)
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.handleBinaryMessage(conv, data)
		case websocket.TextMessage:
			if done := s.handleClientMessage(conv, data); done {
				return
			}
		}
	}
}

// clientWriter sends messages to the client
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	// Keep draining after a write error so producers never block on a dead client
	failed := false

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}
			if failed {
				continue
			}

			var err error
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			switch v := msg.(type) {
			case []byte:
				err = client.Conn.WriteMessage(websocket.BinaryMessage, v)
			case closeFrame:
				err = client.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, v.reason))
				failed = true
			default:
				err = client.Conn.WriteJSON(v)
			}
			if err != nil {
				log.Printf("Error writing to %s: %v", client.Name, err)
				failed = true
			}

		case <-ticker.C:
			if failed {
				continue
			}
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				failed = true
			}
		}
	}
}

// handleBinaryMessage routes microphone audio
func (s *Server) handleBinaryMessage(conv *conversation, data []byte) {
	msgType, _, payload, err := protocol.DecodeBinary(data)
	if err != nil {
		log.Printf("Bad binary frame from %s: %v", conv.client.Name, err)
		return
	}
	if msgType != protocol.AudioInputMessageType {
		log.Printf("Unexpected binary message type %d from %s", msgType, conv.client.Name)
		return
	}
	conv.handleAudio(payload)
}

// handleClientMessage processes control messages and reports whether the client said goodbye
func (s *Server) handleClientMessage(conv *conversation, data []byte) bool {
	var raw struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return false
	}

	switch raw.Type {
	case protocol.TypeClientGoodbye:
		var goodbye protocol.ClientGoodbye
		if len(raw.Payload) > 0 {
			if err := json.Unmarshal(raw.Payload, &goodbye); err != nil {
				log.Printf("Error unmarshaling goodbye: %v", err)
			}
		}
		log.Printf("Client %s said goodbye (%s)", conv.client.Name, goodbye.Reason)
		return true
	case protocol.TypeClientInterrupt:
		conv.interrupt("client_request")
	default:
		log.Printf("Unknown message type: %s", raw.Type)
	}
	return false
}

// sendMessage queues a JSON message without blocking
func (s *Server) sendMessage(client *Client, msgType string, payload interface{}) error {
	msg := protocol.Message{
		Type:    msgType,
		Payload: payload,
	}

	select {
	case client.sendChan <- msg:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// ClientCount returns the number of registered clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
