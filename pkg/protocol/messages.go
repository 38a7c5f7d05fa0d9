// ABOUTME: Resonate voice gateway message type definitions
// ABOUTME: Defines structs for the JSON control messages exchanged with a gateway
package protocol

// Message types
const (
	TypeClientHello     = "client/hello"
	TypeServerHello     = "server/hello"
	TypeClientGoodbye   = "client/goodbye"
	TypeServerGoodbye   = "server/goodbye"
	TypeServerError     = "server/error"
	TypeTranscript      = "session/transcript"
	TypeInterrupted     = "session/interrupted"
	TypeTurnComplete    = "session/turn_complete"
	TypeClientInterrupt = "client/interrupt"
)

// RoleVoice is the only role a gateway client announces
const RoleVoice = "voice@v1"

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID       string          `json:"client_id"`
	Name           string          `json:"name"`
	Version        int             `json:"version"`
	SupportedRoles []string        `json:"supported_roles"`
	DeviceInfo     *DeviceInfo     `json:"device_info,omitempty"`
	VoiceV1Support *VoiceV1Support `json:"voice@v1_support,omitempty"`
	Persona        *Persona        `json:"persona,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// VoiceV1Support describes what audio the client sends and can play
type VoiceV1Support struct {
	InputFormat   AudioFormat   `json:"input_format"`
	OutputFormats []AudioFormat `json:"output_formats"`
}

// AudioFormat describes an audio format
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// Persona is the agent configuration for the session
type Persona struct {
	Label             string `json:"label,omitempty"`
	Voice             string `json:"voice,omitempty"`
	SystemInstruction string `json:"system_instruction,omitempty"`
	Context           string `json:"context,omitempty"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID     string      `json:"server_id"`
	Name         string      `json:"name"`
	Version      int         `json:"version"`
	ActiveRoles  []string    `json:"active_roles"`
	SessionID    string      `json:"session_id"`
	OutputFormat AudioFormat `json:"output_format"`
}

// Transcript is one line of recognized or generated speech
type Transcript struct {
	Speaker string `json:"speaker"` // "user" or "agent"
	Text    string `json:"text"`
	Final   bool   `json:"final"`
}

// Interrupted tells the client to drop queued agent audio
type Interrupted struct {
	Reason string `json:"reason,omitempty"`
}

// TurnComplete marks the end of an agent turn
type TurnComplete struct{}

// ServerError reports a session-level failure
type ServerError struct {
	Code    string `json:"code"` // "unauthorized", "quota_exceeded", "unavailable", "bad_request"
	Message string `json:"message"`
}

// ClientGoodbye is sent before graceful disconnect
type ClientGoodbye struct {
	Reason string `json:"reason"` // "user_request", "shutdown"
}

// ServerGoodbye is sent before the server closes the session
type ServerGoodbye struct {
	Reason string `json:"reason"`
}
