// ABOUTME: Session configuration and caller callbacks
// ABOUTME: Defines the voice identity set, the persona config and lifecycle hooks
package voice

import (
	"fmt"
	"strings"
)

// Voice is a prebuilt agent voice identity
type Voice int

const (
	VoicePuck Voice = iota
	VoiceCharon
	VoiceKore
	VoiceFenrir
	VoiceAoede
	VoiceLeda
	VoiceOrus
	VoiceZephyr
)

var voiceNames = []string{"Puck", "Charon", "Kore", "Fenrir", "Aoede", "Leda", "Orus", "Zephyr"}

func (v Voice) String() string {
	if v < 0 || int(v) >= len(voiceNames) {
		return fmt.Sprintf("Voice(%d)", int(v))
	}
	return voiceNames[v]
}

// Valid reports whether v is one of the known voices
func (v Voice) Valid() bool {
	return v >= 0 && int(v) < len(voiceNames)
}

// Voices returns every known voice in declaration order
func Voices() []Voice {
	out := make([]Voice, len(voiceNames))
	for i := range out {
		out[i] = Voice(i)
	}
	return out
}

// ParseVoice looks up a voice by name, ignoring case
func ParseVoice(name string) (Voice, error) {
	for i, n := range voiceNames {
		if strings.EqualFold(n, name) {
			return Voice(i), nil
		}
	}
	return 0, fmt.Errorf("unknown voice %q (want one of %s)", name, strings.Join(voiceNames, ", "))
}

// SessionConfig is the persona for one conversation. Connect copies it.
type SessionConfig struct {
	// Voice is the agent's voice identity
	Voice Voice

	// SystemInstruction is opaque text built by the caller
	SystemInstruction string

	// PersonaLabel names the persona for logs and gateways
	PersonaLabel string

	// Context is read-only conversational context appended to the instruction
	Context string
}

// Callbacks receive session events. Every field is optional. They are
// invoked one at a time, in order, from a dedicated goroutine.
type Callbacks struct {
	OnConnect    func()
	OnDisconnect func()

	// OnError carries a caller-facing message such as "credentials invalid"
	OnError func(message string)

	// OnAudioLevel receives loudness in [0, 1] from capture and playback
	OnAudioLevel func(level float64)

	OnTranscript func(text string, isUser bool)

	OnInterrupted  func()
	OnTurnComplete func()
}
