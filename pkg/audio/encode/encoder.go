// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for all audio encoders
package encode

import "github.com/Resonate-Protocol/resonate-voice/pkg/audio"

// Encoder encodes PCM frames to a wire format
type Encoder interface {
	// Encode converts a frame to encoded audio data
	Encode(frame audio.Frame) ([]byte, error)

	// Close releases encoder resources
	Close() error
}
