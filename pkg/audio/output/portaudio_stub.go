//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"fmt"
	"time"
)

var errPortAudioDisabled = fmt.Errorf("%w: PortAudio support not enabled (build with -tags portaudio)", ErrDeviceUnavailable)

// PortAudio output implementation (stub)
type PortAudio struct{}

// NewPortAudio creates a new PortAudio output
func NewPortAudio() Device {
	return &PortAudio{}
}

// Open initializes PortAudio
func (p *PortAudio) Open(sampleRate int) error {
	return errPortAudioDisabled
}

// Now returns zero
func (p *PortAudio) Now() time.Duration {
	return 0
}

// Play always fails
func (p *PortAudio) Play(samples []float32, at time.Duration, onEnded func()) (Handle, error) {
	return nil, errPortAudioDisabled
}

// SetVolume does nothing
func (p *PortAudio) SetVolume(volume int) {}

// SetMuted does nothing
func (p *PortAudio) SetMuted(muted bool) {}

// Close does nothing
func (p *PortAudio) Close() error {
	return nil
}
