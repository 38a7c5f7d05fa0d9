//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package input

import "fmt"

// PortAudio input implementation (stub)
type PortAudio struct{}

// NewPortAudio creates a new PortAudio input
func NewPortAudio() Source {
	return &PortAudio{}
}

// Open reports that the backend is not compiled in
func (p *PortAudio) Open(sampleRate, frameSize int) error {
	return fmt.Errorf("%w: PortAudio support not enabled (build with -tags portaudio)", ErrDeviceUnavailable)
}

// Start always fails
func (p *PortAudio) Start(onFrame FrameFunc) error {
	return ErrNotOpen
}

// Close does nothing
func (p *PortAudio) Close() error {
	return nil
}
