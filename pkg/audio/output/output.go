// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for clocked, schedulable playback backends
package output

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotOpen is returned when playing on a device that is not open
	ErrNotOpen = errors.New("output not initialized")

	// ErrDeviceUnavailable means no usable playback device could be opened
	ErrDeviceUnavailable = errors.New("playback device unavailable")
)

// Handle controls one scheduled buffer
type Handle interface {
	// Stop cancels the buffer. It reports false if the buffer had already
	// ended or been stopped. A stopped buffer never fires its end callback.
	Stop() bool
}

// Device represents an audio output device with its own playback clock
type Device interface {
	// Open initializes the output device
	Open(sampleRate int) error

	// Now returns the device's current playback time
	Now() time.Duration

	// Play schedules mono samples to start at the given device time.
	// onEnded fires once, from the audio thread, when playback finishes naturally.
	Play(samples []float32, at time.Duration, onEnded func()) (Handle, error)

	// SetVolume sets the volume (0-100)
	SetVolume(volume int)

	// SetMuted sets mute state
	SetMuted(muted bool)

	// Close releases output resources and drops every scheduled buffer
	Close() error
}

// New returns the device for a backend name: "oto" (default), "malgo" or "portaudio"
func New(backend string) (Device, error) {
	switch backend {
	case "", "oto":
		return NewOto(), nil
	case "malgo":
		return NewMalgo(), nil
	case "portaudio":
		return NewPortAudio(), nil
	default:
		return nil, fmt.Errorf("unknown output backend: %s", backend)
	}
}
