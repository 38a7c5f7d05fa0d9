// ABOUTME: Audio input interface definition
// ABOUTME: Microphone sources delivering fixed-size 16-bit mono frames
package input

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

var (
	// ErrPermissionDenied means the OS refused microphone access
	ErrPermissionDenied = errors.New("microphone access denied")

	// ErrDeviceUnavailable means no usable capture device exists
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrNotOpen is returned when starting a source that was never opened
	ErrNotOpen = errors.New("input not initialized")
)

// FrameFunc receives each captured frame. It runs on the audio thread and
// must not block; the frame is owned by the callee.
type FrameFunc func(frame audio.Frame)

// Source represents a microphone
type Source interface {
	// Open acquires the device at the given rate (mono, 16-bit)
	Open(sampleRate, frameSize int) error

	// Start begins delivering frames
	Start(onFrame FrameFunc) error

	// Close stops delivery and releases the device. Safe to call twice.
	Close() error
}

// New returns the source for a backend name: "malgo" (default) or "portaudio"
func New(backend string) (Source, error) {
	switch backend {
	case "", "malgo":
		return NewMalgo(), nil
	case "portaudio":
		return NewPortAudio(), nil
	default:
		return nil, fmt.Errorf("unknown input backend: %s", backend)
	}
}

// classifyDeviceError maps backend error text onto the package sentinels
func classifyDeviceError(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied"),
		strings.Contains(msg, "permission"),
		strings.Contains(msg, "not authorized"):
		return fmt.Errorf("%s: %w: %v", op, ErrPermissionDenied, err)
	case strings.Contains(msg, "no device"),
		strings.Contains(msg, "device not found"),
		strings.Contains(msg, "device unavailable"),
		strings.Contains(msg, "invalid device"),
		strings.Contains(msg, "no default"):
		return fmt.Errorf("%s: %w: %v", op, ErrDeviceUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
