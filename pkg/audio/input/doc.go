// ABOUTME: Audio input package for microphone capture
// ABOUTME: Provides the Source interface with malgo and PortAudio backends
// Package input provides microphone capture.
//
// Sources deliver 16-bit mono frames of a fixed size from the audio thread.
// Device failures are classified as ErrPermissionDenied or
// ErrDeviceUnavailable where the backend makes that possible.
package input
