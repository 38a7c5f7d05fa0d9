// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Frame, Buffer, sample conversions and the level meter
// Package audio provides the fundamental audio types used by the voice engine.
//
// This package defines:
//   - Frame: 16-bit PCM samples as they travel on the wire (capture: 16 kHz mono)
//   - Buffer: decoded float audio, one slice per channel (playback: 24 kHz)
//   - Meter: RMS loudness scaled to 0..1 for visual feedback
//
// Sample conversions clamp to [-1, 1] and use asymmetric scaling so that
// +1.0 maps to 32767 and -1.0 maps to -32768 without overflow.
//
// Example:
//
//	s := audio.FloatToInt16(0.5) // 16383
//	f := audio.Int16ToFloat(s)   // ~0.49997
package audio
