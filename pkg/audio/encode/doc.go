// ABOUTME: Audio encoder package for the outbound half of the sample codec
// ABOUTME: Provides float-to-PCM16 conversion, base64 wire text and Opus
// Package encode provides audio encoders for the voice engine.
//
// Supports: PCM (16-bit little-endian), base64 wire text, Opus
//
// Float samples are clamped to [-1, 1]; positive values scale by 32767 and
// negative values by 32768, then truncate to int16.
//
// Example:
//
//	data := encode.PCM16(samples)
//	text := encode.Base64(data)
package encode
