// ABOUTME: Audio decoder package for the inbound half of the sample codec
// ABOUTME: Provides raw PCM, container (WAV, FLAC, MP3) and Opus decoders
// Package decode provides audio decoders for inbound agent audio.
//
// Supports: raw PCM16, WAV, FLAC, MP3, Opus
//
// Upstreams differ in what they send: some stream headerless PCM, others
// send self-describing containers. FallbackDecoder tries the container path
// first and falls back to raw PCM, so a payload that fails container
// decoding still produces a buffer.
//
// Example:
//
//	dec, err := decode.NewFallback(24000, 1)
//	buf, err := dec.Decode(chunk)
package decode
