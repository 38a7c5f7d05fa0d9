// ABOUTME: PCM audio encoder and sample codec
// ABOUTME: Converts float samples to 16-bit little-endian PCM and base64 wire text
package encode

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// Quantize converts float samples to 16-bit integers with clamping
func Quantize(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = audio.FloatToInt16(s)
	}
	return out
}

// Pack writes 16-bit samples little-endian
func Pack(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// PCM16 quantizes and packs float samples in one step
func PCM16(samples []float32) []byte {
	return Pack(Quantize(samples))
}

// Base64 encodes bytes in the ASCII-safe transfer encoding used on JSON transports
func Base64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// FrameBase64 packs a frame and returns its wire text
func FrameBase64(frame audio.Frame) string {
	return Base64(Pack(frame.Samples))
}

// PCMEncoder encodes frames as raw 16-bit PCM
type PCMEncoder struct {
	sampleRate int
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}

	if format.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16)", format.BitDepth)
	}

	return &PCMEncoder{
		sampleRate: format.SampleRate,
	}, nil
}

// Encode converts a frame to PCM bytes
func (e *PCMEncoder) Encode(frame audio.Frame) ([]byte, error) {
	if e.sampleRate != 0 && frame.SampleRate != 0 && frame.SampleRate != e.sampleRate {
		return nil, fmt.Errorf("frame sample rate %d does not match encoder rate %d", frame.SampleRate, e.sampleRate)
	}
	return Pack(frame.Samples), nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
