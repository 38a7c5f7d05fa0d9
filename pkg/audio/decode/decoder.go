// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for all inbound audio decoders
package decode

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

var (
	// ErrEmpty is returned when there are no bytes to decode
	ErrEmpty = errors.New("no audio data")

	// ErrUnknownContainer is returned when no container signature matches
	ErrUnknownContainer = errors.New("unrecognized audio container")
)

// Decoder decodes one complete inbound payload to a playable buffer
type Decoder interface {
	// Decode converts encoded audio data to de-interleaved float samples
	Decode(data []byte) (audio.Buffer, error)
}

// deinterleave splits interleaved float samples into per-channel slices.
// A trailing partial frame is dropped.
func deinterleave(samples []float32, channels int) [][]float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(samples) / channels
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[ch][i] = samples[i*channels+ch]
		}
	}
	return out
}

// safeDecode runs dec and reports a panic inside it as an error.
// Third-party decoders can index out of range on corrupt input.
func safeDecode(dec Decoder, data []byte) (buf audio.Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf, err = audio.Buffer{}, fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return dec.Decode(data)
}
