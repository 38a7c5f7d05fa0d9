// ABOUTME: Raw PCM audio decoder
// ABOUTME: Decodes headerless 16-bit little-endian PCM to float buffers
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// PCMDecoder decodes headerless PCM16 with an externally known format
type PCMDecoder struct {
	sampleRate int
	channels   int
}

// NewPCM creates a raw PCM decoder
func NewPCM(sampleRate, channels int) (*PCMDecoder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	return &PCMDecoder{sampleRate: sampleRate, channels: channels}, nil
}

// Decode reinterprets bytes as int16 LE samples and scales them by 1/32768.
// Frame count is len/2/channels; any odd trailing byte is ignored.
func (d *PCMDecoder) Decode(data []byte) (audio.Buffer, error) {
	if len(data) < 2 {
		return audio.Buffer{}, ErrEmpty
	}

	frames := len(data) / 2 / d.channels
	channels := make([][]float32, d.channels)
	for ch := range channels {
		channels[ch] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for ch := 0; ch < d.channels; ch++ {
			off := (i*d.channels + ch) * 2
			channels[ch][i] = audio.Int16ToFloat(int16(binary.LittleEndian.Uint16(data[off:])))
		}
	}

	return audio.Buffer{Channels: channels, SampleRate: d.sampleRate}, nil
}
