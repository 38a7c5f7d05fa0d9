// ABOUTME: MP3 container decoder
// ABOUTME: Decodes complete MP3 payloads to float buffers via go-mp3
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always produces 16-bit stereo
const mp3Channels = 2

// MP3Decoder decodes MP3 audio
type MP3Decoder struct{}

// NewMP3 creates a new MP3 decoder
func NewMP3() *MP3Decoder {
	return &MP3Decoder{}
}

// Decode converts MP3 bytes to a stereo buffer
func (d *MP3Decoder) Decode(data []byte) (buf audio.Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf, err = audio.Buffer{}, fmt.Errorf("mp3 decode panic: %v", r)
		}
	}()

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("mp3 decode error: %w", err)
	}

	numSamples := len(pcm) / 2
	if numSamples < mp3Channels {
		return audio.Buffer{}, ErrEmpty
	}

	samples := make([]float32, numSamples)
	for i := range samples {
		samples[i] = audio.Int16ToFloat(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	return audio.Buffer{
		Channels:   deinterleave(samples, mp3Channels),
		SampleRate: decoder.SampleRate(),
	}, nil
}
