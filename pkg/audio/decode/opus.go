// ABOUTME: Opus audio decoder
// ABOUTME: Decodes single Opus packets to float buffers
package decode

import (
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrame is 120ms at 48kHz, the longest packet Opus allows
const maxOpusFrame = 5760

// OpusDecoder decodes Opus packets. Opus is stateful across packets,
// so one decoder serves one stream.
type OpusDecoder struct {
	mu         sync.Mutex
	decoder    *opus.Decoder
	sampleRate int
	channels   int
}

// NewOpus creates a new Opus decoder
func NewOpus(sampleRate, channels int) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder:    dec,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// Decode converts one Opus packet to a buffer
func (d *OpusDecoder) Decode(data []byte) (audio.Buffer, error) {
	if len(data) == 0 {
		return audio.Buffer{}, ErrEmpty
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pcm := make([]float32, maxOpusFrame*d.channels)
	n, err := d.decoder.DecodeFloat32(data, pcm)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("opus decode failed: %w", err)
	}

	return audio.Buffer{
		Channels:   deinterleave(pcm[:n*d.channels], d.channels),
		SampleRate: d.sampleRate,
	}, nil
}
