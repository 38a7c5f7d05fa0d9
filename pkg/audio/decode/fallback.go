// ABOUTME: Two-stage decode strategy
// ABOUTME: Tries a primary decoder and falls back to a secondary one on failure
package decode

import (
	"errors"
	"log"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// FallbackDecoder tries Primary first and uses Secondary when it fails
type FallbackDecoder struct {
	Primary   Decoder
	Secondary Decoder

	// OnFallback is called with the primary error when the secondary path is taken
	OnFallback func(err error)
}

// NewFallback returns the standard inbound strategy: container-aware
// decoding first, headerless PCM16 at the given rate and channel count second.
func NewFallback(rawSampleRate, rawChannels int) (*FallbackDecoder, error) {
	raw, err := NewPCM(rawSampleRate, rawChannels)
	if err != nil {
		return nil, err
	}
	return &FallbackDecoder{
		Primary:   NewContainer(),
		Secondary: raw,
	}, nil
}

// NewRawFallback is the strategy for transports that announce headerless PCM.
// Only explicit headers (RIFF, fLaC, ID3) divert a chunk from the raw path.
func NewRawFallback(rawSampleRate, rawChannels int) (*FallbackDecoder, error) {
	d, err := NewFallback(rawSampleRate, rawChannels)
	if err != nil {
		return nil, err
	}
	d.Primary.(*ContainerDecoder).HeadersOnly = true
	return d, nil
}

// Decode never fails for non-empty input when the secondary decoder is raw PCM
func (d *FallbackDecoder) Decode(data []byte) (audio.Buffer, error) {
	if len(data) == 0 {
		return audio.Buffer{}, ErrEmpty
	}

	buf, err := safeDecode(d.Primary, data)
	if err == nil {
		return buf, nil
	}

	if !errors.Is(err, ErrUnknownContainer) {
		log.Printf("Container decode failed, using raw PCM: %v", err)
	}
	if d.OnFallback != nil {
		d.OnFallback(err)
	}

	return d.Secondary.Decode(data)
}
