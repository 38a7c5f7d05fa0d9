// ABOUTME: FLAC container decoder
// ABOUTME: Decodes complete FLAC payloads frame by frame via mewkiz/flac
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLACDecoder decodes FLAC audio
type FLACDecoder struct{}

// NewFLAC creates a new FLAC decoder
func NewFLAC() *FLACDecoder {
	return &FLACDecoder{}
}

// Decode parses every frame in the payload
func (d *FLACDecoder) Decode(data []byte) (audio.Buffer, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("failed to open flac stream: %w", err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	bitDepth := int(stream.Info.BitsPerSample)
	if channels < 1 {
		return audio.Buffer{}, fmt.Errorf("invalid flac channel count: %d", channels)
	}

	out := make([][]float32, channels)
	for {
		frame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return audio.Buffer{}, fmt.Errorf("flac decode error: %w", err)
		}

		for ch := 0; ch < channels && ch < len(frame.Subframes); ch++ {
			for _, s := range frame.Subframes[ch].Samples {
				out[ch] = append(out[ch], audio.IntToFloat(s, bitDepth))
			}
		}
	}

	buf := audio.Buffer{Channels: out, SampleRate: int(stream.Info.SampleRate)}
	if buf.Frames() == 0 {
		return audio.Buffer{}, ErrEmpty
	}
	return buf, nil
}
