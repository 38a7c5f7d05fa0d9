// ABOUTME: Opus audio encoder
// ABOUTME: Encodes 16-bit frames to Opus packets
package encode

import (
	"fmt"
	"log"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusPacket is the largest packet libopus will produce
const maxOpusPacket = 4000

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
	frameSize  int
}

// NewOpus creates a new Opus encoder tuned for speech
func NewOpus(format audio.Format) (Encoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}

	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	if err := encoder.SetBitrate(24000 * format.Channels); err != nil {
		log.Printf("Warning: failed to set Opus bitrate: %v", err)
	}

	return &OpusEncoder{
		encoder:    encoder,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
		frameSize:  format.SampleRate / 50, // 20ms
	}, nil
}

// FrameSize returns the number of samples per channel in one packet
func (e *OpusEncoder) FrameSize() int {
	return e.frameSize
}

// Encode converts one 20ms frame to an Opus packet
func (e *OpusEncoder) Encode(frame audio.Frame) ([]byte, error) {
	if len(frame.Samples) != e.frameSize*e.channels {
		return nil, fmt.Errorf("opus frame must be %d samples, got %d", e.frameSize*e.channels, len(frame.Samples))
	}

	data := make([]byte, maxOpusPacket)
	n, err := e.encoder.Encode(frame.Samples, data)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}

	return data[:n], nil
}

// Close releases resources
func (e *OpusEncoder) Close() error {
	return nil
}
