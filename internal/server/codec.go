// ABOUTME: Output format negotiation and reply chunk encoding
// ABOUTME: Encodes reply audio as WAV, raw PCM or Opus binary frames
package server

import (
	"fmt"
	"slices"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/encode"
	"github.com/Resonate-Protocol/resonate-voice/pkg/protocol"
)

// ChunkDuration is the reply length carried by one WAV or PCM frame
const ChunkDuration = 100 * time.Millisecond

var opusRates = []int{8000, 12000, 16000, 24000, 48000}

// supported reports whether the server can produce the format
func supported(f protocol.AudioFormat) bool {
	if f.SampleRate <= 0 || (f.Channels != 0 && f.Channels != 1) {
		return false
	}
	switch f.Codec {
	case "wav", "pcm":
		return f.BitDepth == 0 || f.BitDepth == 16
	case "opus":
		return slices.Contains(opusRates, f.SampleRate)
	default:
		return false
	}
}

// negotiateOutput picks the client's first offer using the preferred codec,
// falling back to its first offer the server supports
func negotiateOutput(offered []protocol.AudioFormat, preferred string) (protocol.AudioFormat, error) {
	var fallback *protocol.AudioFormat
	for i := range offered {
		f := offered[i]
		if !supported(f) {
			continue
		}
		if f.Codec == preferred {
			return normalize(f), nil
		}
		if fallback == nil {
			fallback = &offered[i]
		}
	}
	if fallback == nil {
		return protocol.AudioFormat{}, fmt.Errorf("no supported output format in %d offers", len(offered))
	}
	return normalize(*fallback), nil
}

func normalize(f protocol.AudioFormat) protocol.AudioFormat {
	f.Channels = 1
	f.BitDepth = 16
	return f
}

// chunkEncoder turns reply samples into binary frame payloads
type chunkEncoder struct {
	format       protocol.AudioFormat
	msgType      byte
	chunkSamples int
	encode       func(samples []int16) ([]byte, error)
	close        func() error
}

// newChunkEncoder creates the encoder for a negotiated format
func newChunkEncoder(format protocol.AudioFormat) (*chunkEncoder, error) {
	c := &chunkEncoder{
		format:       format,
		msgType:      protocol.AudioOutputMessageType,
		chunkSamples: int(ChunkDuration.Seconds() * float64(format.SampleRate)),
		close:        func() error { return nil },
	}

	switch format.Codec {
	case "wav":
		c.encode = func(samples []int16) ([]byte, error) {
			return encode.WAV(samples, format.SampleRate)
		}
	case "pcm":
		c.encode = func(samples []int16) ([]byte, error) {
			return encode.Pack(samples), nil
		}
	case "opus":
		enc, err := encode.NewOpus(audio.Format{
			Codec:      "opus",
			SampleRate: format.SampleRate,
			Channels:   1,
			BitDepth:   16,
		})
		if err != nil {
			return nil, err
		}
		c.msgType = protocol.OpusOutputMessageType
		c.chunkSamples = format.SampleRate / 50
		c.encode = func(samples []int16) ([]byte, error) {
			// The final packet of a reply is zero padded to a whole frame
			if len(samples) < c.chunkSamples {
				padded := make([]int16, c.chunkSamples)
				copy(padded, samples)
				samples = padded
			}
			return enc.Encode(audio.Frame{Samples: samples, SampleRate: format.SampleRate})
		}
		c.close = enc.Close
	default:
		return nil, fmt.Errorf("unsupported output codec: %s", format.Codec)
	}

	return c, nil
}

// chunkDuration is the playback length of one full chunk
func (c *chunkEncoder) chunkDuration() time.Duration {
	return time.Duration(c.chunkSamples) * time.Second / time.Duration(c.format.SampleRate)
}
