// ABOUTME: Audio type definitions
// ABOUTME: Defines wire frames, decoded buffers and sample conversions
package audio

import "time"

const (
	// CaptureSampleRate is the fixed microphone rate sent upstream
	CaptureSampleRate = 16000

	// PlaybackSampleRate is the fixed output device rate
	PlaybackSampleRate = 24000

	// CaptureFrameSize is the number of samples delivered per capture callback
	CaptureFrameSize = 4096

	// Int16 scaling constants
	MaxInt16 = 32767
	MinInt16 = -32768
)

// Format describes an audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// Frame is a block of 16-bit PCM samples on the wire. Mono only.
type Frame struct {
	Samples    []int16
	SampleRate int
}

// Clone returns a frame that shares no memory with f
func (f Frame) Clone() Frame {
	samples := make([]int16, len(f.Samples))
	copy(samples, f.Samples)
	return Frame{Samples: samples, SampleRate: f.SampleRate}
}

// Duration returns the playback length of the frame
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Buffer represents decoded audio, one slice per channel
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// Frames returns the number of sample frames (per-channel length)
func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Mono returns the buffer downmixed to a single channel
func (b Buffer) Mono() []float32 {
	switch len(b.Channels) {
	case 0:
		return nil
	case 1:
		return b.Channels[0]
	}

	n := b.Frames()
	out := make([]float32, n)
	scale := 1 / float32(len(b.Channels))
	for _, ch := range b.Channels {
		for i := 0; i < n && i < len(ch); i++ {
			out[i] += ch[i] * scale
		}
	}
	return out
}

// FloatToInt16 quantizes a float sample, clamping to [-1, 1] first.
// Positive values scale by 32767 and negative values by 32768.
func FloatToInt16(sample float32) int16 {
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	if sample < 0 {
		return int16(sample * 32768)
	}
	return int16(sample * 32767)
}

// Int16ToFloat converts a 16-bit sample to a float in [-1, 1)
func Int16ToFloat(sample int16) float32 {
	return float32(sample) / 32768.0
}

// IntToFloat converts a signed sample of the given bit depth to a float
func IntToFloat(sample int32, bitDepth int) float32 {
	if bitDepth <= 0 || bitDepth > 32 {
		return 0
	}
	return float32(float64(sample) / float64(int64(1)<<(bitDepth-1)))
}
