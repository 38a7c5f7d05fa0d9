// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Converts inbound buffers to the playback rate and capture blocks to 16kHz
package resample

import "github.com/Resonate-Protocol/resonate-voice/pkg/audio"

// Resampler performs linear interpolation to convert between sample rates.
// It keeps the last input sample and fractional position so consecutive
// blocks of one stream join without clicks.
type Resampler struct {
	inputRate  int
	outputRate int
	ratio      float64
	position   float64
	last       float32
	primed     bool
}

// New creates a new mono resampler
func New(inputRate, outputRate int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// Resample converts one block of a continuous stream
func (r *Resampler) Resample(input []float32) []float32 {
	if len(input) == 0 {
		return nil
	}
	if r.inputRate == r.outputRate {
		out := make([]float32, len(input))
		copy(out, input)
		return out
	}

	// Prepend the carried sample so interpolation can cross the block edge
	src := input
	if r.primed {
		src = make([]float32, 0, len(input)+1)
		src = append(src, r.last)
		src = append(src, input...)
	}

	out := make([]float32, 0, r.OutputFramesNeeded(len(src))+1)
	for {
		idx := int(r.position)
		if idx >= len(src)-1 {
			break
		}
		frac := float32(r.position - float64(idx))
		out = append(out, src[idx]*(1-frac)+src[idx+1]*frac)
		r.position += r.ratio
	}

	// Position becomes relative to the carried sample of the next block
	r.position -= float64(len(src) - 1)
	r.last = src[len(src)-1]
	r.primed = true

	return out
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0
	r.last = 0
	r.primed = false
}

// OutputFramesNeeded estimates how many output frames an input block produces
func (r *Resampler) OutputFramesNeeded(inputFrames int) int {
	return int(float64(inputFrames) / r.ratio)
}

// Buffer converts a standalone buffer to the target rate, channel by channel
func Buffer(buf audio.Buffer, outputRate int) audio.Buffer {
	if buf.SampleRate == outputRate || buf.SampleRate <= 0 || outputRate <= 0 {
		return buf
	}

	out := audio.Buffer{
		Channels:   make([][]float32, len(buf.Channels)),
		SampleRate: outputRate,
	}
	for ch, samples := range buf.Channels {
		r := New(buf.SampleRate, outputRate)
		converted := r.Resample(samples)
		// Hold the final sample so the tail is not lost to interpolation
		want := int(int64(len(samples)) * int64(outputRate) / int64(buf.SampleRate))
		for len(converted) < want && len(samples) > 0 {
			converted = append(converted, samples[len(samples)-1])
		}
		if len(converted) > want {
			converted = converted[:want]
		}
		out.Channels[ch] = converted
	}
	return out
}
