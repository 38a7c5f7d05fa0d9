// ABOUTME: Fixed-size frame accumulator
// ABOUTME: Regroups arbitrary callback block sizes into constant-length frames
package input

import "github.com/Resonate-Protocol/resonate-voice/pkg/audio"

// Framer collects samples and emits a frame each time frameSize are buffered
type Framer struct {
	sampleRate int
	frameSize  int
	pending    []int16
}

// NewFramer creates a framer
func NewFramer(sampleRate, frameSize int) *Framer {
	return &Framer{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		pending:    make([]int16, 0, frameSize),
	}
}

// Write appends samples and calls emit for every completed frame, in order.
// Emitted frames never share memory with the framer.
func (f *Framer) Write(samples []int16, emit FrameFunc) {
	for len(samples) > 0 {
		n := f.frameSize - len(f.pending)
		if n > len(samples) {
			n = len(samples)
		}
		f.pending = append(f.pending, samples[:n]...)
		samples = samples[n:]

		if len(f.pending) == f.frameSize {
			frame := audio.Frame{
				Samples:    make([]int16, f.frameSize),
				SampleRate: f.sampleRate,
			}
			copy(frame.Samples, f.pending)
			f.pending = f.pending[:0]
			emit(frame)
		}
	}
}

// Reset discards any partial frame
func (f *Framer) Reset() {
	f.pending = f.pending[:0]
}
