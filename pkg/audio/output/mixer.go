// ABOUTME: Sample-accurate playback mixer
// ABOUTME: Places scheduled buffers on a frame clock and renders them for device callbacks
package output

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// Mixer sums scheduled mono buffers onto a clock that advances only as
// frames are rendered, so Now() is the time of the next audible frame.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	frame      int64
	voices     []*voice
	volume     int
	muted      bool
	scratch    []float32
}

type voice struct {
	mixer   *Mixer
	samples []float32
	start   int64
	onEnded func()
	done    bool
}

// Stop removes the voice from the mixer
func (v *voice) Stop() bool {
	m := v.mixer
	m.mu.Lock()
	defer m.mu.Unlock()

	if v.done {
		return false
	}
	v.done = true
	for i, other := range m.voices {
		if other == v {
			m.voices = append(m.voices[:i], m.voices[i+1:]...)
			break
		}
	}
	return true
}

// NewMixer creates a mixer for the given output rate
func NewMixer(sampleRate int) *Mixer {
	return &Mixer{
		sampleRate: sampleRate,
		volume:     100,
	}
}

// SampleRate returns the mixer's output rate
func (m *Mixer) SampleRate() int {
	return m.sampleRate
}

// Now returns the clock position of the next frame to be rendered
func (m *Mixer) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frameToTime(m.frame)
}

// Schedule places samples on the clock. Starts in the past are clamped to now.
func (m *Mixer) Schedule(samples []float32, at time.Duration, onEnded func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.timeToFrame(at)
	if start < m.frame {
		start = m.frame
	}

	v := &voice{
		mixer:   m,
		samples: samples,
		start:   start,
		onEnded: onEnded,
	}
	if len(samples) == 0 {
		// Nothing to play: it ends as soon as it is reached
		v.samples = nil
	}
	m.voices = append(m.voices, v)
	return v
}

// Play implements the scheduling half of Device
func (m *Mixer) Play(samples []float32, at time.Duration, onEnded func()) (Handle, error) {
	return m.Schedule(samples, at, onEnded), nil
}

// Active returns the number of voices not yet finished
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Render mixes the next len(out) frames and advances the clock.
// End callbacks run after the mixer lock is released.
func (m *Mixer) Render(out []float32) {
	for i := range out {
		out[i] = 0
	}

	m.mu.Lock()
	windowStart := m.frame
	windowEnd := windowStart + int64(len(out))

	var ended []func()
	kept := m.voices[:0]
	for _, v := range m.voices {
		voiceEnd := v.start + int64(len(v.samples))

		if v.start < windowEnd && voiceEnd > windowStart {
			from := max(v.start, windowStart)
			to := min(voiceEnd, windowEnd)
			src := v.samples[from-v.start : to-v.start]
			dst := out[from-windowStart : to-windowStart]
			for i, s := range src {
				dst[i] += s
			}
		}

		if voiceEnd <= windowEnd && v.start < windowEnd {
			v.done = true
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
			continue
		}
		kept = append(kept, v)
	}
	// Clear the tail so dropped voices can be collected
	for i := len(kept); i < len(m.voices); i++ {
		m.voices[i] = nil
	}
	m.voices = kept
	m.frame = windowEnd

	gain := volumeMultiplier(m.volume, m.muted)
	m.mu.Unlock()

	for i, s := range out {
		s *= gain
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = s
	}

	for _, fn := range ended {
		fn()
	}
}

// Read renders 16-bit little-endian mono PCM. It never returns EOF;
// with nothing scheduled it produces silence.
func (m *Mixer) Read(p []byte) (int, error) {
	frames := len(p) / 2
	if frames == 0 {
		return 0, nil
	}
	if cap(m.scratch) < frames {
		m.scratch = make([]float32, frames)
	}
	buf := m.scratch[:frames]
	m.Render(buf)
	for i, s := range buf {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(audio.FloatToInt16(s)))
	}
	return frames * 2, nil
}

// Reset drops every scheduled voice without firing callbacks
func (m *Mixer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.voices {
		v.done = true
	}
	m.voices = nil
}

// SetVolume sets the volume (0-100)
func (m *Mixer) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	m.mu.Lock()
	m.volume = volume
	m.mu.Unlock()
}

// SetMuted sets mute state
func (m *Mixer) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

// GetVolume returns current volume
func (m *Mixer) GetVolume() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// IsMuted returns mute state
func (m *Mixer) IsMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *Mixer) frameToTime(frame int64) time.Duration {
	return time.Duration(frame) * time.Second / time.Duration(m.sampleRate)
}

func (m *Mixer) timeToFrame(t time.Duration) int64 {
	if t <= 0 {
		return 0
	}
	// Round to the nearest frame so back-to-back buffers stay contiguous
	return (int64(t)*int64(m.sampleRate) + int64(time.Second)/2) / int64(time.Second)
}

// volumeMultiplier calculates volume multiplier
func volumeMultiplier(volume int, muted bool) float32 {
	if muted {
		return 0
	}
	return float32(volume) / 100
}
