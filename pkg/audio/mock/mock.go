// ABOUTME: In-memory audio devices for tests
// ABOUTME: A manually clocked output device and a push-driven microphone
package mock

import (
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/input"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
)

// Play records one call to Device.Play
type Play struct {
	At      time.Duration
	Samples int
}

// Device is an output.Device whose clock only moves when Advance is called
type Device struct {
	OpenErr error

	mu     sync.Mutex
	mixer  *output.Mixer
	opens  int
	closes int
	plays  []Play
}

// NewDevice creates a closed mock device
func NewDevice() *Device {
	return &Device{}
}

// Open creates the mixer
func (d *Device) Open(sampleRate int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return d.OpenErr
	}
	d.opens++
	d.mixer = output.NewMixer(sampleRate)
	return nil
}

// Now returns the mixer clock
func (d *Device) Now() time.Duration {
	d.mu.Lock()
	m := d.mixer
	d.mu.Unlock()
	if m == nil {
		return 0
	}
	return m.Now()
}

// Play schedules on the mixer and records the call
func (d *Device) Play(samples []float32, at time.Duration, onEnded func()) (output.Handle, error) {
	d.mu.Lock()
	m := d.mixer
	if m != nil {
		d.plays = append(d.plays, Play{At: at, Samples: len(samples)})
	}
	d.mu.Unlock()
	if m == nil {
		return nil, output.ErrNotOpen
	}
	return m.Play(samples, at, onEnded)
}

// Advance renders the given span of audio, firing end callbacks
func (d *Device) Advance(span time.Duration) {
	d.mu.Lock()
	m := d.mixer
	d.mu.Unlock()
	if m == nil {
		return
	}
	frames := int(int64(span) * int64(m.SampleRate()) / int64(time.Second))
	m.Render(make([]float32, frames))
}

// SetVolume sets the volume (0-100)
func (d *Device) SetVolume(volume int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mixer != nil {
		d.mixer.SetVolume(volume)
	}
}

// SetMuted sets mute state
func (d *Device) SetMuted(muted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mixer != nil {
		d.mixer.SetMuted(muted)
	}
}

// Volume returns the mixer volume and mute state, or 0 and false when closed
func (d *Device) Volume() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mixer == nil {
		return 0, false
	}
	return d.mixer.GetVolume(), d.mixer.IsMuted()
}

// Close drops the mixer
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mixer != nil {
		d.mixer.Reset()
		d.mixer = nil
		d.closes++
	}
	return nil
}

// Active returns the number of voices still on the mixer
func (d *Device) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mixer == nil {
		return 0
	}
	return d.mixer.Active()
}

// Opens returns how many times the device was opened
func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Closes returns how many open devices were closed
func (d *Device) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// Plays returns a copy of every Play call
func (d *Device) Plays() []Play {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Play, len(d.plays))
	copy(out, d.plays)
	return out
}

// IsOpen reports whether the device is currently open
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mixer != nil
}

// Source is an input.Source fed by Emit
type Source struct {
	OpenErr  error
	StartErr error

	// AfterStart, when set, runs once Start has stored the callback
	AfterStart func(*Source)

	mu         sync.Mutex
	open       bool
	onFrame    input.FrameFunc
	opens      int
	closes     int
	sampleRate int
	frameSize  int
}

// NewSource creates a closed mock microphone
func NewSource() *Source {
	return &Source{}
}

// Open marks the source acquired
func (s *Source) Open(sampleRate, frameSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return s.OpenErr
	}
	s.open = true
	s.opens++
	s.sampleRate = sampleRate
	s.frameSize = frameSize
	return nil
}

// Start stores the frame callback
func (s *Source) Start(onFrame input.FrameFunc) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return input.ErrNotOpen
	}
	if s.StartErr != nil {
		s.mu.Unlock()
		return s.StartErr
	}
	s.onFrame = onFrame
	after := s.AfterStart
	s.mu.Unlock()

	if after != nil {
		after(s)
	}
	return nil
}

// Emit delivers samples as one frame, as the audio thread would.
// It reports whether a started callback received it.
func (s *Source) Emit(samples []int16) bool {
	s.mu.Lock()
	fn := s.onFrame
	rate := s.sampleRate
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(audio.Frame{Samples: append([]int16(nil), samples...), SampleRate: rate})
	return true
}

// Close releases the source
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		s.closes++
	}
	s.open = false
	s.onFrame = nil
	return nil
}

// Opens returns how many times the source was opened
func (s *Source) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// Closes returns how many open sources were closed
func (s *Source) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// IsOpen reports whether the source is currently acquired
func (s *Source) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// FrameSize returns the frame size requested at Open
func (s *Source) FrameSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameSize
}
