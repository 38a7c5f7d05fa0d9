//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Cross-platform audio output rendering the mixer from the stream callback
package output

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudio output implementation
type PortAudio struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	mixer  *Mixer
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio() Device {
	return &PortAudio{}
}

// Open initializes PortAudio
func (p *PortAudio) Open(sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: failed to initialize portaudio: %w", ErrDeviceUnavailable, err)
	}

	mixer := NewMixer(sampleRate)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), 0, func(out []float32) {
		mixer.Render(out)
	})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: failed to open stream: %w", ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: failed to start stream: %w", ErrDeviceUnavailable, err)
	}

	p.stream = stream
	p.mixer = mixer
	log.Printf("Audio output initialized: %dHz mono (portaudio)", sampleRate)
	return nil
}

// Now returns the mixer clock
func (p *PortAudio) Now() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mixer == nil {
		return 0
	}
	return p.mixer.Now()
}

// Play schedules samples on the mixer
func (p *PortAudio) Play(samples []float32, at time.Duration, onEnded func()) (Handle, error) {
	p.mu.Lock()
	mixer := p.mixer
	p.mu.Unlock()
	if mixer == nil {
		return nil, ErrNotOpen
	}
	return mixer.Play(samples, at, onEnded)
}

// SetVolume sets the volume (0-100)
func (p *PortAudio) SetVolume(volume int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mixer != nil {
		p.mixer.SetVolume(volume)
	}
}

// SetMuted sets mute state
func (p *PortAudio) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mixer != nil {
		p.mixer.SetMuted(muted)
	}
}

// Close releases resources
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return nil
	}
	if err := p.stream.Stop(); err != nil {
		log.Printf("Warning: portaudio stop error: %v", err)
	}
	if err := p.stream.Close(); err != nil {
		log.Printf("Warning: portaudio close error: %v", err)
	}
	p.stream = nil
	p.mixer.Reset()
	p.mixer = nil
	return portaudio.Terminate()
}
