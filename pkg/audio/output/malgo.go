// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Uses miniaudio via malgo; the data callback renders the mixer directly
package output

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/gen2brain/malgo"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	mixer    *Mixer
	scratch  []float32
}

// NewMalgo creates a new Malgo output
func NewMalgo() Device {
	return &Malgo{}
}

// Open initializes the playback device at 16-bit mono
func (m *Malgo) Open(sampleRate int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to initialize malgo context: %w", ErrDeviceUnavailable, err)
	}

	mixer := NewMixer(sampleRate)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			m.dataCallback(mixer, pOutputSample, frameCount)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: failed to initialize playback device: %w", ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: failed to start device: %w", ErrDeviceUnavailable, err)
	}

	m.malgoCtx = ctx
	m.device = device
	m.mixer = mixer

	log.Printf("Audio output initialized: %dHz mono 16-bit (malgo)", sampleRate)
	return nil
}

// dataCallback is called by malgo to fill the audio output buffer
func (m *Malgo) dataCallback(mixer *Mixer, pOutput []byte, frameCount uint32) {
	frames := int(frameCount)
	if cap(m.scratch) < frames {
		m.scratch = make([]float32, frames)
	}
	buf := m.scratch[:frames]
	mixer.Render(buf)

	for i, s := range buf {
		sample16 := audio.FloatToInt16(s)
		pOutput[i*2] = byte(sample16)
		pOutput[i*2+1] = byte(sample16 >> 8)
	}
}

// Now returns the mixer clock
func (m *Malgo) Now() time.Duration {
	m.mu.Lock()
	mixer := m.mixer
	m.mu.Unlock()
	if mixer == nil {
		return 0
	}
	return mixer.Now()
}

// Play schedules samples on the mixer
func (m *Malgo) Play(samples []float32, at time.Duration, onEnded func()) (Handle, error) {
	m.mu.Lock()
	mixer := m.mixer
	m.mu.Unlock()
	if mixer == nil {
		return nil, ErrNotOpen
	}
	return mixer.Play(samples, at, onEnded)
}

// SetVolume sets the volume (0-100)
func (m *Malgo) SetVolume(volume int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mixer != nil {
		m.mixer.SetVolume(volume)
		log.Printf("Volume set to %d", m.mixer.GetVolume())
	}
}

// SetMuted sets mute state
func (m *Malgo) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mixer != nil {
		m.mixer.SetMuted(muted)
		log.Printf("Muted: %v", muted)
	}
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.Printf("Warning: device stop error: %v", err)
		}
		m.device.Uninit()
		m.device = nil
	}

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Printf("Warning: malgo context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}

	if m.mixer != nil {
		m.mixer.Reset()
		m.mixer = nil
	}
	return nil
}
