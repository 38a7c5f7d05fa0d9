// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams the mixer to the default device through a persistent oto player
package output

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows only one context per process, so every Oto device shares it
var (
	otoMu   sync.Mutex
	otoCtx  *oto.Context
	otoRate int
)

func sharedOtoContext(sampleRate int) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if otoRate != sampleRate {
			return nil, fmt.Errorf("oto context already running at %dHz, cannot reopen at %dHz", otoRate, sampleRate)
		}
		return otoCtx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create oto context: %w", ErrDeviceUnavailable, err)
	}
	<-readyChan

	otoCtx = ctx
	otoRate = sampleRate
	return ctx, nil
}

// Oto output implementation using oto library
type Oto struct {
	mu     sync.Mutex
	mixer  *Mixer
	player *oto.Player
}

// NewOto creates a new Oto output
func NewOto() Device {
	return &Oto{}
}

// Open initializes the output device
func (o *Oto) Open(sampleRate int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		return nil
	}

	ctx, err := sharedOtoContext(sampleRate)
	if err != nil {
		return err
	}
	if err := ctx.Resume(); err != nil {
		return fmt.Errorf("%w: failed to resume oto context: %w", ErrDeviceUnavailable, err)
	}

	o.mixer = NewMixer(sampleRate)

	// The player pulls from the mixer, which renders silence when idle
	o.player = ctx.NewPlayer(o.mixer)
	o.player.Play()

	log.Printf("Audio output initialized: %dHz mono (oto)", sampleRate)
	return nil
}

// Now returns the mixer clock
func (o *Oto) Now() time.Duration {
	o.mu.Lock()
	m := o.mixer
	o.mu.Unlock()
	if m == nil {
		return 0
	}
	return m.Now()
}

// Play schedules samples on the mixer
func (o *Oto) Play(samples []float32, at time.Duration, onEnded func()) (Handle, error) {
	o.mu.Lock()
	m := o.mixer
	o.mu.Unlock()
	if m == nil {
		return nil, ErrNotOpen
	}
	return m.Play(samples, at, onEnded)
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mixer != nil {
		o.mixer.SetVolume(volume)
		log.Printf("Volume set to %d", o.mixer.GetVolume())
	}
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mixer != nil {
		o.mixer.SetMuted(muted)
		log.Printf("Muted: %v", muted)
	}
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.mixer != nil {
		o.mixer.Reset()
	}
	if o.player != nil {
		if err := o.player.Close(); err != nil {
			log.Printf("Warning: oto player close error: %v", err)
		}
		o.player = nil
	}
	o.mixer = nil
	return nil
}
