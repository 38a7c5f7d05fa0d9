//go:build portaudio

// ABOUTME: PortAudio microphone capture
// ABOUTME: Cross-platform capture using a blocking-free PortAudio callback stream
package input

import (
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudio input implementation
type PortAudio struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	framer  *Framer
	onFrame FrameFunc
	started bool
}

// NewPortAudio creates a new PortAudio input
func NewPortAudio() Source {
	return &PortAudio{}
}

// Open initializes PortAudio and opens the default input stream
func (p *PortAudio) Open(sampleRate, frameSize int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return classifyDeviceError("failed to initialize portaudio", err)
	}

	p.framer = NewFramer(sampleRate, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frameSize, p.callback)
	if err != nil {
		portaudio.Terminate()
		return classifyDeviceError("failed to open input stream", err)
	}

	p.stream = stream
	log.Printf("Audio input initialized: %dHz mono, %d-sample frames (portaudio)", sampleRate, frameSize)
	return nil
}

// Start begins capture
func (p *PortAudio) Start(onFrame FrameFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return ErrNotOpen
	}
	if p.started {
		return nil
	}

	p.onFrame = onFrame
	if err := p.stream.Start(); err != nil {
		return classifyDeviceError("failed to start input stream", err)
	}
	p.started = true
	return nil
}

func (p *PortAudio) callback(in []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.onFrame == nil {
		return
	}
	p.framer.Write(in, p.onFrame)
}

// Close releases resources
func (p *PortAudio) Close() error {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.started = false
	p.onFrame = nil
	p.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.Stop(); err != nil {
		log.Printf("Warning: portaudio stop error: %v", err)
	}
	if err := stream.Close(); err != nil {
		log.Printf("Warning: portaudio close error: %v", err)
	}
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate portaudio: %w", err)
	}
	return nil
}
