// ABOUTME: Malgo-based microphone capture
// ABOUTME: Uses miniaudio via malgo to capture 16-bit mono at the requested rate
package input

import (
	"log"
	"sync"

	"github.com/gen2brain/malgo"
)

// Malgo input implementation using malgo/miniaudio library
type Malgo struct {
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	framer   *Framer
	onFrame  FrameFunc
	started  bool
	scratch  []int16
}

// NewMalgo creates a new Malgo input
func NewMalgo() Source {
	return &Malgo{}
}

// Open acquires the default capture device
func (m *Malgo) Open(sampleRate, frameSize int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return classifyDeviceError("failed to initialize malgo context", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			m.dataCallback(pInputSamples, frameCount)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return classifyDeviceError("failed to initialize capture device", err)
	}

	m.malgoCtx = ctx
	m.device = device
	m.framer = NewFramer(sampleRate, frameSize)

	log.Printf("Audio input initialized: %dHz mono 16-bit, %d-sample frames (malgo)", sampleRate, frameSize)
	return nil
}

// Start begins capture
func (m *Malgo) Start(onFrame FrameFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return ErrNotOpen
	}
	if m.started {
		return nil
	}

	m.onFrame = onFrame
	if err := m.device.Start(); err != nil {
		return classifyDeviceError("failed to start capture device", err)
	}
	m.started = true
	return nil
}

// dataCallback is called by malgo with captured samples
func (m *Malgo) dataCallback(pInput []byte, frameCount uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || m.onFrame == nil {
		return
	}

	n := int(frameCount)
	if len(pInput) < n*2 {
		n = len(pInput) / 2
	}
	if cap(m.scratch) < n {
		m.scratch = make([]int16, n)
	}
	samples := m.scratch[:n]
	for i := range samples {
		samples[i] = int16(uint16(pInput[i*2]) | uint16(pInput[i*2+1])<<8)
	}

	m.framer.Write(samples, m.onFrame)
}

// Close releases the capture device
func (m *Malgo) Close() error {
	m.mu.Lock()
	device := m.device
	ctx := m.malgoCtx
	m.device = nil
	m.malgoCtx = nil
	m.started = false
	m.onFrame = nil
	m.mu.Unlock()

	// Stop outside the lock: miniaudio waits for an in-flight callback
	if device != nil {
		if err := device.Stop(); err != nil {
			log.Printf("Warning: capture device stop error: %v", err)
		}
		device.Uninit()
	}
	if ctx != nil {
		if err := ctx.Uninit(); err != nil {
			log.Printf("Warning: malgo context uninit error: %v", err)
		}
		ctx.Free()
	}
	return nil
}
