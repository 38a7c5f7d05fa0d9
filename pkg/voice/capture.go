// ABOUTME: Capture pipeline from microphone frames to the transport
// ABOUTME: Meters each frame and hands it to the connection without blocking
package voice

import (
	"sync"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/transport"
)

// capture runs on the audio thread for every microphone frame
type capture struct {
	conn     transport.Conn
	meter    *audio.Meter
	recorder Recorder

	onLevel func(level float64)
	// onFail is called once, on the audio thread, with the first send error.
	// It must not block.
	onFail func(err error)

	mu      sync.Mutex
	failed  bool
	scratch []float32
}

func (c *capture) onFrame(frame audio.Frame) {
	c.mu.Lock()
	if c.failed {
		c.mu.Unlock()
		return
	}
	if cap(c.scratch) < len(frame.Samples) {
		c.scratch = make([]float32, len(frame.Samples))
	}
	floats := c.scratch[:len(frame.Samples)]
	for i, s := range frame.Samples {
		floats[i] = audio.Int16ToFloat(s)
	}
	level, report := c.meter.Observe(floats)
	c.mu.Unlock()

	if report && c.onLevel != nil {
		c.onLevel(level)
	}

	if err := c.conn.Send(frame.Clone()); err != nil {
		c.mu.Lock()
		first := !c.failed
		c.failed = true
		c.mu.Unlock()

		c.recorder.SendFailed()
		if first {
			c.onFail(err)
		}
		return
	}
	c.recorder.FrameSent()
}
