// ABOUTME: Loudness metering for captured and played audio
// ABOUTME: Converts sample blocks to a normalized 0..1 level for UI feedback
package audio

import (
	"math"
	"sync"
	"time"
)

// DefaultLevelGain scales raw RMS into a range that reads well on a meter
const DefaultLevelGain = 5.0

// RMS returns the root-mean-square of the samples
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Meter turns sample blocks into normalized levels, optionally rate-limited
type Meter struct {
	gain     float64
	interval time.Duration

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewMeter creates a meter. interval of zero reports every block.
func NewMeter(gain float64, interval time.Duration) *Meter {
	if gain <= 0 {
		gain = DefaultLevelGain
	}
	return &Meter{
		gain:     gain,
		interval: interval,
		now:      time.Now,
	}
}

// Level returns the scaled level of samples clamped to [0, 1]
func (m *Meter) Level(samples []float32) float64 {
	level := RMS(samples) * m.gain
	if level > 1 {
		return 1
	}
	return level
}

// Observe returns the level and whether it should be reported now
func (m *Meter) Observe(samples []float32) (float64, bool) {
	level := m.Level(samples)
	if m.interval <= 0 {
		return level, true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.last.IsZero() && now.Sub(m.last) < m.interval {
		return level, false
	}
	m.last = now
	return level, true
}
