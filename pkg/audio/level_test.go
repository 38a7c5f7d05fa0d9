// ABOUTME: Tests for the level meter
// ABOUTME: Tests scaling, clamping and rate limiting
package audio

import (
	"testing"
	"time"
)

func TestMeterLevelClamps(t *testing.T) {
	m := NewMeter(5, 0)

	if got := m.Level([]float32{0.1, -0.1}); got < 0.49 || got > 0.51 {
		t.Errorf("expected ~0.5, got %f", got)
	}
	if got := m.Level([]float32{0.9, -0.9}); got != 1 {
		t.Errorf("expected clamp to 1, got %f", got)
	}
	if got := m.Level(nil); got != 0 {
		t.Errorf("expected 0 for silence, got %f", got)
	}
}

func TestMeterDefaultGain(t *testing.T) {
	m := NewMeter(0, 0)
	if m.gain != DefaultLevelGain {
		t.Errorf("expected default gain %f, got %f", DefaultLevelGain, m.gain)
	}
}

func TestMeterObserveThrottles(t *testing.T) {
	m := NewMeter(1, 50*time.Millisecond)

	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	if _, ok := m.Observe([]float32{0.1}); !ok {
		t.Fatal("expected first observation to report")
	}

	now = now.Add(10 * time.Millisecond)
	if _, ok := m.Observe([]float32{0.1}); ok {
		t.Error("expected observation inside interval to be suppressed")
	}

	now = now.Add(50 * time.Millisecond)
	if _, ok := m.Observe([]float32{0.1}); !ok {
		t.Error("expected observation after interval to report")
	}
}

func TestMeterObserveUnthrottled(t *testing.T) {
	m := NewMeter(1, 0)
	for i := 0; i < 3; i++ {
		if _, ok := m.Observe([]float32{0.2}); !ok {
			t.Fatalf("observation %d suppressed without interval", i)
		}
	}
}
