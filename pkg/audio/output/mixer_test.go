// ABOUTME: Tests for the playback mixer
// ABOUTME: Verifies clock advance, placement, end callbacks and stopping
package output

import (
	"encoding/binary"
	"testing"
	"time"
)

func ones(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestMixerClockAdvances(t *testing.T) {
	m := NewMixer(1000)
	if m.Now() != 0 {
		t.Fatalf("expected clock at 0, got %v", m.Now())
	}

	m.Render(make([]float32, 250))
	if m.Now() != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", m.Now())
	}
}

func TestMixerPlacement(t *testing.T) {
	m := NewMixer(1000)
	m.Schedule(ones(3, 0.5), 2*time.Millisecond, nil)

	out := make([]float32, 6)
	m.Render(out)

	want := []float32{0, 0, 0.5, 0.5, 0.5, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("frame %d: expected %f, got %f", i, want[i], out[i])
		}
	}
}

func TestMixerBackToBack(t *testing.T) {
	m := NewMixer(1000)
	m.Schedule(ones(2, 0.25), 0, nil)
	m.Schedule(ones(2, 0.5), 2*time.Millisecond, nil)

	out := make([]float32, 4)
	m.Render(out)

	want := []float32{0.25, 0.25, 0.5, 0.5}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("frame %d: expected %f, got %f", i, want[i], out[i])
		}
	}
}

func TestMixerPastStartClamped(t *testing.T) {
	m := NewMixer(1000)
	m.Render(make([]float32, 10))
	m.Schedule(ones(1, 0.5), 0, nil)

	out := make([]float32, 1)
	m.Render(out)
	if out[0] != 0.5 {
		t.Errorf("buffer scheduled in the past should start now, got %f", out[0])
	}
}

func TestMixerEndedFiresOnce(t *testing.T) {
	m := NewMixer(1000)
	calls := 0
	m.Schedule(ones(5, 0.1), 0, func() { calls++ })

	m.Render(make([]float32, 3))
	if calls != 0 {
		t.Fatalf("ended before playback finished")
	}
	m.Render(make([]float32, 3))
	m.Render(make([]float32, 3))
	if calls != 1 {
		t.Errorf("expected 1 end callback, got %d", calls)
	}
	if m.Active() != 0 {
		t.Errorf("expected no active voices, got %d", m.Active())
	}
}

func TestMixerStop(t *testing.T) {
	m := NewMixer(1000)
	ended := false
	h := m.Schedule(ones(5, 0.5), 0, func() { ended = true })

	if !h.Stop() {
		t.Fatal("first Stop should report true")
	}
	if h.Stop() {
		t.Error("second Stop should report false")
	}

	out := make([]float32, 5)
	m.Render(out)
	for i, s := range out {
		if s != 0 {
			t.Errorf("frame %d: stopped voice still audible (%f)", i, s)
		}
	}
	if ended {
		t.Error("stopped voice must not fire its end callback")
	}
}

func TestMixerStopAfterEnd(t *testing.T) {
	m := NewMixer(1000)
	h := m.Schedule(ones(1, 0.5), 0, nil)
	m.Render(make([]float32, 2))
	if h.Stop() {
		t.Error("Stop after natural end should report false")
	}
}

func TestMixerVolumeAndClip(t *testing.T) {
	m := NewMixer(1000)
	m.Schedule(ones(1, 0.8), 0, nil)
	m.Schedule(ones(1, 0.8), 0, nil)

	out := make([]float32, 1)
	m.Render(out)
	if out[0] != 1 {
		t.Errorf("expected clip to 1.0, got %f", out[0])
	}

	m.SetVolume(50)
	m.Schedule(ones(1, 0.5), m.Now(), nil)
	m.Render(out)
	if out[0] != 0.25 {
		t.Errorf("expected 0.25 at half volume, got %f", out[0])
	}

	m.SetMuted(true)
	m.Schedule(ones(1, 0.5), m.Now(), nil)
	m.Render(out)
	if out[0] != 0 {
		t.Errorf("expected silence when muted, got %f", out[0])
	}

	m.SetVolume(150)
	if m.GetVolume() != 100 {
		t.Errorf("volume should clamp to 100, got %d", m.GetVolume())
	}
}

func TestMixerReadPCM(t *testing.T) {
	m := NewMixer(1000)
	m.Schedule([]float32{1, -1}, 0, nil)

	p := make([]byte, 6)
	n, err := m.Read(p)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 bytes, got %d", n)
	}

	want := []int16{32767, -32768, 0}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(p[i*2:])); got != w {
			t.Errorf("sample %d: expected %d, got %d", i, w, got)
		}
	}
	if m.Now() != 3*time.Millisecond {
		t.Errorf("expected clock at 3ms, got %v", m.Now())
	}
}

func TestMixerReset(t *testing.T) {
	m := NewMixer(1000)
	ended := false
	m.Schedule(ones(2, 0.5), 0, func() { ended = true })
	m.Reset()
	m.Render(make([]float32, 4))
	if ended || m.Active() != 0 {
		t.Error("Reset should drop voices without callbacks")
	}
}

func TestNewBackend(t *testing.T) {
	for _, name := range []string{"", "oto", "malgo", "portaudio"} {
		if dev, err := New(name); err != nil || dev == nil {
			t.Errorf("New(%q) = %v, %v", name, dev, err)
		}
	}
	if _, err := New("alsa"); err == nil {
		t.Error("expected error for unknown backend")
	}
}
