// ABOUTME: Unit tests for the raw PCM decoder
// ABOUTME: Tests scaling, de-interleaving and round trips through the encoder
package decode

import (
	"errors"
	"math"
	"testing"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/encode"
)

func TestNewPCM(t *testing.T) {
	tests := []struct {
		name     string
		rate     int
		channels int
		wantErr  bool
	}{
		{"mono 24k", 24000, 1, false},
		{"stereo 48k", 48000, 2, false},
		{"zero rate", 0, 1, true},
		{"zero channels", 24000, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPCM(tt.rate, tt.channels)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewPCM() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPCMRoundTrip(t *testing.T) {
	dec, err := NewPCM(16000, 1)
	if err != nil {
		t.Fatalf("NewPCM() error = %v", err)
	}

	input := []float32{0.0, 1.0, -1.0, 0.5, -0.25, 0.123}
	buf, err := dec.Decode(encode.PCM16(input))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if buf.Frames() != len(input) {
		t.Fatalf("expected %d frames, got %d", len(input), buf.Frames())
	}

	const step = 1.0/32768 + 1e-7
	for i, want := range input {
		got := buf.Channels[0][i]
		if math.Abs(float64(got-want)) > step {
			t.Errorf("sample %d: expected %f, got %f", i, want, got)
		}
	}

	if buf.Channels[0][0] != 0 {
		t.Errorf("expected exact zero, got %f", buf.Channels[0][0])
	}
	if buf.Channels[0][2] != -1 {
		t.Errorf("expected exact -1, got %f", buf.Channels[0][2])
	}
}

func TestPCMDeinterleave(t *testing.T) {
	dec, _ := NewPCM(24000, 2)

	// L R L R, plus one odd trailing byte
	data := append(encode.Pack([]int16{16384, -16384, 8192, -8192}), 0x7f)
	buf, err := dec.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if len(buf.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(buf.Channels))
	}
	if buf.Frames() != 2 {
		t.Fatalf("expected 2 frames, got %d", buf.Frames())
	}
	if buf.Channels[0][0] != 0.5 || buf.Channels[1][0] != -0.5 {
		t.Errorf("first frame = (%f, %f), want (0.5, -0.5)", buf.Channels[0][0], buf.Channels[1][0])
	}
	if buf.Channels[0][1] != 0.25 || buf.Channels[1][1] != -0.25 {
		t.Errorf("second frame = (%f, %f), want (0.25, -0.25)", buf.Channels[0][1], buf.Channels[1][1])
	}
}

func TestPCMDuration(t *testing.T) {
	dec, _ := NewPCM(24000, 1)
	buf, err := dec.Decode(make([]byte, 24000*2))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if buf.Duration().Seconds() != 1 {
		t.Errorf("expected 1s, got %v", buf.Duration())
	}
}

func TestPCMEmpty(t *testing.T) {
	dec, _ := NewPCM(24000, 1)
	for _, data := range [][]byte{nil, {0x01}} {
		if _, err := dec.Decode(data); !errors.Is(err, ErrEmpty) {
			t.Errorf("Decode(%v) error = %v, want ErrEmpty", data, err)
		}
	}
}
