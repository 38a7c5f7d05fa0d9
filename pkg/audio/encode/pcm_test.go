// ABOUTME: Unit tests for the PCM encoder and sample codec
// ABOUTME: Tests quantization, little-endian packing and base64 wire text
package encode

import (
	"encoding/base64"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

func TestNewPCM(t *testing.T) {
	tests := []struct {
		name        string
		format      audio.Format
		wantErr     bool
		errContains string
	}{
		{
			name:   "valid 16-bit PCM",
			format: audio.Format{Codec: "pcm", SampleRate: 16000, Channels: 1, BitDepth: 16},
		},
		{
			name:        "invalid codec",
			format:      audio.Format{Codec: "opus", SampleRate: 16000, Channels: 1, BitDepth: 16},
			wantErr:     true,
			errContains: "invalid codec",
		},
		{
			name:        "unsupported bit depth",
			format:      audio.Format{Codec: "pcm", SampleRate: 16000, Channels: 1, BitDepth: 24},
			wantErr:     true,
			errContains: "unsupported bit depth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoder, err := NewPCM(tt.format)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NewPCM() expected error, got nil")
				} else if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("NewPCM() error = %v, want error containing %v", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPCM() unexpected error = %v", err)
			}
			if encoder == nil {
				t.Errorf("NewPCM() returned nil encoder")
			}
		})
	}
}

func TestQuantize(t *testing.T) {
	got := Quantize([]float32{0, 1, -1, 0.5, -0.5, 2, -3})
	want := []int16{0, 32767, -32768, 16383, -16384, 32767, -32768}

	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestPackLittleEndian(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	data := Pack(samples)

	if len(data) != len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", len(samples)*2, len(data))
	}

	// 1 => 0x01 0x00
	if data[2] != 0x01 || data[3] != 0x00 {
		t.Errorf("expected little-endian 0x01 0x00, got %#x %#x", data[2], data[3])
	}

	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(data[i*2:]))
		if got != want {
			t.Errorf("sample %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestPCM16Empty(t *testing.T) {
	if data := PCM16(nil); len(data) != 0 {
		t.Errorf("expected no bytes for empty input, got %d", len(data))
	}
}

func TestBase64RoundTrip(t *testing.T) {
	frame := audio.Frame{Samples: []int16{100, -100, 0, 12345}, SampleRate: audio.CaptureSampleRate}
	text := FrameBase64(frame)

	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		t.Fatalf("wire text is not valid base64: %v", err)
	}
	if len(raw) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(raw))
	}
	if got := int16(binary.LittleEndian.Uint16(raw[6:])); got != 12345 {
		t.Errorf("expected 12345, got %d", got)
	}
}

func TestPCMEncoderRateMismatch(t *testing.T) {
	enc, err := NewPCM(audio.Format{Codec: "pcm", SampleRate: 16000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("NewPCM() error = %v", err)
	}
	defer enc.Close()

	if _, err := enc.Encode(audio.Frame{Samples: []int16{1}, SampleRate: 48000}); err == nil {
		t.Error("expected error for mismatched sample rate")
	}

	data, err := enc.Encode(audio.Frame{Samples: []int16{1, 2}, SampleRate: 16000})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(data) != 4 {
		t.Errorf("expected 4 bytes, got %d", len(data))
	}
}
