// ABOUTME: Unit tests for the Opus decoder
// ABOUTME: Tests decoding packets produced by the Opus encoder
package decode

import (
	"errors"
	"testing"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/encode"
)

func TestOpusDecode(t *testing.T) {
	enc, err := encode.NewOpus(audio.Format{Codec: "opus", SampleRate: 48000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("encode.NewOpus() error = %v", err)
	}
	defer enc.Close()

	packet, err := enc.Encode(audio.Frame{Samples: make([]int16, 960), SampleRate: 48000})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	dec, err := NewOpus(48000, 1)
	if err != nil {
		t.Fatalf("NewOpus() error = %v", err)
	}

	buf, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if buf.Frames() != 960 {
		t.Errorf("expected 960 frames, got %d", buf.Frames())
	}
	if buf.SampleRate != 48000 {
		t.Errorf("expected 48000 Hz, got %d", buf.SampleRate)
	}

	if _, err := dec.Decode(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}
