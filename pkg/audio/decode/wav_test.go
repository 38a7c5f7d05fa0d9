// ABOUTME: Unit tests for the WAV decoder
// ABOUTME: Tests chunk walking, bit depths and malformed input
package decode

import (
	"encoding/binary"
	"testing"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/encode"
)

// buildWAV writes a WAV with an optional extra chunk before data
func buildWAV(format, channels, rate, bits int, extra bool, payload []byte) []byte {
	var out []byte
	le16 := func(v int) { out = binary.LittleEndian.AppendUint16(out, uint16(v)) }
	le32 := func(v int) { out = binary.LittleEndian.AppendUint32(out, uint32(v)) }

	out = append(out, "RIFF"...)
	le32(0)
	out = append(out, "WAVE"...)
	out = append(out, "fmt "...)
	le32(16)
	le16(format)
	le16(channels)
	le32(rate)
	le32(rate * channels * bits / 8)
	le16(channels * bits / 8)
	le16(bits)
	if extra {
		out = append(out, "LIST"...)
		le32(3)
		out = append(out, 'a', 'b', 'c', 0) // odd size is padded
	}
	out = append(out, "data"...)
	le32(len(payload))
	out = append(out, payload...)
	return out
}

func TestWAVDecode16(t *testing.T) {
	data, err := encode.WAV([]int16{16384, -16384, 0}, 24000)
	if err != nil {
		t.Fatalf("encode.WAV() error = %v", err)
	}

	buf, err := NewWAV().Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if buf.SampleRate != 24000 {
		t.Errorf("expected 24000 Hz, got %d", buf.SampleRate)
	}
	if buf.Frames() != 3 {
		t.Fatalf("expected 3 frames, got %d", buf.Frames())
	}
	if buf.Channels[0][0] != 0.5 || buf.Channels[0][1] != -0.5 {
		t.Errorf("unexpected samples %v", buf.Channels[0])
	}
}

func TestWAVDecodeVariants(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		channels  int
		frames    int
		firstLeft float32
	}{
		{
			name:      "8-bit unsigned with extra chunk",
			data:      buildWAV(1, 1, 8000, 8, true, []byte{192, 64}),
			channels:  1,
			frames:    2,
			firstLeft: 0.5,
		},
		{
			name:      "24-bit stereo",
			data:      buildWAV(1, 2, 48000, 24, false, []byte{0, 0, 0x40, 0, 0, 0xC0}),
			channels:  2,
			frames:    1,
			firstLeft: 0.5,
		},
		{
			name: "32-bit float",
			data: buildWAV(3, 1, 16000, 32, false,
				binary.LittleEndian.AppendUint32(nil, 0x3F000000)),
			channels:  1,
			frames:    1,
			firstLeft: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := NewWAV().Decode(tt.data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(buf.Channels) != tt.channels {
				t.Errorf("expected %d channels, got %d", tt.channels, len(buf.Channels))
			}
			if buf.Frames() != tt.frames {
				t.Errorf("expected %d frames, got %d", tt.frames, buf.Frames())
			}
			if buf.Channels[0][0] != tt.firstLeft {
				t.Errorf("expected first sample %f, got %f", tt.firstLeft, buf.Channels[0][0])
			}
		})
	}
}

func TestWAVDecodeInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte("RIFF")},
		{"not riff", append([]byte("RIFX\x00\x00\x00\x00WAVE"), make([]byte, 32)...)},
		{"no data chunk", buildWAV(1, 1, 8000, 16, false, nil)[:36]},
		{"unsupported format", buildWAV(2, 1, 8000, 16, false, []byte{1, 2})},
		{"zero channels", buildWAV(1, 0, 8000, 16, false, []byte{1, 2})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWAV().Decode(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}
