// ABOUTME: Unit tests for container sniffing and the fallback strategy
// ABOUTME: Tests that failed container decodes still yield raw PCM buffers
package decode

import (
	"errors"
	"testing"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/encode"
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Container
	}{
		{"wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), ContainerWAV},
		{"riff but not wave", []byte("RIFF\x00\x00\x00\x00AVI "), ContainerNone},
		{"flac", []byte("fLaC\x00\x00\x00\x22"), ContainerFLAC},
		{"mp3 with id3", []byte("ID3\x04\x00"), ContainerMP3},
		{"mp3 frame run", mp3FrameRunBytes(2), ContainerMP3},
		{"lone mp3 frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, ContainerNone},
		{"frame sync without a second frame", mp3FrameRunBytes(1), ContainerNone},
		{"raw pcm", []byte{0x01, 0x00, 0x02, 0x00}, ContainerNone},
		{"empty", nil, ContainerNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.data); got != tt.want {
				t.Errorf("Sniff() = %q, want %q", got, tt.want)
			}
		})
	}
}

// mp3FrameRunBytes builds n MPEG-1 Layer III frame headers (128 kbps, 44.1 kHz)
// spaced one 417-byte frame apart, plus a trailing header-sized tail
func mp3FrameRunBytes(n int) []byte {
	data := make([]byte, n*417+4)
	for i := 0; i < n; i++ {
		copy(data[i*417:], []byte{0xFF, 0xFB, 0x90, 0x00})
	}
	return data
}

func TestContainerUnknown(t *testing.T) {
	_, err := NewContainer().Decode([]byte{0x01, 0x00, 0x02, 0x00})
	if !errors.Is(err, ErrUnknownContainer) {
		t.Errorf("expected ErrUnknownContainer, got %v", err)
	}
}

func TestContainerWAV(t *testing.T) {
	data, _ := encode.WAV([]int16{100, 200, 300, 400}, 22050)
	buf, err := NewContainer().Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if buf.SampleRate != 22050 || buf.Frames() != 4 {
		t.Errorf("got %d frames at %d Hz, want 4 at 22050", buf.Frames(), buf.SampleRate)
	}
}

func TestFallbackUsesContainer(t *testing.T) {
	dec, err := NewFallback(audio.PlaybackSampleRate, 1)
	if err != nil {
		t.Fatalf("NewFallback() error = %v", err)
	}

	fellBack := false
	dec.OnFallback = func(error) { fellBack = true }

	data, _ := encode.WAV([]int16{1, 2, 3}, 16000)
	buf, err := dec.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if fellBack {
		t.Error("valid WAV should not take the fallback path")
	}
	if buf.SampleRate != 16000 {
		t.Errorf("expected container rate 16000, got %d", buf.SampleRate)
	}
}

func TestFallbackToRawPCM(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"headerless pcm", encode.Pack([]int16{1000, -1000, 2000, -2000})},
		{"corrupt wav", []byte("RIFF\x10\x00\x00\x00WAVEjunkjunkjunk")},
		{"corrupt flac", []byte("fLaC\x00\x00\x00\x00\x00\x00")},
		{"corrupt mp3", []byte("ID3\x04\x00\x00\x00\x00\x00\x00\x01\x02")},
		{"pcm that looks like frame sync", []byte{0xFF, 0xFF, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := NewFallback(audio.PlaybackSampleRate, 1)
			if err != nil {
				t.Fatalf("NewFallback() error = %v", err)
			}

			var primaryErr error
			dec.OnFallback = func(err error) { primaryErr = err }

			buf, err := dec.Decode(tt.data)
			if err != nil {
				t.Fatalf("Decode() should fall back instead of failing, got %v", err)
			}
			if primaryErr == nil {
				t.Error("expected the fallback path to be taken")
			}
			if buf.SampleRate != audio.PlaybackSampleRate {
				t.Errorf("expected raw rate %d, got %d", audio.PlaybackSampleRate, buf.SampleRate)
			}
			if buf.Frames() != len(tt.data)/2 {
				t.Errorf("expected %d frames, got %d", len(tt.data)/2, buf.Frames())
			}
		})
	}
}

func TestFallbackEmpty(t *testing.T) {
	dec, _ := NewFallback(audio.PlaybackSampleRate, 1)
	if _, err := dec.Decode(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

// speechLikeChunk is 100ms of 24kHz PCM whose first sample, 0xFBFF, reads as
// an MPEG-1 Layer III sync word followed by a valid header byte
func speechLikeChunk() []int16 {
	samples := make([]int16, 2400)
	samples[0] = int16(-1025) // 0xFBFF little-endian is FF FB
	samples[1] = 0x0090       // bitrate and rate bits of a 128 kbps header
	for i := 2; i < len(samples); i++ {
		samples[i] = int16((i%50 - 25) * 40)
	}
	return samples
}

func TestFallbackRawPCMWithFrameSync(t *testing.T) {
	samples := speechLikeChunk()
	data := encode.Pack(samples)

	tests := []struct {
		name string
		new  func(int, int) (*FallbackDecoder, error)
	}{
		{"container first", NewFallback},
		{"raw pcm announced", NewRawFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := tt.new(audio.PlaybackSampleRate, 1)
			if err != nil {
				t.Fatalf("constructor error = %v", err)
			}

			buf, err := dec.Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if buf.SampleRate != audio.PlaybackSampleRate || len(buf.Channels) != 1 || buf.Frames() != len(samples) {
				t.Fatalf("got %d ch, %d frames at %d Hz, want 1 ch, %d frames at %d Hz",
					len(buf.Channels), buf.Frames(), buf.SampleRate, len(samples), audio.PlaybackSampleRate)
			}
			if want := audio.Int16ToFloat(samples[0]); buf.Channels[0][0] != want {
				t.Errorf("first sample = %v, want %v", buf.Channels[0][0], want)
			}
		})
	}
}

func TestHeadersOnlyIgnoresFrameRun(t *testing.T) {
	dec := NewContainer()
	dec.HeadersOnly = true
	if _, err := dec.Decode(mp3FrameRunBytes(3)); !errors.Is(err, ErrUnknownContainer) {
		t.Errorf("expected ErrUnknownContainer for bare frame sync, got %v", err)
	}
}

type panicDecoder struct{}

func (panicDecoder) Decode([]byte) (audio.Buffer, error) {
	panic("index out of range [38] with length 38")
}

func TestFallbackRecoversDecoderPanic(t *testing.T) {
	raw, err := NewPCM(audio.PlaybackSampleRate, 1)
	if err != nil {
		t.Fatalf("NewPCM() error = %v", err)
	}

	var primaryErr error
	dec := &FallbackDecoder{
		Primary:    panicDecoder{},
		Secondary:  raw,
		OnFallback: func(err error) { primaryErr = err },
	}

	buf, err := dec.Decode(encode.Pack([]int16{1, 2, 3, 4}))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if buf.Frames() != 4 {
		t.Errorf("expected 4 raw frames, got %d", buf.Frames())
	}
	if primaryErr == nil {
		t.Error("expected the panic to surface as a fallback error")
	}
}
