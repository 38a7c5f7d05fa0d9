// ABOUTME: Self-describing container decoder
// ABOUTME: Sniffs WAV, FLAC and MP3 signatures and dispatches to the format decoder
package decode

import (
	"bytes"
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// Container identifies a self-describing audio format
type Container string

const (
	ContainerNone Container = ""
	ContainerWAV  Container = "wav"
	ContainerFLAC Container = "flac"
	ContainerMP3  Container = "mp3"
)

// Sniff identifies the container from its leading bytes
func Sniff(data []byte) Container {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return ContainerWAV
	case bytes.HasPrefix(data, []byte("fLaC")):
		return ContainerFLAC
	case bytes.HasPrefix(data, []byte("ID3")):
		return ContainerMP3
	case mp3FrameRun(data):
		return ContainerMP3
	}
	return ContainerNone
}

var (
	mp3Bitrates = [2][16]int{
		// MPEG-1 Layer III
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
		// MPEG-2 and 2.5 Layer III
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
	}
	mp3SampleRates = map[byte][3]int{
		3: {44100, 48000, 32000}, // MPEG-1
		2: {22050, 24000, 16000}, // MPEG-2
		0: {11025, 12000, 8000},  // MPEG-2.5
	}
)

// mp3FrameLength parses a Layer III frame header and returns the frame size in bytes
func mp3FrameLength(h []byte) (int, bool) {
	if len(h) < 4 || h[0] != 0xFF || h[1]&0xE0 != 0xE0 {
		return 0, false
	}
	version := (h[1] >> 3) & 0x03
	if (h[1]>>1)&0x03 != 1 {
		return 0, false
	}
	rates, ok := mp3SampleRates[version]
	if !ok {
		return 0, false
	}
	bitrateIdx := h[2] >> 4
	rateIdx := (h[2] >> 2) & 0x03
	if bitrateIdx == 0 || bitrateIdx == 15 || rateIdx == 3 {
		return 0, false
	}
	padding := int((h[2] >> 1) & 0x01)

	if version == 3 {
		return 144*mp3Bitrates[0][bitrateIdx]*1000/rates[rateIdx] + padding, true
	}
	return 72*mp3Bitrates[1][bitrateIdx]*1000/rates[rateIdx] + padding, true
}

// mp3FrameRun reports whether data starts with two consecutive Layer III
// frames of the same version and rate. A lone sync word is common in raw PCM.
func mp3FrameRun(data []byte) bool {
	n, ok := mp3FrameLength(data)
	if !ok || len(data) < n+4 {
		return false
	}
	if _, ok := mp3FrameLength(data[n:]); !ok {
		return false
	}
	// Version, layer and sample rate must not change between frames
	return data[1]&0xFE == data[n+1]&0xFE && data[2]&0x0C == data[n+2]&0x0C
}

// ContainerDecoder decodes any recognized self-describing payload
type ContainerDecoder struct {
	wav  *WAVDecoder
	flac *FLACDecoder
	mp3  *MP3Decoder

	// HeadersOnly ignores bare MPEG frame sync and accepts MP3 only behind an ID3 tag
	HeadersOnly bool
}

// NewContainer creates a container-aware decoder
func NewContainer() *ContainerDecoder {
	return &ContainerDecoder{
		wav:  NewWAV(),
		flac: NewFLAC(),
		mp3:  NewMP3(),
	}
}

// Decode sniffs the payload and decodes it with the matching format decoder
func (d *ContainerDecoder) Decode(data []byte) (audio.Buffer, error) {
	if len(data) == 0 {
		return audio.Buffer{}, ErrEmpty
	}

	kind := Sniff(data)
	if kind == ContainerMP3 && d.HeadersOnly && !bytes.HasPrefix(data, []byte("ID3")) {
		kind = ContainerNone
	}
	var dec Decoder
	switch kind {
	case ContainerWAV:
		dec = d.wav
	case ContainerFLAC:
		dec = d.flac
	case ContainerMP3:
		dec = d.mp3
	default:
		return audio.Buffer{}, ErrUnknownContainer
	}

	buf, err := safeDecode(dec, data)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("%s container: %w", kind, err)
	}
	return buf, nil
}
