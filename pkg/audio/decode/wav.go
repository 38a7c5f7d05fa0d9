// ABOUTME: WAV container decoder
// ABOUTME: Walks RIFF chunks and decodes integer or float PCM payloads
package decode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// WAVDecoder decodes RIFF/WAVE payloads
type WAVDecoder struct{}

// NewWAV creates a WAV decoder
func NewWAV() *WAVDecoder {
	return &WAVDecoder{}
}

type wavFormat struct {
	audioFormat   uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

// Decode parses the fmt and data chunks. Chunks in between are skipped.
func (d *WAVDecoder) Decode(data []byte) (audio.Buffer, error) {
	if len(data) < 12 {
		return audio.Buffer{}, fmt.Errorf("WAV data too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return audio.Buffer{}, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return audio.Buffer{}, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	var format *wavFormat
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return audio.Buffer{}, fmt.Errorf("invalid WAV file: short fmt chunk")
			}
			format = &wavFormat{
				audioFormat:   binary.LittleEndian.Uint16(data[body:]),
				channels:      int(binary.LittleEndian.Uint16(data[body+2:])),
				sampleRate:    int(binary.LittleEndian.Uint32(data[body+4:])),
				bitsPerSample: int(binary.LittleEndian.Uint16(data[body+14:])),
			}
			// Extensible: the real format tag is the first two bytes of the subformat GUID
			if format.audioFormat == wavFormatExtensible && size >= 26 && body+26 <= len(data) {
				format.audioFormat = binary.LittleEndian.Uint16(data[body+24:])
			}
		case "data":
			if format == nil {
				return audio.Buffer{}, fmt.Errorf("invalid WAV file: data chunk before fmt chunk")
			}
			end := body + size
			// Streaming writers leave the size unset; take what is there
			if size == 0 || end > len(data) {
				end = len(data)
			}
			return decodeWAVData(data[body:end], format)
		}

		pos = body + size + size%2
	}

	return audio.Buffer{}, fmt.Errorf("invalid WAV file: missing data chunk")
}

func decodeWAVData(payload []byte, f *wavFormat) (audio.Buffer, error) {
	if f.channels < 1 || f.sampleRate <= 0 {
		return audio.Buffer{}, fmt.Errorf("invalid WAV format: %d channels at %d Hz", f.channels, f.sampleRate)
	}

	bytesPerSample := f.bitsPerSample / 8
	if bytesPerSample == 0 {
		return audio.Buffer{}, fmt.Errorf("unsupported WAV bit depth: %d", f.bitsPerSample)
	}

	n := len(payload) / bytesPerSample
	samples := make([]float32, n)

	switch {
	case f.audioFormat == wavFormatFloat && f.bitsPerSample == 32:
		for i := range samples {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
		}
	case f.audioFormat == wavFormatPCM:
		for i := range samples {
			b := payload[i*bytesPerSample:]
			switch f.bitsPerSample {
			case 8:
				samples[i] = float32(int(b[0])-128) / 128
			case 16:
				samples[i] = audio.Int16ToFloat(int16(binary.LittleEndian.Uint16(b)))
			case 24:
				v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
				samples[i] = audio.IntToFloat(v, 24)
			case 32:
				samples[i] = audio.IntToFloat(int32(binary.LittleEndian.Uint32(b)), 32)
			default:
				return audio.Buffer{}, fmt.Errorf("unsupported WAV bit depth: %d", f.bitsPerSample)
			}
		}
	default:
		return audio.Buffer{}, fmt.Errorf("unsupported WAV format tag: %d", f.audioFormat)
	}

	if n/f.channels == 0 {
		return audio.Buffer{}, ErrEmpty
	}

	return audio.Buffer{
		Channels:   deinterleave(samples, f.channels),
		SampleRate: f.sampleRate,
	}, nil
}
