// ABOUTME: Reply audio sources for the gateway
// ABOUTME: Generates spoken-length test tones or plays a decoded audio clip
package server

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/encode"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/resample"
)

// Source provides mono PCM16 for one agent reply
type Source interface {
	// Read fills samples and returns how many were written, io.EOF once drained
	Read(samples []int16) (int, error)
	// SampleRate returns the rate of the produced samples
	SampleRate() int
}

// fadeDuration softens tone edges so replies do not click
const fadeDuration = 10 * time.Millisecond

// ToneSource generates a sine tone of fixed length
type ToneSource struct {
	mu          sync.Mutex
	sampleIndex int
	total       int
	fade        int
	frequency   float64
	sampleRate  int
}

// NewToneSource creates a tone of the given length
func NewToneSource(frequency float64, sampleRate int, length time.Duration) *ToneSource {
	total := int(length.Seconds() * float64(sampleRate))
	return &ToneSource{
		total:      total,
		fade:       min(int(fadeDuration.Seconds()*float64(sampleRate)), total/2),
		frequency:  frequency,
		sampleRate: sampleRate,
	}
}

func (s *ToneSource) Read(samples []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := s.total - s.sampleIndex
	if remaining <= 0 {
		return 0, io.EOF
	}
	n := min(len(samples), remaining)

	for i := 0; i < n; i++ {
		idx := s.sampleIndex + i
		t := float64(idx) / float64(s.sampleRate)
		gain := 0.3
		if s.fade > 0 {
			if idx < s.fade {
				gain *= float64(idx) / float64(s.fade)
			} else if tail := s.total - idx; tail < s.fade {
				gain *= float64(tail) / float64(s.fade)
			}
		}
		samples[i] = int16(math.Sin(2*math.Pi*s.frequency*t) * 32767.0 * gain)
	}

	s.sampleIndex += n
	return n, nil
}

func (s *ToneSource) SampleRate() int { return s.sampleRate }

// Clip is a decoded reply recording held in memory
type Clip struct {
	samples    []int16
	sampleRate int
}

// LoadClip decodes a WAV, MP3 or FLAC file to mono PCM16 at sampleRate
func LoadClip(path string, sampleRate int) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reply clip: %w", err)
	}

	buf, err := decode.NewContainer().Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode reply clip %s: %w", path, err)
	}
	if buf.Frames() == 0 {
		return nil, fmt.Errorf("reply clip %s has no audio", path)
	}

	buf = resample.Buffer(buf, sampleRate)
	return &Clip{
		samples:    encode.Quantize(buf.Mono()),
		sampleRate: sampleRate,
	}, nil
}

// Duration returns the clip length
func (c *Clip) Duration() time.Duration {
	return time.Duration(len(c.samples)) * time.Second / time.Duration(c.sampleRate)
}

// Source returns a fresh reader over the clip
func (c *Clip) Source() Source {
	return &clipSource{clip: c}
}

type clipSource struct {
	clip *Clip
	pos  int
}

func (s *clipSource) Read(samples []int16) (int, error) {
	if s.pos >= len(s.clip.samples) {
		return 0, io.EOF
	}
	n := copy(samples, s.clip.samples[s.pos:])
	s.pos += n
	return n, nil
}

func (s *clipSource) SampleRate() int { return s.clip.sampleRate }
