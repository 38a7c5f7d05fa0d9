// ABOUTME: Energy-based voice activity detection for inbound microphone audio
// ABOUTME: Turns a stream of PCM blocks into speech start and speech end transitions
package server

import (
	"math"
	"time"
)

// Transition is a change in detected speech state
type Transition int

const (
	NoChange Transition = iota
	SpeechStarted
	SpeechEnded
)

// VAD defaults
const (
	DefaultVADThreshold = 0.02
	DefaultMinSpeech    = 200 * time.Millisecond
	DefaultHangover     = 600 * time.Millisecond
)

// VAD detects speech by RMS energy with hysteresis on both edges
type VAD struct {
	threshold  float64
	minSpeech  time.Duration
	hangover   time.Duration
	sampleRate int

	speaking bool
	voiced   time.Duration // consecutive loud audio while not speaking
	silent   time.Duration // consecutive quiet audio while speaking
	speech   time.Duration // length of the current utterance
}

// NewVAD creates a detector for mono PCM16 at sampleRate
func NewVAD(threshold float64, sampleRate int) *VAD {
	if threshold <= 0 {
		threshold = DefaultVADThreshold
	}
	return &VAD{
		threshold:  threshold,
		minSpeech:  DefaultMinSpeech,
		hangover:   DefaultHangover,
		sampleRate: sampleRate,
	}
}

// Energy returns the normalized RMS of the samples in [0, 1]
func Energy(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		n := float64(s) / 32768.0
		sum += n * n
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Process feeds one block and reports whether speech started or ended
func (v *VAD) Process(samples []int16) Transition {
	if len(samples) == 0 || v.sampleRate <= 0 {
		return NoChange
	}
	block := time.Duration(len(samples)) * time.Second / time.Duration(v.sampleRate)
	loud := Energy(samples) >= v.threshold

	if !v.speaking {
		if !loud {
			v.voiced = 0
			return NoChange
		}
		v.voiced += block
		if v.voiced < v.minSpeech {
			return NoChange
		}
		v.speaking = true
		v.speech = v.voiced
		v.voiced = 0
		v.silent = 0
		return SpeechStarted
	}

	v.speech += block
	if loud {
		v.silent = 0
		return NoChange
	}
	v.silent += block
	if v.silent < v.hangover {
		return NoChange
	}
	v.speaking = false
	return SpeechEnded
}

// Speaking reports whether an utterance is in progress
func (v *VAD) Speaking() bool {
	return v.speaking
}

// Utterance returns the length of the current or last utterance, trailing silence excluded
func (v *VAD) Utterance() time.Duration {
	return max(v.speech-v.silent, 0)
}
