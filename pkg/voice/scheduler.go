// ABOUTME: Gapless playback scheduler for inbound audio chunks
// ABOUTME: Packs decoded buffers back to back on the device clock and cancels them on barge-in
package voice

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/resample"
)

// ErrSchedulerStopped is returned when scheduling after Stop
var ErrSchedulerStopped = errors.New("scheduler stopped")

// scheduledBuffer is one buffer committed to the device clock
type scheduledBuffer struct {
	start    time.Duration
	duration time.Duration
	handle   output.Handle
}

// SchedulerStats tracks scheduler counters
type SchedulerStats struct {
	Scheduled   int64
	Dropped     int64
	Interrupted int64
}

// Scheduler places decoded chunks on an output device without gaps or overlap
type Scheduler struct {
	device   output.Device
	rate     int
	recorder Recorder

	// OnLevel, when set, receives the loudness of each scheduled chunk
	OnLevel func(samples []float32)

	mu sync.Mutex
	// nextFrame is the next start counted in output frames, so chunk lengths never drift
	nextFrame int64
	live      map[*scheduledBuffer]struct{}
	stopped   bool
	stats     SchedulerStats

	decMu    sync.Mutex
	decoders map[decode.Hint]decode.Decoder
}

// NewScheduler creates a scheduler for a device opened at sampleRate
func NewScheduler(device output.Device, sampleRate int, recorder Recorder) *Scheduler {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Scheduler{
		device:   device,
		rate:     sampleRate,
		recorder: recorder,
		live:     make(map[*scheduledBuffer]struct{}),
		decoders: make(map[decode.Hint]decode.Decoder),
	}
}

// HandleChunk decodes one inbound chunk and schedules it. A chunk that cannot
// be decoded is dropped and reported; the scheduler stays usable.
func (s *Scheduler) HandleChunk(data []byte, mimeType string, sampleRate int) error {
	buf, err := s.decode(data, mimeType, sampleRate)
	if err != nil {
		s.drop()
		return fmt.Errorf("decode %d-byte chunk (%s): %w", len(data), mimeType, err)
	}
	if _, err := s.Schedule(buf); err != nil {
		if !errors.Is(err, ErrSchedulerStopped) {
			s.drop()
		}
		return err
	}
	return nil
}

func (s *Scheduler) drop() {
	s.mu.Lock()
	s.stats.Dropped++
	s.mu.Unlock()
	s.recorder.ChunkDropped()
}

// decode picks a decoder from the MIME hint. Opus needs its own stateful
// decoder; everything else goes through container-then-raw fallback, with
// bare MPEG sync ignored when the transport announces raw PCM.
func (s *Scheduler) decode(data []byte, mimeType string, sampleRate int) (audio.Buffer, error) {
	hint := decode.ParseMIME(mimeType)
	if sampleRate > 0 {
		hint.SampleRate = sampleRate
	}
	if hint.SampleRate == 0 {
		hint.SampleRate = s.rate
	}
	if hint.Channels == 0 {
		hint.Channels = 1
	}
	switch hint.Codec {
	case "opus", "pcm":
	default:
		hint.Codec = "fallback"
	}

	s.decMu.Lock()
	defer s.decMu.Unlock()

	dec, ok := s.decoders[hint]
	if !ok {
		var err error
		switch hint.Codec {
		case "opus":
			dec, err = decode.NewOpus(hint.SampleRate, hint.Channels)
		case "pcm":
			dec, err = decode.NewRawFallback(hint.SampleRate, hint.Channels)
		default:
			dec, err = decode.NewFallback(hint.SampleRate, hint.Channels)
		}
		if err != nil {
			return audio.Buffer{}, err
		}
		s.decoders[hint] = dec
	}
	return dec.Decode(data)
}

// Schedule commits buf to the device clock and returns its start time
func (s *Scheduler) Schedule(buf audio.Buffer) (time.Duration, error) {
	if buf.SampleRate != s.rate {
		buf = resample.Buffer(buf, s.rate)
	}
	samples := buf.Mono()
	duration := s.frameToTime(int64(len(samples)))

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, ErrSchedulerStopped
	}

	startFrame := max(s.nextFrame, s.timeToFrame(s.device.Now()))
	startAt := s.frameToTime(startFrame)
	sb := &scheduledBuffer{start: startAt, duration: duration}

	handle, err := s.device.Play(samples, startAt, func() { s.finish(sb) })
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("schedule playback: %w", err)
	}
	sb.handle = handle
	s.live[sb] = struct{}{}
	s.nextFrame = startFrame + int64(len(samples))

	if s.stats.Scheduled < 5 {
		log.Printf("Scheduled chunk #%d: start=%v duration=%v live=%d",
			s.stats.Scheduled, startAt, duration, len(s.live))
	}
	s.stats.Scheduled++
	s.mu.Unlock()

	s.recorder.ChunkScheduled(duration)
	if s.OnLevel != nil {
		s.OnLevel(samples)
	}
	return startAt, nil
}

// finish runs from the audio thread when a buffer ends naturally
func (s *Scheduler) finish(sb *scheduledBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, sb)
}

// Interrupt stops every live buffer, clears the set and rewinds the clock to 0.
// It returns how many buffers were stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	n := s.stopAll()
	s.nextFrame = 0
	s.stats.Interrupted++
	s.mu.Unlock()

	if n > 0 {
		log.Printf("Interrupted playback, stopped %d buffers", n)
	}
	s.recorder.Interrupted(n)
	return n
}

// Stop cancels everything and rejects later chunks
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.stopAll()
	s.nextFrame = 0
}

func (s *Scheduler) stopAll() int {
	n := len(s.live)
	for sb := range s.live {
		sb.handle.Stop()
	}
	clear(s.live)
	return n
}

// NextStart returns the clock value the next chunk will be packed against
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameToTime(s.nextFrame)
}

// frameToTime truncates; timeToFrame rounds, so the pair round-trips exactly
func (s *Scheduler) frameToTime(frame int64) time.Duration {
	return time.Duration(frame * int64(time.Second) / int64(s.rate))
}

func (s *Scheduler) timeToFrame(t time.Duration) int64 {
	if t <= 0 {
		return 0
	}
	return (int64(t)*int64(s.rate) + int64(time.Second)/2) / int64(time.Second)
}

// Live returns the number of buffers scheduled and not yet ended or stopped
func (s *Scheduler) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Stats returns scheduler counters
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
