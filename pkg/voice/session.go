// ABOUTME: Voice session lifecycle controller
// ABOUTME: Acquires devices and transport, wires capture and playback, tears everything down once
package voice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/input"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-voice/pkg/transport"
	"github.com/google/uuid"
)

var (
	// ErrClosed is returned by Connect after Close
	ErrClosed = errors.New("session closed")

	// ErrBusy is returned by Connect when the session is not idle. Nothing is acquired.
	ErrBusy = errors.New("session not idle")

	// ErrAborted is returned by Connect when Disconnect interrupts it
	ErrAborted = errors.New("connect aborted")
)

// DefaultLevelInterval spaces audio level events
const DefaultLevelInterval = 50 * time.Millisecond

// Option configures a Session
type Option func(*Session)

// WithInput sets the microphone factory, called once per Connect
func WithInput(factory func() (input.Source, error)) Option {
	return func(s *Session) { s.newSource = factory }
}

// WithOutput sets the output device factory, called once per Connect
func WithOutput(factory func() (output.Device, error)) Option {
	return func(s *Session) { s.newDevice = factory }
}

// WithInputBackend selects a microphone backend by name
func WithInputBackend(name string) Option {
	return WithInput(func() (input.Source, error) { return input.New(name) })
}

// WithOutputBackend selects an output backend by name
func WithOutputBackend(name string) Option {
	return WithOutput(func() (output.Device, error) { return output.New(name) })
}

// WithConnectTimeout bounds how long Connect waits for the transport to open.
// Zero, the default, waits as long as the transport does.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Session) { s.connectTimeout = d }
}

// WithRecorder sets the metrics sink
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithFrameSize sets the capture frame size in samples
func WithFrameSize(n int) Option {
	return func(s *Session) { s.frameSize = n }
}

// WithLevelInterval sets the minimum spacing of audio level events; zero reports every block
func WithLevelInterval(d time.Duration) Option {
	return func(s *Session) { s.levelInterval = d }
}

// Session is one caller-owned voice conversation engine. It can connect,
// disconnect and connect again; Close retires it.
type Session struct {
	channel        transport.Channel
	newSource      func() (input.Source, error)
	newDevice      func() (output.Device, error)
	connectTimeout time.Duration
	recorder       Recorder
	frameSize      int
	levelInterval  time.Duration

	notifier *notifier

	mu      sync.Mutex
	state   State
	current *run
	closed  bool
	volume  int
	muted   bool
}

// run holds everything acquired by one Connect
type run struct {
	id     string
	cb     Callbacks
	ctx    context.Context
	cancel context.CancelFunc

	// started closes when start returns, so teardown never overtakes acquisition
	started chan struct{}

	mu        sync.Mutex
	ending    bool
	announced bool
	source    input.Source
	device    output.Device
	conn      transport.Conn
	sched     *Scheduler

	connected bool

	once sync.Once
}

// adopt stores a freshly acquired resource unless teardown has begun
func (r *run) adopt(set func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ending {
		return false
	}
	set()
	return true
}

// New creates an idle session that talks to the agent through channel
func New(channel transport.Channel, opts ...Option) *Session {
	s := &Session{
		channel:       channel,
		newSource:     func() (input.Source, error) { return input.New("") },
		newDevice:     func() (output.Device, error) { return output.New("") },
		recorder:      nopRecorder{},
		frameSize:     audio.CaptureFrameSize,
		levelInterval: DefaultLevelInterval,
		volume:        100,
	}
	for _, o := range opts {
		o(s)
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	s.notifier = newNotifier()
	return s
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect acquires the microphone and output device, opens the transport and
// starts streaming. It blocks until the session is connected or has failed.
// On failure every acquired resource is released, OnError fires and the
// session is idle again. ctx bounds only the connect itself.
func (s *Session) Connect(ctx context.Context, cfg SessionConfig, cb Callbacks) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		log.Printf("Connect ignored: session is %s", state)
		return ErrBusy
	}
	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:      uuid.New().String(),
		cb:      cb,
		ctx:     runCtx,
		cancel:  cancel,
		started: make(chan struct{}),
	}
	s.current = r
	s.state = StateConnecting
	s.mu.Unlock()

	log.Printf("Connecting session %s (persona=%q, voice=%s)", r.id, cfg.PersonaLabel, cfg.Voice)

	err := s.start(ctx, r, cfg)
	close(r.started)
	if err == nil {
		return nil
	}

	if r.ctx.Err() != nil {
		// Disconnect got there first and is tearing down
		s.teardown(r, nil)
		if errors.Is(err, ErrAborted) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrAborted, err)
	}
	s.recorder.ConnectFailed(transport.Classify(err).String())
	s.teardown(r, err)
	return err
}

// start acquires resources in order and reaches Connected
func (s *Session) start(ctx context.Context, r *run, cfg SessionConfig) error {
	src, err := s.newSource()
	if err != nil {
		return fmt.Errorf("microphone: %w", err)
	}
	if err := src.Open(audio.CaptureSampleRate, s.frameSize); err != nil {
		return fmt.Errorf("microphone: %w", err)
	}
	if !r.adopt(func() { r.source = src }) {
		src.Close()
		return ErrAborted
	}

	dev, err := s.newDevice()
	if err != nil {
		return outputUnavailable(err)
	}
	if err := dev.Open(audio.PlaybackSampleRate); err != nil {
		return outputUnavailable(err)
	}
	if !r.adopt(func() { r.device = dev }) {
		dev.Close()
		return ErrAborted
	}
	s.mu.Lock()
	dev.SetVolume(s.volume)
	dev.SetMuted(s.muted)
	s.mu.Unlock()

	// Capture and playback are metered apart so neither masks the other
	captureMeter := audio.NewMeter(audio.DefaultLevelGain, s.levelInterval)
	playbackMeter := audio.NewMeter(audio.DefaultLevelGain, s.levelInterval)
	sched := NewScheduler(dev, audio.PlaybackSampleRate, s.recorder)
	sched.OnLevel = func(samples []float32) {
		if level, ok := playbackMeter.Observe(samples); ok {
			s.emit(r, Event{Kind: EventAudioLevel, Level: level})
		}
	}
	r.adopt(func() { r.sched = sched })

	conn, err := s.open(ctx, r, cfg)
	if err != nil {
		return err
	}
	if !r.adopt(func() { r.conn = conn }) {
		conn.Close()
		return ErrAborted
	}

	s.mu.Lock()
	if !r.adopt(func() { r.connected = true }) {
		s.mu.Unlock()
		return ErrAborted
	}
	s.state = StateConnected
	s.mu.Unlock()
	s.recorder.SessionStarted()

	cp := &capture{
		conn:     conn,
		meter:    captureMeter,
		recorder: s.recorder,
		onLevel: func(level float64) {
			s.emit(r, Event{Kind: EventAudioLevel, Level: level})
		},
		onFail: func(err error) {
			// Teardown closes the source, which waits for this callback
			go s.teardown(r, fmt.Errorf("send audio: %w", err))
		},
	}
	if err := src.Start(cp.onFrame); err != nil {
		return fmt.Errorf("microphone: %w", err)
	}

	log.Printf("Session %s connected", r.id)
	s.announce(r)

	go s.receive(r, conn, sched)
	return nil
}

// open opens the transport. Disconnect cancels it through r.ctx.
func (s *Session) open(ctx context.Context, r *run, cfg SessionConfig) (transport.Conn, error) {
	if s.channel == nil {
		return nil, errors.New("open transport: no channel configured")
	}

	openCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	if s.connectTimeout > 0 {
		var cancelTimeout context.CancelFunc
		openCtx, cancelTimeout = context.WithTimeout(openCtx, s.connectTimeout)
		defer cancelTimeout()
	}

	conn, err := s.channel.Open(openCtx, transport.OpenConfig{
		SessionID:         r.id,
		Voice:             cfg.Voice.String(),
		SystemInstruction: cfg.SystemInstruction,
		Context:           cfg.Context,
		PersonaLabel:      cfg.PersonaLabel,
	})
	if err != nil {
		return nil, fmt.Errorf("open transport: %w", err)
	}
	return conn, nil
}

// receive routes inbound messages until the stream ends
func (s *Session) receive(r *run, conn transport.Conn, sched *Scheduler) {
	for msg := range conn.Messages() {
		switch msg.Kind {
		case transport.KindAudio:
			if err := sched.HandleChunk(msg.Audio, msg.MIMEType, msg.SampleRate); err != nil && !errors.Is(err, ErrSchedulerStopped) {
				log.Printf("Warning: dropped audio chunk: %v", err)
			}

		case transport.KindTranscript:
			s.emit(r, Event{Kind: EventTranscript, Text: msg.Text, IsUser: msg.Speaker == transport.SpeakerUser})

		case transport.KindInterrupted:
			sched.Interrupt()
			s.emit(r, Event{Kind: EventInterrupted})

		case transport.KindTurnComplete:
			s.emit(r, Event{Kind: EventTurnComplete})

		case transport.KindClosed:
			log.Printf("Session %s closed by remote: %s", r.id, msg.Reason)
			s.teardown(r, nil)
			return

		case transport.KindError:
			err := msg.Err
			if err == nil {
				err = errors.New("remote error")
			}
			s.teardown(r, err)
			return
		}
	}

	if r.ctx.Err() == nil {
		log.Printf("Session %s: inbound stream ended without a close message", r.id)
		s.teardown(r, nil)
	}
}

// emit posts an event unless the run is ending. Level events wait for the
// connected event so OnConnect is always delivered first.
func (s *Session) emit(r *run, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ending || (ev.Kind == EventAudioLevel && !r.announced) {
		return
	}
	s.notifier.post(r.cb, ev)
}

// announce posts the connected event and opens the run to level events
func (s *Session) announce(r *run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ending {
		return
	}
	r.announced = true
	s.notifier.post(r.cb, Event{Kind: EventConnected})
}

// outputUnavailable marks a playback acquisition failure as a device problem
func outputUnavailable(err error) error {
	if errors.Is(err, output.ErrDeviceUnavailable) {
		return fmt.Errorf("output device: %w", err)
	}
	return fmt.Errorf("output device: %w: %w", output.ErrDeviceUnavailable, err)
}

// teardown is the single release path. It runs once per run, in order:
// capture, scheduled buffers, output device, transport. cause selects
// OnError over OnDisconnect. A connect still acquiring is cancelled and
// waited for, so the session is not idle until it has let go too.
func (s *Session) teardown(r *run, cause error) {
	r.once.Do(func() {
		r.mu.Lock()
		r.ending = true
		src, dev, conn, sched := r.source, r.device, r.conn, r.sched
		connected := r.connected
		r.mu.Unlock()

		s.mu.Lock()
		if cause != nil {
			s.state = StateFailed
		} else {
			s.state = StateDisconnecting
		}
		s.mu.Unlock()

		r.cancel()
		<-r.started

		if src != nil {
			if err := src.Close(); err != nil {
				log.Printf("Warning: closing microphone: %v", err)
			}
		}
		if sched != nil {
			sched.Stop()
		}
		if dev != nil {
			if err := dev.Close(); err != nil {
				log.Printf("Warning: closing output device: %v", err)
			}
		}
		if conn != nil {
			if err := conn.Close(); err != nil {
				log.Printf("Warning: closing transport: %v", err)
			}
		}

		if cause != nil {
			log.Printf("Session %s failed: %v", r.id, cause)
			s.notifier.post(r.cb, Event{Kind: EventError, Message: transport.Describe(cause)})
		} else {
			log.Printf("Session %s disconnected", r.id)
			s.notifier.post(r.cb, Event{Kind: EventDisconnected})
		}

		s.mu.Lock()
		final := s.state
		s.state = StateIdle
		s.current = nil
		s.mu.Unlock()

		if connected {
			s.recorder.SessionEnded(final)
		}
	})
}

// Disconnect tears the active session down. Safe to call at any time and
// more than once; it returns once every resource is released.
func (s *Session) Disconnect() {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return
	}
	s.teardown(r, nil)
}

// Close disconnects, delivers pending callbacks and retires the session.
// It must not be called from a callback.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Disconnect()
	s.notifier.close()
	return nil
}

// SetVolume sets playback volume (0-100) now and for later connects
func (s *Session) SetVolume(volume int) {
	volume = min(max(volume, 0), 100)

	s.mu.Lock()
	s.volume = volume
	r := s.current
	s.mu.Unlock()

	if dev := r.outputDevice(); dev != nil {
		dev.SetVolume(volume)
	}
}

// SetMuted sets playback mute now and for later connects
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	r := s.current
	s.mu.Unlock()

	if dev := r.outputDevice(); dev != nil {
		dev.SetMuted(muted)
	}
}

func (r *run) outputDevice() output.Device {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ending {
		return nil
	}
	return r.device
}

// Stats returns playback counters for the active connection
func (s *Session) Stats() SchedulerStats {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return SchedulerStats{}
	}
	r.mu.Lock()
	sched := r.sched
	r.mu.Unlock()
	if sched == nil {
		return SchedulerStats{}
	}
	return sched.Stats()
}
