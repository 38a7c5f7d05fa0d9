// ABOUTME: Voice client application orchestration
// ABOUTME: Coordinates transport selection, the voice session, metrics and the TUI
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/config"
	"github.com/Resonate-Protocol/resonate-voice/internal/discovery"
	"github.com/Resonate-Protocol/resonate-voice/internal/metrics"
	"github.com/Resonate-Protocol/resonate-voice/internal/ui"
	"github.com/Resonate-Protocol/resonate-voice/pkg/transport"
	"github.com/Resonate-Protocol/resonate-voice/pkg/transport/gateway"
	"github.com/Resonate-Protocol/resonate-voice/pkg/transport/gemini"
	"github.com/Resonate-Protocol/resonate-voice/pkg/voice"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	// DiscoveryTimeout bounds the mDNS search for a gateway
	DiscoveryTimeout = 10 * time.Second

	statsInterval = 500 * time.Millisecond
)

// Config holds client application configuration
type Config struct {
	Settings    *config.Config
	Persona     string // persona name; empty selects the first
	Name        string // client name announced to gateways
	UseTUI      bool
	AutoConnect bool
	Metrics     *metrics.Metrics

	// Channel replaces the transport chosen by Settings
	Channel transport.Channel
	// SessionOptions are applied after the options built from Settings
	SessionOptions []voice.Option
	// OnUpdate receives every status message, with or without a TUI
	OnUpdate func(msg tea.Msg)
}

// App is the interactive voice client
type App struct {
	config     Config
	persona    config.Persona
	sessionCfg voice.SessionConfig
	session    *voice.Session
	via        string

	tuiProg  *tea.Program
	controls *ui.Controls

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the application for the selected persona
func New(cfg Config) (*App, error) {
	if cfg.Settings == nil {
		cfg.Settings = config.Default()
	}
	if cfg.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Name = hostname + "-resonate-voice"
	}

	persona, err := cfg.Settings.Persona(cfg.Persona)
	if err != nil {
		return nil, err
	}
	sessionCfg, err := persona.SessionConfig()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		config:     cfg,
		persona:    persona,
		sessionCfg: sessionCfg,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// NewChannel builds the transport named by the settings. A gateway without an
// address is found over mDNS.
func NewChannel(ctx context.Context, settings *config.Config, name string) (transport.Channel, string, error) {
	t := settings.Transport
	switch t.Kind {
	case "gemini":
		key := os.Getenv(t.APIKeyEnv)
		if key == "" {
			return nil, "", fmt.Errorf("%s is not set", t.APIKeyEnv)
		}
		model := t.Model
		if model == "" {
			model = gemini.DefaultModel
		}
		return gemini.New(key, gemini.WithModel(model)), "gemini " + model, nil

	case "gateway":
		addr, path := t.Address, ""
		if addr == "" {
			disc := discovery.NewManager(discovery.Config{ServiceName: name})
			defer disc.Stop()

			findCtx, cancel := context.WithTimeout(ctx, DiscoveryTimeout)
			defer cancel()

			log.Printf("Searching for a voice gateway...")
			gw, err := disc.Find(findCtx)
			if err != nil {
				return nil, "", err
			}
			log.Printf("Discovered gateway %s at %s", gw.Name, gw.Addr())
			addr, path = gw.Addr(), gw.Path
		}

		opts := []gateway.Option{gateway.WithName(name)}
		if path != "" {
			opts = append(opts, gateway.WithPath(path))
		}
		return gateway.New(addr, opts...), "gateway " + addr, nil

	default:
		return nil, "", fmt.Errorf("unknown transport %q", t.Kind)
	}
}

// sessionOptions maps settings to voice session options
func (a *App) sessionOptions() []voice.Option {
	s := a.config.Settings
	opts := []voice.Option{
		voice.WithInputBackend(s.Audio.Input),
		voice.WithOutputBackend(s.Audio.Output),
	}
	if s.Transport.ConnectTimeout > 0 {
		opts = append(opts, voice.WithConnectTimeout(s.Transport.ConnectTimeout))
	}
	if a.config.Metrics != nil {
		opts = append(opts, voice.WithRecorder(a.config.Metrics))
	}
	return append(opts, a.config.SessionOptions...)
}

// Run drives the client until ctx ends, Stop is called or the user quits
func (a *App) Run(ctx context.Context) error {
	channel, via := a.config.Channel, "custom transport"
	if channel == nil {
		var err error
		channel, via, err = NewChannel(ctx, a.config.Settings, a.config.Name)
		if err != nil {
			return fmt.Errorf("transport setup failed: %w", err)
		}
	}
	a.via = via

	a.session = voice.New(channel, a.sessionOptions()...)
	a.session.SetVolume(a.config.Settings.Audio.Volume)
	defer a.session.Close()

	var (
		toggle  <-chan ui.ToggleMsg
		changes <-chan ui.VolumeChangeMsg
		quit    <-chan ui.QuitMsg
	)
	tuiDone := make(chan struct{})
	if a.config.UseTUI {
		a.controls = ui.NewControls()
		toggle, changes, quit = a.controls.Toggle, a.controls.Changes, a.controls.Quit
		a.tuiProg = ui.Run(a.controls, a.config.Settings.Audio.Volume)

		go func() {
			defer close(tuiDone)
			if _, err := a.tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
	} else {
		close(tuiDone)
	}

	log.Printf("Persona %s (%s) via %s", a.persona.Name, a.sessionCfg.Voice, via)
	a.update(ui.StatusMsg{
		State:     voice.StateIdle.String(),
		Persona:   a.persona.Name,
		Voice:     a.sessionCfg.Voice.String(),
		Transport: via,
	})

	if a.config.AutoConnect {
		a.connect()
	}

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			log.Printf("Shutdown signal received")
			break loop
		case <-a.ctx.Done():
			break loop
		case <-quit:
			log.Printf("Received quit signal from TUI")
			break loop
		case <-toggle:
			a.toggle()
		case vol := <-changes:
			log.Printf("Volume change: %d%%, muted=%v", vol.Volume, vol.Muted)
			a.session.SetVolume(vol.Volume)
			a.session.SetMuted(vol.Muted)
		case <-ticker.C:
			stats := a.session.Stats()
			if stats.Scheduled > 0 || stats.Dropped > 0 {
				a.update(ui.StatusMsg{Scheduled: stats.Scheduled, Dropped: stats.Dropped})
			}
		}
	}

	a.cancel()
	a.session.Disconnect()
	a.wg.Wait()

	if a.tuiProg != nil {
		a.tuiProg.Quit()
	}
	<-tuiDone
	return nil
}

// Stop ends Run
func (a *App) Stop() {
	a.cancel()
}

// toggle connects when idle and hangs up otherwise
func (a *App) toggle() {
	switch a.session.State() {
	case voice.StateIdle:
		a.connect()
	case voice.StateConnecting, voice.StateConnected:
		log.Printf("Hanging up")
		a.session.Disconnect()
	}
}

// connect starts a session without blocking the control loop
func (a *App) connect() {
	a.update(ui.StatusMsg{State: voice.StateConnecting.String()})
	log.Printf("Connecting as %s", a.persona.Name)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.session.Connect(a.ctx, a.sessionCfg, a.callbacks())
		switch {
		case err == nil:
		case errors.Is(err, voice.ErrBusy):
			log.Printf("Already connecting")
		case errors.Is(err, voice.ErrAborted):
			log.Printf("Connect aborted")
		default:
			log.Printf("Connect failed: %v", err)
		}
	}()
}

// callbacks routes session events to the log and the TUI
func (a *App) callbacks() voice.Callbacks {
	return voice.Callbacks{
		OnConnect: func() {
			log.Printf("Connected via %s", a.via)
			a.update(ui.StatusMsg{State: voice.StateConnected.String()})
		},
		OnDisconnect: func() {
			log.Printf("Disconnected")
			a.update(ui.StatusMsg{State: voice.StateIdle.String()})
		},
		OnError: func(message string) {
			log.Printf("Session error: %s", message)
			a.update(ui.StatusMsg{State: voice.StateFailed.String(), Error: message})
		},
		OnAudioLevel: func(level float64) {
			a.update(ui.LevelMsg(level))
		},
		OnTranscript: func(text string, isUser bool) {
			if !a.config.UseTUI {
				who := "Agent"
				if isUser {
					who = "You"
				}
				log.Printf("%s: %s", who, text)
			}
			a.update(ui.TranscriptMsg{User: isUser, Text: text})
		},
		OnInterrupted: func() {
			log.Printf("Agent interrupted")
			a.update(ui.InterruptedMsg{})
		},
		OnTurnComplete: func() {
			a.update(ui.TurnCompleteMsg{})
		},
	}
}

// update forwards a status message to the observers
func (a *App) update(msg tea.Msg) {
	if a.config.OnUpdate != nil {
		a.config.OnUpdate(msg)
	}
	if a.tuiProg != nil {
		a.tuiProg.Send(msg)
	}
}
