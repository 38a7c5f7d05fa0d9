// ABOUTME: Tests for the voice client application
// ABOUTME: Drives the app headless with in-memory audio and transport
package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/config"
	"github.com/Resonate-Protocol/resonate-voice/internal/metrics"
	"github.com/Resonate-Protocol/resonate-voice/internal/ui"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/input"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/mock"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-voice/pkg/transport"
	tmock "github.com/Resonate-Protocol/resonate-voice/pkg/transport/mock"
	"github.com/Resonate-Protocol/resonate-voice/pkg/voice"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// updates collects status messages sent by the app
type updates struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (u *updates) add(msg tea.Msg) {
	u.mu.Lock()
	u.msgs = append(u.msgs, msg)
	u.mu.Unlock()
}

func (u *updates) has(match func(tea.Msg) bool) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, m := range u.msgs {
		if match(m) {
			return true
		}
	}
	return false
}

func hasState(state string) func(tea.Msg) bool {
	return func(m tea.Msg) bool {
		s, ok := m.(ui.StatusMsg)
		return ok && s.State == state
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type harness struct {
	app     *App
	channel *tmock.Channel
	device  *mock.Device
	updates *updates
	metrics *metrics.Metrics
	done    chan error
}

func start(t *testing.T, settings *config.Config, persona string) *harness {
	t.Helper()
	h := &harness{
		channel: tmock.NewChannel(),
		device:  mock.NewDevice(),
		updates: &updates{},
		metrics: metrics.New("test"),
		done:    make(chan error, 1),
	}
	source := mock.NewSource()

	a, err := New(Config{
		Settings:    settings,
		Persona:     persona,
		Name:        "test-client",
		AutoConnect: true,
		Metrics:     h.metrics,
		Channel:     h.channel,
		SessionOptions: []voice.Option{
			voice.WithInput(func() (input.Source, error) { return source, nil }),
			voice.WithOutput(func() (output.Device, error) { return h.device, nil }),
		},
		OnUpdate: h.updates.add,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.app = a

	go func() { h.done <- a.Run(context.Background()) }()
	t.Cleanup(func() {
		a.Stop()
		select {
		case <-h.done:
		case <-time.After(3 * time.Second):
			t.Error("Run did not return after Stop")
		}
	})
	return h
}

func TestRunConnectsWithPersona(t *testing.T) {
	settings := config.Default()
	settings.Personas = append(settings.Personas, config.Persona{
		Name:        "Tutor",
		Voice:       "Kore",
		Instruction: "You are a maths tutor.",
		Context:     "Topic: fractions",
	})
	settings.Audio.Volume = 40

	h := start(t, settings, "Tutor")

	waitFor(t, "connected status", func() bool { return h.updates.has(hasState("connected")) })

	cfgs := h.channel.Configs()
	if len(cfgs) != 1 {
		t.Fatalf("opens = %d, want 1", len(cfgs))
	}
	if cfgs[0].Voice != "Kore" || cfgs[0].PersonaLabel != "Tutor" || cfgs[0].Context != "Topic: fractions" {
		t.Errorf("open config = %+v", cfgs[0])
	}
	if vol, _ := h.device.Volume(); vol != 40 {
		t.Errorf("device volume = %d, want 40", vol)
	}
	if !h.updates.has(func(m tea.Msg) bool {
		s, ok := m.(ui.StatusMsg)
		return ok && s.Persona == "Tutor" && s.Voice == "Kore" && s.Transport == "custom transport"
	}) {
		t.Error("persona status not published")
	}
	waitFor(t, "session metric", func() bool { return testutil.ToFloat64(h.metrics.SessionsActive) == 1 })
}

func TestRunForwardsSessionEvents(t *testing.T) {
	h := start(t, config.Default(), "")
	waitFor(t, "connected status", func() bool { return h.updates.has(hasState("connected")) })

	conn := h.channel.Last()
	conn.Inject(transport.Message{Kind: transport.KindTranscript, Speaker: transport.SpeakerUser, Text: "hello"})
	conn.Inject(transport.Message{Kind: transport.KindInterrupted})
	conn.Inject(transport.Message{Kind: transport.KindTurnComplete})

	waitFor(t, "transcript", func() bool {
		return h.updates.has(func(m tea.Msg) bool {
			tr, ok := m.(ui.TranscriptMsg)
			return ok && tr.User && tr.Text == "hello"
		})
	})
	waitFor(t, "interruption", func() bool {
		return h.updates.has(func(m tea.Msg) bool { _, ok := m.(ui.InterruptedMsg); return ok })
	})
	waitFor(t, "turn complete", func() bool {
		return h.updates.has(func(m tea.Msg) bool { _, ok := m.(ui.TurnCompleteMsg); return ok })
	})
}

func TestToggleHangsUpAndReconnects(t *testing.T) {
	h := start(t, config.Default(), "")
	waitFor(t, "connected status", func() bool { return h.updates.has(hasState("connected")) })

	h.app.toggle()
	waitFor(t, "idle", func() bool { return h.app.session.State() == voice.StateIdle })
	if !h.channel.Last().IsClosed() {
		t.Error("hang up left the connection open")
	}

	h.app.toggle()
	waitFor(t, "second connection", func() bool { return len(h.channel.Conns()) == 2 })
	waitFor(t, "connected again", func() bool { return h.app.session.State() == voice.StateConnected })
}

func TestRemoteErrorIsReported(t *testing.T) {
	h := start(t, config.Default(), "")
	waitFor(t, "connected status", func() bool { return h.updates.has(hasState("connected")) })

	h.channel.Last().Inject(transport.Message{Kind: transport.KindError, Err: &transport.StatusError{StatusCode: 429}})

	waitFor(t, "failed status", func() bool {
		return h.updates.has(func(m tea.Msg) bool {
			s, ok := m.(ui.StatusMsg)
			return ok && s.State == "failed" && s.Error != ""
		})
	})
}

func TestStopAbortsPendingConnect(t *testing.T) {
	settings := config.Default()
	channel := tmock.NewChannel()
	channel.Block = true

	a, err := New(Config{
		Settings:    settings,
		Name:        "test-client",
		AutoConnect: true,
		Channel:     channel,
		SessionOptions: []voice.Option{
			voice.WithInput(func() (input.Source, error) { return mock.NewSource(), nil }),
			voice.WithOutput(func() (output.Device, error) { return mock.NewDevice(), nil }),
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	waitFor(t, "pending open", func() bool { return len(channel.Configs()) == 1 })
	a.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return while connect was pending")
	}
}

func TestNewUnknownPersona(t *testing.T) {
	if _, err := New(Config{Settings: config.Default(), Persona: "Nobody"}); err == nil {
		t.Error("expected error for unknown persona")
	}
}

func TestNewChannel(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, c *config.Config)
		wantVia string
		wantErr string
	}{
		{
			name: "gemini with key",
			setup: func(t *testing.T, c *config.Config) {
				t.Setenv("TEST_GEMINI_KEY", "secret")
				c.Transport.APIKeyEnv = "TEST_GEMINI_KEY"
				c.Transport.Model = "test-model"
			},
			wantVia: "gemini test-model",
		},
		{
			name: "gemini without key",
			setup: func(t *testing.T, c *config.Config) {
				t.Setenv("TEST_GEMINI_KEY", "")
				c.Transport.APIKeyEnv = "TEST_GEMINI_KEY"
			},
			wantErr: "TEST_GEMINI_KEY is not set",
		},
		{
			name: "gateway address",
			setup: func(t *testing.T, c *config.Config) {
				c.Transport.Kind = "gateway"
				c.Transport.Address = "127.0.0.1:8928"
			},
			wantVia: "gateway 127.0.0.1:8928",
		},
		{
			name: "unknown kind",
			setup: func(t *testing.T, c *config.Config) {
				c.Transport.Kind = "carrier-pigeon"
			},
			wantErr: "unknown transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := config.Default()
			tt.setup(t, settings)

			channel, via, err := NewChannel(context.Background(), settings, "test-client")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewChannel: %v", err)
			}
			if channel == nil || via != tt.wantVia {
				t.Errorf("via = %q, want %q", via, tt.wantVia)
			}
		})
	}
}
