// ABOUTME: Tests for the gateway transport against a local websocket server
// ABOUTME: Covers persona handshake, message mapping, upload and failures
package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/protocol"
	"github.com/Resonate-Protocol/resonate-voice/pkg/transport"
	"github.com/Resonate-Protocol/resonate-voice/pkg/transport/gateway"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func startGateway(t *testing.T, handler func(conn *websocket.Conn, hello protocol.ClientHello)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg struct {
			Type    string               `json:"type"`
			Payload protocol.ClientHello `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		handler(conn, msg.Payload)
	}))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func serverHello(conn *websocket.Conn, format protocol.AudioFormat) {
	conn.WriteJSON(protocol.Message{Type: protocol.TypeServerHello, Payload: protocol.ServerHello{
		ServerID:     "gw",
		Name:         "Test Gateway",
		Version:      1,
		ActiveRoles:  []string{protocol.RoleVoice},
		SessionID:    "s1",
		OutputFormat: format,
	}})
}

func collect(t *testing.T, conn transport.Conn) []transport.Message {
	t.Helper()
	var got []transport.Message
	timeout := time.After(3 * time.Second)
	for {
		select {
		case msg, ok := <-conn.Messages():
			if !ok {
				return got
			}
			got = append(got, msg)
		case <-timeout:
			t.Fatal("timed out waiting for messages")
			return got
		}
	}
}

func TestOpenSendsPersona(t *testing.T) {
	helloCh := make(chan protocol.ClientHello, 1)
	addr := startGateway(t, func(conn *websocket.Conn, hello protocol.ClientHello) {
		helloCh <- hello
		serverHello(conn, protocol.AudioFormat{Codec: "wav", Channels: 1, SampleRate: 24000, BitDepth: 16})
		conn.ReadMessage()
	})

	ch := gateway.New(addr, gateway.WithClientID("fixed"))
	conn, err := ch.Open(context.Background(), transport.OpenConfig{
		SessionID:         "abc",
		Voice:             "Kore",
		SystemInstruction: "Be brief.",
		Context:           "Lesson 3",
		PersonaLabel:      "Tutor",
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	hello := <-helloCh
	if hello.ClientID != "fixed" {
		t.Errorf("expected client id fixed, got %s", hello.ClientID)
	}
	p := hello.Persona
	if p == nil || p.Voice != "Kore" || p.Label != "Tutor" || p.SystemInstruction != "Be brief." || p.Context != "Lesson 3" {
		t.Errorf("unexpected persona %+v", p)
	}
	if hello.VoiceV1Support == nil || hello.VoiceV1Support.InputFormat.SampleRate != audio.CaptureSampleRate {
		t.Errorf("unexpected voice support %+v", hello.VoiceV1Support)
	}
}

func TestMessageMapping(t *testing.T) {
	addr := startGateway(t, func(conn *websocket.Conn, _ protocol.ClientHello) {
		serverHello(conn, protocol.AudioFormat{Codec: "pcm", Channels: 1, SampleRate: 24000, BitDepth: 16})
		conn.WriteJSON(protocol.Message{Type: protocol.TypeTranscript, Payload: protocol.Transcript{Speaker: "user", Text: "hello", Final: true}})
		conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeBinary(protocol.AudioOutputMessageType, 1, []byte{1, 0, 2, 0}))
		conn.WriteJSON(protocol.Message{Type: protocol.TypeInterrupted, Payload: protocol.Interrupted{}})
		conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeBinary(protocol.OpusOutputMessageType, 2, []byte{0xFC}))
		conn.WriteJSON(protocol.Message{Type: protocol.TypeTranscript, Payload: protocol.Transcript{Speaker: "agent", Text: "hi"}})
		conn.WriteJSON(protocol.Message{Type: protocol.TypeTurnComplete, Payload: protocol.TurnComplete{}})
		conn.WriteJSON(protocol.Message{Type: protocol.TypeServerGoodbye, Payload: protocol.ServerGoodbye{Reason: "shutdown"}})
		conn.ReadMessage()
	})

	conn, err := gateway.New(addr).Open(context.Background(), transport.OpenConfig{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	got := collect(t, conn)
	want := []transport.Kind{
		transport.KindTranscript,
		transport.KindAudio,
		transport.KindInterrupted,
		transport.KindAudio,
		transport.KindTranscript,
		transport.KindTurnComplete,
		transport.KindClosed,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d: %+v", len(want), len(got), got)
	}
	for i, k := range want {
		if got[i].Kind != k {
			t.Errorf("message %d: expected %s, got %s", i, k, got[i].Kind)
		}
	}
	if got[0].Speaker != transport.SpeakerUser || got[0].Text != "hello" || !got[0].Final {
		t.Errorf("unexpected user transcript %+v", got[0])
	}
	if got[1].MIMEType != "audio/pcm;rate=24000;channels=1" {
		t.Errorf("unexpected pcm mime %q", got[1].MIMEType)
	}
	if got[3].MIMEType != gateway.OpusMIMEType {
		t.Errorf("unexpected opus mime %q", got[3].MIMEType)
	}
	if got[4].Speaker != transport.SpeakerAgent {
		t.Errorf("expected agent speaker, got %s", got[4].Speaker)
	}
	if got[6].Reason != "shutdown" {
		t.Errorf("expected shutdown reason, got %q", got[6].Reason)
	}
}

func TestSendUploadsPCM(t *testing.T) {
	received := make(chan []byte, 1)
	addr := startGateway(t, func(conn *websocket.Conn, _ protocol.ClientHello) {
		serverHello(conn, protocol.AudioFormat{Codec: "wav"})
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- data
		conn.ReadMessage()
	})

	conn, err := gateway.New(addr).Open(context.Background(), transport.OpenConfig{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	if err := conn.Send(audio.Frame{Samples: []int16{1, -1}, SampleRate: audio.CaptureSampleRate}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case data := <-received:
		msgType, seq, payload, err := protocol.DecodeBinary(data)
		if err != nil {
			t.Fatalf("DecodeBinary() error = %v", err)
		}
		if msgType != protocol.AudioInputMessageType || seq != 1 {
			t.Errorf("unexpected header type=%d seq=%d", msgType, seq)
		}
		want := []byte{0x01, 0x00, 0xFF, 0xFF}
		if string(payload) != string(want) {
			t.Errorf("expected payload % x, got % x", want, payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for upload")
	}
}

func TestOpenFailures(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		addr := startGateway(t, func(conn *websocket.Conn, _ protocol.ClientHello) {
			conn.WriteJSON(protocol.Message{Type: protocol.TypeServerError, Payload: protocol.ServerError{Code: "RESOURCE_EXHAUSTED", Message: "too many sessions"}})
		})

		_, err := gateway.New(addr).Open(context.Background(), transport.OpenConfig{})
		if got := transport.Classify(err); got != transport.CategoryQuota {
			t.Errorf("expected quota, got %s (%v)", got, err)
		}
	})

	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := gateway.New(strings.TrimPrefix(srv.URL, "http://")).Open(context.Background(), transport.OpenConfig{})
		var status *transport.StatusError
		if !errors.As(err, &status) || status.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected StatusError 401, got %v", err)
		}
		if got := transport.Classify(err); got != transport.CategoryCredentials {
			t.Errorf("expected credentials, got %s", got)
		}
	})

	t.Run("refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := strings.TrimPrefix(srv.URL, "http://")
		srv.Close()

		_, err := gateway.New(addr).Open(context.Background(), transport.OpenConfig{})
		if got := transport.Classify(err); got != transport.CategoryNetwork {
			t.Errorf("expected network, got %s (%v)", got, err)
		}
	})
}

func TestServerErrorMidSession(t *testing.T) {
	addr := startGateway(t, func(conn *websocket.Conn, _ protocol.ClientHello) {
		serverHello(conn, protocol.AudioFormat{Codec: "wav"})
		conn.WriteJSON(protocol.Message{Type: protocol.TypeServerError, Payload: protocol.ServerError{Code: "UNAVAILABLE", Message: "backend down"}})
		conn.ReadMessage()
	})

	conn, err := gateway.New(addr).Open(context.Background(), transport.OpenConfig{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	got := collect(t, conn)
	if len(got) != 1 || got[0].Kind != transport.KindError {
		t.Fatalf("expected single error message, got %+v", got)
	}
	if c := transport.Classify(got[0].Err); c != transport.CategoryUnavailable {
		t.Errorf("expected unavailable, got %s", c)
	}
}

func TestAbruptDisconnect(t *testing.T) {
	addr := startGateway(t, func(conn *websocket.Conn, _ protocol.ClientHello) {
		serverHello(conn, protocol.AudioFormat{Codec: "wav"})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "overloaded"))
	})

	conn, err := gateway.New(addr).Open(context.Background(), transport.OpenConfig{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	got := collect(t, conn)
	if len(got) != 1 || got[0].Kind != transport.KindError {
		t.Fatalf("expected single error message, got %+v", got)
	}
	var remote *transport.RemoteError
	if !errors.As(got[0].Err, &remote) || remote.Code != websocket.CloseTryAgainLater {
		t.Errorf("expected remote close 1013, got %v", got[0].Err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	goodbye := make(chan string, 1)
	addr := startGateway(t, func(conn *websocket.Conn, _ protocol.ClientHello) {
		serverHello(conn, protocol.AudioFormat{Codec: "wav"})
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Type string `json:"type"`
		}
		json.Unmarshal(data, &msg)
		goodbye <- msg.Type
	})

	conn, err := gateway.New(addr).Open(context.Background(), transport.OpenConfig{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	conn.Close()
	conn.Close()

	if _, ok := <-conn.Messages(); ok {
		t.Error("expected messages closed without terminal message")
	}
	if err := conn.Send(audio.Frame{Samples: []int16{0}}); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	select {
	case typ := <-goodbye:
		if typ != protocol.TypeClientGoodbye {
			t.Errorf("expected client/goodbye, got %s", typ)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no goodbye received")
	}
}

func TestMIMEType(t *testing.T) {
	tests := []struct {
		format protocol.AudioFormat
		want   string
	}{
		{protocol.AudioFormat{Codec: "wav"}, "audio/wav"},
		{protocol.AudioFormat{Codec: "flac"}, "audio/flac"},
		{protocol.AudioFormat{Codec: "mp3"}, "audio/mpeg"},
		{protocol.AudioFormat{Codec: "opus", SampleRate: 48000, Channels: 2}, "audio/opus;rate=48000;channels=2"},
		{protocol.AudioFormat{Codec: "pcm"}, "audio/pcm;rate=24000;channels=1"},
		{protocol.AudioFormat{}, "audio/pcm;rate=24000;channels=1"},
	}

	for _, tt := range tests {
		if got := gateway.MIMEType(tt.format); got != tt.want {
			t.Errorf("MIMEType(%+v) = %q, want %q", tt.format, got, tt.want)
		}
	}
}
