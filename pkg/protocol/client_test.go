// ABOUTME: Tests for the voice gateway client against a local websocket server
// ABOUTME: Covers handshake, rejections, ordered events and audio upload
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func startGateway(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultPath {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func readHello(t *testing.T, conn *websocket.Conn) ClientHello {
	t.Helper()
	var msg struct {
		Type    string      `json:"type"`
		Payload ClientHello `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Errorf("read hello: %v", err)
	}
	if msg.Type != TypeClientHello {
		t.Errorf("expected client/hello, got %s", msg.Type)
	}
	return msg.Payload
}

func sendHello(conn *websocket.Conn) {
	conn.WriteJSON(Message{Type: TypeServerHello, Payload: ServerHello{
		ServerID:     "srv",
		Name:         "Test Gateway",
		Version:      1,
		ActiveRoles:  []string{RoleVoice},
		SessionID:    "sess-1",
		OutputFormat: AudioFormat{Codec: "wav", Channels: 1, SampleRate: 24000, BitDepth: 16},
	}})
}

func TestConnectHandshake(t *testing.T) {
	helloCh := make(chan ClientHello, 1)
	addr := startGateway(t, func(conn *websocket.Conn) {
		helloCh <- readHello(t, conn)
		sendHello(conn)
		conn.ReadMessage()
	})

	c := NewClient(Config{ServerAddr: addr, ClientID: "c1", Name: "Test", Version: 1, Persona: &Persona{Voice: "Puck"}})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	hello := <-helloCh
	if hello.ClientID != "c1" || hello.Persona == nil || hello.Persona.Voice != "Puck" {
		t.Errorf("unexpected hello %+v", hello)
	}
	if len(hello.SupportedRoles) != 1 || hello.SupportedRoles[0] != RoleVoice {
		t.Errorf("unexpected roles %v", hello.SupportedRoles)
	}

	sh := c.ServerHello()
	if sh.SessionID != "sess-1" || sh.OutputFormat.SampleRate != 24000 {
		t.Errorf("unexpected server hello %+v", sh)
	}
	if !c.IsConnected() {
		t.Error("expected connected")
	}
}

func TestConnectRejected(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		addr := startGateway(t, func(conn *websocket.Conn) {
			readHello(t, conn)
			conn.WriteJSON(Message{Type: TypeServerError, Payload: ServerError{Code: "unauthorized", Message: "bad token"}})
		})

		err := NewClient(Config{ServerAddr: addr}).Connect(context.Background())
		var serverErr ServerError
		if !errors.As(err, &serverErr) || serverErr.Code != "unauthorized" {
			t.Errorf("expected ServerError unauthorized, got %v", err)
		}
	})

	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "busy", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		err := NewClient(Config{ServerAddr: strings.TrimPrefix(srv.URL, "http://")}).Connect(context.Background())
		var hsErr *HandshakeError
		if !errors.As(err, &hsErr) || hsErr.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("expected HandshakeError 503, got %v", err)
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		addr := startGateway(t, func(conn *websocket.Conn) {
			readHello(t, conn)
			conn.ReadMessage()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		err := NewClient(Config{ServerAddr: addr}).Connect(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestEventsInOrder(t *testing.T) {
	addr := startGateway(t, func(conn *websocket.Conn) {
		readHello(t, conn)
		sendHello(conn)
		conn.WriteMessage(websocket.BinaryMessage, EncodeBinary(AudioOutputMessageType, 1, []byte("RIFF")))
		conn.WriteJSON(Message{Type: TypeInterrupted, Payload: Interrupted{Reason: "barge-in"}})
		conn.WriteMessage(websocket.BinaryMessage, EncodeBinary(OpusOutputMessageType, 2, []byte{0xFC}))
		conn.WriteMessage(websocket.BinaryMessage, EncodeBinary(9, 3, nil))
		conn.WriteJSON(Message{Type: TypeTranscript, Payload: Transcript{Speaker: "agent", Text: "hi", Final: true}})
		conn.WriteJSON(Message{Type: TypeTurnComplete, Payload: nil})
		conn.WriteJSON(Message{Type: TypeServerGoodbye, Payload: ServerGoodbye{Reason: "done"}})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	})

	c := NewClient(Config{ServerAddr: addr})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	var got []Event
	timeout := time.After(3 * time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-c.Events:
			if !ok {
				done = true
				break
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}

	wantTypes := []string{"audio", TypeInterrupted, "audio", TypeTranscript, TypeTurnComplete, TypeServerGoodbye}
	if len(got) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantTypes), len(got), got)
	}
	for i, want := range wantTypes {
		if got[i].Type != want {
			t.Errorf("event %d: expected %s, got %s", i, want, got[i].Type)
		}
	}
	if got[0].Audio.Type != AudioOutputMessageType || string(got[0].Audio.Data) != "RIFF" {
		t.Errorf("unexpected first chunk %+v", got[0].Audio)
	}
	if got[1].Interrupted.Reason != "barge-in" {
		t.Errorf("unexpected interrupt %+v", got[1].Interrupted)
	}
	if got[2].Audio.Type != OpusOutputMessageType || got[2].Audio.Seq != 2 {
		t.Errorf("unexpected opus chunk %+v", got[2].Audio)
	}
	if got[3].Transcript.Text != "hi" || !got[3].Transcript.Final {
		t.Errorf("unexpected transcript %+v", got[3].Transcript)
	}
	if got[5].Goodbye.Reason != "done" {
		t.Errorf("unexpected goodbye %+v", got[5].Goodbye)
	}

	if !websocket.IsCloseError(c.Err(), websocket.CloseNormalClosure) {
		t.Errorf("expected normal close error, got %v", c.Err())
	}
}

func TestSendAudioFraming(t *testing.T) {
	frames := make(chan []byte, 2)
	addr := startGateway(t, func(conn *websocket.Conn) {
		readHello(t, conn)
		sendHello(conn)
		for i := 0; i < 2; i++ {
			mt, data, err := conn.ReadMessage()
			if err != nil || mt != websocket.BinaryMessage {
				t.Errorf("expected binary frame, got %d %v", mt, err)
				return
			}
			frames <- data
		}
	})

	c := NewClient(Config{ServerAddr: addr})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	c.SendAudio([]byte{1, 0})
	c.SendAudio([]byte{2, 0})

	for want := uint64(1); want <= 2; want++ {
		select {
		case data := <-frames:
			msgType, seq, payload, err := DecodeBinary(data)
			if err != nil || msgType != AudioInputMessageType || seq != want || payload[0] != byte(want) {
				t.Errorf("frame %d: type=%d seq=%d payload=% x err=%v", want, msgType, seq, payload, err)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for audio")
		}
	}
}

func TestCloseIsLocal(t *testing.T) {
	addr := startGateway(t, func(conn *websocket.Conn) {
		readHello(t, conn)
		sendHello(conn)
		conn.ReadMessage()
	})

	c := NewClient(Config{ServerAddr: addr})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	c.Close()
	c.Close()

	select {
	case _, ok := <-c.Events:
		if ok {
			t.Error("expected no events")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("events never closed")
	}
	if c.Err() != nil {
		t.Errorf("local close should not record an error, got %v", c.Err())
	}
	if err := c.SendAudio([]byte{0, 0}); err == nil {
		t.Error("expected error sending after close")
	}
}

func TestUnknownJSONIgnored(t *testing.T) {
	c := NewClient(Config{})
	if ev := c.handleJSONMessage([]byte(`{"type":"server/mystery","payload":{}}`)); ev != nil {
		t.Errorf("expected nil event, got %+v", ev)
	}
	if ev := c.handleJSONMessage([]byte(`not json`)); ev != nil {
		t.Errorf("expected nil event, got %+v", ev)
	}
	data, _ := json.Marshal(Message{Type: TypeInterrupted})
	if ev := c.handleJSONMessage(data); ev == nil || ev.Interrupted == nil {
		t.Errorf("expected interrupted event with null payload, got %+v", ev)
	}
}
