// ABOUTME: Per-client turn taking for the gateway
// ABOUTME: Detects user turns, streams paced replies and handles barge-in
package server

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/protocol"
	"github.com/Resonate-Protocol/resonate-voice/pkg/voice"
)

// Reply length bounds for tone replies
const (
	minReply = 600 * time.Millisecond
	maxReply = 3 * time.Second
)

// Client states shown in the TUI
const (
	StateListening = "listening"
	StateSpeaking  = "speaking"
	StateReplying  = "replying"
)

// reply is one in-flight agent turn
type reply struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// conversation owns the turn state of one client
type conversation struct {
	server *Server
	client *Client
	vad    *VAD
	codec  *chunkEncoder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	reply *reply

	seq         atomic.Uint64
	chunksSent  int
	framesTaken int
}

func newConversation(s *Server, client *Client) (*conversation, error) {
	codec, err := newChunkEncoder(client.Output)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &conversation{
		server: s,
		client: client,
		vad:    NewVAD(s.config.VADThreshold, audio.CaptureSampleRate),
		codec:  codec,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// handleAudio feeds one block of client microphone audio. Called from the read loop only.
func (c *conversation) handleAudio(payload []byte) {
	if len(payload)%2 != 0 {
		log.Printf("Warning: odd audio payload length %d from %s", len(payload), c.client.Name)
		payload = payload[:len(payload)-1]
	}
	c.server.metrics.GatewayAudioBytes.WithLabelValues("in").Add(float64(len(payload)))

	samples := make([]int16, len(payload)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
	}

	c.framesTaken++
	if c.server.config.Debug && c.framesTaken <= 5 {
		log.Printf("[DEBUG] Audio from %s: %d samples, energy %.4f", c.client.Name, len(samples), Energy(samples))
	}

	switch c.vad.Process(samples) {
	case SpeechStarted:
		c.client.setState(StateSpeaking)
		c.server.updateTUI()
		if c.interrupt("barge_in") {
			c.server.metrics.GatewayBargeIns.Inc()
			c.client.bargedIn()
			c.server.note("%s barged in", c.client.Name)
		}
	case SpeechEnded:
		c.respond(c.vad.Utterance())
	}
}

// interrupt cancels the current reply, if any, and tells the client to drop it
func (c *conversation) interrupt(reason string) bool {
	c.mu.Lock()
	r := c.reply
	c.reply = nil
	c.mu.Unlock()

	if r == nil {
		return false
	}

	r.cancel()
	<-r.done

	log.Printf("Reply to %s interrupted (%s)", c.client.Name, reason)
	if err := c.server.sendMessage(c.client, protocol.TypeInterrupted, protocol.Interrupted{Reason: reason}); err != nil {
		log.Printf("Error sending interrupted to %s: %v", c.client.Name, err)
	}
	if err := c.server.sendMessage(c.client, protocol.TypeTurnComplete, protocol.TurnComplete{}); err != nil {
		log.Printf("Error sending turn_complete to %s: %v", c.client.Name, err)
	}
	if reason != "barge_in" {
		c.client.setState(StateListening)
		c.server.updateTUI()
	}
	return true
}

// respond answers a finished user turn
func (c *conversation) respond(utterance time.Duration) {
	turn := c.client.nextTurn()
	c.server.metrics.GatewayTurns.Inc()

	log.Printf("Turn %d from %s: %.1fs of speech", turn, c.client.Name, utterance.Seconds())
	c.server.note("Turn %d from %s (%.1fs)", turn, c.client.Name, utterance.Seconds())

	userText := fmt.Sprintf("(%.1fs of speech)", utterance.Seconds())
	if err := c.server.sendMessage(c.client, protocol.TypeTranscript, protocol.Transcript{
		Speaker: "user",
		Text:    userText,
		Final:   true,
	}); err != nil {
		log.Printf("Error sending transcript to %s: %v", c.client.Name, err)
	}

	label := c.client.Persona.Label
	if label == "" {
		label = "Assistant"
	}
	agentText := fmt.Sprintf("%s heard turn %d", label, turn)

	ctx, cancel := context.WithCancel(c.ctx)
	r := &reply{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.reply = r
	c.mu.Unlock()

	c.client.setState(StateReplying)
	c.server.updateTUI()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(r.done)
		defer cancel()
		c.stream(ctx, r, c.source(utterance), agentText)
	}()
}

// source picks the reply audio for an utterance
func (c *conversation) source(utterance time.Duration) Source {
	rate := c.codec.format.SampleRate
	if clip := c.server.clip; clip != nil {
		if clip.sampleRate == rate {
			return clip.Source()
		}
		log.Printf("Warning: reply clip is %d Hz, client wants %d Hz; using a tone", clip.sampleRate, rate)
	}
	length := min(max(utterance/2, minReply), maxReply)
	return NewToneSource(voiceFrequency(c.client.Persona.Voice), rate, length)
}

// stream sends the reply transcript and paced audio frames, then completes the turn
func (c *conversation) stream(ctx context.Context, r *reply, src Source, text string) {
	if !c.send(ctx, protocol.Message{
		Type:    protocol.TypeTranscript,
		Payload: protocol.Transcript{Speaker: "agent", Text: text, Final: true},
	}) {
		return
	}

	chunkDur := c.codec.chunkDuration()
	ahead := c.server.config.BufferAhead
	buf := make([]int16, c.codec.chunkSamples)
	start := time.Now()

	for i := 0; ; i++ {
		n, err := src.Read(buf)
		if n > 0 {
			payload, encErr := c.codec.encode(buf[:n])
			if encErr != nil {
				log.Printf("Error encoding reply for %s: %v", c.client.Name, encErr)
				break
			}

			if wait := time.Until(start.Add(time.Duration(i)*chunkDur - ahead)); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return
				}
			}

			seq := c.seq.Add(1)
			if !c.send(ctx, protocol.EncodeBinary(c.codec.msgType, seq, payload)) {
				return
			}
			c.server.metrics.GatewayAudioBytes.WithLabelValues("out").Add(float64(len(payload)))

			c.chunksSent++
			if c.server.config.Debug && c.chunksSent <= 5 {
				log.Printf("[DEBUG] Reply chunk %d to %s: %d bytes (%s)", seq, c.client.Name, len(payload), c.codec.format.Codec)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Error reading reply audio for %s: %v", c.client.Name, err)
			break
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reply != r || ctx.Err() != nil {
		return
	}
	c.reply = nil
	if err := c.server.sendMessage(c.client, protocol.TypeTurnComplete, protocol.TurnComplete{}); err != nil {
		log.Printf("Error sending turn_complete to %s: %v", c.client.Name, err)
	}
	c.client.setState(StateListening)
	c.server.updateTUI()
}

// send queues a frame for the writer, giving up when ctx ends
func (c *conversation) send(ctx context.Context, msg interface{}) bool {
	select {
	case c.client.sendChan <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// close stops any reply and releases the encoder
func (c *conversation) close() {
	c.cancel()
	c.wg.Wait()
	if err := c.codec.close(); err != nil {
		log.Printf("Error closing encoder for %s: %v", c.client.Name, err)
	}
}

// voiceFrequency gives each persona voice its own reply pitch
func voiceFrequency(name string) float64 {
	v, err := voice.ParseVoice(name)
	if err != nil {
		return 440.0
	}
	return 220.0 + 40.0*float64(v)
}
