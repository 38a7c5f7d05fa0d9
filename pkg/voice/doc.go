// ABOUTME: Real-time duplex voice session engine
// ABOUTME: Wires microphone capture, a transport channel and scheduled playback
// Package voice runs one conversation with a remote voice agent.
//
// A Session acquires a microphone and an output device, opens a
// transport.Conn and then:
//   - sends every captured 16 kHz frame upstream, in order
//   - decodes inbound audio chunks (container formats first, raw PCM as
//     fallback) and packs them back to back on the output clock
//   - stops all scheduled playback when the agent reports an interruption
//
// Callbacks are delivered in order from a single goroutine. Disconnect and
// any fatal error share one teardown path, so each Connect ends with exactly
// one OnDisconnect or OnError.
//
// Example:
//
//	session := voice.New(gemini.New(apiKey))
//	defer session.Close()
//
//	err := session.Connect(ctx, voice.SessionConfig{
//	    Voice:             voice.VoiceKore,
//	    SystemInstruction: "You are a patient maths tutor.",
//	}, voice.Callbacks{
//	    OnTranscript: func(text string, isUser bool) { fmt.Println(text) },
//	    OnError:      func(msg string) { log.Printf("session error: %s", msg) },
//	})
package voice
