// ABOUTME: Transport package for the engine-to-agent channel
// ABOUTME: Interfaces, message kinds, outbound queue and error categories
// Package transport defines the duplex channel between the voice engine and
// a remote conversational agent.
//
// Implementations live in sub-packages: gemini speaks the Gemini Live JSON
// protocol and streams raw PCM back; gateway speaks the Resonate voice
// gateway protocol and streams container audio back. The engine only sees
// Conn and the tagged Message stream.
package transport
