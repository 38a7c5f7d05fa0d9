// ABOUTME: Resonate voice gateway wire protocol package
// ABOUTME: Defines protocol messages, binary audio framing and the WebSocket client
// Package protocol implements the Resonate voice gateway protocol.
//
// Control messages are JSON objects of the form {"type": ..., "payload": ...}.
// Audio travels in binary frames: one type byte, an 8-byte big-endian
// sequence number, then the payload.
//
// Example:
//
//	client := protocol.NewClient(protocol.Config{ServerAddr: "localhost:8928"})
//	err := client.Connect(ctx)
//	err = client.SendAudio(pcm)
package protocol
