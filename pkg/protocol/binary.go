// ABOUTME: Binary audio frame encoding for the voice gateway
// ABOUTME: One type byte and an 8-byte big-endian sequence number precede the payload
package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// BinaryMessageHeaderSize is the size of binary message header (type byte + sequence)
	BinaryMessageHeaderSize = 1 + 8

	// AudioInputMessageType carries client microphone audio: PCM16 LE mono 16kHz
	AudioInputMessageType = 1

	// AudioOutputMessageType carries agent audio: a self-describing container
	// (WAV, FLAC, MP3) or raw PCM16 in the announced output format
	AudioOutputMessageType = 2

	// OpusOutputMessageType carries one agent Opus packet
	OpusOutputMessageType = 3
)

// EncodeBinary builds a binary frame
func EncodeBinary(msgType byte, seq uint64, payload []byte) []byte {
	frame := make([]byte, BinaryMessageHeaderSize+len(payload))
	frame[0] = msgType
	binary.BigEndian.PutUint64(frame[1:BinaryMessageHeaderSize], seq)
	copy(frame[BinaryMessageHeaderSize:], payload)
	return frame
}

// DecodeBinary splits a binary frame. The payload aliases data.
func DecodeBinary(data []byte) (msgType byte, seq uint64, payload []byte, err error) {
	if len(data) < BinaryMessageHeaderSize {
		return 0, 0, nil, fmt.Errorf("invalid binary message: %d bytes, need at least %d", len(data), BinaryMessageHeaderSize)
	}
	msgType = data[0]
	seq = binary.BigEndian.Uint64(data[1:BinaryMessageHeaderSize])
	return msgType, seq, data[BinaryMessageHeaderSize:], nil
}
