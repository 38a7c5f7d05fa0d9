// ABOUTME: MIME type hints for inbound audio
// ABOUTME: Parses codec and rate parameters like audio/pcm;rate=24000
package decode

import (
	"mime"
	"strconv"
	"strings"
)

// Hint is what a transport says about a chunk's encoding
type Hint struct {
	Codec      string
	SampleRate int
	Channels   int
}

// ParseMIME extracts a hint from a MIME type. Unknown or empty types give a zero hint.
func ParseMIME(mimeType string) Hint {
	if mimeType == "" {
		return Hint{}
	}

	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return Hint{}
	}

	h := Hint{}
	switch mediaType {
	case "audio/pcm", "audio/l16", "audio/raw":
		h.Codec = "pcm"
	case "audio/wav", "audio/wave", "audio/x-wav":
		h.Codec = "wav"
	case "audio/flac", "audio/x-flac":
		h.Codec = "flac"
	case "audio/mpeg", "audio/mp3":
		h.Codec = "mp3"
	case "audio/opus":
		h.Codec = "opus"
	default:
		h.Codec = strings.TrimPrefix(mediaType, "audio/")
	}

	if rate, err := strconv.Atoi(params["rate"]); err == nil && rate > 0 {
		h.SampleRate = rate
	}
	if ch, err := strconv.Atoi(params["channels"]); err == nil && ch > 0 {
		h.Channels = ch
	}
	return h
}
