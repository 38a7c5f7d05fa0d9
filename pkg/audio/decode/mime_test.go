// ABOUTME: Unit tests for MIME hint parsing
// ABOUTME: Tests codec and parameter extraction
package decode

import "testing"

func TestParseMIME(t *testing.T) {
	tests := []struct {
		mime string
		want Hint
	}{
		{"audio/pcm;rate=24000", Hint{Codec: "pcm", SampleRate: 24000}},
		{"audio/pcm; rate=16000; channels=2", Hint{Codec: "pcm", SampleRate: 16000, Channels: 2}},
		{"audio/wav", Hint{Codec: "wav"}},
		{"audio/mpeg", Hint{Codec: "mp3"}},
		{"audio/opus", Hint{Codec: "opus"}},
		{"audio/pcm;rate=abc", Hint{Codec: "pcm"}},
		{"", Hint{}},
		{";;;", Hint{}},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			if got := ParseMIME(tt.mime); got != tt.want {
				t.Errorf("ParseMIME(%q) = %+v, want %+v", tt.mime, got, tt.want)
			}
		})
	}
}
