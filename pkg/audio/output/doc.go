// ABOUTME: Audio output package for playing scheduled audio
// ABOUTME: Provides the Device interface, the Mixer clock and oto, malgo and PortAudio backends
// Package output provides clocked audio playback.
//
// Every backend pulls from a Mixer. The mixer's clock advances only as the
// device consumes frames, so Now() is the device's playback position and
// buffers can be placed on it ahead of time.
//
// Example:
//
//	dev, err := output.New("oto")
//	err = dev.Open(24000)
//	h, err := dev.Play(samples, dev.Now(), func() { log.Printf("done") })
//	h.Stop()
package output
