// ABOUTME: Metrics hook for session activity
// ABOUTME: Implemented by the prometheus collectors in the binaries
package voice

import "time"

// Recorder observes session activity. Methods may be called from audio threads.
type Recorder interface {
	SessionStarted()
	SessionEnded(state State)
	ConnectFailed(category string)
	FrameSent()
	SendFailed()
	ChunkScheduled(duration time.Duration)
	ChunkDropped()
	Interrupted(stopped int)
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted()              {}
func (nopRecorder) SessionEnded(State)           {}
func (nopRecorder) ConnectFailed(string)         {}
func (nopRecorder) FrameSent()                   {}
func (nopRecorder) SendFailed()                  {}
func (nopRecorder) ChunkScheduled(time.Duration) {}
func (nopRecorder) ChunkDropped()                {}
func (nopRecorder) Interrupted(int)              {}
