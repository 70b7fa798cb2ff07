// Package audio defines the microphone capture abstraction used by the
// realtime transports.
//
// A Device is an exclusively owned handle on the candidate's microphone: one
// interview attempt acquires it during negotiation, streams frames from it
// for the lifetime of the session, and releases it synchronously on teardown
// so an immediate retry can re-acquire it without a transient "device busy"
// failure.
package audio

import "time"

// Frame is one chunk of captured PCM audio.
type Frame struct {
	// Data is raw PCM16 audio. Sample rate and channel count are fixed by
	// the capturing device.
	Data []byte

	// SampleRate in Hz (e.g. 24000 for the realtime providers).
	SampleRate int

	// Timestamp marks when the frame was captured, relative to capture
	// start.
	Timestamp time.Duration
}

// Device is an open microphone capture stream.
type Device interface {
	// Frames returns the channel delivering captured audio. The channel is
	// closed when the device is closed or revoked; after it closes, Err
	// reports whether capture ended cleanly.
	Frames() <-chan Frame

	// Err returns the error that terminated capture (e.g. the OS revoked
	// the device mid-session), or nil after a clean Close.
	Err() error

	// Close releases the device. It blocks until the underlying handle is
	// fully released and is safe to call more than once.
	Close() error
}

// Opener acquires the microphone. Acquisition can fail (permission denied,
// device busy) and that failure must surface to the candidate as actionable
// guidance, so it is an explicit step rather than a side effect of dialing.
type Opener interface {
	Open() (Device, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func() (Device, error)

func (f OpenerFunc) Open() (Device, error) { return f() }
