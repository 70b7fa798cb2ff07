// Package mock provides in-memory implementations of [audio.Device] and
// [audio.Opener] for use in unit tests.
//
// All mocks are safe for concurrent use. The device records lifecycle calls
// so tests can assert that teardown released the microphone exactly once,
// and exposes the frame channel so tests can feed synthetic audio.
package mock

import (
	"fmt"
	"sync"

	"github.com/voxhire/voxhire/pkg/audio"
)

// Device is a mock [audio.Device]. Feed frames via [Device.Emit]; inspect
// CloseCount after teardown.
type Device struct {
	mu sync.Mutex

	// ErrResult is returned by Err after the frame channel closes.
	ErrResult error

	// CloseCount records how many times Close was called.
	CloseCount int

	frames chan audio.Frame
	closed bool
}

// NewDevice creates a mock device with a buffered frame channel.
func NewDevice() *Device {
	return &Device{frames: make(chan audio.Frame, 16)}
}

// Emit feeds one frame to the device's consumer. Returns false when the
// device has been closed or the buffer is full.
func (d *Device) Emit(frame audio.Frame) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.frames <- frame:
		return true
	default:
		return false
	}
}

// Frames implements [audio.Device].
func (d *Device) Frames() <-chan audio.Frame { return d.frames }

// Err implements [audio.Device].
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ErrResult
}

// Close implements [audio.Device]. The first call closes the frame channel;
// subsequent calls only increment CloseCount.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCount++
	if !d.closed {
		d.closed = true
		close(d.frames)
	}
	return nil
}

// Closed reports whether Close has been called at least once.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Opener is a mock [audio.Opener].
type Opener struct {
	mu sync.Mutex

	// OpenError, when set, is returned by Open instead of a device.
	OpenError error

	// OpenCount records how many times Open was called.
	OpenCount int

	// Devices holds every device handed out, in order.
	Devices []*Device
}

// Open implements [audio.Opener]. Each successful call returns a fresh
// [Device].
func (o *Opener) Open() (audio.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.OpenCount++
	if o.OpenError != nil {
		return nil, fmt.Errorf("mock opener: %w", o.OpenError)
	}
	d := NewDevice()
	o.Devices = append(o.Devices, d)
	return d, nil
}
