// Package pipe captures PCM16 audio from a byte stream: a FIFO, a regular
// file, or stdin. It is the production [audio.Opener] for deployments where a
// capture front-end (browser gateway, sox, arecord) writes raw PCM into a
// named pipe.
package pipe

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/voxhire/voxhire/pkg/audio"
)

const (
	// DefaultSampleRate matches the realtime providers' PCM16 input format.
	DefaultSampleRate = 24000

	// defaultFrameMs is the capture granularity.
	defaultFrameMs = 100
)

// Option is a functional option for configuring an Opener.
type Option func(*Opener)

// WithSampleRate sets the PCM sample rate stamped on captured frames.
func WithSampleRate(hz int) Option {
	return func(o *Opener) { o.sampleRate = hz }
}

// WithFrameDuration sets how much audio each frame carries.
func WithFrameDuration(d time.Duration) Option {
	return func(o *Opener) { o.frameDur = d }
}

// Opener opens the configured path on each acquisition. An empty path means
// stdin.
type Opener struct {
	path       string
	sampleRate int
	frameDur   time.Duration
}

// NewOpener creates an Opener reading from path.
func NewOpener(path string, opts ...Option) *Opener {
	o := &Opener{
		path:       path,
		sampleRate: DefaultSampleRate,
		frameDur:   defaultFrameMs * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open implements [audio.Opener]. Opening a FIFO blocks until a writer
// attaches, mirroring how a physical device blocks until granted.
func (o *Opener) Open() (audio.Device, error) {
	var (
		src io.ReadCloser
		err error
	)
	if o.path == "" {
		src = os.Stdin
	} else {
		src, err = os.Open(o.path)
		if err != nil {
			return nil, fmt.Errorf("pipe: open audio source %q: %w", o.path, err)
		}
	}

	// 2 bytes per mono PCM16 sample.
	frameBytes := 2 * o.sampleRate * int(o.frameDur.Milliseconds()) / 1000

	d := &device{
		src:        src,
		sampleRate: o.sampleRate,
		frameBytes: frameBytes,
		frames:     make(chan audio.Frame, 8),
		done:       make(chan struct{}),
	}
	go d.capture()
	return d, nil
}

// device is one open capture stream.
type device struct {
	src        io.ReadCloser
	sampleRate int
	frameBytes int

	frames chan audio.Frame
	done   chan struct{}

	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// capture reads fixed-size frames until EOF, error, or Close.
func (d *device) capture() {
	defer close(d.frames)
	start := time.Now()

	for {
		buf := make([]byte, d.frameBytes)
		n, err := io.ReadFull(d.src, buf)
		if n > 0 {
			frame := audio.Frame{
				Data:       buf[:n],
				SampleRate: d.sampleRate,
				Timestamp:  time.Since(start),
			}
			select {
			case d.frames <- frame:
			case <-d.done:
				return
			}
		}
		if err != nil {
			// A short final frame is a clean end of stream.
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !closedErr(err) {
				d.mu.Lock()
				d.err = err
				d.mu.Unlock()
			}
			return
		}
	}
}

// closedErr reports whether err is the read-after-Close error.
func closedErr(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// Frames implements [audio.Device].
func (d *device) Frames() <-chan audio.Frame { return d.frames }

// Err implements [audio.Device].
func (d *device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Close implements [audio.Device]. Safe to call more than once.
func (d *device) Close() error {
	d.closeOnce.Do(func() {
		close(d.done)
		_ = d.src.Close()
	})
	return nil
}
