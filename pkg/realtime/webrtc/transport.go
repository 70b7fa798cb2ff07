package webrtc

import (
	"context"
	"sync"

	"github.com/voxhire/voxhire/pkg/audio"
)

// PeerTransport abstracts the WebRTC peer connection and its control data
// channel. This decouples the negotiation and channel logic from the pion
// dependency and allows testing without a media stack; the pion integration
// slots in as a concrete PeerTransport implementation.
type PeerTransport interface {
	// CreateOffer creates a local SDP offer advertising audio send/receive
	// capability.
	CreateOffer(ctx context.Context) (sdpOffer string, err error)

	// ApplyAnswer applies the remote peer's SDP answer, completing the
	// transport negotiation.
	ApplyAnswer(ctx context.Context, sdpAnswer string) error

	// ControlOpen returns a channel that is closed once the control data
	// channel is open and ready for messages.
	ControlOpen() <-chan struct{}

	// ControlMessages returns the channel delivering inbound control
	// messages. It is closed when the transport closes or fails; check Err
	// afterwards.
	ControlMessages() <-chan []byte

	// SendControl sends one control message to the remote peer.
	SendControl(msg []byte) error

	// SendAudio sends one captured microphone frame to the remote peer.
	SendAudio(frame audio.Frame) error

	// Err returns the transport-level error that terminated the
	// connection, or nil after a clean Close.
	Err() error

	// Close tears down the peer connection and releases its resources.
	// Safe to call more than once.
	Close() error
}

// mockTransport is a [PeerTransport] used in tests and as the default
// transport until the pion implementation lands. Tests feed inbound control
// messages with [mockTransport.Deliver], open the control channel with
// [mockTransport.OpenControl], and simulate a network drop with
// [mockTransport.Fail].
type mockTransport struct {
	mu       sync.Mutex
	sent     [][]byte
	audio    []audio.Frame
	inbound  chan []byte
	ctlOpen  chan struct{}
	openOnce sync.Once
	errVal   error
	closed   bool
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		inbound: make(chan []byte, 32),
		ctlOpen: make(chan struct{}),
	}
}

func (m *mockTransport) CreateOffer(_ context.Context) (string, error) {
	return "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=VoxHire Audio\r\n", nil
}

func (m *mockTransport) ApplyAnswer(_ context.Context, _ string) error { return nil }

func (m *mockTransport) ControlOpen() <-chan struct{} { return m.ctlOpen }

func (m *mockTransport) ControlMessages() <-chan []byte { return m.inbound }

func (m *mockTransport) SendControl(msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockTransport) SendAudio(frame audio.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audio = append(m.audio, frame)
	return nil
}

func (m *mockTransport) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errVal
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.inbound)
	}
	return nil
}

// OpenControl marks the control data channel as open.
func (m *mockTransport) OpenControl() {
	m.openOnce.Do(func() { close(m.ctlOpen) })
}

// Deliver feeds one inbound control message. Returns false after Close.
func (m *mockTransport) Deliver(msg []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.inbound <- msg
	return true
}

// Fail simulates a transport-level failure: records err and closes the
// inbound stream.
func (m *mockTransport) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.errVal = err
	m.closed = true
	close(m.inbound)
}

// SentControl returns a copy of all control messages sent so far.
func (m *mockTransport) SentControl() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentAudio returns a copy of all audio frames sent so far.
func (m *mockTransport) SentAudio() []audio.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audio.Frame, len(m.audio))
	copy(out, m.audio)
	return out
}
