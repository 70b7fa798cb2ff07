// Package webrtc implements the realtime interview channel over a WebRTC
// media connection with a control data channel.
//
// Negotiation (ephemeral credential, microphone acquisition, SDP
// offer/answer) is handled by [SignalingClient]; the resulting
// [ConnectionHandle] is wrapped by [Channel], which pumps microphone frames
// outward, decodes inbound control events, and owns teardown.
package webrtc

import (
	"fmt"
	"sync"

	"github.com/voxhire/voxhire/pkg/realtime"
	"github.com/voxhire/voxhire/pkg/realtime/wire"
)

// Compile-time assertion that Channel satisfies the realtime interface.
var _ realtime.Channel = (*Channel)(nil)

// Channel is the WebRTC-backed [realtime.Channel]. It owns the negotiated
// ConnectionHandle exclusively and tears it down exactly once.
type Channel struct {
	handle *ConnectionHandle

	mu            sync.Mutex
	state         realtime.State
	eventHandler  realtime.EventHandler
	stateHandler  realtime.StateHandler
	pendingConfig []byte // queued session.update until the control channel opens
	ctlOpen       bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewChannel wraps a negotiated handle. The channel starts in Connecting and
// transitions to Open when the control data channel opens.
func NewChannel(handle *ConnectionHandle) *Channel {
	c := &Channel{
		handle: handle,
		state:  realtime.StateConnecting,
		done:   make(chan struct{}),
	}
	go c.awaitControlOpen()
	go c.receiveLoop()
	go c.pumpMicrophone()
	return c
}

// Configure implements [realtime.Channel]. Before the control channel opens
// the encoded message is queued (never dropped); afterwards it is sent
// immediately.
func (c *Channel) Configure(opts realtime.SessionOptions) error {
	msg, err := wire.EncodeSessionUpdate(opts)
	if err != nil {
		return fmt.Errorf("webrtc: encode configuration: %w", err)
	}

	c.mu.Lock()
	if !c.ctlOpen {
		c.pendingConfig = msg
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.handle.transport.SendControl(msg); err != nil {
		return fmt.Errorf("webrtc: send configuration: %w", err)
	}
	return nil
}

// OnEvent implements [realtime.Channel].
func (c *Channel) OnEvent(handler realtime.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventHandler = handler
}

// OnStateChange implements [realtime.Channel].
func (c *Channel) OnStateChange(handler realtime.StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandler = handler
}

// SendAudio implements [realtime.Channel]. The channel pumps the microphone
// itself; this path exists for injected audio such as pre-recorded prompts.
func (c *Channel) SendAudio(chunk []byte) error {
	if c.State() != realtime.StateOpen {
		return fmt.Errorf("webrtc: channel is %s", c.State())
	}
	msg, err := wire.EncodeAudioAppend(chunk)
	if err != nil {
		return fmt.Errorf("webrtc: encode audio: %w", err)
	}
	return c.handle.transport.SendControl(msg)
}

// State implements [realtime.Channel].
func (c *Channel) State() realtime.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close implements [realtime.Channel]. Idempotent: the microphone and the
// transport are each released exactly once, and the release is synchronous
// so an immediate retry can re-acquire the device.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.handle.mic.Close()
		_ = c.handle.transport.Close()
		c.setState(realtime.StateClosed)
	})
}

// awaitControlOpen waits for the control data channel, flushes any queued
// configuration, and moves the channel to Open.
func (c *Channel) awaitControlOpen() {
	select {
	case <-c.done:
		return
	case <-c.handle.transport.ControlOpen():
	}

	c.mu.Lock()
	c.ctlOpen = true
	pending := c.pendingConfig
	c.pendingConfig = nil
	c.mu.Unlock()

	if pending != nil {
		_ = c.handle.transport.SendControl(pending)
	}
	c.setState(realtime.StateOpen)
}

// receiveLoop decodes inbound control messages and dispatches them to the
// registered handler in arrival order. Unrecognised messages are skipped.
func (c *Channel) receiveLoop() {
	for msg := range c.handle.transport.ControlMessages() {
		evt, ok := wire.Decode(msg)
		if !ok {
			continue
		}
		c.dispatch(evt)
	}

	// Inbound stream ended: clean close or transport failure.
	select {
	case <-c.done:
		return
	default:
	}
	if err := c.handle.transport.Err(); err != nil {
		c.fail()
	}
}

// pumpMicrophone streams captured frames to the remote peer for the lifetime
// of the session. A device revocation mid-session is a channel error.
func (c *Channel) pumpMicrophone() {
	for {
		select {
		case <-c.done:
			return
		case frame, ok := <-c.handle.mic.Frames():
			if !ok {
				if c.handle.mic.Err() != nil {
					c.fail()
				}
				return
			}
			if err := c.handle.transport.SendAudio(frame); err != nil {
				c.fail()
				return
			}
		}
	}
}

// fail moves the channel to the terminal Failed state and releases the
// handle. Loses to a concurrent Close: a session that was already cleanly
// closed stays Closed.
func (c *Channel) fail() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.handle.mic.Close()
		_ = c.handle.transport.Close()
		c.setState(realtime.StateFailed)
	})
}

func (c *Channel) dispatch(evt realtime.Event) {
	c.mu.Lock()
	handler := c.eventHandler
	c.mu.Unlock()
	if handler != nil {
		handler(evt)
	}
}

func (c *Channel) setState(s realtime.State) {
	c.mu.Lock()
	c.state = s
	handler := c.stateHandler
	c.mu.Unlock()
	if handler != nil {
		handler(s)
	}
}
