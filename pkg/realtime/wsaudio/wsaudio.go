// Package wsaudio implements the realtime interview channel over a plain
// WebSocket connection, used when WebRTC negotiation is unavailable or has
// failed. Audio travels in-band as base64-encoded PCM16 chunks inside
// input_audio_buffer.append messages, so quality degrades gracefully with
// bandwidth instead of failing outright.
package wsaudio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxhire/voxhire/pkg/audio"
	"github.com/voxhire/voxhire/pkg/realtime"
	"github.com/voxhire/voxhire/pkg/realtime/wire"
)

// Compile-time assertion that Channel satisfies the realtime interface.
var _ realtime.Channel = (*Channel)(nil)

const (
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
	defaultModel   = "gpt-realtime"

	defaultDialTimeout = 20 * time.Second
)

// CredentialIssuer requests a short-lived credential scoped to a single
// realtime session. Satisfied by [backend.Client].
type CredentialIssuer interface {
	IssueRealtimeCredential(ctx context.Context, voice string, interviewContext map[string]string) (string, error)
}

// ── Options ───────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Dialer.
type Option func(*Dialer)

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(d *Dialer) { d.baseURL = url }
}

// WithModel sets the realtime model requested on dial.
func WithModel(model string) Option {
	return func(d *Dialer) { d.model = model }
}

// WithDialTimeout overrides the connection establishment timeout.
func WithDialTimeout(timeout time.Duration) Option {
	return func(d *Dialer) { d.timeout = timeout }
}

// ── Dialer ────────────────────────────────────────────────────────────────────

// Dialer establishes WebSocket fallback sessions. Failures are classified
// with the same [realtime.NegotiationError] codes as the WebRTC path so the
// controller handles both transports uniformly.
type Dialer struct {
	creds   CredentialIssuer
	mic     audio.Opener
	baseURL string
	model   string
	timeout time.Duration
}

// NewDialer creates a Dialer that obtains credentials from creds and
// microphone access from mic.
func NewDialer(creds CredentialIssuer, mic audio.Opener, opts ...Option) *Dialer {
	d := &Dialer{
		creds:   creds,
		mic:     mic,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		timeout: defaultDialTimeout,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// DialConfig carries the inputs for one fallback connection.
type DialConfig struct {
	// Voice is the agent voice/persona identifier.
	Voice string

	// InterviewContext is the opaque payload forwarded to the backend when
	// requesting the credential.
	InterviewContext map[string]string
}

// Dial obtains a credential, acquires the microphone and connects. The
// returned Channel is already Open: unlike the WebRTC path there is no
// separate control-channel handshake to wait for.
func (d *Dialer) Dial(ctx context.Context, cfg DialConfig) (*Channel, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	secret, err := d.creds.IssueRealtimeCredential(ctx, cfg.Voice, cfg.InterviewContext)
	if err != nil {
		return nil, dialErr(ctx, realtime.CredentialUnavailable, err)
	}
	if secret == "" {
		return nil, &realtime.NegotiationError{
			Code: realtime.MalformedCredential,
			Err:  errors.New("backend response contained no credential"),
		}
	}

	mic, err := d.mic.Open()
	if err != nil {
		return nil, &realtime.NegotiationError{Code: realtime.MediaAccessDenied, Err: err}
	}

	wsURL := fmt.Sprintf("%s?model=%s", d.baseURL, d.model)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + secret},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		_ = mic.Close()
		return nil, dialErr(ctx, realtime.ExchangeFailed, fmt.Errorf("dial: %w", err))
	}
	// Audio frames are a steady stream of sizeable base64 payloads.
	conn.SetReadLimit(1 << 22)

	chCtx, chCancel := context.WithCancel(context.Background())
	ch := &Channel{
		conn:   conn,
		mic:    mic,
		state:  realtime.StateOpen,
		ctx:    chCtx,
		cancel: chCancel,
	}
	go ch.receiveLoop()
	go ch.pumpMicrophone()
	return ch, nil
}

func dialErr(ctx context.Context, code realtime.FailureCode, err error) *realtime.NegotiationError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &realtime.NegotiationError{Code: realtime.NegotiationTimeout, Err: err}
	}
	return &realtime.NegotiationError{Code: code, Err: err}
}

// ── Channel ───────────────────────────────────────────────────────────────────

// Channel is the WebSocket-backed [realtime.Channel]. It owns the connection
// and the microphone and tears both down exactly once.
type Channel struct {
	conn *websocket.Conn
	mic  audio.Device

	mu           sync.Mutex
	state        realtime.State
	eventHandler realtime.EventHandler
	stateHandler realtime.StateHandler

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Configure implements [realtime.Channel]. The connection is already open
// when Dial returns, so the message is sent immediately.
func (c *Channel) Configure(opts realtime.SessionOptions) error {
	msg, err := wire.EncodeSessionUpdate(opts)
	if err != nil {
		return fmt.Errorf("wsaudio: encode configuration: %w", err)
	}
	if err := c.conn.Write(c.ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("wsaudio: send configuration: %w", err)
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

// SendAudio implements [realtime.Channel].
func (c *Channel) SendAudio(chunk []byte) error {
	if c.State() != realtime.StateOpen {
		return fmt.Errorf("wsaudio: channel is %s", c.State())
	}
	msg, err := wire.EncodeAudioAppend(chunk)
	if err != nil {
		return fmt.Errorf("wsaudio: encode audio: %w", err)
	}
	return c.conn.Write(c.ctx, websocket.MessageText, msg)
}

// State implements [realtime.Channel].
func (c *Channel) State() realtime.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close implements [realtime.Channel]. Idempotent; the microphone is
// released exactly once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.mic.Close()
		_ = c.conn.Close(websocket.StatusNormalClosure, "session ended")
		c.setState(realtime.StateClosed)
	})
}

// receiveLoop reads provider events off the socket and dispatches them in
// arrival order. Unrecognised messages are skipped.
func (c *Channel) receiveLoop() {
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.fail()
			return
		}
		evt, ok := wire.Decode(data)
		if !ok {
			continue
		}
		c.dispatch(evt)
	}
}

// pumpMicrophone streams captured frames in-band as audio append messages.
func (c *Channel) pumpMicrophone() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame, ok := <-c.mic.Frames():
			if !ok {
				if c.mic.Err() != nil {
					c.fail()
				}
				return
			}
			msg, err := wire.EncodeAudioAppend(frame.Data)
			if err != nil {
				continue
			}
			if err := c.conn.Write(c.ctx, websocket.MessageText, msg); err != nil {
				if c.ctx.Err() == nil {
					c.fail()
				}
				return
			}
		}
	}
}

// fail moves the channel to the terminal Failed state. Loses to a concurrent
// Close: a cleanly closed session stays Closed.
func (c *Channel) fail() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.mic.Close()
		_ = c.conn.Close(websocket.StatusInternalError, "transport failure")
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
