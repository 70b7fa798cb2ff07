package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxhire/voxhire/pkg/audio"
	"github.com/voxhire/voxhire/pkg/realtime"
)

const (
	defaultProviderURL = "https://api.openai.com/v1/realtime"
	defaultModel       = "gpt-realtime"

	// defaultNegotiateTimeout bounds the whole negotiation (credential,
	// device, offer/answer). Distinct from the interview's own time budget,
	// which only starts once the session is active.
	defaultNegotiateTimeout = 20 * time.Second
)

// CredentialIssuer requests a short-lived credential from the recruiting
// backend, scoped to a single realtime session. Implemented by
// [backend.Client].
type CredentialIssuer interface {
	IssueRealtimeCredential(ctx context.Context, voice string, interviewContext map[string]string) (string, error)
}

// NegotiateConfig carries the inputs for one session negotiation.
type NegotiateConfig struct {
	// Voice is the agent voice/persona identifier (e.g. "ash").
	Voice string

	// InterviewContext is the opaque context payload forwarded to the
	// backend when requesting the credential: résumé text, job description,
	// question set. The backend bakes it into the agent's instructions.
	InterviewContext map[string]string
}

// ConnectionHandle is exclusive ownership of a negotiated transport plus the
// microphone acquired for it. It is handed to exactly one [Channel], which
// tears both down exactly once regardless of which path ends the session.
type ConnectionHandle struct {
	transport PeerTransport
	mic       audio.Device
}

// Option is a functional option for configuring a SignalingClient.
type Option func(*SignalingClient)

// WithProviderURL overrides the realtime provider's signaling endpoint.
// Primarily used in tests to point at a local mock server.
func WithProviderURL(url string) Option {
	return func(s *SignalingClient) { s.providerURL = url }
}

// WithModel sets the realtime model requested during the SDP exchange.
func WithModel(model string) Option {
	return func(s *SignalingClient) { s.model = model }
}

// WithTimeout overrides the negotiation timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *SignalingClient) { s.timeout = d }
}

// WithHTTPClient overrides the HTTP client used for the SDP exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(s *SignalingClient) { s.httpClient = c }
}

// WithTransportFactory injects the PeerTransport constructor. The default
// constructs the in-process mock transport.
func WithTransportFactory(f func() PeerTransport) Option {
	return func(s *SignalingClient) { s.newTransport = f }
}

// SignalingClient negotiates one realtime session: ephemeral credential from
// the backend, microphone acquisition, local SDP offer, authenticated
// offer/answer exchange with the provider. Every failure is classified as a
// [realtime.NegotiationError]; none are retried here, the controller owns
// the retry decision.
type SignalingClient struct {
	creds        CredentialIssuer
	mic          audio.Opener
	providerURL  string
	model        string
	timeout      time.Duration
	httpClient   *http.Client
	newTransport func() PeerTransport
}

// NewSignalingClient creates a SignalingClient that obtains credentials from
// creds and microphone access from mic.
func NewSignalingClient(creds CredentialIssuer, mic audio.Opener, opts ...Option) *SignalingClient {
	s := &SignalingClient{
		creds:       creds,
		mic:         mic,
		providerURL: defaultProviderURL,
		model:       defaultModel,
		timeout:     defaultNegotiateTimeout,
		httpClient:  http.DefaultClient,
		newTransport: func() PeerTransport {
			return newMockTransport()
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Negotiate performs the four negotiation steps and returns an established
// ConnectionHandle. On failure it returns a *realtime.NegotiationError and
// releases anything it had acquired (microphone, partial transport).
func (s *SignalingClient) Negotiate(ctx context.Context, cfg NegotiateConfig) (*ConnectionHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Step 1: ephemeral credential, scoped to this one session.
	secret, err := s.creds.IssueRealtimeCredential(ctx, cfg.Voice, cfg.InterviewContext)
	if err != nil {
		return nil, negotiationErr(ctx, realtime.CredentialUnavailable, err)
	}
	if secret == "" {
		return nil, &realtime.NegotiationError{
			Code: realtime.MalformedCredential,
			Err:  errors.New("backend response contained no credential"),
		}
	}

	// Step 2: microphone. Acquired before the offer so the offer can
	// advertise a live capture track.
	mic, err := s.mic.Open()
	if err != nil {
		return nil, &realtime.NegotiationError{Code: realtime.MediaAccessDenied, Err: err}
	}

	// Step 3: local offer.
	transport := s.newTransport()
	offer, err := transport.CreateOffer(ctx)
	if err != nil {
		_ = mic.Close()
		_ = transport.Close()
		return nil, negotiationErr(ctx, realtime.ExchangeFailed, fmt.Errorf("create offer: %w", err))
	}

	// Step 4: offer/answer exchange, authorised by the ephemeral credential.
	answer, err := s.exchangeSDP(ctx, secret, offer)
	if err != nil {
		_ = mic.Close()
		_ = transport.Close()
		return nil, err
	}
	if err := transport.ApplyAnswer(ctx, answer); err != nil {
		_ = mic.Close()
		_ = transport.Close()
		return nil, negotiationErr(ctx, realtime.ExchangeFailed, fmt.Errorf("apply answer: %w", err))
	}

	return &ConnectionHandle{transport: transport, mic: mic}, nil
}

// exchangeSDP POSTs the offer to the provider's signaling endpoint and
// returns the SDP answer.
func (s *SignalingClient) exchangeSDP(ctx context.Context, secret, offer string) (string, error) {
	url := fmt.Sprintf("%s?model=%s", s.providerURL, s.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(offer))
	if err != nil {
		return "", negotiationErr(ctx, realtime.ExchangeFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("OpenAI-Beta", "realtime=v1")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", negotiationErr(ctx, realtime.ExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", negotiationErr(ctx, realtime.ExchangeFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", negotiationErr(ctx, realtime.ExchangeFailed,
			fmt.Errorf("sdp exchange: status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}
	answer := string(body)
	if strings.TrimSpace(answer) == "" {
		return "", &realtime.NegotiationError{
			Code: realtime.ExchangeFailed,
			Err:  errors.New("sdp exchange: empty answer body"),
		}
	}
	return answer, nil
}

// negotiationErr classifies err, preferring Timeout when the negotiation
// deadline is the actual cause.
func negotiationErr(ctx context.Context, code realtime.FailureCode, err error) *realtime.NegotiationError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &realtime.NegotiationError{Code: realtime.NegotiationTimeout, Err: err}
	}
	return &realtime.NegotiationError{Code: code, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
