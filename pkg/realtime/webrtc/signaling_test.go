package webrtc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voxhire/voxhire/pkg/audio/mock"
	"github.com/voxhire/voxhire/pkg/realtime"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// credFunc adapts a function to the CredentialIssuer interface.
type credFunc func(ctx context.Context, voice string, interviewContext map[string]string) (string, error)

func (f credFunc) IssueRealtimeCredential(ctx context.Context, voice string, interviewContext map[string]string) (string, error) {
	return f(ctx, voice, interviewContext)
}

func staticCredential(secret string) CredentialIssuer {
	return credFunc(func(context.Context, string, map[string]string) (string, error) {
		return secret, nil
	})
}

// startSDPServer launches a test signaling endpoint returning the given SDP
// answer. It records the last request for header assertions.
func startSDPServer(t *testing.T, status int, answer string) (*httptest.Server, *http.Request) {
	t.Helper()
	var last http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last = *r
		w.WriteHeader(status)
		_, _ = w.Write([]byte(answer))
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func wantNegotiationCode(t *testing.T, err error, code realtime.FailureCode) {
	t.Helper()
	ne, ok := realtime.NegotiationFailure(err)
	if !ok {
		t.Fatalf("expected *NegotiationError, got %T: %v", err, err)
	}
	if ne.Code != code {
		t.Fatalf("expected failure code %q, got %q (%v)", code, ne.Code, ne)
	}
}

// ── Negotiate ─────────────────────────────────────────────────────────────────

func TestNegotiateSuccess(t *testing.T) {
	t.Parallel()

	srv, lastReq := startSDPServer(t, http.StatusOK, "v=0\r\ns=answer\r\n")
	opener := &mock.Opener{}
	client := NewSignalingClient(staticCredential("ek_test_123"), opener,
		WithProviderURL(srv.URL),
		WithModel("gpt-realtime"),
	)

	handle, err := client.Negotiate(context.Background(), NegotiateConfig{Voice: "ash"})
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	t.Cleanup(func() {
		_ = handle.mic.Close()
		_ = handle.transport.Close()
	})

	if got := lastReq.Header.Get("Authorization"); got != "Bearer ek_test_123" {
		t.Errorf("Authorization = %q, want ephemeral bearer token", got)
	}
	if got := lastReq.Header.Get("Content-Type"); got != "application/sdp" {
		t.Errorf("Content-Type = %q, want application/sdp", got)
	}
	if got := lastReq.URL.Query().Get("model"); got != "gpt-realtime" {
		t.Errorf("model query = %q, want gpt-realtime", got)
	}
	if opener.OpenCount != 1 {
		t.Errorf("expected one microphone acquisition, got %d", opener.OpenCount)
	}
}

func TestNegotiateCredentialUnavailable(t *testing.T) {
	t.Parallel()

	backendDown := credFunc(func(context.Context, string, map[string]string) (string, error) {
		return "", errors.New("backend: 503 service unavailable")
	})
	opener := &mock.Opener{}
	client := NewSignalingClient(backendDown, opener)

	_, err := client.Negotiate(context.Background(), NegotiateConfig{Voice: "ash"})
	wantNegotiationCode(t, err, realtime.CredentialUnavailable)
	if opener.OpenCount != 0 {
		t.Errorf("microphone must not be touched before a credential exists, OpenCount = %d", opener.OpenCount)
	}
}

func TestNegotiateMalformedCredential(t *testing.T) {
	t.Parallel()

	client := NewSignalingClient(staticCredential(""), &mock.Opener{})

	_, err := client.Negotiate(context.Background(), NegotiateConfig{Voice: "ash"})
	wantNegotiationCode(t, err, realtime.MalformedCredential)
}

func TestNegotiateMediaAccessDenied(t *testing.T) {
	t.Parallel()

	opener := &mock.Opener{OpenError: errors.New("permission denied by user")}
	client := NewSignalingClient(staticCredential("ek_test"), opener)

	_, err := client.Negotiate(context.Background(), NegotiateConfig{Voice: "ash"})
	wantNegotiationCode(t, err, realtime.MediaAccessDenied)
}

func TestNegotiateExchangeFailedStatus(t *testing.T) {
	t.Parallel()

	srv, _ := startSDPServer(t, http.StatusUnauthorized, `{"error":"invalid key"}`)
	opener := &mock.Opener{}
	client := NewSignalingClient(staticCredential("ek_expired"), opener, WithProviderURL(srv.URL))

	_, err := client.Negotiate(context.Background(), NegotiateConfig{Voice: "ash"})
	wantNegotiationCode(t, err, realtime.ExchangeFailed)

	// The microphone acquired for the offer must be released on failure.
	if len(opener.Devices) != 1 || !opener.Devices[0].Closed() {
		t.Error("microphone was not released after a failed SDP exchange")
	}
}

func TestNegotiateExchangeFailedEmptyAnswer(t *testing.T) {
	t.Parallel()

	srv, _ := startSDPServer(t, http.StatusOK, "   ")
	client := NewSignalingClient(staticCredential("ek_test"), &mock.Opener{}, WithProviderURL(srv.URL))

	_, err := client.Negotiate(context.Background(), NegotiateConfig{Voice: "ash"})
	wantNegotiationCode(t, err, realtime.ExchangeFailed)
}

func TestNegotiateTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel the request context; otherwise
		// srv.Close deadlocks waiting on this handler.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	opener := &mock.Opener{}
	client := NewSignalingClient(staticCredential("ek_test"), opener,
		WithProviderURL(srv.URL),
		WithTimeout(50*time.Millisecond),
	)

	_, err := client.Negotiate(context.Background(), NegotiateConfig{Voice: "ash"})
	wantNegotiationCode(t, err, realtime.NegotiationTimeout)
	if len(opener.Devices) != 1 || !opener.Devices[0].Closed() {
		t.Error("microphone was not released after a negotiation timeout")
	}
}

func TestNegotiateSlowCredentialClassifiedAsTimeout(t *testing.T) {
	t.Parallel()

	stalled := credFunc(func(ctx context.Context, _ string, _ map[string]string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	client := NewSignalingClient(stalled, &mock.Opener{}, WithTimeout(50*time.Millisecond))

	_, err := client.Negotiate(context.Background(), NegotiateConfig{Voice: "ash"})
	wantNegotiationCode(t, err, realtime.NegotiationTimeout)
}

func TestNegotiateOfferBody(t *testing.T) {
	t.Parallel()

	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte("v=0\r\ns=answer\r\n"))
	}))
	t.Cleanup(srv.Close)

	client := NewSignalingClient(staticCredential("ek_test"), &mock.Opener{}, WithProviderURL(srv.URL))
	handle, err := client.Negotiate(context.Background(), NegotiateConfig{Voice: "ash"})
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	t.Cleanup(func() {
		_ = handle.mic.Close()
		_ = handle.transport.Close()
	})

	if !strings.HasPrefix(gotBody, "v=0") {
		t.Errorf("exchange body does not look like an SDP offer: %q", gotBody)
	}
}
