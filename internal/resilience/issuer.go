package resilience

import "context"

// CredentialIssuer mints short-lived realtime credentials. It matches the
// issuer interfaces of the realtime transports, so a [GuardedIssuer] can be
// passed wherever the raw backend client would be.
type CredentialIssuer interface {
	IssueRealtimeCredential(ctx context.Context, voice string, interviewContext map[string]string) (string, error)
}

// GuardedIssuer wraps a [CredentialIssuer] with a [CircuitBreaker]. While the
// breaker is open, credential requests fail immediately with [ErrCircuitOpen].
type GuardedIssuer struct {
	inner CredentialIssuer
	cb    *CircuitBreaker
}

// NewGuardedIssuer wraps inner with cb.
func NewGuardedIssuer(inner CredentialIssuer, cb *CircuitBreaker) *GuardedIssuer {
	return &GuardedIssuer{inner: inner, cb: cb}
}

// IssueRealtimeCredential implements [CredentialIssuer].
func (g *GuardedIssuer) IssueRealtimeCredential(ctx context.Context, voice string, interviewContext map[string]string) (string, error) {
	var secret string
	err := g.cb.Execute(func() error {
		var err error
		secret, err = g.inner.IssueRealtimeCredential(ctx, voice, interviewContext)
		return err
	})
	if err != nil {
		return "", err
	}
	return secret, nil
}
