package realtime

import (
	"errors"
	"fmt"
)

// FailureCode classifies why session negotiation failed. Negotiation
// failures are never retried automatically; the code tells the UI which
// guidance to show before the candidate retries with a fresh attempt.
type FailureCode string

const (
	// CredentialUnavailable: the backend could not issue an ephemeral
	// credential (network failure, auth rejection, 5xx).
	CredentialUnavailable FailureCode = "credential_unavailable"

	// MalformedCredential: the backend answered 200 but the response body
	// carried no usable credential.
	MalformedCredential FailureCode = "malformed_credential"

	// ExchangeFailed: the offer/answer exchange with the realtime provider
	// failed (non-2xx status or unusable answer body).
	ExchangeFailed FailureCode = "exchange_failed"

	// MediaAccessDenied: the microphone could not be acquired.
	MediaAccessDenied FailureCode = "media_access_denied"

	// NegotiationTimeout: negotiation did not finish inside its own time
	// bound. This is distinct from, and never counts against, the
	// interview's session timer.
	NegotiationTimeout FailureCode = "timeout"
)

// NegotiationError reports a failed session negotiation. It wraps the
// underlying cause so callers can use errors.Is/errors.As, and carries a
// FailureCode for the UI.
type NegotiationError struct {
	Code FailureCode
	Err  error
}

func (e *NegotiationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("negotiate: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("negotiate: %s", e.Code)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// NegotiationFailure unwraps the *NegotiationError carried by err. The bool
// reports whether err is one.
func NegotiationFailure(err error) (*NegotiationError, bool) {
	var ne *NegotiationError
	if errors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}
