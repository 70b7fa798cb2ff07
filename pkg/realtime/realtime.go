// Package realtime defines the transport-neutral contract for a live
// interview session with a remote AI interview agent.
//
// A Channel carries one interview attempt's bidirectional traffic: candidate
// microphone audio flowing out, and a typed event stream (agent speech,
// candidate transcription, errors, completion signals) flowing in. Two
// transport variants implement the contract: a WebRTC media connection with a
// control data channel (package webrtc) and a WebSocket audio-streaming
// fallback (package wsaudio). The session controller is parameterised by this
// interface and never sees the transport underneath.
//
// All implementations must be safe for concurrent use.
package realtime

import "fmt"

// Speaker identifies which party produced a piece of speech.
type Speaker string

const (
	// SpeakerAgent is the remote AI interviewer.
	SpeakerAgent Speaker = "agent"

	// SpeakerCandidate is the human being interviewed.
	SpeakerCandidate Speaker = "candidate"
)

// EventKind discriminates the inbound typed events a Channel can surface.
// Unknown kinds received from the remote peer are dropped by the transport;
// the vocabulary below is the forward-compatible minimum every transport
// must recognise.
type EventKind string

const (
	// KindSessionEstablished signals that the control channel is ready and
	// the session configuration has been accepted by the remote peer.
	KindSessionEstablished EventKind = "session.established"

	// KindAgentSpeechDelta carries an incremental fragment of the agent's
	// spoken response transcript.
	KindAgentSpeechDelta EventKind = "agent.speech.delta"

	// KindAgentSpeechFinal marks the end of one agent utterance. Text holds
	// the authoritative full transcript when the remote supplies one.
	KindAgentSpeechFinal EventKind = "agent.speech.final"

	// KindCandidateSpeechDelta carries an incremental fragment of the
	// candidate's transcribed speech.
	KindCandidateSpeechDelta EventKind = "candidate.speech.delta"

	// KindCandidateSpeechFinal marks the end of one candidate utterance.
	KindCandidateSpeechFinal EventKind = "candidate.speech.final"

	// KindConversationComplete signals that the agent considers the
	// interview finished (e.g. it has asked its closing question).
	KindConversationComplete EventKind = "conversation.complete"

	// KindRemoteError carries an error event from the remote peer. Fatal
	// errors terminate the attempt; non-fatal ones are logged and ignored.
	KindRemoteError EventKind = "remote.error"
)

// Event is one inbound typed event from the remote agent.
type Event struct {
	// Kind discriminates the event.
	Kind EventKind

	// Text is the transcript fragment (delta kinds) or the authoritative
	// full utterance text (final kinds, may be empty when the remote does
	// not re-send the accumulated text).
	Text string

	// Err is set for KindRemoteError events.
	Err *RemoteError
}

// RemoteError is an error event received from the remote agent over the
// control channel.
type RemoteError struct {
	// Code is the provider-specific error code, when present.
	Code string

	// Message is the human-readable error description.
	Message string

	// Fatal reports whether the remote considers the session unusable.
	Fatal bool
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error %s: %s", e.Code, e.Message)
	}
	return "remote error: " + e.Message
}

// State is the lifecycle state of a Channel.
type State int

const (
	// StateConnecting is the initial state while the transport is being
	// established.
	StateConnecting State = iota

	// StateOpen means the control channel is open and events are flowing.
	StateOpen

	// StateClosed is the terminal state after a clean Close.
	StateClosed

	// StateFailed is the terminal state after a transport-level error
	// (network drop, remote hangup, device revocation).
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TurnDetection holds the server-side voice-activity parameters that decide
// when the remote agent considers the candidate's turn finished. These
// directly affect how utterances are segmented and therefore how questions
// pair with answers, so they are tunable per interview type rather than
// fixed.
type TurnDetection struct {
	// Threshold is the voice-activity detection threshold in [0, 1].
	// Higher values require louder speech to open a turn.
	Threshold float64 `yaml:"threshold"`

	// PrefixPaddingMs is the audio retained before detected speech onset.
	PrefixPaddingMs int `yaml:"prefix_padding_ms"`

	// SilenceDurationMs is how long the candidate must stay silent before
	// the agent treats the turn as finished and may respond.
	SilenceDurationMs int `yaml:"silence_duration_ms"`
}

// SessionOptions is the configuration message sent once on channel open.
// It must be delivered before any transcription event is relied upon;
// channels queue it while the control channel is still connecting.
type SessionOptions struct {
	// TranscriptionModel selects the model used to transcribe candidate
	// speech (e.g. "gpt-4o-transcribe").
	TranscriptionModel string

	// Language is the BCP-47 transcription language hint (e.g. "en").
	Language string

	// TurnDetection tunes the remote agent's end-of-turn decision.
	TurnDetection TurnDetection
}

// EventHandler consumes the inbound event stream. Handlers are invoked from
// the channel's internal receive goroutine in strict arrival order and must
// not block; heavy work belongs on the consumer's side of a queue.
type EventHandler func(Event)

// StateHandler observes channel lifecycle transitions.
type StateHandler func(State)

// Channel is one live interview connection. Exactly one Channel exists per
// interview attempt; the controller owns it and is responsible for Close.
type Channel interface {
	// Configure sends the session-configuration control message. When the
	// control channel is not yet open the message is queued and flushed on
	// open — it is never dropped. Calling Configure again replaces a still
	// queued message or sends a fresh update on an open channel.
	Configure(opts SessionOptions) error

	// OnEvent registers the single consumer of the inbound event stream.
	// Re-registering replaces the previous handler; passing nil drops
	// subsequent events.
	OnEvent(handler EventHandler)

	// OnStateChange registers an observer for lifecycle transitions.
	// Re-registering replaces the previous observer.
	OnStateChange(handler StateHandler)

	// SendAudio delivers one chunk of candidate microphone audio (PCM16)
	// to the remote agent. Returns an error when the channel is not open.
	SendAudio(chunk []byte) error

	// State returns the current lifecycle state.
	State() State

	// Close releases the capture device, closes the control channel, and
	// tears down the transport. It is idempotent and never returns an
	// error: teardown runs on every path (user action, timer expiry,
	// failure) and must not be able to fail halfway.
	Close()
}
