// Package wire encodes and decodes the realtime provider's JSON control
// protocol. Both transports (the WebRTC data channel and the WebSocket
// fallback) exchange the same event vocabulary, so the codec lives here
// rather than in either transport.
package wire

import (
	"encoding/base64"
	"encoding/json"

	"github.com/voxhire/voxhire/pkg/realtime"
)

// endInterviewTool is the function name the interview agent invokes when it
// has asked its closing question. Its arrival maps to
// [realtime.KindConversationComplete].
const endInterviewTool = "end_interview"

// ── Outgoing messages ─────────────────────────────────────────────────────────

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities              []string       `json:"modalities"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	InputAudioTranscription *transcription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetection `json:"turn_detection,omitempty"`
}

type transcription struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
}

type appendAudio struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

// EncodeSessionUpdate builds the session.update control message for opts.
func EncodeSessionUpdate(opts realtime.SessionOptions) ([]byte, error) {
	msg := sessionUpdate{
		Type: "session.update",
		Session: sessionParams{
			Modalities:        []string{"text", "audio"},
			OutputAudioFormat: "pcm16",
			TurnDetection: &turnDetection{
				Type:              "server_vad",
				Threshold:         opts.TurnDetection.Threshold,
				PrefixPaddingMs:   opts.TurnDetection.PrefixPaddingMs,
				SilenceDurationMs: opts.TurnDetection.SilenceDurationMs,
				CreateResponse:    true,
			},
		},
	}
	if opts.TranscriptionModel != "" {
		msg.Session.InputAudioTranscription = &transcription{
			Model:    opts.TranscriptionModel,
			Language: opts.Language,
		}
	}
	return json.Marshal(msg)
}

// EncodeAudioAppend builds the input_audio_buffer.append message for one
// PCM16 chunk.
func EncodeAudioAppend(chunk []byte) ([]byte, error) {
	return json.Marshal(appendAudio{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(chunk),
	})
}

// ── Incoming events ───────────────────────────────────────────────────────────

// serverErrorDetail is the nested error object in a provider error event:
// {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverEvent struct {
	Type string `json:"type"`

	// delta-bearing events
	Delta string `json:"delta,omitempty"`

	// final transcript events
	Transcript string `json:"transcript,omitempty"`

	// response.function_call_arguments.done
	Name string `json:"name,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// Decode parses one inbound control message into a typed event. The second
// return value is false for malformed payloads and for event types outside
// the recognised vocabulary — both are forward-compatible no-ops that the
// caller should skip, never a session-fatal condition.
func Decode(data []byte) (realtime.Event, bool) {
	var evt serverEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return realtime.Event{}, false
	}

	switch evt.Type {
	case "session.created", "session.updated":
		return realtime.Event{Kind: realtime.KindSessionEstablished}, true

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return realtime.Event{}, false
		}
		return realtime.Event{Kind: realtime.KindAgentSpeechDelta, Text: evt.Delta}, true

	case "response.audio_transcript.done":
		// Transcript, when present, is the authoritative full utterance.
		return realtime.Event{Kind: realtime.KindAgentSpeechFinal, Text: evt.Transcript}, true

	case "conversation.item.input_audio_transcription.delta":
		if evt.Delta == "" {
			return realtime.Event{}, false
		}
		return realtime.Event{Kind: realtime.KindCandidateSpeechDelta, Text: evt.Delta}, true

	case "conversation.item.input_audio_transcription.completed":
		return realtime.Event{Kind: realtime.KindCandidateSpeechFinal, Text: evt.Transcript}, true

	case "response.function_call_arguments.done":
		if evt.Name == endInterviewTool {
			return realtime.Event{Kind: realtime.KindConversationComplete}, true
		}
		return realtime.Event{}, false

	case "error":
		re := &realtime.RemoteError{Message: "unknown error"}
		if evt.Error != nil {
			re.Code = evt.Error.Code
			re.Message = evt.Error.Message
			// Session-level server errors leave the session unusable;
			// everything else (e.g. a rejected response.create) is noise.
			re.Fatal = evt.Error.Type == "server_error"
		}
		return realtime.Event{Kind: realtime.KindRemoteError, Err: re}, true
	}

	return realtime.Event{}, false
}
