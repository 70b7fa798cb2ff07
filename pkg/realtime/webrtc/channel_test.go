package webrtc

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxhire/voxhire/pkg/audio"
	"github.com/voxhire/voxhire/pkg/audio/mock"
	"github.com/voxhire/voxhire/pkg/realtime"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// newTestChannel builds a Channel over a mock transport and mock microphone.
func newTestChannel(t *testing.T) (*Channel, *mockTransport, *mock.Device) {
	t.Helper()
	transport := newMockTransport()
	mic := mock.NewDevice()
	ch := NewChannel(&ConnectionHandle{transport: transport, mic: mic})
	t.Cleanup(ch.Close)
	return ch, transport, mic
}

// eventRecorder collects dispatched events for later assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []realtime.Event
	states []realtime.State
}

func (r *eventRecorder) onEvent(evt realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) onState(s realtime.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *eventRecorder) snapshot() []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]realtime.Event, len(r.events))
	copy(out, r.events)
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func waitState(t *testing.T, ch *Channel, want realtime.State) {
	t.Helper()
	waitFor(t, func() bool { return ch.State() == want },
		"channel never reached state "+want.String())
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

func TestChannelOpensOnControlChannel(t *testing.T) {
	t.Parallel()

	ch, transport, _ := newTestChannel(t)
	if got := ch.State(); got != realtime.StateConnecting {
		t.Fatalf("initial state = %v, want Connecting", got)
	}

	transport.OpenControl()
	waitState(t, ch, realtime.StateOpen)
}

func TestChannelQueuesConfigureUntilOpen(t *testing.T) {
	t.Parallel()

	ch, transport, _ := newTestChannel(t)

	opts := realtime.SessionOptions{
		TranscriptionModel: "whisper-1",
		TurnDetection: realtime.TurnDetection{
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 800,
		},
	}
	if err := ch.Configure(opts); err != nil {
		t.Fatalf("Configure before open: %v", err)
	}
	if sent := transport.SentControl(); len(sent) != 0 {
		t.Fatalf("configuration sent before control channel opened: %d messages", len(sent))
	}

	transport.OpenControl()
	waitFor(t, func() bool { return len(transport.SentControl()) == 1 },
		"queued configuration was not flushed on open")

	var msg struct {
		Type    string `json:"type"`
		Session struct {
			TurnDetection struct {
				Threshold         float64 `json:"threshold"`
				SilenceDurationMs int     `json:"silence_duration_ms"`
			} `json:"turn_detection"`
		} `json:"session"`
	}
	if err := json.Unmarshal(transport.SentControl()[0], &msg); err != nil {
		t.Fatalf("unmarshal flushed configuration: %v", err)
	}
	if msg.Type != "session.update" {
		t.Errorf("flushed message type = %q, want session.update", msg.Type)
	}
	if msg.Session.TurnDetection.SilenceDurationMs != 800 {
		t.Errorf("silence_duration_ms = %d, want 800", msg.Session.TurnDetection.SilenceDurationMs)
	}
}

func TestChannelConfigureAfterOpenSendsImmediately(t *testing.T) {
	t.Parallel()

	ch, transport, _ := newTestChannel(t)
	transport.OpenControl()
	waitState(t, ch, realtime.StateOpen)

	if err := ch.Configure(realtime.SessionOptions{}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if got := len(transport.SentControl()); got != 1 {
		t.Fatalf("expected immediate send, got %d messages", got)
	}
}

func TestChannelCloseIdempotent(t *testing.T) {
	t.Parallel()

	ch, _, mic := newTestChannel(t)
	ch.Close()
	ch.Close()
	ch.Close()

	if got := ch.State(); got != realtime.StateClosed {
		t.Fatalf("state after Close = %v, want Closed", got)
	}
	// The device tolerates repeated Close, but the channel must only ever
	// release it once.
	if mic.CloseCount != 1 {
		t.Errorf("microphone released %d times, want exactly once", mic.CloseCount)
	}
}

func TestChannelTransportFailure(t *testing.T) {
	t.Parallel()

	ch, transport, mic := newTestChannel(t)
	rec := &eventRecorder{}
	ch.OnStateChange(rec.onState)
	transport.OpenControl()
	waitState(t, ch, realtime.StateOpen)

	transport.Fail(errors.New("ice disconnected"))
	waitState(t, ch, realtime.StateFailed)

	if !mic.Closed() {
		t.Error("microphone not released after transport failure")
	}
	// Failed is terminal: a late Close must not flip the state back.
	ch.Close()
	if got := ch.State(); got != realtime.StateFailed {
		t.Errorf("state after Close on failed channel = %v, want Failed", got)
	}
}

func TestChannelMicrophoneRevocation(t *testing.T) {
	t.Parallel()

	ch, transport, mic := newTestChannel(t)
	transport.OpenControl()
	waitState(t, ch, realtime.StateOpen)

	mic.ErrResult = errors.New("device disconnected")
	_ = mic.Close()
	waitState(t, ch, realtime.StateFailed)
}

// ── Event dispatch ────────────────────────────────────────────────────────────

func TestChannelDispatchesEventsInOrder(t *testing.T) {
	t.Parallel()

	ch, transport, _ := newTestChannel(t)
	rec := &eventRecorder{}
	ch.OnEvent(rec.onEvent)
	transport.OpenControl()
	waitState(t, ch, realtime.StateOpen)

	transport.Deliver([]byte(`{"type":"response.audio_transcript.delta","delta":"Tell me"}`))
	transport.Deliver([]byte(`{"type":"response.audio_transcript.delta","delta":" about yourself."}`))
	transport.Deliver([]byte(`{"type":"response.audio_transcript.done","transcript":"Tell me about yourself."}`))
	transport.Deliver([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"Sure, I am a backend engineer."}`))

	waitFor(t, func() bool { return len(rec.snapshot()) == 4 }, "events were not all dispatched")

	events := rec.snapshot()
	wantKinds := []realtime.EventKind{
		realtime.KindAgentSpeechDelta,
		realtime.KindAgentSpeechDelta,
		realtime.KindAgentSpeechFinal,
		realtime.KindCandidateSpeechFinal,
	}
	for i, want := range wantKinds {
		if events[i].Kind != want {
			t.Errorf("event[%d].Kind = %v, want %v", i, events[i].Kind, want)
		}
	}
	if events[2].Text != "Tell me about yourself." {
		t.Errorf("final agent text = %q", events[2].Text)
	}
}

func TestChannelSkipsUnknownEvents(t *testing.T) {
	t.Parallel()

	ch, transport, _ := newTestChannel(t)
	rec := &eventRecorder{}
	ch.OnEvent(rec.onEvent)
	transport.OpenControl()
	waitState(t, ch, realtime.StateOpen)

	transport.Deliver([]byte(`{"type":"rate_limits.updated","rate_limits":[]}`))
	transport.Deliver([]byte(`not json at all`))
	transport.Deliver([]byte(`{"type":"response.audio_transcript.done","transcript":"Done."}`))

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 }, "recognised event was not dispatched")
	if evt := rec.snapshot()[0]; evt.Kind != realtime.KindAgentSpeechFinal {
		t.Errorf("dispatched kind = %v, want KindAgentSpeechFinal", evt.Kind)
	}
}

func TestChannelConversationComplete(t *testing.T) {
	t.Parallel()

	ch, transport, _ := newTestChannel(t)
	rec := &eventRecorder{}
	ch.OnEvent(rec.onEvent)
	transport.OpenControl()
	waitState(t, ch, realtime.StateOpen)

	transport.Deliver([]byte(`{"type":"response.function_call_arguments.done","name":"end_interview","arguments":"{}"}`))

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 }, "completion signal was not dispatched")
	if evt := rec.snapshot()[0]; evt.Kind != realtime.KindConversationComplete {
		t.Errorf("dispatched kind = %v, want KindConversationComplete", evt.Kind)
	}
}

// ── Audio path ────────────────────────────────────────────────────────────────

func TestChannelPumpsMicrophoneFrames(t *testing.T) {
	t.Parallel()

	ch, transport, mic := newTestChannel(t)
	transport.OpenControl()
	waitState(t, ch, realtime.StateOpen)

	mic.Emit(audio.Frame{Data: []byte{1, 2, 3, 4}, SampleRate: 24000})
	mic.Emit(audio.Frame{Data: []byte{5, 6, 7, 8}, SampleRate: 24000})

	waitFor(t, func() bool { return len(transport.SentAudio()) == 2 },
		"microphone frames were not forwarded to the transport")
}

func TestChannelSendAudioRequiresOpen(t *testing.T) {
	t.Parallel()

	ch, _, _ := newTestChannel(t)
	if err := ch.SendAudio([]byte{0, 0}); err == nil {
		t.Fatal("SendAudio on a connecting channel should fail")
	}
}
