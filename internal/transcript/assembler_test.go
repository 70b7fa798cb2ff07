package transcript

import (
	"strings"
	"testing"
	"time"

	"github.com/voxhire/voxhire/pkg/realtime"
)

// fakeClock advances a fixed step on every call, giving utterances
// deterministic timestamps.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func newFakeClock(step time.Duration) *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC), step: step}
}

func (c *fakeClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func TestApplyDeltaAccumulates(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	a.ApplyDelta(realtime.SpeakerAgent, "Tell me")
	a.ApplyDelta(realtime.SpeakerAgent, " about yourself.")

	snap := a.Snapshot()
	if len(snap.Utterances) != 0 {
		t.Fatalf("deltas must not finalize, got %d utterances", len(snap.Utterances))
	}
	if len(snap.Live) != 1 {
		t.Fatalf("expected one live fragment, got %d", len(snap.Live))
	}
	if got := snap.Live[0].PartialText; got != "Tell me about yourself." {
		t.Errorf("accumulated text = %q", got)
	}
}

func TestInterleavedSpeakersKeepSeparateFragments(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	a.ApplyDelta(realtime.SpeakerAgent, "And what would")
	a.ApplyDelta(realtime.SpeakerCandidate, "Sorry, one more")
	a.ApplyDelta(realtime.SpeakerAgent, " you say is")
	a.ApplyDelta(realtime.SpeakerCandidate, " thing about that.")

	snap := a.Snapshot()
	if len(snap.Live) != 2 {
		t.Fatalf("expected a live fragment per speaker, got %d", len(snap.Live))
	}

	// Finalizing the candidate must not disturb the agent's fragment.
	a.ApplyFinal(realtime.SpeakerCandidate, "")
	snap = a.Snapshot()
	if len(snap.Utterances) != 1 || snap.Utterances[0].Speaker != realtime.SpeakerCandidate {
		t.Fatalf("unexpected utterances after candidate final: %+v", snap.Utterances)
	}
	if snap.Utterances[0].Text != "Sorry, one more thing about that." {
		t.Errorf("candidate text = %q", snap.Utterances[0].Text)
	}
	if len(snap.Live) != 1 || snap.Live[0].Speaker != realtime.SpeakerAgent {
		t.Fatalf("agent fragment was disturbed: %+v", snap.Live)
	}
}

func TestApplyFinalRemoteTextAuthoritative(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	a.ApplyDelta(realtime.SpeakerCandidate, "I am a develop")
	a.ApplyFinal(realtime.SpeakerCandidate, "I am a developer.")

	snap := a.Snapshot()
	if len(snap.Utterances) != 1 {
		t.Fatalf("expected one utterance, got %d", len(snap.Utterances))
	}
	if got := snap.Utterances[0].Text; got != "I am a developer." {
		t.Errorf("text = %q, want the remote full text", got)
	}
}

func TestApplyFinalWithoutFragmentUsesFullText(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	a.ApplyFinal(realtime.SpeakerAgent, "Thanks for your time.")

	if snap := a.Snapshot(); len(snap.Utterances) != 1 || snap.Utterances[0].Text != "Thanks for your time." {
		t.Errorf("utterances = %+v", snap.Utterances)
	}
}

func TestApplyFinalEmptyTurnIsNoOp(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	a.ApplyFinal(realtime.SpeakerCandidate, "")
	a.ApplyFinal(realtime.SpeakerCandidate, "   ")

	if snap := a.Snapshot(); len(snap.Utterances) != 0 {
		t.Errorf("empty turns must not produce utterances: %+v", snap.Utterances)
	}
}

func TestFlushAllCapturesPartialSpeech(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	a.ApplyDelta(realtime.SpeakerAgent, "Could you walk me through")
	a.ApplyDelta(realtime.SpeakerCandidate, "Well, first I would")
	a.FlushAll()

	snap := a.Snapshot()
	if len(snap.Utterances) != 2 {
		t.Fatalf("expected both fragments flushed, got %d utterances", len(snap.Utterances))
	}
	if len(snap.Live) != 0 {
		t.Errorf("live fragments remain after flush: %+v", snap.Live)
	}
}

func TestFlushAllIdempotent(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	a.ApplyDelta(realtime.SpeakerCandidate, "half an answer")
	a.FlushAll()
	before := len(a.Snapshot().Utterances)
	a.FlushAll()
	if after := len(a.Snapshot().Utterances); after != before {
		t.Errorf("second flush appended utterances: %d -> %d", before, after)
	}
}

func TestSnapshotDoesNotAliasInternalState(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	a.ApplyFinal(realtime.SpeakerAgent, "First question.")

	snap := a.Snapshot()
	snap.Utterances[0].Text = "tampered"

	if got := a.Snapshot().Utterances[0].Text; got != "First question." {
		t.Errorf("snapshot aliases internal state: %q", got)
	}
}

func TestTextRendersSpeakerLabelledLines(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	a.ApplyFinal(realtime.SpeakerAgent, "What is a channel?")
	a.ApplyFinal(realtime.SpeakerCandidate, "A typed conduit between goroutines.")

	want := "agent: What is a channel?\ncandidate: A typed conduit between goroutines."
	if got := a.Text(); got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

// ── Pairing ───────────────────────────────────────────────────────────────────

func TestPairQuestionsBasicPolicy(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	a.ApplyFinal(realtime.SpeakerAgent, "Q1")
	a.ApplyFinal(realtime.SpeakerCandidate, "A1")
	a.ApplyFinal(realtime.SpeakerAgent, "Q2")

	pairs := PairQuestions(a.Snapshot().Utterances)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0].Question != "Q1" || pairs[0].Answer != "A1" {
		t.Errorf("pair[0] = %+v", pairs[0])
	}
	if pairs[1].Question != "Q2" || pairs[1].Answer != "" {
		t.Errorf("pair[1] = %+v, want unanswered final question", pairs[1])
	}
	if pairs[0].ID != 1 || pairs[1].ID != 2 {
		t.Errorf("ids = %d, %d, want speaking order", pairs[0].ID, pairs[1].ID)
	}
}

func TestPairQuestionsExtraCandidateTurnsIgnored(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	a.ApplyFinal(realtime.SpeakerCandidate, "Hello? Can you hear me?")
	a.ApplyFinal(realtime.SpeakerAgent, "Q1")
	a.ApplyFinal(realtime.SpeakerCandidate, "A1")
	a.ApplyFinal(realtime.SpeakerCandidate, "A1 continued as a new turn")

	pairs := PairQuestions(a.Snapshot().Utterances)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].Answer != "A1" {
		t.Errorf("answer = %q, want the first candidate turn after the question", pairs[0].Answer)
	}
}

func TestPairQuestionsEmptyTranscript(t *testing.T) {
	t.Parallel()

	if pairs := PairQuestions(nil); len(pairs) != 0 {
		t.Errorf("pairs from empty transcript = %+v", pairs)
	}
}

func TestPairQuestionsDurations(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(10 * time.Second)
	a := NewAssembler(WithClock(clock.Now))

	// Each Now() call advances 10s: question start, question final, answer
	// start, answer final.
	a.ApplyDelta(realtime.SpeakerAgent, "Describe your last project.")
	a.ApplyFinal(realtime.SpeakerAgent, "")
	a.ApplyDelta(realtime.SpeakerCandidate, "It was a payments service.")
	a.ApplyFinal(realtime.SpeakerCandidate, "")

	pairs := PairQuestions(a.Snapshot().Utterances)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	// Question started at t=0, answer finalized at t=30.
	if pairs[0].DurationSeconds != 30 {
		t.Errorf("duration = %ds, want 30", pairs[0].DurationSeconds)
	}
}

// ── Correction ────────────────────────────────────────────────────────────────

type upperCorrector struct{}

func (upperCorrector) Correct(text string) string { return strings.ToUpper(text) }

func TestCandidateCorrectorAppliesOnlyToCandidate(t *testing.T) {
	t.Parallel()

	a := NewAssembler(WithCandidateCorrector(upperCorrector{}))
	a.ApplyFinal(realtime.SpeakerAgent, "What does tdd mean?")
	a.ApplyFinal(realtime.SpeakerCandidate, "test driven development")

	snap := a.Snapshot()
	if got := snap.Utterances[0].Text; got != "What does tdd mean?" {
		t.Errorf("agent text was corrected: %q", got)
	}
	if got := snap.Utterances[1].Text; got != "TEST DRIVEN DEVELOPMENT" {
		t.Errorf("candidate text = %q, want corrected form", got)
	}
}
