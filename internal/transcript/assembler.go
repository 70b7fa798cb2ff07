// Package transcript reduces the realtime event stream of an interview into
// a durable transcript.
//
// The [Assembler] is a pure reducer: speech deltas accumulate into at most
// one live fragment per speaker, and completion markers freeze a fragment
// into an immutable [Utterance] on an append-only list. The remote agent
// guarantees delta-then-final ordering per speaker, so the assembler trusts
// arrival order and never re-sorts.
//
// Pairing the finalized list into question/answer structure is a separate
// pure function, [PairQuestions], applied once at session completion.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/voxhire/voxhire/pkg/realtime"
)

// Utterance is one finalized, attributed turn of speech. Immutable once
// created.
type Utterance struct {
	Speaker     realtime.Speaker
	Text        string
	StartedAt   time.Time
	FinalizedAt time.Time
}

// LiveFragment is a speaker's in-progress, not-yet-finalized text. At most
// one exists per speaker; it is UI-facing state and never persisted.
type LiveFragment struct {
	Speaker     realtime.Speaker
	PartialText string
	StartedAt   time.Time
}

// Snapshot is a point-in-time view of the transcript: the finalized
// utterances in arrival order plus any still-live fragments.
type Snapshot struct {
	Utterances []Utterance
	Live       []LiveFragment
}

// Option is a functional option for configuring an Assembler.
type Option func(*Assembler)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithCandidateCorrector applies a text corrector to candidate utterances as
// they finalize. Agent text comes from the model itself and is never
// corrected.
func WithCandidateCorrector(c Corrector) Option {
	return func(a *Assembler) { a.corrector = c }
}

// Assembler reduces speech events into the transcript. Safe for concurrent
// use, though in practice events arrive serialized from one channel.
type Assembler struct {
	mu         sync.Mutex
	utterances []Utterance
	fragments  map[realtime.Speaker]*LiveFragment

	now       func() time.Time
	corrector Corrector
}

// NewAssembler creates an empty Assembler.
func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{
		fragments: make(map[realtime.Speaker]*LiveFragment, 2),
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ApplyDelta appends fragment text to speaker's live fragment, creating one
// if absent. Both speakers may be mid-utterance at once (barge-in).
func (a *Assembler) ApplyDelta(speaker realtime.Speaker, text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	frag, ok := a.fragments[speaker]
	if !ok {
		frag = &LiveFragment{Speaker: speaker, StartedAt: a.now()}
		a.fragments[speaker] = frag
	}
	frag.PartialText += text
}

// ApplyFinal freezes speaker's live fragment into an Utterance. When the
// remote provides fullText it is authoritative and replaces the accumulated
// fragment. A final with no fragment and no text is a no-op; the provider
// emits these for turns that contained no recognizable speech.
func (a *Assembler) ApplyFinal(speaker realtime.Speaker, fullText string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalizeLocked(speaker, fullText)
}

// FlushAll finalizes any remaining live fragments using their accumulated
// text. Called at teardown so partial speech survives an abrupt end.
// Idempotent: a second call finds no fragments and appends nothing.
func (a *Assembler) FlushAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	// Fixed order keeps flushed output deterministic when both speakers
	// were mid-utterance.
	a.finalizeLocked(realtime.SpeakerAgent, "")
	a.finalizeLocked(realtime.SpeakerCandidate, "")
}

// Snapshot returns a copy of the current transcript state. Never mutates.
func (a *Assembler) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		Utterances: make([]Utterance, len(a.utterances)),
	}
	copy(snap.Utterances, a.utterances)
	for _, speaker := range []realtime.Speaker{realtime.SpeakerAgent, realtime.SpeakerCandidate} {
		if frag, ok := a.fragments[speaker]; ok {
			snap.Live = append(snap.Live, *frag)
		}
	}
	return snap
}

// Text renders the finalized transcript as speaker-labelled lines.
func (a *Assembler) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	for i, u := range a.utterances {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(u.Speaker))
		b.WriteString(": ")
		b.WriteString(u.Text)
	}
	return b.String()
}

func (a *Assembler) finalizeLocked(speaker realtime.Speaker, fullText string) {
	frag := a.fragments[speaker]
	delete(a.fragments, speaker)

	text := fullText
	if text == "" && frag != nil {
		text = frag.PartialText
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	if speaker == realtime.SpeakerCandidate && a.corrector != nil {
		text = a.corrector.Correct(text)
	}

	started := a.now()
	if frag != nil {
		started = frag.StartedAt
	}
	a.utterances = append(a.utterances, Utterance{
		Speaker:     speaker,
		Text:        text,
		StartedAt:   started,
		FinalizedAt: a.now(),
	})
}

// QuestionAnswer is one derived Q&A pair. Answer is empty when the agent's
// question got no candidate reply before the next question (expected at the
// final turn).
type QuestionAnswer struct {
	ID              int
	Question        string
	Answer          string
	DurationSeconds int
}

// PairQuestions derives Q&A structure from a finalized utterance list: every
// agent utterance opens a question, and the next candidate utterance before
// the following agent utterance is its answer. Candidate speech before the
// first question is dropped from pairing (it remains in the transcript).
func PairQuestions(utterances []Utterance) []QuestionAnswer {
	var pairs []QuestionAnswer
	var starts []time.Time // StartedAt of the agent utterance opening each pair
	for _, u := range utterances {
		switch u.Speaker {
		case realtime.SpeakerAgent:
			pairs = append(pairs, QuestionAnswer{
				ID:              len(pairs) + 1,
				Question:        u.Text,
				DurationSeconds: int(u.FinalizedAt.Sub(u.StartedAt) / time.Second),
			})
			starts = append(starts, u.StartedAt)
		case realtime.SpeakerCandidate:
			if len(pairs) == 0 {
				continue
			}
			last := &pairs[len(pairs)-1]
			if last.Answer != "" {
				continue
			}
			last.Answer = u.Text
			last.DurationSeconds = int(u.FinalizedAt.Sub(starts[len(pairs)-1]) / time.Second)
		}
	}
	return pairs
}
