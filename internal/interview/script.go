package interview

import (
	"time"

	"github.com/voxhire/voxhire/internal/transcript"
)

// Type identifies the interview flavour. It selects the time budget and
// turn-detection profile.
type Type string

const (
	// TypePreScreen is the short untimed screening conversation.
	TypePreScreen Type = "pre-screen"

	// TypeTechnical is the time-boxed technical interview.
	TypeTechnical Type = "technical"
)

// ScriptQuestion is one derived question/answer entry of a script.
type ScriptQuestion struct {
	ID       int    `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`

	// Duration is the seconds spent on this question, from the agent
	// starting to ask until the answer finalized.
	Duration int `json:"duration"`
}

// Script is the durable artifact of one completed interview attempt. It is
// built exactly once, when the controller completes, and handed to the
// persistence collaborator. Version starts at 1; the review UI bumps it on
// each edit.
type Script struct {
	Type          Type             `json:"type"`
	Questions     []ScriptQuestion `json:"questions"`
	TotalDuration int              `json:"totalDuration"`
	Transcript    string           `json:"transcript"`
	Timestamp     time.Time        `json:"timestamp"`
	Version       int              `json:"version"`
}

// buildScript derives the script from the flushed transcript. An empty
// transcript yields an empty question list and is valid (a session ended
// before anyone spoke).
func buildScript(typ Type, snap transcript.Snapshot, transcriptText string, elapsed time.Duration, now time.Time) *Script {
	pairs := transcript.PairQuestions(snap.Utterances)
	questions := make([]ScriptQuestion, len(pairs))
	for i, p := range pairs {
		questions[i] = ScriptQuestion{
			ID:       p.ID,
			Question: p.Question,
			Answer:   p.Answer,
			Duration: p.DurationSeconds,
		}
	}
	return &Script{
		Type:          typ,
		Questions:     questions,
		TotalDuration: int(elapsed / time.Second),
		Transcript:    transcriptText,
		Timestamp:     now.UTC(),
		Version:       1,
	}
}
