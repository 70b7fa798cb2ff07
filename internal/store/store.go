// Package store persists completed interview scripts and candidate feedback.
// Two implementations exist: a PostgreSQL store for production and an
// in-memory store for tests and local development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/voxhire/voxhire/internal/interview"
)

var (
	// ErrNotFound is returned when no script exists for the session.
	ErrNotFound = errors.New("store: script not found")

	// ErrVersionConflict is returned when an update's expected version does
	// not match the stored one; the review UI reloads and retries.
	ErrVersionConflict = errors.New("store: script version conflict")

	// ErrAlreadyExists is returned when a script was already saved for the
	// session. One attempt produces exactly one script.
	ErrAlreadyExists = errors.New("store: script already exists")
)

// Feedback is a candidate's post-interview feedback record.
type Feedback struct {
	SessionID   string
	Rating      int
	Comments    string
	SubmittedAt time.Time
}

// ScriptStore persists interview artifacts. All methods are safe for
// concurrent use.
type ScriptStore interface {
	// SaveScript stores the freshly built script (version 1) for a session.
	SaveScript(ctx context.Context, sessionID string, script *interview.Script) error

	// Script loads the stored script for a session.
	Script(ctx context.Context, sessionID string) (*interview.Script, error)

	// UpdateScript replaces the script if the stored version equals
	// expectedVersion, bumping the version by one. The script's Version
	// field is overwritten with the new value.
	UpdateScript(ctx context.Context, sessionID string, script *interview.Script, expectedVersion int) error

	// SaveFeedback records candidate feedback for a session.
	SaveFeedback(ctx context.Context, fb Feedback) error
}
