package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/voxhire/voxhire/internal/interview"
)

// Compile-time interface check.
var _ ScriptStore = (*MemoryStore)(nil)

// MemoryStore is the in-memory [ScriptStore] used in tests and local
// development. Scripts are deep-copied on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	scripts  map[string]*interview.Script
	feedback []Feedback
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scripts: make(map[string]*interview.Script)}
}

// SaveScript implements [ScriptStore].
func (s *MemoryStore) SaveScript(_ context.Context, sessionID string, script *interview.Script) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scripts[sessionID]; ok {
		return ErrAlreadyExists
	}
	s.scripts[sessionID] = copyScript(script)
	return nil
}

// Script implements [ScriptStore].
func (s *MemoryStore) Script(_ context.Context, sessionID string) (*interview.Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	script, ok := s.scripts[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyScript(script), nil
}

// UpdateScript implements [ScriptStore].
func (s *MemoryStore) UpdateScript(_ context.Context, sessionID string, script *interview.Script, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.scripts[sessionID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	script.Version = expectedVersion + 1
	s.scripts[sessionID] = copyScript(script)
	return nil
}

// SaveFeedback implements [ScriptStore].
func (s *MemoryStore) SaveFeedback(_ context.Context, fb Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, fb)
	return nil
}

// FeedbackFor returns the recorded feedback for a session. Test helper.
func (s *MemoryStore) FeedbackFor(sessionID string) []Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Feedback
	for _, fb := range s.feedback {
		if fb.SessionID == sessionID {
			out = append(out, fb)
		}
	}
	return out
}

// copyScript deep-copies via JSON; the script shape is small and flat.
func copyScript(in *interview.Script) *interview.Script {
	data, _ := json.Marshal(in)
	var out interview.Script
	_ = json.Unmarshal(data, &out)
	out.Version = in.Version
	return &out
}
