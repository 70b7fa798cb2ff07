// Package app wires the VoxHire subsystems into running interview sessions.
//
// The Manager owns the lifecycle of every active interview: it picks the
// profile for the requested interview type, hands a transport connector to a
// fresh [interview.Controller], and persists the resulting script artifact.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/voxhire/voxhire/internal/config"
	"github.com/voxhire/voxhire/internal/interview"
	"github.com/voxhire/voxhire/internal/observe"
	"github.com/voxhire/voxhire/internal/store"
	"github.com/voxhire/voxhire/internal/transcript"
	"github.com/voxhire/voxhire/pkg/realtime"
)

// persistTimeout bounds the store write that runs after a session ends.
const persistTimeout = 10 * time.Second

// ErrSessionNotFound is returned when an operation names an unknown session.
var ErrSessionNotFound = errors.New("app: session not found")

// ChannelFactory negotiates a realtime channel for one interview attempt
// using the given profile. interviewContext carries the per-session payload
// (résumé text, job description, question set) forwarded to the backend with
// the credential request. The webrtc and websocket transports are both
// wrapped into this shape by main.
type ChannelFactory func(ctx context.Context, profile config.InterviewProfile, interviewContext map[string]string) (realtime.Channel, error)

// SessionInfo holds metadata about an interview session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// Type is the interview flavour.
	Type interview.Type

	// CandidateName labels the session for recruiters. Optional.
	CandidateName string

	// StartedAt is when the session was started.
	StartedAt time.Time

	// State is the controller state at the time of the query.
	State string
}

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	Config    *config.Config
	Store     store.ScriptStore
	Connect   ChannelFactory
	Metrics   *observe.Metrics
	Corrector transcript.Corrector
	Logger    *slog.Logger

	// now and tickInterval are overridden in tests.
	now          func() time.Time
	tickInterval time.Duration
}

// WithClock returns a copy of cfg using the given time source. Used in tests.
func (cfg ManagerConfig) WithClock(now func() time.Time) ManagerConfig {
	cfg.now = now
	return cfg
}

// WithTickInterval returns a copy of cfg with a faster session timer tick.
// Used in tests.
func (cfg ManagerConfig) WithTickInterval(d time.Duration) ManagerConfig {
	cfg.tickInterval = d
	return cfg
}

// StartRequest describes a new interview session.
type StartRequest struct {
	Type          interview.Type
	CandidateName string

	// InterviewContext is the per-session payload handed to the backend when
	// the credential is issued: résumé text, job description, question set.
	InterviewContext map[string]string
}

// activeSession pairs a controller with its metadata.
type activeSession struct {
	info SessionInfo
	ctl  *interview.Controller
}

// Manager manages the lifecycle of interview sessions. Multiple sessions can
// run concurrently, each with its own controller and realtime channel. All
// exported methods are safe for concurrent use.
type Manager struct {
	cfg     *config.Config
	store   store.ScriptStore
	connect ChannelFactory
	metrics *observe.Metrics
	corr    transcript.Corrector
	log     *slog.Logger

	now          func() time.Time
	tickInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*activeSession
	counter  uint64
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Config == nil {
		return nil, errors.New("app: ManagerConfig.Config is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("app: ManagerConfig.Store is required")
	}
	if cfg.Connect == nil {
		return nil, errors.New("app: ManagerConfig.Connect is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Manager{
		cfg:          cfg.Config,
		store:        cfg.Store,
		connect:      cfg.Connect,
		metrics:      cfg.Metrics,
		corr:         cfg.Corrector,
		log:          cfg.Logger,
		now:          cfg.now,
		tickInterval: cfg.tickInterval,
		sessions:     make(map[string]*activeSession),
	}, nil
}

// profileFor returns the configured profile for an interview type.
func (m *Manager) profileFor(typ interview.Type) (config.InterviewProfile, error) {
	switch typ {
	case interview.TypePreScreen:
		return m.cfg.Interviews.PreScreen, nil
	case interview.TypeTechnical:
		return m.cfg.Interviews.Technical, nil
	default:
		return config.InterviewProfile{}, fmt.Errorf("app: unknown interview type %q", typ)
	}
}

// Start begins a new interview session. It negotiates the realtime channel
// via the configured transport and registers the session under a generated
// ID. Returns the session metadata, or an error when negotiation fails — the
// caller may retry, nothing is registered on failure.
func (m *Manager) Start(ctx context.Context, req StartRequest) (SessionInfo, error) {
	profile, err := m.profileFor(req.Type)
	if err != nil {
		return SessionInfo{}, err
	}

	now := m.now().UTC()
	m.mu.Lock()
	m.counter++
	sessionID := fmt.Sprintf("ivw-%s-%s-%04d", req.Type, now.Format("20060102T150405Z"), m.counter)
	m.mu.Unlock()

	ctlCfg := interview.Config{
		Type:          req.Type,
		BudgetSeconds: profile.BudgetSeconds,
		Session: realtime.SessionOptions{
			TranscriptionModel: m.cfg.Realtime.TranscriptionModel,
			Language:           m.cfg.Realtime.Language,
			TurnDetection:      profile.TurnDetection,
		},
		Connect: func(ctx context.Context) (realtime.Channel, error) {
			return m.connect(ctx, profile, req.InterviewContext)
		},
		OnArtifact: func(script *interview.Script, cause error) {
			m.persistArtifact(sessionID, script, cause)
		},
		OnUtterance: func(speaker realtime.Speaker) {
			m.metrics.RecordUtterance(context.Background(), string(speaker))
		},
		Corrector: m.corr,
		Logger:    m.log.With("session_id", sessionID),
	}
	ctlCfg = ctlCfg.WithClock(m.now)
	if m.tickInterval > 0 {
		ctlCfg = ctlCfg.WithTickInterval(m.tickInterval)
	}

	ctl, err := interview.NewController(ctlCfg)
	if err != nil {
		return SessionInfo{}, err
	}

	start := m.now()
	if err := ctl.Begin(ctx); err != nil {
		m.metrics.RecordNegotiation(ctx, string(m.cfg.Realtime.Transport), "failed", m.now().Sub(start).Seconds())
		return SessionInfo{}, fmt.Errorf("app: start session: %w", err)
	}
	m.metrics.RecordNegotiation(ctx, string(m.cfg.Realtime.Transport), "ok", m.now().Sub(start).Seconds())
	m.metrics.ActiveSessions.Add(ctx, 1)

	info := SessionInfo{
		SessionID:     sessionID,
		Type:          req.Type,
		CandidateName: req.CandidateName,
		StartedAt:     now,
	}
	m.mu.Lock()
	m.sessions[sessionID] = &activeSession{info: info, ctl: ctl}
	m.mu.Unlock()

	m.log.Info("session started",
		"session_id", sessionID,
		"interview_type", string(req.Type),
		"budget_seconds", profile.BudgetSeconds,
	)

	info.State = ctl.State().String()
	return info, nil
}

// End requests early completion of a session. Ending an already-terminal
// session removes its registration and returns nil.
func (m *Manager) End(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.ctl.EndEarly()

	// A controller that failed before opening never produces an artifact, so
	// nothing else will clear the registration.
	if s.ctl.State() == interview.StateFailed {
		m.remove(sessionID)
	}
	return nil
}

// Snapshot returns the live transcript of a session.
func (m *Manager) Snapshot(sessionID string) (transcript.Snapshot, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return transcript.Snapshot{}, ErrSessionNotFound
	}
	return s.ctl.Snapshot(), nil
}

// Info returns metadata about a session, including its current state.
func (m *Manager) Info(sessionID string) (SessionInfo, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return SessionInfo{}, ErrSessionNotFound
	}
	info := s.info
	info.State = s.ctl.State().String()
	return info, nil
}

// List returns metadata for all registered sessions.
func (m *Manager) List() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		info := s.info
		info.State = s.ctl.State().String()
		out = append(out, info)
	}
	return out
}

// Shutdown ends every registered session. Scripts for in-flight interviews
// are salvaged through the usual artifact path.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.End(id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.log.Warn("shutdown: end session", "session_id", id, "err", err)
		}
	}
}

// persistArtifact saves a finished script and clears the session
// registration. Runs on the controller's completion path.
func (m *Manager) persistArtifact(sessionID string, script *interview.Script, cause error) {
	defer m.remove(sessionID)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	m.metrics.ActiveSessions.Add(ctx, -1)
	m.metrics.SessionDuration.Record(ctx, float64(script.TotalDuration),
		metric.WithAttributes(observe.Attr("interview_type", string(script.Type))))

	outcome := "completed"
	if cause != nil {
		outcome = "partial"
		m.metrics.RecordChannelError(ctx, "session_dropped")
	}
	m.metrics.RecordScriptSaved(ctx, string(script.Type), outcome)

	if err := m.store.SaveScript(ctx, sessionID, script); err != nil {
		m.log.Error("persist script", "session_id", sessionID, "err", err)
		return
	}

	m.log.Info("session ended",
		"session_id", sessionID,
		"outcome", outcome,
		"questions", len(script.Questions),
		"total_duration", script.TotalDuration,
	)
}

// remove clears a session registration.
func (m *Manager) remove(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}
