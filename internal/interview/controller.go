// Package interview drives one interview attempt: it owns the session state
// machine, the countdown timer for time-boxed types, and the construction of
// the final script artifact from the assembled transcript.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxhire/voxhire/internal/transcript"
	"github.com/voxhire/voxhire/pkg/realtime"
)

// State is the controller's lifecycle state. Completed and Failed are
// terminal; a retry needs a fresh Controller.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateActive
	StateCompleting
	StateCompleted
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateActive:
		return "active"
	case StateCompleting:
		return "completing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CompletionReason records which path ended the session. All three funnel
// into the same idempotent completion sequence.
type CompletionReason string

const (
	ReasonUserEnded      CompletionReason = "user_ended"
	ReasonTimeExpired    CompletionReason = "time_expired"
	ReasonAgentCompleted CompletionReason = "agent_completed"
)

// ErrChannelFailed is the failure cause when the realtime channel drops
// mid-session.
var ErrChannelFailed = errors.New("interview: realtime channel failed")

// Connector establishes the realtime channel for one attempt. The webrtc and
// wsaudio transports both satisfy this shape, so the controller is transport
// agnostic.
type Connector func(ctx context.Context) (realtime.Channel, error)

// Config assembles a Controller. Connect and OnArtifact are required.
type Config struct {
	// Type selects the interview flavour recorded in the script.
	Type Type

	// BudgetSeconds bounds the interview for time-boxed types; zero means
	// untimed and no timer runs.
	BudgetSeconds int

	// Session is the configuration sent on the channel once it opens.
	Session realtime.SessionOptions

	// Connect negotiates the realtime channel.
	Connect Connector

	// OnArtifact receives the script exactly once, when the attempt reaches
	// a terminal state with data: cause is nil on clean completion and the
	// failure cause when a partial script was salvaged from a dropped
	// session. Negotiation failures produce no artifact.
	OnArtifact func(script *Script, cause error)

	// OnTick, when set, receives the remaining seconds each second while a
	// timed session is active.
	OnTick func(remaining int)

	// OnUtterance, when set, is notified each time a speaker's utterance
	// finalizes. Used for metric accounting.
	OnUtterance func(speaker realtime.Speaker)

	// Corrector, when set, is applied to candidate utterances as they
	// finalize.
	Corrector transcript.Corrector

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// now and tickInterval are overridden in tests.
	now          func() time.Time
	tickInterval time.Duration
}

// WithClock returns a copy of cfg using the given time source. Used in tests.
func (cfg Config) WithClock(now func() time.Time) Config {
	cfg.now = now
	return cfg
}

// WithTickInterval returns a copy of cfg with a faster timer tick. Used in
// tests.
func (cfg Config) WithTickInterval(d time.Duration) Config {
	cfg.tickInterval = d
	return cfg
}

// Controller owns one interview attempt end to end.
type Controller struct {
	cfg       Config
	log       *slog.Logger
	assembler *transcript.Assembler
	timer     *Timer
	now       func() time.Time

	mu        sync.Mutex
	state     State
	failure   error
	channel   realtime.Channel
	startedAt time.Time
}

// NewController creates a Controller in Idle.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Connect == nil {
		return nil, errors.New("interview: Config.Connect is required")
	}
	if cfg.OnArtifact == nil {
		return nil, errors.New("interview: Config.OnArtifact is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.tickInterval == 0 {
		cfg.tickInterval = time.Second
	}

	var assemblerOpts []transcript.Option
	assemblerOpts = append(assemblerOpts, transcript.WithClock(cfg.now))
	if cfg.Corrector != nil {
		assemblerOpts = append(assemblerOpts, transcript.WithCandidateCorrector(cfg.Corrector))
	}

	return &Controller{
		cfg:       cfg,
		log:       cfg.Logger.With("interview_type", string(cfg.Type)),
		assembler: transcript.NewAssembler(assemblerOpts...),
		timer:     NewTimer(WithTickInterval(cfg.tickInterval)),
		now:       cfg.now,
	}, nil
}

// Begin moves Idle → Preparing, negotiates the channel, and registers the
// event plumbing. The controller reaches Active once the channel reports
// Open. A negotiation failure moves to Failed and produces no artifact; the
// caller may retry with a fresh Controller.
func (c *Controller) Begin(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("interview: Begin in state %s", state)
	}
	c.state = StatePreparing
	c.mu.Unlock()

	c.log.Info("negotiating interview session")
	ch, err := c.cfg.Connect(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.failure = err
		c.mu.Unlock()
		c.log.Error("session negotiation failed", "error", err)
		return err
	}

	c.mu.Lock()
	if c.state != StatePreparing {
		// EndEarly or a failure won the race while negotiation was still in
		// flight. The late channel owns the microphone; release it here or
		// nothing ever will.
		state := c.state
		c.mu.Unlock()
		ch.Close()
		c.log.Info("session ended during negotiation, releasing channel", "state", state.String())
		return nil
	}
	c.channel = ch
	c.mu.Unlock()

	ch.OnEvent(c.handleEvent)
	ch.OnStateChange(c.handleChannelState)

	// Queued by the channel if the control path is still opening.
	if err := ch.Configure(c.cfg.Session); err != nil {
		c.log.Warn("session configuration failed", "error", err)
	}

	if ch.State() == realtime.StateOpen {
		c.activate()
	}
	return nil
}

// EndEarly is the user-initiated end. Idempotent with the timer and remote
// completion paths.
func (c *Controller) EndEarly() {
	c.requestCompletion(ReasonUserEnded)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Failure returns the cause after Failed, nil otherwise.
func (c *Controller) Failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Snapshot exposes the live transcript for UI rendering.
func (c *Controller) Snapshot() transcript.Snapshot {
	return c.assembler.Snapshot()
}

// activate moves Preparing → Active and starts the timer for timed types.
func (c *Controller) activate() {
	c.mu.Lock()
	if c.state != StatePreparing {
		c.mu.Unlock()
		return
	}
	c.state = StateActive
	c.startedAt = c.now()
	c.mu.Unlock()

	c.log.Info("interview active", "budget_seconds", c.cfg.BudgetSeconds)
	if c.cfg.BudgetSeconds > 0 {
		c.timer.Start(c.cfg.BudgetSeconds, c.cfg.OnTick, func() {
			c.requestCompletion(ReasonTimeExpired)
		})
	}
}

// requestCompletion is the single entry point for all completion triggers.
// Only the first caller moves the session out of Active; later calls are
// no-ops.
func (c *Controller) requestCompletion(reason CompletionReason) {
	c.mu.Lock()
	if c.state != StateActive && c.state != StatePreparing {
		c.mu.Unlock()
		return
	}
	c.state = StateCompleting
	channel := c.channel
	started := c.startedAt
	c.mu.Unlock()

	c.log.Info("completing interview", "reason", string(reason))

	c.assembler.FlushAll()
	script := c.buildScript(started)
	if channel != nil {
		channel.Close()
	}
	c.timer.Stop()

	c.mu.Lock()
	c.state = StateCompleted
	c.mu.Unlock()

	c.log.Info("interview completed",
		"reason", string(reason),
		"questions", len(script.Questions),
		"total_duration_seconds", script.TotalDuration)
	c.cfg.OnArtifact(script, nil)
}

// fail moves the attempt to Failed and salvages a partial script so a
// connection drop never destroys captured progress.
func (c *Controller) fail(cause error) {
	c.mu.Lock()
	if c.state == StateCompleted || c.state == StateFailed || c.state == StateCompleting {
		c.mu.Unlock()
		return
	}
	wasPreparing := c.state == StatePreparing
	c.state = StateFailed
	c.failure = cause
	channel := c.channel
	started := c.startedAt
	c.mu.Unlock()

	c.timer.Stop()
	if channel != nil {
		channel.Close()
	}
	c.log.Error("interview failed", "error", cause)

	// A failure before the session was ever active has no transcript to
	// salvage.
	if wasPreparing {
		return
	}
	c.assembler.FlushAll()
	c.cfg.OnArtifact(c.buildScript(started), cause)
}

func (c *Controller) buildScript(started time.Time) *Script {
	now := c.now()
	var elapsed time.Duration
	if !started.IsZero() {
		elapsed = now.Sub(started)
	}
	return buildScript(c.cfg.Type, c.assembler.Snapshot(), c.assembler.Text(), elapsed, now)
}

// handleEvent consumes the inbound channel events in arrival order.
func (c *Controller) handleEvent(evt realtime.Event) {
	switch evt.Kind {
	case realtime.KindSessionEstablished:
		c.log.Debug("realtime session established")

	case realtime.KindAgentSpeechDelta:
		c.assembler.ApplyDelta(realtime.SpeakerAgent, evt.Text)

	case realtime.KindAgentSpeechFinal:
		c.assembler.ApplyFinal(realtime.SpeakerAgent, evt.Text)
		c.noteUtterance(realtime.SpeakerAgent)

	case realtime.KindCandidateSpeechDelta:
		c.assembler.ApplyDelta(realtime.SpeakerCandidate, evt.Text)

	case realtime.KindCandidateSpeechFinal:
		c.assembler.ApplyFinal(realtime.SpeakerCandidate, evt.Text)
		c.noteUtterance(realtime.SpeakerCandidate)

	case realtime.KindConversationComplete:
		c.log.Info("agent signalled conversation complete")
		c.requestCompletion(ReasonAgentCompleted)

	case realtime.KindRemoteError:
		if evt.Err != nil && evt.Err.Fatal {
			c.fail(fmt.Errorf("interview: remote error: %w", evt.Err))
			return
		}
		c.log.Warn("non-fatal remote error", "error", evt.Err)
	}
}

func (c *Controller) noteUtterance(speaker realtime.Speaker) {
	if c.cfg.OnUtterance != nil {
		c.cfg.OnUtterance(speaker)
	}
}

// handleChannelState reacts to transport state transitions.
func (c *Controller) handleChannelState(s realtime.State) {
	switch s {
	case realtime.StateOpen:
		c.activate()
	case realtime.StateFailed:
		c.fail(ErrChannelFailed)
	}
}
