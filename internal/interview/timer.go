package interview

import (
	"sync"
	"time"
)

// Timer counts down a fixed interview budget at one-second resolution.
// onTick receives the remaining seconds after each elapsed second; onExpire
// fires exactly once when the budget reaches zero, after which the timer
// halts itself. Untimed interview types never start a Timer.
type Timer struct {
	interval time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
}

// TimerOption is a functional option for configuring a Timer.
type TimerOption func(*Timer)

// WithTickInterval overrides the one-second tick. Used in tests.
func WithTickInterval(d time.Duration) TimerOption {
	return func(t *Timer) { t.interval = d }
}

// NewTimer creates an idle Timer.
func NewTimer(opts ...TimerOption) *Timer {
	t := &Timer{interval: time.Second}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start begins the countdown. A second Start on a running timer is a no-op.
func (t *Timer) Start(budgetSeconds int, onTick func(remaining int), onExpire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || budgetSeconds <= 0 {
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	go t.run(budgetSeconds, onTick, onExpire, t.stopCh)
}

// Stop cancels the countdown. Idempotent; safe after expiry or without a
// prior Start. No callbacks fire after Stop returns with the timer stopped.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
}

func (t *Timer) run(remaining int, onTick func(int), onExpire func(), stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		// Re-check under the lock so a Stop racing the tick wins and no
		// callback fires after cancellation.
		t.mu.Lock()
		if !t.running || t.stopCh != stop {
			t.mu.Unlock()
			return
		}
		remaining--
		expired := remaining <= 0
		if expired {
			t.running = false
		}
		t.mu.Unlock()

		if onTick != nil {
			onTick(remaining)
		}
		if expired {
			if onExpire != nil {
				onExpire()
			}
			return
		}
	}
}
