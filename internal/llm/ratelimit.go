package llm

import (
	"sync"
	"time"
)

const defaultWindow = time.Minute

type providerState struct {
	count        int
	limit        int
	resetAt      time.Time
	limitedUntil time.Time
}

// RateTracker owns the per-backend request windows. All reads and writes go
// through its methods under one mutex.
type RateTracker struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	states map[string]*providerState
}

func NewRateTracker(window time.Duration) *RateTracker {
	if window <= 0 {
		window = defaultWindow
	}
	return &RateTracker{
		window: window,
		now:    time.Now,
		states: make(map[string]*providerState),
	}
}

// Register sets the requests-per-minute ceiling for a backend. Zero disables the ceiling.
func (t *RateTracker) Register(name string, limit int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.states[name] = &providerState{limit: limit, resetAt: t.now().Add(t.window)}
}

// IsLimited reports whether the backend has reached its ceiling in the current window.
func (t *RateTracker) IsLimited(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.limitedLocked(t.stateLocked(name))
}

// Reserve claims one request slot if the backend is not limited. The check and
// the increment happen under one lock, so concurrent callers cannot overshoot
// the ceiling. A reservation whose request fails is returned with Release.
func (t *RateTracker) Reserve(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.stateLocked(name)
	if t.limitedLocked(state) {
		return false
	}
	state.count++
	return true
}

// Release gives back a slot taken by Reserve. Only successful requests count.
func (t *RateTracker) Release(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state := t.stateLocked(name); state.count > 0 {
		state.count--
	}
}

// MarkLimited forces the backend into the limited state for cooldown.
func (t *RateTracker) MarkLimited(name string, cooldown time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stateLocked(name).limitedUntil = t.now().Add(cooldown)
}

// Usage returns the current count and ceiling for a backend.
func (t *RateTracker) Usage(name string) (count, limit int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.stateLocked(name)
	return state.count, state.limit
}

func (t *RateTracker) limitedLocked(state *providerState) bool {
	if t.now().Before(state.limitedUntil) {
		return true
	}
	return state.limit > 0 && state.count >= state.limit
}

// stateLocked returns the backend state, resetting it if its window elapsed.
// Unknown backends get an unlimited state.
func (t *RateTracker) stateLocked(name string) *providerState {
	now := t.now()
	state, ok := t.states[name]
	if !ok {
		state = &providerState{resetAt: now.Add(t.window)}
		t.states[name] = state
	}

	if !now.Before(state.resetAt) {
		state.count = 0
		state.resetAt = now.Add(t.window)
	}
	return state
}
