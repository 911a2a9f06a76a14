package generate

import (
	"sync"
	"time"
)

// BackoffState is the tracked failure history for one prompt.
type BackoffState struct {
	ConsecutiveFailures int
	CooldownUntil       time.Time
}

// Backoff keeps prompts that repeatedly fail from hammering the model. Once
// consecutive failures reach the threshold the prompt enters a cooldown that
// doubles with each further failure, capped at max. A single success clears
// the history. Safe for concurrent use.
type Backoff struct {
	mu        sync.Mutex
	threshold int
	base      time.Duration
	max       time.Duration
	states    map[string]BackoffState
}

// NewBackoff creates a tracker. threshold is the consecutive-failure count
// at which cooldowns start; values below 1 are treated as 1.
func NewBackoff(threshold int, base, max time.Duration) *Backoff {
	if threshold < 1 {
		threshold = 1
	}
	if max < base {
		max = base
	}
	return &Backoff{
		threshold: threshold,
		base:      base,
		max:       max,
		states:    make(map[string]BackoffState),
	}
}

// RecordFailure notes a failed generation for prompt at now, escalating the
// cooldown once the threshold is reached.
func (b *Backoff) RecordFailure(prompt string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.states[prompt]
	st.ConsecutiveFailures++
	if st.ConsecutiveFailures >= b.threshold {
		cooldown := b.base
		for i := b.threshold; i < st.ConsecutiveFailures && cooldown < b.max; i++ {
			cooldown *= 2
		}
		if cooldown > b.max {
			cooldown = b.max
		}
		st.CooldownUntil = now.Add(cooldown)
	}
	b.states[prompt] = st
}

// RecordSuccess clears the failure history for prompt.
func (b *Backoff) RecordSuccess(prompt string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, prompt)
}

// ShouldSkip reports whether prompt is inside its cooldown window at now,
// and until when.
func (b *Backoff) ShouldSkip(prompt string, now time.Time) (bool, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[prompt]
	if !ok || st.CooldownUntil.IsZero() {
		return false, time.Time{}
	}
	if now.Before(st.CooldownUntil) {
		return true, st.CooldownUntil
	}
	return false, time.Time{}
}

// State returns a copy of the tracked state for prompt. Test hook.
func (b *Backoff) State(prompt string) BackoffState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[prompt]
}

// Reset drops all failure history. Test hook.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states = make(map[string]BackoffState)
}
