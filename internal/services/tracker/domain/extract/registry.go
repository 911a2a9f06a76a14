package extract

import "sync"

// State is one extractor's run history: the message ids it ran at and the
// subset where it produced events. Cadences consult it; it is distinct from
// event history ("every 3rd message" vs "window since the last event of
// kind K").
type State struct {
	RanAt      []int64
	ProducedAt []int64
}

// LastRanAt returns the most recent message the extractor ran at.
func (s State) LastRanAt() (int64, bool) {
	if len(s.RanAt) == 0 {
		return 0, false
	}
	return s.RanAt[len(s.RanAt)-1], true
}

// LastProducedAt returns the most recent message the extractor produced
// events at.
func (s State) LastProducedAt() (int64, bool) {
	if len(s.ProducedAt) == 0 {
		return 0, false
	}
	return s.ProducedAt[len(s.ProducedAt)-1], true
}

func (s State) clone() State {
	return State{
		RanAt:      append([]int64(nil), s.RanAt...),
		ProducedAt: append([]int64(nil), s.ProducedAt...),
	}
}

// Registry holds per-extractor run state for the process lifetime. Entries
// are created lazily on first record. Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	states map[string]State
}

// NewRegistry creates an empty run-state registry.
func NewRegistry() *Registry {
	return &Registry{states: make(map[string]State)}
}

// State returns a copy of the named extractor's run history.
func (r *Registry) State(name string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[name].clone()
}

// RecordRun notes that the extractor ran at messageID.
func (r *Registry) RecordRun(name string, messageID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.states[name]
	st.RanAt = append(st.RanAt, messageID)
	r.states[name] = st
}

// RecordProduced notes that the extractor produced events at messageID.
func (r *Registry) RecordProduced(name string, messageID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.states[name]
	st.ProducedAt = append(st.ProducedAt, messageID)
	r.states[name] = st
}

// Reset drops all run state. Test hook.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = make(map[string]State)
}
