package projection

import (
	"fmt"
	"sort"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
)

// handlerEntry declares the apply function for one event subkind.
type handlerEntry struct {
	apply func(Applier, *state.NarrativeState, event.Event) error
}

// handlers maps each event subkind to its handler entry. Every subkind the
// event registry knows must appear here; the parity test enforces that.
var handlers = map[event.Subkind]handlerEntry{
	// scene
	event.SubkindTimeChanged: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applyTimeChanged(s, evt) },
	},
	event.SubkindLocationChanged: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applyLocationChanged(s, evt) },
	},

	// character
	event.SubkindCharacterAppeared: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applyCharacterAppeared(s, evt) },
	},
	event.SubkindCharacterDeparted: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applyCharacterDeparted(s, evt) },
	},
	event.SubkindMoodChanged: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applyMoodChanged(s, evt) },
	},
	event.SubkindPositionChanged: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applyPositionChanged(s, evt) },
	},
	event.SubkindOutfitChanged: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applyOutfitChanged(s, evt) },
	},

	// prop
	event.SubkindPropAdded: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applyPropAdded(s, evt) },
	},
	event.SubkindPropRemoved: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applyPropRemoved(s, evt) },
	},
	event.SubkindPropMoved: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applyPropMoved(s, evt) },
	},

	// relationship
	event.SubkindRelationshipStatusChanged: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error {
			return a.applyRelationshipStatusChanged(s, evt)
		},
	},
	event.SubkindSecretRevealed: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applySecretRevealed(s, evt) },
	},

	// name
	event.SubkindAKAAdded: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applyAKAAdded(s, evt) },
	},

	// narrative
	event.SubkindBeatNoted: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applyBeatNoted(s, evt) },
	},

	// chapter
	event.SubkindChapterStarted: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applyChapterStarted(s, evt) },
	},
	event.SubkindChapterEnded: {
		apply: func(a Applier, s *state.NarrativeState, evt event.Event) error { return a.applyChapterEnded(s, evt) },
	},
}

// Apply folds a single event into the state.
func (a Applier) Apply(s *state.NarrativeState, evt event.Event) error {
	h, ok := handlers[evt.Subkind]
	if !ok {
		return fmt.Errorf("no projection handler for event subkind %q", evt.Subkind)
	}
	return h.apply(a, s, evt)
}

// registeredHandlerSubkinds lists the handled subkinds in sorted order.
func registeredHandlerSubkinds() []event.Subkind {
	subkinds := make([]event.Subkind, 0, len(handlers))
	for s := range handlers {
		subkinds = append(subkinds, s)
	}
	sort.Slice(subkinds, func(i, j int) bool {
		return subkinds[i] < subkinds[j]
	})
	return subkinds
}
