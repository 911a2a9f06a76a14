package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnknownSubkind indicates an event subkind with no registered payload.
var ErrUnknownSubkind = errors.New("unknown event subkind")

// ErrInvalidPayload indicates a payload that does not decode for its subkind.
var ErrInvalidPayload = errors.New("invalid event payload")

// newPayload maps every known subkind to its payload factory. Adding a
// subkind without registering it here fails ValidateForAppend and the
// registry parity tests.
var newPayload = map[Subkind]func() Payload{
	SubkindTimeChanged:               func() Payload { return &TimeChangedPayload{} },
	SubkindLocationChanged:           func() Payload { return &LocationChangedPayload{} },
	SubkindCharacterAppeared:         func() Payload { return &CharacterAppearedPayload{} },
	SubkindCharacterDeparted:         func() Payload { return &CharacterDepartedPayload{} },
	SubkindMoodChanged:               func() Payload { return &MoodChangedPayload{} },
	SubkindPositionChanged:           func() Payload { return &PositionChangedPayload{} },
	SubkindOutfitChanged:             func() Payload { return &OutfitChangedPayload{} },
	SubkindPropAdded:                 func() Payload { return &PropAddedPayload{} },
	SubkindPropRemoved:               func() Payload { return &PropRemovedPayload{} },
	SubkindPropMoved:                 func() Payload { return &PropMovedPayload{} },
	SubkindRelationshipStatusChanged: func() Payload { return &RelationshipStatusChangedPayload{} },
	SubkindSecretRevealed:            func() Payload { return &SecretRevealedPayload{} },
	SubkindAKAAdded:                  func() Payload { return &AKAAddedPayload{} },
	SubkindBeatNoted:                 func() Payload { return &BeatNotedPayload{} },
	SubkindChapterStarted:            func() Payload { return &ChapterStartedPayload{} },
	SubkindChapterEnded:              func() Payload { return &ChapterEndedPayload{} },
}

// Subkinds returns every registered subkind in stable sorted order.
func Subkinds() []Subkind {
	out := make([]Subkind, 0, len(newPayload))
	for s := range newPayload {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Known reports whether the subkind has a registered payload.
func Known(s Subkind) bool {
	_, ok := newPayload[s]
	return ok
}

// New builds an event for the given chat and source, encoding the typed
// payload. Seq and ID are left for storage to assign.
func New(chatID string, messageID, swipeID int64, at time.Time, p Payload) (Event, error) {
	if p == nil {
		return Event{}, fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	subkind := p.EventSubkind()
	if !Known(subkind) {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownSubkind, subkind)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", subkind, err)
	}
	return Event{
		ChatID:      chatID,
		Subkind:     subkind,
		MessageID:   messageID,
		SwipeID:     swipeID,
		Timestamp:   at,
		PayloadJSON: raw,
	}, nil
}

// Decode unmarshals the event's payload into its registered type.
func Decode(e Event) (Payload, error) {
	factory, ok := newPayload[e.Subkind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubkind, e.Subkind)
	}
	p := factory()
	if err := json.Unmarshal(e.PayloadJSON, p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, e.Subkind, err)
	}
	return p, nil
}

// WithPayload returns a copy of e carrying the re-encoded payload. The
// payload's subkind must match the event's.
func WithPayload(e Event, p Payload) (Event, error) {
	if p == nil {
		return Event{}, fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	if p.EventSubkind() != e.Subkind {
		return Event{}, fmt.Errorf("%w: payload %s does not match event %s", ErrInvalidPayload, p.EventSubkind(), e.Subkind)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", e.Subkind, err)
	}
	e.PayloadJSON = raw
	return e, nil
}

// ValidateForAppend checks that an event is well-formed enough to persist.
func ValidateForAppend(e Event) error {
	if e.ChatID == "" {
		return errors.New("event chat id is required")
	}
	if !e.Subkind.IsValid() {
		return errors.New("event subkind is required")
	}
	if !Known(e.Subkind) {
		return fmt.Errorf("%w: %q", ErrUnknownSubkind, e.Subkind)
	}
	if e.MessageID < 0 {
		return fmt.Errorf("event message id %d is negative", e.MessageID)
	}
	if e.SwipeID < 0 {
		return fmt.Errorf("event swipe id %d is negative", e.SwipeID)
	}
	if _, err := Decode(e); err != nil {
		return err
	}
	return nil
}

// MustNew builds an event and panics on failure. For tests and internal
// construction from known-good payloads.
func MustNew(chatID string, messageID, swipeID int64, at time.Time, p Payload) Event {
	e, err := New(chatID, messageID, swipeID, at, p)
	if err != nil {
		panic(err)
	}
	return e
}
