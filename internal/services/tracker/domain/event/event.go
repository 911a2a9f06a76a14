// Package event defines the narrative event journal's vocabulary: the
// envelope shared by every event and the typed payload carried per subkind.
package event

import (
	"strings"
	"time"
)

// Kind groups event subkinds by the slice of narrative state they touch.
type Kind string

const (
	// KindScene covers scene-level facts such as time and location.
	KindScene Kind = "scene"
	// KindCharacter covers per-character facts.
	KindCharacter Kind = "character"
	// KindProp covers tracked props.
	KindProp Kind = "prop"
	// KindRelationship covers pair-scoped facts.
	KindRelationship Kind = "relationship"
	// KindName covers alias bookkeeping.
	KindName Kind = "name"
	// KindNarrative covers free-form story beats.
	KindNarrative Kind = "narrative"
	// KindChapter covers chapter boundaries.
	KindChapter Kind = "chapter"
)

// Subkind identifies the concrete event variant as "kind.action".
type Subkind string

// Scene events.
const (
	// SubkindTimeChanged records a change of in-story time.
	SubkindTimeChanged Subkind = "scene.time_changed"
	// SubkindLocationChanged records a change of scene location.
	SubkindLocationChanged Subkind = "scene.location_changed"
)

// Character events.
const (
	// SubkindCharacterAppeared records a character entering the scene.
	SubkindCharacterAppeared Subkind = "character.appeared"
	// SubkindCharacterDeparted records a character leaving the scene.
	SubkindCharacterDeparted Subkind = "character.departed"
	// SubkindMoodChanged records a character mood change.
	SubkindMoodChanged Subkind = "character.mood_changed"
	// SubkindPositionChanged records a character position change.
	SubkindPositionChanged Subkind = "character.position_changed"
	// SubkindOutfitChanged records a single outfit slot change.
	SubkindOutfitChanged Subkind = "character.outfit_changed"
)

// Prop events.
const (
	// SubkindPropAdded records a prop entering play.
	SubkindPropAdded Subkind = "prop.added"
	// SubkindPropRemoved records a prop leaving play.
	SubkindPropRemoved Subkind = "prop.removed"
	// SubkindPropMoved records a prop changing hands.
	SubkindPropMoved Subkind = "prop.moved"
)

// Relationship events.
const (
	// SubkindRelationshipStatusChanged records a pair status transition.
	SubkindRelationshipStatusChanged Subkind = "relationship.status_changed"
	// SubkindSecretRevealed records a secret one character told another.
	SubkindSecretRevealed Subkind = "relationship.secret_revealed"
)

// Name events.
const (
	// SubkindAKAAdded records an alias for a canonical character name.
	SubkindAKAAdded Subkind = "name.aka_added"
)

// Narrative events.
const (
	// SubkindBeatNoted records a notable story beat.
	SubkindBeatNoted Subkind = "narrative.beat_noted"
)

// Chapter events.
const (
	// SubkindChapterStarted records the opening of a chapter.
	SubkindChapterStarted Subkind = "chapter.started"
	// SubkindChapterEnded records the close of a chapter.
	SubkindChapterEnded Subkind = "chapter.ended"
)

// IsValid reports whether the subkind is usable.
func (s Subkind) IsValid() bool {
	return strings.TrimSpace(string(s)) != ""
}

// Kind returns the kind prefix of the subkind (e.g. "scene", "character").
func (s Subkind) Kind() Kind {
	for i, c := range s {
		if c == '.' {
			return Kind(s[:i])
		}
	}
	return Kind(s)
}

// Event represents an immutable entry in a chat's narrative journal.
type Event struct {
	// ID is the event's opaque identity. Assigned by storage on append when
	// empty.
	ID string
	// ChatID is the chat this event belongs to.
	ChatID string
	// Seq is the event sequence number within the chat (starts at 1).
	// Assigned by storage on append; realizes the total order
	// (messageID, swipeID, insertion sequence).
	Seq uint64
	// Subkind identifies the event variant.
	Subkind Subkind
	// MessageID is the transcript message that sourced this event.
	MessageID int64
	// SwipeID is the swipe of the source message this event belongs to.
	SwipeID int64
	// Timestamp is when the event was produced.
	Timestamp time.Time
	// PayloadJSON holds the subkind-specific payload as JSON.
	PayloadJSON []byte
}
