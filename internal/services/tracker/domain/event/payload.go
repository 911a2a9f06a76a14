package event

// Payload is the typed content of an event, discriminated by subkind.
type Payload interface {
	// EventSubkind reports which subkind this payload belongs to.
	EventSubkind() Subkind
}

// TimeChangedPayload captures the payload for scene.time_changed events.
type TimeChangedPayload struct {
	Time string `json:"time"`
}

// EventSubkind implements Payload.
func (TimeChangedPayload) EventSubkind() Subkind { return SubkindTimeChanged }

// LocationChangedPayload captures the payload for scene.location_changed events.
type LocationChangedPayload struct {
	Location string `json:"location"`
}

// EventSubkind implements Payload.
func (LocationChangedPayload) EventSubkind() Subkind { return SubkindLocationChanged }

// CharacterAppearedPayload captures the payload for character.appeared events.
type CharacterAppearedPayload struct {
	Character string `json:"character"`
}

// EventSubkind implements Payload.
func (CharacterAppearedPayload) EventSubkind() Subkind { return SubkindCharacterAppeared }

// CharacterDepartedPayload captures the payload for character.departed events.
type CharacterDepartedPayload struct {
	Character string `json:"character"`
}

// EventSubkind implements Payload.
func (CharacterDepartedPayload) EventSubkind() Subkind { return SubkindCharacterDeparted }

// MoodChangedPayload captures the payload for character.mood_changed events.
type MoodChangedPayload struct {
	Character string `json:"character"`
	Mood      string `json:"mood"`
}

// EventSubkind implements Payload.
func (MoodChangedPayload) EventSubkind() Subkind { return SubkindMoodChanged }

// PositionChangedPayload captures the payload for character.position_changed events.
type PositionChangedPayload struct {
	Character string `json:"character"`
	Position  string `json:"position"`
}

// EventSubkind implements Payload.
func (PositionChangedPayload) EventSubkind() Subkind { return SubkindPositionChanged }

// Outfit slot actions.
const (
	// OutfitActionWorn marks an item now worn in a slot.
	OutfitActionWorn = "worn"
	// OutfitActionRemoved marks an item removed from a slot.
	OutfitActionRemoved = "removed"
)

// OutfitChangedPayload captures the payload for character.outfit_changed events.
type OutfitChangedPayload struct {
	Character string `json:"character"`
	Slot      string `json:"slot"`
	Item      string `json:"item"`
	Action    string `json:"action"`
}

// EventSubkind implements Payload.
func (OutfitChangedPayload) EventSubkind() Subkind { return SubkindOutfitChanged }

// PropAddedPayload captures the payload for prop.added events.
type PropAddedPayload struct {
	Name   string `json:"name"`
	Holder string `json:"holder,omitempty"`
}

// EventSubkind implements Payload.
func (PropAddedPayload) EventSubkind() Subkind { return SubkindPropAdded }

// PropRemovedPayload captures the payload for prop.removed events.
type PropRemovedPayload struct {
	Name string `json:"name"`
}

// EventSubkind implements Payload.
func (PropRemovedPayload) EventSubkind() Subkind { return SubkindPropRemoved }

// PropMovedPayload captures the payload for prop.moved events.
type PropMovedPayload struct {
	Name   string `json:"name"`
	Holder string `json:"holder"`
}

// EventSubkind implements Payload.
func (PropMovedPayload) EventSubkind() Subkind { return SubkindPropMoved }

// RelationshipStatusChangedPayload captures the payload for
// relationship.status_changed events. Pair is always sorted
// lexicographically.
type RelationshipStatusChangedPayload struct {
	Pair   [2]string `json:"pair"`
	Status string    `json:"status"`
	Note   string    `json:"note,omitempty"`
}

// EventSubkind implements Payload.
func (RelationshipStatusChangedPayload) EventSubkind() Subkind {
	return SubkindRelationshipStatusChanged
}

// SecretRevealedPayload captures the payload for relationship.secret_revealed
// events. The direction matters: FromCharacter told TowardCharacter.
type SecretRevealedPayload struct {
	FromCharacter   string `json:"from_character"`
	TowardCharacter string `json:"toward_character"`
	Secret          string `json:"secret"`
}

// EventSubkind implements Payload.
func (SecretRevealedPayload) EventSubkind() Subkind { return SubkindSecretRevealed }

// AKAAddedPayload captures the payload for name.aka_added events.
type AKAAddedPayload struct {
	Character string `json:"character"`
	Alias     string `json:"alias"`
}

// EventSubkind implements Payload.
func (AKAAddedPayload) EventSubkind() Subkind { return SubkindAKAAdded }

// BeatNotedPayload captures the payload for narrative.beat_noted events.
type BeatNotedPayload struct {
	Text string `json:"text"`
}

// EventSubkind implements Payload.
func (BeatNotedPayload) EventSubkind() Subkind { return SubkindBeatNoted }

// ChapterStartedPayload captures the payload for chapter.started events.
type ChapterStartedPayload struct {
	Title string `json:"title"`
}

// EventSubkind implements Payload.
func (ChapterStartedPayload) EventSubkind() Subkind { return SubkindChapterStarted }

// ChapterEndedPayload captures the payload for chapter.ended events.
type ChapterEndedPayload struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// EventSubkind implements Payload.
func (ChapterEndedPayload) EventSubkind() Subkind { return SubkindChapterEnded }
