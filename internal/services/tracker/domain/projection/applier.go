// Package projection folds journal events into narrative state. Projection
// is deterministic and side-effect free: the same base state and the same
// ordered event slice always produce the same result.
package projection

import (
	"fmt"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
)

// Applier folds single events into a narrative state.
type Applier struct{}

func (Applier) applyTimeChanged(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.TimeChangedPayload](evt)
	if err != nil {
		return err
	}
	s.Time = p.Time
	return nil
}

func (Applier) applyLocationChanged(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.LocationChangedPayload](evt)
	if err != nil {
		return err
	}
	s.Location = p.Location
	return nil
}

func (Applier) applyCharacterAppeared(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.CharacterAppearedPayload](evt)
	if err != nil {
		return err
	}
	if p.Character == "" {
		return fmt.Errorf("character.appeared at message %d has empty character", evt.MessageID)
	}
	s.Character(p.Character).Present = true
	return nil
}

func (Applier) applyCharacterDeparted(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.CharacterDepartedPayload](evt)
	if err != nil {
		return err
	}
	if p.Character == "" {
		return fmt.Errorf("character.departed at message %d has empty character", evt.MessageID)
	}
	// Departed characters keep their record; only presence flips.
	s.Character(p.Character).Present = false
	return nil
}

func (Applier) applyMoodChanged(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.MoodChangedPayload](evt)
	if err != nil {
		return err
	}
	s.Character(p.Character).Mood = p.Mood
	return nil
}

func (Applier) applyPositionChanged(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.PositionChangedPayload](evt)
	if err != nil {
		return err
	}
	s.Character(p.Character).Position = p.Position
	return nil
}

func (Applier) applyOutfitChanged(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.OutfitChangedPayload](evt)
	if err != nil {
		return err
	}
	c := s.Character(p.Character)
	switch p.Action {
	case event.OutfitActionWorn:
		if c.Outfit == nil {
			c.Outfit = make(map[string]string)
		}
		c.Outfit[p.Slot] = p.Item
	case event.OutfitActionRemoved:
		delete(c.Outfit, p.Slot)
	default:
		return fmt.Errorf("outfit_changed at message %d has unknown action %q", evt.MessageID, p.Action)
	}
	return nil
}

func (Applier) applyPropAdded(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.PropAddedPayload](evt)
	if err != nil {
		return err
	}
	if s.Props == nil {
		s.Props = make(map[string]*state.Prop)
	}
	s.Props[p.Name] = &state.Prop{Name: p.Name, Holder: p.Holder}
	return nil
}

func (Applier) applyPropRemoved(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.PropRemovedPayload](evt)
	if err != nil {
		return err
	}
	delete(s.Props, p.Name)
	return nil
}

func (Applier) applyPropMoved(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.PropMovedPayload](evt)
	if err != nil {
		return err
	}
	if s.Props == nil {
		s.Props = make(map[string]*state.Prop)
	}
	prop, ok := s.Props[p.Name]
	if !ok {
		prop = &state.Prop{Name: p.Name}
		s.Props[p.Name] = prop
	}
	prop.Holder = p.Holder
	return nil
}

func (Applier) applyRelationshipStatusChanged(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.RelationshipStatusChangedPayload](evt)
	if err != nil {
		return err
	}
	pair := s.Pair(p.Pair[0], p.Pair[1])
	pair.Status = p.Status
	pair.StatusLog = append(pair.StatusLog, state.StatusChange{
		Status:    p.Status,
		Note:      p.Note,
		MessageID: evt.MessageID,
	})
	return nil
}

func (Applier) applySecretRevealed(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.SecretRevealedPayload](evt)
	if err != nil {
		return err
	}
	pair := s.Pair(p.FromCharacter, p.TowardCharacter)
	pair.Secrets = append(pair.Secrets, state.Secret{
		FromCharacter:   p.FromCharacter,
		TowardCharacter: p.TowardCharacter,
		Secret:          p.Secret,
		MessageID:       evt.MessageID,
	})
	return nil
}

func (Applier) applyAKAAdded(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.AKAAddedPayload](evt)
	if err != nil {
		return err
	}
	if p.Character == "" {
		return fmt.Errorf("aka_added at message %d has empty character", evt.MessageID)
	}
	s.Character(p.Character).AddAKA(p.Alias)
	return nil
}

func (Applier) applyBeatNoted(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.BeatNotedPayload](evt)
	if err != nil {
		return err
	}
	s.Beats = append(s.Beats, state.Beat{Text: p.Text, MessageID: evt.MessageID})
	return nil
}

func (Applier) applyChapterStarted(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.ChapterStartedPayload](evt)
	if err != nil {
		return err
	}
	if open := s.OpenChapter(); open != nil {
		open.EndMessageID = evt.MessageID
	}
	s.Chapters = append(s.Chapters, state.Chapter{
		Title:          p.Title,
		StartMessageID: evt.MessageID,
		EndMessageID:   state.OpenChapterEnd,
	})
	return nil
}

func (Applier) applyChapterEnded(s *state.NarrativeState, evt event.Event) error {
	p, err := decode[*event.ChapterEndedPayload](evt)
	if err != nil {
		return err
	}
	if open := s.OpenChapter(); open != nil {
		if p.Title != "" {
			open.Title = p.Title
		}
		open.Summary = p.Summary
		open.EndMessageID = evt.MessageID
		return nil
	}
	// No open chapter: record a closed chapter beginning where the previous
	// one ended.
	start := int64(0)
	if n := len(s.Chapters); n > 0 {
		start = s.Chapters[n-1].EndMessageID + 1
	}
	s.Chapters = append(s.Chapters, state.Chapter{
		Title:          p.Title,
		Summary:        p.Summary,
		StartMessageID: start,
		EndMessageID:   evt.MessageID,
	})
	return nil
}

// decode unmarshals evt's payload and asserts its concrete type.
func decode[T event.Payload](evt event.Event) (T, error) {
	var zero T
	p, err := event.Decode(evt)
	if err != nil {
		return zero, err
	}
	typed, ok := p.(T)
	if !ok {
		return zero, fmt.Errorf("payload for %s decoded to %T", evt.Subkind, p)
	}
	return typed, nil
}
