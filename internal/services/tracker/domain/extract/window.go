package extract

import (
	"context"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
)

// History provides the committed-event reads window strategies need.
type History interface {
	// LastMessageOfKinds returns the message id of the most recent active
	// event at or before untilMessageID whose subkind matches any of
	// subkinds. ok is false when no such event exists.
	LastMessageOfKinds(ctx context.Context, untilMessageID int64, subkinds ...event.Subkind) (messageID int64, ok bool, err error)
}

// Window bounds the transcript slice an extractor sees.
type Window struct {
	// StartMessageID drops messages with smaller ids. Zero keeps all.
	StartMessageID int64
	// LastN keeps only the trailing n messages. Zero keeps all.
	LastN int
}

// Apply slices transcript per the window, then caps the result to at most
// maxMessages (zero means uncapped).
func (w Window) Apply(transcript []Message, maxMessages int) []Message {
	out := transcript
	if w.StartMessageID > 0 {
		i := 0
		for i < len(out) && out[i].ID < w.StartMessageID {
			i++
		}
		out = out[i:]
	}
	if w.LastN > 0 && len(out) > w.LastN {
		out = out[len(out)-w.LastN:]
	}
	if maxMessages > 0 && len(out) > maxMessages {
		out = out[len(out)-maxMessages:]
	}
	return out
}

// WindowStrategy selects how much context an extractor sees. It controls
// window size only, never whether the extractor runs.
type WindowStrategy interface {
	Resolve(ctx context.Context, hist History, currentMessageID int64) (Window, error)
}

// SinceLastEventOfKinds windows from the most recent active event matching
// any of the listed subkinds; the anchor message is included so the model
// sees what it last reported. With no matching event the window is
// unbounded (the cap still applies).
type SinceLastEventOfKinds struct {
	Subkinds []event.Subkind
}

func (w SinceLastEventOfKinds) Resolve(ctx context.Context, hist History, currentMessageID int64) (Window, error) {
	if hist == nil {
		return Window{}, nil
	}
	messageID, ok, err := hist.LastMessageOfKinds(ctx, currentMessageID, w.Subkinds...)
	if err != nil {
		return Window{}, err
	}
	if !ok {
		return Window{}, nil
	}
	return Window{StartMessageID: messageID}, nil
}

// FixedNumber windows to the last n messages regardless of event history.
type FixedNumber struct {
	N int
}

func (w FixedNumber) Resolve(context.Context, History, int64) (Window, error) {
	return Window{LastN: w.N}, nil
}
