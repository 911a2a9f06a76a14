package event

// SwipeContext describes which swipe is active for each transcript message.
// Events sourced from a non-active swipe are superseded history: they stay in
// the journal but do not contribute to projections under this context.
type SwipeContext struct {
	// Swipes maps message ids to their active swipe id.
	Swipes map[int64]int64
	// Default is the swipe assumed for messages not listed in Swipes.
	Default int64
}

// ActiveSwipe returns the active swipe id for a message.
func (c SwipeContext) ActiveSwipe(messageID int64) int64 {
	if c.Swipes != nil {
		if swipe, ok := c.Swipes[messageID]; ok {
			return swipe
		}
	}
	return c.Default
}

// IsActive reports whether the event lies on the timeline this context
// describes.
func (c SwipeContext) IsActive(e Event) bool {
	return e.SwipeID == c.ActiveSwipe(e.MessageID)
}
