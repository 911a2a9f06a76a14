package extract

// RunContext is what a run strategy may consult: the current message id and
// the extractor's own history.
type RunContext struct {
	MessageID int64
	State     State
}

// RunStrategy decides whether an extractor fires for a message. Strategies
// are pure; the enable flag for the extractor's category lives in ShouldRun,
// not here.
type RunStrategy interface {
	ShouldFire(rc RunContext) bool
}

// Evaluate applies a strategy to a run context. A nil strategy fires on
// every message.
func Evaluate(s RunStrategy, rc RunContext) bool {
	if s == nil {
		return true
	}
	return s.ShouldFire(rc)
}

// EveryMessage fires unconditionally.
type EveryMessage struct{}

func (EveryMessage) ShouldFire(RunContext) bool { return true }

// EveryNMessages fires on every nth message, counted from the start of the
// chat: with message ids starting at 0, n=2 fires on ids 1, 3, 5... Offset
// staggers extractors sharing the same n so they do not all fire on the
// same message.
type EveryNMessages struct {
	N      int
	Offset int
}

func (s EveryNMessages) ShouldFire(rc RunContext) bool {
	if s.N <= 1 {
		return true
	}
	return (rc.MessageID+int64(s.Offset)+1)%int64(s.N) == 0
}
