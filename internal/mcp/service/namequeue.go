package service

import (
	"context"
	"sort"
	"sync"

	"github.com/storyweft/storyweft/internal/mcp/domain"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/names"
)

// NameQueue parks unresolved-name questions until a user answers them
// through the names tools. It sits in the tracker as the disambiguator
// but never answers inline: a tool call cannot block on user input, so
// questions are filed per chat and surfaced by names_pending instead.
type NameQueue struct {
	mu sync.Mutex
	// byChat maps chat id -> surface form -> candidates offered when the
	// question was filed. Refiling an existing question refreshes the
	// candidate list.
	byChat map[string]map[string][]string
}

// NewNameQueue creates an empty queue.
func NewNameQueue() *NameQueue {
	return &NameQueue{byChat: make(map[string]map[string][]string)}
}

// Disambiguate files the unresolved names for later confirmation and
// answers nothing. The resolver treats an empty answer set as "still
// unresolved", so the turn commits with surface forms intact.
func (q *NameQueue) Disambiguate(ctx context.Context, unresolved []string, canonical []string) ([]names.Resolution, error) {
	chatID, ok := names.ChatFromContext(ctx)
	if !ok || chatID == "" {
		return nil, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	chat := q.byChat[chatID]
	if chat == nil {
		chat = make(map[string][]string)
		q.byChat[chatID] = chat
	}
	for _, name := range unresolved {
		if name == "" {
			continue
		}
		chat[name] = append([]string(nil), canonical...)
	}
	return nil, nil
}

// Pending returns the chat's open questions, sorted by name.
func (q *NameQueue) Pending(chatID string) []domain.PendingName {
	q.mu.Lock()
	defer q.mu.Unlock()

	chat := q.byChat[chatID]
	if len(chat) == 0 {
		return nil
	}
	out := make([]domain.PendingName, 0, len(chat))
	for name, candidates := range chat {
		out = append(out, domain.PendingName{
			Name:       name,
			Candidates: append([]string(nil), candidates...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve clears answered questions. Names not in the queue are ignored,
// so confirming a name that was never filed is harmless.
func (q *NameQueue) Resolve(chatID string, resolved []string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	chat := q.byChat[chatID]
	if chat == nil {
		return
	}
	for _, name := range resolved {
		delete(chat, name)
	}
	if len(chat) == 0 {
		delete(q.byChat, chatID)
	}
}
