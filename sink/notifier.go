// Package sink holds the consumers of conversation snapshots that are not
// part of the list itself.
package sink

import (
	"chat-sync/contract"
	"chat-sync/domain/chat"
	"context"
	"log/slog"
	"sync"
)

// Notification is a message from someone else that self has not seen yet.
type Notification struct {
	ConversationID string
	From           chat.User
	Message        chat.Message
}

// Notifier reports the new last message of every conversation when it was
// written by the other participant. The first snapshot only sets the baseline.
type Notifier struct {
	self string
	fn   func(Notification)
	log  *slog.Logger

	mu     sync.Mutex
	last   map[string]string // map conversation -> last message ID
	primed bool
}

func NewNotifier(self string, fn func(Notification), log *slog.Logger) *Notifier {
	return &Notifier{
		self: self,
		fn:   fn,
		log:  log,
		last: make(map[string]string),
	}
}

func (n *Notifier) Consume(_ context.Context, conversations []chat.Conversation) error {
	var pending []Notification

	n.mu.Lock()
	for _, conversation := range conversations {
		last := conversation.Last()
		if last == nil {
			continue
		}
		if n.last[conversation.ID] == last.ID {
			continue
		}
		n.last[conversation.ID] = last.ID
		if n.primed && last.Author.ID != n.self {
			pending = append(pending, Notification{
				ConversationID: conversation.ID,
				From:           conversation.Other(n.self),
				Message:        *last,
			})
		}
	}
	n.primed = true
	n.mu.Unlock()

	for _, notification := range pending {
		n.log.Debug("New message", "conversation_id", notification.ConversationID, "from", notification.From.ID)
		n.fn(notification)
	}
	return nil
}

var _ contract.ConversationSink = (*Notifier)(nil)
