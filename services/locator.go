//go:generate go run go.uber.org/mock/mockgen -source=locator.go -destination=../mocks/mock_locator.go -package=mocks
package services

import (
	"chat-sync/domain/chat"
	"chat-sync/observability"
	"chat-sync/repositories"
	"context"
	"log/slog"

	"github.com/samber/lo"
)

// ConversationHandle identifies the conversation a message goes to.
// Exists is false until the first message creates the document.
type ConversationHandle struct {
	ID     string
	Exists bool
	Self   chat.User
	Other  chat.User
}

type IConversationLocator interface {
	FindConversation(ctx context.Context, selfID, otherID string, fn func(*chat.Conversation)) (func(), error)
	GetOrCreateConversationRef(existingID string, self, other chat.User) ConversationHandle
	FindDuplicates(ctx context.Context, a, b string) ([]chat.Conversation, error)
}

type ConversationLocator struct {
	conversations repositories.IConversationRepository
	metrics       *observability.SyncMetrics
	log           *slog.Logger
}

func NewConversationLocator(conversations repositories.IConversationRepository, metrics *observability.SyncMetrics, log *slog.Logger) *ConversationLocator {
	return &ConversationLocator{conversations: conversations, metrics: metrics, log: log}
}

// FindConversation follows the conversation between selfID and otherID,
// whichever of the two created it. fn receives nil while none exists.
// A failed read is logged and skipped: the last delivered state stands.
func (l *ConversationLocator) FindConversation(ctx context.Context, selfID, otherID string, fn func(*chat.Conversation)) (func(), error) {
	return l.conversations.WatchPair(ctx, selfID, otherID, func(conversations []chat.Conversation, err error) {
		if err != nil {
			l.log.Warn("Conversation lookup failed", "self", selfID, "other", otherID, "error", err)
			return
		}
		l.metrics.IncrSnapshotsDelivered()
		fn(l.pick(selfID, otherID, conversations))
	})
}

func (l *ConversationLocator) GetOrCreateConversationRef(existingID string, self, other chat.User) ConversationHandle {
	if existingID != "" {
		return ConversationHandle{ID: existingID, Exists: true, Self: self, Other: other}
	}
	return ConversationHandle{ID: l.conversations.NewID(), Exists: false, Self: self, Other: other}
}

// FindDuplicates returns every conversation of the pair when there is more than one.
func (l *ConversationLocator) FindDuplicates(ctx context.Context, a, b string) ([]chat.Conversation, error) {
	conversations, err := l.conversations.FindPair(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if len(conversations) < 2 {
		return nil, nil
	}
	return conversations, nil
}

// pick chooses the oldest conversation so both participants converge on
// the same one when concurrent first messages created several.
func (l *ConversationLocator) pick(selfID, otherID string, conversations []chat.Conversation) *chat.Conversation {
	switch len(conversations) {
	case 0:
		return nil
	case 1:
		return &conversations[0]
	}
	l.metrics.IncrDuplicateConversations()
	oldest := Oldest(conversations)
	l.log.Warn("Duplicate conversations for pair",
		"self", selfID,
		"other", otherID,
		"count", len(conversations),
		"ids", lo.Map(conversations, func(c chat.Conversation, _ int) string { return c.ID }),
		"kept", oldest.ID)
	return &oldest
}

// Oldest orders by createdAt, then by ID.
func Oldest(conversations []chat.Conversation) chat.Conversation {
	return lo.MinBy(conversations, func(a, b chat.Conversation) bool {
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})
}
