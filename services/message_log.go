//go:generate go run go.uber.org/mock/mockgen -source=message_log.go -destination=../mocks/mock_message_log.go -package=mocks
package services

import (
	"chat-sync/domain/chat"
	"chat-sync/errors"
	"chat-sync/observability"
	"chat-sync/repositories"
	"chat-sync/storage"
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type IMessageLog interface {
	Prepare(self chat.User, draft chat.Draft) (chat.Message, error)
	Append(ctx context.Context, handle ConversationHandle, message chat.Message) (ConversationHandle, error)
	AppendMessage(ctx context.Context, handle ConversationHandle, self chat.User, draft chat.Draft) (chat.Message, ConversationHandle, error)
}

// MessageLog writes messages to the shared conversation document.
type MessageLog struct {
	conversations repositories.IConversationRepository
	metrics       *observability.SyncMetrics
	log           *slog.Logger
	now           func() time.Time
}

func NewMessageLog(conversations repositories.IConversationRepository, metrics *observability.SyncMetrics, log *slog.Logger, now func() time.Time) *MessageLog {
	if now == nil {
		now = time.Now
	}
	return &MessageLog{conversations: conversations, metrics: metrics, log: log, now: now}
}

// Prepare stamps a draft with the sender and the local clock.
// The timestamp is the sender's, not the store's.
func (l *MessageLog) Prepare(self chat.User, draft chat.Draft) (chat.Message, error) {
	id := draft.ID
	if id == "" {
		id = uuid.NewString()
	}
	return chat.NewMessage(id, self.Author(), draft.Text, chat.MillisOf(l.now()))
}

// Append creates the conversation with message as its first element, or
// adds message to the existing one. The returned handle points to the
// conversation that actually holds the message, which differs from handle
// when another creation for the same pair won the race.
func (l *MessageLog) Append(ctx context.Context, handle ConversationHandle, message chat.Message) (ConversationHandle, error) {
	if handle.Exists {
		return l.appendTo(ctx, handle, message)
	}

	// 1. First message of the pair: create the document holding it
	conversation, err := chat.NewConversation(handle.ID, handle.Self, handle.Other,
		[]chat.Message{message}, message.CreatedAt, message.CreatedAt)
	if err != nil {
		return handle, l.failed(handle, err)
	}
	err = l.conversations.Create(ctx, conversation)
	var conflict *storage.ConflictError
	switch {
	case err == nil:
		l.log.Debug("Conversation created", "conversation_id", handle.ID, "u1", handle.Self.ID, "u2", handle.Other.ID)
		handle.Exists = true
		return handle, nil
	// 2. The other participant created it first: append to theirs
	case stdErrors.As(err, &conflict):
		l.metrics.IncrPairConflictsResolved()
		l.log.Info("Conversation already created for pair, appending to it",
			"conversation_id", conflict.DocumentID, "discarded_id", handle.ID)
		handle.ID = conflict.DocumentID
		return l.appendTo(ctx, handle, message)
	case stdErrors.Is(err, errors.ErrAlreadyExists):
		return l.appendTo(ctx, handle, message)
	default:
		return handle, l.failed(handle, err)
	}
}

// AppendMessage prepares then appends a draft.
func (l *MessageLog) AppendMessage(ctx context.Context, handle ConversationHandle, self chat.User, draft chat.Draft) (chat.Message, ConversationHandle, error) {
	message, err := l.Prepare(self, draft)
	if err != nil {
		return chat.Message{}, handle, err
	}
	handle, err = l.Append(ctx, handle, message)
	return message, handle, err
}

func (l *MessageLog) appendTo(ctx context.Context, handle ConversationHandle, message chat.Message) (ConversationHandle, error) {
	if err := l.conversations.Append(ctx, handle.ID, message); err != nil {
		return handle, l.failed(handle, err)
	}
	handle.Exists = true
	return handle, nil
}

func (l *MessageLog) failed(handle ConversationHandle, err error) error {
	l.metrics.IncrWritesFailed()
	l.log.Warn("Message write failed", "conversation_id", handle.ID, "error", err)
	return fmt.Errorf("%w: %w", errors.ErrWriteFailure, err)
}
