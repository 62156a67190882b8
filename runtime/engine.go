// Package runtime opens the live views a client works with: threads and
// conversation lists. It keeps track of them so nothing outlives the session.
package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain/chat"
	"chat-sync/errors"
	"chat-sync/observability"
	"chat-sync/projection"
	"chat-sync/repositories"
	"chat-sync/services"
	"context"
	"log/slog"
	"sync"
)

type Engine struct {
	log           *slog.Logger
	locator       services.IConversationLocator
	messageLog    services.IMessageLog
	conversations repositories.IConversationRepository
	registry      *Registry
	metrics       *observability.SyncMetrics
	order         projection.Order
	sinks         []contract.ConversationSink
}

func NewEngine(log *slog.Logger,
	locator services.IConversationLocator,
	messageLog services.IMessageLog,
	conversations repositories.IConversationRepository,
	registry *Registry,
	metrics *observability.SyncMetrics,
	order projection.Order,
	sinks ...contract.ConversationSink) *Engine {
	return &Engine{
		log:           log,
		locator:       locator,
		messageLog:    messageLog,
		conversations: conversations,
		registry:      registry,
		metrics:       metrics,
		order:         order,
		sinks:         sinks,
	}
}

// OpenThread follows the conversation between self and other.
// The thread must be closed by the caller.
func (e *Engine) OpenThread(ctx context.Context, self, other chat.User) (*Thread, error) {
	if self.ID == other.ID {
		return nil, errors.ErrSameParticipant
	}
	thread := newThread(self, other, e.locator, e.messageLog, e.metrics, e.log)
	stop, err := e.locator.FindConversation(ctx, self.ID, other.ID, thread.apply)
	if err != nil {
		return nil, err
	}
	e.registry.Add(self.ID, thread)
	thread.attach(stop, func() { e.registry.Remove(self.ID, thread) })
	e.log.Debug("Thread opened", "self", self.ID, "other", other.ID)
	return thread, nil
}

// ListView is a conversation list tracked by the engine.
type ListView struct {
	*projection.ConversationList
	release func()
	once    sync.Once
}

func (v *ListView) Close() {
	v.once.Do(func() {
		v.ConversationList.Close()
		v.release()
	})
}

// OpenConversationList follows every conversation self takes part in.
// sinks are fed after the engine-wide ones, for this list only.
func (e *Engine) OpenConversationList(ctx context.Context, self chat.User, sinks ...contract.ConversationSink) (*ListView, error) {
	all := append(append([]contract.ConversationSink(nil), e.sinks...), sinks...)
	list, err := projection.NewConversationList(ctx, e.conversations, self, e.order, all, e.metrics, e.log)
	if err != nil {
		return nil, err
	}
	view := &ListView{ConversationList: list}
	view.release = func() { e.registry.Remove(self.ID, view) }
	e.registry.Add(self.ID, view)
	return view, nil
}

// OpenViewsFor is the number of views userID has not closed yet.
func (e *Engine) OpenViewsFor(userID string) int {
	return len(e.registry.ViewsFor(userID))
}

// OpenViews is the number of views not closed yet.
func (e *Engine) OpenViews() int {
	return e.registry.Count()
}

// Close releases every view still open. Each one is a leak on the
// caller's side and is reported as such.
func (e *Engine) Close() {
	for userID, views := range e.registry.Drain() {
		for _, view := range views {
			e.metrics.IncrLeakedViews()
			e.log.Warn("View still open at shutdown", "user_id", userID)
			view.Close()
		}
	}
}

var (
	_ contract.View = (*Thread)(nil)
	_ contract.View = (*ListView)(nil)
)
