// Package projection turns conversation snapshots into what a screen shows.
// It never writes to the store.
package projection

import (
	"chat-sync/contract"
	"chat-sync/domain/chat"
	"chat-sync/observability"
	"chat-sync/repositories"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
)

type Order int

const (
	// OrderArrival keeps the order the store delivers, by conversation ID.
	OrderArrival Order = iota
	// OrderRecency puts the most recently updated conversation first.
	OrderRecency
)

func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(s) {
	case "", "arrival":
		return OrderArrival, nil
	case "recency":
		return OrderRecency, nil
	}
	return OrderArrival, fmt.Errorf("unknown conversation order %q", s)
}

// Summary is one row of the conversation list.
type Summary struct {
	ConversationID string
	Other          chat.User
	Last           *chat.Message
	UpdatedAt      chat.Millis
}

// Project builds the rows for self. Conversations self is not part of are dropped.
func Project(self string, conversations []chat.Conversation, order Order) []Summary {
	summaries := lo.FilterMap(conversations, func(c chat.Conversation, _ int) (Summary, bool) {
		if !c.Has(self) {
			return Summary{}, false
		}
		return Summary{
			ConversationID: c.ID,
			Other:          c.Other(self),
			Last:           c.Last(),
			UpdatedAt:      c.UpdatedAt,
		}, true
	})
	if order == OrderRecency {
		sort.SliceStable(summaries, func(i, j int) bool {
			return summaries[i].UpdatedAt > summaries[j].UpdatedAt
		})
	}
	return summaries
}

// ConversationList keeps the projected list of a user's conversations
// current. Each snapshot replaces the whole list.
type ConversationList struct {
	self    chat.User
	order   Order
	sinks   []contract.ConversationSink
	metrics *observability.SyncMetrics
	log     *slog.Logger
	ctx     context.Context

	mu        sync.Mutex
	summaries []Summary
	listeners map[int]func([]Summary)
	nextID    int
	stop      func()
	closed    bool

	delivering atomic.Int32 // snapshots being applied right now
}

func NewConversationList(ctx context.Context,
	conversations repositories.IConversationRepository,
	self chat.User,
	order Order,
	sinks []contract.ConversationSink,
	metrics *observability.SyncMetrics,
	log *slog.Logger) (*ConversationList, error) {
	l := &ConversationList{
		self:      self,
		order:     order,
		sinks:     sinks,
		metrics:   metrics,
		log:       log,
		ctx:       ctx,
		listeners: make(map[int]func([]Summary)),
	}
	stop, err := conversations.WatchForUser(ctx, self.ID, l.apply)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.stop = stop
	closed := l.closed
	l.mu.Unlock()
	// A listener closed the list during the first snapshot, before stop was known.
	if closed {
		l.release(stop)
	}
	return l, nil
}

// Summaries returns a copy of the current rows.
func (l *ConversationList) Summaries() []Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Summary(nil), l.summaries...)
}

// OnChange calls fn after every snapshot. The returned function removes it.
func (l *ConversationList) OnChange(fn func([]Summary)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.listeners[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

// Close stops the subscription. Calling it again is a no-op.
// It is safe to call from a listener: no snapshot is applied after it
// returns, the subscription itself is released once the delivery ends.
func (l *ConversationList) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	stop := l.stop
	l.mu.Unlock()

	if stop != nil {
		l.release(stop)
	}
}

// release waits for the subscription to stop, unless a delivery is running:
// the delivering worker cannot wait for itself.
func (l *ConversationList) release(stop func()) {
	if l.delivering.Load() > 0 {
		go stop()
		return
	}
	stop()
}

func (l *ConversationList) apply(conversations []chat.Conversation, err error) {
	l.delivering.Add(1)
	defer l.delivering.Add(-1)

	if err != nil {
		l.log.Warn("Conversation list snapshot failed", "user_id", l.self.ID, "error", err)
		return
	}
	summaries := Project(l.self.ID, conversations, l.order)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.summaries = summaries
	listeners := lo.Values(l.listeners)
	l.mu.Unlock()

	l.metrics.IncrSnapshotsDelivered()
	for _, sink := range l.sinks {
		if err := sink.Consume(l.ctx, conversations); err != nil {
			l.log.Warn("Sink failed", "user_id", l.self.ID, "error", err)
		}
	}
	for _, fn := range listeners {
		fn(append([]Summary(nil), summaries...))
	}
}

var _ contract.View = (*ConversationList)(nil)
