package runtime

import (
	"chat-sync/domain/chat"
	"chat-sync/errors"
	"chat-sync/observability"
	"chat-sync/services"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
)

// Thread is the open conversation between self and other as one screen sees
// it: the latest server snapshot plus, while a send is in flight, the
// optimistic copy of the message being sent.
type Thread struct {
	self       chat.User
	other      chat.User
	locator    services.IConversationLocator
	messageLog services.IMessageLog
	metrics    *observability.SyncMetrics
	log        *slog.Logger
	release    func()

	// sendMu serializes sends so two drafts never race on the create.
	sendMu sync.Mutex

	mu             sync.Mutex
	conversationID string
	messages       []chat.Message
	generation     uint64 // bumped by every applied snapshot
	listeners      map[int]func([]chat.Message)
	nextID         int
	stop           func()
	closed         bool

	delivering atomic.Int32 // snapshots being applied right now
}

func newThread(self, other chat.User,
	locator services.IConversationLocator,
	messageLog services.IMessageLog,
	metrics *observability.SyncMetrics,
	log *slog.Logger) *Thread {
	return &Thread{
		self:       self,
		other:      other,
		locator:    locator,
		messageLog: messageLog,
		metrics:    metrics,
		log:        log.With("self", self.ID, "other", other.ID),
		listeners:  make(map[int]func([]chat.Message)),
	}
}

func (t *Thread) Self() chat.User {
	return t.self
}

func (t *Thread) Other() chat.User {
	return t.other
}

// Messages returns a copy of the displayed sequence.
func (t *Thread) Messages() []chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]chat.Message(nil), t.messages...)
}

// ConversationID is empty until a conversation is found or created.
func (t *Thread) ConversationID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conversationID
}

// OnChange calls fn with the new sequence after every change.
// The returned function removes the listener.
func (t *Thread) OnChange(fn func([]chat.Message)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.listeners[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.listeners, id)
	}
}

// Send appends draft optimistically, then writes it. On failure the
// optimistic entry is rolled back and an ErrWriteFailure is returned;
// the subscription keeps running either way.
func (t *Thread) Send(ctx context.Context, draft chat.Draft) (chat.Message, error) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	// 1. Stamp the draft with the sender and the local clock
	message, err := t.messageLog.Prepare(t.self, draft)
	if err != nil {
		return chat.Message{}, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return chat.Message{}, errors.ErrViewClosed
	}
	// 2. Show it at once, keeping what to restore if the write fails
	before := append([]chat.Message(nil), t.messages...)
	generation := t.generation
	t.messages = append(t.messages, message)
	handle := t.locator.GetOrCreateConversationRef(t.conversationID, t.self, t.other)
	t.mu.Unlock()
	t.notify()

	// 3. Write it; the next snapshot replaces the optimistic entry
	handle, err = t.messageLog.Append(ctx, handle, message)

	t.mu.Lock()
	if err != nil {
		t.metrics.IncrRollbacks()
		// A snapshot that landed meanwhile already replaced the optimistic
		// entry and is kept as is.
		if t.generation == generation {
			t.messages = before
		}
		t.mu.Unlock()
		t.log.Warn("Send rolled back", "message_id", message.ID, "error", err)
		t.notify()
		return chat.Message{}, err
	}
	if t.generation == generation {
		t.conversationID = handle.ID
	}
	t.mu.Unlock()
	return message, nil
}

// Close stops the subscription. Later sends fail with ErrViewClosed.
// It is safe to call from a listener: no snapshot is applied after it
// returns, the subscription itself is released once the delivery ends.
func (t *Thread) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	stop, release := t.stop, t.release
	t.mu.Unlock()

	if stop != nil {
		t.unsubscribe(stop)
	}
	if release != nil {
		release()
	}
}

// attach records the subscription of an open thread. A thread closed by
// a listener before the subscription was known releases it right away.
func (t *Thread) attach(stop, release func()) {
	t.mu.Lock()
	closed := t.closed
	t.stop = stop
	t.release = release
	t.mu.Unlock()

	if closed {
		t.unsubscribe(stop)
		release()
	}
}

// unsubscribe waits for the subscription to stop, unless a delivery is
// running: the delivering worker cannot wait for itself.
func (t *Thread) unsubscribe(stop func()) {
	if t.delivering.Load() > 0 {
		go stop()
		return
	}
	stop()
}

// apply replaces the whole sequence with the snapshot. A nil snapshot,
// meaning no conversation yet, leaves the displayed state untouched.
func (t *Thread) apply(conversation *chat.Conversation) {
	if conversation == nil {
		return
	}
	t.delivering.Add(1)
	defer t.delivering.Add(-1)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.conversationID = conversation.ID
	t.messages = append([]chat.Message(nil), conversation.Messages...)
	t.generation++
	t.mu.Unlock()
	t.notify()
}

func (t *Thread) notify() {
	t.mu.Lock()
	messages := append([]chat.Message(nil), t.messages...)
	listeners := lo.Values(t.listeners)
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(messages)
	}
}
