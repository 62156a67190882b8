package storage

import (
	"chat-sync/contract"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

type watcherSet map[uint64]*watcher

// watchRegistry maps a collection to the watchers listening on it.
type watchRegistry struct {
	mu       sync.RWMutex
	nextID   uint64
	watchers map[string]watcherSet
}

// watcher receives a wake-up when its collection changes.
// dirty has capacity 1 so bursts of writes coalesce into one re-read.
type watcher struct {
	id         uint64
	collection string
	dirty      chan struct{}
}

func newWatchRegistry() *watchRegistry {
	return &watchRegistry{watchers: make(map[string]watcherSet)}
}

func (r *watchRegistry) add(collection string) *watcher {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	w := &watcher{id: r.nextID, collection: collection, dirty: make(chan struct{}, 1)}
	if _, ok := r.watchers[collection]; !ok {
		r.watchers[collection] = make(watcherSet)
	}
	r.watchers[collection][w.id] = w
	return w
}

// remove drops the watcher and the collection entry once it is empty.
func (r *watchRegistry) remove(w *watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.watchers[w.collection]; ok {
		delete(set, w.id)
		if len(set) == 0 {
			delete(r.watchers, w.collection)
		}
	}
}

func (r *watchRegistry) notify(collection string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, w := range r.watchers[collection] {
		select {
		case w.dirty <- struct{}{}:
		default:
		}
	}
}

func (r *watchRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, set := range r.watchers {
		n += len(set)
	}
	return n
}

// Snapshot is the complete, current result set of a query.
// Err is set instead when the query could not be evaluated.
type Snapshot struct {
	Documents []Document
	Err       error
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	cancel context.CancelFunc
	once   sync.Once
	mu     *sync.Mutex
	active *atomic.Bool
}

// Unsubscribe stops delivery and waits for an in-flight callback to return,
// so no callback runs after it returns. Called from inside the callback it
// would wait for itself: callers on the delivery path run it in a goroutine.
// Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.active.Store(false)
		s.cancel()
		s.mu.Lock()
		s.mu.Unlock()
	})
}

// subscriptionWorker re-evaluates a query each time its watcher is marked
// dirty and hands the full result set to the callback.
type subscriptionWorker struct {
	name    contract.WorkerName
	store   *Store
	query   Query
	watcher *watcher
	fn      func(Snapshot)
	log     *slog.Logger
	mu      *sync.Mutex
	active  *atomic.Bool
}

func (w *subscriptionWorker) GetName() contract.WorkerName {
	return w.name
}

// Run delivers a first snapshot, then one per wake-up.
// A panicking callback is recovered by the supervisor, which restarts the
// worker: the restarted run delivers a fresh snapshot.
func (w *subscriptionWorker) Run(ctx context.Context) error {
	for {
		docs, err := w.store.GetOnce(ctx, w.query)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			w.log.Warn("Subscription read failed", "query", w.query.Collection, "error", err)
		}
		if !w.deliver(Snapshot{Documents: docs, Err: err}) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-w.watcher.dirty:
		}
	}
}

// deliver runs the callback unless the subscription was canceled.
// Holding mu lets Unsubscribe wait for an in-flight callback.
func (w *subscriptionWorker) deliver(snapshot Snapshot) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active.Load() {
		return false
	}
	w.fn(snapshot)
	return true
}

func subscriptionName(q Query, id uint64) contract.WorkerName {
	return contract.WorkerName(fmt.Sprintf("subscription:%s:%d", q.Collection, id))
}
