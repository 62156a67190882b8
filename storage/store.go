package storage

import (
	"chat-sync/contract"
	"chat-sync/errors"
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const defaultWriteRetries = 5

// Store is a document store on top of Badger: collections of structured
// documents, atomic field transforms, unique keys, and live queries.
type Store struct {
	db           *badger.DB
	log          *slog.Logger
	supervisor   contract.ISupervisor
	watches      *watchRegistry
	writeRetries int
	ctx          context.Context
	cancel       context.CancelFunc
	closed       atomic.Bool
}

type Option func(*Store)

// WithWriteRetries bounds how many times a write transaction is replayed
// after a Badger conflict.
func WithWriteRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.writeRetries = n
		}
	}
}

// NewStore wraps db. Subscription workers run under supervisor, which
// should be dedicated to the store since Close waits on it.
func NewStore(db *badger.DB, log *slog.Logger, supervisor contract.ISupervisor, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:           db,
		log:          log,
		supervisor:   supervisor,
		watches:      newWatchRegistry(),
		writeRetries: defaultWriteRetries,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type writeOptions struct {
	merge     bool
	uniqueKey string
}

type WriteOption func(*writeOptions)

// WithMerge makes Set deep-merge into the existing document instead of replacing it.
func WithMerge() WriteOption {
	return func(o *writeOptions) { o.merge = true }
}

// WithUniqueKey makes Create fail with a ConflictError when another document
// of the collection already holds key.
func WithUniqueKey(key string) WriteOption {
	return func(o *writeOptions) { o.uniqueKey = key }
}

// ConflictError is returned by Create when the unique key is held by
// DocumentID. It matches errors.ErrConflict.
type ConflictError struct {
	Key        string
	DocumentID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %q held by %s", errors.ErrConflict, e.Key, e.DocumentID)
}

func (e *ConflictError) Unwrap() error {
	return errors.ErrConflict
}

// Get reads a single document.
func (s *Store) Get(ctx context.Context, ref Ref) (Document, error) {
	if err := s.check(ctx); err != nil {
		return Document{}, err
	}
	var doc Document
	err := s.db.View(func(txn *badger.Txn) error {
		data, err := readDoc(txn, ref)
		if err != nil {
			return err
		}
		doc = Document{Ref: ref, Data: data}
		return nil
	})
	return doc, err
}

// Set writes a whole document, or merges into it with WithMerge.
func (s *Store) Set(ctx context.Context, ref Ref, data map[string]any, opts ...WriteOption) error {
	o := applyWriteOptions(opts)
	incoming, err := structpb.NewStruct(data)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidDocument, err)
	}
	return s.write(ctx, ref.Collection, func(txn *badger.Txn) error {
		if o.merge {
			current, err := readDoc(txn, ref)
			switch {
			case err == nil:
				mergeStruct(current, incoming)
				return writeDoc(txn, ref, current)
			case !stdErrors.Is(err, errors.ErrNotFound):
				return err
			}
		}
		return writeDoc(txn, ref, incoming)
	})
}

// Create writes a document that must not exist yet. With WithUniqueKey the
// key is claimed in the same transaction, so two concurrent creations with
// the same key cannot both succeed.
func (s *Store) Create(ctx context.Context, ref Ref, data map[string]any, opts ...WriteOption) error {
	o := applyWriteOptions(opts)
	doc, err := structpb.NewStruct(data)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidDocument, err)
	}
	return s.write(ctx, ref.Collection, func(txn *badger.Txn) error {
		if _, err := txn.Get(ref.key()); err == nil {
			return fmt.Errorf("%w: %s", errors.ErrAlreadyExists, ref)
		} else if !stdErrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if o.uniqueKey != "" {
			key := uniqueKey(ref.Collection, o.uniqueKey)
			item, err := txn.Get(key)
			switch {
			case err == nil:
				holder, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				return &ConflictError{Key: o.uniqueKey, DocumentID: string(holder)}
			case !stdErrors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			if err := txn.Set(key, []byte(ref.ID)); err != nil {
				return err
			}
		}
		return writeDoc(txn, ref, doc)
	})
}

// Update applies field updates to an existing document atomically.
func (s *Store) Update(ctx context.Context, ref Ref, updates ...FieldUpdate) error {
	return s.write(ctx, ref.Collection, func(txn *badger.Txn) error {
		doc, err := readDoc(txn, ref)
		if err != nil {
			return err
		}
		for _, u := range updates {
			if err := applyUpdate(doc, u); err != nil {
				return fmt.Errorf("%w: %v", errors.ErrInvalidDocument, err)
			}
		}
		return writeDoc(txn, ref, doc)
	})
}

// GetOnce evaluates a query against the current state, in document ID order.
func (s *Store) GetOnce(ctx context.Context, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var docs []Document
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := collectionPrefix(q.Collection)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			data := &structpb.Struct{}
			if err := proto.Unmarshal(val, data); err != nil {
				s.log.Warn("Skipping unreadable document", "key", string(item.Key()), "error", err)
				continue
			}
			if q.Filter != nil && !q.Filter.match(data) {
				continue
			}
			id := string(item.Key()[len(prefix):])
			docs = append(docs, Document{Ref: Ref{Collection: q.Collection, ID: id}, Data: data})
		}
		return nil
	})
	return docs, err
}

// Subscribe delivers the full result set of q now and after every write to
// its collection, until the returned subscription is canceled, ctx is done,
// or the store is closed. Bursts of writes may coalesce into one snapshot.
func (s *Store) Subscribe(ctx context.Context, q Query, fn func(Snapshot)) (*Subscription, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	// Registered before the first read: a write landing in between marks
	// the watcher dirty and is picked up by the next read.
	w := s.watches.add(q.Collection)
	subCtx, cancel := context.WithCancel(s.ctx)

	active := &atomic.Bool{}
	active.Store(true)
	mu := &sync.Mutex{}
	sub := &Subscription{cancel: cancel, mu: mu, active: active}

	stop := context.AfterFunc(ctx, sub.Unsubscribe)
	context.AfterFunc(subCtx, func() {
		stop()
		s.watches.remove(w)
		s.log.Debug("Subscription removed", "collection", q.Collection, "id", w.id)
	})

	s.supervisor.Start(subCtx, &subscriptionWorker{
		name:    subscriptionName(q, w.id),
		store:   s,
		query:   q,
		watcher: w,
		fn:      fn,
		log:     s.log,
		mu:      mu,
		active:  active,
	})
	return sub, nil
}

// ActiveSubscriptions is the number of live listeners.
func (s *Store) ActiveSubscriptions() int {
	return s.watches.count()
}

// Close cancels every subscription and waits for their workers to return.
func (s *Store) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.cancel()
	s.supervisor.Wait()
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return errors.ErrStoreClosed
	}
	return ctx.Err()
}

// write runs fn in a read-write transaction, replaying it on Badger
// conflicts, then wakes up the watchers of collection.
func (s *Store) write(ctx context.Context, collection string, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt <= s.writeRetries; attempt++ {
		if err = s.check(ctx); err != nil {
			return err
		}
		err = s.db.Update(fn)
		if !stdErrors.Is(err, badger.ErrConflict) {
			break
		}
		s.log.Debug("Write conflict, retrying", "collection", collection, "attempt", attempt+1)
	}
	if err != nil {
		return err
	}
	s.watches.notify(collection)
	return nil
}

func applyWriteOptions(opts []WriteOption) writeOptions {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func readDoc(txn *badger.Txn, ref Ref) (*structpb.Struct, error) {
	item, err := txn.Get(ref.key())
	if stdErrors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", errors.ErrNotFound, ref)
	}
	if err != nil {
		return nil, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	data := &structpb.Struct{}
	if err := proto.Unmarshal(val, data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrInvalidDocument, ref, err)
	}
	return data, nil
}

func writeDoc(txn *badger.Txn, ref Ref, data *structpb.Struct) error {
	val, err := proto.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidDocument, err)
	}
	return txn.Set(ref.key(), val)
}
