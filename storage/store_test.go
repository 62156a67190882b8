package storage_test

import (
	"chat-sync/errors"
	"chat-sync/storage"
	"chat-sync/storage/storagetest"
	"context"
	stdErrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func TestStore_Set_Replace_And_Merge(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storagetest.NewStore(t)
	ref := storage.Ref{Collection: "users", ID: "alice"}

	// Given a document with a nested map
	req.NoError(store.Set(ctx, ref, map[string]any{
		"email":   "alice@x.com",
		"profile": map[string]any{"name": "Alice", "city": "Lyon"},
	}))

	// When merging a partial document
	req.NoError(store.Set(ctx, ref, map[string]any{
		"profile": map[string]any{"city": "Paris"},
	}, storage.WithMerge()))

	// Then untouched fields survive at every level
	doc, err := store.Get(ctx, ref)
	req.NoError(err)
	fields := doc.Fields()
	req.Equal("alice@x.com", fields.String("email"))
	req.Equal("Alice", fields.Map("profile").String("name"))
	req.Equal("Paris", fields.Map("profile").String("city"))

	// When setting without merge
	req.NoError(store.Set(ctx, ref, map[string]any{"email": "alice@y.com"}))

	// Then the document is replaced
	doc, err = store.Get(ctx, ref)
	req.NoError(err)
	req.Equal(storage.Fields{"email": "alice@y.com"}, doc.Fields())
}

func TestStore_Get_Missing(t *testing.T) {
	req := require.New(t)
	store := storagetest.NewStore(t)

	_, err := store.Get(context.Background(), storage.Ref{Collection: "users", ID: "nobody"})
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestStore_Create_Twice(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storagetest.NewStore(t)
	ref := storage.Ref{Collection: "conversations", ID: "c1"}

	req.NoError(store.Create(ctx, ref, map[string]any{"id": "c1"}))
	req.ErrorIs(store.Create(ctx, ref, map[string]any{"id": "c1"}), errors.ErrAlreadyExists)
}

func TestStore_Create_Unique_Key_Conflict(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storagetest.NewStore(t)

	// Given a document holding a unique key
	req.NoError(store.Create(ctx, storage.Ref{Collection: "conversations", ID: "c1"},
		map[string]any{"id": "c1"}, storage.WithUniqueKey("pair:a:b")))

	// When another document claims the same key
	err := store.Create(ctx, storage.Ref{Collection: "conversations", ID: "c2"},
		map[string]any{"id": "c2"}, storage.WithUniqueKey("pair:a:b"))

	// Then the creation is rejected with the holder
	req.ErrorIs(err, errors.ErrConflict)
	var conflict *storage.ConflictError
	req.True(stdErrors.As(err, &conflict))
	req.Equal("c1", conflict.DocumentID)
	_, err = store.Get(ctx, storage.Ref{Collection: "conversations", ID: "c2"})
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestStore_Create_Unique_Key_Concurrent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storagetest.NewStore(t, storage.WithWriteRetries(20))

	var wg sync.WaitGroup
	var created, conflicts atomic.Int32
	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := store.Create(ctx, storage.Ref{Collection: "conversations", ID: id},
				map[string]any{"id": id}, storage.WithUniqueKey("pair:a:b"))
			switch {
			case err == nil:
				created.Add(1)
			case stdErrors.Is(err, errors.ErrConflict):
				conflicts.Add(1)
			}
		}(id)
	}
	wg.Wait()

	req.Equal(int32(1), created.Load())
	req.Equal(int32(3), conflicts.Load())
	docs, err := store.GetOnce(ctx, storage.Query{Collection: "conversations"})
	req.NoError(err)
	req.Len(docs, 1)
}

func TestStore_Update_Array_Union_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storagetest.NewStore(t)
	ref := storage.Ref{Collection: "conversations", ID: "c1"}
	msg := map[string]any{"id": "m1", "text": "hi", "createdAt": 1000}

	req.NoError(store.Create(ctx, ref, map[string]any{"id": "c1", "messages": []any{}}))

	// When the same element is unioned twice
	req.NoError(store.Update(ctx, ref, storage.FieldUpdate{Path: "messages", Value: storage.ArrayUnion(msg)}))
	req.NoError(store.Update(ctx, ref, storage.FieldUpdate{Path: "messages", Value: storage.ArrayUnion(msg)}))

	// Then it is stored once
	doc, err := store.Get(ctx, ref)
	req.NoError(err)
	messages := doc.Fields().List("messages")
	req.Len(messages, 1)
	req.Equal("hi", messages[0].String("text"))

	// And a different element is appended after it
	req.NoError(store.Update(ctx, ref, storage.FieldUpdate{
		Path:  "messages",
		Value: storage.ArrayUnion(map[string]any{"id": "m2", "text": "yo", "createdAt": 2000}),
	}))
	doc, err = store.Get(ctx, ref)
	req.NoError(err)
	ids := lo.Map(doc.Fields().List("messages"), func(m storage.Fields, _ int) string { return m.String("id") })
	req.Equal([]string{"m1", "m2"}, ids)
}

func TestStore_Update_Maximum_Never_Decreases(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storagetest.NewStore(t)
	ref := storage.Ref{Collection: "conversations", ID: "c1"}

	req.NoError(store.Create(ctx, ref, map[string]any{"updatedAt": 2000}))

	req.NoError(store.Update(ctx, ref, storage.FieldUpdate{Path: "updatedAt", Value: storage.Maximum(1500)}))
	doc, err := store.Get(ctx, ref)
	req.NoError(err)
	req.Equal(int64(2000), doc.Fields().Int64("updatedAt"))

	req.NoError(store.Update(ctx, ref, storage.FieldUpdate{Path: "updatedAt", Value: storage.Maximum(3000)}))
	doc, err = store.Get(ctx, ref)
	req.NoError(err)
	req.Equal(int64(3000), doc.Fields().Int64("updatedAt"))
}

func TestStore_Update_Missing_Document(t *testing.T) {
	req := require.New(t)
	store := storagetest.NewStore(t)

	err := store.Update(context.Background(), storage.Ref{Collection: "conversations", ID: "nope"},
		storage.FieldUpdate{Path: "updatedAt", Value: 1})
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestStore_GetOnce_Filters(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storagetest.NewStore(t)
	seed := map[string]map[string]any{
		"c1": {"u1": map[string]any{"id": "a"}, "u2": map[string]any{"id": "b"}},
		"c2": {"u1": map[string]any{"id": "b"}, "u2": map[string]any{"id": "a"}},
		"c3": {"u1": map[string]any{"id": "a"}, "u2": map[string]any{"id": "c"}},
		"c4": {"u1": map[string]any{"id": "d"}},
	}
	for id, data := range seed {
		req.NoError(store.Set(ctx, storage.Ref{Collection: "conversations", ID: id}, data))
	}
	ids := func(docs []storage.Document) []string {
		return lo.Map(docs, func(d storage.Document, _ int) string { return d.Ref.ID })
	}

	// Pair query: (u1=a AND u2=b) OR (u1=b AND u2=a)
	docs, err := store.GetOnce(ctx, storage.Query{
		Collection: "conversations",
		Filter: storage.Or(
			storage.And(storage.Where("u1.id", storage.Eq, "a"), storage.Where("u2.id", storage.Eq, "b")),
			storage.And(storage.Where("u1.id", storage.Eq, "b"), storage.Where("u2.id", storage.Eq, "a")),
		),
	})
	req.NoError(err)
	req.Equal([]string{"c1", "c2"}, ids(docs))

	// Membership query, results in document ID order
	docs, err = store.GetOnce(ctx, storage.Query{
		Collection: "conversations",
		Filter:     storage.Or(storage.Where("u1.id", storage.Eq, "a"), storage.Where("u2.id", storage.Eq, "a")),
	})
	req.NoError(err)
	req.Equal([]string{"c1", "c2", "c3"}, ids(docs))

	// A missing field never matches, not even with !=
	docs, err = store.GetOnce(ctx, storage.Query{
		Collection: "conversations",
		Filter:     storage.Where("u2.id", storage.NotEq, "b"),
	})
	req.NoError(err)
	req.Equal([]string{"c2", "c3"}, ids(docs))
}

func TestStore_GetOnce_String_Range(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storagetest.NewStore(t)
	for id, email := range map[string]string{"1": "bob@y.com", "2": "bobby@y.com", "3": "alice@x.com", "4": "boc@z.com"} {
		req.NoError(store.Set(ctx, storage.Ref{Collection: "users", ID: id}, map[string]any{"email": email}))
	}

	docs, err := store.GetOnce(ctx, storage.Query{
		Collection: "users",
		Filter: storage.And(
			storage.Where("email", storage.Gte, "bob"),
			storage.Where("email", storage.Lt, "bob\uf8ff"),
		),
	})
	req.NoError(err)
	emails := lo.Map(docs, func(d storage.Document, _ int) string { return d.Fields().String("email") })
	req.Equal([]string{"bob@y.com", "bobby@y.com"}, emails)
}

func TestStore_GetOnce_Unsupported_Shapes(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storagetest.NewStore(t)

	_, err := store.GetOnce(ctx, storage.Query{Collection: "c",
		Filter: storage.And(storage.Or(storage.Where("a", storage.Eq, 1)))})
	req.ErrorIs(err, errors.ErrUnsupportedQuery)

	_, err = store.GetOnce(ctx, storage.Query{Collection: "c",
		Filter: storage.Or(storage.Or(storage.Where("a", storage.Eq, 1)))})
	req.ErrorIs(err, errors.ErrUnsupportedQuery)

	_, err = store.GetOnce(ctx, storage.Query{Collection: "c", Filter: storage.Where("a", "~", 1)})
	req.ErrorIs(err, errors.ErrUnsupportedQuery)

	_, err = store.GetOnce(ctx, storage.Query{Filter: storage.Where("a", storage.Eq, 1)})
	req.ErrorIs(err, errors.ErrUnsupportedQuery)
}

func TestStore_Subscribe_Delivers_Initial_And_Updates(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storagetest.NewStore(t)
	q := storage.Query{Collection: "conversations", Filter: storage.Where("u1.id", storage.Eq, "a")}

	var mu sync.Mutex
	var last []string
	var deliveries atomic.Int32
	sub, err := store.Subscribe(ctx, q, func(s storage.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		last = lo.Map(s.Documents, func(d storage.Document, _ int) string { return d.Ref.ID })
		deliveries.Add(1)
	})
	req.NoError(err)
	req.Equal(1, store.ActiveSubscriptions())

	// Then an initial, empty snapshot arrives
	req.Eventually(func() bool { return deliveries.Load() >= 1 }, waitFor, tick)

	// When matching and non matching documents are written
	req.NoError(store.Set(ctx, storage.Ref{Collection: "conversations", ID: "c1"}, map[string]any{"u1": map[string]any{"id": "a"}}))
	req.NoError(store.Set(ctx, storage.Ref{Collection: "conversations", ID: "c2"}, map[string]any{"u1": map[string]any{"id": "z"}}))

	// Then the latest snapshot holds only the match
	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 1 && last[0] == "c1"
	}, waitFor, tick)

	// When unsubscribing
	sub.Unsubscribe()
	sub.Unsubscribe()
	req.Eventually(func() bool { return store.ActiveSubscriptions() == 0 }, waitFor, tick)

	// Then no more snapshots are delivered
	count := deliveries.Load()
	req.NoError(store.Set(ctx, storage.Ref{Collection: "conversations", ID: "c3"}, map[string]any{"u1": map[string]any{"id": "a"}}))
	time.Sleep(50 * time.Millisecond)
	req.Equal(count, deliveries.Load())
}

func TestStore_Subscribe_Stops_With_Context(t *testing.T) {
	req := require.New(t)
	store := storagetest.NewStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := store.Subscribe(ctx, storage.Query{Collection: "users"}, func(storage.Snapshot) {})
	req.NoError(err)
	req.Equal(1, store.ActiveSubscriptions())

	cancel()
	req.Eventually(func() bool { return store.ActiveSubscriptions() == 0 }, waitFor, tick)
}

func TestStore_Subscribe_Survives_Panicking_Callback(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storagetest.NewStore(t)

	var calls atomic.Int32
	sub, err := store.Subscribe(ctx, storage.Query{Collection: "users"}, func(storage.Snapshot) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
	})
	req.NoError(err)
	defer sub.Unsubscribe()

	// The supervisor restarts the worker, which delivers again
	req.Eventually(func() bool { return calls.Load() >= 2 }, waitFor, tick)
	req.Equal(1, store.ActiveSubscriptions())
}

func TestStore_Closed(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storagetest.NewStore(t)

	_, err := store.Subscribe(ctx, storage.Query{Collection: "users"}, func(storage.Snapshot) {})
	req.NoError(err)

	store.Close()

	req.Eventually(func() bool { return store.ActiveSubscriptions() == 0 }, waitFor, tick)
	req.ErrorIs(store.Set(ctx, storage.Ref{Collection: "users", ID: "a"}, map[string]any{}), errors.ErrStoreClosed)
	_, err = store.Subscribe(ctx, storage.Query{Collection: "users"}, func(storage.Snapshot) {})
	req.ErrorIs(err, errors.ErrStoreClosed)
}
