// Package storagetest opens in-memory stores for tests.
package storagetest

import (
	"chat-sync/runtime/workers"
	"chat-sync/storage"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// SetupTestDB initializes an in-memory Badger instance closed with the test.
func SetupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewStore returns a store on a fresh in-memory database. Subscriptions
// are stopped before the database closes.
func NewStore(t *testing.T, opts ...storage.Option) *storage.Store {
	log := logs.GetLoggerFromLevel(slog.LevelWarn)
	db := SetupTestDB(t)
	store := storage.NewStore(db, log, workers.NewSupervisor(log, 10*time.Millisecond), opts...)
	t.Cleanup(store.Close)
	return store
}
