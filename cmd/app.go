package main

import (
	"chat-sync/auth"
	"chat-sync/internal"
	"chat-sync/observability"
	"chat-sync/projection"
	"chat-sync/repositories"
	"chat-sync/runtime"
	"chat-sync/runtime/workers"
	"chat-sync/search"
	"chat-sync/services"
	"chat-sync/storage"
	"context"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
)

// app is every component of the client, wired once.
type app struct {
	log        *slog.Logger
	metrics    *observability.SyncMetrics
	supervisor *workers.Supervisor
	store      *storage.Store
	provider   *auth.Provider
	identity   *services.IdentityResolver
	index      *search.MessageIndex
	engine     *runtime.Engine
}

func newApp(log *slog.Logger, db *badger.DB, writer *bluge.Writer, config internal.Config, hasher auth.Hasher) (*app, error) {
	order, err := projection.ParseOrder(config.ConversationOrder)
	if err != nil {
		return nil, err
	}
	metrics := observability.NewSyncMetrics()
	supervisor := workers.NewSupervisor(log, config.RestartInterval).
		OnRestart(func(string) { metrics.IncrWorkerRestarts() })
	store := storage.NewStore(db, log, supervisor, storage.WithWriteRetries(config.WriteRetries))
	metrics.WithSubscriptionGauge(store.ActiveSubscriptions)

	users := repositories.NewUserRepository(store, log)
	accounts := repositories.NewAccountRepository(store, log)
	conversations := repositories.NewConversationRepository(store, log, config.ConversationPairGuard)

	provider := auth.NewProvider(accounts, hasher, auth.NewTokenIssuer(config.AuthTokenSecret, config.AuthTokenDuration), log)
	index := search.NewMessageIndex(writer, log)
	locator := services.NewConversationLocator(conversations, metrics, log)
	messageLog := services.NewMessageLog(conversations, metrics, log, time.Now)

	return &app{
		log:        log,
		metrics:    metrics,
		supervisor: supervisor,
		store:      store,
		provider:   provider,
		identity:   services.NewIdentityResolver(provider, users, log),
		index:      index,
		engine:     runtime.NewEngine(log, locator, messageLog, conversations, runtime.NewRegistry(), metrics, order, index),
	}, nil
}

// startReporter samples the process until ctx is done.
func (a *app) startReporter(ctx context.Context, interval time.Duration) {
	a.supervisor.Start(ctx, workers.NewResourceReporterWorker(a.log, a.metrics, interval))
}

// close releases views first so no callback runs on a closed store.
func (a *app) close() {
	a.engine.Close()
	a.store.Close()
	if err := a.index.Close(); err != nil {
		a.log.Warn("Closing search index failed", "error", err)
	}
}
