// Package e2e runs whole-client scenarios: several signed-in clients
// sharing one store, the way devices share the hosted backend.
package e2e

import (
	"chat-sync/auth"
	"chat-sync/domain/chat"
	"chat-sync/observability"
	"chat-sync/projection"
	"chat-sync/repositories"
	"chat-sync/runtime"
	"chat-sync/runtime/workers"
	"chat-sync/services"
	"chat-sync/storage"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

var fastHasher = auth.Hasher{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

// Backend is the shared store every client talks to.
type Backend struct {
	DB            *badger.DB
	Store         *storage.Store
	Users         repositories.IUserRepository
	Accounts      repositories.IAccountRepository
	Conversations repositories.IConversationRepository
	Metrics       *observability.SyncMetrics
}

// Client is one signed-in device.
type Client struct {
	User       chat.User
	Provider   *auth.Provider
	Identity   *services.IdentityResolver
	Locator    *services.ConversationLocator
	MessageLog *services.MessageLog
	Engine     *runtime.Engine
}

type BaseSyncSuite struct {
	suite.Suite
	Config  Config
	Log     *slog.Logger
	Backend Backend
	clients []*Client
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSyncSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	s.Log = logs.GetLoggerFromString(s.Config.LogLevel)
}

func (s *BaseSyncSuite) SetupTest() {
	s.Backend = s.newBackend(true)
}

func (s *BaseSyncSuite) TearDownTest() {
	for _, c := range s.clients {
		c.Engine.Close()
	}
	s.clients = nil
	s.Backend.Store.Close()
	_ = s.Backend.DB.Close()
}

// WithPairGuard swaps the backend for one with the given pair guard mode.
func (s *BaseSyncSuite) WithPairGuard(enabled bool) {
	s.TearDownTest()
	s.Backend = s.newBackend(enabled)
}

func (s *BaseSyncSuite) newBackend(pairGuard bool) Backend {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	if s.Config.BadgerDir != "" {
		dir := fmt.Sprintf("%s-%d", s.T().Name(), time.Now().UnixNano())
		opts = badger.DefaultOptions(filepath.Join(s.Config.BadgerDir, dir)).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	s.Require().NoError(err)

	metrics := observability.NewSyncMetrics()
	supervisor := workers.NewSupervisor(s.Log, 10*time.Millisecond).
		OnRestart(func(string) { metrics.IncrWorkerRestarts() })
	store := storage.NewStore(db, s.Log, supervisor)
	metrics.WithSubscriptionGauge(store.ActiveSubscriptions)
	return Backend{
		DB:            db,
		Store:         store,
		Users:         repositories.NewUserRepository(store, s.Log),
		Accounts:      repositories.NewAccountRepository(store, s.Log),
		Conversations: repositories.NewConversationRepository(store, s.Log, pairGuard),
		Metrics:       metrics,
	}
}

// SignUp registers email and returns its signed-in client. now stamps
// the messages it sends.
func (s *BaseSyncSuite) SignUp(email string, now func() time.Time) *Client {
	b := s.Backend
	provider := auth.NewProvider(b.Accounts, fastHasher, auth.NewTokenIssuer("e2e-secret-0123456789", time.Hour), s.Log)
	identity := services.NewIdentityResolver(provider, b.Users, s.Log)
	identity.OnAuthChange(context.Background(), func(services.AuthState) {})

	session, err := provider.SignUp(context.Background(), email, "secret1")
	s.Require().NoError(err)

	locator := services.NewConversationLocator(b.Conversations, b.Metrics, s.Log)
	messageLog := services.NewMessageLog(b.Conversations, b.Metrics, s.Log, now)
	client := &Client{
		User:       session.User,
		Provider:   provider,
		Identity:   identity,
		Locator:    locator,
		MessageLog: messageLog,
		Engine: runtime.NewEngine(s.Log, locator, messageLog, b.Conversations,
			runtime.NewRegistry(), b.Metrics, projection.OrderArrival),
	}
	s.clients = append(s.clients, client)
	return client
}

// Step prints a colorized header for the scenario step in the test logs.
func (s *BaseSyncSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Clock returns a clock that starts at start and moves one second per call.
func Clock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}
