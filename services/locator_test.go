package services_test

import (
	"chat-sync/domain/chat"
	"chat-sync/mocks"
	"chat-sync/observability"
	"chat-sync/repositories"
	"chat-sync/services"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func conversation(id string, createdAt chat.Millis) chat.Conversation {
	return chat.Conversation{ID: id, U1: alice, U2: bob, CreatedAt: createdAt, UpdatedAt: createdAt}
}

func TestConversationLocator_FindConversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockIConversationRepository(ctrl)
	metrics := observability.NewSyncMetrics()
	locator := services.NewConversationLocator(repo, metrics, logs.GetLoggerFromLevel(slog.LevelDebug))

	var watch repositories.ConversationsFunc
	repo.EXPECT().
		WatchPair(gomock.Any(), "a", "b", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, fn repositories.ConversationsFunc) (func(), error) {
			watch = fn
			return func() {}, nil
		})

	var delivered []*chat.Conversation
	stop, err := locator.FindConversation(ctx, "a", "b", func(c *chat.Conversation) { delivered = append(delivered, c) })
	req.NoError(err)
	defer stop()

	// No conversation yet
	watch(nil, nil)
	// A read error keeps the last state
	watch(nil, fmt.Errorf("unavailable"))
	// One conversation
	watch([]chat.Conversation{conversation("c2", 10)}, nil)
	// Duplicates: the oldest wins, ties broken by ID
	watch([]chat.Conversation{conversation("c2", 10), conversation("c9", 20), conversation("c1", 10)}, nil)

	req.Len(delivered, 3)
	req.Nil(delivered[0])
	req.Equal("c2", delivered[1].ID)
	req.Equal("c1", delivered[2].ID)
	req.Equal(uint64(1), metrics.GetLatest().DuplicateConversations)
	req.Equal(uint64(3), metrics.GetLatest().SnapshotsDelivered)
}

func TestConversationLocator_GetOrCreateConversationRef(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockIConversationRepository(ctrl)
	locator := services.NewConversationLocator(repo, nil, logs.GetLoggerFromLevel(slog.LevelDebug))

	handle := locator.GetOrCreateConversationRef("c1", alice, bob)
	req.Equal(services.ConversationHandle{ID: "c1", Exists: true, Self: alice, Other: bob}, handle)

	repo.EXPECT().NewID().Return("fresh")
	handle = locator.GetOrCreateConversationRef("", alice, bob)
	req.Equal(services.ConversationHandle{ID: "fresh", Exists: false, Self: alice, Other: bob}, handle)
}

func TestConversationLocator_FindDuplicates(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockIConversationRepository(ctrl)
	locator := services.NewConversationLocator(repo, nil, logs.GetLoggerFromLevel(slog.LevelDebug))

	repo.EXPECT().FindPair(gomock.Any(), "a", "b").Return([]chat.Conversation{conversation("c1", 1)}, nil)
	duplicates, err := locator.FindDuplicates(ctx, "a", "b")
	req.NoError(err)
	req.Empty(duplicates)

	repo.EXPECT().FindPair(gomock.Any(), "a", "b").Return([]chat.Conversation{conversation("c1", 1), conversation("c2", 2)}, nil)
	duplicates, err = locator.FindDuplicates(ctx, "a", "b")
	req.NoError(err)
	req.Len(duplicates, 2)
}

func TestOldest(t *testing.T) {
	req := require.New(t)
	req.Equal("b", services.Oldest([]chat.Conversation{conversation("c", 5), conversation("b", 1), conversation("a", 3)}).ID)
	req.Equal("a", services.Oldest([]chat.Conversation{conversation("b", 1), conversation("a", 1)}).ID)
}
