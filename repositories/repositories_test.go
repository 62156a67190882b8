package repositories

import (
	"chat-sync/domain/chat"
	"chat-sync/errors"
	"chat-sync/storage"
	"chat-sync/storage/storagetest"
	"context"
	stdErrors "errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

var (
	alice = chat.User{ID: "a", Email: "alice@x.com"}
	bob   = chat.User{ID: "b", Email: "bob@y.com"}
	carol = chat.User{ID: "c", Email: "carol@z.com"}
)

func newConversation(t *testing.T, id string, u1, u2 chat.User, at chat.Millis, texts ...string) chat.Conversation {
	messages := lo.Map(texts, func(text string, i int) chat.Message {
		return chat.Message{ID: id + "-m" + string(rune('0'+i)), Author: u1.Author(), Text: text, CreatedAt: at}
	})
	c, err := chat.NewConversation(id, u1, u2, messages, at, at)
	require.NoError(t, err)
	return c
}

func TestUserRepository_Upsert_Merges(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storagetest.NewStore(t)
	repo := NewUserRepository(store, logs.GetLoggerFromLevel(slog.LevelDebug))

	// Given a user record carrying an extra field
	req.NoError(store.Set(ctx, storage.Doc(usersCollection, "a"), map[string]any{"id": "a", "email": "old@x.com", "avatar": "cat.png"}))

	// When the identity is upserted
	req.NoError(repo.Upsert(ctx, alice))

	// Then the email is updated and the extra field kept
	user, err := repo.Get(ctx, "a")
	req.NoError(err)
	req.Equal(alice, user)
	doc, err := store.Get(ctx, storage.Doc(usersCollection, "a"))
	req.NoError(err)
	req.Equal("cat.png", doc.Fields().String("avatar"))
}

func TestUserRepository_SearchByEmailRange(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewUserRepository(storagetest.NewStore(t), logs.GetLoggerFromLevel(slog.LevelDebug))
	for _, u := range []chat.User{alice, bob, {ID: "bb", Email: "bobby@y.com"}, carol} {
		req.NoError(repo.Upsert(ctx, u))
	}

	users, err := repo.SearchByEmailRange(ctx, "bob", "bob\uf8ff", "bob@y.com")
	req.NoError(err)
	req.Equal([]chat.User{{ID: "bb", Email: "bobby@y.com"}}, users)
}

func TestAccountRepository_Create_And_Lookup(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewAccountRepository(storagetest.NewStore(t), logs.GetLoggerFromLevel(slog.LevelDebug))

	account, err := repo.Create(ctx, "alice@x.com", "hash")
	req.NoError(err)
	req.NotEmpty(account.ID)

	byEmail, err := repo.GetByEmail(ctx, "alice@x.com")
	req.NoError(err)
	req.Equal(account.ID, byEmail.ID)
	req.Equal("hash", byEmail.PasswordHash)
	req.WithinDuration(account.CreatedAt, byEmail.CreatedAt, time.Second)

	byID, err := repo.Get(ctx, account.ID)
	req.NoError(err)
	req.Equal("alice@x.com", byID.Email)

	_, err = repo.Create(ctx, "alice@x.com", "other")
	req.ErrorIs(err, errors.ErrEmailAlreadyInUse)

	_, err = repo.GetByEmail(ctx, "nobody@x.com")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestConversationRepository_Roundtrip_And_Append(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewConversationRepository(storagetest.NewStore(t), logs.GetLoggerFromLevel(slog.LevelDebug), true)
	conversation := newConversation(t, repo.NewID(), alice, bob, 1000, "hi")

	req.NoError(repo.Create(ctx, conversation))

	stored, err := repo.Get(ctx, conversation.ID)
	req.NoError(err)
	req.Equal(conversation, stored)

	// Appending the same message twice stores it once
	reply := chat.Message{ID: "r1", Author: bob.Author(), Text: "how are you", CreatedAt: 2000}
	req.NoError(repo.Append(ctx, conversation.ID, reply))
	req.NoError(repo.Append(ctx, conversation.ID, reply))

	// An older clock never moves updatedAt backwards
	late := chat.Message{ID: "r2", Author: alice.Author(), Text: "skewed", CreatedAt: 1500}
	req.NoError(repo.Append(ctx, conversation.ID, late))

	stored, err = repo.Get(ctx, conversation.ID)
	req.NoError(err)
	req.Equal([]string{"hi", "how are you", "skewed"}, lo.Map(stored.Messages, func(m chat.Message, _ int) string { return m.Text }))
	req.Equal(chat.Millis(2000), stored.UpdatedAt)
}

func TestConversationRepository_Pair_Guard(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewConversationRepository(storagetest.NewStore(t), logs.GetLoggerFromLevel(slog.LevelDebug), true)

	first := newConversation(t, "c1", alice, bob, 1000, "hi")
	req.NoError(repo.Create(ctx, first))

	// The reverse pair is the same pair
	err := repo.Create(ctx, newConversation(t, "c2", bob, alice, 1001, "hey"))
	var conflict *storage.ConflictError
	req.True(stdErrors.As(err, &conflict))
	req.Equal("c1", conflict.DocumentID)

	// Another pair is unaffected
	req.NoError(repo.Create(ctx, newConversation(t, "c3", alice, carol, 1002, "yo")))
}

func TestConversationRepository_Without_Pair_Guard_Allows_Duplicates(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewConversationRepository(storagetest.NewStore(t), logs.GetLoggerFromLevel(slog.LevelDebug), false)

	req.NoError(repo.Create(ctx, newConversation(t, "c1", alice, bob, 1000, "hi")))
	req.NoError(repo.Create(ctx, newConversation(t, "c2", bob, alice, 1001, "hey")))

	found, err := repo.FindPair(ctx, "a", "b")
	req.NoError(err)
	req.Len(found, 2)

	// findConversation is symmetric
	reversed, err := repo.FindPair(ctx, "b", "a")
	req.NoError(err)
	req.Equal(found, reversed)
}

func TestConversationRepository_WatchForUser(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewConversationRepository(storagetest.NewStore(t), logs.GetLoggerFromLevel(slog.LevelDebug), true)

	var mu sync.Mutex
	var ids []string
	stop, err := repo.WatchForUser(ctx, "b", func(conversations []chat.Conversation, err error) {
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		ids = lo.Map(conversations, func(c chat.Conversation, _ int) string { return c.ID })
	})
	req.NoError(err)
	defer stop()

	req.NoError(repo.Create(ctx, newConversation(t, "c1", alice, bob, 1000, "hi")))
	req.NoError(repo.Create(ctx, newConversation(t, "c2", bob, carol, 1000, "hey")))
	req.NoError(repo.Create(ctx, newConversation(t, "c3", alice, carol, 1000, "yo")))

	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ids) == 2 && ids[0] == "c1" && ids[1] == "c2"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConversationRepository_Skips_Malformed_Documents(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storagetest.NewStore(t)
	repo := NewConversationRepository(store, logs.GetLoggerFromLevel(slog.LevelDebug), true)

	req.NoError(repo.Create(ctx, newConversation(t, "c1", alice, bob, 1000, "hi")))
	req.NoError(store.Set(ctx, storage.Doc(conversationsCollection, "c0"), map[string]any{
		"u1": map[string]any{"id": "a", "email": "alice@x.com"},
		"u2": map[string]any{"id": "b"},
	}))

	found, err := repo.FindPair(ctx, "a", "b")
	req.NoError(err)
	req.Len(found, 1)
	req.Equal("c1", found[0].ID)

	_, err = repo.Get(ctx, "c0")
	req.ErrorIs(err, errors.ErrInvalidUser)
}
