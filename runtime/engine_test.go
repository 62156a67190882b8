package runtime

import (
	"chat-sync/domain/chat"
	"chat-sync/errors"
	"chat-sync/mocks"
	"chat-sync/projection"
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEngine_OpenThread_Rejects_Self(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	_, err := f.engine(f.messageLog).OpenThread(context.Background(), alice, alice)
	req.ErrorIs(err, errors.ErrSameParticipant)
	req.Zero(f.registry.Count())
}

func TestEngine_OpenThread_Subscription_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	locator := mocks.NewMockIConversationLocator(ctrl)
	locator.EXPECT().FindConversation(gomock.Any(), alice.ID, bob.ID, gomock.Any()).
		Return(nil, stdErrors.New("store closed"))
	engine := NewEngine(f.log, locator, f.messageLog, f.repo, f.registry, f.metrics, projection.OrderArrival)

	_, err := engine.OpenThread(context.Background(), alice, bob)
	req.Error(err)
	req.Zero(engine.OpenViews())
}

func TestEngine_Tracks_Open_Views(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	engine := f.engine(f.messageLog)

	thread, err := engine.OpenThread(ctx, alice, bob)
	req.NoError(err)
	list, err := engine.OpenConversationList(ctx, alice)
	req.NoError(err)
	req.Equal(2, engine.OpenViews())
	req.Equal(2, engine.OpenViewsFor(alice.ID))
	req.Zero(engine.OpenViewsFor(bob.ID))

	thread.Close()
	req.Equal(1, engine.OpenViews())
	list.Close()
	list.Close()
	req.Zero(engine.OpenViews())

	engine.Close()
	req.Zero(f.metrics.GetLatest().LeakedViews)
}

func TestEngine_Close_Releases_Leaked_Views(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	engine := f.engine(f.messageLog)

	thread, err := engine.OpenThread(ctx, alice, bob)
	req.NoError(err)
	list, err := engine.OpenConversationList(ctx, bob)
	req.NoError(err)

	engine.Close()
	req.Zero(engine.OpenViews())
	req.Equal(uint64(2), f.metrics.GetLatest().LeakedViews)

	// Then the released views no longer follow the store
	_, err = thread.Send(ctx, chat.Draft{Text: "hi"})
	req.ErrorIs(err, errors.ErrViewClosed)
	c, err := chat.NewConversation("c1", alice, bob,
		[]chat.Message{{ID: "m1", Author: alice.Author(), Text: "late", CreatedAt: 1}}, 1, 1)
	req.NoError(err)
	req.NoError(f.repo.Create(ctx, c))
	time.Sleep(50 * time.Millisecond)
	req.Empty(list.Summaries())
}

func TestEngine_ConversationList_Follows_Sends(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	engine := f.engine(f.messageLog)
	defer engine.Close()

	list, err := engine.OpenConversationList(ctx, bob)
	req.NoError(err)
	defer list.Close()
	thread, err := engine.OpenThread(ctx, alice, bob)
	req.NoError(err)
	defer thread.Close()

	_, err = thread.Send(ctx, chat.Draft{Text: "hi"})
	req.NoError(err)
	_, err = thread.Send(ctx, chat.Draft{Text: "how are you"})
	req.NoError(err)

	req.Eventually(func() bool {
		rows := list.Summaries()
		return len(rows) == 1 && rows[0].Other == alice && rows[0].Last != nil && rows[0].Last.Text == "how are you"
	}, 2*time.Second, 10*time.Millisecond)
}
