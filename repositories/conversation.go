//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"chat-sync/domain/chat"
	"chat-sync/storage"
	"context"
	"log/slog"

	"github.com/samber/lo"
)

const conversationsCollection = "conversations"

// ConversationsFunc receives the full, decoded result set of a watch.
// err is set when the store could not evaluate the query.
type ConversationsFunc func(conversations []chat.Conversation, err error)

type IConversationRepository interface {
	NewID() string
	Create(ctx context.Context, conversation chat.Conversation) error
	Append(ctx context.Context, conversationID string, message chat.Message) error
	Get(ctx context.Context, id string) (chat.Conversation, error)
	FindPair(ctx context.Context, a, b string) ([]chat.Conversation, error)
	WatchPair(ctx context.Context, a, b string, fn ConversationsFunc) (func(), error)
	WatchForUser(ctx context.Context, userID string, fn ConversationsFunc) (func(), error)
}

type ConversationRepository struct {
	store     *storage.Store
	log       *slog.Logger
	pairGuard bool
}

// NewConversationRepository builds the repository. With pairGuard, Create
// claims the participant pair key, so a second conversation for the same
// pair fails with a *storage.ConflictError naming the first one.
func NewConversationRepository(store *storage.Store, log *slog.Logger, pairGuard bool) IConversationRepository {
	return &ConversationRepository{store: store, log: log, pairGuard: pairGuard}
}

func (r *ConversationRepository) NewID() string {
	return storage.NewDoc(conversationsCollection).ID
}

func (r *ConversationRepository) Create(ctx context.Context, conversation chat.Conversation) error {
	var opts []storage.WriteOption
	if r.pairGuard {
		opts = append(opts, storage.WithUniqueKey(conversation.PairKey()))
	}
	return r.store.Create(ctx, storage.Doc(conversationsCollection, conversation.ID), toConversationDocument(conversation), opts...)
}

// Append adds message to the conversation if no equal element is there yet,
// and moves updatedAt forward to the message instant, never backwards.
func (r *ConversationRepository) Append(ctx context.Context, conversationID string, message chat.Message) error {
	return r.store.Update(ctx, storage.Doc(conversationsCollection, conversationID),
		storage.FieldUpdate{Path: "messages", Value: storage.ArrayUnion(toMessageValue(message))},
		storage.FieldUpdate{Path: "updatedAt", Value: storage.Maximum(float64(message.CreatedAt))},
	)
}

func (r *ConversationRepository) Get(ctx context.Context, id string) (chat.Conversation, error) {
	doc, err := r.store.Get(ctx, storage.Doc(conversationsCollection, id))
	if err != nil {
		return chat.Conversation{}, err
	}
	return fromConversationDocument(doc)
}

func (r *ConversationRepository) FindPair(ctx context.Context, a, b string) ([]chat.Conversation, error) {
	docs, err := r.store.GetOnce(ctx, pairQuery(a, b))
	if err != nil {
		return nil, err
	}
	return r.decode(docs), nil
}

// WatchPair follows the conversations between a and b, whichever of the two
// sent the first message.
func (r *ConversationRepository) WatchPair(ctx context.Context, a, b string, fn ConversationsFunc) (func(), error) {
	return r.watch(ctx, pairQuery(a, b), fn)
}

// WatchForUser follows every conversation userID takes part in.
func (r *ConversationRepository) WatchForUser(ctx context.Context, userID string, fn ConversationsFunc) (func(), error) {
	return r.watch(ctx, storage.Query{
		Collection: conversationsCollection,
		Filter: storage.Or(
			storage.Where("u1.id", storage.Eq, userID),
			storage.Where("u2.id", storage.Eq, userID),
		),
	}, fn)
}

func (r *ConversationRepository) watch(ctx context.Context, q storage.Query, fn ConversationsFunc) (func(), error) {
	sub, err := r.store.Subscribe(ctx, q, func(snapshot storage.Snapshot) {
		if snapshot.Err != nil {
			fn(nil, snapshot.Err)
			return
		}
		fn(r.decode(snapshot.Documents), nil)
	})
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

// decode keeps the conversations that pass construction and logs the others.
func (r *ConversationRepository) decode(docs []storage.Document) []chat.Conversation {
	conversations := make([]chat.Conversation, 0, len(docs))
	for _, doc := range docs {
		conversation, err := fromConversationDocument(doc)
		if err != nil {
			r.log.Warn("Skipping malformed conversation", "id", doc.Ref.ID, "error", err)
			continue
		}
		conversations = append(conversations, conversation)
	}
	return conversations
}

func pairQuery(a, b string) storage.Query {
	return storage.Query{
		Collection: conversationsCollection,
		Filter: storage.Or(
			storage.And(storage.Where("u1.id", storage.Eq, a), storage.Where("u2.id", storage.Eq, b)),
			storage.And(storage.Where("u1.id", storage.Eq, b), storage.Where("u2.id", storage.Eq, a)),
		),
	}
}

// toConversationDocument must only produce values structpb accepts:
// arrays are []any, never typed slices.
func toConversationDocument(c chat.Conversation) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"u1":        toParticipantValue(c.U1),
		"u2":        toParticipantValue(c.U2),
		"messages":  lo.Map(c.Messages, func(m chat.Message, _ int) any { return toMessageValue(m) }),
		"createdAt": int64(c.CreatedAt),
		"updatedAt": int64(c.UpdatedAt),
	}
}

func toParticipantValue(u chat.User) map[string]any {
	return map[string]any{"id": u.ID, "email": u.Email}
}

func toMessageValue(m chat.Message) map[string]any {
	return map[string]any{
		"id":        m.ID,
		"author":    map[string]any{"id": m.Author.ID, "displayName": m.Author.DisplayName},
		"text":      m.Text,
		"createdAt": int64(m.CreatedAt),
	}
}

func fromConversationDocument(doc storage.Document) (chat.Conversation, error) {
	fields := doc.Fields()
	u1, err := fromParticipantValue(fields.Map("u1"))
	if err != nil {
		return chat.Conversation{}, err
	}
	u2, err := fromParticipantValue(fields.Map("u2"))
	if err != nil {
		return chat.Conversation{}, err
	}
	rawMessages := fields.List("messages")
	messages := make([]chat.Message, 0, len(rawMessages))
	for _, raw := range rawMessages {
		message, err := fromMessageValue(raw)
		if err != nil {
			return chat.Conversation{}, err
		}
		messages = append(messages, message)
	}
	return chat.NewConversation(doc.Ref.ID, u1, u2, messages,
		chat.Millis(fields.Int64("createdAt")), chat.Millis(fields.Int64("updatedAt")))
}

func fromParticipantValue(fields storage.Fields) (chat.User, error) {
	return chat.NewUser(fields.String("id"), fields.String("email"))
}

func fromMessageValue(fields storage.Fields) (chat.Message, error) {
	author := fields.Map("author")
	return chat.NewMessage(
		fields.String("id"),
		chat.Author{ID: author.String("id"), DisplayName: author.String("displayName")},
		fields.String("text"),
		chat.Millis(fields.Int64("createdAt")),
	)
}
