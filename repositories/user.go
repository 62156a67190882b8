//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-sync/domain/chat"
	"chat-sync/storage"
	"context"
	"log/slog"
)

const usersCollection = "users"

// IUserRepository is the user directory: one public {id, email} record per
// signed-in account, searchable by email prefix.
type IUserRepository interface {
	Upsert(ctx context.Context, user chat.User) error
	Get(ctx context.Context, id string) (chat.User, error)
	SearchByEmailRange(ctx context.Context, from, to, excludeEmail string) ([]chat.User, error)
}

type UserRepository struct {
	store *storage.Store
	log   *slog.Logger
}

func NewUserRepository(store *storage.Store, log *slog.Logger) IUserRepository {
	return &UserRepository{store: store, log: log}
}

// Upsert merges {id, email} into the user document, keeping any other field.
func (r *UserRepository) Upsert(ctx context.Context, user chat.User) error {
	return r.store.Set(ctx, storage.Doc(usersCollection, user.ID), toUserDocument(user), storage.WithMerge())
}

func (r *UserRepository) Get(ctx context.Context, id string) (chat.User, error) {
	doc, err := r.store.Get(ctx, storage.Doc(usersCollection, id))
	if err != nil {
		return chat.User{}, err
	}
	return fromUserDocument(doc)
}

// SearchByEmailRange returns users whose email is in [from, to), except excludeEmail.
// Malformed records are skipped.
func (r *UserRepository) SearchByEmailRange(ctx context.Context, from, to, excludeEmail string) ([]chat.User, error) {
	filters := []storage.Filter{
		storage.Where("email", storage.Gte, from),
		storage.Where("email", storage.Lt, to),
	}
	if excludeEmail != "" {
		filters = append(filters, storage.Where("email", storage.NotEq, excludeEmail))
	}
	docs, err := r.store.GetOnce(ctx, storage.Query{Collection: usersCollection, Filter: storage.And(filters...)})
	if err != nil {
		return nil, err
	}
	users := make([]chat.User, 0, len(docs))
	for _, doc := range docs {
		user, err := fromUserDocument(doc)
		if err != nil {
			r.log.Warn("Skipping malformed user", "id", doc.Ref.ID, "error", err)
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

func toUserDocument(user chat.User) map[string]any {
	return map[string]any{"id": user.ID, "email": user.Email}
}

func fromUserDocument(doc storage.Document) (chat.User, error) {
	fields := doc.Fields()
	id := fields.String("id")
	if id == "" {
		id = doc.Ref.ID
	}
	return chat.NewUser(id, fields.String("email"))
}
