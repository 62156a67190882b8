//go:generate go run go.uber.org/mock/mockgen -source=account.go -destination=../mocks/mock_account_repository.go -package=mocks
package repositories

import (
	"chat-sync/errors"
	"chat-sync/storage"
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"
)

const accountsCollection = "accounts"

type IAccountRepository interface {
	Create(ctx context.Context, email, passwordHash string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	Get(ctx context.Context, id string) (Account, error)
}

// Account is the private credential record behind a user.
// It never leaves the auth provider.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type AccountRepository struct {
	store *storage.Store
	log   *slog.Logger
}

func NewAccountRepository(store *storage.Store, log *slog.Logger) IAccountRepository {
	return &AccountRepository{store: store, log: log}
}

// Create persists a new account. The email is a unique key of the
// collection, so two sign-ups with the same email cannot both succeed.
func (r *AccountRepository) Create(ctx context.Context, email, passwordHash string) (Account, error) {
	ref := storage.NewDoc(accountsCollection)
	account := Account{ID: ref.ID, Email: email, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	err := r.store.Create(ctx, ref, toAccountDocument(account), storage.WithUniqueKey(email))
	if stdErrors.Is(err, errors.ErrConflict) {
		return Account{}, errors.ErrEmailAlreadyInUse
	}
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	docs, err := r.store.GetOnce(ctx, storage.Query{
		Collection: accountsCollection,
		Filter:     storage.Where("email", storage.Eq, email),
	})
	if err != nil {
		return Account{}, err
	}
	if len(docs) == 0 {
		return Account{}, fmt.Errorf("%w: account %s", errors.ErrNotFound, email)
	}
	return fromAccountDocument(docs[0]), nil
}

func (r *AccountRepository) Get(ctx context.Context, id string) (Account, error) {
	doc, err := r.store.Get(ctx, storage.Doc(accountsCollection, id))
	if err != nil {
		return Account{}, err
	}
	return fromAccountDocument(doc), nil
}

func toAccountDocument(account Account) map[string]any {
	return map[string]any{
		"id":           account.ID,
		"email":        account.Email,
		"passwordHash": account.PasswordHash,
		"createdAt":    account.CreatedAt.UnixMilli(),
	}
}

func fromAccountDocument(doc storage.Document) Account {
	fields := doc.Fields()
	return Account{
		ID:           doc.Ref.ID,
		Email:        fields.String("email"),
		PasswordHash: fields.String("passwordHash"),
		CreatedAt:    time.UnixMilli(fields.Int64("createdAt")).UTC(),
	}
}
