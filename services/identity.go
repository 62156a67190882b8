package services

import (
	"chat-sync/auth"
	"chat-sync/domain/chat"
	"chat-sync/repositories"
	"context"
	"log/slog"
	"strings"

	"github.com/samber/lo"
)

// prefixEnd closes a prefix range: every string starting with p sorts
// before p + prefixEnd.
const prefixEnd = "\uf8ff"

// AuthState is the identity the UI should render for. A zero AuthState
// means signed out.
type AuthState struct {
	User *chat.User
}

func (s AuthState) Authenticated() bool {
	return s.User != nil
}

type IIdentityResolver interface {
	OnAuthChange(ctx context.Context, fn func(AuthState)) func()
	SearchUsersByEmailPrefix(ctx context.Context, self chat.User, prefix string) ([]chat.User, error)
}

type IdentityResolver struct {
	provider auth.IProvider
	users    repositories.IUserRepository
	log      *slog.Logger
}

func NewIdentityResolver(provider auth.IProvider, users repositories.IUserRepository, log *slog.Logger) *IdentityResolver {
	return &IdentityResolver{provider: provider, users: users, log: log}
}

// OnAuthChange publishes the signed-in user to the directory, then hands
// the new state to fn. A failed publish is logged: the user stays signed in
// but is not yet discoverable by search.
func (r *IdentityResolver) OnAuthChange(ctx context.Context, fn func(AuthState)) func() {
	return r.provider.OnSessionChange(func(session *auth.Session) {
		if session == nil {
			fn(AuthState{})
			return
		}
		user := session.User
		if err := r.users.Upsert(ctx, user); err != nil {
			r.log.Warn("Unable to publish user to directory", "user_id", user.ID, "error", err)
		}
		fn(AuthState{User: &user})
	})
}

// SearchUsersByEmailPrefix finds users whose email starts with prefix.
// Matching is by prefix only: "bob" does not find "alicebob@x.com".
func (r *IdentityResolver) SearchUsersByEmailPrefix(ctx context.Context, self chat.User, prefix string) ([]chat.User, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, nil
	}
	users, err := r.users.SearchByEmailRange(ctx, prefix, prefix+prefixEnd, self.Email)
	if err != nil {
		return nil, err
	}
	return lo.Filter(users, func(u chat.User, _ int) bool {
		return u.ID != self.ID && u.Email != self.Email
	}), nil
}
