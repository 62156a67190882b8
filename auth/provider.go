//go:generate go run go.uber.org/mock/mockgen -source=provider.go -destination=../mocks/mock_provider.go -package=mocks
package auth

import (
	"chat-sync/domain/chat"
	"chat-sync/errors"
	"chat-sync/repositories"
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
)

// Session is an authenticated identity and the token that restores it.
type Session struct {
	User  chat.User
	Token string
}

// SessionFunc receives the current session, nil once signed out.
type SessionFunc func(session *Session)

// IProvider is the local email/password authentication provider.
type IProvider interface {
	SignUp(ctx context.Context, email, password string) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignOut()
	Restore(ctx context.Context, token string) (Session, error)
	CurrentSession() *Session
	OnSessionChange(fn SessionFunc) func()
}

type Provider struct {
	accounts repositories.IAccountRepository
	hasher   Hasher
	tokens   TokenIssuer
	log      *slog.Logger

	mu        sync.Mutex
	session   *Session
	nextID    int
	listeners map[int]SessionFunc
	order     []int
}

func NewProvider(accounts repositories.IAccountRepository, hasher Hasher, tokens TokenIssuer, log *slog.Logger) *Provider {
	return &Provider{
		accounts:  accounts,
		hasher:    hasher,
		tokens:    tokens,
		log:       log,
		listeners: make(map[int]SessionFunc),
	}
}

// SignUp creates the account and opens a session for it.
func (p *Provider) SignUp(ctx context.Context, email, password string) (Session, error) {
	email = chat.NormalizeEmail(email)
	if err := ValidateCredentials(Credentials{Email: email, Password: password}); err != nil {
		return Session{}, err
	}
	hash, err := p.hasher.Hash(password)
	if err != nil {
		return Session{}, fmt.Errorf("hashing failed: %w", err)
	}
	account, err := p.accounts.Create(ctx, email, hash)
	if err != nil {
		return Session{}, err
	}
	p.log.Info("Account created", "user_id", account.ID)
	return p.open(account)
}

// SignIn never tells an unknown email from a wrong password.
func (p *Provider) SignIn(ctx context.Context, email, password string) (Session, error) {
	account, err := p.accounts.GetByEmail(ctx, chat.NormalizeEmail(email))
	if stdErrors.Is(err, errors.ErrNotFound) {
		return Session{}, errors.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	match, err := p.hasher.Compare(password, account.PasswordHash)
	if err != nil || !match {
		return Session{}, errors.ErrInvalidCredentials
	}
	return p.open(account)
}

// Restore reopens the session a token was issued for.
func (p *Provider) Restore(ctx context.Context, token string) (Session, error) {
	claims, err := p.tokens.Parse(token)
	if err != nil {
		return Session{}, err
	}
	account, err := p.accounts.Get(ctx, claims.UserID)
	if stdErrors.Is(err, errors.ErrNotFound) {
		return Session{}, errors.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	return p.open(account)
}

func (p *Provider) SignOut() {
	p.mu.Lock()
	wasSignedIn := p.session != nil
	p.session = nil
	p.mu.Unlock()

	if wasSignedIn {
		p.notify(nil)
	}
}

func (p *Provider) CurrentSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	session := *p.session
	return &session
}

// OnSessionChange calls fn right away with the current session, then on
// every sign-in and sign-out, in registration order. The returned function
// removes the listener.
func (p *Provider) OnSessionChange(fn SessionFunc) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners[id] = fn
	p.order = append(p.order, id)
	current := p.session
	p.mu.Unlock()

	fn(copySession(current))

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.listeners, id)
			for i, v := range p.order {
				if v == id {
					p.order = append(p.order[:i], p.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (p *Provider) open(account repositories.Account) (Session, error) {
	user, err := chat.NewUser(account.ID, account.Email)
	if err != nil {
		return Session{}, err
	}
	token, err := p.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	session := Session{User: user, Token: token}

	p.mu.Lock()
	p.session = &session
	p.mu.Unlock()

	p.notify(&session)
	return session, nil
}

// notify runs listeners outside the lock so they may call back into the provider.
func (p *Provider) notify(session *Session) {
	p.mu.Lock()
	listeners := make([]SessionFunc, 0, len(p.order))
	for _, id := range p.order {
		listeners = append(listeners, p.listeners[id])
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(copySession(session))
	}
}

func copySession(session *Session) *Session {
	if session == nil {
		return nil
	}
	c := *session
	return &c
}
