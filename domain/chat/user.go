// Package chat contains the core concepts of a 1:1 conversation.
// Values are validated when built, never discovered half-filled at read time.
// No runtime, storage or UI logic should be added here.
package chat

import (
	"chat-sync/errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// User is a directory entry. Conversations embed copies of it, so a later
// email change does not rewrite the participants of existing threads.
type User struct {
	ID    string `validate:"required"`
	Email string `validate:"required,email"`
}

func NewUser(id, email string) (User, error) {
	user := User{ID: strings.TrimSpace(id), Email: NormalizeEmail(email)}
	if err := validate.Struct(user); err != nil {
		return User{}, fmt.Errorf("%w: %v", errors.ErrInvalidUser, err)
	}
	return user, nil
}

// NormalizeEmail lower-cases the address: the directory is searched with a
// lower-cased prefix, so every stored email must be lower-case too.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Author returns the user as it is stamped on an outgoing message.
func (u User) Author() Author {
	return Author{ID: u.ID, DisplayName: u.Email}
}
