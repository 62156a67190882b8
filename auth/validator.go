package auth

import (
	"chat-sync/errors"
	stdErrors "errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Credentials are checked before any expensive cryptographic operation.
type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6,max=72"`
}

// ValidateCredentials maps validation failures to ErrInvalidEmail or ErrInvalidPassword.
func ValidateCredentials(c Credentials) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if stdErrors.As(err, &fieldErrors) && len(fieldErrors) > 0 && fieldErrors[0].Field() == "Email" {
		return errors.ErrInvalidEmail
	}
	return errors.ErrInvalidPassword
}
