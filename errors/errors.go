package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Store
	ErrNotFound         = fmt.Errorf("document not found")
	ErrAlreadyExists    = fmt.Errorf("document already exists")
	ErrConflict         = fmt.Errorf("unique key already taken")
	ErrUnsupportedQuery = fmt.Errorf("unsupported query shape")
	ErrStoreClosed      = fmt.Errorf("store is closed")
	ErrInvalidDocument  = fmt.Errorf("invalid document")

	// Domain construction
	ErrInvalidUser         = fmt.Errorf("invalid user")
	ErrInvalidMessage      = fmt.Errorf("invalid message")
	ErrInvalidConversation = fmt.Errorf("invalid conversation")
	ErrSameParticipant     = fmt.Errorf("a conversation needs two distinct participants")

	// Writes
	ErrWriteFailure = fmt.Errorf("unable to send message")

	// Auth
	ErrInvalidCredentials = fmt.Errorf("invalid email or password")
	ErrEmailAlreadyInUse  = fmt.Errorf("email already in use")
	ErrInvalidPassword    = fmt.Errorf("password must be between 6 and 72 characters")
	ErrInvalidEmail       = fmt.Errorf("invalid email")
	ErrTokenGeneration    = fmt.Errorf("failed to generate session token")
	ErrInvalidToken       = fmt.Errorf("invalid session token")
	ErrUnauthenticated    = fmt.Errorf("not signed in")

	// Views
	ErrViewClosed = fmt.Errorf("view is closed")
)
