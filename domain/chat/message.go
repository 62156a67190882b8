package chat

import (
	"chat-sync/errors"
	"fmt"
	"strings"
	"time"
)

// Millis is an epoch-millisecond instant read from the sender's clock.
type Millis int64

func MillisOf(t time.Time) Millis {
	return Millis(t.UnixMilli())
}

func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m)).UTC()
}

type Author struct {
	ID          string `validate:"required"`
	DisplayName string
}

// Message is immutable once appended to a conversation.
// ID is unique per originating client only.
type Message struct {
	ID        string `validate:"required"`
	Author    Author
	Text      string `validate:"required"`
	CreatedAt Millis `validate:"gt=0"`
}

func NewMessage(id string, author Author, text string, createdAt Millis) (Message, error) {
	message := Message{ID: id, Author: author, Text: text, CreatedAt: createdAt}
	if strings.TrimSpace(text) == "" {
		return Message{}, fmt.Errorf("%w: text is blank", errors.ErrInvalidMessage)
	}
	if err := validate.Struct(message); err != nil {
		return Message{}, fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
	}
	return message, nil
}

// Draft is what the composer hands over before the message is stamped.
// An empty ID is replaced by a fresh one when the draft is prepared.
type Draft struct {
	ID   string
	Text string
}
