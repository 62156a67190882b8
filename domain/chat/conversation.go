package chat

import (
	"chat-sync/errors"
	"fmt"
)

// Conversation is the single shared document of a participant pair.
// U1 is whoever sent the first message, U2 the recipient.
type Conversation struct {
	ID        string
	U1        User
	U2        User
	Messages  []Message
	CreatedAt Millis
	UpdatedAt Millis
}

func NewConversation(id string, u1, u2 User, messages []Message, createdAt, updatedAt Millis) (Conversation, error) {
	if id == "" {
		return Conversation{}, fmt.Errorf("%w: missing id", errors.ErrInvalidConversation)
	}
	if err := validate.Struct(u1); err != nil {
		return Conversation{}, fmt.Errorf("%w: u1: %v", errors.ErrInvalidConversation, err)
	}
	if err := validate.Struct(u2); err != nil {
		return Conversation{}, fmt.Errorf("%w: u2: %v", errors.ErrInvalidConversation, err)
	}
	if u1.ID == u2.ID {
		return Conversation{}, errors.ErrSameParticipant
	}
	if updatedAt < createdAt {
		return Conversation{}, fmt.Errorf("%w: updatedAt %d before createdAt %d",
			errors.ErrInvalidConversation, updatedAt, createdAt)
	}
	return Conversation{
		ID:        id,
		U1:        u1,
		U2:        u2,
		Messages:  messages,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// Has reports whether userID is one of the two participants.
func (c Conversation) Has(userID string) bool {
	return c.U1.ID == userID || c.U2.ID == userID
}

// Other returns whichever stored participant is not selfID.
func (c Conversation) Other(selfID string) User {
	if c.U1.ID == selfID {
		return c.U2
	}
	return c.U1
}

// Last returns the most recent message in stored order, nil when empty.
func (c Conversation) Last() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	last := c.Messages[len(c.Messages)-1]
	return &last
}

func (c Conversation) PairKey() string {
	return PairKey(c.U1.ID, c.U2.ID)
}

// PairKey identifies an unordered pair: PairKey(a, b) == PairKey(b, a).
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("pair:%s:%s", a, b)
}
