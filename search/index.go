// Package search keeps a full-text index of the messages a user can see.
// The index is local and derived: it is fed from conversation snapshots and
// can be rebuilt from the store at any time.
package search

import (
	"chat-sync/domain/chat"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blugelabs/bluge"
)

const (
	fieldText             = "text"
	fieldConversation     = "conversation"
	fieldParticipant      = "participant"
	fieldParticipantEmail = "participant_email"
	fieldAuthor           = "author"
	fieldAuthorName       = "author_name"
	fieldCreatedAt        = "createdAt"
	fieldMessage          = "message"
)

// Hit is one matching message.
type Hit struct {
	ConversationID string
	MessageID      string
	AuthorID       string
	AuthorName     string
	Text           string
	CreatedAt      chat.Millis
	Score          float64
}

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMessageIndex wraps an open writer; Close closes it.
func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log, seen: make(map[string]struct{})}
}

// Consume indexes every message of the snapshot not indexed yet.
// Messages are immutable, so an indexed message never needs an update.
func (i *MessageIndex) Consume(_ context.Context, conversations []chat.Conversation) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	batch := bluge.NewBatch()
	var added []string
	for _, c := range conversations {
		for _, m := range c.Messages {
			id := documentID(c.ID, m.ID)
			if _, ok := i.seen[id]; ok {
				continue
			}
			doc := toDocument(id, c, m)
			batch.Update(doc.ID(), doc)
			added = append(added, id)
		}
	}
	if len(added) == 0 {
		return nil
	}
	if err := i.writer.Batch(batch); err != nil {
		return fmt.Errorf("index batch: %w", err)
	}
	for _, id := range added {
		i.seen[id] = struct{}{}
	}
	i.log.Debug("Messages indexed", "count", len(added))
	return nil
}

// Search matches q.Terms against message text, restricted to conversations
// selfID takes part in and, with q.With, to the ones shared with that email.
func (i *MessageIndex) Search(ctx context.Context, selfID string, q Query) ([]Hit, error) {
	if q.Terms == "" {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(q.Terms).SetField(fieldText)).
		AddMust(bluge.NewTermQuery(selfID).SetField(fieldParticipant))
	if q.With != "" {
		query.AddMust(bluge.NewTermQuery(q.With).SetField(fieldParticipantEmail))
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	var hits []Hit
	match, err := iterator.Next()
	for err == nil && match != nil {
		hit := Hit{Score: match.Score}
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldConversation:
				hit.ConversationID = string(value)
			case fieldMessage:
				hit.MessageID = string(value)
			case fieldAuthor:
				hit.AuthorID = string(value)
			case fieldAuthorName:
				hit.AuthorName = string(value)
			case fieldText:
				hit.Text = string(value)
			case fieldCreatedAt:
				if n, err := bluge.DecodeNumericFloat64(value); err == nil {
					hit.CreatedAt = chat.Millis(n)
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		hits = append(hits, hit)
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// Indexed is the number of messages indexed since the index was opened.
func (i *MessageIndex) Indexed() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.seen)
}

func (i *MessageIndex) Close() error {
	return i.writer.Close()
}

func documentID(conversationID, messageID string) string {
	return conversationID + "/" + messageID
}

func toDocument(id string, c chat.Conversation, m chat.Message) *bluge.Document {
	return bluge.NewDocument(id).
		AddField(bluge.NewTextField(fieldText, m.Text).StoreValue()).
		AddField(bluge.NewKeywordField(fieldConversation, c.ID).StoreValue()).
		AddField(bluge.NewKeywordField(fieldMessage, m.ID).StoreValue()).
		AddField(bluge.NewKeywordField(fieldParticipant, c.U1.ID)).
		AddField(bluge.NewKeywordField(fieldParticipant, c.U2.ID)).
		AddField(bluge.NewKeywordField(fieldParticipantEmail, c.U1.Email)).
		AddField(bluge.NewKeywordField(fieldParticipantEmail, c.U2.Email)).
		AddField(bluge.NewKeywordField(fieldAuthor, m.Author.ID).StoreValue()).
		AddField(bluge.NewKeywordField(fieldAuthorName, m.Author.DisplayName).StoreValue()).
		AddField(bluge.NewNumericField(fieldCreatedAt, float64(m.CreatedAt)).StoreValue())
}
