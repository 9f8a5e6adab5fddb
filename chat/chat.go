// Package chat holds the conversation and message rules shared by every
// transport: recipient resolution, the message query, the message
// transformer, conversation creation and sending.
package chat

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNotParticipant = errors.New("not a conversation participant")
	ErrEmptyMessage   = errors.New("empty message")

	errEmptyRecipient   = errors.New("empty recipient")
	errInvalidEmail     = errors.New("invalid email")
	errSelfConversation = errors.New("conversation with self")
	errAlreadyExists    = errors.New("conversation already exists")
)

// User is a profile document keyed by email.
type User struct {
	Email    string
	PhotoURL string
	// LastSeen is zero when the user never sent a message.
	LastSeen time.Time
}

type Conversation struct {
	ID    string   `json:"id"`
	Users []string `json:"users"`
}

// Message is the persisted record. SentAt is zero until the store assigned
// the server timestamp.
type Message struct {
	ID             string
	ConversationID string
	SenderEmail    string
	Text           string
	SentAt         time.Time
}

// Store is the persistence boundary. Every backend (Firestore, Postgres,
// memory) implements it.
type Store interface {
	User(ctx context.Context, email string) (User, error)
	UpsertUser(ctx context.Context, u User) error
	TouchLastSeen(ctx context.Context, email string) error

	Conversation(ctx context.Context, id string) (Conversation, error)
	Conversations(ctx context.Context, user string) ([]Conversation, error)
	WatchConversations(ctx context.Context, user string) *Subscription[Conversation]
	AddConversation(ctx context.Context, users []string) (Conversation, error)

	Messages(ctx context.Context, q MessageQuery) ([]Message, error)
	WatchMessages(ctx context.Context, q MessageQuery) *Subscription[Message]
	AddMessage(ctx context.Context, m Message) (Message, error)
}

func isParticipant(c Conversation, email string) bool {
	for _, u := range c.Users {
		if u == email {
			return true
		}
	}
	return false
}
