package docstore

import (
	"testing"
	"time"

	"github.com/klipach/chatter/chat"
	"github.com/klipach/chatter/contract"
	"github.com/stretchr/testify/assert"
)

func TestFromFirestoreMessage(t *testing.T) {
	sentAt := time.Date(2026, 10, 17, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		name     string
		doc      contract.FirestoreMessage
		expected chat.Message
	}{
		{
			name: "committed message",
			doc:  contract.FirestoreMessage{ConversationID: "conv1", SentAt: sentAt, Text: "hi", User: "alice@x.com"},
			expected: chat.Message{
				ID: "m1", ConversationID: "conv1", SenderEmail: "alice@x.com", Text: "hi", SentAt: sentAt,
			},
		},
		{
			name: "timestamp not assigned yet",
			doc:  contract.FirestoreMessage{ConversationID: "conv1", Text: "hi", User: "alice@x.com"},
			expected: chat.Message{
				ID: "m1", ConversationID: "conv1", SenderEmail: "alice@x.com", Text: "hi",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, fromFirestoreMessage("m1", tt.doc))
		})
	}
}

func TestToUser(t *testing.T) {
	seen := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	u := toUser("bob@x.com", contract.FirestoreUser{PhotoURL: "https://img/bob.png", LastSeen: seen})
	assert.Equal(t, chat.User{Email: "bob@x.com", PhotoURL: "https://img/bob.png", LastSeen: seen}, u)
}

func TestFieldNamesMatchQuery(t *testing.T) {
	q := chat.MessagesQuery("conv1")
	assert.Equal(t, "conversation_id", q.Field)
	assert.Equal(t, "sent_at", q.OrderBy)
}
