package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransform(t *testing.T) {
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	sentAt := time.Date(2026, 10, 17, 13, 5, 9, 0, time.UTC)

	tests := []struct {
		name      string
		msg       Message
		loc       *time.Location
		createdAt string
	}{
		{
			name:      "pending timestamp",
			msg:       Message{ID: "m1", ConversationID: "conv1", SenderEmail: "alice@x.com", Text: "hi"},
			loc:       time.UTC,
			createdAt: PendingTimestamp,
		},
		{
			name:      "utc",
			msg:       Message{ID: "m1", ConversationID: "conv1", SenderEmail: "alice@x.com", Text: "hi", SentAt: sentAt},
			loc:       time.UTC,
			createdAt: "10/17/2026, 1:05:09 PM",
		},
		{
			name:      "nil location is utc",
			msg:       Message{ID: "m1", ConversationID: "conv1", SenderEmail: "alice@x.com", Text: "hi", SentAt: sentAt},
			createdAt: "10/17/2026, 1:05:09 PM",
		},
		{
			name:      "user timezone",
			msg:       Message{ID: "m1", ConversationID: "conv1", SenderEmail: "alice@x.com", Text: "hi", SentAt: sentAt},
			loc:       newYork,
			createdAt: "10/17/2026, 9:05:09 AM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := Transform(tt.msg, tt.loc)
			assert.Equal(t, tt.createdAt, view.CreatedAt)
			assert.Equal(t, "m1", view.ID)
			assert.Equal(t, "conv1", view.ConversationID)
			assert.Equal(t, "alice@x.com", view.SenderEmail)
			assert.Equal(t, "hi", view.Text)
			assert.Contains(t, view.HTML, "hi")
			assert.Equal(t, view, Transform(tt.msg, tt.loc))
		})
	}
}

func TestTransformAllKeepsOrder(t *testing.T) {
	views := TransformAll([]Message{{ID: "a"}, {ID: "b"}}, nil)
	require.Len(t, views, 2)
	assert.Equal(t, "a", views[0].ID)
	assert.Equal(t, "b", views[1].ID)
	assert.NotNil(t, TransformAll(nil, nil))
}
