package chat

import (
	"time"

	"github.com/klipach/chatter/render"
)

const (
	// PendingTimestamp is shown while the server timestamp is not assigned yet.
	PendingTimestamp = "..."

	timestampLayout = "1/2/2006, 3:04:05 PM"
)

// MessageView is the rendered shape of a message.
type MessageView struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	HTML           string `json:"html"`
	SenderEmail    string `json:"senderEmail"`
	CreatedAt      string `json:"createdAt"`
}

// FormatTimestamp renders t in loc, UTC when loc is nil.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return PendingTimestamp
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(timestampLayout)
}

func Transform(m Message, loc *time.Location) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Text:           m.Text,
		HTML:           render.Markdown(m.Text),
		SenderEmail:    m.SenderEmail,
		CreatedAt:      FormatTimestamp(m.SentAt, loc),
	}
}

func TransformAll(msgs []Message, loc *time.Location) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, Transform(m, loc))
	}
	return views
}
