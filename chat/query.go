package chat

import "sort"

const (
	FieldConversationID = "conversation_id"
	FieldSentAt         = "sent_at"
)

// MessageQuery selects the messages of one conversation in display order.
// It is derived from the conversation id alone, so the seed fetch and the
// live subscription always agree on filter and order.
type MessageQuery struct {
	ConversationID string
	Field          string
	OrderBy        string
	Ascending      bool
}

func MessagesQuery(conversationID string) MessageQuery {
	return MessageQuery{
		ConversationID: conversationID,
		Field:          FieldConversationID,
		OrderBy:        FieldSentAt,
		Ascending:      true,
	}
}

// Match reports whether m belongs to the queried conversation.
func (q MessageQuery) Match(m Message) bool {
	return m.ConversationID == q.ConversationID
}

// Sort orders msgs by SentAt. Messages still waiting for a server timestamp
// go last in ascending order.
func (q MessageQuery) Sort(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i].SentAt, msgs[j].SentAt
		switch {
		case a.IsZero() && b.IsZero():
			return false
		case a.IsZero():
			return !q.Ascending
		case b.IsZero():
			return q.Ascending
		}
		if q.Ascending {
			return a.Before(b)
		}
		return b.Before(a)
	})
}

// Apply filters and orders msgs for stores without a query engine.
func (q MessageQuery) Apply(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if q.Match(m) {
			out = append(out, m)
		}
	}
	q.Sort(out)
	return out
}
