package chat

import (
	"context"
	"fmt"
	"time"
)

// ThreadPage is everything a conversation view needs before first paint.
type ThreadPage struct {
	Conversation Conversation  `json:"conversation"`
	Title        string        `json:"title"`
	Recipient    Recipient     `json:"recipient"`
	Messages     []MessageView `json:"messages"`
}

// LoadThread fetches the conversation and its full message history with the
// same query the live subscription uses.
func (s *Service) LoadThread(ctx context.Context, user, conversationID string, loc *time.Location) (ThreadPage, error) {
	conv, err := s.participantConversation(ctx, user, conversationID)
	if err != nil {
		return ThreadPage{}, err
	}
	msgs, err := s.store.Messages(ctx, MessagesQuery(conversationID))
	if err != nil {
		return ThreadPage{}, fmt.Errorf("load messages: %w", err)
	}
	recipient, err := s.Recipient(ctx, user, conv.Users, loc)
	if err != nil {
		return ThreadPage{}, fmt.Errorf("load recipient: %w", err)
	}
	return ThreadPage{
		Conversation: conv,
		Title:        "Conversation with " + recipient.Email,
		Recipient:    recipient,
		Messages:     TransformAll(msgs, loc),
	}, nil
}

// WatchThread subscribes to the messages of a conversation. Callers check
// participation first, usually through LoadThread.
func (s *Service) WatchThread(ctx context.Context, conversationID string) *Subscription[Message] {
	return s.store.WatchMessages(ctx, MessagesQuery(conversationID))
}
