package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/klipach/chatter/log"
)

const (
	errorMsgLogField       = "errorMsg"
	reasonLogField         = "reason"
	userLogField           = "user"
	recipientLogField      = "recipient"
	conversationIDLogField = "conversationID"
)

type Service struct {
	store    Store
	validate *validator.Validate
}

func NewService(store Store) *Service {
	return &Service{
		store:    store,
		validate: validator.New(),
	}
}

// SignIn creates or refreshes the profile of a user who just authenticated.
func (s *Service) SignIn(ctx context.Context, u User) error {
	if err := s.store.UpsertUser(ctx, u); err != nil {
		return fmt.Errorf("upsert user %s: %w", u.Email, err)
	}
	return nil
}

// Conversations returns every conversation that contains user.
func (s *Service) Conversations(ctx context.Context, user string) ([]Conversation, error) {
	return s.store.Conversations(ctx, user)
}

func (s *Service) WatchConversations(ctx context.Context, user string) *Subscription[Conversation] {
	return s.store.WatchConversations(ctx, user)
}

// CreateConversation pairs user with the typed recipient. Invalid input, a
// self-conversation or an already existing pair is a silent no-op: it
// returns created=false and a nil error. The existence check runs against
// the user's conversations as loaded now and is not a uniqueness guarantee.
func (s *Service) CreateConversation(ctx context.Context, user, input string) (Conversation, bool, error) {
	logger := log.LoggerFromContext(ctx).With(
		slog.String(userLogField, user),
		slog.String(recipientLogField, input),
	)

	if err := s.checkRecipient(user, input); err != nil {
		logger.Info("conversation not created", slog.String(reasonLogField, err.Error()))
		return Conversation{}, false, nil
	}

	existing, err := s.store.Conversations(ctx, user)
	if err != nil {
		return Conversation{}, false, fmt.Errorf("load conversations: %w", err)
	}
	if conversationExists(existing, input) {
		logger.Info("conversation not created", slog.String(reasonLogField, errAlreadyExists.Error()))
		return Conversation{}, false, nil
	}

	conv, err := s.store.AddConversation(ctx, []string{user, input})
	if err != nil {
		return Conversation{}, false, fmt.Errorf("add conversation: %w", err)
	}
	logger.Info("conversation created", slog.String(conversationIDLogField, conv.ID))
	return conv, true, nil
}

func (s *Service) checkRecipient(user, input string) error {
	if input == "" {
		return errEmptyRecipient
	}
	if err := s.validate.Var(input, "email"); err != nil {
		return errInvalidEmail
	}
	if input == user {
		return errSelfConversation
	}
	return nil
}

func conversationExists(convs []Conversation, recipient string) bool {
	for _, c := range convs {
		if isParticipant(c, recipient) {
			return true
		}
	}
	return false
}

// SendMessage updates the sender's last-seen time and then appends the
// message. The two writes are not atomic: when the append fails the
// last-seen update stays.
func (s *Service) SendMessage(ctx context.Context, sender, conversationID, text string) (Message, error) {
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	if _, err := s.participantConversation(ctx, sender, conversationID); err != nil {
		return Message{}, err
	}
	if err := s.store.TouchLastSeen(ctx, sender); err != nil {
		return Message{}, fmt.Errorf("update last seen: %w", err)
	}
	msg, err := s.store.AddMessage(ctx, Message{
		ConversationID: conversationID,
		SenderEmail:    sender,
		Text:           text,
	})
	if err != nil {
		return Message{}, fmt.Errorf("add message: %w", err)
	}
	return msg, nil
}

func (s *Service) participantConversation(ctx context.Context, user, id string) (Conversation, error) {
	conv, err := s.store.Conversation(ctx, id)
	if err != nil {
		return Conversation{}, fmt.Errorf("conversation %s: %w", id, err)
	}
	if !isParticipant(conv, user) {
		return Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotParticipant)
	}
	return conv, nil
}
