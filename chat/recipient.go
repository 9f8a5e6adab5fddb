package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/klipach/chatter/log"
)

// Recipient is what a conversation row or thread header shows for the other
// party. PhotoURL and LastActive stay empty when the recipient never signed in.
type Recipient struct {
	Email      string `json:"email"`
	Initial    string `json:"initial"`
	PhotoURL   string `json:"photoURL,omitempty"`
	LastActive string `json:"lastActive,omitempty"`
	HasProfile bool   `json:"hasProfile"`
}

// RecipientEmail returns the participant that is not currentUser. For a
// self-conversation or a malformed record it falls back to the other stored
// entry, then to the sole entry.
func RecipientEmail(currentUser string, users []string) string {
	for _, u := range users {
		if u != currentUser {
			return u
		}
	}
	if len(users) > 1 {
		return users[1]
	}
	if len(users) == 1 {
		return users[0]
	}
	return ""
}

func initial(email string) string {
	r, _ := utf8.DecodeRuneInString(email)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}

// Recipient resolves the other party of users and loads their profile. A
// missing profile is not an error.
func (s *Service) Recipient(ctx context.Context, currentUser string, users []string, loc *time.Location) (Recipient, error) {
	email := RecipientEmail(currentUser, users)
	r := Recipient{Email: email, Initial: initial(email)}
	if strings.TrimSpace(email) == "" {
		return r, nil
	}
	u, err := s.store.User(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return r, nil
	}
	if err != nil {
		return r, err
	}
	r.HasProfile = true
	r.PhotoURL = u.PhotoURL
	if !u.LastSeen.IsZero() {
		r.LastActive = FormatTimestamp(u.LastSeen, loc)
	}
	return r, nil
}

// ConversationRow is one entry of the conversation list.
type ConversationRow struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Recipient Recipient `json:"recipient"`
}

// ConversationPath maps a conversation id to its thread URL path.
func ConversationPath(id string) string {
	return "/conversations/" + id
}

// Rows resolves a recipient for every conversation. Profile lookup failures
// are logged and the row keeps the email only.
func (s *Service) Rows(ctx context.Context, currentUser string, convs []Conversation, loc *time.Location) []ConversationRow {
	logger := log.LoggerFromContext(ctx)
	rows := make([]ConversationRow, 0, len(convs))
	for _, c := range convs {
		r, err := s.Recipient(ctx, currentUser, c.Users, loc)
		if err != nil {
			logger.Warn("recipient lookup failed",
				slog.String(conversationIDLogField, c.ID),
				slog.String(errorMsgLogField, err.Error()),
			)
		}
		rows = append(rows, ConversationRow{
			ID:        c.ID,
			Path:      ConversationPath(c.ID),
			Recipient: r,
		})
	}
	return rows
}
