// Package pgstore implements chat.Store on Postgres. Writes publish a
// NOTIFY on commit and live queries re-run when one arrives.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/klipach/chatter/chat"
	"github.com/lib/pq"
)

const (
	driverName = "postgres"

	conversationsChannel = "chatter_conversations"
	messagesChannel      = "chatter_messages"
)

var Schema = `
CREATE TABLE IF NOT EXISTS users (
	email TEXT PRIMARY KEY,
	photo_url TEXT NOT NULL DEFAULT '',
	last_seen TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	users TEXT[] NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS conversations_users_idx ON conversations USING GIN (users);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender TEXT NOT NULL,
	text TEXT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_id, sent_at);
`

// query fields of chat.MessageQuery mapped to columns
var messageColumns = map[string]string{
	chat.FieldConversationID: "conversation_id",
	chat.FieldSentAt:         "sent_at",
}

type userRow struct {
	Email    string       `db:"email"`
	PhotoURL string       `db:"photo_url"`
	LastSeen sql.NullTime `db:"last_seen"`
}

type conversationRow struct {
	ID    string         `db:"id"`
	Users pq.StringArray `db:"users"`
}

type messageRow struct {
	ID             string    `db:"id"`
	ConversationID string    `db:"conversation_id"`
	Sender         string    `db:"sender"`
	Text           string    `db:"text"`
	SentAt         time.Time `db:"sent_at"`
}

type Store struct {
	db           *sqlx.DB
	dsn          string
	minReconnect time.Duration
	maxReconnect time.Duration
}

// Open connects to dsn. The listener bounds are the pq.Listener reconnect backoff.
func Open(ctx context.Context, dsn string, minReconnect, maxReconnect time.Duration) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: db, dsn: dsn, minReconnect: minReconnect, maxReconnect: maxReconnect}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) User(ctx context.Context, email string) (chat.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT email, photo_url, last_seen FROM users WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.User{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.User{}, err
	}
	u := chat.User{Email: row.Email, PhotoURL: row.PhotoURL}
	if row.LastSeen.Valid {
		u.LastSeen = row.LastSeen.Time
	}
	return u, nil
}

func (s *Store) UpsertUser(ctx context.Context, u chat.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, photo_url, last_seen) VALUES ($1, $2, now())
		ON CONFLICT (email) DO UPDATE SET photo_url = EXCLUDED.photo_url, last_seen = EXCLUDED.last_seen`,
		u.Email, u.PhotoURL,
	)
	return err
}

func (s *Store) TouchLastSeen(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, last_seen) VALUES ($1, now())
		ON CONFLICT (email) DO UPDATE SET last_seen = EXCLUDED.last_seen`,
		email,
	)
	return err
}

func (s *Store) Conversation(ctx context.Context, id string) (chat.Conversation, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row, `SELECT id, users FROM conversations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.Conversation{}, err
	}
	return chat.Conversation{ID: row.ID, Users: row.Users}, nil
}

func (s *Store) Conversations(ctx context.Context, user string) ([]chat.Conversation, error) {
	var rows []conversationRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, users FROM conversations WHERE $1 = ANY(users) ORDER BY created_at`, user)
	if err != nil {
		return nil, err
	}
	convs := make([]chat.Conversation, 0, len(rows))
	for _, row := range rows {
		convs = append(convs, chat.Conversation{ID: row.ID, Users: row.Users})
	}
	return convs, nil
}

func (s *Store) WatchConversations(ctx context.Context, user string) *chat.Subscription[chat.Conversation] {
	return watch(ctx, s, conversationsChannel, nil, func(ctx context.Context) ([]chat.Conversation, error) {
		return s.Conversations(ctx, user)
	})
}

func (s *Store) AddConversation(ctx context.Context, users []string) (chat.Conversation, error) {
	c := chat.Conversation{ID: uuid.NewString(), Users: append([]string(nil), users...)}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (id, users) VALUES ($1, $2)`, c.ID, pq.Array(c.Users)); err != nil {
			return err
		}
		return notify(ctx, tx, conversationsChannel, c.ID)
	})
	if err != nil {
		return chat.Conversation{}, err
	}
	return c, nil
}

// messagesSQL renders q as a SELECT. Only known fields are accepted.
func messagesSQL(q chat.MessageQuery) (string, error) {
	field, ok := messageColumns[q.Field]
	if !ok {
		return "", fmt.Errorf("unknown message field %q", q.Field)
	}
	order, ok := messageColumns[q.OrderBy]
	if !ok {
		return "", fmt.Errorf("unknown message order %q", q.OrderBy)
	}
	dir := "ASC"
	if !q.Ascending {
		dir = "DESC"
	}
	return fmt.Sprintf(
		`SELECT id, conversation_id, sender, text, sent_at FROM messages WHERE %s = $1 ORDER BY %s %s, id`,
		field, order, dir,
	), nil
}

func (s *Store) Messages(ctx context.Context, q chat.MessageQuery) ([]chat.Message, error) {
	query, err := messagesSQL(q)
	if err != nil {
		return nil, err
	}
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, q.ConversationID); err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, chat.Message{
			ID:             row.ID,
			ConversationID: row.ConversationID,
			SenderEmail:    row.Sender,
			Text:           row.Text,
			SentAt:         row.SentAt,
		})
	}
	return msgs, nil
}

func (s *Store) WatchMessages(ctx context.Context, q chat.MessageQuery) *chat.Subscription[chat.Message] {
	relevant := func(payload string) bool { return payload == q.ConversationID }
	return watch(ctx, s, messagesChannel, relevant, func(ctx context.Context) ([]chat.Message, error) {
		return s.Messages(ctx, q)
	})
}

func (s *Store) AddMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	m.ID = uuid.NewString()
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx,
			`INSERT INTO messages (id, conversation_id, sender, text) VALUES ($1, $2, $3, $4) RETURNING sent_at`,
			m.ID, m.ConversationID, m.SenderEmail, m.Text,
		).Scan(&m.SentAt)
		if err != nil {
			return err
		}
		return notify(ctx, tx, messagesChannel, m.ConversationID)
	})
	if err != nil {
		return chat.Message{}, err
	}
	return m, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func notify(ctx context.Context, tx *sqlx.Tx, channel, payload string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, payload)
	return err
}

// watch opens a dedicated LISTEN connection and reloads after every
// notification that relevant accepts. A nil notification means the listener
// reconnected and may have missed events, so it always reloads.
func watch[T any](
	ctx context.Context,
	s *Store,
	channel string,
	relevant func(payload string) bool,
	load func(context.Context) ([]T, error),
) *chat.Subscription[T] {
	return chat.Watch(ctx, func(ctx context.Context, emit func([]T)) error {
		listener := pq.NewListener(s.dsn, s.minReconnect, s.maxReconnect, nil)
		defer listener.Close()
		if err := listener.Listen(channel); err != nil {
			return fmt.Errorf("listen %s: %w", channel, err)
		}
		for {
			items, err := load(ctx)
			if err != nil {
				return err
			}
			emit(items)
			if !waitRelevant(ctx, listener.Notify, relevant) {
				return nil
			}
		}
	})
}

func waitRelevant(ctx context.Context, notifications <-chan *pq.Notification, relevant func(string) bool) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case n, ok := <-notifications:
			if !ok {
				return false
			}
			if n == nil || relevant == nil || relevant(n.Extra) {
				return true
			}
		}
	}
}
