// Package memstore is an in-process chat.Store used by tests and local runs.
// Writes assign the server timestamp from the store clock and wake every
// live query.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klipach/chatter/chat"
)

type Option func(*Store)

// WithClock replaces time.Now as the server timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type Store struct {
	mu            sync.Mutex
	now           func() time.Time
	users         map[string]chat.User
	conversations []chat.Conversation
	messages      []chat.Message
	watchers      map[int]chan struct{}
	nextWatcher   int
}

func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		users:    make(map[string]chat.User),
		watchers: make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) User(_ context.Context, email string) (chat.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return chat.User{}, chat.ErrNotFound
	}
	return u, nil
}

func (s *Store) UpsertUser(_ context.Context, u chat.User) error {
	s.mu.Lock()
	u.LastSeen = s.now()
	s.users[u.Email] = u
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Store) TouchLastSeen(_ context.Context, email string) error {
	s.mu.Lock()
	u := s.users[email]
	u.Email = email
	u.LastSeen = s.now()
	s.users[email] = u
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Store) Conversation(_ context.Context, id string) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.ID == id {
			return copyConversation(c), nil
		}
	}
	return chat.Conversation{}, chat.ErrNotFound
}

func (s *Store) Conversations(_ context.Context, user string) ([]chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []chat.Conversation{}
	for _, c := range s.conversations {
		if slices.Contains(c.Users, user) {
			out = append(out, copyConversation(c))
		}
	}
	return out, nil
}

func (s *Store) WatchConversations(ctx context.Context, user string) *chat.Subscription[chat.Conversation] {
	return watch(ctx, s, func(ctx context.Context) ([]chat.Conversation, error) {
		return s.Conversations(ctx, user)
	})
}

func (s *Store) AddConversation(_ context.Context, users []string) (chat.Conversation, error) {
	c := chat.Conversation{ID: uuid.NewString(), Users: slices.Clone(users)}
	s.mu.Lock()
	s.conversations = append(s.conversations, c)
	s.mu.Unlock()
	s.notify()
	return copyConversation(c), nil
}

func (s *Store) Messages(_ context.Context, q chat.MessageQuery) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return q.Apply(s.messages), nil
}

func (s *Store) WatchMessages(ctx context.Context, q chat.MessageQuery) *chat.Subscription[chat.Message] {
	return watch(ctx, s, func(ctx context.Context) ([]chat.Message, error) {
		return s.Messages(ctx, q)
	})
}

func (s *Store) AddMessage(_ context.Context, m chat.Message) (chat.Message, error) {
	s.mu.Lock()
	m.ID = uuid.NewString()
	m.SentAt = s.now()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
	s.notify()
	return m, nil
}

func (s *Store) register() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextWatcher
	s.nextWatcher++
	ch := make(chan struct{}, 1)
	s.watchers[id] = ch
	return ch, func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// watch re-runs load after every write until ctx is done.
func watch[T any](ctx context.Context, s *Store, load func(context.Context) ([]T, error)) *chat.Subscription[T] {
	return chat.Watch(ctx, func(ctx context.Context, emit func([]T)) error {
		changed, unregister := s.register()
		defer unregister()
		for {
			items, err := load(ctx)
			if err != nil {
				return err
			}
			emit(items)
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
			}
		}
	})
}

func copyConversation(c chat.Conversation) chat.Conversation {
	return chat.Conversation{ID: c.ID, Users: slices.Clone(c.Users)}
}
