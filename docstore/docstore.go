// Package docstore implements chat.Store on Firestore. Live queries use
// Firestore snapshot listeners and timestamps are assigned by the server.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/klipach/chatter/chat"
	"github.com/klipach/chatter/contract"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection         = "users"
	conversationsCollection = "conversations"
	messagesCollection      = "messages"

	fieldEmail    = "email"
	fieldPhotoURL = "photoURL"
	fieldLastSeen = "lastSeen"
	fieldUsers    = "users"
)

type Store struct {
	client *firestore.Client
}

func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) User(ctx context.Context, email string) (chat.User, error) {
	doc, err := s.client.Collection(usersCollection).Doc(email).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return chat.User{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.User{}, err
	}
	var u contract.FirestoreUser
	if err := doc.DataTo(&u); err != nil {
		return chat.User{}, fmt.Errorf("decode user %s: %w", email, err)
	}
	return toUser(email, u), nil
}

func (s *Store) UpsertUser(ctx context.Context, u chat.User) error {
	_, err := s.client.Collection(usersCollection).Doc(u.Email).Set(ctx, map[string]any{
		fieldEmail:    u.Email,
		fieldPhotoURL: u.PhotoURL,
		fieldLastSeen: firestore.ServerTimestamp,
	}, firestore.MergeAll)
	return err
}

func (s *Store) TouchLastSeen(ctx context.Context, email string) error {
	_, err := s.client.Collection(usersCollection).Doc(email).Set(ctx, map[string]any{
		fieldLastSeen: firestore.ServerTimestamp,
	}, firestore.MergeAll)
	return err
}

func (s *Store) Conversation(ctx context.Context, id string) (chat.Conversation, error) {
	doc, err := s.client.Collection(conversationsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return chat.Conversation{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.Conversation{}, err
	}
	return toConversation(doc)
}

func (s *Store) conversationsQuery(user string) firestore.Query {
	return s.client.Collection(conversationsCollection).Where(fieldUsers, "array-contains", user)
}

func (s *Store) Conversations(ctx context.Context, user string) ([]chat.Conversation, error) {
	docs, err := s.conversationsQuery(user).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, toConversation)
}

func (s *Store) WatchConversations(ctx context.Context, user string) *chat.Subscription[chat.Conversation] {
	return watch(ctx, s.conversationsQuery(user), toConversation)
}

func (s *Store) AddConversation(ctx context.Context, users []string) (chat.Conversation, error) {
	ref, _, err := s.client.Collection(conversationsCollection).Add(ctx, map[string]any{
		fieldUsers: users,
	})
	if err != nil {
		return chat.Conversation{}, err
	}
	return chat.Conversation{ID: ref.ID, Users: append([]string(nil), users...)}, nil
}

// messagesQuery translates the shared message query into Firestore terms.
func (s *Store) messagesQuery(q chat.MessageQuery) firestore.Query {
	dir := firestore.Asc
	if !q.Ascending {
		dir = firestore.Desc
	}
	return s.client.Collection(messagesCollection).
		Where(q.Field, "==", q.ConversationID).
		OrderBy(q.OrderBy, dir)
}

func (s *Store) Messages(ctx context.Context, q chat.MessageQuery) ([]chat.Message, error) {
	docs, err := s.messagesQuery(q).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, toMessage)
}

func (s *Store) WatchMessages(ctx context.Context, q chat.MessageQuery) *chat.Subscription[chat.Message] {
	return watch(ctx, s.messagesQuery(q), toMessage)
}

func (s *Store) AddMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	ref, wr, err := s.client.Collection(messagesCollection).Add(ctx, map[string]any{
		chat.FieldConversationID: m.ConversationID,
		chat.FieldSentAt:         firestore.ServerTimestamp,
		"text":                   m.Text,
		"user":                   m.SenderEmail,
	})
	if err != nil {
		return chat.Message{}, err
	}
	m.ID = ref.ID
	// the commit time is the value the server wrote for sent_at
	m.SentAt = wr.UpdateTime
	return m, nil
}

func watch[T any](ctx context.Context, q firestore.Query, decode func(*firestore.DocumentSnapshot) (T, error)) *chat.Subscription[T] {
	return chat.Watch(ctx, func(ctx context.Context, emit func([]T)) error {
		it := q.Snapshots(ctx)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if errors.Is(err, iterator.Done) || ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return nil
				}
				return err
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				return err
			}
			items, err := decodeAll(docs, decode)
			if err != nil {
				return err
			}
			emit(items)
		}
	})
}

func decodeAll[T any](docs []*firestore.DocumentSnapshot, decode func(*firestore.DocumentSnapshot) (T, error)) ([]T, error) {
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := decode(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func toConversation(doc *firestore.DocumentSnapshot) (chat.Conversation, error) {
	var c contract.FirestoreConversation
	if err := doc.DataTo(&c); err != nil {
		return chat.Conversation{}, fmt.Errorf("decode conversation %s: %w", doc.Ref.ID, err)
	}
	return chat.Conversation{ID: doc.Ref.ID, Users: c.Users}, nil
}

func toMessage(doc *firestore.DocumentSnapshot) (chat.Message, error) {
	var m contract.FirestoreMessage
	if err := doc.DataTo(&m); err != nil {
		return chat.Message{}, fmt.Errorf("decode message %s: %w", doc.Ref.ID, err)
	}
	return fromFirestoreMessage(doc.Ref.ID, m), nil
}

func fromFirestoreMessage(id string, m contract.FirestoreMessage) chat.Message {
	return chat.Message{
		ID:             id,
		ConversationID: m.ConversationID,
		SenderEmail:    m.User,
		Text:           m.Text,
		SentAt:         m.SentAt,
	}
}

func toUser(email string, u contract.FirestoreUser) chat.User {
	if u.Email != "" {
		email = u.Email
	}
	return chat.User{Email: email, PhotoURL: u.PhotoURL, LastSeen: u.LastSeen}
}
