package chatter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/gorilla/websocket"
	"github.com/klipach/chatter/chat"
	"github.com/klipach/chatter/contract"
	"github.com/klipach/chatter/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	mu      sync.Mutex
	revoked []string
}

var testTokens = map[string]*auth.Token{
	"alice":   {UID: "uid-alice", Claims: map[string]any{"email": "alice@x.com", "picture": "https://img/alice.png"}},
	"bob":     {UID: "uid-bob", Claims: map[string]any{"email": "bob@x.com"}},
	"mallory": {UID: "uid-mallory", Claims: map[string]any{"email": "mallory@x.com"}},
}

func (f *fakeVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	if t, ok := testTokens[idToken]; ok {
		return t, nil
	}
	return nil, errors.New("invalid token")
}

func (f *fakeVerifier) RevokeRefreshTokens(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, uid)
	return nil
}

func newTestServer(t *testing.T) (*Server, *memstore.Store, *fakeVerifier) {
	t.Helper()
	start := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	now := start
	var mu sync.Mutex
	store := memstore.New(memstore.WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}))
	verifier := &fakeVerifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(chat.NewService(store), verifier, logger, time.UTC), store, verifier
}

func do(t *testing.T, srv http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestUnauthorized(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, token := range []string{"", "forged"} {
		rec := do(t, srv, http.MethodGet, "/conversations", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestSession(t *testing.T) {
	srv, store, verifier := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/session", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp contract.SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, contract.SessionResponse{Email: "alice@x.com", PhotoURL: "https://img/alice.png"}, resp)

	u, err := store.User(context.Background(), "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "https://img/alice.png", u.PhotoURL)

	rec = do(t, srv, http.MethodDelete, "/session", "alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"uid-alice"}, verifier.revoked)
}

func TestCreateAndListConversations(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/session", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, "/conversations", "alice", contract.CreateConversationRequest{Email: "bob@x.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created contract.CreateConversationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.True(t, created.Created)
	require.NotNil(t, created.Conversation)
	assert.Equal(t, "bob@x.com", created.Conversation.Recipient.Email)
	assert.True(t, created.Conversation.Recipient.HasProfile)
	assert.Equal(t, "/conversations/"+created.Conversation.ID, created.Conversation.Path)

	rejected := []string{"bob@x.com", "", "not-an-email", "alice@x.com"}
	for _, email := range rejected {
		rec = do(t, srv, http.MethodPost, "/conversations", "alice", contract.CreateConversationRequest{Email: email})
		require.Equal(t, http.StatusOK, rec.Code, email)
		var resp contract.CreateConversationResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.False(t, resp.Created, email)
		assert.Nil(t, resp.Conversation, email)
	}

	rec = do(t, srv, http.MethodPost, "/conversations", "bob", contract.CreateConversationRequest{Email: "alice@x.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	for token, recipient := range map[string]string{"alice": "bob@x.com", "bob": "alice@x.com"} {
		rec = do(t, srv, http.MethodGet, "/conversations", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var list contract.ConversationList
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
		require.Len(t, list.Conversations, 1, token)
		assert.Equal(t, created.Conversation.ID, list.Conversations[0].ID)
		assert.Equal(t, recipient, list.Conversations[0].Recipient.Email)
	}

	rec = do(t, srv, http.MethodGet, "/conversations", "mallory", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list contract.ConversationList
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Empty(t, list.Conversations)
}

func TestCreateConversationBadRequest(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/conversations", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer alice")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageAndLoadThread(t *testing.T) {
	srv, store, _ := newTestServer(t)
	conv, err := store.AddConversation(context.Background(), []string{"alice@x.com", "bob@x.com"})
	require.NoError(t, err)
	path := "/conversations/" + conv.ID

	rec := do(t, srv, http.MethodPost, path+"/messages", "alice", contract.SendMessageRequest{Text: "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sent chat.MessageView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sent))
	assert.Equal(t, "hi", sent.Text)
	assert.Equal(t, "alice@x.com", sent.SenderEmail)
	assert.Equal(t, "10/17/2026, 9:00:02 AM", sent.CreatedAt)

	rec = do(t, srv, http.MethodPost, path+"/messages", "alice", contract.SendMessageRequest{Text: ""})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodPost, path+"/messages?tz=America/New_York", "bob", contract.SendMessageRequest{Text: "**hey**"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sent))
	assert.Equal(t, "10/17/2026, 5:00:04 AM", sent.CreatedAt)
	assert.Contains(t, sent.HTML, "<strong>hey</strong>")

	rec = do(t, srv, http.MethodGet, path, "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page chat.ThreadPage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Equal(t, "Conversation with alice@x.com", page.Title)
	assert.True(t, page.Recipient.HasProfile, "sending creates the sender profile")
	assert.Equal(t, "10/17/2026, 9:00:01 AM", page.Recipient.LastActive)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "hi", page.Messages[0].Text)
	assert.Equal(t, "**hey**", page.Messages[1].Text)
}

func TestThreadAccess(t *testing.T) {
	srv, store, _ := newTestServer(t)
	conv, err := store.AddConversation(context.Background(), []string{"alice@x.com", "bob@x.com"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		target string
		token  string
		body   any
		code   int
	}{
		{name: "outsider reads", method: http.MethodGet, target: "/conversations/" + conv.ID, token: "mallory", code: http.StatusForbidden},
		{name: "outsider sends", method: http.MethodPost, target: "/conversations/" + conv.ID + "/messages", token: "mallory", body: contract.SendMessageRequest{Text: "hi"}, code: http.StatusForbidden},
		{name: "missing thread", method: http.MethodGet, target: "/conversations/missing", token: "alice", code: http.StatusNotFound},
		{name: "send to missing thread", method: http.MethodPost, target: "/conversations/missing/messages", token: "alice", body: contract.SendMessageRequest{Text: "hi"}, code: http.StatusNotFound},
		{name: "outsider socket", method: http.MethodGet, target: "/conversations/" + conv.ID + "/socket", token: "mallory", code: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.target, tt.token, tt.body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}

	msgs, err := store.Messages(context.Background(), chat.MessagesQuery(conv.ID))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestThreadSocket(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()
	conv, err := store.AddConversation(ctx, []string{"alice@x.com", "bob@x.com"})
	require.NoError(t, err)
	_, err = store.AddMessage(ctx, chat.Message{ConversationID: conv.ID, SenderEmail: "bob@x.com", Text: "hello"})
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/conversations/" + conv.ID + "/socket?access_token=alice"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	read := func() contract.SocketMessages {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var frame contract.SocketMessages
		require.NoError(t, conn.ReadJSON(&frame))
		require.Equal(t, contract.FrameMessages, frame.Type)
		return frame
	}

	seed := read()
	assert.False(t, seed.Live)
	require.Len(t, seed.Messages, 1)
	assert.Equal(t, "hello", seed.Messages[0].Text)

	live := read()
	assert.True(t, live.Live)
	assert.Equal(t, seed.Messages, live.Messages)

	require.NoError(t, conn.WriteJSON(contract.SocketInbound{Type: contract.FrameSend, Text: "hi"}))

	for {
		frame := read()
		require.True(t, frame.Live)
		last := frame.Messages[len(frame.Messages)-1]
		if last.Text == "hi" {
			assert.Equal(t, "alice@x.com", last.SenderEmail)
			assert.Len(t, frame.Messages, 2)
			break
		}
	}
}

func TestConversationStream(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/conversations/stream", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer bob")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan contract.ConversationList)
	go func() {
		defer close(events)
		dec := newEventReader(resp.Body)
		for {
			var list contract.ConversationList
			if err := dec(&list); err != nil {
				return
			}
			events <- list
		}
	}()

	first := <-events
	assert.Empty(t, first.Conversations)

	rec := do(t, srv, http.MethodPost, "/conversations", "alice", contract.CreateConversationRequest{Email: "bob@x.com"})
	require.Equal(t, http.StatusCreated, rec.Code)

	select {
	case list := <-events:
		require.Len(t, list.Conversations, 1)
		assert.Equal(t, "alice@x.com", list.Conversations[0].Recipient.Email)
	case <-time.After(2 * time.Second):
		t.Fatal("no event after conversation was created")
	}
}

// newEventReader decodes the JSON payload of consecutive "data:" lines.
func newEventReader(r io.Reader) func(v any) error {
	var buf []byte
	chunk := make([]byte, 4096)
	return func(v any) error {
		for {
			if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
				event := buf[:i]
				buf = buf[i+2:]
				return json.Unmarshal(bytes.TrimPrefix(event, []byte("data: ")), v)
			}
			n, err := r.Read(chunk)
			buf = append(buf, chunk[:n]...)
			if err != nil {
				return err
			}
		}
	}
}
