package contract

import "github.com/klipach/chatter/chat"

type CreateConversationRequest struct {
	Email string `json:"email"`
}

// CreateConversationResponse reports created=false for every rejected
// input; clients close the dialog either way.
type CreateConversationResponse struct {
	Created      bool                  `json:"created"`
	Conversation *chat.ConversationRow `json:"conversation,omitempty"`
}

type ConversationList struct {
	Conversations []chat.ConversationRow `json:"conversations"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

type SessionResponse struct {
	Email    string `json:"email"`
	PhotoURL string `json:"photoURL,omitempty"`
}

const (
	FrameSend     = "send"
	FrameMessages = "messages"
	FrameError    = "error"
)

// SocketInbound is a frame sent by the client over the thread socket.
type SocketInbound struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// SocketMessages carries the full list the thread currently renders.
type SocketMessages struct {
	Type     string             `json:"type"`
	Live     bool               `json:"live"`
	Messages []chat.MessageView `json:"messages"`
}

type SocketError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
