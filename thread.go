package chatter

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klipach/chatter/chat"
	"github.com/klipach/chatter/contract"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxFrameSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// callers authenticate with an ID token, not cookies
	CheckOrigin: func(*http.Request) bool { return true },
}

// conversation returns the page a thread view renders before its live
// subscription connects.
func (s *Server) conversation(w http.ResponseWriter, r *http.Request) {
	sess, logger := session(r)
	id := r.PathValue("id")
	logger = logger.With(slog.String(conversationIDLogField, id))

	page, err := s.chat.LoadThread(r.Context(), sess.Email, id, s.location(r, logger))
	if err != nil {
		fail(w, logger, "error while loading conversation", err)
		return
	}
	if err := writeJSON(w, http.StatusOK, page); err != nil {
		logger.Error("error while writing response", slog.String(ErrorMsgLogField, err.Error()))
	}
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sess, logger := session(r)
	id := r.PathValue("id")
	logger = logger.With(slog.String(conversationIDLogField, id))

	var req contract.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Error("error while decoding request", slog.String(ErrorMsgLogField, err.Error()))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	msg, err := s.chat.SendMessage(r.Context(), sess.Email, id, req.Text)
	if errors.Is(err, chat.ErrEmptyMessage) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		fail(w, logger, "error while sending message", err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, chat.Transform(msg, s.location(r, logger))); err != nil {
		logger.Error("error while writing response", slog.String(ErrorMsgLogField, err.Error()))
	}
}

// threadSocket streams the thread over a websocket. The seed is sent first;
// every live snapshot then replaces it. Clients send messages with
// {"type":"send","text":"..."} frames.
func (s *Server) threadSocket(w http.ResponseWriter, r *http.Request) {
	sess, logger := session(r)
	ctx := r.Context()
	id := r.PathValue("id")
	logger = logger.With(slog.String(conversationIDLogField, id))
	loc := s.location(r, logger)

	page, err := s.chat.LoadThread(ctx, sess.Email, id, loc)
	if err != nil {
		fail(w, logger, "error while loading conversation", err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request
		logger.Error("error while upgrading connection", slog.String(ErrorMsgLogField, err.Error()))
		return
	}
	defer conn.Close()

	thread := chat.NewThread(page.Messages)
	sub := s.chat.WatchThread(ctx, id)
	defer sub.Close()

	done := make(chan struct{})
	defer close(done)
	inbound := make(chan contract.SocketInbound)
	readErr := make(chan error, 1)
	go readFrames(conn, inbound, readErr, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := writeFrame(conn, threadFrame(thread)); err != nil {
		logger.Info("socket closed", slog.String(ErrorMsgLogField, err.Error()))
		return
	}
	for {
		var out any
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			logger.Info("socket closed", slog.String(ErrorMsgLogField, err.Error()))
			return
		case msgs, ok := <-sub.Updates():
			if !ok {
				if err := sub.Err(); err != nil {
					logger.Error("message subscription failed", slog.String(ErrorMsgLogField, err.Error()))
				}
				return
			}
			thread.SetLive(chat.TransformAll(msgs, loc))
			out = threadFrame(thread)
		case frame := <-inbound:
			out = s.handleFrame(r, logger, sess.Email, id, frame)
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Info("socket closed", slog.String(ErrorMsgLogField, err.Error()))
				return
			}
		}
		if out == nil {
			continue
		}
		if err := writeFrame(conn, out); err != nil {
			logger.Info("socket closed", slog.String(ErrorMsgLogField, err.Error()))
			return
		}
	}
}

// handleFrame returns the frame to answer with, nil when there is nothing to say.
// The sent message itself reaches the client through the live snapshot.
func (s *Server) handleFrame(r *http.Request, logger *slog.Logger, sender, id string, frame contract.SocketInbound) any {
	if frame.Type != contract.FrameSend {
		return contract.SocketError{Type: contract.FrameError, Error: "unknown frame type"}
	}
	_, err := s.chat.SendMessage(r.Context(), sender, id, frame.Text)
	if err == nil || errors.Is(err, chat.ErrEmptyMessage) {
		return nil
	}
	logger.Error("error while sending message", slog.String(ErrorMsgLogField, err.Error()))
	return contract.SocketError{Type: contract.FrameError, Error: "message not sent"}
}

func threadFrame(t *chat.Thread) contract.SocketMessages {
	return contract.SocketMessages{Type: contract.FrameMessages, Live: t.Live(), Messages: t.Current()}
}

func writeFrame(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func readFrames(conn *websocket.Conn, inbound chan<- contract.SocketInbound, readErr chan<- error, done <-chan struct{}) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var frame contract.SocketInbound
		if err := conn.ReadJSON(&frame); err != nil {
			readErr <- err
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		select {
		case inbound <- frame:
		case <-done:
			return
		}
	}
}
