package chatter

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/klipach/chatter/chat"
	"github.com/klipach/chatter/contract"
)

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	sess, logger := session(r)
	ctx := r.Context()

	convs, err := s.chat.Conversations(ctx, sess.Email)
	if err != nil {
		fail(w, logger, "error while loading conversations", err)
		return
	}
	rows := s.chat.Rows(ctx, sess.Email, convs, s.location(r, logger))
	if err := writeJSON(w, http.StatusOK, contract.ConversationList{Conversations: rows}); err != nil {
		logger.Error("error while writing response", slog.String(ErrorMsgLogField, err.Error()))
	}
}

// createConversation answers 201 with the new row, or 200 with
// created=false when the input was rejected.
func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	sess, logger := session(r)
	ctx := r.Context()

	var req contract.CreateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Error("error while decoding request", slog.String(ErrorMsgLogField, err.Error()))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	conv, created, err := s.chat.CreateConversation(ctx, sess.Email, req.Email)
	if err != nil {
		fail(w, logger, "error while creating conversation", err)
		return
	}
	resp := contract.CreateConversationResponse{Created: created}
	code := http.StatusOK
	if created {
		rows := s.chat.Rows(ctx, sess.Email, []chat.Conversation{conv}, s.location(r, logger))
		resp.Conversation = &rows[0]
		code = http.StatusCreated
	}
	if err := writeJSON(w, code, resp); err != nil {
		logger.Error("error while writing response", slog.String(ErrorMsgLogField, err.Error()))
	}
}

// streamConversations pushes the conversation list as server-sent events,
// one full list per snapshot, until the client disconnects.
func (s *Server) streamConversations(w http.ResponseWriter, r *http.Request) {
	sess, logger := session(r)
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming unsupported!")
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	loc := s.location(r, logger)

	sub := s.chat.WatchConversations(ctx, sess.Email)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case convs, ok := <-sub.Updates():
			if !ok {
				if err := sub.Err(); err != nil {
					logger.Error("conversation subscription failed", slog.String(ErrorMsgLogField, err.Error()))
				}
				return
			}
			rows := s.chat.Rows(ctx, sess.Email, convs, loc)
			if err := writeEvent(w, flusher, contract.ConversationList{Conversations: rows}); err != nil {
				logger.Info("stream closed", slog.String(ErrorMsgLogField, err.Error()))
				return
			}
		}
	}
}

func writeEvent(w io.Writer, flusher http.Flusher, v any) error {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
