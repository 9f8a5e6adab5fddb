package chatter

import (
	"log/slog"
	"net/http"

	"github.com/klipach/chatter/chat"
	"github.com/klipach/chatter/contract"
)

// signIn records the profile of the authenticated user, creating it on the
// first sign-in.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	sess, logger := session(r)
	err := s.chat.SignIn(r.Context(), chat.User{Email: sess.Email, PhotoURL: sess.PhotoURL})
	if err != nil {
		fail(w, logger, "error while signing in", err)
		return
	}
	logger.Info("signed in")
	if err := writeJSON(w, http.StatusOK, contract.SessionResponse{Email: sess.Email, PhotoURL: sess.PhotoURL}); err != nil {
		logger.Error("error while writing response", slog.String(ErrorMsgLogField, err.Error()))
	}
}

// signOut revokes the user's refresh tokens. A failure is only logged.
func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	sess, logger := session(r)
	if err := s.verifier.RevokeRefreshTokens(r.Context(), sess.UID); err != nil {
		logger.Error("error while signing out", slog.String(ErrorMsgLogField, err.Error()))
	}
	w.WriteHeader(http.StatusNoContent)
}
